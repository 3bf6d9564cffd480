package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Fortune   FortuneConfig   `yaml:"fortune"`
	Narration NarrationConfig `yaml:"narration"`
	Renderer  RendererConfig  `yaml:"renderer"`
	Compose   ComposeConfig   `yaml:"compose"`
	Upload    UploadConfig    `yaml:"upload"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Paths     PathsConfig     `yaml:"paths"`
}

type FortuneConfig struct {
	BaseURL          string  `yaml:"base_url"`
	Model            string  `yaml:"model"`
	Temperature      float64 `yaml:"temperature"`
	TimeoutSec       int     `yaml:"timeout_sec"`
	ShortMaxChars    int     `yaml:"short_max_chars"`
	DetailedMaxChars int     `yaml:"detailed_max_chars"`
}

type NarrationConfig struct {
	Command     string `yaml:"command"`
	Voice       string `yaml:"voice"`
	MaxAttempts int    `yaml:"max_attempts"`
	TimeoutSec  int    `yaml:"timeout_sec"`
}

type RendererConfig struct {
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	FPS               int     `yaml:"fps"`
	DriftToleranceSec float64 `yaml:"drift_tolerance_sec"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

type ComposeConfig struct {
	MusicVolume            float64 `yaml:"music_volume"`
	MusicFadeSec           float64 `yaml:"music_fade_sec"`
	ShortMaxDurationSec    float64 `yaml:"short_max_duration_sec"`
	DetailedMaxDurationSec float64 `yaml:"detailed_max_duration_sec"`
	AudioBitrate           string  `yaml:"audio_bitrate"`
	VideoPreset            string  `yaml:"video_preset"`
	VideoCRF               int     `yaml:"video_crf"`
}

type UploadConfig struct {
	Visibility        string `yaml:"visibility"`
	CategoryID        string `yaml:"category_id"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	DefaultLanguage   string `yaml:"default_language"`
	PublishHourJST    int    `yaml:"publish_hour_jst"`
}

type ScheduleConfig struct {
	MorningCron string `yaml:"morning_cron"`
	EveningCron string `yaml:"evening_cron"`
}

type PathsConfig struct {
	AssetsImages  string `yaml:"assets_images"`
	AssetsMusic   string `yaml:"assets_music"`
	SceneTemplate string `yaml:"scene_template"`
	Output        string `yaml:"output"`
	Logs          string `yaml:"logs"`
}

// Load reads config.yaml, applies defaults, and returns a Config struct.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a Config with all tuning constants at their shipped values.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Fortune.BaseURL == "" {
		c.Fortune.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Fortune.Model == "" {
		c.Fortune.Model = "google/gemini-2.0-flash-exp:free"
	}
	if c.Fortune.Temperature == 0 {
		c.Fortune.Temperature = 0.9
	}
	if c.Fortune.TimeoutSec == 0 {
		c.Fortune.TimeoutSec = 60
	}
	if c.Fortune.ShortMaxChars == 0 {
		c.Fortune.ShortMaxChars = 900
	}
	if c.Fortune.DetailedMaxChars == 0 {
		c.Fortune.DetailedMaxChars = 9000
	}
	if c.Narration.Command == "" {
		c.Narration.Command = "edge-tts"
	}
	if c.Narration.Voice == "" {
		c.Narration.Voice = "ja-JP-NanamiNeural"
	}
	if c.Narration.MaxAttempts == 0 {
		c.Narration.MaxAttempts = 3
	}
	if c.Narration.TimeoutSec == 0 {
		c.Narration.TimeoutSec = 120
	}
	if c.Renderer.Width == 0 {
		c.Renderer.Width = 1080
	}
	if c.Renderer.Height == 0 {
		c.Renderer.Height = 1920
	}
	if c.Renderer.FPS == 0 {
		c.Renderer.FPS = 30
	}
	if c.Renderer.DriftToleranceSec == 0 {
		c.Renderer.DriftToleranceSec = 0.3
	}
	if c.Renderer.TimeoutSec == 0 {
		c.Renderer.TimeoutSec = 600
	}
	if c.Compose.MusicVolume == 0 {
		c.Compose.MusicVolume = 0.30
	}
	if c.Compose.MusicFadeSec == 0 {
		c.Compose.MusicFadeSec = 1.0
	}
	if c.Compose.ShortMaxDurationSec == 0 {
		c.Compose.ShortMaxDurationSec = 59.0
	}
	if c.Compose.DetailedMaxDurationSec == 0 {
		c.Compose.DetailedMaxDurationSec = 600.0
	}
	if c.Compose.AudioBitrate == "" {
		c.Compose.AudioBitrate = "192k"
	}
	if c.Compose.VideoPreset == "" {
		c.Compose.VideoPreset = "medium"
	}
	if c.Compose.VideoCRF == 0 {
		c.Compose.VideoCRF = 22
	}
	if c.Upload.Visibility == "" {
		c.Upload.Visibility = "public"
	}
	if c.Upload.CategoryID == "" {
		c.Upload.CategoryID = "24"
	}
	if c.Upload.DefaultLanguage == "" {
		c.Upload.DefaultLanguage = "ja"
	}
	if c.Upload.PublishHourJST == 0 {
		c.Upload.PublishHourJST = 6
	}
	if c.Paths.AssetsImages == "" {
		c.Paths.AssetsImages = "assets/images"
	}
	if c.Paths.AssetsMusic == "" {
		c.Paths.AssetsMusic = "assets/music"
	}
	if c.Paths.SceneTemplate == "" {
		c.Paths.SceneTemplate = "templates/scene.html"
	}
	if c.Paths.Output == "" {
		c.Paths.Output = "outputs"
	}
	if c.Paths.Logs == "" {
		c.Paths.Logs = "logs"
	}
}
