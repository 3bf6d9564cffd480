package types

import (
	"fmt"
	"strings"
)

// Scope is the fortune's time horizon.
type Scope string

const (
	ScopeDaily   Scope = "daily"
	ScopeMonthly Scope = "monthly"
	ScopeYearly  Scope = "yearly"
)

// OutputKind selects the video format: vertical short or longer detailed cut.
type OutputKind string

const (
	KindShort    OutputKind = "short"
	KindDetailed OutputKind = "detailed"
)

// Mood is one of the four theme categories that drive animation style and music.
type Mood string

const (
	MoodZen       Mood = "zen"
	MoodSakura    Mood = "sakura"
	MoodMystical  Mood = "mystical"
	MoodEnergetic Mood = "energetic"
)

// DefaultMood is the single documented fallback used when the generator
// returns a mood outside the known set.
const DefaultMood = MoodZen

// EtoAnimals lists the 12 zodiac animal keys (romaji) in cycle order.
var EtoAnimals = []string{
	"ne", "ushi", "tora", "u", "tatsu", "mi",
	"uma", "hitsuji", "saru", "tori", "inu", "i",
}

// EtoKanji maps romaji animal keys (and common English aliases) to kanji.
var EtoKanji = map[string]string{
	"ne": "子", "rat": "子",
	"ushi": "丑", "ox": "丑",
	"tora": "寅", "tiger": "寅",
	"u": "卯", "rabbit": "卯",
	"tatsu": "辰", "dragon": "辰",
	"mi": "巳", "snake": "巳",
	"uma": "午", "horse": "午",
	"hitsuji": "未", "sheep": "未",
	"saru": "申", "monkey": "申",
	"tori": "酉", "rooster": "酉",
	"inu": "戌", "dog": "戌",
	"i": "亥", "boar": "亥",
}

// etoAliases maps English animal names to canonical romaji keys.
var etoAliases = map[string]string{
	"rat": "ne", "ox": "ushi", "tiger": "tora", "rabbit": "u",
	"dragon": "tatsu", "snake": "mi", "horse": "uma", "sheep": "hitsuji",
	"monkey": "saru", "rooster": "tori", "dog": "inu", "boar": "i",
}

// NormalizeAnimal resolves an animal identifier (romaji or English alias)
// to its canonical romaji key. Unknown identifiers return an error.
func NormalizeAnimal(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := etoAliases[key]; ok {
		key = alias
	}
	for _, a := range EtoAnimals {
		if a == key {
			return key, nil
		}
	}
	return "", fmt.Errorf("unknown eto animal %q", name)
}

// AnimalIndex returns the 1-based position of a canonical animal key in the
// 12-animal cycle (ne=1 .. i=12), or 0 if unknown.
func AnimalIndex(animal string) int {
	for i, a := range EtoAnimals {
		if a == animal {
			return i + 1
		}
	}
	return 0
}

// ParseScope validates a scope string.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeDaily:
		return ScopeDaily, nil
	case ScopeMonthly:
		return ScopeMonthly, nil
	case ScopeYearly:
		return ScopeYearly, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// ParseKind validates an output kind string.
func ParseKind(s string) (OutputKind, error) {
	switch OutputKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindShort:
		return KindShort, nil
	case KindDetailed:
		return KindDetailed, nil
	}
	return "", fmt.Errorf("unknown output kind %q", s)
}

// ParseMood reports whether s is one of the four known moods.
func ParseMood(s string) (Mood, bool) {
	switch Mood(strings.ToLower(strings.TrimSpace(s))) {
	case MoodZen:
		return MoodZen, true
	case MoodSakura:
		return MoodSakura, true
	case MoodMystical:
		return MoodMystical, true
	case MoodEnergetic:
		return MoodEnergetic, true
	}
	return "", false
}

// FortuneRequest is the immutable input to one pipeline run.
type FortuneRequest struct {
	Animal  string     `json:"animal"`
	Scope   Scope      `json:"scope"`
	Kind    OutputKind `json:"kind"`
	Publish bool       `json:"publish"`
}

// FortuneContent is the generated fortune: produced once per run, read-only
// for every downstream stage.
type FortuneContent struct {
	Title         string `json:"title"`
	NarrationText string `json:"narration_text"`
	MoodTag       Mood   `json:"mood_tag"`
}

// AssetBundle holds the resolved image and music files for one run.
type AssetBundle struct {
	ImagePath string `json:"image_path"`
	MusicPath string `json:"music_path"`
}

// NarrationAudio is the synthesized voiceover. DurationSec is measured from
// the actual audio file and is the authoritative clock for all downstream
// timing.
type NarrationAudio struct {
	Path        string  `json:"path"`
	DurationSec float64 `json:"duration_sec"`
}

// RenderedScene is the silent visual track for one run.
type RenderedScene struct {
	VideoPath   string  `json:"video_path"`
	DurationSec float64 `json:"duration_sec"`
}

// FinishedArtifact is the terminal entity of the pipeline: the composited
// video file plus the metadata describing it.
type FinishedArtifact struct {
	Path        string  `json:"path"`
	DurationSec float64 `json:"duration_sec"`
	Title       string  `json:"title"`
	MoodTag     Mood    `json:"mood_tag"`
	Animal      string  `json:"animal"`
	Scope       Scope   `json:"scope"`
}

// UploadMetadata holds everything the publisher needs for one video.
type UploadMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"category_id"`
	Visibility  string   `json:"visibility"`
	PublishAt   string   `json:"publish_at,omitempty"`
}
