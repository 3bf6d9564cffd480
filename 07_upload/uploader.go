package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"eto-fortune-pipeline/config"
	"eto-fortune-pipeline/types"
)

// Uploader publishes finished artifacts to YouTube via the Data API v3
// using a refresh-token OAuth flow suited to headless automation.
type Uploader struct {
	cfg *config.Config
}

// New creates an Uploader.
func New(cfg *config.Config) *Uploader {
	return &Uploader{cfg: cfg}
}

// Publish uploads the artifact and returns the remote video ID and URL.
func (u *Uploader) Publish(ctx context.Context, artifact *types.FinishedArtifact, meta *types.UploadMetadata) (string, string, error) {
	log.Println("[upload] Authenticating with YouTube API...")

	client, err := u.getOAuthClient(ctx)
	if err != nil {
		return "", "", fmt.Errorf("youtube auth: %w", err)
	}

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", "", fmt.Errorf("youtube service: %w", err)
	}

	log.Printf("[upload] Uploading: %q", meta.Title)

	snippet := &youtube.VideoSnippet{
		Title:                meta.Title,
		Description:          meta.Description,
		Tags:                 meta.Tags,
		CategoryId:           meta.CategoryID,
		DefaultLanguage:      u.cfg.Upload.DefaultLanguage,
		DefaultAudioLanguage: u.cfg.Upload.DefaultLanguage,
	}

	status := &youtube.VideoStatus{
		PrivacyStatus:           meta.Visibility,
		SelfDeclaredMadeForKids: u.cfg.Upload.MadeForKids,
	}

	// Public uploads go out on the morning drip slot, not immediately.
	if meta.PublishAt == "" && meta.Visibility == "public" {
		meta.PublishAt = u.ScheduledPublishAt(time.Now())
	}

	// Scheduled publishing requires the video to start private.
	if meta.PublishAt != "" && meta.Visibility == "public" {
		status.PrivacyStatus = "private"
		status.PublishAt = meta.PublishAt
		log.Printf("[upload] Scheduled for: %s", meta.PublishAt)
	}

	video := &youtube.Video{Snippet: snippet, Status: status}

	f, err := os.Open(artifact.Path)
	if err != nil {
		return "", "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		log.Printf("[upload] File size: %.1f MB", float64(fi.Size())/1024/1024)
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, video)
	call.NotifySubscribers(u.cfg.Upload.NotifySubscribers)
	call.Media(f)

	uploaded, err := call.Do()
	if err != nil {
		return "", "", fmt.Errorf("youtube upload: %w", err)
	}

	videoID := uploaded.Id
	videoURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	log.Printf("[upload] ✅ Uploaded: %s", videoURL)

	if err := LogUpload(videoID, videoURL, artifact, u.cfg.Paths.Logs, meta); err != nil {
		log.Printf("[upload] Warning: could not write upload log: %v", err)
	}
	return videoID, videoURL, nil
}

// ScheduledPublishAt returns the next publish slot as RFC3339 UTC: the
// configured morning hour in JST, rolling to tomorrow when already past.
func (u *Uploader) ScheduledPublishAt(now time.Time) string {
	jst := time.FixedZone("JST", 9*60*60)
	local := now.In(jst)
	target := time.Date(local.Year(), local.Month(), local.Day(), u.cfg.Upload.PublishHourJST, 30, 0, 0, jst)
	if !local.Before(target) {
		target = target.AddDate(0, 0, 1)
	}
	return target.UTC().Format(time.RFC3339)
}

func (u *Uploader) getOAuthClient(ctx context.Context) (*http.Client, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")

	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("%w: YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set",
			types.ErrConfiguration)
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}

	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}

	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token)), nil
}

// LogUpload appends an upload record to the logs directory.
func LogUpload(videoID, videoURL string, artifact *types.FinishedArtifact, logsDir string, meta *types.UploadMetadata) error {
	entry := map[string]interface{}{
		"video_id":     videoID,
		"video_url":    videoURL,
		"title":        meta.Title,
		"animal":       artifact.Animal,
		"scope":        artifact.Scope,
		"scheduled":    meta.PublishAt,
		"uploaded_at":  time.Now().UTC().Format(time.RFC3339),
		"artifact":     artifact.Path,
		"duration_sec": artifact.DurationSec,
	}

	logFile := filepath.Join(logsDir, fmt.Sprintf("upload_%s.json", time.Now().Format("20060102_150405")))
	data, _ := json.MarshalIndent(entry, "", "  ")
	if err := os.WriteFile(logFile, data, 0644); err != nil {
		return err
	}
	log.Printf("[upload] Upload log saved: %s", logFile)
	return nil
}
