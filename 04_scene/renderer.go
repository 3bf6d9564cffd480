package scene

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"eto-fortune-pipeline/config"
	"eto-fortune-pipeline/media"
	"eto-fortune-pipeline/types"
)

// Renderer drives headless Chrome to animate the scene template and
// captures it as a silent video stream. One Renderer holds one browser
// context discipline: renders are serialized with a mutex, so a single
// instance is safe to share across concurrent runs.
type Renderer struct {
	cfg *config.Config
	mu  sync.Mutex

	// renderOnce and probe are swappable for tests; they default to the
	// chromedp capture and ffprobe.
	renderOnce func(ctx context.Context, p renderParams) error
	probe      func(ctx context.Context, path string) (float64, error)
}

// New creates a Renderer.
func New(cfg *config.Config) *Renderer {
	r := &Renderer{cfg: cfg}
	r.renderOnce = r.captureFrames
	r.probe = media.ProbeDuration
	return r
}

type renderParams struct {
	templateURL string
	framesDir   string
	outFile     string
	durationSec float64
}

// Render animates the template for exactly durationSec of scene time and
// writes the captured stream to workDir. The produced duration must match
// the narration within the configured tolerance; a drifted or crashed
// render is retried exactly once with the same parameters before the run
// fails.
func (r *Renderer) Render(ctx context.Context, content *types.FortuneContent, bundle *types.AssetBundle, durationSec float64, workDir string) (*types.RenderedScene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	templatePath, err := filepath.Abs(r.cfg.Paths.SceneTemplate)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(templatePath); err != nil {
		return nil, fmt.Errorf("%w: scene template missing: %s", types.ErrConfiguration, templatePath)
	}
	if _, err := os.Stat(bundle.ImagePath); err != nil {
		return nil, fmt.Errorf("%w: scene image missing: %s", types.ErrConfiguration, bundle.ImagePath)
	}

	style := StyleFor(content.MoodTag)
	templateURL := buildTemplateURL(templatePath, content, bundle.ImagePath, style)

	framesDir := filepath.Join(workDir, "frames")
	outFile := filepath.Join(workDir, "scene.mp4")

	log.Printf("[scene] Rendering %q style for %.1fs (mood: %s)...", style.Anim, durationSec, content.MoodTag)

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		rendered, err := r.renderAttempt(ctx, renderParams{
			templateURL: templateURL,
			framesDir:   framesDir,
			outFile:     outFile,
			durationSec: durationSec,
		})
		if err == nil {
			log.Printf("[scene] ✅ Scene ready: %.2fs → %s", rendered.DurationSec, rendered.VideoPath)
			return rendered, nil
		}
		lastErr = err
		if attempt == 1 {
			log.Printf("[scene] Render attempt 1 failed: %v, retrying once with same parameters", err)
			_ = os.RemoveAll(framesDir)
			_ = os.Remove(outFile)
		}
	}
	return nil, lastErr
}

func (r *Renderer) renderAttempt(ctx context.Context, p renderParams) (*types.RenderedScene, error) {
	renderCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Renderer.TimeoutSec)*time.Second)
	defer cancel()

	if err := os.MkdirAll(p.framesDir, 0755); err != nil {
		return nil, err
	}

	if err := r.renderOnce(renderCtx, p); err != nil {
		return nil, fmt.Errorf("%w: scene render: %v", types.ErrTransient, err)
	}

	produced, err := r.probe(ctx, p.outFile)
	if err != nil {
		return nil, fmt.Errorf("%w: probe rendered scene: %v", types.ErrTransient, err)
	}
	if drift := math.Abs(produced - p.durationSec); drift > r.cfg.Renderer.DriftToleranceSec {
		return nil, fmt.Errorf("%w: rendered %.2fs for requested %.2fs (drift %.2fs > %.2fs)",
			types.ErrSync, produced, p.durationSec, drift, r.cfg.Renderer.DriftToleranceSec)
	}

	return &types.RenderedScene{VideoPath: p.outFile, DurationSec: produced}, nil
}

// captureFrames walks the template's animation clock frame by frame via
// window.seek and screenshots each position, then encodes the frame
// sequence with ffmpeg at the configured FPS.
func (r *Renderer) captureFrames(ctx context.Context, p renderParams) error {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("allow-file-access-from-files", true),
	)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	fps := r.cfg.Renderer.FPS
	totalFrames := int(p.durationSec * float64(fps))
	if totalFrames < 1 {
		return fmt.Errorf("requested duration %.2fs yields no frames", p.durationSec)
	}

	if err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(r.cfg.Renderer.Width), int64(r.cfg.Renderer.Height)),
		chromedp.Navigate(p.templateURL),
		chromedp.WaitVisible("#text-container"),
	); err != nil {
		return fmt.Errorf("open scene template: %w", err)
	}

	log.Printf("[scene] Capturing %d frames at %d fps...", totalFrames, fps)

	for i := 0; i < totalFrames; i++ {
		t := float64(i) / float64(fps)
		var shot []byte
		if err := chromedp.Run(browserCtx,
			chromedp.Evaluate(fmt.Sprintf("window.seek(%.4f)", t), nil),
			chromedp.CaptureScreenshot(&shot),
		); err != nil {
			return fmt.Errorf("capture frame %d: %w", i, err)
		}
		framePath := filepath.Join(p.framesDir, fmt.Sprintf("frame_%05d.png", i))
		if err := os.WriteFile(framePath, shot, 0644); err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
	}

	return r.encodeFrames(ctx, p, totalFrames)
}

func (r *Renderer) encodeFrames(ctx context.Context, p renderParams, totalFrames int) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-framerate", fmt.Sprintf("%d", r.cfg.Renderer.FPS),
		"-i", filepath.Join(p.framesDir, "frame_%05d.png"),
		"-frames:v", fmt.Sprintf("%d", totalFrames),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-an",
		p.outFile,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg encode frames: %w", err)
	}
	return nil
}

// buildTemplateURL constructs the file:// URL that parameterizes the scene
// template: text, header image, palette, and animation keyword.
func buildTemplateURL(templatePath string, content *types.FortuneContent, imagePath string, style Style) string {
	params := url.Values{}
	params.Set("text", content.NarrationText)
	params.Set("header", content.Title)
	params.Set("img", "file://"+filepath.ToSlash(imagePath))
	params.Set("c1", style.Grad[0])
	params.Set("c2", style.Grad[1])
	params.Set("c3", style.Grad[2])
	params.Set("glow", style.Glow)
	params.Set("elem", style.Element)
	params.Set("anim", style.Anim)
	return "file://" + filepath.ToSlash(templatePath) + "?" + params.Encode()
}
