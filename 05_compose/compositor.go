package compose

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"

	"eto-fortune-pipeline/config"
	"eto-fortune-pipeline/media"
	"eto-fortune-pipeline/types"
)

// Compositor combines the rendered scene, narration track, and mood-matched
// music into one finished video file with ffmpeg.
type Compositor struct {
	cfg *config.Config
}

// New creates a Compositor.
func New(cfg *config.Config) *Compositor {
	return &Compositor{cfg: cfg}
}

// Input carries everything one composition needs. Scene and narration start
// together at time zero; music is looped or trimmed to the scene duration.
type Input struct {
	Scene     *types.RenderedScene
	Narration *types.NarrationAudio
	MusicPath string
	Mood      types.Mood
	Kind      types.OutputKind
	Title     string
	Animal    string
	Scope     types.Scope
	OutPath   string
}

// Compose writes the finished artifact to in.OutPath. The file is encoded
// to a temporary path and atomically renamed only on full success, so a
// partial output is never visible at the final artifact path.
func (c *Compositor) Compose(ctx context.Context, in Input) (*types.FinishedArtifact, error) {
	if _, err := os.Stat(in.MusicPath); err != nil {
		return nil, fmt.Errorf("%w: music track missing: %s", types.ErrConfiguration, in.MusicPath)
	}

	target := in.Scene.DurationSec
	if cap := c.maxDuration(in.Kind); target > cap {
		log.Printf("[compose] Scene %.1fs exceeds %s cap %.0fs, trimming", target, in.Kind, cap)
		target = cap
	}

	musicDur, err := media.ProbeDuration(ctx, in.MusicPath)
	if err != nil {
		return nil, fmt.Errorf("%w: probe music: %v", types.ErrComposition, err)
	}

	tmpPath := in.OutPath + ".tmp.mp4"
	args := c.buildArgs(in, musicDur, target, tmpPath)

	log.Printf("[compose] Mixing narration + music (%.0f%% volume, %.1fs fades) for %.1fs...",
		c.cfg.Compose.MusicVolume*100, c.cfg.Compose.MusicFadeSec, target)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: ffmpeg mix/encode: %v", types.ErrComposition, err)
	}

	produced, err := media.ProbeDuration(ctx, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: probe output: %v", types.ErrComposition, err)
	}

	if err := os.Rename(tmpPath, in.OutPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: publish artifact: %v", types.ErrComposition, err)
	}

	log.Printf("[compose] ✅ Artifact ready: %s (%.2fs)", in.OutPath, produced)
	return &types.FinishedArtifact{
		Path:        in.OutPath,
		DurationSec: produced,
		Title:       in.Title,
		MoodTag:     in.Mood,
		Animal:      in.Animal,
		Scope:       in.Scope,
	}, nil
}

// buildArgs assembles the full ffmpeg invocation. Kept pure so the loop and
// trim branches and the filter graph can be tested without running ffmpeg.
func (c *Compositor) buildArgs(in Input, musicDur, target float64, outPath string) []string {
	w, h := c.outputProfile(in.Kind)

	args := []string{"-y",
		"-i", in.Scene.VideoPath,
		"-i", in.Narration.Path,
	}
	// Loop branch: music shorter than the scene repeats until trimmed.
	// Trim branch: a longer track is cut by atrim alone.
	if musicDur < target {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-i", in.MusicPath,
		"-filter_complex", c.filterGraph(w, h, target),
		"-map", "[vout]",
		"-map", "[aout]",
		"-t", fmt.Sprintf("%.3f", target),
		"-c:v", "libx264",
		"-preset", c.cfg.Compose.VideoPreset,
		"-crf", fmt.Sprintf("%d", c.cfg.Compose.VideoCRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", c.cfg.Compose.AudioBitrate,
		"-movflags", "+faststart",
		outPath,
	)
	return args
}

// filterGraph scales the scene to the output profile and mixes music under
// narration: trimmed to the scene duration, attenuated to the fixed ratio,
// faded in and out so the track never cuts abruptly.
func (c *Compositor) filterGraph(w, h int, target float64) string {
	fade := c.cfg.Compose.MusicFadeSec
	fadeOutStart := target - fade
	if fadeOutStart < 0 {
		fadeOutStart = 0
	}
	return fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1[vout];"+
			"[2:a]atrim=0:%.3f,asetpts=PTS-STARTPTS,volume=%.2f,afade=t=in:st=0:d=%.2f,afade=t=out:st=%.3f:d=%.2f[bg];"+
			"[1:a][bg]amix=inputs=2:duration=first:normalize=0[aout]",
		w, h, w, h,
		target, c.cfg.Compose.MusicVolume, fade, fadeOutStart, fade,
	)
}

// outputProfile is the fixed target resolution for each output kind. Both
// kinds ship vertical 9:16; they differ in the duration cap.
func (c *Compositor) outputProfile(kind types.OutputKind) (int, int) {
	_ = kind
	return c.cfg.Renderer.Width, c.cfg.Renderer.Height
}

func (c *Compositor) maxDuration(kind types.OutputKind) float64 {
	if kind == types.KindDetailed {
		return c.cfg.Compose.DetailedMaxDurationSec
	}
	return c.cfg.Compose.ShortMaxDurationSec
}
