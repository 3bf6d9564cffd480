package narration

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"

	"eto-fortune-pipeline/config"
	"eto-fortune-pipeline/media"
	"eto-fortune-pipeline/retry"
	"eto-fortune-pipeline/types"
)

// minAudioBytes guards against the TTS engine writing a truncated file on a
// half-failed stream.
const minAudioBytes = 100

// Synthesizer converts narration text to a speech clip with a fixed voice
// profile by shelling out to an edge-tts style command.
type Synthesizer struct {
	cfg    *config.Config
	policy retry.Policy
}

// New creates a Synthesizer with the stage's standard retry policy.
func New(cfg *config.Config) *Synthesizer {
	policy := retry.DefaultPolicy()
	if cfg.Narration.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Narration.MaxAttempts
	}
	return &Synthesizer{cfg: cfg, policy: policy}
}

// Synthesize produces the narration clip at outFile. The returned duration
// is measured from the produced audio with ffprobe, never estimated from
// text length; all downstream timing derives from it. Failure after the
// bounded retries is fatal: a video with no narration is not a valid
// artifact.
func (s *Synthesizer) Synthesize(ctx context.Context, text, outFile string) (*types.NarrationAudio, error) {
	if _, err := exec.LookPath(s.cfg.Narration.Command); err != nil {
		return nil, fmt.Errorf("%w: TTS command %q not found in PATH", types.ErrConfiguration, s.cfg.Narration.Command)
	}

	log.Printf("[narration] Speaking %d chars (voice: %s)...", len([]rune(text)), s.cfg.Narration.Voice)

	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Narration.TimeoutSec)*time.Second)
		defer cancel()
		return s.runTTS(callCtx, text, outFile)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: speech synthesis failed: %v", types.ErrTransient, err)
	}

	dur, err := media.ProbeDuration(ctx, outFile)
	if err != nil {
		return nil, fmt.Errorf("%w: measure narration duration: %v", types.ErrTransient, err)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("%w: narration has zero duration: %s", types.ErrTransient, outFile)
	}

	log.Printf("[narration] ✅ Audio ready: %.2fs → %s", dur, outFile)
	return &types.NarrationAudio{Path: outFile, DurationSec: dur}, nil
}

func (s *Synthesizer) runTTS(ctx context.Context, text, outFile string) error {
	cmd := exec.CommandContext(ctx, s.cfg.Narration.Command,
		"--voice", s.cfg.Narration.Voice,
		"--text", text,
		"--write-media", outFile,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		// Remove a half-written file so the retry starts clean.
		_ = os.Remove(outFile)
		return fmt.Errorf("tts command: %w", err)
	}

	fi, err := os.Stat(outFile)
	if err != nil {
		return fmt.Errorf("tts produced no output: %w", err)
	}
	if fi.Size() < minAudioBytes {
		_ = os.Remove(outFile)
		return fmt.Errorf("tts output truncated (%d bytes)", fi.Size())
	}
	return nil
}
