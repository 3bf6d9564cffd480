// Package orchestrator sequences one fortune-video run: content generation,
// asset resolution, narration, scene rendering, and composition, with the
// failure attribution that keeps an unattended schedule debuggable.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	compose "eto-fortune-pipeline/05_compose"
	"eto-fortune-pipeline/config"
	"eto-fortune-pipeline/types"
)

// ContentGenerator is the fortune-text boundary.
type ContentGenerator interface {
	Generate(ctx context.Context, animal string, scope types.Scope, kind types.OutputKind) (*types.FortuneContent, error)
}

// AssetSelector resolves the image and music files for a run.
type AssetSelector interface {
	SelectImage(animal string, scope types.Scope) (string, error)
	SelectMusic(mood types.Mood) (string, error)
}

// SpeechSynthesizer is the narration boundary.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, outFile string) (*types.NarrationAudio, error)
}

// SceneRenderer renders the themed visual track.
type SceneRenderer interface {
	Render(ctx context.Context, content *types.FortuneContent, bundle *types.AssetBundle, durationSec float64, workDir string) (*types.RenderedScene, error)
}

// Compositor produces the finished artifact.
type Compositor interface {
	Compose(ctx context.Context, in compose.Input) (*types.FinishedArtifact, error)
}

// Publisher is the optional outward boundary; the pipeline is fully usable
// without one.
type Publisher interface {
	Publish(ctx context.Context, artifact *types.FinishedArtifact, meta *types.UploadMetadata) (videoID, videoURL string, err error)
}

// MetadataSource builds upload metadata for a finished artifact.
type MetadataSource interface {
	ForArtifact(artifact *types.FinishedArtifact, now time.Time) *types.UploadMetadata
}

// Orchestrator wires the five stages plus the optional publisher.
type Orchestrator struct {
	cfg       *config.Config
	generator ContentGenerator
	selector  AssetSelector
	synth     SpeechSynthesizer
	renderer  SceneRenderer
	composer  Compositor
	publisher Publisher
	metadata  MetadataSource

	now func() time.Time
}

// New creates an Orchestrator. publisher and metadata may be nil when the
// pipeline runs standalone.
func New(cfg *config.Config, gen ContentGenerator, sel AssetSelector, synth SpeechSynthesizer,
	renderer SceneRenderer, composer Compositor, publisher Publisher, metadata MetadataSource) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		generator: gen,
		selector:  sel,
		synth:     synth,
		renderer:  renderer,
		composer:  composer,
		publisher: publisher,
		metadata:  metadata,
		now:       time.Now,
	}
}

// RunState is the persisted record of one run, written to the run directory
// as each stage completes.
type RunState struct {
	RunID       string                  `json:"run_id"`
	Request     types.FortuneRequest    `json:"request"`
	Stage       Stage                   `json:"stage"`
	StartedAt   string                  `json:"started_at"`
	CompletedAt string                  `json:"completed_at,omitempty"`
	Content     *types.FortuneContent   `json:"content,omitempty"`
	Assets      *types.AssetBundle      `json:"assets,omitempty"`
	Narration   *types.NarrationAudio   `json:"narration,omitempty"`
	Scene       *types.RenderedScene    `json:"scene,omitempty"`
	Artifact    *types.FinishedArtifact `json:"artifact,omitempty"`
	VideoURL    string                  `json:"video_url,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// Run executes one complete pipeline run for req and returns the finished
// artifact. All run-scoped files live under <output>/<runID>; only the
// final artifact survives at the deterministic output path. On failure the
// returned error is a *RunError naming the stage being entered.
func (o *Orchestrator) Run(ctx context.Context, req types.FortuneRequest) (*types.FinishedArtifact, error) {
	runID := uuid.NewString()[:8]
	runDir := filepath.Join(o.cfg.Paths.Output, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, &RunError{Stage: StageRequested, Err: err}
	}

	state := &RunState{
		RunID:     runID,
		Request:   req,
		Stage:     StageRequested,
		StartedAt: o.now().UTC().Format(time.RFC3339),
	}
	defer func() {
		state.CompletedAt = o.now().UTC().Format(time.RFC3339)
		o.saveState(state, runDir)
	}()

	log.Printf("🎬 Run %s starting: %s %s (%s)", runID, req.Animal, req.Scope, req.Kind)

	// ── ContentGenerated ─────────────────────────────
	// Image selection is independent of the generated text and runs
	// concurrently with it; music selection needs the mood, so it waits.
	var (
		content    *types.FortuneContent
		imagePath  string
		contentErr error
		imageErr   error
	)
	// Each lookup records its own error so a fast image failure cannot
	// cancel content generation and misattribute the failing stage.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		content, contentErr = o.generator.Generate(gctx, req.Animal, req.Scope, req.Kind)
		return nil
	})
	g.Go(func() error {
		imagePath, imageErr = o.selector.SelectImage(req.Animal, req.Scope)
		return nil
	})
	_ = g.Wait()

	if contentErr != nil {
		return nil, o.fail(state, StageContentGenerated, contentErr)
	}
	state.Stage = StageContentGenerated
	state.Content = content
	o.saveState(state, runDir)

	// ── AssetsResolved ───────────────────────────────
	if imageErr != nil {
		return nil, o.fail(state, StageAssetsResolved, imageErr)
	}
	musicPath, err := o.selector.SelectMusic(content.MoodTag)
	if err != nil {
		return nil, o.fail(state, StageAssetsResolved, err)
	}
	bundle := &types.AssetBundle{ImagePath: imagePath, MusicPath: musicPath}
	state.Stage = StageAssetsResolved
	state.Assets = bundle
	o.saveState(state, runDir)

	// ── NarrationReady ───────────────────────────────
	narrationFile := filepath.Join(runDir, "narration.mp3")
	narration, err := o.synth.Synthesize(ctx, content.NarrationText, narrationFile)
	if err != nil {
		return nil, o.fail(state, StageNarrationReady, err)
	}
	state.Stage = StageNarrationReady
	state.Narration = narration
	o.saveState(state, runDir)

	// ── SceneRendered ────────────────────────────────
	scene, err := o.renderer.Render(ctx, content, bundle, narration.DurationSec, runDir)
	if err != nil {
		return nil, o.fail(state, StageSceneRendered, err)
	}
	state.Stage = StageSceneRendered
	state.Scene = scene
	o.saveState(state, runDir)

	// ── Composed ─────────────────────────────────────
	artifact, err := o.composer.Compose(ctx, compose.Input{
		Scene:     scene,
		Narration: narration,
		MusicPath: bundle.MusicPath,
		Mood:      content.MoodTag,
		Kind:      req.Kind,
		Title:     content.Title,
		Animal:    req.Animal,
		Scope:     req.Scope,
		OutPath:   o.ArtifactPath(req, runID),
	})
	if err != nil {
		return nil, o.fail(state, StageComposed, err)
	}
	state.Stage = StageComposed
	state.Artifact = artifact
	o.saveState(state, runDir)

	// ── Published (optional) ─────────────────────────
	if req.Publish && o.publisher != nil {
		meta := o.buildMetadata(artifact)
		_, videoURL, err := o.publisher.Publish(ctx, artifact, meta)
		if err != nil {
			return nil, o.fail(state, StagePublished, err)
		}
		state.Stage = StagePublished
		state.VideoURL = videoURL
		o.saveState(state, runDir)
	}

	state.Stage = StageDone
	log.Printf("✅ Run %s complete: %s (%.1fs)", runID, artifact.Path, artifact.DurationSec)
	return artifact, nil
}

// ArtifactPath is the deterministic final location for a run's video,
// encoding animal, scope, date, and the run identifier.
func (o *Orchestrator) ArtifactPath(req types.FortuneRequest, runID string) string {
	name := fmt.Sprintf("%s_%s_%s_%s.mp4", req.Animal, req.Scope, o.now().Format("20060102"), runID)
	return filepath.Join(o.cfg.Paths.Output, name)
}

func (o *Orchestrator) buildMetadata(artifact *types.FinishedArtifact) *types.UploadMetadata {
	if o.metadata != nil {
		return o.metadata.ForArtifact(artifact, o.now())
	}
	return &types.UploadMetadata{
		Title:      artifact.Title,
		CategoryID: o.cfg.Upload.CategoryID,
		Visibility: o.cfg.Upload.Visibility,
	}
}

func (o *Orchestrator) fail(state *RunState, stage Stage, err error) *RunError {
	runErr := &RunError{Stage: stage, Err: err}
	state.Error = runErr.Error()
	log.Printf("❌ %v", runErr)
	return runErr
}

func (o *Orchestrator) saveState(state *RunState, runDir string) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Printf("Warning: could not marshal run state: %v", err)
		return
	}
	if err := os.WriteFile(filepath.Join(runDir, "run_state.json"), data, 0644); err != nil {
		log.Printf("Warning: could not save run state: %v", err)
	}
}
