package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assets "eto-fortune-pipeline/02_assets"
	compose "eto-fortune-pipeline/05_compose"
	"eto-fortune-pipeline/config"
	"eto-fortune-pipeline/types"
)

// stageRecorder collects the order in which stage boundaries are crossed.
// Content generation and image selection run concurrently, so appends are
// locked.
type stageRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *stageRecorder) record(name string) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
}

type mockGenerator struct {
	rec     *stageRecorder
	content *types.FortuneContent
	err     error
}

func (m *mockGenerator) Generate(ctx context.Context, animal string, scope types.Scope, kind types.OutputKind) (*types.FortuneContent, error) {
	m.rec.record("generate")
	return m.content, m.err
}

type mockSelector struct {
	rec        *stageRecorder
	imageErr   error
	musicErr   error
	musicMoods []types.Mood
}

func (m *mockSelector) SelectImage(animal string, scope types.Scope) (string, error) {
	m.rec.record("image")
	if m.imageErr != nil {
		return "", m.imageErr
	}
	return "/assets/images/eto_" + string(scope) + "/" + animal + ".png", nil
}

func (m *mockSelector) SelectMusic(mood types.Mood) (string, error) {
	m.rec.record("music")
	m.musicMoods = append(m.musicMoods, mood)
	if m.musicErr != nil {
		return "", m.musicErr
	}
	return "/assets/music/" + string(mood) + "/track.mp3", nil
}

type mockSynth struct {
	rec      *stageRecorder
	duration float64
	err      error
}

func (m *mockSynth) Synthesize(ctx context.Context, text, outFile string) (*types.NarrationAudio, error) {
	m.rec.record("synthesize")
	if m.err != nil {
		return nil, m.err
	}
	return &types.NarrationAudio{Path: outFile, DurationSec: m.duration}, nil
}

type mockRenderer struct {
	rec       *stageRecorder
	err       error
	durations []float64
	bundles   []*types.AssetBundle
}

func (m *mockRenderer) Render(ctx context.Context, content *types.FortuneContent, bundle *types.AssetBundle, durationSec float64, workDir string) (*types.RenderedScene, error) {
	m.rec.record("render")
	m.durations = append(m.durations, durationSec)
	m.bundles = append(m.bundles, bundle)
	if m.err != nil {
		return nil, m.err
	}
	return &types.RenderedScene{VideoPath: filepath.Join(workDir, "scene.mp4"), DurationSec: durationSec}, nil
}

type mockComposer struct {
	rec    *stageRecorder
	err    error
	inputs []compose.Input
}

func (m *mockComposer) Compose(ctx context.Context, in compose.Input) (*types.FinishedArtifact, error) {
	m.rec.record("compose")
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return nil, m.err
	}
	return &types.FinishedArtifact{
		Path:        in.OutPath,
		DurationSec: in.Scene.DurationSec,
		Title:       in.Title,
		MoodTag:     in.Mood,
		Animal:      in.Animal,
		Scope:       in.Scope,
	}, nil
}

type mockPublisher struct {
	rec   *stageRecorder
	err   error
	metas []*types.UploadMetadata
}

func (m *mockPublisher) Publish(ctx context.Context, artifact *types.FinishedArtifact, meta *types.UploadMetadata) (string, string, error) {
	m.rec.record("publish")
	m.metas = append(m.metas, meta)
	if m.err != nil {
		return "", "", m.err
	}
	return "vid123", "https://www.youtube.com/watch?v=vid123", nil
}

type fixture struct {
	rec       *stageRecorder
	cfg       *config.Config
	generator *mockGenerator
	selector  *mockSelector
	synth     *mockSynth
	renderer  *mockRenderer
	composer  *mockComposer
	publisher *mockPublisher
	orch      *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := &stageRecorder{}
	cfg := config.Default()
	cfg.Paths.Output = t.TempDir()

	f := &fixture{
		rec: rec,
		cfg: cfg,
		generator: &mockGenerator{rec: rec, content: &types.FortuneContent{
			Title:         "寅年の運勢",
			NarrationText: "今日は良い日です。",
			MoodTag:       types.MoodEnergetic,
		}},
		selector:  &mockSelector{rec: rec},
		synth:     &mockSynth{rec: rec, duration: 45.0},
		renderer:  &mockRenderer{rec: rec},
		composer:  &mockComposer{rec: rec},
		publisher: &mockPublisher{rec: rec},
	}
	f.orch = New(cfg, f.generator, f.selector, f.synth, f.renderer, f.composer, f.publisher, nil)
	f.orch.now = func() time.Time { return time.Date(2026, 2, 14, 5, 30, 0, 0, time.UTC) }
	return f
}

func request() types.FortuneRequest {
	return types.FortuneRequest{Animal: "tora", Scope: types.ScopeDaily, Kind: types.KindShort}
}

func TestRunHappyPathSequencing(t *testing.T) {
	f := newFixture(t)

	artifact, err := f.orch.Run(context.Background(), request())
	require.NoError(t, err)

	// Music waits for the generated mood; everything after assets is
	// strictly sequential.
	require.Len(t, f.rec.calls, 6)
	assert.ElementsMatch(t, []string{"generate", "image"}, f.rec.calls[:2])
	assert.Equal(t, []string{"music", "synthesize", "render", "compose"}, f.rec.calls[2:])

	assert.Equal(t, []types.Mood{types.MoodEnergetic}, f.selector.musicMoods)
	assert.Equal(t, []float64{45.0}, f.renderer.durations, "render length derives from narration duration")

	assert.Equal(t, "tora", artifact.Animal)
	assert.Equal(t, types.MoodEnergetic, artifact.MoodTag)
	assert.Contains(t, filepath.Base(artifact.Path), "tora_daily_20260214_")
	assert.InDelta(t, 45.0, artifact.DurationSec, 0.001)
}

func TestRunWithoutPublishSkipsPublisher(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Run(context.Background(), request())
	require.NoError(t, err)
	assert.NotContains(t, f.rec.calls, "publish")
}

func TestRunPublishesWhenRequested(t *testing.T) {
	f := newFixture(t)
	req := request()
	req.Publish = true

	_, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, f.rec.calls, "publish")
	require.Len(t, f.publisher.metas, 1)
	assert.Equal(t, "寅年の運勢", f.publisher.metas[0].Title)
}

func TestRunContentFailureStopsBeforeAnyMedia(t *testing.T) {
	f := newFixture(t)
	f.generator.err = fmt.Errorf("%w: content generation unavailable", types.ErrTransient)
	f.generator.content = nil

	_, err := f.orch.Run(context.Background(), request())
	require.Error(t, err)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StageContentGenerated, runErr.Stage)

	// No downstream stage ran: no music, audio, or video work happened.
	assert.NotContains(t, f.rec.calls, "music")
	assert.NotContains(t, f.rec.calls, "synthesize")
	assert.NotContains(t, f.rec.calls, "render")
	assert.NotContains(t, f.rec.calls, "compose")

	// The only file in the output tree is the run-state record.
	var files []string
	filepath.Walk(f.cfg.Paths.Output, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, filepath.Base(path))
		}
		return nil
	})
	assert.Equal(t, []string{"run_state.json"}, files)
}

func TestRunStageAttribution(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name  string
		wire  func(f *fixture)
		stage Stage
	}{
		{"image failure", func(f *fixture) { f.selector.imageErr = boom }, StageAssetsResolved},
		{"music failure", func(f *fixture) { f.selector.musicErr = boom }, StageAssetsResolved},
		{"synthesis failure", func(f *fixture) { f.synth.err = boom }, StageNarrationReady},
		{"render failure", func(f *fixture) { f.renderer.err = boom }, StageSceneRendered},
		{"compose failure", func(f *fixture) { f.composer.err = boom }, StageComposed},
		{"publish failure", func(f *fixture) { f.publisher.err = boom }, StagePublished},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.wire(f)
			req := request()
			req.Publish = true

			_, err := f.orch.Run(context.Background(), req)
			require.Error(t, err)

			var runErr *RunError
			require.ErrorAs(t, err, &runErr)
			assert.Equal(t, tc.stage, runErr.Stage)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestRunComposerReceivesMusicMatchingMood(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Run(context.Background(), request())
	require.NoError(t, err)

	require.Len(t, f.composer.inputs, 1)
	in := f.composer.inputs[0]
	assert.Contains(t, in.MusicPath, string(types.MoodEnergetic))
	assert.Equal(t, types.MoodEnergetic, in.Mood)
}

// withAssetTree swaps the mock selector for the real filesystem selector
// over a minimal asset tree matching the fixture request.
func withAssetTree(t *testing.T, f *fixture) (imageDir, musicDir string) {
	t.Helper()
	root := t.TempDir()
	f.cfg.Paths.AssetsImages = filepath.Join(root, "images")
	f.cfg.Paths.AssetsMusic = filepath.Join(root, "music")

	imageDir = filepath.Join(f.cfg.Paths.AssetsImages, "eto_daily")
	musicDir = filepath.Join(f.cfg.Paths.AssetsMusic, string(types.MoodEnergetic))
	require.NoError(t, os.MkdirAll(imageDir, 0755))
	require.NoError(t, os.MkdirAll(musicDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "tora.png"), []byte("png-bytes"), 0644))

	f.orch.selector = assets.New(f.cfg)
	return imageDir, musicDir
}

func TestRunWithFilesystemAssetSelector(t *testing.T) {
	f := newFixture(t)
	imageDir, musicDir := withAssetTree(t, f)
	require.NoError(t, os.WriteFile(filepath.Join(musicDir, "track.mp3"), []byte("mp3-bytes"), 0644))

	artifact, err := f.orch.Run(context.Background(), request())
	require.NoError(t, err)

	require.Len(t, f.composer.inputs, 1)
	in := f.composer.inputs[0]
	assert.Equal(t, filepath.Join(imageDir, "tora.png"), f.renderer.bundles[0].ImagePath)
	assert.Equal(t, filepath.Join(musicDir, "track.mp3"), in.MusicPath)
	assert.Equal(t, "tora", artifact.Animal)
}

func TestRunRejectsZeroByteMusicAtAssetResolution(t *testing.T) {
	f := newFixture(t)
	_, musicDir := withAssetTree(t, f)
	require.NoError(t, os.WriteFile(filepath.Join(musicDir, "track.mp3"), nil, 0644))

	_, err := f.orch.Run(context.Background(), request())
	require.Error(t, err)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StageAssetsResolved, runErr.Stage)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.NotContains(t, f.rec.calls, "synthesize", "no audio work after asset resolution fails")
}

func TestNextTransitions(t *testing.T) {
	want := map[Stage]Stage{
		StageRequested:        StageContentGenerated,
		StageContentGenerated: StageAssetsResolved,
		StageAssetsResolved:   StageNarrationReady,
		StageNarrationReady:   StageSceneRendered,
		StageSceneRendered:    StageComposed,
		StageComposed:         StagePublished,
		StagePublished:        StageDone,
	}
	for from, to := range want {
		got, ok := Next(from)
		require.True(t, ok, "stage %s", from)
		assert.Equal(t, to, got)
	}

	_, ok := Next(StageDone)
	assert.False(t, ok, "Done is terminal")
	_, ok = Next(Stage("bogus"))
	assert.False(t, ok)
}

func TestRunErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("%w: no music", types.ErrConfiguration)
	err := &RunError{Stage: StageAssetsResolved, Err: cause}
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Contains(t, err.Error(), "AssetsResolved")
}
