package assets

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"eto-fortune-pipeline/config"
	"eto-fortune-pipeline/types"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}
var musicExtensions = []string{".mp3", ".wav", ".m4a"}

// legacyImageFolder is the old flat photo folder kept as a fallback so
// existing asset trees keep working after the per-scope reorganization.
const legacyImageFolder = "12_photos"

// Selector resolves concrete image and music files from the static asset
// tree. Image lookup is deterministic; music lookup picks uniformly at
// random within the mood's folder.
type Selector struct {
	cfg *config.Config
	rng *rand.Rand
}

// New creates a Selector with a time-seeded random source.
func New(cfg *config.Config) *Selector {
	return NewWithRand(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand creates a Selector with an injected random source so tests
// can force deterministic music picks.
func NewWithRand(cfg *config.Config, rng *rand.Rand) *Selector {
	return &Selector{cfg: cfg, rng: rng}
}

// SelectImage returns the canonical animal image for (animal, scope):
// <assets_images>/eto_<scope>/<animal>.<ext>. A missing file is a fatal
// configuration error naming the expected path.
func (s *Selector) SelectImage(animal string, scope types.Scope) (string, error) {
	scopeDir := filepath.Join(s.cfg.Paths.AssetsImages, "eto_"+string(scope))

	if path, ok := findByBaseName(scopeDir, animal, imageExtensions); ok {
		log.Printf("[assets] image for %s/%s: %s", animal, scope, filepath.Base(path))
		return path, nil
	}

	// Legacy flat folder, same base-name contract.
	legacyDir := filepath.Join(s.cfg.Paths.AssetsImages, legacyImageFolder)
	if path, ok := findByBaseName(legacyDir, animal, imageExtensions); ok {
		log.Printf("[assets] image for %s/%s (legacy): %s", animal, scope, filepath.Base(path))
		return path, nil
	}

	expected := filepath.Join(scopeDir, animal+".png")
	return "", fmt.Errorf("%w: no image for animal %q scope %q (expected %s)",
		types.ErrConfiguration, animal, scope, expected)
}

// SelectMusic picks one track uniformly at random from the mood's folder.
// An empty or missing folder is a fatal configuration error; it never falls
// back to a different mood's folder, since that would mismatch the declared
// content tone.
func (s *Selector) SelectMusic(mood types.Mood) (string, error) {
	moodDir := filepath.Join(s.cfg.Paths.AssetsMusic, string(mood))

	tracks, err := listByExtension(moodDir, musicExtensions)
	if err != nil {
		return "", fmt.Errorf("%w: music folder for mood %q unreadable at %s: %v",
			types.ErrConfiguration, mood, moodDir, err)
	}
	if len(tracks) == 0 {
		return "", fmt.Errorf("%w: no music tracks for mood %q in %s",
			types.ErrConfiguration, mood, moodDir)
	}

	chosen := tracks[s.rng.Intn(len(tracks))]
	log.Printf("[assets] music for mood %q: %s", mood, filepath.Base(chosen))
	return chosen, nil
}

// Resolve looks up both halves of the bundle and verifies each file is
// non-empty before rendering is allowed to proceed.
func (s *Selector) Resolve(animal string, scope types.Scope, mood types.Mood) (*types.AssetBundle, error) {
	image, err := s.SelectImage(animal, scope)
	if err != nil {
		return nil, err
	}
	music, err := s.SelectMusic(mood)
	if err != nil {
		return nil, err
	}
	bundle := &types.AssetBundle{ImagePath: image, MusicPath: music}
	if err := VerifyBundle(bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// VerifyBundle confirms both resolved paths exist and are non-empty files.
func VerifyBundle(b *types.AssetBundle) error {
	for _, path := range []string{b.ImagePath, b.MusicPath} {
		fi, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: resolved asset missing: %s", types.ErrConfiguration, path)
		}
		if fi.Size() == 0 {
			return fmt.Errorf("%w: resolved asset is empty: %s", types.ErrConfiguration, path)
		}
	}
	return nil
}

// findByBaseName scans dir for a non-empty file whose base name matches key
// exactly (case-insensitive) with one of the allowed extensions.
func findByBaseName(dir, key string, extensions []string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	key = strings.ToLower(key)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		ext := filepath.Ext(name)
		if strings.TrimSuffix(name, ext) != key {
			continue
		}
		for _, allowed := range extensions {
			if ext == allowed {
				full := filepath.Join(dir, e.Name())
				if fi, err := os.Stat(full); err == nil && fi.Size() > 0 {
					return full, true
				}
			}
		}
	}
	return "", false
}

// listByExtension returns the non-empty files in dir with an allowed
// extension. Zero-byte files are excluded so a truncated download can never
// be selected into a bundle.
func listByExtension(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, allowed := range extensions {
			if ext == allowed {
				if fi, err := e.Info(); err == nil && fi.Size() > 0 {
					files = append(files, filepath.Join(dir, e.Name()))
				}
				break
			}
		}
	}
	return files, nil
}
