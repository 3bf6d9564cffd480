package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	fortune "eto-fortune-pipeline/01_fortune"
	assets "eto-fortune-pipeline/02_assets"
	narration "eto-fortune-pipeline/03_narration"
	scene "eto-fortune-pipeline/04_scene"
	compose "eto-fortune-pipeline/05_compose"
	metadata "eto-fortune-pipeline/06_metadata"
	upload "eto-fortune-pipeline/07_upload"
	"eto-fortune-pipeline/config"
	"eto-fortune-pipeline/orchestrator"
	"eto-fortune-pipeline/types"
)

// batchConcurrency bounds simultaneous runs; the renderer serializes its
// browser anyway, so this mostly overlaps the service calls.
const batchConcurrency = 2

func main() {
	// Load .env (local dev only, CI uses injected secrets)
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		animalFlag = flag.String("animal", "tora", "eto animal (romaji or English, e.g. tora / tiger)")
		scopeFlag  = flag.String("scope", "auto", "daily | monthly | yearly | auto")
		kindFlag   = flag.String("kind", "short", "short | detailed")
		publish    = flag.Bool("publish", false, "upload the finished video")
		all        = flag.Bool("all", false, "produce videos for all 12 animals")
		cronExpr   = flag.String("cron", "", "run unattended on this cron schedule")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("No config at %s, using defaults", *configPath)
			cfg = config.Default()
		} else {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	for _, dir := range []string{cfg.Paths.Output, cfg.Paths.Logs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create dir %s: %v", dir, err)
		}
	}

	kind, err := types.ParseKind(*kindFlag)
	if err != nil {
		log.Fatalf("Bad -kind: %v", err)
	}

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		log.Fatalf("Pipeline init failed: %v", err)
	}

	runBatch := func() {
		animals := []string{*animalFlag}
		if *all {
			animals = types.EtoAnimals
		}
		failures := runAll(context.Background(), orch, animals, *scopeFlag, kind, *publish)
		if failures == len(animals) {
			log.Fatalf("❌ All %d runs failed", failures)
		}
		if failures > 0 {
			log.Printf("⚠️  %d/%d runs failed, see run logs", failures, len(animals))
		}
	}

	if *cronExpr != "" {
		log.Printf("⏰ Scheduling pipeline on cron %q", *cronExpr)
		c := cron.New()
		if _, err := c.AddFunc(*cronExpr, runBatch); err != nil {
			log.Fatalf("Bad -cron expression: %v", err)
		}
		c.Run()
		return
	}

	runBatch()
}

func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, error) {
	gen, err := fortune.New(cfg)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(
		cfg,
		gen,
		assets.New(cfg),
		narration.New(cfg),
		scene.New(cfg),
		compose.New(cfg),
		upload.New(cfg),
		metadata.New(cfg),
	), nil
}

// runAll produces one video per animal, skip-and-continue on failure, and
// returns the failure count.
func runAll(ctx context.Context, orch *orchestrator.Orchestrator, animals []string, scopeFlag string, kind types.OutputKind, publish bool) int {
	g := new(errgroup.Group)
	g.SetLimit(batchConcurrency)

	results := make([]error, len(animals))
	for i, name := range animals {
		i, name := i, name
		g.Go(func() error {
			animal, err := types.NormalizeAnimal(name)
			if err != nil {
				results[i] = err
				return nil
			}
			scope, err := resolveScope(scopeFlag, kind, animal, time.Now())
			if err != nil {
				results[i] = err
				return nil
			}

			req := types.FortuneRequest{Animal: animal, Scope: scope, Kind: kind, Publish: publish}
			if _, err := orch.Run(ctx, req); err != nil {
				results[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	failures := 0
	for i, err := range results {
		if err != nil {
			failures++
			log.Printf("❌ %s: %v", animals[i], err)
		}
	}
	return failures
}

// resolveScope maps the scope flag to a concrete scope. "auto" follows the
// drip schedule: short videos are always daily; detailed videos get a
// yearly edition when January's day-of-month matches the animal's cycle
// index, a monthly edition when any month's day matches, and a daily deep
// dive otherwise.
func resolveScope(scopeFlag string, kind types.OutputKind, animal string, now time.Time) (types.Scope, error) {
	if scopeFlag != "auto" {
		return types.ParseScope(scopeFlag)
	}
	if kind == types.KindShort {
		return types.ScopeDaily, nil
	}
	idx := types.AnimalIndex(animal)
	if now.Month() == time.January && now.Day() == idx {
		return types.ScopeYearly, nil
	}
	if now.Day() == idx {
		return types.ScopeMonthly, nil
	}
	return types.ScopeDaily, nil
}
