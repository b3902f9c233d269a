package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/config"
)

const seedYAML = `
users:
  - name: Dana
    email: dana@example.com
categories:
  - name: Geography
    color: "#00897B"
    questions:
      - text: Capital of France?
        difficulty: easy
        answers:
          - text: Paris
            correct: true
          - text: Lyon
  - name: Retired
    active: false
    questions:
      - text: Old question?
        answers:
          - text: "yes"
            correct: true
          - text: "no"
`

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	seed, err := loadSeed(path)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if len(seed.Users) != 1 || len(seed.Categories) != 2 {
		t.Fatalf("unexpected seed %+v", seed)
	}
	if seed.Categories[0].Active != nil || seed.Categories[1].Active == nil || *seed.Categories[1].Active {
		t.Fatalf("active flag not decoded as optional")
	}
	if !seed.Categories[0].Questions[0].Answers[0].Correct {
		t.Fatalf("expected first answer correct")
	}

	if _, err := loadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	empty, err := loadSeed("")
	if err != nil || len(empty.Categories) == 0 {
		t.Fatalf("expected built-in sample catalog, got %v", err)
	}
}

func TestApplySeedIsRepeatable(t *testing.T) {
	ctx := context.Background()
	svc, err := buildServices(ctx, config.Default())
	if err != nil {
		t.Fatalf("build services: %v", err)
	}
	defer svc.close()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	seed, err := loadSeed(path)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := applySeed(ctx, svc.store, svc.catalog, seed); err != nil {
			t.Fatalf("apply seed run %d: %v", i+1, err)
		}
	}

	categories, err := svc.quiz.PlayableCategories(ctx)
	if err != nil {
		t.Fatalf("playable categories: %v", err)
	}
	if len(categories) != 1 || categories[0].Name != "Geography" || categories[0].ActiveQuestions != 1 {
		t.Fatalf("expected only Geography with one question, got %+v", categories)
	}
}

func TestSampleCatalogIsPlayable(t *testing.T) {
	ctx := context.Background()
	svc, err := buildServices(ctx, config.Default())
	if err != nil {
		t.Fatalf("build services: %v", err)
	}
	defer svc.close()

	if err := applySeed(ctx, svc.store, svc.catalog, sampleCatalog()); err != nil {
		t.Fatalf("apply sample: %v", err)
	}
	categories, err := svc.quiz.PlayableCategories(ctx)
	if err != nil {
		t.Fatalf("playable categories: %v", err)
	}
	if len(categories) != 3 {
		t.Fatalf("expected 3 playable categories, got %d", len(categories))
	}

	started, err := svc.quiz.Start(ctx, 1, app.StartRequest{CategoryID: categories[0].ID, QuestionCount: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(started.Questions) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(started.Questions))
	}
}

func TestBuildServicesRejectsBadProgression(t *testing.T) {
	cfg := config.Default()
	cfg.Progression.Multiplier = 0.5
	if _, err := buildServices(context.Background(), cfg); err == nil {
		t.Fatalf("expected invalid progression rules to fail")
	}
}
