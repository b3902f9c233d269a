package app_test

import (
	"context"
	"errors"
	"testing"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"General Knowledge":   "general-knowledge",
		"  Science & Nature ": "science-nature",
		"Géographie 101":      "géographie-101",
		"!!!":                 "",
	}
	for in, want := range cases {
		if got := app.Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCatalogServiceCategoryRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	inv := &recordingInvalidator{}
	svc := app.NewCatalogService(f.store, f.store, inv)

	if _, err := svc.CreateCategory(ctx, domain.Category{Name: "Art", Color: "blue"}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected invalid color rejected, got %v", err)
	}
	if _, err := svc.CreateCategory(ctx, domain.Category{Name: "  "}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected empty name rejected, got %v", err)
	}
	art, err := svc.CreateCategory(ctx, domain.Category{Name: "Modern Art", Color: "#A1B2C3", Active: true})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if art.ID == 0 || art.Slug != "modern-art" {
		t.Fatalf("unexpected category %+v", art)
	}

	if err := svc.DeleteCategory(ctx, f.math); !errors.Is(err, domain.ErrCategoryHasQuestions) {
		t.Fatalf("expected delete blocked by questions, got %v", err)
	}
	if err := svc.DeleteCategory(ctx, art.ID); err != nil {
		t.Fatalf("delete empty category: %v", err)
	}
	if _, err := f.store.GetCategory(ctx, art.ID); !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected category deleted, got %v", err)
	}
}

func TestCatalogServiceQuestionRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	inv := &recordingInvalidator{}
	svc := app.NewCatalogService(f.store, f.store, inv)

	base := domain.Question{CategoryID: f.science, Text: "Boiling point of water?", Difficulty: domain.DifficultyEasy, Active: true}

	one := base
	one.Answers = []domain.Answer{{Text: "100C", Correct: true}}
	if _, err := svc.CreateQuestion(ctx, one); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected single answer rejected, got %v", err)
	}
	none := base
	none.Answers = []domain.Answer{{Text: "50C"}, {Text: "70C"}}
	if _, err := svc.CreateQuestion(ctx, none); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected no correct answer rejected, got %v", err)
	}
	badDifficulty := base
	badDifficulty.Difficulty = "extreme"
	badDifficulty.Answers = []domain.Answer{{Text: "100C", Correct: true}, {Text: "50C"}}
	if _, err := svc.CreateQuestion(ctx, badDifficulty); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected unknown difficulty rejected, got %v", err)
	}
	orphan := base
	orphan.CategoryID = 999
	orphan.Answers = badDifficulty.Answers
	if _, err := svc.CreateQuestion(ctx, orphan); !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected unknown category rejected, got %v", err)
	}

	valid := base
	valid.Answers = []domain.Answer{{Text: "100C", Correct: true}, {Text: "50C"}}
	q, err := svc.CreateQuestion(ctx, valid)
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	if q.ID == 0 || q.Answers[0].ID == 0 || q.Answers[0].QuestionID != q.ID {
		t.Fatalf("expected ids assigned, got %+v", q)
	}
	if len(inv.calls) != 1 || inv.calls[0] != f.science {
		t.Fatalf("expected science cache invalidated, got %v", inv.calls)
	}

	replaced, err := svc.ReplaceAnswers(ctx, q.ID, []domain.Answer{q.Answers[0], {Text: "212F", Correct: true}, {Text: "0C"}})
	if err != nil {
		t.Fatalf("replace answers: %v", err)
	}
	if len(replaced.Answers) != 3 || replaced.Answers[0].ID != q.Answers[0].ID {
		t.Fatalf("unexpected replaced answers %+v", replaced.Answers)
	}
	if _, err := f.store.GetAnswer(ctx, q.Answers[1].ID); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected unlisted answer removed, got %v", err)
	}

	if err := svc.DeleteQuestion(ctx, q.ID); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	if _, err := f.store.GetQuestion(ctx, q.ID); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question deleted, got %v", err)
	}
	if _, err := f.store.GetAnswer(ctx, replaced.Answers[1].ID); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected answers deleted with question, got %v", err)
	}
	if len(inv.calls) != 3 {
		t.Fatalf("expected 3 invalidations, got %v", inv.calls)
	}
}

func TestCatalogServiceKeepsQuestionsInPlayedSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	inv := &recordingInvalidator{}
	svc := app.NewCatalogService(f.store, f.store, inv)

	started, err := f.quiz.Start(ctx, f.alice, app.StartRequest{CategoryID: f.math, QuestionCount: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := started.Questions[0].ID

	if err := svc.DeleteQuestion(ctx, id); !errors.Is(err, domain.ErrQuestionInUse) {
		t.Fatalf("expected question in use, got %v", err)
	}
	q, err := f.store.GetQuestion(ctx, id)
	if err != nil || len(q.Answers) == 0 {
		t.Fatalf("expected question kept with its answers, got %+v (%v)", q, err)
	}
	if len(inv.calls) != 0 {
		t.Fatalf("expected no invalidation for a refused delete, got %v", inv.calls)
	}
}

type recordingInvalidator struct {
	calls []int64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, categoryID int64) error {
	r.calls = append(r.calls, categoryID)
	return nil
}
