package app_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
)

func TestSamplerRequiresMinimumPool(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, 4)
	sampler := app.NewSampler(f.store, 5, 20, rand.New(rand.NewSource(1)))
	_, err := sampler.Sample(ctx, f.math, "", 5)
	if !errors.Is(err, domain.ErrInsufficientQuestions) || domain.KindOf(err) != domain.KindInsufficientData {
		t.Fatalf("expected insufficient questions with 4 available, got %v", err)
	}

	f = newFixture(t, 5)
	sampler = app.NewSampler(f.store, 5, 20, rand.New(rand.NewSource(1)))
	qs, err := sampler.Sample(ctx, f.math, "", 5)
	if err != nil || len(qs) != 5 {
		t.Fatalf("expected 5 questions, got %d %v", len(qs), err)
	}

	// Science has 3 questions, far below a request for 10
	if _, err := sampler.Sample(ctx, f.science, "", 10); !errors.Is(err, domain.ErrInsufficientQuestions) {
		t.Fatalf("expected insufficient science questions, got %v", err)
	}
}

func TestSamplerReturnsAvailableWhenFewerThanRequested(t *testing.T) {
	f := newFixture(t, 7)
	sampler := app.NewSampler(f.store, 5, 20, rand.New(rand.NewSource(1)))
	qs, err := sampler.Sample(context.Background(), f.math, "", 12)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(qs) != 7 {
		t.Fatalf("expected all 7 questions, got %d", len(qs))
	}
}

func TestSamplerFiltersDifficulty(t *testing.T) {
	f := newFixture(t, 6)
	sampler := app.NewSampler(f.store, 5, 20, rand.New(rand.NewSource(1)))
	if _, err := sampler.Sample(context.Background(), f.math, domain.DifficultyHard, 5); !errors.Is(err, domain.ErrInsufficientQuestions) {
		t.Fatalf("expected no hard questions, got %v", err)
	}
	qs, err := sampler.Sample(context.Background(), f.math, domain.DifficultyEasy, 5)
	if err != nil || len(qs) != 5 {
		t.Fatalf("expected 5 easy questions, got %d %v", len(qs), err)
	}
}

func TestSamplerValidatesCount(t *testing.T) {
	f := newFixture(t, 5)
	sampler := app.NewSampler(f.store, 5, 20, nil)
	for _, n := range []int{0, 4, 21} {
		if err := sampler.ValidateCount(n); domain.KindOf(err) != domain.KindValidation {
			t.Fatalf("expected validation error for %d, got %v", n, err)
		}
	}
	for _, n := range []int{5, 20} {
		if err := sampler.ValidateCount(n); err != nil {
			t.Fatalf("expected %d accepted, got %v", n, err)
		}
	}
}

func TestSamplerDrawsAreIndependent(t *testing.T) {
	f := newFixture(t, 20)
	sampler := app.NewSampler(f.store, 5, 20, rand.New(rand.NewSource(7)))

	orders := make(map[string]bool)
	for i := 0; i < 5; i++ {
		qs, err := sampler.Sample(context.Background(), f.math, "", 5)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		ids := make([]int64, len(qs))
		for j, q := range qs {
			ids[j] = q.ID
		}
		orders[fmt.Sprint(ids)] = true
	}
	if len(orders) < 2 {
		t.Fatalf("expected different draws across calls")
	}
}
