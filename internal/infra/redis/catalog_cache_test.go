package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
	"quiz-xp-service/internal/infra/memory"
)

func TestCatalogCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store, categoryID := seededStore(t)
	loader := &countingCatalog{Catalog: store}
	cache := NewCatalogCache(newClient(mr), loader, time.Minute)

	qs, err := cache.ListActiveQuestions(ctx, categoryID, "")
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(qs) != 5 || loader.calls != 1 {
		t.Fatalf("expected 5 questions from one load, got %d (%d calls)", len(qs), loader.calls)
	}
	key := questionsKey(categoryID, "")
	if !mr.Exists(key) {
		t.Fatalf("expected %s to be cached", key)
	}
	if ttl := mr.TTL(key); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with jitter, got %s", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, _ := cache.ListActiveQuestions(ctx, categoryID, "")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(cached[0].Answers) != 2 || !cached[0].Answers[1].Correct {
		t.Fatalf("expected answers to round-trip, got %+v", cached[0].Answers)
	}

	if err := cache.Invalidate(ctx, categoryID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists(key) {
		t.Fatalf("expected key removed on invalidate")
	}
	_, _ = cache.ListActiveQuestions(ctx, categoryID, "")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d", loader.calls)
	}
}

func TestCatalogCacheIgnoresCorruptEntries(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store, categoryID := seededStore(t)
	loader := &countingCatalog{Catalog: store}
	cache := NewCatalogCache(newClient(mr), loader, time.Minute)

	_ = mr.Set(questionsKey(categoryID, domain.DifficultyEasy), "not json")
	qs, err := cache.ListActiveQuestions(context.Background(), categoryID, domain.DifficultyEasy)
	if err != nil || len(qs) != 5 || loader.calls != 1 {
		t.Fatalf("expected fallback to loader, got %d questions %v (%d calls)", len(qs), err, loader.calls)
	}
}

type countingCatalog struct {
	app.Catalog
	calls int
}

func (c *countingCatalog) ListActiveQuestions(ctx context.Context, categoryID int64, difficulty domain.Difficulty) ([]domain.Question, error) {
	c.calls++
	return c.Catalog.ListActiveQuestions(ctx, categoryID, difficulty)
}

func seededStore(t *testing.T) (*memory.Store, int64) {
	t.Helper()
	store := memory.NewStore()
	var categoryID int64
	err := store.RunInTx(context.Background(), func(ctx context.Context, repo app.Repository) error {
		c := domain.Category{Name: "Math", Slug: "math", Active: true}
		if err := repo.CreateCategory(ctx, &c); err != nil {
			return err
		}
		categoryID = c.ID
		for i := 0; i < 5; i++ {
			q := domain.Question{
				CategoryID: c.ID,
				Text:       "What is 2 + 2?",
				Difficulty: domain.DifficultyEasy,
				Active:     true,
				Answers:    []domain.Answer{{Text: "3"}, {Text: "4", Correct: true}},
			}
			if err := repo.CreateQuestion(ctx, &q); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store, categoryID
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
