package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
)

func TestCatalogCacheCaches(t *testing.T) {
	ctx := context.Background()
	store, categoryID := seededStore(t, 6)
	loader := &countingCatalog{Catalog: store}
	cache := NewCatalogCache(loader, time.Minute)

	if _, err := cache.ListActiveQuestions(ctx, categoryID, ""); err != nil {
		t.Fatalf("list questions: %v", err)
	}
	qs, err := cache.ListActiveQuestions(ctx, categoryID, "")
	if err != nil {
		t.Fatalf("list questions 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if len(qs) != 6 {
		t.Fatalf("expected 6 questions, got %d", len(qs))
	}

	// a different difficulty filter is a separate entry
	if _, err := cache.ListActiveQuestions(ctx, categoryID, domain.DifficultyHard); err != nil {
		t.Fatalf("list hard questions: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected loader called per filter, got %d", loader.calls)
	}
}

func TestCatalogCacheExpiresAndInvalidates(t *testing.T) {
	ctx := context.Background()
	store, categoryID := seededStore(t, 5)
	loader := &countingCatalog{Catalog: store}
	cache := NewCatalogCache(loader, time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	_, _ = cache.ListActiveQuestions(ctx, categoryID, "")
	now = now.Add(2 * time.Minute)
	_, _ = cache.ListActiveQuestions(ctx, categoryID, "")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", loader.calls)
	}

	if err := cache.Invalidate(ctx, categoryID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.ListActiveQuestions(ctx, categoryID, "")
	if loader.calls != 3 {
		t.Fatalf("expected reload after invalidate, got %d calls", loader.calls)
	}
}

func TestCatalogCacheDropsLoadOverlappingInvalidate(t *testing.T) {
	ctx := context.Background()
	store, categoryID := seededStore(t, 5)
	loader := &blockingCatalog{Catalog: store, entered: make(chan struct{}), release: make(chan struct{})}
	cache := NewCatalogCache(loader, time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := cache.ListActiveQuestions(ctx, categoryID, "")
		done <- err
	}()
	<-loader.entered

	if err := cache.Invalidate(ctx, categoryID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	close(loader.release)
	if err := <-done; err != nil {
		t.Fatalf("list questions: %v", err)
	}

	if _, err := cache.ListActiveQuestions(ctx, categoryID, ""); err != nil {
		t.Fatalf("list questions after invalidate: %v", err)
	}
	if n := loader.count(); n != 2 {
		t.Fatalf("expected the load started before invalidate not to be cached, loader calls %d", n)
	}
	if _, err := cache.ListActiveQuestions(ctx, categoryID, ""); err != nil {
		t.Fatalf("list questions cached: %v", err)
	}
	if n := loader.count(); n != 2 {
		t.Fatalf("expected fresh load to be cached, loader calls %d", n)
	}
}

func TestCatalogCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store, categoryID := seededStore(t, 5)
	cache := NewCatalogCache(store, time.Minute)

	first, _ := cache.ListActiveQuestions(ctx, categoryID, "")
	first[0].Answers[0].Text = "mutated"

	second, _ := cache.ListActiveQuestions(ctx, categoryID, "")
	if second[0].Answers[0].Text == "mutated" {
		t.Fatalf("expected cached questions to be isolated from callers")
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

// blockingCatalog holds its first load until release is closed.
type blockingCatalog struct {
	app.Catalog
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (c *blockingCatalog) ListActiveQuestions(ctx context.Context, categoryID int64, difficulty domain.Difficulty) ([]domain.Question, error) {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()
	qs, err := c.Catalog.ListActiveQuestions(ctx, categoryID, difficulty)
	if first {
		close(c.entered)
		<-c.release
	}
	return qs, err
}

func (c *blockingCatalog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func seededStore(t *testing.T, questions int) (*Store, int64) {
	t.Helper()
	store := NewStore()
	var categoryID int64
	err := store.RunInTx(context.Background(), func(ctx context.Context, repo app.Repository) error {
		c := domain.Category{Name: "Math", Slug: "math", Active: true}
		if err := repo.CreateCategory(ctx, &c); err != nil {
			return err
		}
		categoryID = c.ID
		for i := 0; i < questions; i++ {
			q := domain.Question{
				CategoryID: c.ID,
				Text:       "What is 2 + 2?",
				Difficulty: domain.DifficultyEasy,
				Active:     true,
				Answers: []domain.Answer{
					{Text: "3"},
					{Text: "4", Correct: true},
				},
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
