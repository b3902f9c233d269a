package memory

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
)

// CatalogCache caches active question sets per (category, difficulty) with a
// TTL to avoid rereading the catalog for every new session. Other catalog
// reads pass through.
type CatalogCache struct {
	app.Catalog

	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestions
	// gens counts invalidations per category; a load only stores its
	// result if the generation it started under is still current.
	gens map[int64]uint64
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCatalogCache(loader app.Catalog, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		Catalog: loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedQuestions),
		gens:    make(map[int64]uint64),
	}
}

func (c *CatalogCache) ListActiveQuestions(ctx context.Context, categoryID int64, difficulty domain.Difficulty) ([]domain.Question, error) {
	key := cacheKey(categoryID, difficulty)
	if qs, ok := c.lookup(key); ok {
		return qs, nil
	}

	gen := c.generation(categoryID)
	result, err, _ := c.sf.Do(fmt.Sprintf("%s#%d", key, gen), func() (interface{}, error) {
		if qs, ok := c.lookup(key); ok {
			return qs, nil
		}
		now := c.clock()
		qs, err := c.Catalog.ListActiveQuestions(ctx, categoryID, difficulty)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gens[categoryID] == gen {
			c.cache[key] = cachedQuestions{questions: qs, expiresAt: now.Add(c.ttlWithJitter())}
		}
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return copyQuestions(result.([]domain.Question)), nil
}

// Invalidate drops every cached question set of the category.
func (c *CatalogCache) Invalidate(_ context.Context, categoryID int64) error {
	prefix := fmt.Sprintf("%d:", categoryID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[categoryID]++
	for key := range c.cache {
		if strings.HasPrefix(key, prefix) {
			delete(c.cache, key)
		}
	}
	return nil
}

func (c *CatalogCache) generation(categoryID int64) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[categoryID]
}

func (c *CatalogCache) lookup(key string) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return copyQuestions(entry.questions), true
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func cacheKey(categoryID int64, difficulty domain.Difficulty) string {
	d := string(difficulty)
	if d == "" {
		d = "any"
	}
	return fmt.Sprintf("%d:%s", categoryID, d)
}

func copyQuestions(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		out[i] = copyQuestion(q)
	}
	return out
}
