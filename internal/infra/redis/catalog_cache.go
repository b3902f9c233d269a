package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
)

var cachedDifficulties = []domain.Difficulty{"", domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard}

// CatalogCache keeps active question sets in Redis and falls back to the
// wrapped catalog on a miss. Sets are stored as JSON under
// catalog:category:{id}:questions:{difficulty|any}.
type CatalogCache struct {
	app.Catalog

	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCatalogCache(client *redis.Client, loader app.Catalog, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		Catalog: loader,
		client:  client,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) ListActiveQuestions(ctx context.Context, categoryID int64, difficulty domain.Difficulty) ([]domain.Question, error) {
	key := questionsKey(categoryID, difficulty)
	if qs, ok := c.read(ctx, key); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := c.read(ctx, key); ok {
			return qs, nil
		}
		qs, err := c.Catalog.ListActiveQuestions(ctx, categoryID, difficulty)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(qs)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, payload, c.ttlWithJitter()).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to cache question set")
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate deletes every cached question set of the category.
func (c *CatalogCache) Invalidate(ctx context.Context, categoryID int64) error {
	keys := make([]string, len(cachedDifficulties))
	for i, d := range cachedDifficulties {
		keys[i] = questionsKey(categoryID, d)
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *CatalogCache) read(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
		}
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dropping corrupt catalog cache entry")
		return nil, false
	}
	return qs, true
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func questionsKey(categoryID int64, difficulty domain.Difficulty) string {
	d := string(difficulty)
	if d == "" {
		d = "any"
	}
	return "catalog:category:" + strconv.FormatInt(categoryID, 10) + ":questions:" + d
}
