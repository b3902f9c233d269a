package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-xp-service/internal/domain"
)

const (
	DefaultMinQuestions = 5
	DefaultMaxQuestions = 20
)

// Sampler draws randomized question sets for new sessions.
type Sampler struct {
	catalog Catalog
	min     int
	max     int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSampler builds a sampler; a nil rnd is seeded from the clock.
func NewSampler(catalog Catalog, min, max int, rnd *rand.Rand) *Sampler {
	if min <= 0 {
		min = DefaultMinQuestions
	}
	if max < min {
		max = DefaultMaxQuestions
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Sampler{catalog: catalog, min: min, max: max, rnd: rnd}
}

// ValidateCount checks the requested question count against the bounds.
func (s *Sampler) ValidateCount(n int) error {
	if n < s.min || n > s.max {
		return domain.Validation("question count must be between %d and %d, got %d", s.min, s.max, n)
	}
	return nil
}

// Sample returns up to n active questions of the category in random order,
// each with its answers shuffled. Every call is an independent draw.
func (s *Sampler) Sample(ctx context.Context, categoryID int64, difficulty domain.Difficulty, n int) ([]domain.Question, error) {
	if err := s.ValidateCount(n); err != nil {
		return nil, err
	}
	all, err := s.catalog.ListActiveQuestions(ctx, categoryID, difficulty)
	if err != nil {
		return nil, err
	}

	pool := make([]domain.Question, 0, len(all))
	for _, q := range all {
		if !q.Active || q.CategoryID != categoryID {
			continue
		}
		if difficulty != "" && q.Difficulty != difficulty {
			continue
		}
		pool = append(pool, q)
	}
	if len(pool) < s.min {
		return nil, domain.InsufficientQuestions(categoryID, difficulty, len(pool), s.min)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > n {
		pool = pool[:n]
	}
	for i := range pool {
		// copy so cached catalog slices are never reordered in place
		answers := append([]domain.Answer(nil), pool[i].Answers...)
		s.rnd.Shuffle(len(answers), func(a, b int) { answers[a], answers[b] = answers[b], answers[a] })
		pool[i].Answers = answers
	}
	return pool, nil
}
