package app

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"quiz-xp-service/internal/domain"
)

const (
	minAnswers = 2
	maxAnswers = 6
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// CatalogService holds the catalog writes whose rules the core enforces.
type CatalogService struct {
	store       Store
	catalog     Catalog
	invalidator CatalogInvalidator
}

// NewCatalogService builds the service; invalidator may be nil.
func NewCatalogService(store Store, catalog Catalog, invalidator CatalogInvalidator) *CatalogService {
	return &CatalogService{store: store, catalog: catalog, invalidator: invalidator}
}

// CreateCategory validates and stores a category, deriving the slug from the name.
func (s *CatalogService) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return domain.Category{}, domain.Validation("category name is required")
	}
	if c.Color != "" && !hexColor.MatchString(c.Color) {
		return domain.Category{}, domain.Validation("category color %q is not a #RRGGBB value", c.Color)
	}
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.CreateCategory(ctx, &c)
	})
	if err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

// DeleteCategory removes a category that no longer owns questions.
func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	err := s.store.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		n, err := repo.CountQuestions(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrCategoryHasQuestions
		}
		return repo.DeleteCategory(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// CreateQuestion stores a question with its answers.
func (s *CatalogService) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if err := validateQuestion(q); err != nil {
		return domain.Question{}, err
	}
	if _, err := s.catalog.GetCategory(ctx, q.CategoryID); err != nil {
		return domain.Question{}, err
	}
	if q.Difficulty == "" {
		q.Difficulty = domain.DifficultyMedium
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.CreateQuestion(ctx, &q)
	})
	if err != nil {
		return domain.Question{}, err
	}
	s.invalidate(ctx, q.CategoryID)
	return q, nil
}

// ReplaceAnswers swaps the answer set of a question in one transaction.
func (s *CatalogService) ReplaceAnswers(ctx context.Context, questionID int64, answers []domain.Answer) (domain.Question, error) {
	if err := validateAnswers(answers); err != nil {
		return domain.Question{}, err
	}
	q, err := s.catalog.GetQuestion(ctx, questionID)
	if err != nil {
		return domain.Question{}, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		saved, err := repo.ReplaceAnswers(ctx, questionID, answers)
		if err != nil {
			return err
		}
		q.Answers = saved
		return nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	s.invalidate(ctx, q.CategoryID)
	return q, nil
}

// DeleteQuestion deletes the question's answers and then the question, atomically.
func (s *CatalogService) DeleteQuestion(ctx context.Context, id int64) error {
	q, err := s.catalog.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.DeleteAnswers(ctx, id); err != nil {
			return err
		}
		return repo.DeleteQuestion(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, q.CategoryID)
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, categoryID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, categoryID); err != nil {
		log.Warn().Err(err).Int64("category_id", categoryID).Msg("failed to invalidate catalog cache")
	}
}

func validateQuestion(q domain.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return domain.Validation("question text is required")
	}
	if q.CategoryID == 0 {
		return domain.Validation("question category is required")
	}
	if _, err := domain.ParseDifficulty(string(q.Difficulty)); err != nil {
		return err
	}
	return validateAnswers(q.Answers)
}

func validateAnswers(answers []domain.Answer) error {
	if len(answers) < minAnswers || len(answers) > maxAnswers {
		return domain.Validation("a question needs between %d and %d answers, got %d", minAnswers, maxAnswers, len(answers))
	}
	hasCorrect := false
	for _, a := range answers {
		if strings.TrimSpace(a.Text) == "" {
			return domain.Validation("answer text is required")
		}
		hasCorrect = hasCorrect || a.Correct
	}
	if !hasCorrect {
		return domain.Validation("at least one answer must be marked correct")
	}
	return nil
}

// Slugify lower-cases name and joins its letter/digit runs with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
