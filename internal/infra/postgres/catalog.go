package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-xp-service/internal/domain"
)

const questionColumns = `
	SELECT q.id, q.category_id, q.text, q.difficulty, q.explanation, q.is_active,
	       a.id, a.text, a.is_correct
	FROM questions q
	LEFT JOIN answers a ON a.question_id = q.id`

// Catalog serves catalog reads straight from the pgx pool.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) ListActiveQuestions(ctx context.Context, categoryID int64, difficulty domain.Difficulty) ([]domain.Question, error) {
	rows, err := c.pool.Query(ctx, questionColumns+`
	WHERE q.category_id = $1 AND q.is_active AND ($2::text = '' OR q.difficulty = $2::text)
	ORDER BY q.id, a.id`, categoryID, string(difficulty))
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return scanQuestions(rows)
}

func (c *Catalog) GetQuestion(ctx context.Context, id int64) (domain.Question, error) {
	rows, err := c.pool.Query(ctx, questionColumns+`
	WHERE q.id = $1
	ORDER BY a.id`, id)
	if err != nil {
		return domain.Question{}, fmt.Errorf("get question: %w", err)
	}
	qs, err := scanQuestions(rows)
	if err != nil {
		return domain.Question{}, err
	}
	if len(qs) == 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return qs[0], nil
}

func (c *Catalog) GetAnswer(ctx context.Context, id int64) (domain.Answer, error) {
	var a domain.Answer
	err := c.pool.QueryRow(ctx, `SELECT id, question_id, text, is_correct FROM answers WHERE id = $1`, id).
		Scan(&a.ID, &a.QuestionID, &a.Text, &a.Correct)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	if err != nil {
		return domain.Answer{}, fmt.Errorf("get answer: %w", err)
	}
	return a, nil
}

func (c *Catalog) GetCategory(ctx context.Context, id int64) (domain.Category, error) {
	var cat domain.Category
	err := c.pool.QueryRow(ctx, `
	SELECT id, name, slug, description, color, icon, is_active
	FROM categories WHERE id = $1`, id).
		Scan(&cat.ID, &cat.Name, &cat.Slug, &cat.Description, &cat.Color, &cat.Icon, &cat.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	if err != nil {
		return domain.Category{}, fmt.Errorf("get category: %w", err)
	}
	return cat, nil
}

func (c *Catalog) ListActiveCategories(ctx context.Context) ([]domain.CategorySummary, error) {
	rows, err := c.pool.Query(ctx, `
	SELECT c.id, c.name, c.slug, c.description, c.color, c.icon, c.is_active,
	       COUNT(q.id) FILTER (WHERE q.is_active)
	FROM categories c
	LEFT JOIN questions q ON q.category_id = c.id
	WHERE c.is_active
	GROUP BY c.id
	ORDER BY c.name, c.id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CategorySummary, 0)
	for rows.Next() {
		var s domain.CategorySummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Slug, &s.Description, &s.Color, &s.Icon, &s.Active, &s.ActiveQuestions); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// scanQuestions folds joined question/answer rows ordered by question id.
func scanQuestions(rows pgx.Rows) ([]domain.Question, error) {
	defer rows.Close()

	out := make([]domain.Question, 0)
	for rows.Next() {
		var (
			q          domain.Question
			difficulty string
			answerID   *int64
			answerText *string
			correct    *bool
		)
		if err := rows.Scan(&q.ID, &q.CategoryID, &q.Text, &difficulty, &q.Explanation, &q.Active, &answerID, &answerText, &correct); err != nil {
			return nil, err
		}
		q.Difficulty = domain.Difficulty(difficulty)
		if n := len(out); n == 0 || out[n-1].ID != q.ID {
			out = append(out, q)
		}
		if answerID != nil {
			last := &out[len(out)-1]
			last.Answers = append(last.Answers, domain.Answer{
				ID:         *answerID,
				QuestionID: q.ID,
				Text:       *answerText,
				Correct:    *correct,
			})
		}
	}
	return out, rows.Err()
}
