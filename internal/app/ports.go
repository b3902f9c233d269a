package app

import (
	"context"
	"time"

	"quiz-xp-service/internal/domain"
)

// Catalog is the read side of categories, questions and answers.
type Catalog interface {
	// ListActiveQuestions returns the active questions of a category with
	// their answers; an empty difficulty means any.
	ListActiveQuestions(ctx context.Context, categoryID int64, difficulty domain.Difficulty) ([]domain.Question, error)
	GetQuestion(ctx context.Context, id int64) (domain.Question, error)
	GetAnswer(ctx context.Context, id int64) (domain.Answer, error)
	GetCategory(ctx context.Context, id int64) (domain.Category, error)
	// ListActiveCategories returns active categories ordered by name.
	ListActiveCategories(ctx context.Context) ([]domain.CategorySummary, error)
}

// SessionRepository persists quiz sessions and what happened inside them.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.QuizSession, questions []domain.SessionQuestion) error
	// GetSession returns domain.ErrSessionNotFound unless the session exists and belongs to userID.
	GetSession(ctx context.Context, userID, sessionID int64) (domain.QuizSession, error)
	ListSessionQuestions(ctx context.Context, sessionID int64) ([]domain.SessionQuestion, error)
	MarkAnswered(ctx context.Context, question domain.SessionQuestion) error
	UpsertResponse(ctx context.Context, response domain.UserResponse) error
	ListResponses(ctx context.Context, sessionID int64) ([]domain.UserResponse, error)
	// CompleteSession only updates a session that is still incomplete and
	// returns domain.ErrAlreadyCompleted otherwise.
	CompleteSession(ctx context.Context, sessionID int64, score int, at time.Time) error
	ListSessions(ctx context.Context, userID int64, limit int) ([]domain.QuizSession, error)
}

// StatRepository persists per-category progression and user aggregates.
type StatRepository interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	// AddUserProgress increments total_xp and level of a user.
	AddUserProgress(ctx context.Context, userID int64, xp, levels int) error
	GetStat(ctx context.Context, userID, categoryID int64) (domain.UserStat, bool, error)
	SaveStat(ctx context.Context, stat domain.UserStat) error
	ListStats(ctx context.Context, userID int64) ([]domain.UserStat, error)
	// TopStats orders stat rows by xp desc; categoryID 0 means all categories.
	TopStats(ctx context.Context, categoryID int64, limit int) ([]domain.LeaderboardEntry, error)
	// CountStatsAbove counts stat rows with strictly greater xp; categoryID 0 means all.
	CountStatsAbove(ctx context.Context, categoryID int64, xp int) (int, error)
}

// CatalogWriter holds the catalog mutations the core owns.
type CatalogWriter interface {
	CreateCategory(ctx context.Context, category *domain.Category) error
	DeleteCategory(ctx context.Context, id int64) error
	CountQuestions(ctx context.Context, categoryID int64) (int, error)
	// CreateQuestion inserts the question and its answers, filling in ids.
	CreateQuestion(ctx context.Context, question *domain.Question) error
	// ReplaceAnswers keeps answers whose id belongs to the question, inserts
	// the rest and deletes the ones not listed.
	ReplaceAnswers(ctx context.Context, questionID int64, answers []domain.Answer) ([]domain.Answer, error)
	DeleteAnswers(ctx context.Context, questionID int64) error
	DeleteQuestion(ctx context.Context, id int64) error
}

// Repository is everything reachable inside one store transaction.
type Repository interface {
	SessionRepository
	StatRepository
	CatalogWriter
}

// Store runs work against the durable store. RunInTx commits only when fn
// returns nil; View is for reads.
type Store interface {
	View(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// SessionPointers tracks the current session handle per user.
type SessionPointers interface {
	Set(ctx context.Context, userID, sessionID int64) error
	Get(ctx context.Context, userID int64) (int64, bool, error)
	Clear(ctx context.Context, userID int64) error
}

// RankIndex is an optional fast path for rank queries.
type RankIndex interface {
	Record(ctx context.Context, stat domain.UserStat) error
	// Rank returns false when the member is not indexed; categoryID 0 means global.
	Rank(ctx context.Context, categoryID int64, stat domain.UserStat) (int, bool, error)
	// Size is the number of indexed members of a scope.
	Size(ctx context.Context, categoryID int64) (int, error)
	// Rebuild replaces every member of a scope with stats.
	Rebuild(ctx context.Context, categoryID int64, stats []domain.UserStat) error
}

// CatalogInvalidator drops cached question sets of a category.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, categoryID int64) error
}
