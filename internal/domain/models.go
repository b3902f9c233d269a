package domain

import (
	"fmt"
	"time"
)

// Difficulty is the question difficulty; the empty value means "any".
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty accepts "", easy, medium or hard.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch d := Difficulty(raw); d {
	case "", DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	default:
		return "", Validation("unknown difficulty %q", raw)
	}
}

// Category groups questions; only active categories can host new sessions.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
	Active      bool   `json:"active"`
}

// CategorySummary is a category with its count of active questions.
type CategorySummary struct {
	Category
	ActiveQuestions int `json:"activeQuestions"`
}

// Answer is one option of a multiple-choice question.
type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"questionId"`
	Text       string `json:"text"`
	Correct    bool   `json:"correct"`
}

// Question models an MCQ question with 2-6 answers, at least one correct.
type Question struct {
	ID          int64      `json:"id"`
	CategoryID  int64      `json:"categoryId"`
	Text        string     `json:"text"`
	Difficulty  Difficulty `json:"difficulty"`
	Explanation string     `json:"explanation"`
	Active      bool       `json:"active"`
	Answers     []Answer   `json:"answers"`
}

// FindAnswer returns the answer with the given id if it belongs to q.
func (q Question) FindAnswer(id int64) (Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == id {
			return a, true
		}
	}
	return Answer{}, false
}

// CorrectAnswer returns the first answer flagged correct.
func (q Question) CorrectAnswer() (Answer, bool) {
	for _, a := range q.Answers {
		if a.Correct {
			return a, true
		}
	}
	return Answer{}, false
}

// User carries the aggregate progression of a player.
type User struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Credential string `json:"-"`
	Admin      bool   `json:"admin"`
	TotalXP    int    `json:"totalXp"`
	Level      int    `json:"level"`
}

// SessionState is derived from the session row and its answered questions.
type SessionState string

const (
	SessionCreated    SessionState = "created"
	SessionInProgress SessionState = "in_progress"
	SessionCompleted  SessionState = "completed"
)

// SessionSettings is the free-form settings blob recorded at start.
type SessionSettings struct {
	RequestedCount   int        `json:"requestedCount"`
	Difficulty       Difficulty `json:"difficulty,omitempty"`
	TimeLimitSeconds int        `json:"timeLimitSeconds"`
}

// QuizSession is one attempt of a user at a sampled question set.
type QuizSession struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	CategoryID    int64           `json:"categoryId"`
	QuestionCount int             `json:"questionCount"`
	Completed     bool            `json:"completed"`
	Score         *int            `json:"score,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	Settings      SessionSettings `json:"settings"`
}

// State derives the lifecycle state given how many questions were answered.
func (s QuizSession) State(answered int) SessionState {
	switch {
	case s.Completed:
		return SessionCompleted
	case answered > 0:
		return SessionInProgress
	default:
		return SessionCreated
	}
}

// SessionQuestion materializes "this question is part of this session".
type SessionQuestion struct {
	SessionID  int64      `json:"sessionId"`
	QuestionID int64      `json:"questionId"`
	Position   int        `json:"position"`
	Answered   bool       `json:"answered"`
	Correct    bool       `json:"correct"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
	TimeTaken  *int       `json:"timeTaken,omitempty"`
}

// UserResponse is the answer a user chose for a question within a session.
type UserResponse struct {
	SessionID  int64     `json:"sessionId"`
	UserID     int64     `json:"userId"`
	QuestionID int64     `json:"questionId"`
	AnswerID   int64     `json:"answerId"`
	Correct    bool      `json:"correct"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// UserStat aggregates a user's progression within one category.
type UserStat struct {
	UserID         int64 `json:"userId"`
	CategoryID     int64 `json:"categoryId"`
	TotalAnswered  int   `json:"totalQuestionsAnswered"`
	CorrectAnswers int   `json:"correctAnswers"`
	XP             int   `json:"xp"`
	Level          int   `json:"level"`
}

// NewUserStat is the row created on a user's first completion in a category.
func NewUserStat(userID, categoryID int64) UserStat {
	return UserStat{UserID: userID, CategoryID: categoryID, Level: 1}
}

// Key identifies the stat row in sorted-set indexes.
func (s UserStat) Key() string {
	return fmt.Sprintf("%d:%d", s.UserID, s.CategoryID)
}

// LeaderboardEntry pairs a stat row with its owner's public identity.
type LeaderboardEntry struct {
	UserID     int64  `json:"userId"`
	UserName   string `json:"userName"`
	CategoryID int64  `json:"categoryId"`
	XP         int    `json:"xp"`
	Level      int    `json:"level"`
}
