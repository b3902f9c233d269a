package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"quiz-xp-service/internal/domain"
)

type categoryModel struct {
	bun.BaseModel `bun:"table:categories"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Name        string    `bun:"name,notnull"`
	Slug        string    `bun:"slug,notnull"`
	Description string    `bun:"description,notnull"`
	Color       string    `bun:"color,notnull"`
	Icon        string    `bun:"icon,notnull"`
	Active      bool      `bun:"is_active,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type questionModel struct {
	bun.BaseModel `bun:"table:questions"`

	ID          int64     `bun:"id,pk,autoincrement"`
	CategoryID  int64     `bun:"category_id,notnull"`
	Text        string    `bun:"text,notnull"`
	Difficulty  string    `bun:"difficulty,notnull"`
	Explanation string    `bun:"explanation,notnull"`
	Active      bool      `bun:"is_active,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type answerModel struct {
	bun.BaseModel `bun:"table:answers"`

	ID         int64  `bun:"id,pk,autoincrement"`
	QuestionID int64  `bun:"question_id,notnull"`
	Text       string `bun:"text,notnull"`
	Correct    bool   `bun:"is_correct,notnull"`
}

type userModel struct {
	bun.BaseModel `bun:"table:users"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Name       string    `bun:"name,notnull"`
	Email      string    `bun:"email,nullzero"`
	Credential string    `bun:"credential,notnull"`
	Admin      bool      `bun:"is_admin,notnull"`
	TotalXP    int       `bun:"total_xp,notnull"`
	Level      int       `bun:"level,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type sessionModel struct {
	bun.BaseModel `bun:"table:quiz_sessions"`

	ID            int64                  `bun:"id,pk,autoincrement"`
	UserID        int64                  `bun:"user_id,notnull"`
	CategoryID    int64                  `bun:"category_id,notnull"`
	QuestionCount int                    `bun:"question_count,notnull"`
	Completed     bool                   `bun:"completed,notnull"`
	Score         *int                   `bun:"score"`
	CompletedAt   *time.Time             `bun:"completed_at"`
	CreatedAt     time.Time              `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	Settings      domain.SessionSettings `bun:"settings,type:jsonb,notnull"`
}

type sessionQuestionModel struct {
	bun.BaseModel `bun:"table:quiz_session_questions"`

	SessionID  int64      `bun:"session_id,pk"`
	QuestionID int64      `bun:"question_id,pk"`
	Position   int        `bun:"position,notnull"`
	Answered   bool       `bun:"answered,notnull"`
	Correct    bool       `bun:"correct,notnull"`
	AnsweredAt *time.Time `bun:"answered_at"`
	TimeTaken  *int       `bun:"time_taken"`
}

type responseModel struct {
	bun.BaseModel `bun:"table:user_responses"`

	ID         int64     `bun:"id,pk,autoincrement"`
	SessionID  int64     `bun:"session_id,notnull"`
	UserID     int64     `bun:"user_id,notnull"`
	QuestionID int64     `bun:"question_id,notnull"`
	AnswerID   int64     `bun:"answer_id,nullzero"`
	Correct    bool      `bun:"is_correct,notnull"`
	AnsweredAt time.Time `bun:"answered_at,notnull"`
}

type statModel struct {
	bun.BaseModel `bun:"table:user_stats"`

	ID             int64     `bun:"id,pk,autoincrement"`
	UserID         int64     `bun:"user_id,notnull"`
	CategoryID     int64     `bun:"category_id,notnull"`
	TotalAnswered  int       `bun:"total_questions_answered,notnull"`
	CorrectAnswers int       `bun:"correct_answers,notnull"`
	XP             int       `bun:"xp,notnull"`
	Level          int       `bun:"level,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

type leaderboardRow struct {
	UserID     int64  `bun:"user_id"`
	UserName   string `bun:"user_name"`
	CategoryID int64  `bun:"category_id"`
	XP         int    `bun:"xp"`
	Level      int    `bun:"level"`
}

func (m categoryModel) toDomain() domain.Category {
	return domain.Category{
		ID:          m.ID,
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		Color:       m.Color,
		Icon:        m.Icon,
		Active:      m.Active,
	}
}

func (m answerModel) toDomain() domain.Answer {
	return domain.Answer{ID: m.ID, QuestionID: m.QuestionID, Text: m.Text, Correct: m.Correct}
}

func (m userModel) toDomain() domain.User {
	return domain.User{
		ID:         m.ID,
		Name:       m.Name,
		Email:      m.Email,
		Credential: m.Credential,
		Admin:      m.Admin,
		TotalXP:    m.TotalXP,
		Level:      m.Level,
	}
}

func (m sessionModel) toDomain() domain.QuizSession {
	return domain.QuizSession{
		ID:            m.ID,
		UserID:        m.UserID,
		CategoryID:    m.CategoryID,
		QuestionCount: m.QuestionCount,
		Completed:     m.Completed,
		Score:         m.Score,
		CompletedAt:   m.CompletedAt,
		CreatedAt:     m.CreatedAt,
		Settings:      m.Settings,
	}
}

func (m sessionQuestionModel) toDomain() domain.SessionQuestion {
	return domain.SessionQuestion{
		SessionID:  m.SessionID,
		QuestionID: m.QuestionID,
		Position:   m.Position,
		Answered:   m.Answered,
		Correct:    m.Correct,
		AnsweredAt: m.AnsweredAt,
		TimeTaken:  m.TimeTaken,
	}
}

func (m responseModel) toDomain() domain.UserResponse {
	return domain.UserResponse{
		SessionID:  m.SessionID,
		UserID:     m.UserID,
		QuestionID: m.QuestionID,
		AnswerID:   m.AnswerID,
		Correct:    m.Correct,
		AnsweredAt: m.AnsweredAt,
	}
}

func (m statModel) toDomain() domain.UserStat {
	return domain.UserStat{
		UserID:         m.UserID,
		CategoryID:     m.CategoryID,
		TotalAnswered:  m.TotalAnswered,
		CorrectAnswers: m.CorrectAnswers,
		XP:             m.XP,
		Level:          m.Level,
	}
}
