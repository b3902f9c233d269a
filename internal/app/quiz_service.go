package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"quiz-xp-service/internal/domain"
)

// DefaultSecondsPerQuestion is the client-side time budget hint.
const DefaultSecondsPerQuestion = 30

// StartRequest is the boundary input to start a quiz.
type StartRequest struct {
	CategoryID    int64
	QuestionCount int
	Difficulty    domain.Difficulty
}

// PlayableAnswer hides correctness from clients.
type PlayableAnswer struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// PlayableQuestion is a sampled question as shown to the player.
type PlayableQuestion struct {
	ID         int64             `json:"id"`
	Text       string            `json:"text"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Answers    []PlayableAnswer  `json:"answers"`
}

// StartedQuiz is returned by Start; Session.ID is the handle for later calls.
type StartedQuiz struct {
	Session          domain.QuizSession `json:"session"`
	Category         domain.Category    `json:"category"`
	Questions        []PlayableQuestion `json:"questions"`
	TimeLimitSeconds int                `json:"timeLimitSeconds"`
}

// AnswerRequest is the boundary input of a submission.
type AnswerRequest struct {
	QuestionID int64
	AnswerID   int64
	TimeTaken  *int
}

// AnswerResult is safe to reveal once the answer is recorded.
type AnswerResult struct {
	IsCorrect       bool   `json:"isCorrect"`
	CorrectAnswerID int64  `json:"correctAnswerId"`
	Explanation     string `json:"explanation"`
}

// CompletionResult summarizes a completed session.
type CompletionResult struct {
	SessionID      int64 `json:"sessionId"`
	Score          int   `json:"score"`
	CorrectAnswers int   `json:"correctAnswers"`
	TotalQuestions int   `json:"totalQuestions"`
	XPEarned       int   `json:"xpEarned"`
	NewLevel       *int  `json:"newLevel,omitempty"`
}

// SessionDetails is a session with its per-question rows and responses.
type SessionDetails struct {
	Session   domain.QuizSession       `json:"session"`
	State     domain.SessionState      `json:"state"`
	Questions []domain.SessionQuestion `json:"questions"`
	Responses []domain.UserResponse    `json:"responses"`
}

// QuizService owns the quiz session lifecycle.
type QuizService struct {
	store       Store
	catalog     Catalog
	sampler     *Sampler
	progression *Progression

	pointers           SessionPointers
	ranks              RankIndex
	now                func() time.Time
	secondsPerQuestion int
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithSessionPointers enables the per-user "current session" handle.
func WithSessionPointers(p SessionPointers) Option {
	return func(s *QuizService) { s.pointers = p }
}

// WithRankIndex mirrors stat changes into a rank index after each completion.
func WithRankIndex(r RankIndex) Option {
	return func(s *QuizService) { s.ranks = r }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

// WithSecondsPerQuestion sets the time allowance per question; n <= 0 keeps the default.
func WithSecondsPerQuestion(n int) Option {
	return func(s *QuizService) {
		if n > 0 {
			s.secondsPerQuestion = n
		}
	}
}

// NewQuizService wires the quiz lifecycle over a store, a catalog and a sampler.
func NewQuizService(store Store, catalog Catalog, sampler *Sampler, progression *Progression, opts ...Option) *QuizService {
	s := &QuizService{
		store:              store,
		catalog:            catalog,
		sampler:            sampler,
		progression:        progression,
		now:                time.Now,
		secondsPerQuestion: DefaultSecondsPerQuestion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start samples questions and persists a new session for the user.
func (s *QuizService) Start(ctx context.Context, userID int64, req StartRequest) (StartedQuiz, error) {
	if err := s.sampler.ValidateCount(req.QuestionCount); err != nil {
		return StartedQuiz{}, err
	}
	category, err := s.catalog.GetCategory(ctx, req.CategoryID)
	if err != nil {
		return StartedQuiz{}, err
	}
	if !category.Active {
		return StartedQuiz{}, domain.ErrCategoryInactive
	}

	questions, err := s.sampler.Sample(ctx, category.ID, req.Difficulty, req.QuestionCount)
	if err != nil {
		return StartedQuiz{}, err
	}

	now := s.now().UTC()
	session := domain.QuizSession{
		UserID:        userID,
		CategoryID:    category.ID,
		QuestionCount: len(questions),
		CreatedAt:     now,
		Settings: domain.SessionSettings{
			RequestedCount:   req.QuestionCount,
			Difficulty:       req.Difficulty,
			TimeLimitSeconds: len(questions) * s.secondsPerQuestion,
		},
	}
	rows := make([]domain.SessionQuestion, len(questions))
	for i, q := range questions {
		rows[i] = domain.SessionQuestion{QuestionID: q.ID, Position: i + 1}
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.GetUser(ctx, userID); err != nil {
			return err
		}
		return repo.CreateSession(ctx, &session, rows)
	})
	if err != nil {
		return StartedQuiz{}, err
	}

	if s.pointers != nil {
		if err := s.pointers.Set(ctx, userID, session.ID); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Int64("session_id", session.ID).Msg("failed to store current session pointer")
		}
	}
	log.Info().
		Int64("user_id", userID).
		Int64("session_id", session.ID).
		Int64("category_id", category.ID).
		Int("questions", session.QuestionCount).
		Msg("quiz session started")

	return StartedQuiz{
		Session:          session,
		Category:         category,
		Questions:        toPlayable(questions),
		TimeLimitSeconds: session.Settings.TimeLimitSeconds,
	}, nil
}

// RecordAnswer stores the user's answer for a question of the session.
// Answering the same question again overwrites the previous result.
func (s *QuizService) RecordAnswer(ctx context.Context, userID, sessionID int64, req AnswerRequest) (AnswerResult, error) {
	question, err := s.catalog.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		return AnswerResult{}, err
	}
	answer, ok := question.FindAnswer(req.AnswerID)
	if !ok {
		if _, err := s.catalog.GetAnswer(ctx, req.AnswerID); err != nil {
			return AnswerResult{}, err
		}
		return AnswerResult{}, domain.ErrAnswerNotInQuestion
	}

	now := s.now().UTC()
	err = s.store.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		session, err := repo.GetSession(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		if session.Completed {
			return domain.ErrAlreadyCompleted
		}
		rows, err := repo.ListSessionQuestions(ctx, sessionID)
		if err != nil {
			return err
		}
		row, ok := findSessionQuestion(rows, question.ID)
		if !ok {
			return domain.ErrQuestionNotInSession
		}

		row.Answered = true
		row.Correct = answer.Correct
		row.AnsweredAt = &now
		row.TimeTaken = req.TimeTaken
		if err := repo.MarkAnswered(ctx, row); err != nil {
			return err
		}
		return repo.UpsertResponse(ctx, domain.UserResponse{
			SessionID:  sessionID,
			UserID:     userID,
			QuestionID: question.ID,
			AnswerID:   answer.ID,
			Correct:    answer.Correct,
			AnsweredAt: now,
		})
	})
	if err != nil {
		return AnswerResult{}, err
	}

	result := AnswerResult{IsCorrect: answer.Correct, Explanation: question.Explanation}
	if correct, ok := question.CorrectAnswer(); ok {
		result.CorrectAnswerID = correct.ID
	}
	log.Debug().
		Int64("session_id", sessionID).
		Int64("question_id", question.ID).
		Bool("correct", answer.Correct).
		Msg("answer recorded")
	return result, nil
}

// Complete freezes the score and awards XP. It runs at most once per session;
// later calls return domain.ErrAlreadyCompleted without touching anything.
func (s *QuizService) Complete(ctx context.Context, userID, sessionID int64) (CompletionResult, error) {
	var (
		result  CompletionResult
		outcome LevelOutcome
	)
	now := s.now().UTC()
	err := s.store.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		session, err := repo.GetSession(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		if session.Completed {
			return domain.ErrAlreadyCompleted
		}
		rows, err := repo.ListSessionQuestions(ctx, sessionID)
		if err != nil {
			return err
		}
		correct := 0
		for _, row := range rows {
			if row.Answered && row.Correct {
				correct++
			}
		}
		score := domain.Score(correct, session.QuestionCount)
		if err := repo.CompleteSession(ctx, sessionID, score, now); err != nil {
			return err
		}

		outcome, err = s.progression.Award(ctx, repo, userID, session.CategoryID, correct, session.QuestionCount)
		if err != nil {
			return err
		}

		result = CompletionResult{
			SessionID:      sessionID,
			Score:          score,
			CorrectAnswers: correct,
			TotalQuestions: session.QuestionCount,
			XPEarned:       outcome.XPEarned,
		}
		if outcome.LeveledUp {
			level := outcome.NewLevel
			result.NewLevel = &level
		}
		return nil
	})
	if err != nil {
		return CompletionResult{}, err
	}

	s.clearPointer(ctx, userID, sessionID)
	if s.ranks != nil {
		if err := s.ranks.Record(ctx, outcome.Stat); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("failed to update rank index")
		}
	}

	ev := log.Info().
		Int64("user_id", userID).
		Int64("session_id", sessionID).
		Int("score", result.Score).
		Int("xp_earned", result.XPEarned)
	if outcome.LeveledUp {
		ev = ev.Int("new_level", outcome.NewLevel)
	}
	ev.Msg("quiz session completed")
	return result, nil
}

// Current returns the user's current incomplete session.
func (s *QuizService) Current(ctx context.Context, userID int64) (SessionDetails, error) {
	if s.pointers == nil {
		return SessionDetails{}, domain.ErrSessionNotFound
	}
	sessionID, ok, err := s.pointers.Get(ctx, userID)
	if err != nil {
		return SessionDetails{}, fmt.Errorf("load current session pointer: %w", err)
	}
	if !ok {
		return SessionDetails{}, domain.ErrSessionNotFound
	}
	details, err := s.Results(ctx, userID, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		s.clearPointer(ctx, userID, sessionID)
		return SessionDetails{}, err
	}
	if err != nil {
		return SessionDetails{}, err
	}
	if details.Session.Completed {
		s.clearPointer(ctx, userID, sessionID)
		return SessionDetails{}, domain.ErrSessionNotFound
	}
	return details, nil
}

// Results loads a session of the user with its questions and responses.
func (s *QuizService) Results(ctx context.Context, userID, sessionID int64) (SessionDetails, error) {
	var details SessionDetails
	err := s.store.View(ctx, func(ctx context.Context, repo Repository) error {
		session, err := repo.GetSession(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		rows, err := repo.ListSessionQuestions(ctx, sessionID)
		if err != nil {
			return err
		}
		responses, err := repo.ListResponses(ctx, sessionID)
		if err != nil {
			return err
		}
		answered := 0
		for _, row := range rows {
			if row.Answered {
				answered++
			}
		}
		details = SessionDetails{
			Session:   session,
			State:     session.State(answered),
			Questions: rows,
			Responses: responses,
		}
		return nil
	})
	return details, err
}

// History lists the user's sessions, most recently completed first.
func (s *QuizService) History(ctx context.Context, userID int64, limit int) ([]domain.QuizSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var sessions []domain.QuizSession
	err := s.store.View(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		sessions, err = repo.ListSessions(ctx, userID, limit)
		return err
	})
	return sessions, err
}

// PlayableCategories lists active categories that have active questions.
func (s *QuizService) PlayableCategories(ctx context.Context) ([]domain.CategorySummary, error) {
	all, err := s.catalog.ListActiveCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CategorySummary, 0, len(all))
	for _, c := range all {
		if c.ActiveQuestions > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *QuizService) clearPointer(ctx context.Context, userID, sessionID int64) {
	if s.pointers == nil {
		return
	}
	current, ok, err := s.pointers.Get(ctx, userID)
	if err != nil || !ok || current != sessionID {
		return
	}
	if err := s.pointers.Clear(ctx, userID); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("failed to clear current session pointer")
	}
}

func findSessionQuestion(rows []domain.SessionQuestion, questionID int64) (domain.SessionQuestion, bool) {
	for _, row := range rows {
		if row.QuestionID == questionID {
			return row, true
		}
	}
	return domain.SessionQuestion{}, false
}

func toPlayable(questions []domain.Question) []PlayableQuestion {
	out := make([]PlayableQuestion, len(questions))
	for i, q := range questions {
		answers := make([]PlayableAnswer, len(q.Answers))
		for j, a := range q.Answers {
			answers[j] = PlayableAnswer{ID: a.ID, Text: a.Text}
		}
		out[i] = PlayableQuestion{ID: q.ID, Text: q.Text, Difficulty: q.Difficulty, Answers: answers}
	}
	return out
}
