package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
)

// OpenDB opens a bun handle over the pgdriver connector.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Store implements app.Store on Postgres through bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	return fn(ctx, &repo{db: s.db})
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &repo{db: tx})
	})
}

type repo struct {
	db bun.IDB
}

func (r *repo) CreateSession(ctx context.Context, session *domain.QuizSession, questions []domain.SessionQuestion) error {
	m := sessionModel{
		UserID:        session.UserID,
		CategoryID:    session.CategoryID,
		QuestionCount: session.QuestionCount,
		CreatedAt:     session.CreatedAt,
		Settings:      session.Settings,
	}
	if _, err := r.db.NewInsert().Model(&m).Returning("id, created_at").Exec(ctx); err != nil {
		return mapErr(err)
	}
	session.ID = m.ID
	session.CreatedAt = m.CreatedAt

	if len(questions) == 0 {
		return nil
	}
	rows := make([]sessionQuestionModel, len(questions))
	for i, q := range questions {
		rows[i] = sessionQuestionModel{SessionID: m.ID, QuestionID: q.QuestionID, Position: q.Position}
	}
	_, err := r.db.NewInsert().Model(&rows).Exec(ctx)
	return mapErr(err)
}

func (r *repo) GetSession(ctx context.Context, userID, sessionID int64) (domain.QuizSession, error) {
	var m sessionModel
	err := r.db.NewSelect().Model(&m).
		Where("id = ?", sessionID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, err
	}
	return m.toDomain(), nil
}

func (r *repo) ListSessionQuestions(ctx context.Context, sessionID int64) ([]domain.SessionQuestion, error) {
	var rows []sessionQuestionModel
	err := r.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SessionQuestion, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *repo) MarkAnswered(ctx context.Context, q domain.SessionQuestion) error {
	m := sessionQuestionModel{
		SessionID:  q.SessionID,
		QuestionID: q.QuestionID,
		Answered:   q.Answered,
		Correct:    q.Correct,
		AnsweredAt: q.AnsweredAt,
		TimeTaken:  q.TimeTaken,
	}
	res, err := r.db.NewUpdate().Model(&m).
		Column("answered", "correct", "answered_at", "time_taken").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuestionNotInSession
	}
	return nil
}

func (r *repo) UpsertResponse(ctx context.Context, resp domain.UserResponse) error {
	m := responseModel{
		SessionID:  resp.SessionID,
		UserID:     resp.UserID,
		QuestionID: resp.QuestionID,
		AnswerID:   resp.AnswerID,
		Correct:    resp.Correct,
		AnsweredAt: resp.AnsweredAt,
	}
	_, err := r.db.NewInsert().Model(&m).
		On("CONFLICT (session_id, question_id) DO UPDATE").
		Set("answer_id = EXCLUDED.answer_id").
		Set("is_correct = EXCLUDED.is_correct").
		Set("answered_at = EXCLUDED.answered_at").
		Exec(ctx)
	return mapErr(err)
}

func (r *repo) ListResponses(ctx context.Context, sessionID int64) ([]domain.UserResponse, error) {
	var rows []responseModel
	err := r.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserResponse, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// CompleteSession is guarded by completed = false so concurrent completions
// cannot both succeed.
func (r *repo) CompleteSession(ctx context.Context, sessionID int64, score int, at time.Time) error {
	res, err := r.db.NewUpdate().Model((*sessionModel)(nil)).
		Set("completed = TRUE").
		Set("score = ?", score).
		Set("completed_at = ?", at).
		Where("id = ?", sessionID).
		Where("completed = FALSE").
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	exists, err := r.db.NewSelect().Model((*sessionModel)(nil)).Where("id = ?", sessionID).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrSessionNotFound
	}
	return domain.ErrAlreadyCompleted
}

func (r *repo) ListSessions(ctx context.Context, userID int64, limit int) ([]domain.QuizSession, error) {
	var rows []sessionModel
	q := r.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		OrderExpr("completed_at DESC NULLS LAST, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.QuizSession, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var m userModel
	err := r.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return m.toDomain(), nil
}

func (r *repo) CreateUser(ctx context.Context, user *domain.User) error {
	if user.Level < 1 {
		user.Level = 1
	}
	m := userModel{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		Credential: user.Credential,
		Admin:      user.Admin,
		TotalXP:    user.TotalXP,
		Level:      user.Level,
	}
	q := r.db.NewInsert().Model(&m)
	if m.ID == 0 {
		q = q.ExcludeColumn("id")
	}
	if _, err := q.Returning("id").Exec(ctx); err != nil {
		return mapErr(err)
	}
	user.ID = m.ID
	return nil
}

func (r *repo) AddUserProgress(ctx context.Context, userID int64, xp, levels int) error {
	res, err := r.db.NewUpdate().Model((*userModel)(nil)).
		Set("total_xp = total_xp + ?", xp).
		Set("level = level + ?", levels).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *repo) GetStat(ctx context.Context, userID, categoryID int64) (domain.UserStat, bool, error) {
	var m statModel
	err := r.db.NewSelect().Model(&m).
		Where("user_id = ?", userID).
		Where("category_id = ?", categoryID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserStat{}, false, nil
	}
	if err != nil {
		return domain.UserStat{}, false, err
	}
	return m.toDomain(), true, nil
}

func (r *repo) SaveStat(ctx context.Context, stat domain.UserStat) error {
	m := statModel{
		UserID:         stat.UserID,
		CategoryID:     stat.CategoryID,
		TotalAnswered:  stat.TotalAnswered,
		CorrectAnswers: stat.CorrectAnswers,
		XP:             stat.XP,
		Level:          stat.Level,
		UpdatedAt:      time.Now().UTC(),
	}
	_, err := r.db.NewInsert().Model(&m).
		ExcludeColumn("id").
		On("CONFLICT (user_id, category_id) DO UPDATE").
		Set("total_questions_answered = EXCLUDED.total_questions_answered").
		Set("correct_answers = EXCLUDED.correct_answers").
		Set("xp = EXCLUDED.xp").
		Set("level = EXCLUDED.level").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return mapErr(err)
}

func (r *repo) ListStats(ctx context.Context, userID int64) ([]domain.UserStat, error) {
	var rows []statModel
	err := r.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Order("category_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserStat, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *repo) TopStats(ctx context.Context, categoryID int64, limit int) ([]domain.LeaderboardEntry, error) {
	var rows []leaderboardRow
	q := r.db.NewSelect().
		TableExpr("user_stats AS s").
		ColumnExpr("s.user_id, u.name AS user_name, s.category_id, s.xp, s.level").
		Join("JOIN users AS u ON u.id = s.user_id").
		OrderExpr("s.xp DESC, s.user_id ASC, s.category_id ASC")
	if categoryID != 0 {
		q = q.Where("s.category_id = ?", categoryID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.LeaderboardEntry, len(rows))
	for i, row := range rows {
		out[i] = domain.LeaderboardEntry(row)
	}
	return out, nil
}

func (r *repo) CountStatsAbove(ctx context.Context, categoryID int64, xp int) (int, error) {
	q := r.db.NewSelect().Model((*statModel)(nil)).Where("xp > ?", xp)
	if categoryID != 0 {
		q = q.Where("category_id = ?", categoryID)
	}
	return q.Count(ctx)
}

func (r *repo) CreateCategory(ctx context.Context, c *domain.Category) error {
	m := categoryModel{
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		Color:       c.Color,
		Icon:        c.Icon,
		Active:      c.Active,
	}
	if _, err := r.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
		return mapErr(err)
	}
	c.ID = m.ID
	return nil
}

func (r *repo) DeleteCategory(ctx context.Context, id int64) error {
	res, err := r.db.NewDelete().Model((*categoryModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

func (r *repo) CountQuestions(ctx context.Context, categoryID int64) (int, error) {
	return r.db.NewSelect().Model((*questionModel)(nil)).Where("category_id = ?", categoryID).Count(ctx)
}

func (r *repo) CreateQuestion(ctx context.Context, q *domain.Question) error {
	m := questionModel{
		CategoryID:  q.CategoryID,
		Text:        q.Text,
		Difficulty:  string(q.Difficulty),
		Explanation: q.Explanation,
		Active:      q.Active,
	}
	if _, err := r.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
		return mapErr(err)
	}
	q.ID = m.ID

	if len(q.Answers) == 0 {
		return nil
	}
	answers := make([]answerModel, len(q.Answers))
	for i, a := range q.Answers {
		answers[i] = answerModel{QuestionID: m.ID, Text: a.Text, Correct: a.Correct}
	}
	if _, err := r.db.NewInsert().Model(&answers).Returning("id").Exec(ctx); err != nil {
		return mapErr(err)
	}
	for i := range q.Answers {
		q.Answers[i] = answers[i].toDomain()
	}
	return nil
}

func (r *repo) ReplaceAnswers(ctx context.Context, questionID int64, answers []domain.Answer) ([]domain.Answer, error) {
	exists, err := r.db.NewSelect().Model((*questionModel)(nil)).Where("id = ?", questionID).Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrQuestionNotFound
	}

	var existing []answerModel
	if err := r.db.NewSelect().Model(&existing).Where("question_id = ?", questionID).Scan(ctx); err != nil {
		return nil, err
	}
	owned := make(map[int64]bool, len(existing))
	for _, a := range existing {
		owned[a.ID] = true
	}

	out := make([]domain.Answer, len(answers))
	keep := make([]int64, 0, len(answers))
	for i, a := range answers {
		m := answerModel{ID: a.ID, QuestionID: questionID, Text: a.Text, Correct: a.Correct}
		if owned[a.ID] {
			if _, err := r.db.NewUpdate().Model(&m).Column("text", "is_correct").WherePK().Exec(ctx); err != nil {
				return nil, mapErr(err)
			}
		} else {
			m.ID = 0
			if _, err := r.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
				return nil, mapErr(err)
			}
		}
		keep = append(keep, m.ID)
		out[i] = m.toDomain()
	}

	_, err = r.db.NewDelete().Model((*answerModel)(nil)).
		Where("question_id = ?", questionID).
		Where("id NOT IN (?)", bun.In(keep)).
		Exec(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *repo) DeleteAnswers(ctx context.Context, questionID int64) error {
	_, err := r.db.NewDelete().Model((*answerModel)(nil)).Where("question_id = ?", questionID).Exec(ctx)
	return mapErr(err)
}

func (r *repo) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := r.db.NewDelete().Model((*questionModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		err = mapErr(err)
		if domain.KindOf(err) == domain.KindState {
			return domain.ErrQuestionInUse
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

// mapErr turns constraint violations into typed domain errors.
func mapErr(err error) error {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Field('C') {
	case "23505":
		return domain.Duplicate("record already exists: %s", pgErr.Field('n'))
	case "23503":
		return &domain.Error{Kind: domain.KindState, Msg: "record is still referenced: " + pgErr.Field('n'), Err: err}
	case "23514":
		return &domain.Error{Kind: domain.KindValidation, Msg: "check constraint failed: " + pgErr.Field('n'), Err: err}
	default:
		return err
	}
}
