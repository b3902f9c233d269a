package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
)

var errReadOnly = errors.New("memory: write attempted in a read-only view")

// Store is an in-process implementation of app.Store and app.Catalog.
// Transactions run against a copy of the state that replaces the live one
// only when the callback succeeds.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	seq sequences

	categories       map[int64]domain.Category
	questions        map[int64]domain.Question
	answerOwner      map[int64]int64
	users            map[int64]domain.User
	sessions         map[int64]domain.QuizSession
	sessionQuestions map[int64][]domain.SessionQuestion
	responses        map[int64]map[int64]domain.UserResponse
	stats            map[string]domain.UserStat
}

type sequences struct {
	category, question, answer, user, session int64
}

func NewStore() *Store {
	return &Store{state: &state{
		categories:       make(map[int64]domain.Category),
		questions:        make(map[int64]domain.Question),
		answerOwner:      make(map[int64]int64),
		users:            make(map[int64]domain.User),
		sessions:         make(map[int64]domain.QuizSession),
		sessionQuestions: make(map[int64][]domain.SessionQuestion),
		responses:        make(map[int64]map[int64]domain.UserResponse),
		stats:            make(map[string]domain.UserStat),
	}}
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &tx{st: s.state})
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.state.clone()
	if err := fn(ctx, &tx{st: draft, writable: true}); err != nil {
		return err
	}
	s.state = draft
	return nil
}

func (st *state) clone() *state {
	out := &state{
		seq:              st.seq,
		categories:       make(map[int64]domain.Category, len(st.categories)),
		questions:        make(map[int64]domain.Question, len(st.questions)),
		answerOwner:      make(map[int64]int64, len(st.answerOwner)),
		users:            make(map[int64]domain.User, len(st.users)),
		sessions:         make(map[int64]domain.QuizSession, len(st.sessions)),
		sessionQuestions: make(map[int64][]domain.SessionQuestion, len(st.sessionQuestions)),
		responses:        make(map[int64]map[int64]domain.UserResponse, len(st.responses)),
		stats:            make(map[string]domain.UserStat, len(st.stats)),
	}
	for k, v := range st.categories {
		out.categories[k] = v
	}
	// question answer slices and session question slices are replaced, never
	// mutated, so sharing them between versions is safe
	for k, v := range st.questions {
		out.questions[k] = v
	}
	for k, v := range st.answerOwner {
		out.answerOwner[k] = v
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.sessions {
		out.sessions[k] = v
	}
	for k, v := range st.sessionQuestions {
		out.sessionQuestions[k] = v
	}
	for k, v := range st.responses {
		inner := make(map[int64]domain.UserResponse, len(v))
		for q, r := range v {
			inner[q] = r
		}
		out.responses[k] = inner
	}
	for k, v := range st.stats {
		out.stats[k] = v
	}
	return out
}

// Catalog reads.

func (s *Store) ListActiveQuestions(_ context.Context, categoryID int64, difficulty domain.Difficulty) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0)
	for _, q := range s.state.questions {
		if !q.Active || q.CategoryID != categoryID {
			continue
		}
		if difficulty != "" && q.Difficulty != difficulty {
			continue
		}
		out = append(out, copyQuestion(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetQuestion(_ context.Context, id int64) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.state.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return copyQuestion(q), nil
}

func (s *Store) GetAnswer(_ context.Context, id int64) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qid, ok := s.state.answerOwner[id]
	if !ok {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	a, ok := s.state.questions[qid].FindAnswer(id)
	if !ok {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	return a, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.categories[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return c, nil
}

func (s *Store) ListActiveCategories(_ context.Context) ([]domain.CategorySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[int64]int)
	for _, q := range s.state.questions {
		if q.Active {
			counts[q.CategoryID]++
		}
	}
	out := make([]domain.CategorySummary, 0, len(s.state.categories))
	for _, c := range s.state.categories {
		if c.Active {
			out = append(out, domain.CategorySummary{Category: c, ActiveQuestions: counts[c.ID]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func copyQuestion(q domain.Question) domain.Question {
	q.Answers = append([]domain.Answer(nil), q.Answers...)
	return q
}

// tx implements app.Repository over one version of the state.
type tx struct {
	st       *state
	writable bool
}

func (t *tx) check() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

func (t *tx) CreateSession(_ context.Context, session *domain.QuizSession, questions []domain.SessionQuestion) error {
	if err := t.check(); err != nil {
		return err
	}
	t.st.seq.session++
	session.ID = t.st.seq.session
	rows := make([]domain.SessionQuestion, len(questions))
	for i, q := range questions {
		q.SessionID = session.ID
		rows[i] = q
	}
	t.st.sessions[session.ID] = *session
	t.st.sessionQuestions[session.ID] = rows
	t.st.responses[session.ID] = make(map[int64]domain.UserResponse)
	return nil
}

func (t *tx) GetSession(_ context.Context, userID, sessionID int64) (domain.QuizSession, error) {
	s, ok := t.st.sessions[sessionID]
	if !ok || s.UserID != userID {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return s, nil
}

func (t *tx) ListSessionQuestions(_ context.Context, sessionID int64) ([]domain.SessionQuestion, error) {
	return append([]domain.SessionQuestion(nil), t.st.sessionQuestions[sessionID]...), nil
}

func (t *tx) MarkAnswered(_ context.Context, question domain.SessionQuestion) error {
	if err := t.check(); err != nil {
		return err
	}
	rows := append([]domain.SessionQuestion(nil), t.st.sessionQuestions[question.SessionID]...)
	for i := range rows {
		if rows[i].QuestionID == question.QuestionID {
			rows[i] = question
			t.st.sessionQuestions[question.SessionID] = rows
			return nil
		}
	}
	return domain.ErrQuestionNotInSession
}

func (t *tx) UpsertResponse(_ context.Context, response domain.UserResponse) error {
	if err := t.check(); err != nil {
		return err
	}
	bySession, ok := t.st.responses[response.SessionID]
	if !ok {
		bySession = make(map[int64]domain.UserResponse)
		t.st.responses[response.SessionID] = bySession
	}
	bySession[response.QuestionID] = response
	return nil
}

func (t *tx) ListResponses(_ context.Context, sessionID int64) ([]domain.UserResponse, error) {
	out := make([]domain.UserResponse, 0, len(t.st.responses[sessionID]))
	for _, r := range t.st.responses[sessionID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (t *tx) CompleteSession(_ context.Context, sessionID int64, score int, at time.Time) error {
	if err := t.check(); err != nil {
		return err
	}
	s, ok := t.st.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.Completed {
		return domain.ErrAlreadyCompleted
	}
	s.Completed = true
	s.Score = &score
	s.CompletedAt = &at
	t.st.sessions[sessionID] = s
	return nil
}

func (t *tx) ListSessions(_ context.Context, userID int64, limit int) ([]domain.QuizSession, error) {
	out := make([]domain.QuizSession, 0)
	for _, s := range t.st.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.CompletedAt != nil && b.CompletedAt != nil && !a.CompletedAt.Equal(*b.CompletedAt):
			return a.CompletedAt.After(*b.CompletedAt)
		case (a.CompletedAt == nil) != (b.CompletedAt == nil):
			return a.CompletedAt != nil
		default:
			return a.ID > b.ID
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) GetUser(_ context.Context, id int64) (domain.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (t *tx) CreateUser(_ context.Context, user *domain.User) error {
	if err := t.check(); err != nil {
		return err
	}
	for _, u := range t.st.users {
		if strings.EqualFold(u.Email, user.Email) && user.Email != "" {
			return domain.Duplicate("user with email %q already exists", user.Email)
		}
	}
	if user.ID == 0 {
		t.st.seq.user++
		user.ID = t.st.seq.user
	} else if user.ID > t.st.seq.user {
		t.st.seq.user = user.ID
	}
	if user.Level < 1 {
		user.Level = 1
	}
	t.st.users[user.ID] = *user
	return nil
}

func (t *tx) AddUserProgress(_ context.Context, userID int64, xp, levels int) error {
	if err := t.check(); err != nil {
		return err
	}
	u, ok := t.st.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.TotalXP += xp
	u.Level += levels
	t.st.users[userID] = u
	return nil
}

func (t *tx) GetStat(_ context.Context, userID, categoryID int64) (domain.UserStat, bool, error) {
	s, ok := t.st.stats[domain.NewUserStat(userID, categoryID).Key()]
	return s, ok, nil
}

func (t *tx) SaveStat(_ context.Context, stat domain.UserStat) error {
	if err := t.check(); err != nil {
		return err
	}
	t.st.stats[stat.Key()] = stat
	return nil
}

func (t *tx) ListStats(_ context.Context, userID int64) ([]domain.UserStat, error) {
	out := make([]domain.UserStat, 0)
	for _, s := range t.st.stats {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, nil
}

func (t *tx) TopStats(_ context.Context, categoryID int64, limit int) ([]domain.LeaderboardEntry, error) {
	rows := make([]domain.UserStat, 0)
	for _, s := range t.st.stats {
		if categoryID == 0 || s.CategoryID == categoryID {
			rows = append(rows, s)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.XP != b.XP {
			return a.XP > b.XP
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.CategoryID < b.CategoryID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]domain.LeaderboardEntry, len(rows))
	for i, s := range rows {
		out[i] = domain.LeaderboardEntry{
			UserID:     s.UserID,
			UserName:   t.st.users[s.UserID].Name,
			CategoryID: s.CategoryID,
			XP:         s.XP,
			Level:      s.Level,
		}
	}
	return out, nil
}

func (t *tx) CountStatsAbove(_ context.Context, categoryID int64, xp int) (int, error) {
	n := 0
	for _, s := range t.st.stats {
		if (categoryID == 0 || s.CategoryID == categoryID) && s.XP > xp {
			n++
		}
	}
	return n, nil
}

func (t *tx) CreateCategory(_ context.Context, category *domain.Category) error {
	if err := t.check(); err != nil {
		return err
	}
	for _, c := range t.st.categories {
		if c.Name == category.Name || c.Slug == category.Slug {
			return domain.Duplicate("category %q already exists", category.Name)
		}
	}
	t.st.seq.category++
	category.ID = t.st.seq.category
	t.st.categories[category.ID] = *category
	return nil
}

func (t *tx) DeleteCategory(_ context.Context, id int64) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.st.categories[id]; !ok {
		return domain.ErrCategoryNotFound
	}
	delete(t.st.categories, id)
	return nil
}

func (t *tx) CountQuestions(_ context.Context, categoryID int64) (int, error) {
	n := 0
	for _, q := range t.st.questions {
		if q.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (t *tx) CreateQuestion(_ context.Context, question *domain.Question) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.st.categories[question.CategoryID]; !ok {
		return domain.ErrCategoryNotFound
	}
	t.st.seq.question++
	question.ID = t.st.seq.question
	answers := make([]domain.Answer, len(question.Answers))
	for i, a := range question.Answers {
		t.st.seq.answer++
		a.ID = t.st.seq.answer
		a.QuestionID = question.ID
		answers[i] = a
		t.st.answerOwner[a.ID] = question.ID
	}
	question.Answers = answers
	t.st.questions[question.ID] = copyQuestion(*question)
	return nil
}

func (t *tx) ReplaceAnswers(_ context.Context, questionID int64, answers []domain.Answer) ([]domain.Answer, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	q, ok := t.st.questions[questionID]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	kept := make(map[int64]bool, len(answers))
	out := make([]domain.Answer, len(answers))
	for i, a := range answers {
		if _, owned := q.FindAnswer(a.ID); !owned || a.ID == 0 {
			t.st.seq.answer++
			a.ID = t.st.seq.answer
		}
		a.QuestionID = questionID
		kept[a.ID] = true
		t.st.answerOwner[a.ID] = questionID
		out[i] = a
	}
	for _, old := range q.Answers {
		if !kept[old.ID] {
			delete(t.st.answerOwner, old.ID)
		}
	}
	q.Answers = out
	t.st.questions[questionID] = q
	return append([]domain.Answer(nil), out...), nil
}

func (t *tx) DeleteAnswers(_ context.Context, questionID int64) error {
	if err := t.check(); err != nil {
		return err
	}
	q, ok := t.st.questions[questionID]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	for _, a := range q.Answers {
		delete(t.st.answerOwner, a.ID)
	}
	q.Answers = nil
	t.st.questions[questionID] = q
	return nil
}

func (t *tx) DeleteQuestion(_ context.Context, id int64) error {
	if err := t.check(); err != nil {
		return err
	}
	q, ok := t.st.questions[id]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	for _, rows := range t.st.sessionQuestions {
		for _, row := range rows {
			if row.QuestionID == id {
				return domain.ErrQuestionInUse
			}
		}
	}
	if len(q.Answers) > 0 {
		return domain.Validation("question %d still has answers", id)
	}
	delete(t.st.questions, id)
	return nil
}
