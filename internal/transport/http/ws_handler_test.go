package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
	"quiz-xp-service/internal/infra/memory"
)

func TestWebSocketPlayFlow(t *testing.T) {
	env := newTestEnv(t)
	started := env.start(t)

	u := fmt.Sprintf("ws%s/ws/play?sessionId=%d&userId=%d", env.server.URL[len("http"):], started.Session.ID, env.userID)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	q := started.Questions[0]
	correct := env.correctAnswer(t, q.ID)
	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId": q.ID,
			"answerId":   correct,
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	_, payload := readNext(conn, t, "answerResult")
	if payload["isCorrect"] != true || payload["correctAnswerId"] != float64(correct) {
		t.Fatalf("unexpected answer result %+v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"questionId": q.ID, "answerId": 9999}}); err != nil {
		t.Fatalf("write bad answer: %v", err)
	}
	_, payload = readNext(conn, t, "error")
	if payload["kind"] != "not_found" {
		t.Fatalf("expected not_found error, got %+v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "complete"}); err != nil {
		t.Fatalf("write complete: %v", err)
	}
	_, payload = readNext(conn, t, "completed")
	if payload["score"] != float64(20) || payload["xpEarned"] != float64(10) {
		t.Fatalf("unexpected completion %+v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "complete"}); err != nil {
		t.Fatalf("write second complete: %v", err)
	}
	_, payload = readNext(conn, t, "error")
	if payload["kind"] != "state" {
		t.Fatalf("expected state error on second completion, got %+v", payload)
	}
}

func TestWebSocketRejectsUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	u := fmt.Sprintf("ws%s/ws/play?sessionId=77&userId=%d", env.server.URL[len("http"):], env.userID)
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before upgrade, got %+v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%+v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

type testEnv struct {
	server     *httptest.Server
	store      *memory.Store
	quiz       *app.QuizService
	userID     int64
	categoryID int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{store: memory.NewStore()}
	err := env.store.RunInTx(context.Background(), func(ctx context.Context, repo app.Repository) error {
		user := domain.User{Name: "Alice"}
		if err := repo.CreateUser(ctx, &user); err != nil {
			return err
		}
		env.userID = user.ID
		c := domain.Category{Name: "Math", Slug: "math", Active: true}
		if err := repo.CreateCategory(ctx, &c); err != nil {
			return err
		}
		env.categoryID = c.ID
		for i := 0; i < 5; i++ {
			q := domain.Question{
				CategoryID: c.ID,
				Text:       fmt.Sprintf("%d + 2?", i),
				Difficulty: domain.DifficultyEasy,
				Active:     true,
				Answers: []domain.Answer{
					{Text: fmt.Sprint(i + 1)},
					{Text: fmt.Sprint(i + 2), Correct: true},
				},
			}
			if err := repo.CreateQuestion(ctx, &q); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rules := app.DefaultProgressionRules()
	sampler := app.NewSampler(env.store, app.DefaultMinQuestions, app.DefaultMaxQuestions, nil)
	env.quiz = app.NewQuizService(env.store, env.store, sampler, app.NewProgression(rules),
		app.WithSessionPointers(memory.NewSessionPointers()))
	board := app.NewLeaderboardService(env.store, env.store, nil, rules, 0, 0)

	env.server = httptest.NewServer(NewAPI(env.quiz, board, nil).Routes())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) start(t *testing.T) app.StartedQuiz {
	t.Helper()
	started, err := e.quiz.Start(context.Background(), e.userID, app.StartRequest{CategoryID: e.categoryID, QuestionCount: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return started
}

func (e *testEnv) correctAnswer(t *testing.T, questionID int64) int64 {
	t.Helper()
	q, err := e.store.GetQuestion(context.Background(), questionID)
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	a, _ := q.CorrectAnswer()
	return a.ID
}
