package app_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
	"quiz-xp-service/internal/infra/memory"
)

type fixture struct {
	store    *memory.Store
	pointers *memory.SessionPointers
	quiz     *app.QuizService
	board    *app.LeaderboardService
	catalog  *app.CatalogService

	alice, bob, carol int64
	math, science     int64
	inactive          int64
}

// newFixture seeds Math with mathQuestions questions, Science with 3 and an
// inactive History category with 6.
func newFixture(t *testing.T, mathQuestions int) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memory.NewStore(), pointers: memory.NewSessionPointers()}

	err := f.store.RunInTx(ctx, func(ctx context.Context, repo app.Repository) error {
		players := map[string]*int64{"Alice": &f.alice, "Bob": &f.bob, "Carol": &f.carol}
		for _, name := range []string{"Alice", "Bob", "Carol"} {
			user := domain.User{Name: name}
			if err := repo.CreateUser(ctx, &user); err != nil {
				return err
			}
			*players[name] = user.ID
		}
		var err error
		if f.math, err = seedCategory(ctx, repo, "Math", true, mathQuestions); err != nil {
			return err
		}
		if f.science, err = seedCategory(ctx, repo, "Science", true, 3); err != nil {
			return err
		}
		f.inactive, err = seedCategory(ctx, repo, "History", false, 6)
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var clockMu sync.Mutex
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rules := app.DefaultProgressionRules()
	sampler := app.NewSampler(f.store, app.DefaultMinQuestions, app.DefaultMaxQuestions, rand.New(rand.NewSource(1)))
	f.quiz = app.NewQuizService(f.store, f.store, sampler, app.NewProgression(rules),
		app.WithSessionPointers(f.pointers),
		app.WithClock(func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	f.board = app.NewLeaderboardService(f.store, f.store, nil, rules, 0, 0)
	f.catalog = app.NewCatalogService(f.store, f.store, nil)
	return f
}

func seedCategory(ctx context.Context, repo app.Repository, name string, active bool, questions int) (int64, error) {
	c := domain.Category{Name: name, Slug: app.Slugify(name), Active: active}
	if err := repo.CreateCategory(ctx, &c); err != nil {
		return 0, err
	}
	for i := 0; i < questions; i++ {
		q := domain.Question{
			CategoryID:  c.ID,
			Text:        fmt.Sprintf("%s question %d", name, i+1),
			Difficulty:  domain.DifficultyEasy,
			Explanation: "because",
			Active:      true,
			Answers: []domain.Answer{
				{Text: "wrong"},
				{Text: "right", Correct: true},
				{Text: "also wrong"},
			},
		}
		if err := repo.CreateQuestion(ctx, &q); err != nil {
			return 0, err
		}
	}
	return c.ID, nil
}

// answerIDs returns the correct and one wrong answer id of a question.
func (f *fixture) answerIDs(t *testing.T, questionID int64) (correct, wrong int64) {
	t.Helper()
	q, err := f.store.GetQuestion(context.Background(), questionID)
	if err != nil {
		t.Fatalf("get question %d: %v", questionID, err)
	}
	for _, a := range q.Answers {
		if a.Correct {
			correct = a.ID
		} else {
			wrong = a.ID
		}
	}
	return correct, wrong
}

func (f *fixture) stat(t *testing.T, userID, categoryID int64) domain.UserStat {
	t.Helper()
	var stat domain.UserStat
	err := f.store.View(context.Background(), func(ctx context.Context, repo app.Repository) error {
		var err error
		stat, _, err = repo.GetStat(ctx, userID, categoryID)
		return err
	})
	if err != nil {
		t.Fatalf("get stat: %v", err)
	}
	return stat
}

func (f *fixture) user(t *testing.T, userID int64) domain.User {
	t.Helper()
	var user domain.User
	err := f.store.View(context.Background(), func(ctx context.Context, repo app.Repository) error {
		var err error
		user, err = repo.GetUser(ctx, userID)
		return err
	})
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return user
}

func (f *fixture) saveStat(t *testing.T, stat domain.UserStat) {
	t.Helper()
	err := f.store.RunInTx(context.Background(), func(ctx context.Context, repo app.Repository) error {
		return repo.SaveStat(ctx, stat)
	})
	if err != nil {
		t.Fatalf("save stat: %v", err)
	}
}
