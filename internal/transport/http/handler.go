package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
)

var errNoIdentity = errors.New("missing or invalid X-User-ID")

// Identity resolves the calling user from a request.
type Identity func(r *http.Request) (int64, error)

// HeaderIdentity reads the user id from X-User-ID, falling back to the
// userId query parameter that browsers can set on websocket upgrades.
func HeaderIdentity(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		raw = r.URL.Query().Get("userId")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errNoIdentity
	}
	return id, nil
}

// API exposes the quiz services over JSON.
type API struct {
	quiz     *app.QuizService
	board    *app.LeaderboardService
	identity Identity
	ws       *WSHandler
}

func NewAPI(quiz *app.QuizService, board *app.LeaderboardService, identity Identity) *API {
	if identity == nil {
		identity = HeaderIdentity
	}
	return &API{
		quiz:     quiz,
		board:    board,
		identity: identity,
		ws:       NewWSHandler(quiz, identity),
	}
}

// Routes returns the mux wrapped in the request logger.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /v1/categories", a.listCategories)
	mux.HandleFunc("POST /v1/quiz/start", a.withUser(a.startQuiz))
	mux.HandleFunc("GET /v1/quiz/current", a.withUser(a.currentQuiz))
	mux.HandleFunc("POST /v1/quiz/{sessionId}/answer", a.withUser(a.submitAnswer))
	mux.HandleFunc("POST /v1/quiz/{sessionId}/complete", a.withUser(a.completeQuiz))
	mux.HandleFunc("GET /v1/quiz/{sessionId}/results", a.withUser(a.quizResults))
	mux.HandleFunc("GET /v1/history", a.withUser(a.history))
	mux.HandleFunc("GET /v1/stats", a.withUser(a.stats))
	mux.HandleFunc("GET /v1/leaderboard", a.leaderboard)
	mux.HandleFunc("GET /ws/play", a.ws.ServeWS)
	return RequestLogger(mux)
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID int64)

func (a *API) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.identity(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
			return
		}
		next(w, r, userID)
	}
}

type startBody struct {
	CategoryID    int64  `json:"categoryId"`
	QuestionCount int    `json:"questionCount"`
	Difficulty    string `json:"difficulty"`
}

type answerBody struct {
	QuestionID int64 `json:"questionId"`
	AnswerID   int64 `json:"answerId"`
	TimeTaken  *int  `json:"timeTaken"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type leaderboardBody struct {
	Global     []app.RankedEntry   `json:"global"`
	Categories []app.CategoryBoard `json:"categories"`
	UserRank   *int                `json:"userRank,omitempty"`
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.quiz.PlayableCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (a *API) startQuiz(w http.ResponseWriter, r *http.Request, userID int64) {
	var body startBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, domain.Validation("invalid request body: %v", err))
		return
	}
	difficulty, err := domain.ParseDifficulty(body.Difficulty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	started, err := a.quiz.Start(r.Context(), userID, app.StartRequest{
		CategoryID:    body.CategoryID,
		QuestionCount: body.QuestionCount,
		Difficulty:    difficulty,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

func (a *API) currentQuiz(w http.ResponseWriter, r *http.Request, userID int64) {
	details, err := a.quiz.Current(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request, userID int64) {
	sessionID, err := pathID(r, "sessionId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body answerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, domain.Validation("invalid request body: %v", err))
		return
	}
	result, err := a.quiz.RecordAnswer(r.Context(), userID, sessionID, app.AnswerRequest(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) completeQuiz(w http.ResponseWriter, r *http.Request, userID int64) {
	sessionID, err := pathID(r, "sessionId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := a.quiz.Complete(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) quizResults(w http.ResponseWriter, r *http.Request, userID int64) {
	sessionID, err := pathID(r, "sessionId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	details, err := a.quiz.Results(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (a *API) history(w http.ResponseWriter, r *http.Request, userID int64) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := a.quiz.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request, userID int64) {
	standings, err := a.board.Standings(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

// leaderboard adds the caller's rank when an identity is present; categoryId
// scopes that rank to one category.
func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	global, err := a.board.Global(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	categories, err := a.board.ByCategory(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body := leaderboardBody{Global: global, Categories: categories}

	if userID, err := a.identity(r); err == nil {
		var categoryID int64
		if raw := r.URL.Query().Get("categoryId"); raw != "" {
			if categoryID, err = strconv.ParseInt(raw, 10, 64); err != nil {
				writeError(w, r, domain.Validation("invalid categoryId %q", raw))
				return
			}
		}
		rank, err := a.board.Rank(ctx, userID, categoryID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		body.UserRank = &rank
	}
	writeJSON(w, http.StatusOK, body)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation("invalid %s %q", name, r.PathValue(name))
	}
	return id, nil
}

// statusFor maps error kinds to HTTP statuses.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindState:
		return http.StatusConflict
	case domain.KindInsufficientData:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Kind: domain.KindOf(err).String()}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body = errorBody{Error: "internal error"}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}
