package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/domain"
)

// WSHandler plays one session over a websocket: the client sends answers and
// finally a completion, each acknowledged on the same connection.
type WSHandler struct {
	service  *app.QuizService
	identity Identity
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, identity Identity) *WSHandler {
	return &WSHandler{
		service:  service,
		identity: identity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID int64 `json:"questionId"`
	AnswerID   int64 `json:"answerId"`
	TimeTaken  *int  `json:"timeTaken"`
}

type answerResult struct {
	QuestionID int64 `json:"questionId"`
	app.AnswerResult
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// ServeWS checks the session before upgrading so HTTP clients still get
// a proper status for unknown or finished sessions.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
		return
	}
	sessionID, err := strconv.ParseInt(r.URL.Query().Get("sessionId"), 10, 64)
	if err != nil || sessionID <= 0 {
		writeError(w, r, domain.Validation("missing or invalid sessionId"))
		return
	}
	details, err := h.service.Results(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if details.Session.Completed {
		writeError(w, r, domain.ErrAlreadyCompleted)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Int64("user_id", userID).Int64("session_id", sessionID).Logger()
	logger.Debug().Msg("ws play channel opened")

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("ws read ended")
			}
			return
		}

		var out any
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				out = wsError(domain.Validation("invalid answer payload"))
				break
			}
			result, err := h.service.RecordAnswer(r.Context(), userID, sessionID, app.AnswerRequest(payload))
			if err != nil {
				out = wsError(err)
				break
			}
			out = outboundMessage[answerResult]{Type: "answerResult", Payload: answerResult{
				QuestionID:   payload.QuestionID,
				AnswerResult: result,
			}}
		case "complete":
			result, err := h.service.Complete(r.Context(), userID, sessionID)
			if err != nil {
				out = wsError(err)
				break
			}
			out = outboundMessage[app.CompletionResult]{Type: "completed", Payload: result}
		default:
			out = wsError(domain.Validation("unsupported message type %q", inbound.Type))
		}

		if err := conn.WriteJSON(out); err != nil {
			logger.Warn().Err(err).Msg("ws write error")
			return
		}
	}
}

func wsError(err error) outboundMessage[errorPayload] {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindUnknown {
		log.Error().Err(err).Msg("ws request failed")
		msg = "internal error"
	}
	return outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: msg, Kind: kind.String()}}
}
