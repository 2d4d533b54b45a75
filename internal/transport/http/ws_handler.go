package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/timer"
)

// AttemptHandler runs one attempt over a websocket: it starts the session,
// streams the countdown, and auto-submits at the deadline if the client has not.
type AttemptHandler struct {
	manager  *app.SessionManager
	upgrader websocket.Upgrader
	interval time.Duration
	logger   *slog.Logger
}

func NewAttemptHandler(manager *app.SessionManager, tick time.Duration, logger *slog.Logger) *AttemptHandler {
	if tick <= 0 {
		tick = timer.DefaultInterval
	}
	return &AttemptHandler{
		manager:  manager,
		interval: tick,
		logger:   logger,
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
	Index  int     `json:"index"`
	Option *string `json:"option"`
}

type submitPayload struct {
	Answers []*string `json:"answers"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type startedPayload struct {
	Quiz domain.Quiz `json:"quiz"`
	StartResponse
}

type tickPayload struct {
	RemainingSeconds float64   `json:"remainingSeconds"`
	ServerTime       time.Time `json:"serverTime"`
}

type answeredPayload struct {
	Index int `json:"index"`
}

type wsErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func wsError(err error) outboundMessage {
	_, code := errorStatus(err)
	msg := err.Error()
	if code == "internal" {
		msg = "internal error"
	}
	return outboundMessage{Type: "error", Payload: wsErrorPayload{Code: code, Message: msg}}
}

// attempt is the per-connection state shared by the reader and the timer.
type attempt struct {
	mu      sync.Mutex
	answers domain.Answers
	done    bool
}

func (a *attempt) set(index int, option *string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if option == nil {
		delete(a.answers, index)
		return
	}
	a.answers[index] = *option
}

func (a *attempt) snapshot() domain.Answers {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(domain.Answers, len(a.answers))
	for k, v := range a.answers {
		out[k] = v
	}
	return out
}

// ServeWS handles GET /ws/attempt?quizCode=...
func (h *AttemptHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizCode := r.URL.Query().Get("quizCode")
	if quizCode == "" {
		writeError(w, r, h.logger, domain.NewValidationError("quizCode", "required"))
		return
	}
	principal, _ := auth.PrincipalFrom(r.Context())

	// Start before upgrading so QuizNotFound and Forbidden surface as HTTP statuses.
	quiz, err := h.manager.Quiz(r.Context(), quizCode)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	session, err := h.manager.Start(r.Context(), quizCode, principal.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "error", err)
				cancel()
				for range send {
				}
				return
			}
		}
	}()

	state := &attempt{answers: domain.Answers{}}
	clock := h.manager.Clock()
	countdown := timer.New(session.Deadline, timer.WithInterval(h.interval), timer.WithClock(clock.Now))

	emit := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-ctx.Done():
		}
	}

	timerCtx, stopTimer := context.WithCancel(ctx)
	defer stopTimer()

	finish := func(answers domain.Answers, auto bool) {
		state.mu.Lock()
		done := state.done
		state.mu.Unlock()
		if done {
			emit(wsError(domain.ErrAlreadySubmitted))
			return
		}

		// A claimed submission must persist even if the client disconnects mid-call.
		submission, err := h.manager.Submit(context.WithoutCancel(ctx), session.Key.QuizCode, session.Key.ParticipantID, answers, auto)
		switch {
		case err == nil:
			emit(outboundMessage{Type: "submitted", Payload: toSubmissionResponse(submission)})
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrDeadlinePassed):
			emit(wsError(err))
			return
		default:
			emit(wsError(err))
		}
		countdown.Disarm()
		stopTimer()
		state.mu.Lock()
		state.done = true
		state.mu.Unlock()
	}

	start := clock.Now()
	emit(outboundMessage{Type: "started", Payload: startedPayload{
		Quiz: quiz,
		StartResponse: StartResponse{
			QuizCode:         session.Key.QuizCode,
			ParticipantID:    session.Key.ParticipantID,
			StartedAt:        session.StartedAt,
			Deadline:         session.Deadline,
			ServerTime:       start,
			RemainingSeconds: session.Remaining(start).Seconds(),
		},
	}})

	timerDone := make(chan struct{})
	go func() {
		defer close(timerDone)
		countdown.Run(timerCtx,
			func(remaining time.Duration) {
				emit(outboundMessage{Type: "tick", Payload: tickPayload{
					RemainingSeconds: remaining.Seconds(),
					ServerTime:       clock.Now(),
				}})
			},
			func(context.Context) {
				finish(state.snapshot(), true)
			},
		)
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit(wsError(domain.NewValidationError("payload", "invalid answer payload")))
				continue
			}
			if payload.Index < 0 || payload.Index >= len(quiz.Questions) {
				emit(wsError(domain.NewValidationError("index", "question outside the quiz")))
				continue
			}
			if payload.Option != nil && !quiz.Questions[payload.Index].HasOption(*payload.Option) {
				emit(wsError(domain.NewValidationError("option", "not one of the question's options")))
				continue
			}
			state.set(payload.Index, payload.Option)
			emit(outboundMessage{Type: "answered", Payload: answeredPayload{Index: payload.Index}})
		case "submit":
			answers := state.snapshot()
			if len(inbound.Payload) > 0 && string(inbound.Payload) != "null" {
				var payload submitPayload
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					emit(wsError(domain.NewValidationError("payload", "invalid submit payload")))
					continue
				}
				if payload.Answers != nil {
					answers = domain.AnswersFromList(payload.Answers)
				}
			}
			finish(answers, false)
		default:
			emit(wsError(domain.NewValidationError("type", "unsupported message type")))
		}
	}

	// A disconnect leaves the session running; the reaper or a reconnect finishes it.
	cancel()
	<-timerDone
	close(send)
	<-writerDone
}
