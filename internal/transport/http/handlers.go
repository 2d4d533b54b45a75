package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/domain"
)

const maxBodyBytes = 1 << 20

// Handler serves the attempt REST API.
type Handler struct {
	manager  *app.SessionManager
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(manager *app.SessionManager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, validate: validator.New(), logger: logger}
}

type submitRequest struct {
	Answers []*string `json:"answers" validate:"max=1000"`
	Auto    bool      `json:"auto"`
}

// StartResponse carries the authoritative deadline plus the server's clock so
// clients can count down without trusting their own.
type StartResponse struct {
	QuizCode         string    `json:"quizCode"`
	ParticipantID    string    `json:"participantId"`
	StartedAt        time.Time `json:"startedAt"`
	Deadline         time.Time `json:"deadline"`
	ServerTime       time.Time `json:"serverTime"`
	RemainingSeconds float64   `json:"remainingSeconds"`
}

type SubmissionResponse struct {
	ID            string                `json:"id"`
	QuizCode      string                `json:"quizCode"`
	ParticipantID string                `json:"participantId"`
	Score         int                   `json:"score"`
	Total         int                   `json:"total"`
	Detail        []domain.AnswerDetail `json:"detail"`
	SubmittedAt   time.Time             `json:"submittedAt"`
	Auto          bool                  `json:"auto"`
}

func toSubmissionResponse(s domain.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:            s.ID,
		QuizCode:      s.Key.QuizCode,
		ParticipantID: s.Key.ParticipantID,
		Score:         s.Score,
		Total:         s.Total,
		Detail:        s.SelectedAnswers,
		SubmittedAt:   s.SubmittedAt,
		Auto:          s.Auto,
	}
}

func (h *Handler) startResponse(session domain.AttemptSession) StartResponse {
	now := h.manager.Clock().Now()
	return StartResponse{
		QuizCode:         session.Key.QuizCode,
		ParticipantID:    session.Key.ParticipantID,
		StartedAt:        session.StartedAt,
		Deadline:         session.Deadline,
		ServerTime:       now,
		RemainingSeconds: session.Remaining(now).Seconds(),
	}
}

func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.manager.Quiz(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	session, err := h.manager.Start(r.Context(), chi.URLParam(r, "code"), principal.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.startResponse(session))
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())

	var req submitRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, domain.NewValidationError("body", "malformed json"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, h.logger, fieldError(err))
		return
	}

	submission, err := h.manager.Submit(r.Context(), chi.URLParam(r, "code"), principal.ID, domain.AnswersFromList(req.Answers), req.Auto)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(submission))
}

func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	submission, err := h.manager.Submission(r.Context(), chi.URLParam(r, "code"), principal.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(submission))
}

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	submissions, err := h.manager.Submissions(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]SubmissionResponse, len(submissions))
	for i, s := range submissions {
		out[i] = toSubmissionResponse(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// fieldError reduces validator output to the first failing field.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return domain.NewValidationError(verrs[0].Field(), "failed "+verrs[0].Tag())
	}
	return domain.NewValidationError("body", err.Error())
}
