package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quiz-attempt-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, code string) (domain.Quiz, error)
}

// SessionStore persists attempt sessions keyed by (quiz code, participant).
type SessionStore interface {
	// CreateSession stores session unless one exists for its key, and returns
	// the stored session plus whether it was created by this call.
	CreateSession(ctx context.Context, session domain.AttemptSession) (domain.AttemptSession, bool, error)
	GetSession(ctx context.Context, key domain.SessionKey) (domain.AttemptSession, error)
	// ListExpired returns started sessions whose deadline is before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.AttemptSession, error)
	// MarkStalled moves a started session without a submission to stalled,
	// taking it out of ListExpired. It reports whether the status changed.
	MarkStalled(ctx context.Context, key domain.SessionKey) (bool, error)
}

// SubmissionGuard grants the single submission slot of a session.
type SubmissionGuard interface {
	// TryClaim reports true for exactly one caller per key, across all callers.
	TryClaim(ctx context.Context, key domain.SessionKey) (bool, error)
}

// SubmissionStore persists scored submissions.
type SubmissionStore interface {
	// SaveSubmission stores the submission and marks its session submitted in one write.
	SaveSubmission(ctx context.Context, submission domain.Submission) error
	GetSubmission(ctx context.Context, key domain.SessionKey) (domain.Submission, error)
	ListSubmissions(ctx context.Context, quizCode string) ([]domain.Submission, error)
}

// AttemptStore is implemented by every storage adapter.
type AttemptStore interface {
	SessionStore
	SubmissionGuard
	SubmissionStore
}

// EventPublisher announces recorded submissions to downstream collaborators.
type EventPublisher interface {
	SubmissionRecorded(ctx context.Context, submission domain.Submission) error
}

// DefaultSubmitGrace is how long after the deadline a submit is still accepted.
const DefaultSubmitGrace = 30 * time.Second

// SessionManager runs the attempt lifecycle: Start, then exactly one Submit.
type SessionManager struct {
	quizzes QuizRepository
	store   AttemptStore
	clock   *SessionClock
	events  EventPublisher
	grace   time.Duration
	logger  *slog.Logger
}

// Option customizes a SessionManager.
type Option func(*SessionManager)

// WithClock replaces the server time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *SessionManager) { m.clock = NewSessionClock(m.store, now) }
}

// WithSubmitGrace sets the late-submit allowance; a negative grace disables deadline enforcement.
func WithSubmitGrace(grace time.Duration) Option {
	return func(m *SessionManager) { m.grace = grace }
}

// WithEvents publishes every recorded submission to events.
func WithEvents(events EventPublisher) Option {
	return func(m *SessionManager) { m.events = events }
}

// WithLogger sets the structured logger; slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(m *SessionManager) { m.logger = logger }
}

// NewSessionManager wires the attempt lifecycle over a quiz source and a store.
func NewSessionManager(quizzes QuizRepository, store AttemptStore, opts ...Option) *SessionManager {
	m := &SessionManager{
		quizzes: quizzes,
		store:   store,
		clock:   NewSessionClock(store, time.Now),
		grace:   DefaultSubmitGrace,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Clock exposes the authoritative time source to transports.
func (m *SessionManager) Clock() *SessionClock {
	return m.clock
}

// Start anchors the participant's deadline. Repeated calls return the same session.
func (m *SessionManager) Start(ctx context.Context, quizCode, participantID string) (domain.AttemptSession, error) {
	quizCode = domain.NormalizeCode(quizCode)
	quiz, err := m.quizzes.GetQuiz(ctx, quizCode)
	if err != nil {
		return domain.AttemptSession{}, err
	}
	key := domain.SessionKey{QuizCode: quizCode, ParticipantID: participantID}

	if _, err := m.store.GetSubmission(ctx, key); err == nil {
		return domain.AttemptSession{}, domain.ErrForbidden
	} else if !errors.Is(err, domain.ErrSubmissionNotFound) {
		return domain.AttemptSession{}, err
	}

	session, err := m.clock.Anchor(ctx, key, quiz.Duration())
	if err != nil {
		return domain.AttemptSession{}, fmt.Errorf("anchor session: %w", err)
	}
	if session.Status != domain.SessionStarted {
		return domain.AttemptSession{}, domain.ErrForbidden
	}
	m.logger.InfoContext(ctx, "attempt started",
		"quiz_code", key.QuizCode,
		"participant_id", participantID,
		"deadline", session.Deadline)
	return session, nil
}

// Submit scores answers and records the single submission for the session.
// Losing the race to another submit returns domain.ErrAlreadySubmitted.
func (m *SessionManager) Submit(ctx context.Context, quizCode, participantID string, answers domain.Answers, auto bool) (domain.Submission, error) {
	key := domain.SessionKey{QuizCode: domain.NormalizeCode(quizCode), ParticipantID: participantID}
	return m.submit(ctx, key, answers, auto, true)
}

func (m *SessionManager) submit(ctx context.Context, key domain.SessionKey, answers domain.Answers, auto, enforceDeadline bool) (domain.Submission, error) {
	quiz, err := m.quizzes.GetQuiz(ctx, key.QuizCode)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := validateAnswers(quiz.Questions, answers); err != nil {
		return domain.Submission{}, err
	}

	session, err := m.store.GetSession(ctx, key)
	if err != nil {
		return domain.Submission{}, err
	}
	now := m.clock.Now()
	if enforceDeadline && m.grace >= 0 && now.After(session.Deadline.Add(m.grace)) {
		return domain.Submission{}, domain.ErrDeadlinePassed
	}

	granted, err := m.store.TryClaim(ctx, key)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("claim submission: %w", err)
	}
	if !granted {
		m.logger.InfoContext(ctx, "submission already claimed",
			"quiz_code", key.QuizCode,
			"participant_id", key.ParticipantID,
			"auto", auto)
		return domain.Submission{}, domain.ErrAlreadySubmitted
	}

	score, detail := Score(quiz.Questions, answers)
	submission := domain.Submission{
		ID:              uuid.NewString(),
		Key:             key,
		Score:           score,
		Total:           len(quiz.Questions),
		SelectedAnswers: detail,
		SubmittedAt:     now,
		Auto:            auto,
	}
	if err := m.store.SaveSubmission(ctx, submission); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist claimed submission",
			"quiz_code", key.QuizCode,
			"participant_id", key.ParticipantID,
			"error", err)
		return domain.Submission{}, fmt.Errorf("save submission: %w", err)
	}

	m.logger.InfoContext(ctx, "submission recorded",
		"quiz_code", key.QuizCode,
		"participant_id", key.ParticipantID,
		"score", score,
		"total", submission.Total,
		"auto", auto)

	if m.events != nil {
		if err := m.events.SubmissionRecorded(ctx, submission); err != nil {
			m.logger.WarnContext(ctx, "failed to publish submission event",
				"submission_id", submission.ID,
				"error", err)
		}
	}
	return submission, nil
}

// Session returns the stored attempt for a participant.
func (m *SessionManager) Session(ctx context.Context, quizCode, participantID string) (domain.AttemptSession, error) {
	return m.store.GetSession(ctx, domain.SessionKey{QuizCode: domain.NormalizeCode(quizCode), ParticipantID: participantID})
}

// Submission returns the participant's recorded submission.
func (m *SessionManager) Submission(ctx context.Context, quizCode, participantID string) (domain.Submission, error) {
	return m.store.GetSubmission(ctx, domain.SessionKey{QuizCode: domain.NormalizeCode(quizCode), ParticipantID: participantID})
}

// Submissions lists every submission recorded for a quiz.
func (m *SessionManager) Submissions(ctx context.Context, quizCode string) ([]domain.Submission, error) {
	quizCode = domain.NormalizeCode(quizCode)
	if _, err := m.quizzes.GetQuiz(ctx, quizCode); err != nil {
		return nil, err
	}
	return m.store.ListSubmissions(ctx, quizCode)
}

// Quiz returns the participant view of a quiz.
func (m *SessionManager) Quiz(ctx context.Context, quizCode string) (domain.Quiz, error) {
	quiz, err := m.quizzes.GetQuiz(ctx, domain.NormalizeCode(quizCode))
	if err != nil {
		return domain.Quiz{}, err
	}
	return quiz.PublicView(), nil
}
