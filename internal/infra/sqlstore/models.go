package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"quiz-attempt-service/internal/domain"
)

// QuizRow stores the full quiz document; the postgres loader reads data as JSONB.
type QuizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	Code      string      `bun:"code,pk"`
	Data      domain.Quiz `bun:"data,notnull"`
	CreatedAt time.Time   `bun:"created_at,notnull"`
}

// SessionRow is one attempt. The primary key makes Start idempotent.
type SessionRow struct {
	bun.BaseModel `bun:"table:attempt_sessions"`

	QuizCode      string     `bun:"quiz_code,pk"`
	ParticipantID string     `bun:"participant_id,pk"`
	StartedAt     time.Time  `bun:"started_at,notnull"`
	Deadline      time.Time  `bun:"deadline,notnull"`
	Status        string     `bun:"status,notnull"`
	SubmittedAt   *time.Time `bun:"submitted_at"`
}

// ClaimRow is the submission slot; its primary key is the guard.
type ClaimRow struct {
	bun.BaseModel `bun:"table:submission_claims"`

	QuizCode      string    `bun:"quiz_code,pk"`
	ParticipantID string    `bun:"participant_id,pk"`
	ClaimedAt     time.Time `bun:"claimed_at,notnull"`
}

type SubmissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	QuizCode        string                `bun:"quiz_code,pk"`
	ParticipantID   string                `bun:"participant_id,pk"`
	ID              string                `bun:"id,notnull,unique"`
	Score           int                   `bun:"score,notnull"`
	Total           int                   `bun:"total,notnull"`
	SelectedAnswers []domain.AnswerDetail `bun:"selected_answers,notnull"`
	SubmittedAt     time.Time             `bun:"submitted_at,notnull"`
	Auto            bool                  `bun:"auto,notnull"`
}

func sessionRowFrom(s domain.AttemptSession) SessionRow {
	return SessionRow{
		QuizCode:      s.Key.QuizCode,
		ParticipantID: s.Key.ParticipantID,
		StartedAt:     s.StartedAt.UTC(),
		Deadline:      s.Deadline.UTC(),
		Status:        string(s.Status),
		SubmittedAt:   s.SubmittedAt,
	}
}

func (r SessionRow) toDomain() domain.AttemptSession {
	session := domain.AttemptSession{
		Key:       domain.SessionKey{QuizCode: r.QuizCode, ParticipantID: r.ParticipantID},
		StartedAt: r.StartedAt.UTC(),
		Deadline:  r.Deadline.UTC(),
		Status:    domain.SessionStatus(r.Status),
	}
	if r.SubmittedAt != nil {
		at := r.SubmittedAt.UTC()
		session.SubmittedAt = &at
	}
	return session
}

func submissionRowFrom(s domain.Submission) SubmissionRow {
	return SubmissionRow{
		QuizCode:        s.Key.QuizCode,
		ParticipantID:   s.Key.ParticipantID,
		ID:              s.ID,
		Score:           s.Score,
		Total:           s.Total,
		SelectedAnswers: s.SelectedAnswers,
		SubmittedAt:     s.SubmittedAt.UTC(),
		Auto:            s.Auto,
	}
}

func (r SubmissionRow) toDomain() domain.Submission {
	return domain.Submission{
		ID:              r.ID,
		Key:             domain.SessionKey{QuizCode: r.QuizCode, ParticipantID: r.ParticipantID},
		Score:           r.Score,
		Total:           r.Total,
		SelectedAnswers: r.SelectedAnswers,
		SubmittedAt:     r.SubmittedAt.UTC(),
		Auto:            r.Auto,
	}
}
