// Package sqlstore persists attempts in Postgres or SQLite through bun.
// Every "at most one" rule is a primary key plus INSERT ... ON CONFLICT DO NOTHING,
// so it holds across processes and restarts.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite" // driver: sqlite

	"quiz-attempt-service/internal/domain"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

const defaultSQLiteDSN = "file:quiz-attempts.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver Driver, dsn string) (*bun.DB, error) {
	var db *bun.DB
	switch driver {
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres url not configured")
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; a single connection serializes claims instead of failing them with SQLITE_BUSY.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Store implements app.AttemptStore and the quiz loader on a bun database.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

func New(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) CreateSession(ctx context.Context, session domain.AttemptSession) (domain.AttemptSession, bool, error) {
	row := sessionRowFrom(session)
	res, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.AttemptSession{}, false, fmt.Errorf("insert session: %w", err)
	}
	if affectedOne(res) {
		return session, true, nil
	}
	stored, err := s.GetSession(ctx, session.Key)
	return stored, false, err
}

func (s *Store) GetSession(ctx context.Context, key domain.SessionKey) (domain.AttemptSession, error) {
	var row SessionRow
	err := s.db.NewSelect().
		Model(&row).
		Where("quiz_code = ?", key.QuizCode).
		Where("participant_id = ?", key.ParticipantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AttemptSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.AttemptSession{}, fmt.Errorf("select session: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.AttemptSession, error) {
	var rows []SessionRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("status = ?", string(domain.SessionStarted)).
		Where("deadline < ?", cutoff.UTC()).
		Order("deadline ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("select expired sessions: %w", err)
	}
	sessions := make([]domain.AttemptSession, len(rows))
	for i, row := range rows {
		sessions[i] = row.toDomain()
	}
	return sessions, nil
}

// MarkStalled only touches a session that is still started; SaveSubmission
// sets submitted unconditionally, so a late save wins over the mark.
func (s *Store) MarkStalled(ctx context.Context, key domain.SessionKey) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*SessionRow)(nil)).
		Set("status = ?", string(domain.SessionStalled)).
		Where("quiz_code = ?", key.QuizCode).
		Where("participant_id = ?", key.ParticipantID).
		Where("status = ?", string(domain.SessionStarted)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark session stalled: %w", err)
	}
	return affectedOne(res), nil
}

// TryClaim inserts the claim row; the primary key lets exactly one insert through.
func (s *Store) TryClaim(ctx context.Context, key domain.SessionKey) (bool, error) {
	row := ClaimRow{
		QuizCode:      key.QuizCode,
		ParticipantID: key.ParticipantID,
		ClaimedAt:     s.now().UTC(),
	}
	res, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("insert claim: %w", err)
	}
	return affectedOne(res), nil
}

func (s *Store) SaveSubmission(ctx context.Context, submission domain.Submission) error {
	row := submissionRowFrom(submission)
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().
			Model(&row).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		if !affectedOne(res) {
			return domain.ErrAlreadySubmitted
		}

		submittedAt := row.SubmittedAt
		_, err = tx.NewUpdate().
			Model((*SessionRow)(nil)).
			Set("status = ?", string(domain.SessionSubmitted)).
			Set("submitted_at = ?", submittedAt).
			Where("quiz_code = ?", row.QuizCode).
			Where("participant_id = ?", row.ParticipantID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("mark session submitted: %w", err)
		}
		return nil
	})
}

func (s *Store) GetSubmission(ctx context.Context, key domain.SessionKey) (domain.Submission, error) {
	var row SubmissionRow
	err := s.db.NewSelect().
		Model(&row).
		Where("quiz_code = ?", key.QuizCode).
		Where("participant_id = ?", key.ParticipantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("select submission: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListSubmissions(ctx context.Context, quizCode string) ([]domain.Submission, error) {
	var rows []SubmissionRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("quiz_code = ?", quizCode).
		Order("submitted_at ASC", "participant_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	out := make([]domain.Submission, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// LoadQuiz reads quiz content published by the authoring collaborator.
func (s *Store) LoadQuiz(ctx context.Context, code string) (domain.Quiz, error) {
	var row QuizRow
	err := s.db.NewSelect().
		Model(&row).
		Where("code = ?", code).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("select quiz: %w", err)
	}
	quiz := row.Data
	quiz.Code = row.Code
	return quiz, nil
}

// SaveQuiz upserts a quiz document.
func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	row := QuizRow{
		Code:      quiz.Code,
		Data:      quiz,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (code) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert quiz: %w", err)
	}
	return nil
}

func affectedOne(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n == 1
}
