package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"
)

// FinalizeExpired auto-submits, with no answers, started sessions whose
// deadline plus grace has passed. It returns how many submissions it recorded.
// Sessions that cannot be finalized are marked stalled so later sweeps move past them.
func (m *SessionManager) FinalizeExpired(ctx context.Context, limit int) (int, error) {
	cutoff := m.clock.Now()
	if m.grace > 0 {
		cutoff = cutoff.Add(-m.grace)
	}
	expired, err := m.store.ListExpired(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	finalized := 0
	for _, session := range expired {
		_, err := m.submit(ctx, session.Key, domain.Answers{}, true, false)
		switch {
		case err == nil:
			finalized++
		case errors.Is(err, domain.ErrAlreadySubmitted), errors.Is(err, domain.ErrQuizNotFound):
			// A submit that is still persisting flips the session to submitted
			// after this, so only a claim that was never saved stays stalled.
			if err := m.stall(ctx, session.Key, err); err != nil {
				return finalized, err
			}
		default:
			return finalized, err
		}
	}
	return finalized, nil
}

func (m *SessionManager) stall(ctx context.Context, key domain.SessionKey, cause error) error {
	changed, err := m.store.MarkStalled(ctx, key)
	if err != nil {
		return fmt.Errorf("mark stalled: %w", err)
	}
	if changed {
		m.logger.WarnContext(ctx, "expired session cannot be finalized",
			"quiz_code", key.QuizCode,
			"participant_id", key.ParticipantID,
			"cause", cause)
	}
	return nil
}

// RunReaper calls FinalizeExpired every interval until ctx is done.
func (m *SessionManager) RunReaper(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.FinalizeExpired(ctx, batch)
			if err != nil {
				m.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.InfoContext(ctx, "finalized expired attempts", "count", n)
			}
		}
	}
}
