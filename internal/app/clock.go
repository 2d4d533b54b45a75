package app

import (
	"context"
	"time"

	"quiz-attempt-service/internal/domain"
)

// SessionClock owns the authoritative deadline of each attempt. The deadline is
// computed once from server time and stored; later calls return the stored value.
type SessionClock struct {
	sessions SessionStore
	now      func() time.Time
}

func NewSessionClock(sessions SessionStore, now func() time.Time) *SessionClock {
	if now == nil {
		now = time.Now
	}
	return &SessionClock{sessions: sessions, now: now}
}

// Now is the server time anchor used for every deadline decision.
func (c *SessionClock) Now() time.Time {
	return c.now().UTC().Truncate(time.Millisecond)
}

// Anchor creates the session for key if absent and returns the stored one.
func (c *SessionClock) Anchor(ctx context.Context, key domain.SessionKey, duration time.Duration) (domain.AttemptSession, error) {
	startedAt := c.Now()
	session, _, err := c.sessions.CreateSession(ctx, domain.AttemptSession{
		Key:       key,
		StartedAt: startedAt,
		Deadline:  startedAt.Add(duration),
		Status:    domain.SessionStarted,
	})
	return session, err
}

// Remaining recomputes the time left from the stored deadline.
func (c *SessionClock) Remaining(session domain.AttemptSession) time.Duration {
	return session.Remaining(c.Now())
}
