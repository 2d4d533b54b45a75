package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.AttemptStore. State is
// lost on restart; use the redis or sql adapters for durable deadlines.
type SessionStore struct {
	mu          sync.RWMutex
	sessions    map[domain.SessionKey]domain.AttemptSession
	claims      map[domain.SessionKey]struct{}
	submissions map[string]map[string]domain.Submission
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:    make(map[domain.SessionKey]domain.AttemptSession),
		claims:      make(map[domain.SessionKey]struct{}),
		submissions: make(map[string]map[string]domain.Submission),
	}
}

func (s *SessionStore) CreateSession(_ context.Context, session domain.AttemptSession) (domain.AttemptSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[session.Key]; ok {
		return existing, false, nil
	}
	s.sessions[session.Key] = session
	return session, true, nil
}

func (s *SessionStore) GetSession(_ context.Context, key domain.SessionKey) (domain.AttemptSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	if !ok {
		return domain.AttemptSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) ListExpired(_ context.Context, cutoff time.Time, limit int) ([]domain.AttemptSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var expired []domain.AttemptSession
	for _, session := range s.sessions {
		if session.Status == domain.SessionStarted && session.Deadline.Before(cutoff) {
			expired = append(expired, session)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].Deadline.Before(expired[j].Deadline)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (s *SessionStore) MarkStalled(_ context.Context, key domain.SessionKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	if !ok || session.Status != domain.SessionStarted {
		return false, nil
	}
	if _, submitted := s.submissions[key.QuizCode][key.ParticipantID]; submitted {
		return false, nil
	}
	session.Status = domain.SessionStalled
	s.sessions[key] = session
	return true, nil
}

// TryClaim is a check-and-set on the claims map under the store lock.
func (s *SessionStore) TryClaim(_ context.Context, key domain.SessionKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.claims[key]; taken {
		return false, nil
	}
	s.claims[key] = struct{}{}
	return true, nil
}

func (s *SessionStore) SaveSubmission(_ context.Context, submission domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := submission.Key
	byParticipant, ok := s.submissions[key.QuizCode]
	if !ok {
		byParticipant = make(map[string]domain.Submission)
		s.submissions[key.QuizCode] = byParticipant
	}
	if _, exists := byParticipant[key.ParticipantID]; exists {
		return domain.ErrAlreadySubmitted
	}
	byParticipant[key.ParticipantID] = submission

	if session, ok := s.sessions[key]; ok {
		submittedAt := submission.SubmittedAt
		session.Status = domain.SessionSubmitted
		session.SubmittedAt = &submittedAt
		s.sessions[key] = session
	}
	return nil
}

func (s *SessionStore) GetSubmission(_ context.Context, key domain.SessionKey) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	submission, ok := s.submissions[key.QuizCode][key.ParticipantID]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return submission, nil
}

func (s *SessionStore) ListSubmissions(_ context.Context, quizCode string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0, len(s.submissions[quizCode]))
	for _, submission := range s.submissions[quizCode] {
		out = append(out, submission)
	}
	sortSubmissions(out)
	return out, nil
}

func sortSubmissions(subs []domain.Submission) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
		}
		return subs[i].Key.ParticipantID < subs[j].Key.ParticipantID
	})
}
