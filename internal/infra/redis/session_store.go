package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/domain"
)

// SessionStore is a Redis implementation of app.AttemptStore.
// Keys:
//
//	attempt:{quiz}:{participant}:session     JSON AttemptSession, written once (SET NX)
//	attempt:{quiz}:{participant}:claim       submission claim marker (SET NX)
//	attempt:{quiz}:{participant}:submission  JSON Submission
//	quiz:{quiz}:submissions                  SET of participant IDs with a submission
//	attempt:deadlines                        ZSET of started sessions scored by deadline (ms)
//
// Keys carry no TTL: sessions and submissions are the audit record.
type SessionStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client, now: time.Now}
}

const deadlinesKey = "attempt:deadlines"

// createSessionScript writes the session only if absent and indexes its
// deadline in the same step; otherwise it returns the stored session.
var createSessionScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
  return {1, ARGV[1]}
end
return {0, redis.call('GET', KEYS[1])}
`)

// saveSubmissionScript stores the submission once and flips the session to submitted.
var saveSubmissionScript = redis.NewScript(`
if not redis.call('SET', KEYS[1], ARGV[1], 'NX') then
  return 0
end
redis.call('SADD', KEYS[2], ARGV[2])
if ARGV[3] ~= '' then
  redis.call('SET', KEYS[3], ARGV[3])
end
redis.call('ZREM', KEYS[4], ARGV[4])
return 1
`)

// markStalledScript flips the session unless a submission landed first and
// drops it from the deadline index.
var markStalledScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
redis.call('ZREM', KEYS[3], ARGV[2])
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

func (s *SessionStore) CreateSession(ctx context.Context, session domain.AttemptSession) (domain.AttemptSession, bool, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return domain.AttemptSession{}, false, fmt.Errorf("marshal session: %w", err)
	}

	res, err := createSessionScript.Run(ctx, s.client,
		[]string{sessionKey(session.Key), deadlinesKey},
		string(data), session.Deadline.UnixMilli(), session.Key.String(),
	).Slice()
	if err != nil {
		return domain.AttemptSession{}, false, fmt.Errorf("create session: %w", err)
	}
	if len(res) != 2 {
		return domain.AttemptSession{}, false, fmt.Errorf("create session: unexpected reply %v", res)
	}

	created, _ := res[0].(int64)
	raw, _ := res[1].(string)
	var stored domain.AttemptSession
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return domain.AttemptSession{}, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return stored, created == 1, nil
}

func (s *SessionStore) GetSession(ctx context.Context, key domain.SessionKey) (domain.AttemptSession, error) {
	raw, err := s.client.Get(ctx, sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AttemptSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.AttemptSession{}, fmt.Errorf("get session: %w", err)
	}
	var session domain.AttemptSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.AttemptSession{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

func (s *SessionStore) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.AttemptSession, error) {
	by := &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	members, err := s.client.ZRangeByScore(ctx, deadlinesKey, by).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}

	sessions := make([]domain.AttemptSession, 0, len(members))
	for _, member := range members {
		key, ok := parseMember(member)
		if !ok {
			continue
		}
		session, err := s.GetSession(ctx, key)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if session.Status == domain.SessionStarted {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (s *SessionStore) MarkStalled(ctx context.Context, key domain.SessionKey) (bool, error) {
	session, err := s.GetSession(ctx, key)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if session.Status != domain.SessionStarted {
		return false, nil
	}
	session.Status = domain.SessionStalled
	data, err := json.Marshal(session)
	if err != nil {
		return false, fmt.Errorf("marshal session: %w", err)
	}

	changed, err := markStalledScript.Run(ctx, s.client,
		[]string{sessionKey(key), submissionKey(key), deadlinesKey},
		string(data), key.String(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("mark stalled: %w", err)
	}
	return changed == 1, nil
}

// TryClaim relies on SET NX: exactly one caller across all instances sees true.
func (s *SessionStore) TryClaim(ctx context.Context, key domain.SessionKey) (bool, error) {
	granted, err := s.client.SetNX(ctx, claimKey(key), s.now().UTC().Format(time.RFC3339Nano), 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	return granted, nil
}

func (s *SessionStore) SaveSubmission(ctx context.Context, submission domain.Submission) error {
	key := submission.Key
	data, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	var sessionData []byte
	session, err := s.GetSession(ctx, key)
	switch {
	case err == nil:
		submittedAt := submission.SubmittedAt
		session.Status = domain.SessionSubmitted
		session.SubmittedAt = &submittedAt
		if sessionData, err = json.Marshal(session); err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
	case !errors.Is(err, domain.ErrSessionNotFound):
		return err
	}

	stored, err := saveSubmissionScript.Run(ctx, s.client,
		[]string{submissionKey(key), quizSubmissionsKey(key.QuizCode), sessionKey(key), deadlinesKey},
		string(data), key.ParticipantID, string(sessionData), key.String(),
	).Int()
	if err != nil {
		return fmt.Errorf("save submission: %w", err)
	}
	if stored == 0 {
		return domain.ErrAlreadySubmitted
	}
	return nil
}

func (s *SessionStore) GetSubmission(ctx context.Context, key domain.SessionKey) (domain.Submission, error) {
	raw, err := s.client.Get(ctx, submissionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	var submission domain.Submission
	if err := json.Unmarshal(raw, &submission); err != nil {
		return domain.Submission{}, fmt.Errorf("unmarshal submission: %w", err)
	}
	return submission, nil
}

func (s *SessionStore) ListSubmissions(ctx context.Context, quizCode string) ([]domain.Submission, error) {
	participants, err := s.client.SMembers(ctx, quizSubmissionsKey(quizCode)).Result()
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if len(participants) == 0 {
		return []domain.Submission{}, nil
	}

	keys := make([]string, len(participants))
	for i, participant := range participants {
		keys[i] = submissionKey(domain.SessionKey{QuizCode: quizCode, ParticipantID: participant})
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}

	out := make([]domain.Submission, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var submission domain.Submission
		if err := json.Unmarshal([]byte(raw), &submission); err != nil {
			return nil, fmt.Errorf("unmarshal submission: %w", err)
		}
		out = append(out, submission)
	}
	sortSubmissions(out)
	return out, nil
}

func sessionKey(key domain.SessionKey) string {
	return "attempt:" + key.QuizCode + ":" + key.ParticipantID + ":session"
}

func claimKey(key domain.SessionKey) string {
	return "attempt:" + key.QuizCode + ":" + key.ParticipantID + ":claim"
}

func submissionKey(key domain.SessionKey) string {
	return "attempt:" + key.QuizCode + ":" + key.ParticipantID + ":submission"
}

func quizSubmissionsKey(quizCode string) string {
	return "quiz:" + quizCode + ":submissions"
}

// parseMember reverses SessionKey.String; quiz codes never contain '/'.
func parseMember(member string) (domain.SessionKey, bool) {
	quizCode, participantID, ok := strings.Cut(member, "/")
	if !ok || quizCode == "" || participantID == "" {
		return domain.SessionKey{}, false
	}
	return domain.SessionKey{QuizCode: quizCode, ParticipantID: participantID}, true
}

func sortSubmissions(subs []domain.Submission) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
		}
		return subs[i].Key.ParticipantID < subs[j].Key.ParticipantID
	})
}
