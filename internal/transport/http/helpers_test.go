package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	server *httptest.Server
	clock  *fakeClock
	auth   *auth.Service
	store  *memory.SessionStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"ABC123": sampleQuiz(),
	}), time.Minute)
	manager := app.NewSessionManager(quizzes, store,
		app.WithClock(clock.Now),
		app.WithLogger(logger),
	)
	authn := auth.NewService("test-secret", time.Hour)

	router := NewRouter(
		NewHandler(manager, logger),
		NewAttemptHandler(manager, 10*time.Millisecond, logger),
		authn, nil, logger,
	)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{server: server, clock: clock, auth: authn, store: store}
}

func (e *testEnv) token(t *testing.T, id string, role domain.Role) string {
	t.Helper()
	token, err := e.auth.Issue(domain.Principal{ID: id, Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		Code:            "ABC123",
		Title:           "Arithmetic",
		DurationMinutes: 1,
		Questions: []domain.Question{
			{Text: "2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
			{Text: "3 + 3?", Options: []string{"5", "6"}, CorrectAnswer: "6"},
		},
	}
}

func ptr(s string) *string { return &s }
