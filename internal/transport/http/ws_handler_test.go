package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-attempt-service/internal/domain"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dialAttempt(t *testing.T, env *testEnv, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/attempt?quizCode=ABC123&access_token=" + token
	return websocket.DefaultDialer.Dial(u, nil)
}

// readUntil skips tick messages until a message of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %s: %v", want, err)
		}
		if msg.Type == want {
			return msg
		}
		if msg.Type == "error" && want != "error" {
			t.Fatalf("unexpected error message while waiting for %s: %s", want, msg.Payload)
		}
	}
}

func TestAttemptSocketAutoSubmitsAtDeadline(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "alice", domain.RoleParticipant)

	conn, _, err := dialAttempt(t, env, token)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var started startedPayload
	if err := json.Unmarshal(readUntil(t, conn, "started").Payload, &started); err != nil {
		t.Fatalf("decode started: %v", err)
	}
	if started.RemainingSeconds != 60 || len(started.Quiz.Questions) != 2 {
		t.Fatalf("unexpected started payload %+v", started)
	}

	if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"index": 0, "option": "4"}}); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readUntil(t, conn, "answered")

	env.clock.Advance(61 * time.Second)

	var result SubmissionResponse
	if err := json.Unmarshal(readUntil(t, conn, "submitted").Payload, &result); err != nil {
		t.Fatalf("decode submitted: %v", err)
	}
	if !result.Auto || result.Score != 1 || result.Total != 2 {
		t.Fatalf("unexpected auto submission %+v", result)
	}

	token2 := env.token(t, "alice", domain.RoleParticipant)
	if code := env.do(t, http.MethodPost, "/quizzes/ABC123/submit", token2, map[string]any{}, nil); code != http.StatusConflict {
		t.Fatalf("manual submit after auto: expected 409, got %d", code)
	}
}

func TestAttemptSocketManualSubmit(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "bob", domain.RoleParticipant)

	conn, _, err := dialAttempt(t, env, token)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readUntil(t, conn, "started")

	submit := map[string]any{"type": "submit", "payload": map[string]any{"answers": []*string{ptr("4"), ptr("6")}}}
	if err := conn.WriteJSON(submit); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	var result SubmissionResponse
	if err := json.Unmarshal(readUntil(t, conn, "submitted").Payload, &result); err != nil {
		t.Fatalf("decode submitted: %v", err)
	}
	if result.Auto || result.Score != 2 {
		t.Fatalf("unexpected manual submission %+v", result)
	}

	if err := conn.WriteJSON(submit); err != nil {
		t.Fatalf("write resubmit: %v", err)
	}
	var failure wsErrorPayload
	if err := json.Unmarshal(readUntil(t, conn, "error").Payload, &failure); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if failure.Code != "already_submitted" {
		t.Fatalf("expected already_submitted, got %+v", failure)
	}
	conn.Close()

	// Deadline passes with the session already submitted: nothing else is recorded.
	env.clock.Advance(2 * time.Minute)
	_, resp, err := dialAttempt(t, env, token)
	if err == nil {
		t.Fatalf("expected reconnect after submission to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 on reconnect, got %+v", resp)
	}
}

func TestAttemptSocketRejectsUnknownQuiz(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "carol", domain.RoleParticipant)
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/attempt?quizCode=NOPE42&access_token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func TestAttemptSocketRejectsUnknownOption(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "carol", domain.RoleParticipant)

	conn, _, err := dialAttempt(t, env, token)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, "started")

	if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"index": 0, "option": "4"}}); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readUntil(t, conn, "answered")

	if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"index": 1, "option": "42"}}); err != nil {
		t.Fatalf("write bad answer: %v", err)
	}
	var failure wsErrorPayload
	if err := json.Unmarshal(readUntil(t, conn, "error").Payload, &failure); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if failure.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %+v", failure)
	}

	// The rejected option is not kept, so the auto-submit still records the valid answer.
	env.clock.Advance(61 * time.Second)
	var result SubmissionResponse
	if err := json.Unmarshal(readUntil(t, conn, "submitted").Payload, &result); err != nil {
		t.Fatalf("decode submitted: %v", err)
	}
	if !result.Auto || result.Score != 1 {
		t.Fatalf("unexpected auto submission %+v", result)
	}
}
