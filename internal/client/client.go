// Package client calls the attempt API over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"
	transport "quiz-attempt-service/internal/transport/http"
)

// Client is bound to one bearer token, i.e. one participant.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx reply. Unwrap yields the matching domain error, so
// callers can use errors.Is(err, domain.ErrAlreadySubmitted).
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "quiz_not_found":
		return domain.ErrQuizNotFound
	case "session_not_found":
		return domain.ErrSessionNotFound
	case "submission_not_found":
		return domain.ErrSubmissionNotFound
	case "forbidden":
		return domain.ErrForbidden
	case "already_submitted":
		return domain.ErrAlreadySubmitted
	case "validation_error":
		return domain.ErrValidation
	case "deadline_passed":
		return domain.ErrDeadlinePassed
	case "unauthorized":
		return domain.ErrUnauthorized
	}
	if e.Status == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	return nil
}

func (c *Client) Quiz(ctx context.Context, code string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := c.do(ctx, http.MethodGet, "/quizzes/"+code, nil, &quiz)
	return quiz, err
}

// Start returns the session plus the local time the reply was read, for
// aligning a countdown to the server clock.
func (c *Client) Start(ctx context.Context, code string) (transport.StartResponse, time.Time, error) {
	var resp transport.StartResponse
	err := c.do(ctx, http.MethodPost, "/quizzes/"+code+"/start", nil, &resp)
	return resp, time.Now(), err
}

func (c *Client) Submit(ctx context.Context, code string, answers []*string, auto bool) (transport.SubmissionResponse, error) {
	body := map[string]any{"answers": answers, "auto": auto}
	var resp transport.SubmissionResponse
	err := c.do(ctx, http.MethodPost, "/quizzes/"+code+"/submit", body, &resp)
	return resp, err
}

func (c *Client) Submission(ctx context.Context, code string) (transport.SubmissionResponse, error) {
	var resp transport.SubmissionResponse
	err := c.do(ctx, http.MethodGet, "/quizzes/"+code+"/submission", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Code == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
