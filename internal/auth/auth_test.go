package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
)

func TestIssueAndParse(t *testing.T) {
	svc := NewService("secret", time.Hour)
	token, err := svc.Issue(domain.Principal{ID: "u1", Role: domain.RoleParticipant})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	p, err := svc.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.ID != "u1" || p.Role != domain.RoleParticipant {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	svc := NewService("secret", time.Minute)
	other := NewService("other-secret", time.Minute)

	foreign, _ := other.Issue(domain.Principal{ID: "u1", Role: domain.RoleOrganizer})
	if _, err := svc.Parse(foreign); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign signature, got %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return past }
	stale, _ := svc.Issue(domain.Principal{ID: "u1", Role: domain.RoleParticipant})
	svc.now = time.Now
	if _, err := svc.Parse(stale); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}

	if _, err := svc.Issue(domain.Principal{ID: "u1"}); err == nil {
		t.Fatalf("expected issue to reject unknown role")
	}
}

func TestMiddlewareAndRequireRole(t *testing.T) {
	svc := NewService("secret", time.Hour)
	handler := svc.Middleware(RequireRole(domain.RoleOrganizer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		_, _ = w.Write([]byte(p.ID))
	})))

	organizer, _ := svc.Issue(domain.Principal{ID: "org", Role: domain.RoleOrganizer})
	participant, _ := svc.Issue(domain.Principal{ID: "u1", Role: domain.RoleParticipant})

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "malformed", header: "Token abc", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc", want: http.StatusUnauthorized},
		{name: "wrong role", header: "Bearer " + participant, want: http.StatusForbidden},
		{name: "organizer", header: "Bearer " + organizer, want: http.StatusOK},
		{name: "query token", query: "?access_token=" + organizer, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, rec.Code, rec.Body.String())
			}
			if tc.want == http.StatusOK && rec.Body.String() != "org" {
				t.Fatalf("principal not propagated: %q", rec.Body.String())
			}
		})
	}
}
