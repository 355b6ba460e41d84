package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tutorlink/tutorlink/internal/identity"
	"github.com/tutorlink/tutorlink/internal/logging"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier("s3cret")
	token, err := v.Issue(Principal{ID: 42, Role: identity.RoleLearner, Email: "l@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	p, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if p.ID != 42 || p.Role != identity.RoleLearner || p.Email != "l@example.com" {
		t.Fatalf("Verify() = %+v", p)
	}
	if p.Identity() != "STUDENT-42" {
		t.Fatalf("Identity() = %q", p.Identity())
	}
}

func TestVerifyRejectsWrongSecretAndExpiry(t *testing.T) {
	token, _ := NewVerifier("a").Issue(Principal{ID: 1, Role: identity.RoleTutor}, time.Hour)
	if _, err := NewVerifier("b").Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Verify() wrong secret error = %v, want ErrUnauthorized", err)
	}

	v := NewVerifier("a")
	expired, _ := v.Issue(Principal{ID: 1, Role: identity.RoleTutor}, time.Minute)
	v.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := v.Verify(expired); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Verify() expired error = %v, want ErrUnauthorized", err)
	}
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("s3cret")
	token, _ := v.Issue(Principal{ID: 7, Role: identity.RoleTutor}, time.Hour)

	var seen Principal
	h := v.Middleware(logging.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen.ID != 7 {
		t.Fatalf("header auth: code=%d principal=%+v", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/presence/ws?token="+token, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("query auth: code=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: code=%d, want 401", rec.Code)
	}
}
