package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServiceAuthenticate(t *testing.T) {
	svc, err := NewService([]string{"ops:s3cret", "plain-token", " "})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if !svc.Enabled() {
		t.Fatal("expected service to be enabled")
	}

	subject, err := svc.Authenticate("Bearer s3cret")
	if err != nil || subject.Name != "ops" {
		t.Fatalf("named token: %v %+v", err, subject)
	}
	subject, err = svc.Authenticate("bearer plain-token")
	if err != nil || subject.Name != "token-2" {
		t.Fatalf("plain token: %v %+v", err, subject)
	}
	if _, err := svc.Authenticate(""); err != ErrMissingToken {
		t.Fatalf("expected missing token, got %v", err)
	}
	if _, err := svc.Authenticate("Basic s3cret"); err != ErrInvalidToken {
		t.Fatalf("expected invalid scheme, got %v", err)
	}
	if _, err := svc.Authenticate("Bearer nope"); err != ErrInvalidToken {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestNewServiceRejectsDuplicates(t *testing.T) {
	if _, err := NewService([]string{"a:x", "b:x"}); err == nil {
		t.Fatal("expected duplicate secrets to be rejected")
	}
}

func TestMiddleware(t *testing.T) {
	svc, err := NewService([]string{"ops:s3cret"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	var seen *Subject
	handler := svc.Middleware(MiddlewareConfig{Public: map[string]bool{"/healthz": true}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = SubjectFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen == nil || seen.Name != "ops" {
		t.Fatalf("unexpected authorised response %d subject %+v", rec.Code, seen)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("public path should bypass auth, got %d", rec.Code)
	}
}

func TestDisabledServicePassesThrough(t *testing.T) {
	svc, err := NewService(nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	called := false
	handler := svc.Middleware(MiddlewareConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("expected request to reach handler")
	}
}
