// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers header and query token extraction, validation, and the admin gate

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func serveWithAuth(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, *AuthContext) {
	t.Helper()
	verifier := newTestVerifier(t)

	var got *AuthContext
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(verifier, nil)(handler).ServeHTTP(rec, req)
	return rec, got
}

func TestHTTPAuthMiddleware_BearerHeader(t *testing.T) {
	token, _ := newTestVerifier(t).Generate("my-editor", nil, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/sse", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec, got := serveWithAuth(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got == nil || got.Subject != "my-editor" {
		t.Errorf("expected AuthContext for my-editor, got %+v", got)
	}
}

func TestHTTPAuthMiddleware_QueryToken(t *testing.T) {
	token, _ := newTestVerifier(t).Generate("browser", nil, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/sse?token="+token, nil)

	rec, got := serveWithAuth(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got == nil || got.Subject != "browser" {
		t.Errorf("expected AuthContext for browser, got %+v", got)
	}
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	expired, _ := newTestVerifier(t).Generate("my-editor", nil, -time.Hour)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{name: "missing header", header: "", wantMsg: "missing authorization header"},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantMsg: "invalid authorization header format"},
		{name: "empty bearer", header: "Bearer ", wantMsg: "empty token"},
		{name: "garbage token", header: "Bearer garbage", wantMsg: "invalid token"},
		{name: "expired token", header: "Bearer " + expired, wantMsg: "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/messages", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec, got := serveWithAuth(t, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			if got != nil {
				t.Error("handler should not have run")
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.wantMsg)
			}
		})
	}
}

func TestRequireAdminHTTP(t *testing.T) {
	verifier := newTestVerifier(t)
	admin, _ := verifier.Generate("ops", []string{RoleAdmin}, time.Hour)
	viewer, _ := verifier.Generate("dev", nil, time.Hour)

	handler := HTTPAuthMiddleware(verifier, nil)(RequireAdminHTTP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "admin", token: admin, want: http.StatusOK},
		{name: "non-admin", token: viewer, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestRequireAdminHTTP_NoAuthContext(t *testing.T) {
	handler := RequireAdminHTTP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}
