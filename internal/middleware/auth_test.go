package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"webcamdetector/internal/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware_Disabled(t *testing.T) {
	h := AuthMiddleware(&config.Config{}, okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/panel", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with auth disabled, got %d", rec.Code)
	}
}

func TestAuthMiddleware_Enabled(t *testing.T) {
	h := AuthMiddleware(&config.Config{Password: "secret"}, okHandler)

	tests := []struct {
		name     string
		path     string
		cookie   bool
		expected int
	}{
		{"api without cookie", "/api/panel", false, http.StatusUnauthorized},
		{"page without cookie", "/", false, http.StatusSeeOther},
		{"login page", "/login", false, http.StatusOK},
		{"metrics", "/metrics", false, http.StatusOK},
		{"static asset", "/static/app.js", false, http.StatusOK},
		{"api with cookie", "/api/panel", true, http.StatusOK},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.cookie {
			req.AddCookie(&http.Cookie{Name: "authenticated", Value: "true"})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != tt.expected {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.expected, rec.Code)
		}
	}
}
