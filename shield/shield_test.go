package shield

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("nosniff: %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("frame options: %q", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("CSP not set")
	}
}

func TestTraceID(t *testing.T) {
	var inCtx string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inCtx = GetTraceID(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	header := rec.Header().Get("X-Trace-ID")
	if header == "" || header != inCtx {
		t.Errorf("trace id: header=%q ctx=%q", header, inCtx)
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v map[string]any
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"key":"a long enough value"}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body: %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	// WHAT: The third request in the window is rejected with 429;
	// unlisted endpoints and excluded prefixes stay unlimited.
	rl := NewRateLimiter(map[string]RateLimitRule{
		"POST /api/pages": {MaxRequests: 2, WindowSeconds: 60},
	}, "/healthz")
	h := rl.Middleware(okHandler())

	do := func(method, path string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.1.2.3:5555"
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("POST", "/api/pages") != 200 || do("POST", "/api/pages") != 200 {
		t.Fatal("first two requests must pass")
	}
	if code := do("POST", "/api/pages"); code != http.StatusTooManyRequests {
		t.Errorf("third request: %d, want 429", code)
	}
	if do("GET", "/api/pages") != 200 {
		t.Error("unlisted endpoint limited")
	}
	if do("POST", "/healthz") != 200 {
		t.Error("excluded prefix limited")
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	if got := ExtractIP(req); got != "192.0.2.7" {
		t.Errorf("remote addr: %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.7")
	if got := ExtractIP(req); got != "203.0.113.9" {
		t.Errorf("xff: %q", got)
	}
}
