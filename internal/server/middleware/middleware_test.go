package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(RequestIDFrom(r.Context())))
})

func TestAuth(t *testing.T) {
	h := Auth("s3cret")(ok)
	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"bearer", "Authorization", "Bearer s3cret", http.StatusOK},
		{"api key header", "X-API-Key", "s3cret", http.StatusOK},
		{"wrong", "Authorization", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/keeper/start", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	rec := httptest.NewRecorder()
	Auth("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("empty key should disable auth, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.orion.bet"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/price", nil)
	req.Header.Set("Origin", "https://APP.orion.bet")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://APP.orion.bet" {
		t.Fatalf("preflight: %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/price", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin allowed")
	}
}

func TestRequestID(t *testing.T) {
	h := RequestID(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) != "abc-123" || rec.Body.String() != "abc-123" {
		t.Fatalf("caller id not kept: %q %q", rec.Header().Get(RequestIDHeader), rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if id := rec.Header().Get(RequestIDHeader); len(id) != 36 || rec.Body.String() != id {
		t.Fatalf("generated id = %q", id)
	}
}

type countingLimiter struct {
	counts map[string]int
	err    error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lim := &countingLimiter{counts: map[string]int{}}
	h := RateLimit(lim, "public", 2, time.Minute, logger)(ok)

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/claim", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < 2; i++ {
		if code := call("203.0.113.7"); code != http.StatusOK {
			t.Fatalf("call %d: %d", i, code)
		}
	}
	if code := call("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("third call: %d", code)
	}
	if code := call("198.51.100.2"); code != http.StatusOK {
		t.Fatalf("other client: %d", code)
	}
	if _, seen := lim.counts["ratelimit:public:203.0.113.7"]; !seen {
		t.Errorf("keys = %v", lim.counts)
	}

	lim.err = errors.New("redis down")
	if code := call("203.0.113.7"); code != http.StatusOK {
		t.Fatalf("limiter failure should fail open, got %d", code)
	}
}
