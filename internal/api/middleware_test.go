package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/nudge/internal/redis"
)

func newTestLimiter(t *testing.T, limit int) (*redis.RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := redis.NewFromRDB(rdb, zap.NewNop())
	return redis.NewRateLimiter(client, zap.NewNop(), redis.RateLimitConfig{Limit: limit, Window: time.Minute}), mr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		expected   string
	}{
		{"X-Forwarded-For", "1.2.3.4", "", "5.6.7.8:1234", "ip:1.2.3.4"},
		{"X-Forwarded-For chain", "1.2.3.4, 10.0.0.1", "", "5.6.7.8:1234", "ip:1.2.3.4"},
		{"X-Real-IP", "", "1.2.3.4", "5.6.7.8:1234", "ip:1.2.3.4"},
		{"RemoteAddr fallback", "", "", "5.6.7.8:1234", "ip:5.6.7.8:1234"},
		{"Forwarded takes precedence", "1.1.1.1", "2.2.2.2", "3.3.3.3:1234", "ip:1.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			req.RemoteAddr = tt.remoteAddr

			if got := IPKeyFunc(req); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestRateLimitMiddleware_NoLimiter(t *testing.T) {
	mw := RateLimitMiddleware(nil, zap.NewNop(), StaticKey("passes"))(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/passes", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_EmptyKey(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	mw := RateLimitMiddleware(limiter, zap.NewNop(), StaticKey(""))(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/passes", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	mw := RateLimitMiddleware(limiter, zap.NewNop(), StaticKey("passes"))(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/passes", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Remaining") == "" {
			t.Errorf("request %d: missing X-RateLimit-Remaining", i)
		}
	}

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/passes", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem+json, got %q", ct)
	}
}

func TestRateLimitMiddleware_RedisDownFailsOpen(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	mr.Close()

	mw := RateLimitMiddleware(limiter, zap.NewNop(), StaticKey("passes"))(okHandler())

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/passes", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected request to pass through when redis is down, got %d", rec.Code)
	}
}

func TestRouter_UnauthorizedDoesNotSpendPassBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	runner := &fakeRunner{}
	srv := NewRouter(newTestHandler(runner, Config{}), RouterConfig{
		TriggerToken: testToken,
		PassLimiter:  limiter,
	}, zap.NewNop())

	for i := 0; i < 5; i++ {
		if rec := doPass(t, srv, "/v1/passes", "wrong"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("bad token %d: expected 401, got %d", i, rec.Code)
		}
	}

	for i := 0; i < 2; i++ {
		if rec := doPass(t, srv, "/v1/passes", testToken); rec.Code != http.StatusOK {
			t.Fatalf("pass %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := doPass(t, srv, "/v1/passes", testToken); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third pass: expected 429, got %d", rec.Code)
	}
	if len(runner.calls) != 2 {
		t.Errorf("expected 2 passes to run, got %d", len(runner.calls))
	}
}

func TestRouter_IPLimiterIsolatesCallers(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	runner := &fakeRunner{}
	srv := NewRouter(newTestHandler(runner, Config{}), RouterConfig{
		TriggerToken: testToken,
		IPLimiter:    limiter,
	}, zap.NewNop())

	send := func(ip, token string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/passes", nil)
		req.RemoteAddr = ip + ":4000"
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("203.0.113.9", "wrong"); code != http.StatusUnauthorized {
			t.Fatalf("attacker request %d: expected 401, got %d", i, code)
		}
	}
	if code := send("203.0.113.9", "wrong"); code != http.StatusTooManyRequests {
		t.Fatalf("attacker over budget: expected 429, got %d", code)
	}

	if code := send("10.0.0.5", testToken); code != http.StatusOK {
		t.Fatalf("cron trigger from another IP: expected 200, got %d", code)
	}
	if len(runner.calls) != 1 {
		t.Errorf("expected 1 pass to run, got %d", len(runner.calls))
	}
}
