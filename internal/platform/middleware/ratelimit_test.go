package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/platform/auth"
)

func TestRateLimit_AllowsWithinBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3})
	h := mw(okHandler)

	for i := 0; i < 3; i++ {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), httptest.NewRecorder())
		if err := h(c); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), rec)
	err := h(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("expected X-RateLimit-Remaining: 0")
	}
}

func TestRateLimit_SeparateBucketsPerUser(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)

	request := func(user string) error {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, user))
		return h(e.NewContext(req, httptest.NewRecorder()))
	}

	if err := request("alice"); err != nil {
		t.Fatalf("alice first request: %v", err)
	}
	if err := request("bob"); err != nil {
		t.Fatalf("bob should have his own bucket: %v", err)
	}
	if err := request("alice"); err == nil {
		t.Fatal("expected alice's second request to be limited")
	}
}

func TestRateLimitKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	if got := rateLimitKey(c); got != "10.0.0.1" {
		t.Errorf("expected ip key, got %s", got)
	}

	c.Set("jwt_tenant_id", "clinic")
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, "u1"))
	c.SetRequest(req)
	if got := rateLimitKey(c); got != "clinic:user:u1" {
		t.Errorf("expected tenant-scoped user key, got %s", got)
	}
}

func TestLimiterStore_EvictsIdleClients(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.get("a")
	store.get("b")
	if store.size() != 2 {
		t.Fatalf("expected 2 clients, got %d", store.size())
	}

	now = now.Add(2 * time.Minute)
	store.get("c")
	if store.size() != 1 {
		t.Errorf("expected idle clients to be evicted, got %d", store.size())
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 || cfg.BurstSize != 200 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}
