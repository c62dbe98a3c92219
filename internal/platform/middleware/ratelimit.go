package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/telecare/telecare/internal/platform/auth"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL evicts limiters for clients that have not been seen recently.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one token bucket per client key.
type limiterStore struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	cfg      RateLimitConfig
	lastScan time.Time
	now      func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &limiterStore{
		clients: make(map[string]*clientLimiter),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastScan) > s.cfg.IdleTTL {
		for k, cl := range s.clients {
			if now.Sub(cl.lastSeen) > s.cfg.IdleTTL {
				delete(s.clients, k)
			}
		}
		s.lastScan = now
	}

	cl, ok := s.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// rateLimitKey scopes buckets by tenant and by authenticated user, falling
// back to the client IP.
func rateLimitKey(c echo.Context) string {
	key := c.RealIP()
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		key = "user:" + uid
	}
	if tenantID, ok := c.Get("jwt_tenant_id").(string); ok && tenantID != "" {
		key = tenantID + ":" + key
	}
	return key
}

func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limiter := store.get(rateLimitKey(c))
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			now := store.now()
			res := limiter.ReserveN(now, 1)
			if !res.OK() {
				h.Set("Retry-After", "1")
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
