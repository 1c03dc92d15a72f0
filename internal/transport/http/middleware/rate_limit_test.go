package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/readzone/identity-core/internal/infra/config"
	"github.com/readzone/identity-core/internal/infra/telemetry"
	"github.com/readzone/identity-core/internal/usecase"
)

// countingRateLimitStore keeps counters in memory without expiry; fine for
// single-window assertions.
type countingRateLimitStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCountingRateLimitStore() *countingRateLimitStore {
	return &countingRateLimitStore{counts: make(map[string]int64)}
}

func (s *countingRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], window, nil
}

func (s *countingRateLimitStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
	return nil
}

func rateLimitedRouter(limiter *usecase.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(EnrichContext())
	r.GET("/", RequestRateLimit(limiter), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequestRateLimitAllowsBelowLimit(t *testing.T) {
	limiter := usecase.NewLimiter(newCountingRateLimitStore(), config.RateLimitSettings{
		AnonymousMaxRequests: 3,
		AnonymousWindow:      time.Minute,
	}, telemetry.NewMetrics(prometheus.NewRegistry()), nil)

	router := rateLimitedRouter(limiter)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
}

func TestRequestRateLimitDeniesAboveLimit(t *testing.T) {
	limiter := usecase.NewLimiter(newCountingRateLimitStore(), config.RateLimitSettings{
		AnonymousMaxRequests: 2,
		AnonymousWindow:      time.Minute,
	}, telemetry.NewMetrics(prometheus.NewRegistry()), nil)

	router := rateLimitedRouter(limiter)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got == "" {
		t.Fatal("expected Retry-After header on denial")
	}
}

func TestRequestRateLimitZeroConfigDisables(t *testing.T) {
	limiter := usecase.NewLimiter(newCountingRateLimitStore(), config.RateLimitSettings{}, telemetry.NewMetrics(prometheus.NewRegistry()), nil)

	router := rateLimitedRouter(limiter)

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
}
