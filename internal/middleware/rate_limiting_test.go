package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2beens/gymsync/internal/telemetry/metrics"

	"github.com/go-redis/redis_rate/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLimiter struct {
	allowed int
	calls   int
	err     error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.calls++
	if l.calls > l.allowed {
		return &redis_rate.Result{Limit: limit, Allowed: 0, RetryAfter: 10 * time.Second}, nil
	}
	return &redis_rate.Result{Limit: limit, Allowed: 1, Remaining: l.allowed - l.calls}, nil
}

func TestRateLimit(t *testing.T) {
	metricsManager := metrics.NewTestManager()
	limiter := &countingLimiter{allowed: 2}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	handler := RateLimit(limiter, "test", 2, metricsManager)(next)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("POST", "/gymstats/workouts", nil))
		codes = append(codes, rr.Code)
	}

	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterRateLimitedRequests))
}

func TestRateLimit_LimiterError(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("redis down")}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Fail(t, "next must not be called")
	})

	rr := httptest.NewRecorder()
	RateLimit(limiter, "test", 2, nil)(next).ServeHTTP(rr, httptest.NewRequest("POST", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
