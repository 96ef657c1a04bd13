package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type limiterFunc func(ctx context.Context, key string) (Result, error)

func (f limiterFunc) Allow(ctx context.Context, key string) (Result, error) { return f(ctx, key) }

func TestMiddleware(t *testing.T) {
	resetAt := time.Now().Add(90 * time.Second)

	tests := []struct {
		name          string
		limiter       Limiter
		wantCode      int
		wantRemaining string
		wantRetry     bool
	}{
		{
			name: "allowed",
			limiter: limiterFunc(func(_ context.Context, key string) (Result, error) {
				return Result{Allowed: true, Limit: 10, Remaining: 9, ResetAt: resetAt}, nil
			}),
			wantCode:      http.StatusOK,
			wantRemaining: "9",
		},
		{
			name: "over the limit",
			limiter: limiterFunc(func(_ context.Context, key string) (Result, error) {
				return Result{Allowed: false, Limit: 10, Remaining: 0, ResetAt: resetAt}, nil
			}),
			wantCode:      http.StatusTooManyRequests,
			wantRemaining: "0",
			wantRetry:     true,
		},
		{
			name: "backend error fails open",
			limiter: limiterFunc(func(_ context.Context, key string) (Result, error) {
				return Result{}, errors.New("redis down")
			}),
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			w := httptest.NewRecorder()
			Middleware(tt.limiter, "auth", zap.NewNop())(next).
				ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantRemaining, w.Header().Get("X-RateLimit-Remaining"))
			if tt.wantRetry {
				retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
				require.NoError(t, err)
				assert.InDelta(t, 90, retry, 2)
				assert.Contains(t, w.Body.String(), "too many requests")
			} else {
				assert.Empty(t, w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestMiddleware_KeysByClientAndScope(t *testing.T) {
	var keys []string
	l := limiterFunc(func(_ context.Context, key string) (Result, error) {
		keys = append(keys, key)
		return Result{Allowed: true, Limit: 1, Remaining: 1, ResetAt: time.Now()}, nil
	})
	h := Middleware(l, "auth", zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	req.RemoteAddr = "203.0.113.7"
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"auth:203.0.113.7", "auth:203.0.113.7"}, keys)
}

func TestMiddleware_MemoryLimiterEndToEnd(t *testing.T) {
	h := Middleware(NewMemoryLimiter(2, time.Minute), "auth", zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}
