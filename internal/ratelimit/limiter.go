// Package ratelimit limits requests per client key over a time window.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter admits at most a fixed number of hits per key per window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}
