// Package ratelimit implements admission control keyed by client identifier.
package ratelimit

import (
	"context"
	"time"
)

type Decision struct {
	Allowed bool
	// Count is the number of admitted requests in the window, this one included
	// when Allowed.
	Count      int
	Limit      int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed. An error
// means no decision could be made; callers must treat it as a rejection.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
