package intake

import (
	"time"

	"github.com/sdko-org/portfolio-backend/internal/apperr"
)

// RateLimitError is returned when admission control rejects a request.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return RateLimitMessage
}

func (e *RateLimitError) Unwrap() error {
	return apperr.RateLimited(RateLimitMessage)
}
