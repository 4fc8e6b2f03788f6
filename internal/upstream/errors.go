package upstream

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNetwork      = errors.New("upstream network error")
	ErrUnauthorized = errors.New("upstream rejected credentials")
	ErrNotFound     = errors.New("upstream resource not found")
	ErrUnavailable  = errors.New("upstream temporarily unavailable")
)

// RateLimitedError is returned on HTTP 429. RetryAfter is zero when the
// upstream sent no usable Retry-After header.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter <= 0 {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited, retry after %d seconds", int(e.RetryAfter.Seconds()))
}

// StatusError carries an unexpected non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// IsRateLimited reports whether err is (or wraps) a RateLimitedError.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
