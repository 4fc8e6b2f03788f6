package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"kairos/launch/pkg/logging"
)

const (
	maxErrorBody  = 4 << 10
	maxRetryAfter = 5 * time.Minute
)

// Config tunes the shared HTTP client used by every provider client.
type Config struct {
	Name                string
	Timeout             time.Duration
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Client wraps an *http.Client with a circuit breaker and maps transport and
// status failures onto the package error taxonomy.
type Client struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        "upstream-" + cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// Only transport failures and 5xx trip the breaker; 4xx are the
		// caller's problem.
		IsSuccessful: func(err error) bool {
			return err == nil || (!errors.Is(err, ErrNetwork) && !isServerError(err))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		name:    cfg.Name,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Do sends req and returns the response when the status is 2xx. Non-2xx
// responses are drained, closed and turned into errors.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	start := time.Now()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.Method, req.URL.Path, err)
		}
		if err := checkStatus(resp); err != nil {
			return nil, err
		}
		return resp, nil
	})

	logging.FromContext(ctx).Debug("upstream request",
		zap.String("upstream", c.name),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, c.name, err)
		}
		return nil, err
	}
	return out.(*http.Response), nil
}

// DoJSON sends req and decodes a 2xx JSON body into dst (when dst is non-nil).
func (c *Client) DoJSON(ctx context.Context, req *http.Request, dst interface{}) error {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(body)))
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(string(body)))
	case http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"))}
	default:
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
}

func isServerError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 500
}

// ParseRetryAfter accepts either delta-seconds or an HTTP date and caps the
// result at five minutes. Unparseable values yield zero.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(v); err == nil {
		if seconds <= 0 {
			return 0
		}
		d := time.Duration(seconds) * time.Second
		if d > maxRetryAfter {
			d = maxRetryAfter
		}
		return d
	}

	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d <= 0 {
			return 0
		}
		if d > maxRetryAfter {
			d = maxRetryAfter
		}
		return d
	}
	return 0
}
