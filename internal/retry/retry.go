// Package retry provides bounded exponential backoff for the static HTTP
// fetch path. Browser extraction never goes through here: a failed
// extraction surfaces immediately and any retry is the caller's call.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Config defines backoff behavior.
type Config struct {
	MaxAttempts          int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	Multiplier           float64
	RetryableStatusCodes []int
}

// DefaultConfig retries transient HTTP failures three times with doubling
// backoff.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// WithRetry runs fn until it succeeds, fails non-retryably, or exhausts the
// attempt budget.
func WithRetry(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				log.Debug().Int("attempts", attempt+1).Msg("Retry succeeded")
			}
			return nil
		}
		lastErr = err

		if !retryable(err, cfg) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := backoff(attempt, cfg)
		log.Debug().
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Err(err).
			Msg("Retrying after backoff")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Warn().Int("attempts", cfg.MaxAttempts).Err(lastErr).Msg("Retry budget exhausted")
	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func backoff(attempt int, cfg Config) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	return time.Duration(d)
}

func retryable(err error, cfg Config) bool {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		for _, code := range cfg.RetryableStatusCodes {
			if httpErr.StatusCode == code {
				return true
			}
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Timeout()
	}
	var tempErr interface{ Temporary() bool }
	if errors.As(err, &tempErr) {
		return tempErr.Temporary()
	}
	return true
}

// HTTPError carries an HTTP status so retryability can be decided per code.
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// NewHTTPError creates an HTTPError.
func NewHTTPError(statusCode int, status, message string) HTTPError {
	return HTTPError{StatusCode: statusCode, Status: status, Message: message}
}
