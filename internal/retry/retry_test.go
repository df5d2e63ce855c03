// internal/retry/retry_test.go
package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func TestWithRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return NewHTTPError(http.StatusServiceUnavailable, "503 Service Unavailable", "")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d", calls)
	}
}

func TestWithRetryNonRetryableStatus(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), func() error {
		calls++
		return NewHTTPError(http.StatusNotFound, "404 Not Found", "")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("404 retried: %d calls", calls)
	}
	var httpErr HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("err = %v", err)
	}
}

func TestWithRetryBudgetExhausted(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), func() error {
		calls++
		return NewHTTPError(http.StatusServiceUnavailable, "503 Service Unavailable", "")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryContextCancelled(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialBackoff = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := WithRetry(ctx, cfg, func() error {
		calls++
		return NewHTTPError(http.StatusServiceUnavailable, "503 Service Unavailable", "")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestBackoffGrowth(t *testing.T) {
	cfg := Config{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2}
	if d := backoff(0, cfg); d != 100*time.Millisecond {
		t.Errorf("backoff(0) = %v", d)
	}
	if d := backoff(1, cfg); d != 200*time.Millisecond {
		t.Errorf("backoff(1) = %v", d)
	}
	// Capped at the ceiling.
	if d := backoff(5, cfg); d != 300*time.Millisecond {
		t.Errorf("backoff(5) = %v", d)
	}
}
