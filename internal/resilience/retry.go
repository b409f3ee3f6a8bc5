// Package resilience retries outbound calls and stops calling endpoints
// that keep failing.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff controls retries with exponential backoff and jitter.
type Backoff struct {
	// Attempts is the total number of calls, including the first. Default: 3.
	Attempts int

	// Initial is the delay before the first retry. Default: 250ms.
	Initial time.Duration

	// Max caps any single delay. Default: 10s.
	Max time.Duration

	// Jitter is the random spread as a fraction of the delay. Default: 0.2.
	Jitter float64

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

// NewBackoff returns the default backoff for the given attempt count.
func NewBackoff(attempts int) Backoff {
	b := Backoff{Attempts: attempts, Initial: 250 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2}
	return b.normalized()
}

func (b Backoff) normalized() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.Initial <= 0 {
		b.Initial = 250 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 10 * time.Second
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	return b
}

// delay returns the sleep before retry number n (0-based), doubling each time.
func (b Backoff) delay(n int) time.Duration {
	d := math.Min(float64(b.Initial)*math.Pow(2, float64(n)), float64(b.Max))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(math.Max(0, d))
}

// Retry calls fn until it succeeds, returns an error Retryable rejects, the
// attempts run out or ctx ends. The last error is returned.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	b = b.normalized()

	var err error
	for n := 0; n < b.Attempts; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !Retryable(err) || n == b.Attempts-1 {
			return err
		}
		if b.OnRetry != nil {
			b.OnRetry(n+1, err)
		}

		t := time.NewTimer(b.delay(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}

// LogRetry returns an OnRetry callback that logs each retry.
func LogRetry(target string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("target", target),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
