// Package retry paces session connect attempts and keeps the bind
// exchange away from an edge transport that keeps failing.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 60 * time.Second
	defaultMultiplier   = 2.0
)

// Backoff spaces connect attempts exponentially.
type Backoff struct {
	// InitialDelay is the wait after the first failure (default 1s).
	InitialDelay time.Duration
	// MaxDelay caps a single wait (default 60s).
	MaxDelay time.Duration
	// Multiplier grows the wait after every failure (default 2).
	Multiplier float64
	// MaxAttempts bounds the number of tries, the first included.
	// Zero keeps trying until the context ends.
	MaxAttempts int
	// Jitter randomises each wait by up to this fraction of it, in
	// either direction. Values outside [0, 1] are clamped.
	Jitter float64

	// Fatal reports errors another attempt cannot fix, such as refused
	// credentials. They end Do at once and are returned unwrapped.
	Fatal func(error) bool
	// OnRetry, if set, runs before every wait.
	OnRetry func(Attempt)
}

// Attempt describes a failed try that is about to be repeated.
type Attempt struct {
	N    int // 1-based
	Err  error
	Wait time.Duration
}

// DefaultBackoff starts at one second and doubles up to a minute, ten
// attempts in all.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Multiplier:   defaultMultiplier,
		MaxAttempts:  10,
		Jitter:       0.25,
	}
}

// ExhaustedError is returned by Do once MaxAttempts tries have failed.
type ExhaustedError struct {
	Attempts int
	Err      error // last failure
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Delay returns the wait that follows failed attempt n, before jitter.
func (b *Backoff) Delay(n int) time.Duration {
	initial := b.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = defaultMultiplier
	}
	if n < 1 {
		n = 1
	}

	d := float64(initial) * math.Pow(mult, float64(n-1))
	if d >= float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// Do calls fn until it returns nil. It stops early on a Fatal error,
// after MaxAttempts failures, or when ctx ends; in the last case the
// returned error wraps ctx.Err().
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for n := 1; ; n++ {
		err := fn(n)
		if err == nil {
			return nil
		}
		if b.Fatal != nil && b.Fatal(err) {
			return err
		}
		if b.MaxAttempts > 0 && n >= b.MaxAttempts {
			return &ExhaustedError{Attempts: n, Err: err}
		}

		wait := b.jitter(b.Delay(n))
		if b.OnRetry != nil {
			b.OnRetry(Attempt{N: n, Err: err, Wait: wait})
		}

		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w after %d attempts (last: %v)", ctx.Err(), n, err)
		case <-timer.C:
		}
	}
}

func (b *Backoff) jitter(d time.Duration) time.Duration {
	f := min(max(b.Jitter, 0), 1)
	if f == 0 {
		return d
	}
	spread := float64(d) * f
	return time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
}
