package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"edgetun/internal/errors"
)

// State is the position of a Breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown has passed.
	StateOpen
	// StateHalfOpen lets a single probe through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive counted failures that
	// opens the breaker (default 5).
	Threshold int
	// Cooldown is how long an open breaker rejects calls (default 30s).
	Cooldown time.Duration
	// Counts reports whether an error is held against the transport.
	// Nil counts every error. Errors it ignores leave the failure run
	// untouched. Context cancellation and deadline errors never count.
	Counts func(error) bool
	// OnChange observes transitions. It runs outside the breaker's lock.
	OnChange func(from, to State)
}

// DefaultBreakerConfig opens after five straight failures and probes
// again after thirty seconds.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second}
}

// Breaker short-circuits calls after a run of failures. Once the
// cooldown is over exactly one caller probes: success closes the
// breaker, failure opens it for another cooldown.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	counts    func(error) bool
	onChange  func(from, to State)
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a closed breaker. A nil cfg uses the defaults.
func NewBreaker(cfg *BreakerConfig) *Breaker {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	b := &Breaker{
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		counts:    cfg.Counts,
		onChange:  cfg.OnChange,
		now:       time.Now,
	}
	if b.threshold <= 0 {
		b.threshold = 5
	}
	if b.cooldown <= 0 {
		b.cooldown = 30 * time.Second
	}
	return b
}

// Do runs fn unless the breaker is open, in which case it returns an
// error wrapping errors.ErrCircuitOpen without calling fn. fn's own
// error is returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	ferr := fn()
	b.record(probe, ferr)
	return ferr
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the length of the current failure run.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	var from State
	changed := false
	switch b.state {
	case StateOpen:
		left := b.cooldown - b.now().Sub(b.openedAt)
		if left > 0 {
			b.mu.Unlock()
			return false, fmt.Errorf("%w: retry in %v", errors.ErrCircuitOpen, left.Round(time.Second))
		}
		from, changed = b.setState(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return false, fmt.Errorf("%w: probe in flight", errors.ErrCircuitOpen)
		}
		b.probing = true
		probe = true
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, StateHalfOpen)
	}
	return probe, nil
}

func (b *Breaker) record(probe bool, err error) {
	abandoned := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	counted := err != nil && !abandoned && (b.counts == nil || b.counts(err))

	b.mu.Lock()
	if probe {
		b.probing = false
	}
	var (
		from, to State
		changed  bool
	)
	switch {
	case abandoned:
		// The caller gave up, which says nothing about the transport.
		// A half-open call abandoned this way returns the breaker to open
		// with its cooldown already spent, so the next call is admitted.
		if probe {
			to = StateOpen
			from, changed = b.setState(to)
		}
	case counted:
		b.failures++
		if probe || b.failures >= b.threshold {
			b.openedAt = b.now()
			to = StateOpen
			from, changed = b.setState(to)
		}
	case err == nil:
		b.failures = 0
		to = StateClosed
		from, changed = b.setState(to)
	case probe:
		// The probe reached the edge, which is all it had to show.
		b.failures = 0
		to = StateClosed
		from, changed = b.setState(to)
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
}

// setState must be called with mu held.
func (b *Breaker) setState(to State) (from State, changed bool) {
	from = b.state
	b.state = to
	return from, from != to
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
