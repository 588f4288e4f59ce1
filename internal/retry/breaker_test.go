package retry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgetun/internal/errors"
)

// fakeClock lets tests step over the cooldown without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg *BreakerConfig) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(cfg)
	b.now = clock.Now
	return b, clock
}

var errDropped = fmt.Errorf("connection dropped")

func fail() error    { return errDropped }
func succeed() error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(&BreakerConfig{Threshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		assert.Equal(t, StateClosed, b.State())
		assert.ErrorIs(t, b.Do(fail), errDropped)
	}
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 3, b.Failures())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.Contains(t, err.Error(), "retry in 1m0s")
	assert.False(t, called)
}

func TestBreaker_SuccessResetsRun(t *testing.T) {
	b, _ := newTestBreaker(&BreakerConfig{Threshold: 3})

	require.Error(t, b.Do(fail))
	require.Error(t, b.Do(fail))
	require.NoError(t, b.Do(succeed))
	assert.Zero(t, b.Failures())

	require.Error(t, b.Do(fail))
	require.Error(t, b.Do(fail))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ProbeCloses(t *testing.T) {
	b, clock := newTestBreaker(&BreakerConfig{Threshold: 1, Cooldown: 10 * time.Second})

	require.Error(t, b.Do(fail))
	require.Equal(t, StateOpen, b.State())

	clock.Advance(10 * time.Second)
	require.NoError(t, b.Do(succeed))
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Failures())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, clock := newTestBreaker(&BreakerConfig{Threshold: 2, Cooldown: 10 * time.Second})

	require.Error(t, b.Do(fail))
	require.Error(t, b.Do(fail))
	clock.Advance(11 * time.Second)

	assert.ErrorIs(t, b.Do(fail), errDropped)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Do(succeed), errors.ErrCircuitOpen, "a fresh cooldown starts")
}

func TestBreaker_SingleProbe(t *testing.T) {
	b, clock := newTestBreaker(&BreakerConfig{Threshold: 1, Cooldown: time.Second})
	require.Error(t, b.Do(fail))
	clock.Advance(time.Second)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()

	<-inProbe
	assert.Equal(t, StateHalfOpen, b.State())
	err := b.Do(succeed)
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.Contains(t, err.Error(), "probe in flight")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_IgnoredErrors(t *testing.T) {
	refused := fmt.Errorf("edge refused the bind")
	b, clock := newTestBreaker(&BreakerConfig{
		Threshold: 2,
		Cooldown:  time.Second,
		Counts:    func(err error) bool { return err != refused },
	})

	for i := 0; i < 5; i++ {
		assert.Same(t, refused, b.Do(func() error { return refused }))
	}
	assert.Equal(t, StateClosed, b.State())

	require.Error(t, b.Do(fail))
	require.Error(t, b.Do(fail))
	require.Equal(t, StateOpen, b.State())

	// A probe the edge answers, even with a refusal, shows the
	// transport works again.
	clock.Advance(time.Second)
	assert.Same(t, refused, b.Do(func() error { return refused }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_AbandonedCallsDoNotCount(t *testing.T) {
	b, clock := newTestBreaker(&BreakerConfig{Threshold: 2, Cooldown: time.Second})
	cancelled := fmt.Errorf("bind: %w", context.Canceled)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Do(func() error { return cancelled }), context.Canceled)
		assert.ErrorIs(t, b.Do(func() error { return context.DeadlineExceeded }), context.DeadlineExceeded)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Failures())
	require.NoError(t, b.Do(succeed))

	// Abandoning the half-open call neither closes the breaker nor
	// restarts the cooldown.
	require.Error(t, b.Do(fail))
	require.Error(t, b.Do(fail))
	clock.Advance(time.Second)
	assert.ErrorIs(t, b.Do(func() error { return cancelled }), context.Canceled)
	assert.Equal(t, StateOpen, b.State())
	require.NoError(t, b.Do(succeed), "the next call is admitted at once")
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OnChange(t *testing.T) {
	var transitions []string
	b, clock := newTestBreaker(&BreakerConfig{
		Threshold: 1,
		Cooldown:  time.Second,
		OnChange: func(from, to State) {
			transitions = append(transitions, from.String()+"→"+to.String())
		},
	})

	_ = b.Do(fail)
	clock.Advance(time.Second)
	_ = b.Do(succeed)
	_ = b.Do(succeed)

	assert.Equal(t, []string{"closed→open", "open→half-open", "half-open→closed"}, transitions)
}

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(nil)
	assert.Equal(t, 5, b.threshold)
	assert.Equal(t, 30*time.Second, b.cooldown)

	b = NewBreaker(&BreakerConfig{Threshold: -1})
	assert.Equal(t, 5, b.threshold)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
