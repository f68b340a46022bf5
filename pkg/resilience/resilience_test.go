package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/errors"
)

var errFlaky = errors.New("connection reset")

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "links", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "links", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "links", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		calls++
		return Permanent(errFlaky)
	})
	assert.Same(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWaitsOnClock(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Retry(context.Background(), "links", RetryConfig{MaxAttempts: 2, InitialDelay: time.Minute, Clock: clk}, func() error {
			if calls.Add(1) == 1 {
				return errFlaky
			}
			return nil
		})
	}()

	require.NoError(t, clk.WaitAdvance(time.Minute, 5*time.Second, 1))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not resume after the clock advanced")
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "links", RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}, func() error {
		return errFlaky
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelayDoublesUpToCap(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 200 * time.Millisecond, MaxDelay: 600 * time.Millisecond}.withDefaults()
	assert.Equal(t, 200*time.Millisecond, cfg.delay(1))
	assert.Equal(t, 400*time.Millisecond, cfg.delay(2))
	assert.Equal(t, 600*time.Millisecond, cfg.delay(3))
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	var transitions []State
	b := NewBreaker("a.test", BreakerConfig{
		Threshold:     2,
		Cooldown:      time.Minute,
		Clock:         clk,
		OnStateChange: func(_ string, to State) { transitions = append(transitions, to) },
	})

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errFlaky })
	}
	require.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	clk.Advance(time.Minute)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	b := NewBreaker("a.test", BreakerConfig{Threshold: 1, Cooldown: time.Minute, Clock: clk})

	_ = b.Execute(func() error { return errFlaky })
	clk.Advance(time.Minute)
	_ = b.Execute(func() error { return errFlaky })
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Execute(func() error { return nil }), ErrCircuitOpen)
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := NewBreaker("a.test", BreakerConfig{Threshold: 1})
	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakersPerHost(t *testing.T) {
	assert.Nil(t, NewBreakers(BreakerConfig{}))
	var disabled *Breakers
	assert.ErrorIs(t, disabled.Execute("a.test", func() error { return errFlaky }), errFlaky)

	set := NewBreakers(BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	_ = set.Execute("a.test", func() error { return errFlaky })
	assert.ErrorIs(t, set.Execute("a.test", func() error { return nil }), ErrCircuitOpen)
	assert.NoError(t, set.Execute("b.test", func() error { return nil }))
	assert.Same(t, set.For("a.test"), set.For("a.test"))
}

func TestBounded(t *testing.T) {
	err := Bounded(context.Background(), 5*time.Millisecond, "save site", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrTimeout))

	err = Bounded(context.Background(), time.Second, "save site", func(context.Context) error { return errFlaky })
	assert.ErrorIs(t, err, errFlaky)
}
