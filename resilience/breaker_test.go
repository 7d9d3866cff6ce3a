package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-visionai/clock"
	"github.com/moffa90/go-visionai/fault"
)

var errDevice = fault.New(fault.KindTimeout, "read message", "no data")

func fail(context.Context) error    { return errDevice }
func succeed(context.Context) error { return nil }

func newTestBreaker(threshold int, cooldown time.Duration, opts ...BreakerOption) (*Breaker, *clock.Manual) {
	clk := clock.NewManual(epoch)
	opts = append([]BreakerOption{
		WithThreshold(threshold),
		WithCooldown(cooldown),
		WithBreakerClock(clk),
	}, opts...)
	return NewBreaker(opts...), clk
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Do(ctx, fail), errDevice)
		assert.Equal(t, StateClosed, b.Status().State)
	}

	assert.ErrorIs(t, b.Do(ctx, fail), errDevice)
	st := b.Status()
	assert.Equal(t, StateOpen, st.State)
	assert.Equal(t, 3, st.Failures)
	assert.Equal(t, epoch, st.LastFailure)
	assert.Equal(t, time.Minute, st.RetryAfter)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	require.NoError(t, b.Do(ctx, succeed))

	st := b.Status()
	assert.Equal(t, StateClosed, st.State)
	assert.Equal(t, 0, st.Failures)

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	assert.Equal(t, StateClosed, b.Status().State)
}

func TestBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	b, clk := newTestBreaker(1, 10*time.Second)
	ctx := context.Background()
	_ = b.Do(ctx, fail)

	clk.Advance(4 * time.Second)

	calls := 0
	err := b.Do(ctx, func(context.Context) error {
		calls++
		return nil
	})

	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, fault.ErrBreakerOpen)
	after, ok := fault.RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, 6*time.Second, after)
}

func TestBreaker_CooldownAdmitsOneTrial(t *testing.T) {
	b, clk := newTestBreaker(1, 10*time.Second)
	ctx := context.Background()
	_ = b.Do(ctx, fail)

	clk.Advance(10 * time.Second)
	assert.Equal(t, StateHalfOpen, b.Status().State)

	var nested error
	trialCalls := 0
	err := b.Do(ctx, func(ctx context.Context) error {
		trialCalls++
		nested = b.Do(ctx, succeed)
		return errDevice
	})

	assert.ErrorIs(t, err, errDevice)
	assert.Equal(t, 1, trialCalls)
	assert.ErrorIs(t, nested, fault.ErrBreakerOpen)

	st := b.Status()
	assert.Equal(t, StateOpen, st.State)
	assert.Equal(t, 10*time.Second, st.RetryAfter)
	assert.ErrorIs(t, b.Do(ctx, succeed), fault.ErrBreakerOpen)
}

func TestBreaker_TrialSuccessCloses(t *testing.T) {
	b, clk := newTestBreaker(2, time.Second)
	ctx := context.Background()
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	clk.Advance(time.Second)

	require.NoError(t, b.Do(ctx, succeed))

	st := b.Status()
	assert.Equal(t, StateClosed, st.State)
	assert.Equal(t, 0, st.Failures)
	assert.Zero(t, st.RetryAfter)
}

func TestBreaker_InterruptedTrialReleasesSlot(t *testing.T) {
	b, clk := newTestBreaker(1, time.Second)
	ctx := context.Background()
	_ = b.Do(ctx, fail)
	clk.Advance(time.Second)

	err := b.Do(ctx, func(context.Context) error {
		return fault.Interrupted("read message", context.Canceled)
	})
	assert.ErrorIs(t, err, fault.ErrInterrupted)
	assert.Equal(t, StateHalfOpen, b.Status().State)

	require.NoError(t, b.Do(ctx, succeed))
	assert.Equal(t, StateClosed, b.Status().State)
}

func TestBreaker_StaleOutcomeIgnored(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	err := b.Do(ctx, func(ctx context.Context) error {
		_ = b.Do(ctx, fail)
		_ = b.Do(ctx, fail)
		return nil
	})
	require.NoError(t, err)

	st := b.Status()
	assert.Equal(t, StateOpen, st.State)
	assert.Equal(t, 2, st.Failures)
}

func TestBreaker_PanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	assert.Panics(t, func() {
		_ = b.Do(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.Status().State)
}

func TestBreaker_ConcurrentTrialAdmission(t *testing.T) {
	b, clk := newTestBreaker(1, time.Second)
	ctx := context.Background()
	_ = b.Do(ctx, fail)
	clk.Advance(time.Second)

	const callers = 16
	var admitted atomic.Int32
	release := make(chan struct{})
	rejected := make(chan struct{}, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Do(ctx, func(context.Context) error {
				admitted.Add(1)
				<-release
				return nil
			})
			if errors.Is(err, fault.ErrBreakerOpen) {
				rejected <- struct{}{}
			}
		}()
	}

	for i := 0; i < callers-1; i++ {
		<-rejected
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, StateClosed, b.Status().State)
}

func TestBreaker_StateChangeHook(t *testing.T) {
	var changes []string
	b, clk := newTestBreaker(1, time.Second, WithStateChangeHook(func(from, to State) {
		changes = append(changes, from.String()+"->"+to.String())
	}))
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	clk.Advance(time.Second)
	_ = b.Do(ctx, succeed)

	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, changes)
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Hour)
	_ = b.Do(context.Background(), fail)
	require.Equal(t, StateOpen, b.Status().State)

	b.Reset()
	st := b.Status()
	assert.Equal(t, StateClosed, st.State)
	assert.Equal(t, 0, st.Failures)
}

func TestGuard(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	v, err := Guard(context.Background(), b, func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	v, err = Guard(context.Background(), b, func(context.Context) (string, error) { return "partial", errDevice })
	assert.ErrorIs(t, err, errDevice)
	assert.Empty(t, v)
}
