package driver

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/transport/sim"
)

func TestWatch_InvalidInterval(t *testing.T) {
	d, _ := newTestDriver(t, sim.New())
	assert.ErrorIs(t, d.Watch(context.Background(), 0), fault.ErrInvalidArgument)
}

func TestWatch_PublishesResults(t *testing.T) {
	dev := sim.New()
	dev.QueueInference(
		`{"boxes":[[10,10,20,20,60,0]]}`,
		`{"boxes":[[10,10,20,20,70,0]]}`,
		`{"boxes":[[10,10,20,20,80,0]]}`,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen int
	d, clk := readyDriver(t, dev, WithEventCallback(func(e Event) {
		if e.Phase == PhaseInference {
			seen++
			if seen == 3 {
				cancel()
			}
		}
	}))

	require.NoError(t, d.Watch(ctx, 100*time.Millisecond))

	latest := d.Latest()
	require.NotNil(t, latest)
	best, ok := latest.Query().Best()
	require.True(t, ok)
	assert.Equal(t, 80, best.Score)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, clk.Sleeps())
}

func TestWatch_PublishesInvalidOnFailure(t *testing.T) {
	d, _ := newTestDriver(t, sim.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx, 100*time.Millisecond) }()

	require.Eventually(t, func() bool {
		r := d.Latest()
		return r != nil && !r.Valid()
	}, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatch_OnlyOneAtATime(t *testing.T) {
	d, _ := newTestDriver(t, sim.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx, time.Millisecond) }()

	require.Eventually(t, d.watching.Load, time.Second, time.Millisecond)
	assert.ErrorIs(t, d.Watch(ctx, time.Millisecond), fault.ErrInvalidArgument)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, d.watching.Load())
}

func TestWatch_WaitsOutBreakerCooldown(t *testing.T) {
	dev := sim.New()
	d, clk := readyDriver(t, dev,
		WithRetryConfig(singleAttempt(t)),
		WithBreaker(1, 10*time.Second),
		WithReadTimeout(20*time.Millisecond),
	)
	dev.SetSilent(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx, 100*time.Millisecond) }()

	require.Eventually(t, func() bool {
		return slices.ContainsFunc(clk.Sleeps(), func(s time.Duration) bool { return s > time.Second })
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	latest := d.Latest()
	require.NotNil(t, latest)
	assert.False(t, latest.Valid())
}
