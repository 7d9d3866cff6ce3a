package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/moffa90/go-visionai/clock"
	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/logging"
)

// Default retry settings.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 100 * time.Millisecond
	DefaultMaxDelay     = 2 * time.Second
	DefaultMultiplier   = 2.0
)

// RetryConfig holds backoff settings. It is immutable once built;
// use NewRetryConfig to construct a validated value.
type RetryConfig struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

// RetryOption configures a RetryConfig.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryConfig) { c.maxAttempts = n }
}

// WithInitialDelay sets the delay before the second attempt.
func WithInitialDelay(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.initialDelay = d }
}

// WithMaxDelay caps the delay between attempts.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.maxDelay = d }
}

// WithMultiplier sets the factor applied to the delay after each failure.
func WithMultiplier(m float64) RetryOption {
	return func(c *RetryConfig) { c.multiplier = m }
}

// DefaultRetryConfig returns 3 attempts, 100ms initial delay doubling up to 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		maxAttempts:  DefaultMaxAttempts,
		initialDelay: DefaultInitialDelay,
		maxDelay:     DefaultMaxDelay,
		multiplier:   DefaultMultiplier,
	}
}

// NewRetryConfig applies opts over the defaults and validates the result.
//
// Example:
//
//	cfg, err := resilience.NewRetryConfig(
//	    resilience.WithMaxAttempts(5),
//	    resilience.WithInitialDelay(50*time.Millisecond),
//	)
func NewRetryConfig(opts ...RetryOption) (RetryConfig, error) {
	c := DefaultRetryConfig()
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.validate(); err != nil {
		return RetryConfig{}, err
	}
	return c, nil
}

func (c RetryConfig) validate() error {
	const op = "retry config"
	switch {
	case c.maxAttempts < 1:
		return fault.New(fault.KindInvalidArgument, op, "max attempts %d must be at least 1", c.maxAttempts)
	case c.initialDelay < 0:
		return fault.New(fault.KindInvalidArgument, op, "initial delay %s is negative", c.initialDelay)
	case c.maxDelay < c.initialDelay:
		return fault.New(fault.KindInvalidArgument, op,
			"max delay %s is below initial delay %s", c.maxDelay, c.initialDelay)
	case c.multiplier < 1.0 || math.IsNaN(c.multiplier):
		return fault.New(fault.KindInvalidArgument, op, "multiplier %g must be at least 1.0", c.multiplier)
	}
	return nil
}

// MaxAttempts returns the total number of attempts, the first included.
func (c RetryConfig) MaxAttempts() int { return c.maxAttempts }

// InitialDelay returns the wait before the second attempt.
func (c RetryConfig) InitialDelay() time.Duration { return c.initialDelay }

// MaxDelay returns the upper bound on any single wait.
func (c RetryConfig) MaxDelay() time.Duration { return c.maxDelay }

// Multiplier returns the backoff growth factor.
func (c RetryConfig) Multiplier() float64 { return c.multiplier }

// next returns the delay that follows d.
func (c RetryConfig) next(d time.Duration) time.Duration {
	n := float64(d) * c.multiplier
	if n >= float64(c.maxDelay) {
		return c.maxDelay
	}
	return time.Duration(n)
}

// String formats the config for logs.
func (c RetryConfig) String() string {
	return fmt.Sprintf("attempts=%d delay=%s..%s x%g", c.maxAttempts, c.initialDelay, c.maxDelay, c.multiplier)
}

// RetryHook is called before each backoff sleep with the attempt that
// just failed, the delay about to be slept and the failure.
type RetryHook func(attempt int, delay time.Duration, err error)

// Retrier runs operations with exponential backoff.
//
// Backoff sleeps block the calling goroutine; a Retrier never starts
// goroutines of its own. It is safe for concurrent use.
type Retrier struct {
	cfg     RetryConfig
	clock   clock.Clock
	logger  logging.Logger
	onRetry RetryHook
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithRetryClock sets the clock used for backoff sleeps.
func WithRetryClock(c clock.Clock) RetrierOption {
	return func(r *Retrier) { r.clock = c }
}

// WithRetryLogger sets the logger.
func WithRetryLogger(l logging.Logger) RetrierOption {
	return func(r *Retrier) { r.logger = logging.OrNop(l) }
}

// WithOnRetry sets a hook run before each backoff sleep.
func WithOnRetry(h RetryHook) RetrierOption {
	return func(r *Retrier) { r.onRetry = h }
}

// NewRetrier creates a Retrier for cfg.
func NewRetrier(cfg RetryConfig, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		cfg:    cfg,
		clock:  clock.Real(),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the retry settings.
func (r *Retrier) Config() RetryConfig { return r.cfg }

// Do runs op until it succeeds, fails fatally, or the attempts run out.
//
// A fatal error is returned unchanged after the attempt that raised it.
// Running out of attempts returns a fatal KindMaxRetriesExceeded error
// wrapping the last failure, so errors.Is still matches the cause.
// Cancellation of ctx, before an attempt or during a backoff sleep, returns
// a KindInterrupted error.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := Execute(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Execute is Do for operations returning a value.
func Execute[T any](ctx context.Context, r *Retrier, op func(context.Context) (T, error)) (T, error) {
	var zero T
	delay := r.cfg.initialDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fault.Interrupted("retry", err)
		}

		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("operation succeeded after retry", "attempt", attempt)
			}
			return v, nil
		}

		if fault.IsFatal(err) {
			r.logger.Debug("fatal error, not retrying", "attempt", attempt, "error", err)
			return zero, err
		}
		if attempt >= r.cfg.maxAttempts {
			r.logger.Error("retries exhausted", "attempts", attempt, "error", err)
			return zero, &fault.Error{
				Kind:     fault.KindMaxRetriesExceeded,
				Severity: fault.Fatal,
				Op:       "retry",
				Msg:      fmt.Sprintf("gave up after %d attempts", attempt),
				Err:      err,
			}
		}

		r.logger.Debug("attempt failed, backing off", "attempt", attempt, "delay", delay, "error", err)
		if r.onRetry != nil {
			r.onRetry(attempt, delay, err)
		}
		if serr := r.clock.Sleep(ctx, delay); serr != nil {
			return zero, fault.Interrupted("retry backoff", serr)
		}
		delay = r.cfg.next(delay)
	}
}
