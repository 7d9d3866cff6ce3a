package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/moffa90/go-visionai/clock"
	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/logging"
)

// Default breaker settings.
const (
	DefaultThreshold = 5
	DefaultCooldown  = 30 * time.Second
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// BreakerStatus is a point-in-time view of a Breaker.
type BreakerStatus struct {
	State       State         `json:"state"`
	Failures    int           `json:"failures"`
	LastFailure time.Time     `json:"last_failure"`
	Threshold   int           `json:"threshold"`
	Cooldown    time.Duration `json:"cooldown"`

	// RetryAfter is the cooldown left while OPEN, zero otherwise.
	RetryAfter time.Duration `json:"retry_after"`
}

// StateChangeHook is called after every state change, outside the
// breaker's lock.
type StateChangeHook func(from, to State)

// errAborted stands in for the result of an operation that panicked.
var errAborted = errors.New("operation aborted")

// Breaker is a circuit breaker.
//
// CLOSED runs operations and counts consecutive failures; reaching the
// threshold opens the breaker. OPEN rejects every call with a
// KindBreakerOpen error until the cooldown has elapsed, then moves to
// HALF_OPEN. HALF_OPEN admits exactly one trial call: success closes the
// breaker, failure opens it again with a fresh cooldown.
//
// Admission and state changes happen in one critical section, so two
// callers can never both be admitted as the half-open trial. Each state
// change starts a new generation; the outcome of a call admitted under an
// older generation is ignored.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	clock     clock.Clock
	logger    logging.Logger
	onChange  StateChangeHook

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	openedAt      time.Time
	generation    uint64
	trialInFlight bool
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithThreshold sets the consecutive failures that open the breaker.
func WithThreshold(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d >= 0 {
			b.cooldown = d
		}
	}
}

// WithBreakerClock sets the clock used for cooldowns.
func WithBreakerClock(c clock.Clock) BreakerOption {
	return func(b *Breaker) { b.clock = c }
}

// WithBreakerLogger sets the logger.
func WithBreakerLogger(l logging.Logger) BreakerOption {
	return func(b *Breaker) { b.logger = logging.OrNop(l) }
}

// WithStateChangeHook sets a hook run after every state change.
func WithStateChangeHook(h StateChangeHook) BreakerOption {
	return func(b *Breaker) { b.onChange = h }
}

// NewBreaker creates a closed Breaker.
func NewBreaker(opts ...BreakerOption) *Breaker {
	b := &Breaker{
		threshold: DefaultThreshold,
		cooldown:  DefaultCooldown,
		clock:     clock.Real(),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type stateChange struct{ from, to State }

// Do runs op if the breaker admits it and records the outcome.
//
// Interruptions (context cancellation, KindInterrupted) are neither a
// success nor a failure: they release a half-open trial without moving
// the breaker.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	gen, err := b.admit()
	if err != nil {
		return err
	}

	opErr := errAborted
	defer func() { b.record(gen, opErr) }()

	opErr = op(ctx)
	return opErr
}

// Guard is Do for operations returning a value.
func Guard[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var v T
	err := b.Do(ctx, func(ctx context.Context) error {
		var err error
		v, err = op(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Status returns the current state. An expired cooldown is applied first,
// so an observer never sees OPEN once a trial would be admitted.
func (b *Breaker) Status() BreakerStatus {
	b.mu.Lock()
	now := b.clock.Now()
	changes := b.expire(now, nil)
	st := BreakerStatus{
		State:       b.state,
		Failures:    b.failures,
		LastFailure: b.lastFailure,
		Threshold:   b.threshold,
		Cooldown:    b.cooldown,
	}
	if b.state == StateOpen {
		st.RetryAfter = b.remaining(now)
	}
	b.mu.Unlock()

	b.notify(changes)
	return st
}

// Reset forces the breaker closed and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	var changes []stateChange
	if b.state != StateClosed {
		changes = b.setState(StateClosed, changes)
	}
	b.failures = 0
	b.trialInFlight = false
	b.mu.Unlock()

	b.notify(changes)
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	now := b.clock.Now()
	changes := b.expire(now, nil)

	var err error
	switch b.state {
	case StateOpen:
		err = b.rejection(b.remaining(now))
	case StateHalfOpen:
		if b.trialInFlight {
			err = b.rejection(0)
		} else {
			b.trialInFlight = true
			b.logger.Debug("admitting half-open trial")
		}
	}
	gen := b.generation
	b.mu.Unlock()

	b.notify(changes)
	return gen, err
}

func (b *Breaker) record(gen uint64, err error) {
	b.mu.Lock()
	var changes []stateChange

	switch {
	case gen != b.generation:
		b.logger.Debug("ignoring outcome from earlier breaker state", "error", err)

	case isInterruption(err):
		if b.state == StateHalfOpen {
			b.trialInFlight = false
		}

	case err == nil:
		if b.state == StateHalfOpen {
			changes = b.setState(StateClosed, changes)
		}
		b.failures = 0

	default:
		now := b.clock.Now()
		b.failures++
		b.lastFailure = now
		switch b.state {
		case StateHalfOpen:
			b.openedAt = now
			changes = b.setState(StateOpen, changes)
		case StateClosed:
			if b.failures >= b.threshold {
				b.openedAt = now
				changes = b.setState(StateOpen, changes)
			}
		}
	}
	b.mu.Unlock()

	b.notify(changes)
}

// expire moves OPEN to HALF_OPEN once the cooldown has elapsed.
// Callers hold mu.
func (b *Breaker) expire(now time.Time, changes []stateChange) []stateChange {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.cooldown {
		changes = b.setState(StateHalfOpen, changes)
	}
	return changes
}

// setState changes state and starts a new generation. Callers hold mu.
func (b *Breaker) setState(to State, changes []stateChange) []stateChange {
	from := b.state
	b.state = to
	b.generation++
	b.trialInFlight = false
	b.logger.Info("circuit breaker state change", "from", from.String(), "to", to.String(), "failures", b.failures)
	return append(changes, stateChange{from: from, to: to})
}

func (b *Breaker) remaining(now time.Time) time.Duration {
	left := b.cooldown - now.Sub(b.openedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (b *Breaker) rejection(retryAfter time.Duration) error {
	e := fault.New(fault.KindBreakerOpen, "circuit breaker", "rejecting call")
	e.RetryAfter = retryAfter
	return e
}

func (b *Breaker) notify(changes []stateChange) {
	if b.onChange == nil {
		return
	}
	for _, c := range changes {
		b.onChange(c.from, c.to)
	}
}

func isInterruption(err error) bool {
	return errors.Is(err, fault.ErrInterrupted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
