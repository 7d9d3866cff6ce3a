// Package lifecycle implements the device state machine that gates every
// driver operation.
//
// States and allowed transitions:
//
//	UNINITIALIZED -> INITIALIZING
//	INITIALIZING  -> READY | ERROR | DISCONNECTED
//	READY         -> ERROR | DISCONNECTED
//	ERROR         -> INITIALIZING | DISCONNECTED
//	DISCONNECTED  -> INITIALIZING
package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-visionai/clock"
	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/logging"
)

// State is a device lifecycle state.
type State uint8

const (
	Uninitialized State = iota
	Initializing
	Ready
	Error
	Disconnected
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Initializing:
		return "INITIALIZING"
	case Ready:
		return "READY"
	case Error:
		return "ERROR"
	case Disconnected:
		return "DISCONNECTED"
	default:
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Allowed target sets, one bit per State.
const (
	fromUninitialized = 1 << Initializing
	fromInitializing  = 1<<Ready | 1<<Error | 1<<Disconnected
	fromReady         = 1<<Error | 1<<Disconnected
	fromError         = 1<<Initializing | 1<<Disconnected
	fromDisconnected  = 1 << Initializing
)

func allowedFrom(s State) uint8 {
	switch s {
	case Uninitialized:
		return fromUninitialized
	case Initializing:
		return fromInitializing
	case Ready:
		return fromReady
	case Error:
		return fromError
	case Disconnected:
		return fromDisconnected
	default:
		return 0
	}
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to State) bool {
	return to <= Disconnected && allowedFrom(from)&(1<<to) != 0
}

// Change describes one completed transition.
type Change struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

// Listener observes transitions. A returned error or a panic is logged
// and does not affect the state or other listeners.
type Listener func(Change) error

// Snapshot is the current state plus the last transition's reason and time.
type Snapshot struct {
	State  State     `json:"state"`
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
}

// Machine is the device state machine. It is safe for concurrent use.
type Machine struct {
	clock  clock.Clock
	logger logging.Logger

	mu        sync.Mutex
	state     State
	reason    string
	since     time.Time
	listeners []Listener
	seq       uint64

	// Notifications are delivered in seq order.
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	delivered  uint64
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock sets the clock used to timestamp transitions.
func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithLogger sets the logger for transitions and listener failures.
func WithLogger(l logging.Logger) Option {
	return func(m *Machine) { m.logger = logging.OrNop(l) }
}

// New returns a Machine in the UNINITIALIZED state.
func New(opts ...Option) *Machine {
	m := &Machine{
		clock:  clock.Real(),
		logger: logging.Nop(),
		state:  Uninitialized,
		reason: "created",
	}
	m.notifyCond = sync.NewCond(&m.notifyMu)
	for _, opt := range opts {
		opt(m)
	}
	m.since = m.clock.Now()
	return m
}

// AddListener registers l for every later transition.
func (m *Machine) AddListener(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Transition moves to target, recording reason.
//
// A transition to the current state succeeds without notifying anyone.
// A transition the table does not allow returns false and leaves the
// state unchanged. Listeners run synchronously on the calling goroutine
// after the state has been swapped. Concurrent transitions are delivered
// to listeners in the order they were applied, so a listener must not
// call Transition itself.
func (m *Machine) Transition(target State, reason string) bool {
	m.mu.Lock()
	from := m.state
	if target == from {
		m.mu.Unlock()
		return true
	}
	if !CanTransition(from, target) {
		m.mu.Unlock()
		m.logger.Debug("rejected state transition", "from", from.String(), "to", target.String(), "reason", reason)
		return false
	}

	now := m.clock.Now()
	m.state = target
	m.reason = reason
	m.since = now
	m.seq++
	seq := m.seq
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.Info("device state change", "from", from.String(), "to", target.String(), "reason", reason)

	m.notifyMu.Lock()
	for m.delivered+1 != seq {
		m.notifyCond.Wait()
	}
	m.notifyMu.Unlock()

	c := Change{From: from, To: target, Reason: reason, At: now}
	for i, l := range listeners {
		m.notify(i, l, c)
	}

	m.notifyMu.Lock()
	m.delivered = seq
	m.notifyCond.Broadcast()
	m.notifyMu.Unlock()
	return true
}

func (m *Machine) notify(i int, l Listener, c Change) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("state listener panicked", "listener", i, "panic", fmt.Sprint(r))
		}
	}()
	if err := l(c); err != nil {
		m.logger.Error("state listener failed", "listener", i, "error", err)
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsReady reports whether the device accepts operations.
func (m *Machine) IsReady() bool { return m.Current() == Ready }

// Snapshot returns the current state with its reason and time.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Reason: m.reason, Since: m.since}
}

// RequireReady returns a fatal KindDeviceNotReady error unless the device
// is READY.
func (m *Machine) RequireReady(op string) error {
	s := m.Snapshot()
	if s.State == Ready {
		return nil
	}
	return fault.New(fault.KindDeviceNotReady, op, "device is %s (%s)", s.State, s.Reason)
}
