package driver

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/moffa90/go-visionai/clock"
	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/logging"
	"github.com/moffa90/go-visionai/protocol"
	"github.com/moffa90/go-visionai/transport"
)

var errInactive = errors.New("caller no longer active")

// Executor performs framed write/poll/read exchanges over a Transport.
//
// Every exchange holds the executor's lock from its first write to its
// last read, so at most one request is ever in flight on the transport.
// Buffers are allocated per call.
//
// Executor is safe for concurrent use.
type Executor struct {
	mu sync.Mutex

	t        transport.Transport
	addr     uint8
	poll     time.Duration
	capacity int
	clock    clock.Clock
	logger   logging.Logger
	active   ActiveFunc
}

// NewExecutor creates an Executor for t. Only the transport related
// options (address, poll interval, response cap, clock, logger, active
// func) apply.
func NewExecutor(t transport.Transport, opts ...Option) *Executor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newExecutor(t, cfg)
}

func newExecutor(t transport.Transport, cfg Config) *Executor {
	return &Executor{
		t:        t,
		addr:     cfg.Address,
		poll:     cfg.PollInterval,
		capacity: cfg.ResponseCap,
		clock:    cfg.Clock,
		logger:   logging.OrNop(cfg.Logger),
		active:   cfg.Active,
	}
}

// InvokeOnce clears the device buffers with RESET and then sends command
// in a WRITE frame. It does not wait for a reply.
func (e *Executor) InvokeOnce(ctx context.Context, command string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invoke(ctx, command)
}

// ReadMessageWithTimeout waits up to timeout for the device to report
// pending bytes, then reads at most maxLen of them.
//
// The availability poll checks ctx and the active func on every iteration
// and fails with KindInterrupted once either says stop. No data before the
// deadline fails with KindTimeout.
func (e *Executor) ReadMessageWithTimeout(ctx context.Context, maxLen int, timeout time.Duration) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readMessage(ctx, maxLen, timeout)
}

// Exchange sends command and collects the complete reply line, reading
// as many chunks as the device delivers until the reply terminator
// arrives. The whole exchange is bounded by timeout; a reply larger than
// the response cap fails with KindBufferOverflow.
func (e *Executor) Exchange(ctx context.Context, command string, timeout time.Duration) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "exchange"
	start := e.clock.Now()
	deadline := start.Add(timeout)

	if err := e.invoke(ctx, command); err != nil {
		return nil, err
	}

	var buf []byte
	for !bytes.HasSuffix(buf, []byte(protocol.ReplyTerminator)) {
		chunk, err := e.readMessage(ctx, protocol.MaxReadLen, deadline.Sub(e.clock.Now()))
		if err != nil {
			if len(buf) > 0 && errors.Is(err, fault.ErrTimeout) {
				return nil, fault.New(fault.KindShortRead, op,
					"reply unterminated after %d bytes: %v", len(buf), err)
			}
			return nil, err
		}
		if len(buf)+len(chunk) > e.capacity {
			return nil, fault.New(fault.KindBufferOverflow, op,
				"reply exceeds %d bytes", e.capacity)
		}
		buf = append(buf, chunk...)
	}

	e.logger.Debug("exchange complete", "command", command, "bytes", len(buf),
		"elapsed", e.clock.Now().Sub(start).String())
	return bytes.TrimRight(buf, protocol.ReplyTerminator), nil
}

func (e *Executor) invoke(ctx context.Context, command string) error {
	const op = "invoke"
	if err := e.alive(ctx, op); err != nil {
		return err
	}
	frame, err := protocol.BuildWriteCmd(command)
	if err != nil {
		return err
	}
	if err := e.write(op, protocol.BuildResetCmd()); err != nil {
		return err
	}
	return e.write(op, frame)
}

func (e *Executor) readMessage(ctx context.Context, maxLen int, timeout time.Duration) ([]byte, error) {
	const op = "read message"
	if maxLen <= 0 {
		return nil, fault.New(fault.KindInvalidArgument, op, "max length %d must be positive", maxLen)
	}

	deadline := e.clock.Now().Add(timeout)
	var pending int
	for {
		if err := e.alive(ctx, op); err != nil {
			return nil, err
		}

		n, err := e.available()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			pending = n
			break
		}

		if !e.clock.Now().Before(deadline) {
			return nil, fault.New(fault.KindTimeout, op, "no data within %s", timeout)
		}
		if err := e.clock.Sleep(ctx, e.poll); err != nil {
			return nil, fault.Interrupted(op, err)
		}
	}

	return e.readChunk(min(pending, maxLen, protocol.MaxReadLen))
}

// available asks the device how many reply bytes are pending.
func (e *Executor) available() (int, error) {
	const op = "query available"
	if err := e.write(op, protocol.BuildAvailQuery()); err != nil {
		return 0, err
	}
	data, err := e.read(op, protocol.AvailSize)
	if err != nil {
		return 0, err
	}
	return protocol.ParseAvailable(data)
}

// readChunk reads exactly n pending bytes in one READ frame.
func (e *Executor) readChunk(n int) ([]byte, error) {
	const op = "read chunk"
	req, err := protocol.BuildReadRequest(n)
	if err != nil {
		return nil, err
	}
	if err := e.write(op, req); err != nil {
		return nil, err
	}
	raw, err := e.read(op, protocol.HeaderSize+n)
	if err != nil {
		return nil, err
	}

	f, err := protocol.ParseFrameExpect(raw, protocol.CmdRead)
	if err != nil {
		return nil, err
	}
	if len(f.Payload) < n {
		return nil, fault.New(fault.KindShortRead, op,
			"got %d bytes, requested %d (declared %d)", len(f.Payload), n, f.Declared)
	}
	return f.Payload[:n], nil
}

func (e *Executor) write(op string, frame []byte) error {
	if err := e.t.Write(e.addr, frame); err != nil {
		return asTransportFault(op, err)
	}
	return nil
}

func (e *Executor) read(op string, n int) ([]byte, error) {
	data, err := e.t.Read(e.addr, n)
	if err != nil {
		return nil, asTransportFault(op, err)
	}
	return data, nil
}

func (e *Executor) alive(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fault.Interrupted(op, err)
	}
	if e.active != nil && !e.active() {
		return fault.Interrupted(op, errInactive)
	}
	return nil
}
