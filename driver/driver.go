package driver

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/lifecycle"
	"github.com/moffa90/go-visionai/logging"
	"github.com/moffa90/go-visionai/protocol"
	"github.com/moffa90/go-visionai/resilience"
	"github.com/moffa90/go-visionai/result"
	"github.com/moffa90/go-visionai/transport"
)

// Driver is a resilient client for one vision sensor.
//
// Every public operation is gated by the lifecycle state machine, then
// runs through the circuit breaker, the retry policy and the executor:
//
//	caller -> lifecycle (READY?) -> breaker -> retry -> executor -> transport
//
// Driver is safe for concurrent use; exchanges are serialized by the
// executor.
type Driver struct {
	config Config
	logger logging.Logger
	t      transport.Transport

	exec    *Executor
	parser  *result.Parser
	retrier *resilience.Retrier
	breaker *resilience.Breaker
	state   *lifecycle.Machine
	stats   metrics

	initMu   sync.Mutex
	latest   atomic.Pointer[result.InferenceResult]
	watching atomic.Bool
}

// VersionInfo is the device firmware version.
type VersionInfo struct {
	ATAPI    string `json:"at_api"`
	Software string `json:"software"`
	Hardware string `json:"hardware"`
}

// DeviceStatus is the device's self-reported status.
type DeviceStatus struct {
	BootCount int  `json:"boot_count"`
	Ready     bool `json:"ready"`
}

// DeviceInfo identifies the device.
type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Info string `json:"info"`
}

// New creates a Driver for t. The device starts UNINITIALIZED; call Init
// before any other operation.
//
// Example:
//
//	bridge, err := serialbridge.Open("/dev/ttyUSB0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	d, err := driver.New(bridge,
//	    driver.WithReadTimeout(3*time.Second),
//	    driver.WithBreaker(3, 10*time.Second),
//	)
func New(t transport.Transport, opts ...Option) (*Driver, error) {
	if t == nil {
		return nil, fault.New(fault.KindInvalidArgument, "new driver", "transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	d := &Driver{
		config: cfg,
		logger: logging.OrNop(cfg.Logger),
		t:      t,
	}

	d.state = lifecycle.New(
		lifecycle.WithClock(cfg.Clock),
		lifecycle.WithLogger(d.logger),
	)
	d.state.AddListener(d.onStateChange)

	execCfg := cfg
	execCfg.Active = d.active
	d.exec = newExecutor(t, execCfg)

	d.parser = result.NewParser(
		result.WithImageSize(cfg.ImageWidth, cfg.ImageHeight),
		result.WithParserLogger(d.logger),
	)
	d.retrier = resilience.NewRetrier(cfg.Retry,
		resilience.WithRetryClock(cfg.Clock),
		resilience.WithRetryLogger(d.logger),
		resilience.WithOnRetry(d.onRetry),
	)
	d.breaker = resilience.NewBreaker(
		resilience.WithThreshold(cfg.BreakerThreshold),
		resilience.WithCooldown(cfg.BreakerCooldown),
		resilience.WithBreakerClock(cfg.Clock),
		resilience.WithBreakerLogger(d.logger),
		resilience.WithStateChangeHook(d.onBreakerChange),
	)

	return d, nil
}

func validate(cfg Config) error {
	const op = "new driver"
	switch {
	case cfg.ReadTimeout <= 0:
		return fault.New(fault.KindInvalidArgument, op, "read timeout must be positive")
	case cfg.PollInterval <= 0:
		return fault.New(fault.KindInvalidArgument, op, "poll interval must be positive")
	case cfg.BreakerThreshold < 1:
		return fault.New(fault.KindInvalidArgument, op, "breaker threshold %d must be at least 1", cfg.BreakerThreshold)
	case cfg.BreakerCooldown < 0:
		return fault.New(fault.KindInvalidArgument, op, "breaker cooldown is negative")
	case cfg.ImageWidth <= 0 || cfg.ImageHeight <= 0:
		return fault.New(fault.KindInvalidArgument, op, "image size %dx%d must be positive", cfg.ImageWidth, cfg.ImageHeight)
	case cfg.Retry.MaxAttempts() < 1:
		return fault.New(fault.KindInvalidArgument, op, "retry config was not built with resilience.NewRetryConfig")
	}
	return nil
}

// Init probes the device and moves it to READY.
//
// Init is allowed from UNINITIALIZED, ERROR and DISCONNECTED, and is a
// no-op when the device is already READY. A failed probe leaves the device
// in ERROR, or DISCONNECTED if the transport is gone. Init resets the
// circuit breaker.
func (d *Driver) Init(ctx context.Context) error {
	const op = "init"

	d.initMu.Lock()
	defer d.initMu.Unlock()

	if d.state.IsReady() {
		return nil
	}
	from := d.state.Current()
	if from == lifecycle.Initializing || !d.state.Transition(lifecycle.Initializing, "init requested") {
		return fault.New(fault.KindDeviceNotReady, op, "cannot initialize from %s", from)
	}
	d.breaker.Reset()

	reply, err := resilience.Execute(ctx, d.retrier, func(ctx context.Context) ([]byte, error) {
		return d.exchange(ctx, op, protocol.IDQuery())
	})
	if err != nil {
		if lostDevice(err) {
			d.state.Transition(lifecycle.Disconnected, err.Error())
		} else {
			d.state.Transition(lifecycle.Error, err.Error())
		}
		return err
	}

	id, _ := result.Field(reply, "data")
	d.state.Transition(lifecycle.Ready, "device "+id+" answered")
	return nil
}

// ReadInference invokes the model once and returns the parsed result.
//
// A result with no detections is a success. A transport or protocol
// failure returns a typed error; see package fault.
func (d *Driver) ReadInference(ctx context.Context) (*result.InferenceResult, error) {
	const op = "read inference"

	raw, err := d.run(ctx, op, protocol.InvokeCmd(d.config.Invoke))
	if err != nil {
		return nil, err
	}

	res := d.parser.Parse(raw, d.config.Clock.Now())
	n := len(res.Detections())
	d.stats.inference(n, res.Dropped())
	d.latest.Store(res)

	d.emit(Event{Phase: PhaseInference, Op: op, Detections: n})
	return res, nil
}

// SetModel selects the model the device runs. id is range-checked before
// any I/O.
func (d *Driver) SetModel(ctx context.Context, id int) error {
	const op = "set model"
	if err := d.state.RequireReady(op); err != nil {
		return err
	}
	cmd, err := protocol.LoadModelCmd(id)
	if err != nil {
		return err
	}
	_, err = d.run(ctx, op, cmd)
	return err
}

// SetSensor enables sensor id. id is range-checked before any I/O.
func (d *Driver) SetSensor(ctx context.Context, id int) error {
	const op = "set sensor"
	if err := d.state.RequireReady(op); err != nil {
		return err
	}
	cmd, err := protocol.ConfigureSensorCmd(id, true, 0)
	if err != nil {
		return err
	}
	_, err = d.run(ctx, op, cmd)
	return err
}

// Version queries the firmware version.
func (d *Driver) Version(ctx context.Context) (VersionInfo, error) {
	raw, err := d.run(ctx, "version", protocol.VersionQuery())
	if err != nil {
		return VersionInfo{}, err
	}
	var v VersionInfo
	v.ATAPI, _ = result.Field(raw, "at_api")
	v.Software, _ = result.Field(raw, "software")
	v.Hardware, _ = result.Field(raw, "hardware")
	return v, nil
}

// Status queries the device status.
func (d *Driver) Status(ctx context.Context) (DeviceStatus, error) {
	raw, err := d.run(ctx, "status", protocol.StatusQuery())
	if err != nil {
		return DeviceStatus{}, err
	}
	var s DeviceStatus
	s.BootCount, _ = result.IntField(raw, "boot_count")
	ready, _ := result.IntField(raw, "is_ready")
	s.Ready = ready == 1
	return s, nil
}

// DeviceInfo queries the device id, name and info string.
func (d *Driver) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	var info DeviceInfo
	queries := []struct {
		op, cmd, key string
		dst          *string
	}{
		{"device id", protocol.IDQuery(), "data", &info.ID},
		{"device name", protocol.NameQuery(), "data", &info.Name},
		{"device info", protocol.InfoQuery(), "info", &info.Info},
	}
	for _, q := range queries {
		raw, err := d.run(ctx, q.op, q.cmd)
		if err != nil {
			return DeviceInfo{}, err
		}
		*q.dst, _ = result.Field(raw, q.key)
	}
	return info, nil
}

// ListModels returns the ids of the models installed on the device.
func (d *Driver) ListModels(ctx context.Context) ([]int, error) {
	raw, err := d.run(ctx, "list models", protocol.ModelsQuery())
	if err != nil {
		return nil, err
	}
	return result.IntFields(raw, "id"), nil
}

// Latest returns the most recent result produced by ReadInference or
// Watch, or nil if there is none yet.
func (d *Driver) Latest() *result.InferenceResult { return d.latest.Load() }

// MetricsSnapshot returns a copy of the driver counters.
func (d *Driver) MetricsSnapshot() Metrics { return d.stats.snapshot() }

// BreakerStatus returns the circuit breaker state.
func (d *Driver) BreakerStatus() resilience.BreakerStatus { return d.breaker.Status() }

// DeviceState returns the lifecycle state.
func (d *Driver) DeviceState() lifecycle.Snapshot { return d.state.Snapshot() }

// AddStateListener registers l for lifecycle transitions.
func (d *Driver) AddStateListener(l lifecycle.Listener) { d.state.AddListener(l) }

// Disconnect marks the device DISCONNECTED. In-flight polls notice on
// their next iteration and fail with KindInterrupted.
func (d *Driver) Disconnect(reason string) bool {
	return d.state.Transition(lifecycle.Disconnected, reason)
}

// Close disconnects and closes the transport if it holds an OS resource.
func (d *Driver) Close() error {
	d.Disconnect("closed")
	if c, ok := d.t.(transport.Closer); ok {
		return c.Close()
	}
	return nil
}

// run is the gated, resilient path shared by every device operation.
func (d *Driver) run(ctx context.Context, op, command string) ([]byte, error) {
	if err := d.state.RequireReady(op); err != nil {
		return nil, err
	}

	reply, err := resilience.Guard(ctx, d.breaker, func(ctx context.Context) ([]byte, error) {
		return resilience.Execute(ctx, d.retrier, func(ctx context.Context) ([]byte, error) {
			return d.exchange(ctx, op, command)
		})
	})
	if err != nil {
		if errors.Is(err, fault.ErrBreakerOpen) {
			d.stats.breakerRejections.Add(1)
		}
		if lostDevice(err) {
			d.state.Transition(lifecycle.Disconnected, err.Error())
		}
		d.logger.Error("operation failed", "op", op, "error", err)
		return nil, err
	}
	return reply, nil
}

// exchange is one attempt: write the command, collect the reply and check
// its result code.
func (d *Driver) exchange(ctx context.Context, op, command string) ([]byte, error) {
	start := d.config.Clock.Now()
	reply, err := d.exec.Exchange(ctx, command, d.config.ReadTimeout)
	if err == nil {
		err = checkReply(op, reply)
	}
	end := d.config.Clock.Now()

	d.stats.exchange(end.Sub(start), end, err)
	d.emit(Event{Phase: PhaseExchange, Op: op, Err: err, Elapsed: end.Sub(start)})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func checkReply(op string, reply []byte) error {
	if bytes.IndexByte(reply, '{') < 0 {
		return fault.New(fault.KindInvalidResponse, op, "reply is not an object: %q", reply)
	}
	if code, ok := result.IntField(reply, "code"); ok {
		return replyError(op, code)
	}
	return nil
}

// active is the liveness flag handed to the executor.
func (d *Driver) active() bool {
	if d.state.Current() == lifecycle.Disconnected {
		return false
	}
	return d.config.Active == nil || d.config.Active()
}

func (d *Driver) emit(e Event) {
	if d.config.EventCallback != nil {
		d.config.EventCallback(e)
	}
}

func (d *Driver) onRetry(attempt int, _ time.Duration, err error) {
	d.stats.retries.Add(1)
	d.emit(Event{Phase: PhaseRetry, Attempt: attempt, Err: err})
}

func (d *Driver) onBreakerChange(from, to resilience.State) {
	d.emit(Event{Phase: PhaseBreaker, From: from.String(), To: to.String()})
}

func (d *Driver) onStateChange(c lifecycle.Change) error {
	d.emit(Event{Phase: PhaseState, Op: c.Reason, From: c.From.String(), To: c.To.String()})
	return nil
}
