package driver

import (
	"time"

	"github.com/moffa90/go-visionai/clock"
	"github.com/moffa90/go-visionai/logging"
	"github.com/moffa90/go-visionai/protocol"
	"github.com/moffa90/go-visionai/resilience"
	"github.com/moffa90/go-visionai/result"
)

// ActiveFunc reports whether the caller still wants the current exchange.
// It is checked on every availability poll; returning false aborts the
// exchange with a KindInterrupted error.
type ActiveFunc func() bool

// Config holds the driver configuration.
type Config struct {
	// Address is the device register address
	Address uint8

	// ReadTimeout bounds one complete command/reply exchange
	ReadTimeout time.Duration

	// PollInterval is the sleep between availability polls
	PollInterval time.Duration

	// ResponseCap is the largest reply accepted, across all chunks
	ResponseCap int

	// Retry is the backoff policy applied to each exchange
	Retry resilience.RetryConfig

	// BreakerThreshold is the consecutive failures that open the breaker
	BreakerThreshold int

	// BreakerCooldown is how long the breaker stays open
	BreakerCooldown time.Duration

	// ImageWidth and ImageHeight bound detections when the reply carries
	// no resolution
	ImageWidth  int
	ImageHeight int

	// Invoke holds the arguments of the invoke command
	Invoke protocol.InvokeOptions

	// EventCallback is called on exchanges, retries and state changes (optional)
	EventCallback EventCallback

	// Logger is used for logging operations (optional)
	Logger logging.Logger

	// Clock is the time source for timeouts, backoff and cooldowns
	Clock clock.Clock

	// Active is an external liveness flag checked while polling (optional)
	Active ActiveFunc
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Address:          protocol.DefaultAddress,
		ReadTimeout:      2 * time.Second,
		PollInterval:     10 * time.Millisecond,
		ResponseCap:      4096,
		Retry:            resilience.DefaultRetryConfig(),
		BreakerThreshold: resilience.DefaultThreshold,
		BreakerCooldown:  resilience.DefaultCooldown,
		ImageWidth:       result.DefaultImageWidth,
		ImageHeight:      result.DefaultImageHeight,
		Invoke:           protocol.DefaultInvokeOptions(),
		Logger:           logging.Nop(),
		Clock:            clock.Real(),
	}
}

// Option is a functional option for configuring the Driver.
type Option func(*Config)

// WithAddress sets the device register address.
// Default is 0x62.
func WithAddress(addr uint8) Option {
	return func(c *Config) {
		c.Address = addr
	}
}

// WithReadTimeout sets how long one exchange may wait for the reply.
//
// Example:
//
//	d, err := driver.New(t, driver.WithReadTimeout(5*time.Second))
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = timeout
	}
}

// WithPollInterval sets the sleep between availability polls.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

// WithResponseCap sets the largest reply accepted.
func WithResponseCap(n int) Option {
	return func(c *Config) {
		if n >= protocol.MaxReadLen {
			c.ResponseCap = n
		}
	}
}

// WithRetryConfig sets the backoff policy.
//
// Example:
//
//	rc, _ := resilience.NewRetryConfig(resilience.WithMaxAttempts(5))
//	d, err := driver.New(t, driver.WithRetryConfig(rc))
func WithRetryConfig(rc resilience.RetryConfig) Option {
	return func(c *Config) {
		c.Retry = rc
	}
}

// WithBreaker sets the circuit breaker threshold and cooldown.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(c *Config) {
		c.BreakerThreshold = threshold
		c.BreakerCooldown = cooldown
	}
}

// WithImageSize sets the default bounds used to validate detections.
func WithImageSize(width, height int) Option {
	return func(c *Config) {
		c.ImageWidth = width
		c.ImageHeight = height
	}
}

// WithInvokeOptions sets the arguments of the invoke command.
func WithInvokeOptions(opts protocol.InvokeOptions) Option {
	return func(c *Config) {
		c.Invoke = opts
	}
}

// WithEventCallback sets a callback receiving driver events.
//
// Example:
//
//	d, err := driver.New(t,
//	    driver.WithEventCallback(func(e driver.Event) {
//	        fmt.Printf("[%s] %s\n", e.Phase, e.Op)
//	    }),
//	)
func WithEventCallback(callback EventCallback) Option {
	return func(c *Config) {
		c.EventCallback = callback
	}
}

// WithLogger sets a logger for driver operations.
//
// Example:
//
//	d, err := driver.New(t, driver.WithLogger(logging.NewZerolog(zl)))
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) {
		c.Logger = logging.OrNop(logger)
	}
}

// WithClock sets the time source. Tests use clock.Manual.
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		if clk != nil {
			c.Clock = clk
		}
	}
}

// WithActiveFunc sets an external liveness flag checked while polling.
func WithActiveFunc(active ActiveFunc) Option {
	return func(c *Config) {
		c.Active = active
	}
}
