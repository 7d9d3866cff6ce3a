// Package config loads application settings for the vision driver tools.
//
// Settings come from an optional YAML, TOML or JSON file and from
// environment variables prefixed with VISIONAI_, with nested keys joined by
// underscores (e.g. VISIONAI_DRIVER_READ_TIMEOUT=3s). Environment values
// override the file; anything unset keeps its default.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/moffa90/go-visionai/driver"
	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/logging"
	"github.com/moffa90/go-visionai/protocol"
	"github.com/moffa90/go-visionai/resilience"
	"github.com/moffa90/go-visionai/transport/serialbridge"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "VISIONAI"

// Transport kinds.
const (
	TransportSim    = "sim"
	TransportSerial = "serial"
)

// Config is the complete application configuration.
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Driver    DriverConfig    `mapstructure:"driver"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Log       LogConfig       `mapstructure:"log"`
	API       APIConfig       `mapstructure:"api"`
}

// TransportConfig selects and configures the transport.
type TransportConfig struct {
	Kind        string        `mapstructure:"kind"`
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// DriverConfig mirrors the driver options.
type DriverConfig struct {
	Address       int           `mapstructure:"address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	ResponseCap   int           `mapstructure:"response_cap"`
	ImageWidth    int           `mapstructure:"image_width"`
	ImageHeight   int           `mapstructure:"image_height"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
}

// RetryConfig mirrors resilience.RetryConfig.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

// BreakerConfig holds the circuit breaker settings.
type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// LogConfig controls the zerolog logger.
type LogConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format is "console" for human output or "json"
	Format string `mapstructure:"format"`
}

// APIConfig configures the HTTP status API.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.kind", TransportSim)
	v.SetDefault("transport.port", "")
	v.SetDefault("transport.baud_rate", serialbridge.DefaultBaudRate)
	v.SetDefault("transport.read_timeout", serialbridge.DefaultReadTimeout)

	v.SetDefault("driver.address", protocol.DefaultAddress)
	v.SetDefault("driver.read_timeout", 2*time.Second)
	v.SetDefault("driver.poll_interval", 10*time.Millisecond)
	v.SetDefault("driver.response_cap", 4096)
	v.SetDefault("driver.image_width", 240)
	v.SetDefault("driver.image_height", 240)
	v.SetDefault("driver.watch_interval", 500*time.Millisecond)

	v.SetDefault("retry.max_attempts", resilience.DefaultMaxAttempts)
	v.SetDefault("retry.initial_delay", resilience.DefaultInitialDelay)
	v.SetDefault("retry.max_delay", resilience.DefaultMaxDelay)
	v.SetDefault("retry.multiplier", resilience.DefaultMultiplier)

	v.SetDefault("breaker.threshold", resilience.DefaultThreshold)
	v.SetDefault("breaker.cooldown", resilience.DefaultCooldown)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("api.addr", ":8080")
}

// Load reads the configuration from path, which may be empty to use
// defaults and environment only.
//
// Example:
//
//	cfg, err := config.Load("visionai.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	opts, err := cfg.DriverOptions(logger)
func Load(path string) (*Config, error) {
	const op = "load config"

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fault.Wrap(fault.KindInvalidArgument, op, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fault.Wrap(fault.KindInvalidArgument, op, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that the driver would otherwise reject later.
func (c *Config) Validate() error {
	const op = "validate config"

	switch c.Transport.Kind {
	case TransportSim:
	case TransportSerial:
		if c.Transport.Port == "" {
			return fault.New(fault.KindInvalidArgument, op, "transport.port is required for serial")
		}
	default:
		return fault.New(fault.KindInvalidArgument, op, "unknown transport.kind %q", c.Transport.Kind)
	}

	if c.Driver.Address < 0 || c.Driver.Address > 0x7F {
		return fault.New(fault.KindInvalidArgument, op, "driver.address 0x%X outside 7-bit range", c.Driver.Address)
	}
	if c.Driver.ReadTimeout <= 0 || c.Driver.PollInterval <= 0 || c.Driver.WatchInterval <= 0 {
		return fault.New(fault.KindInvalidArgument, op, "driver timeouts and intervals must be positive")
	}
	if c.Driver.ResponseCap < protocol.MaxReadLen {
		return fault.New(fault.KindInvalidArgument, op, "driver.response_cap %d below %d", c.Driver.ResponseCap, protocol.MaxReadLen)
	}
	if c.Driver.ImageWidth <= 0 || c.Driver.ImageHeight <= 0 {
		return fault.New(fault.KindInvalidArgument, op, "driver image size must be positive")
	}
	if c.Breaker.Threshold < 1 || c.Breaker.Cooldown < 0 {
		return fault.New(fault.KindInvalidArgument, op, "breaker threshold must be at least 1 and cooldown non-negative")
	}
	if _, err := c.retryConfig(); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fault.Wrap(fault.KindInvalidArgument, op, err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fault.New(fault.KindInvalidArgument, op, "unknown log.format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) retryConfig() (resilience.RetryConfig, error) {
	return resilience.NewRetryConfig(
		resilience.WithMaxAttempts(c.Retry.MaxAttempts),
		resilience.WithInitialDelay(c.Retry.InitialDelay),
		resilience.WithMaxDelay(c.Retry.MaxDelay),
		resilience.WithMultiplier(c.Retry.Multiplier),
	)
}

// DriverOptions converts the configuration to driver options.
func (c *Config) DriverOptions(logger logging.Logger) ([]driver.Option, error) {
	rc, err := c.retryConfig()
	if err != nil {
		return nil, err
	}
	return []driver.Option{
		driver.WithAddress(uint8(c.Driver.Address)),
		driver.WithReadTimeout(c.Driver.ReadTimeout),
		driver.WithPollInterval(c.Driver.PollInterval),
		driver.WithResponseCap(c.Driver.ResponseCap),
		driver.WithImageSize(c.Driver.ImageWidth, c.Driver.ImageHeight),
		driver.WithRetryConfig(rc),
		driver.WithBreaker(c.Breaker.Threshold, c.Breaker.Cooldown),
		driver.WithLogger(logger),
	}, nil
}

// BridgeOptions converts the transport settings to serial bridge options.
func (c *Config) BridgeOptions(logger logging.Logger) []serialbridge.Option {
	return []serialbridge.Option{
		serialbridge.WithBaudRate(c.Transport.BaudRate),
		serialbridge.WithReadTimeout(c.Transport.ReadTimeout),
		serialbridge.WithLogger(logger),
	}
}

// NewLogger builds the zerolog logger described by c, writing to w.
// A nil w means stderr.
func (c LogConfig) NewLogger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if w == nil {
		w = os.Stderr
	}
	if c.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
