// Command visionctl drives a vision sensor from the command line.
//
// Usage:
//
//	visionctl [-config visionai.yaml] info
//	visionctl [-config visionai.yaml] [-min-confidence 50] infer
//	visionctl [-config visionai.yaml] watch
//	visionctl [-config visionai.yaml] serve
//
// With transport.kind "sim" (the default) a simulated sensor is used.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/moffa90/go-visionai/config"
	"github.com/moffa90/go-visionai/driver"
	"github.com/moffa90/go-visionai/internal/statusapi"
	"github.com/moffa90/go-visionai/logging"
	"github.com/moffa90/go-visionai/protocol"
	"github.com/moffa90/go-visionai/transport"
	"github.com/moffa90/go-visionai/transport/serialbridge"
	"github.com/moffa90/go-visionai/transport/sim"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML, TOML or JSON)")
	minConfidence := flag.Int("min-confidence", 0, "Only report detections at or above this score")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] info|infer|watch|serve\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	zl, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Arg(0), cfg, zl, *minConfidence); err != nil {
		zl.Error().Err(err).Str("command", flag.Arg(0)).Msg("failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config, zl zerolog.Logger, minConfidence int) error {
	logger := logging.NewZerolog(zl)

	t, err := openTransport(cfg, logger)
	if err != nil {
		return err
	}

	opts, err := cfg.DriverOptions(logger)
	if err != nil {
		return err
	}
	opts = append(opts, driver.WithEventCallback(func(e driver.Event) {
		switch e.Phase {
		case driver.PhaseState, driver.PhaseBreaker:
			zl.Info().Str("phase", e.Phase).Str("from", e.From).Str("to", e.To).Msg("transition")
		case driver.PhaseRetry:
			zl.Warn().Int("attempt", e.Attempt).Err(e.Err).Msg("retrying")
		}
	}))

	d, err := driver.New(t, opts...)
	if err != nil {
		return err
	}
	defer d.Close()

	switch command {
	case "info":
		return runInfo(ctx, d)
	case "infer":
		return runInfer(ctx, d, minConfidence)
	case "watch":
		return runWatch(ctx, d, cfg.Driver.WatchInterval, minConfidence)
	case "serve":
		return runServe(ctx, d, cfg, logger)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func openTransport(cfg *config.Config, logger logging.Logger) (transport.Transport, error) {
	if cfg.Transport.Kind == config.TransportSerial {
		return serialbridge.Open(cfg.Transport.Port, cfg.BridgeOptions(logger)...)
	}

	dev := sim.New()
	dev.Handle(protocol.NameInvoke, func(string) (string, int) {
		return `{"boxes":[[60,80,40,40,88,0],[150,90,30,50,64,1]],"resolution":[240,240]}`, protocol.CodeOK
	})
	return dev, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runInfo(ctx context.Context, d *driver.Driver) error {
	if err := d.Init(ctx); err != nil {
		return err
	}

	info, err := d.DeviceInfo(ctx)
	if err != nil {
		return err
	}
	version, err := d.Version(ctx)
	if err != nil {
		return err
	}
	status, err := d.Status(ctx)
	if err != nil {
		return err
	}
	models, err := d.ListModels(ctx)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"device":  info,
		"version": version,
		"status":  status,
		"models":  models,
	})
}

func runInfer(ctx context.Context, d *driver.Driver, minConfidence int) error {
	if err := d.Init(ctx); err != nil {
		return err
	}
	res, err := d.ReadInference(ctx)
	if err != nil {
		return err
	}
	if minConfidence > 0 {
		return printJSON(res.Query().MinConfidence(minConfidence).Matches())
	}
	return printJSON(res)
}

func runWatch(ctx context.Context, d *driver.Driver, interval time.Duration, minConfidence int) error {
	if err := d.Init(ctx); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx, interval) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uuid.UUID
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			res := d.Latest()
			if res == nil || res.ID() == last {
				continue
			}
			last = res.ID()
			if !res.Valid() {
				fmt.Printf("%s  no data\n", res.Timestamp().Format(time.TimeOnly))
				continue
			}
			q := res.Query().MinConfidence(minConfidence)
			best, ok := q.Best()
			if !ok {
				fmt.Printf("%s  0 detections\n", res.Timestamp().Format(time.TimeOnly))
				continue
			}
			fmt.Printf("%s  %d detections, best target %d at (%d,%d) score %d\n",
				res.Timestamp().Format(time.TimeOnly), q.Count(), best.TargetID, best.X, best.Y, best.Score)
		}
	}
}

func runServe(ctx context.Context, d *driver.Driver, cfg *config.Config, logger logging.Logger) error {
	if err := d.Init(ctx); err != nil {
		logger.Error("initial init failed, POST /init to retry", "error", err)
	}
	go func() { _ = d.Watch(ctx, cfg.Driver.WatchInterval) }()

	srv := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      statusapi.New(d, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2*cfg.Driver.ReadTimeout + 10*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("status API listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
