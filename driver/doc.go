// Package driver provides a resilient command/response client for AI vision
// sensors.
//
// # Overview
//
// The driver talks to the sensor through a transport.Transport and runs
// every operation through the same chain:
//   - Lifecycle gate: only a READY device accepts commands
//   - Circuit breaker: repeated failures stop traffic for a cooldown
//   - Retry: recoverable failures are retried with exponential backoff
//   - Executor: RESET, WRITE, then AVAIL polls and READ chunks until the
//     reply line is complete
//
// Replies are parsed into immutable InferenceResult snapshots that can be
// filtered with the query API in package result.
//
// # Basic Usage
//
//	dev := sim.New() // or serialbridge.Open("/dev/ttyUSB0")
//
//	d, err := driver.New(dev)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Close()
//
//	if err := d.Init(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := d.ReadInference(context.Background())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	best, err := res.Query().MinConfidence(80).BestOrFail()
//
// # Configuration Options
//
//	d, err := driver.New(dev,
//	    driver.WithReadTimeout(3*time.Second),
//	    driver.WithPollInterval(5*time.Millisecond),
//	    driver.WithBreaker(3, 10*time.Second),
//	    driver.WithImageSize(320, 320),
//	    driver.WithLogger(logging.NewZerolog(zl)),
//	)
//
// # Events
//
// Track exchanges, retries and state changes with a callback:
//
//	d, err := driver.New(dev,
//	    driver.WithEventCallback(func(e driver.Event) {
//	        if e.Phase == driver.PhaseState {
//	            fmt.Printf("device %s -> %s\n", e.From, e.To)
//	        }
//	    }),
//	)
//
// # Error Handling
//
// Every error is a *fault.Error. Use errors.Is with the fault sentinels:
//
//	_, err := d.ReadInference(ctx)
//	switch {
//	case errors.Is(err, fault.ErrDeviceNotReady):
//	    // call Init
//	case errors.Is(err, fault.ErrBreakerOpen):
//	    wait, _ := fault.RetryAfter(err)
//	    time.Sleep(wait)
//	}
//
// A fatal transport error moves the device to DISCONNECTED; Init
// reconnects.
package driver
