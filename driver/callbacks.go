package driver

import "time"

// Event phases.
const (
	PhaseExchange  = "exchange"
	PhaseRetry     = "retry"
	PhaseBreaker   = "breaker"
	PhaseState     = "state"
	PhaseInference = "inference"
)

// Event describes something the driver did.
// Passed to EventCallback as operations run.
type Event struct {
	// Phase describes the event:
	//   "exchange"  - a command/reply exchange finished
	//   "retry"     - an exchange failed and will be retried
	//   "breaker"   - the circuit breaker changed state
	//   "state"     - the device lifecycle state changed
	//   "inference" - an inference result was produced
	Phase string

	// Op is the driver operation, e.g. "read inference"
	Op string

	// Attempt is the failed attempt number for "retry" events
	Attempt int

	// From and To are the old and new states for "breaker" and "state" events
	From string
	To   string

	// Detections is the detection count for "inference" events
	Detections int

	// Err is the failure, if any
	Err error

	// Elapsed is the exchange duration for "exchange" events
	Elapsed time.Duration
}

// EventCallback is called synchronously as the driver runs.
// Implementations should return quickly to avoid stalling the exchange.
//
// Example:
//
//	d, err := driver.New(t,
//	    driver.WithEventCallback(func(e driver.Event) {
//	        if e.Phase == driver.PhaseBreaker {
//	            fmt.Printf("breaker %s -> %s\n", e.From, e.To)
//	        }
//	    }),
//	)
type EventCallback func(Event)
