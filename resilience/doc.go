// Package resilience provides the retry policy and circuit breaker that
// wrap every device exchange.
//
// The two compose with the breaker outermost, so an exhausted retry
// sequence counts as one breaker failure:
//
//	retrier := resilience.NewRetrier(resilience.DefaultRetryConfig())
//	breaker := resilience.NewBreaker(resilience.WithThreshold(3))
//
//	payload, err := resilience.Guard(ctx, breaker, func(ctx context.Context) ([]byte, error) {
//	    return resilience.Execute(ctx, retrier, exchange)
//	})
//
// Both block the calling goroutine; neither starts goroutines.
package resilience
