package fault

import (
	"context"
	"errors"
)

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Interrupted converts a context error into a fatal KindInterrupted error.
func Interrupted(op string, cause error) *Error {
	return Wrap(KindInterrupted, op, cause)
}
