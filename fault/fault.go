// Package fault defines the error taxonomy shared by every layer of the driver.
//
// Each error carries a Kind and a Severity. Recoverable errors may be
// retried by the resilience layer; fatal errors bypass retry and are
// propagated immediately.
//
// Kinds compare with errors.Is against the exported sentinels:
//
//	if errors.Is(err, fault.ErrTimeout) {
//	    // device did not answer in time
//	}
package fault

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindInvalidResponse
	KindShortRead
	KindBufferOverflow
	KindParse
	KindValidation
	KindTransport
	KindBreakerOpen
	KindMaxRetriesExceeded
	KindInterrupted
	KindDeviceNotReady
	KindInvalidArgument
	KindNoMatch
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindInvalidResponse:
		return "invalid response"
	case KindShortRead:
		return "short read"
	case KindBufferOverflow:
		return "buffer overflow"
	case KindParse:
		return "parse error"
	case KindValidation:
		return "validation error"
	case KindTransport:
		return "transport error"
	case KindBreakerOpen:
		return "circuit breaker open"
	case KindMaxRetriesExceeded:
		return "max retries exceeded"
	case KindInterrupted:
		return "interrupted"
	case KindDeviceNotReady:
		return "device not ready"
	case KindInvalidArgument:
		return "invalid argument"
	case KindNoMatch:
		return "no match"
	default:
		return "unknown error"
	}
}

// Severity tells the retry layer whether an error may be retried.
type Severity int

const (
	// Recoverable errors may succeed on a later attempt.
	Recoverable Severity = iota
	// Fatal errors are never retried.
	Fatal
)

func (s Severity) String() string {
	if s == Fatal {
		return "fatal"
	}
	return "recoverable"
}

// DefaultSeverity returns the severity assigned to a kind when none is given.
func DefaultSeverity(k Kind) Severity {
	switch k {
	case KindBufferOverflow, KindMaxRetriesExceeded, KindInterrupted,
		KindDeviceNotReady, KindInvalidArgument:
		return Fatal
	default:
		return Recoverable
	}
}

// Error is the concrete error type produced by the driver packages.
type Error struct {
	// Kind classifies the failure
	Kind Kind

	// Severity decides whether the retry layer may try again
	Severity Severity

	// Op is the operation that failed (e.g. "read message", "set model")
	Op string

	// Msg is an optional detail message
	Msg string

	// Err is the underlying cause, if any
	Err error

	// RetryAfter is the remaining cooldown for KindBreakerOpen
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Kind == KindBreakerOpen && e.RetryAfter > 0 {
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a fault sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons. Only the Kind is compared.
var (
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrInvalidResponse    = &Error{Kind: KindInvalidResponse}
	ErrShortRead          = &Error{Kind: KindShortRead}
	ErrBufferOverflow     = &Error{Kind: KindBufferOverflow}
	ErrParse              = &Error{Kind: KindParse}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrTransport          = &Error{Kind: KindTransport}
	ErrBreakerOpen        = &Error{Kind: KindBreakerOpen}
	ErrMaxRetriesExceeded = &Error{Kind: KindMaxRetriesExceeded}
	ErrInterrupted        = &Error{Kind: KindInterrupted}
	ErrDeviceNotReady     = &Error{Kind: KindDeviceNotReady}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrNoMatch            = &Error{Kind: KindNoMatch}
)

// New creates an error of the given kind with its default severity.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{
		Kind:     kind,
		Severity: DefaultSeverity(kind),
		Op:       op,
		Msg:      fmt.Sprintf(format, args...),
	}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{
		Kind:     kind,
		Severity: DefaultSeverity(kind),
		Op:       op,
		Err:      cause,
	}
}

// Fatalf creates a fatal error regardless of the kind's default severity.
func Fatalf(kind Kind, op, format string, args ...any) *Error {
	e := New(kind, op, format, args...)
	e.Severity = Fatal
	return e
}

// KindOf returns the kind of the outermost fault in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err must not be retried.
// Errors outside the taxonomy are treated as recoverable; context
// cancellation is always fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Severity == Fatal
	}
	return isContextErr(err)
}

// RetryAfter returns the remaining breaker cooldown carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == KindBreakerOpen {
		return fe.RetryAfter, true
	}
	return 0, false
}
