package protocol

import (
	"errors"
	"fmt"
)

// Device result codes reported in the "code" field of a text response.
const (
	CodeOK       = 0
	CodeAgain    = 1
	CodeLog      = 2
	CodeTimedOut = 3
	CodeIO       = 4
	CodeInvalid  = 5
	CodeNoMem    = 6
	CodeBusy     = 7
	CodeNotSup   = 8
	CodePerm     = 9
)

// DeviceError represents a non-zero result code returned by the sensor.
type DeviceError struct {
	// Operation is the command that failed
	Operation string

	// Code is the result code from the device
	Code int
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s failed: %s (code %d)", e.Operation, codeName(e.Code), e.Code)
}

// Retryable reports whether the device asked the host to try again.
func (e *DeviceError) Retryable() bool {
	switch e.Code {
	case CodeAgain, CodeTimedOut, CodeIO, CodeBusy:
		return true
	default:
		return false
	}
}

// IsDeviceError returns true if err is or wraps a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// codeName returns a human-readable name for a result code.
func codeName(code int) string {
	switch code {
	case CodeOK:
		return "success"
	case CodeAgain:
		return "try again"
	case CodeLog:
		return "log message"
	case CodeTimedOut:
		return "device timed out"
	case CodeIO:
		return "device I/O error"
	case CodeInvalid:
		return "invalid argument"
	case CodeNoMem:
		return "out of memory"
	case CodeBusy:
		return "device busy"
	case CodeNotSup:
		return "not supported"
	case CodePerm:
		return "operation not permitted"
	default:
		return fmt.Sprintf("unknown result code %d", code)
	}
}
