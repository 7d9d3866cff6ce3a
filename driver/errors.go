package driver

import (
	"errors"

	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/protocol"
)

// asTransportFault passes faults through and wraps anything else as a
// recoverable transport error.
func asTransportFault(op string, err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	return fault.Wrap(fault.KindTransport, op, err)
}

// lostDevice reports whether err, anywhere in its chain, is a fatal
// transport error: the channel itself is gone.
func lostDevice(err error) bool {
	for err != nil {
		var fe *fault.Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == fault.KindTransport && fe.Severity == fault.Fatal {
			return true
		}
		err = fe.Err
	}
	return false
}

// replyError checks the result code of a device reply. Device codes that
// may clear on their own stay recoverable; the rest are fatal.
func replyError(op string, code int) error {
	if code == protocol.CodeOK {
		return nil
	}
	de := &protocol.DeviceError{Operation: op, Code: code}
	e := fault.Wrap(fault.KindInvalidResponse, op, de)
	if !de.Retryable() {
		e.Severity = fault.Fatal
	}
	return e
}
