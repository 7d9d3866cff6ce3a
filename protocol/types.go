package protocol

import "fmt"

// Command is a frame command code.
type Command byte

// String returns the mnemonic of the command code.
func (c Command) String() string {
	switch c {
	case CmdRead:
		return "READ"
	case CmdWrite:
		return "WRITE"
	case CmdAvail:
		return "AVAIL"
	case CmdReset:
		return "RESET"
	default:
		return fmt.Sprintf("CMD(0x%02X)", byte(c))
	}
}

// Frame is one decoded protocol message.
type Frame struct {
	// Command is the command code echoed by the device
	Command Command

	// Declared is the payload length announced in the header
	Declared int

	// Payload holds min(Declared, bytes present) payload bytes
	Payload []byte
}

// Truncated reports whether fewer payload bytes arrived than were declared.
func (f *Frame) Truncated() bool {
	return len(f.Payload) < f.Declared
}

// InvokeOptions are the arguments of the INVOKE command.
type InvokeOptions struct {
	// Iterations is the number of inference runs (1 for a single shot)
	Iterations int

	// Differed requests that results are only reported when they change
	Differed bool

	// ResultOnly omits the captured image from the reply
	ResultOnly bool
}

// DefaultInvokeOptions runs a single inference and returns only the results.
func DefaultInvokeOptions() InvokeOptions {
	return InvokeOptions{Iterations: 1, ResultOnly: true}
}
