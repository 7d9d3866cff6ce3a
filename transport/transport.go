// Package transport defines the register-addressed byte channel the
// driver talks through.
//
// Implementations:
//   - transport/serialbridge: USB-serial to I2C bridge adapter
//   - transport/sim: in-memory simulated sensor for tests and demos
package transport

// Transport is a half-duplex, register-addressed byte channel.
//
// Write and Read carry no framing or buffering semantics of their own; the
// driver frames every exchange. Implementations need not be safe for
// concurrent use: the driver never has more than one exchange in flight.
//
// Implementations should return a *fault.Error of KindTransport. A fatal
// one (for example, the port was unplugged) marks the device disconnected.
type Transport interface {
	// Write sends data to the device at addr.
	Write(addr uint8, data []byte) error

	// Read returns at most maxLen bytes from the device at addr.
	Read(addr uint8, maxLen int) ([]byte, error)
}

// Closer is implemented by transports holding an OS resource.
type Closer interface {
	Close() error
}
