// Package serialbridge implements transport.Transport over a USB-serial
// to I2C bridge.
//
// # Envelope
//
// Every register access is wrapped in an envelope checked with
// CRC-16/XMODEM over all bytes after the marker:
//
//	host -> bridge: [0xA5][op][addr][len_hi][len_lo][data...][crc_hi][crc_lo]
//	bridge -> host: [0xA5][status][len_hi][len_lo][data...][crc_hi][crc_lo]
//
// op is 'W' (write data to addr) or 'R' (read; data is the 2-byte
// big-endian length wanted). status 0 means the I2C transaction succeeded.
package serialbridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sigurn/crc16"
	"go.bug.st/serial"

	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/logging"
)

// Envelope constants.
const (
	Marker = 0xA5

	OpWrite = 'W'
	OpRead  = 'R'

	StatusOK = 0x00

	// requestHeader is marker, op, addr and the 2-byte length
	requestHeader = 5
	// replyHeader is marker, status and the 2-byte length
	replyHeader = 4
	crcSize     = 2

	// MaxData bounds the data carried by one envelope.
	MaxData = 1024
)

// Defaults for Open.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 500 * time.Millisecond
)

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// Checksum returns the CRC-16/XMODEM of data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Port is the subset of serial.Port the bridge needs.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Bridge is a transport.Transport talking to a serial I2C bridge.
// It is safe for concurrent use.
type Bridge struct {
	mu      sync.Mutex
	port    Port
	timeout time.Duration
	logger  logging.Logger
}

// Option configures a Bridge.
type Option func(*config)

type config struct {
	baud    int
	timeout time.Duration
	logger  logging.Logger
}

// WithBaudRate sets the serial speed used by Open.
func WithBaudRate(baud int) Option {
	return func(c *config) { c.baud = baud }
}

// WithReadTimeout bounds how long one reply may take to arrive.
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *config) { c.logger = logging.OrNop(l) }
}

func newConfig(opts []Option) config {
	c := config{
		baud:    DefaultBaudRate,
		timeout: DefaultReadTimeout,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Open opens the named serial port (e.g. "/dev/ttyUSB0") 8N1.
func Open(name string, opts ...Option) (*Bridge, error) {
	c := newConfig(opts)
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: c.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, classify("open "+name, err)
	}
	b, err := New(port, opts...)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	c.logger.Info("serial bridge opened", "port", name, "baud", c.baud)
	return b, nil
}

// New wraps an already open port.
func New(port Port, opts ...Option) (*Bridge, error) {
	c := newConfig(opts)
	if err := port.SetReadTimeout(c.timeout); err != nil {
		return nil, classify("set read timeout", err)
	}
	return &Bridge{port: port, timeout: c.timeout, logger: c.logger}, nil
}

// Write sends data to the device at addr.
func (b *Bridge) Write(addr uint8, data []byte) error {
	_, err := b.exchange(OpWrite, addr, data)
	return err
}

// Read returns at most maxLen bytes from the device at addr.
func (b *Bridge) Read(addr uint8, maxLen int) ([]byte, error) {
	if maxLen <= 0 || maxLen > MaxData {
		return nil, fault.New(fault.KindInvalidArgument, "bridge read", "length %d outside 1-%d", maxLen, MaxData)
	}
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(maxLen))
	data, err := b.exchange(OpRead, addr, n[:])
	if err != nil {
		return nil, err
	}
	if len(data) > maxLen {
		data = data[:maxLen]
	}
	return data, nil
}

// Close closes the serial port.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port.Close()
}

func (b *Bridge) exchange(op byte, addr uint8, data []byte) ([]byte, error) {
	opName := "bridge write"
	if op == OpRead {
		opName = "bridge read"
	}
	if len(data) > MaxData {
		return nil, fault.New(fault.KindBufferOverflow, opName, "%d bytes exceeds envelope maximum %d", len(data), MaxData)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	req := Encode(op, addr, data)
	if _, err := b.port.Write(req); err != nil {
		return nil, classify(opName, err)
	}
	b.logger.Debug("bridge request", "op", string(rune(op)), "addr", int(addr), "len", len(data))

	head := make([]byte, replyHeader)
	if err := b.readFull(opName, head); err != nil {
		return nil, err
	}
	if head[0] != Marker {
		return nil, fault.New(fault.KindTransport, opName, "bad reply marker 0x%02X", head[0])
	}
	n := int(binary.BigEndian.Uint16(head[2:4]))
	if n > MaxData {
		return nil, fault.New(fault.KindTransport, opName, "reply length %d exceeds maximum %d", n, MaxData)
	}

	rest := make([]byte, n+crcSize)
	if err := b.readFull(opName, rest); err != nil {
		return nil, err
	}
	payload := rest[:n]

	body := append(head[1:], payload...)
	want := binary.BigEndian.Uint16(rest[n:])
	if got := Checksum(body); got != want {
		return nil, fault.New(fault.KindTransport, opName, "checksum mismatch: got 0x%04X, expected 0x%04X", got, want)
	}
	if head[1] != StatusOK {
		return nil, fault.New(fault.KindTransport, opName, "bridge status 0x%02X at address 0x%02X", head[1], addr)
	}
	return payload, nil
}

// readFull fills buf. The serial port returns (0, nil) when its read
// timeout expires, which ends the attempt.
func (b *Bridge) readFull(op string, buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := b.port.Read(buf[got:])
		if err != nil {
			return classify(op, err)
		}
		if n == 0 {
			return fault.New(fault.KindTransport, op, "no reply within %s (%d of %d bytes)", b.timeout, got, len(buf))
		}
		got += n
	}
	return nil
}

// Encode builds a host-to-bridge envelope.
func Encode(op byte, addr uint8, data []byte) []byte {
	out := make([]byte, requestHeader, requestHeader+len(data)+crcSize)
	out[0] = Marker
	out[1] = op
	out[2] = addr
	binary.BigEndian.PutUint16(out[3:5], uint16(len(data)))
	out = append(out, data...)
	return binary.BigEndian.AppendUint16(out, Checksum(out[1:]))
}

// EncodeReply builds a bridge-to-host envelope.
func EncodeReply(status byte, data []byte) []byte {
	out := make([]byte, replyHeader, replyHeader+len(data)+crcSize)
	out[0] = Marker
	out[1] = status
	binary.BigEndian.PutUint16(out[2:4], uint16(len(data)))
	out = append(out, data...)
	return binary.BigEndian.AppendUint16(out, Checksum(out[1:]))
}

// classify maps a serial error to a transport fault. Errors meaning the
// port is gone are fatal.
func classify(op string, err error) error {
	e := fault.Wrap(fault.KindTransport, op, err)
	if disconnected(err) {
		e.Severity = fault.Fatal
	}
	return e
}

func disconnected(err error) bool {
	var code serial.PortErrorCode
	var pe *serial.PortError
	var pv serial.PortError
	switch {
	case errors.As(err, &pe):
		code = pe.Code()
	case errors.As(err, &pv):
		code = pv.Code()
	default:
		return errors.Is(err, os.ErrClosed)
	}
	switch code {
	case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
		return true
	default:
		return false
	}
}

func (b *Bridge) String() string {
	return fmt.Sprintf("serialbridge(timeout=%s)", b.timeout)
}
