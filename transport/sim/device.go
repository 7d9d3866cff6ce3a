// Package sim provides a simulated vision sensor implementing
// transport.Transport.
//
// The device decodes the frames it receives, answers AVAIL and READ
// exactly as the hardware does, and replies to text commands with
// scripted payloads. Faults can be injected to exercise the driver's
// timeout, retry and breaker paths.
//
// Example:
//
//	dev := sim.New()
//	dev.QueueInference(`{"boxes":[[10,10,20,20,90,0]]}`)
//	d, _ := driver.New(dev)
package sim

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/protocol"
)

// Handler answers one text command. args is the text after '=' (empty for
// queries); the returned string is the "data" member of the reply.
// Returning a non-zero code reports a device-side failure.
type Handler func(args string) (data string, code int)

// Device is a simulated sensor. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	addr     uint8
	handlers map[string]Handler
	invokes  []string

	// outbox holds the reply text waiting to be read.
	outbox []byte
	// reply is what the next Read returns.
	reply []byte

	availDelay int
	polls      int

	writeErrs []error
	readErrs  []error
	silent    bool
	corrupt   int

	frames   [][]byte
	commands []string
	model    int
	sensor   int
}

// Option configures a Device.
type Option func(*Device)

// WithAddress sets the register address the device answers on.
func WithAddress(addr uint8) Option {
	return func(d *Device) { d.addr = addr }
}

// WithAvailDelay makes the first n AVAIL polls after each command report
// nothing pending.
func WithAvailDelay(n int) Option {
	return func(d *Device) { d.availDelay = n }
}

// New creates a simulated device with handlers for every standard command.
func New(opts ...Option) *Device {
	d := &Device{
		addr:   protocol.DefaultAddress,
		model:  1,
		sensor: 1,
	}
	d.handlers = map[string]Handler{
		protocol.NameID + "?":      constant(`"0x3ae29c1"`),
		protocol.NameName + "?":    constant(`"Vision AI Sim"`),
		protocol.NameVersion + "?": constant(`{"at_api":"v0","software":"2024.08.26","hardware":"1"}`),
		protocol.NameStatus + "?":  constant(`{"boot_count":1,"is_ready":1}`),
		protocol.NameInfo + "?":    constant(`{"crc16_maxim":4616,"info":"sim"}`),
		protocol.NameModels + "?":  constant(`[{"id":1,"type":0},{"id":2,"type":0}]`),
		protocol.NameModel:         d.loadModel,
		protocol.NameSensor:        d.configureSensor,
		protocol.NameInvoke:        d.invoke,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func constant(data string) Handler {
	return func(string) (string, int) { return data, protocol.CodeOK }
}

// Handle replaces the handler for a command. Queries are keyed with their
// trailing '?', e.g. "ID?"; actions by bare name, e.g. "MODEL".
func (d *Device) Handle(key string, h Handler) {
	d.mu.Lock()
	d.handlers[key] = h
	d.mu.Unlock()
}

// QueueInference appends payloads returned as the "data" of successive
// INVOKE replies. Once the queue is empty, INVOKE returns an empty result.
func (d *Device) QueueInference(data ...string) {
	d.mu.Lock()
	d.invokes = append(d.invokes, data...)
	d.mu.Unlock()
}

// FailWrites makes the next len(errs) writes fail with errs in order.
func (d *Device) FailWrites(errs ...error) {
	d.mu.Lock()
	d.writeErrs = append(d.writeErrs, errs...)
	d.mu.Unlock()
}

// FailReads makes the next len(errs) reads fail with errs in order.
func (d *Device) FailReads(errs ...error) {
	d.mu.Lock()
	d.readErrs = append(d.readErrs, errs...)
	d.mu.Unlock()
}

// SetSilent makes the device accept commands but never report data.
func (d *Device) SetSilent(silent bool) {
	d.mu.Lock()
	d.silent = silent
	d.mu.Unlock()
}

// CorruptReplies makes the next n READ replies carry a bad header marker.
func (d *Device) CorruptReplies(n int) {
	d.mu.Lock()
	d.corrupt += n
	d.mu.Unlock()
}

// Frames returns copies of every frame written, in order.
func (d *Device) Frames() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.frames))
	for i, f := range d.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Commands returns the text commands received, in order.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Model returns the currently selected model id.
func (d *Device) Model() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.model
}

// Sensor returns the currently selected sensor id.
func (d *Device) Sensor() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sensor
}

func (d *Device) Write(addr uint8, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.writeErrs) > 0 {
		err := d.writeErrs[0]
		d.writeErrs = d.writeErrs[1:]
		return err
	}
	if addr != d.addr {
		return fault.New(fault.KindTransport, "sim write", "no device at address 0x%02X", addr)
	}
	d.frames = append(d.frames, append([]byte(nil), data...))

	if len(data) < protocol.HeaderSize || data[0] != protocol.HeaderMarker {
		return fault.New(fault.KindTransport, "sim write", "malformed frame % X", data)
	}
	n := int(binary.BigEndian.Uint16(data[2:4]))

	switch protocol.Command(data[1]) {
	case protocol.CmdReset:
		d.outbox = nil
		d.reply = nil
		d.polls = 0
	case protocol.CmdAvail:
		d.reply = d.availReply()
	case protocol.CmdRead:
		d.reply = d.readReply(n)
	case protocol.CmdWrite:
		text := string(data[protocol.HeaderSize:min(len(data), protocol.HeaderSize+n)])
		d.commands = append(d.commands, text)
		d.outbox = append(d.outbox, d.execute(text)...)
		d.polls = 0
	default:
		d.reply = nil
	}
	return nil
}

func (d *Device) Read(addr uint8, maxLen int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.readErrs) > 0 {
		err := d.readErrs[0]
		d.readErrs = d.readErrs[1:]
		return nil, err
	}
	if addr != d.addr {
		return nil, fault.New(fault.KindTransport, "sim read", "no device at address 0x%02X", addr)
	}
	out := d.reply
	d.reply = nil
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out, nil
}

func (d *Device) availReply() []byte {
	pending := len(d.outbox)
	d.polls++
	if d.silent || d.polls <= d.availDelay {
		pending = 0
	}
	out := make([]byte, protocol.AvailSize)
	binary.BigEndian.PutUint16(out, uint16(min(pending, 0xFFFF)))
	return out
}

func (d *Device) readReply(n int) []byte {
	n = min(n, len(d.outbox))
	chunk := d.outbox[:n]
	d.outbox = d.outbox[n:]

	frame := protocol.BuildFrame(protocol.CmdRead, chunk)
	if d.corrupt > 0 {
		d.corrupt--
		frame[0] = 0xEF
	}
	return frame
}

// execute runs a text command and returns the reply line.
func (d *Device) execute(text string) []byte {
	body, ok := strings.CutPrefix(text, protocol.CommandPrefix)
	if !ok {
		return reply(0, text, protocol.CodeInvalid, `""`)
	}

	var key, name, args string
	var kind int
	switch {
	case strings.HasSuffix(body, protocol.QuerySuffix):
		name = strings.TrimSuffix(body, protocol.QuerySuffix)
		key = name + protocol.QuerySuffix
	case strings.HasSuffix(body, protocol.SetSuffix):
		name, args, _ = strings.Cut(strings.TrimSuffix(body, protocol.SetSuffix), "=")
		key = name
		kind = 1
	default:
		return reply(0, body, protocol.CodeInvalid, `""`)
	}

	h, ok := d.handlers[key]
	if !ok {
		return reply(kind, key, protocol.CodeNotSup, `""`)
	}
	data, code := h(args)
	return reply(kind, key, code, data)
}

func reply(kind int, name string, code int, data string) []byte {
	return []byte(fmt.Sprintf(`{"type":%d,"name":%q,"code":%d,"data":%s}`, kind, name, code, data) + protocol.ReplyTerminator)
}

// Handlers below run with mu held.

func (d *Device) loadModel(args string) (string, int) {
	var id int
	if _, err := fmt.Sscanf(args, "%d", &id); err != nil {
		return `""`, protocol.CodeInvalid
	}
	d.model = id
	return fmt.Sprintf(`{"model":{"id":%d}}`, id), protocol.CodeOK
}

func (d *Device) configureSensor(args string) (string, int) {
	var id, enable, opt int
	if _, err := fmt.Sscanf(args, "%d,%d,%d", &id, &enable, &opt); err != nil {
		return `""`, protocol.CodeInvalid
	}
	d.sensor = id
	return fmt.Sprintf(`{"sensor":{"id":%d,"state":%d,"opt_id":%d}}`, id, enable, opt), protocol.CodeOK
}

func (d *Device) invoke(string) (string, int) {
	if len(d.invokes) == 0 {
		return `{"boxes":[],"resolution":[240,240]}`, protocol.CodeOK
	}
	data := d.invokes[0]
	d.invokes = d.invokes[1:]
	return data, protocol.CodeOK
}
