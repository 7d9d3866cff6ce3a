package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/moffa90/go-visionai/fault"
)

// BuildFrame constructs a frame for cmd carrying payload.
//
// Frame structure:
//
//	[HEADER][CMD][LEN_H][LEN_L][PAYLOAD...]
//
// Payload bytes beyond MaxFrameLen are dropped; the caller is responsible
// for keeping payloads within bounds.
func BuildFrame(cmd Command, payload []byte) []byte {
	n := min(len(payload), MaxFrameLen)

	frame := make([]byte, HeaderSize, HeaderSize+n)
	frame[0] = HeaderMarker
	frame[1] = byte(cmd)
	binary.BigEndian.PutUint16(frame[2:4], uint16(n))

	return append(frame, payload[:n]...)
}

// BuildReadRequest constructs a READ frame asking for n pending bytes.
// The requested count travels in the length field; the frame has no payload.
//
// Frame structure:
//
//	[HEADER][CMD_READ][N_H][N_L]
func BuildReadRequest(n int) ([]byte, error) {
	if n <= 0 || n > MaxReadLen {
		return nil, fault.New(fault.KindInvalidArgument, "build read request",
			"read length %d outside 1-%d", n, MaxReadLen)
	}

	frame := make([]byte, HeaderSize)
	frame[0] = HeaderMarker
	frame[1] = byte(CmdRead)
	binary.BigEndian.PutUint16(frame[2:4], uint16(n))

	return frame, nil
}

// BuildAvailQuery constructs an AVAIL frame.
//
//	[HEADER][CMD_AVAIL][0x00][0x00]
func BuildAvailQuery() []byte {
	return BuildFrame(CmdAvail, nil)
}

// BuildResetCmd constructs a RESET frame, clearing the device-side buffers.
//
//	[HEADER][CMD_RESET][0x00][0x00]
func BuildResetCmd() []byte {
	return BuildFrame(CmdReset, nil)
}

// BuildWriteCmd constructs a WRITE frame carrying an ASCII text command.
func BuildWriteCmd(text string) ([]byte, error) {
	if text == "" {
		return nil, fault.New(fault.KindInvalidArgument, "build write command", "command cannot be empty")
	}
	if len(text) > MaxFrameLen {
		return nil, fault.New(fault.KindBufferOverflow, "build write command",
			"command length %d exceeds maximum %d bytes", len(text), MaxFrameLen)
	}
	return BuildFrame(CmdWrite, []byte(text)), nil
}

// BuildCommand formats a text command with arguments.
//
// Example:
//
//	protocol.BuildCommand("MODEL", 3) // "AT+MODEL=3!"
func BuildCommand(name string, args ...any) string {
	var b strings.Builder
	b.WriteString(CommandPrefix)
	b.WriteString(name)
	if len(args) > 0 {
		b.WriteByte('=')
		for i, a := range args {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(formatArg(a))
		}
	}
	b.WriteString(SetSuffix)
	return b.String()
}

// BuildQuery formats a text query.
//
// Example:
//
//	protocol.BuildQuery("ID") // "AT+ID?"
func BuildQuery(name string) string {
	return CommandPrefix + name + QuerySuffix
}

func formatArg(a any) string {
	switch v := a.(type) {
	case int:
		return strconv.Itoa(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// StatusQuery returns the status query text command.
func StatusQuery() string { return BuildQuery(NameStatus) }

// VersionQuery returns the version query text command.
func VersionQuery() string { return BuildQuery(NameVersion) }

// IDQuery returns the device ID query text command.
func IDQuery() string { return BuildQuery(NameID) }

// NameQuery returns the device name query text command.
func NameQuery() string { return BuildQuery(NameName) }

// InfoQuery returns the device info query text command.
func InfoQuery() string { return BuildQuery(NameInfo) }

// ModelsQuery returns the list-models text command.
func ModelsQuery() string { return BuildQuery(NameModels) }

// InvokeCmd returns the invoke-inference text command.
//
//	AT+INVOKE=<iterations>,<differed>,<result_only>!
func InvokeCmd(opts InvokeOptions) string {
	iterations := opts.Iterations
	if iterations < 1 {
		iterations = 1
	}
	return BuildCommand(NameInvoke, iterations, opts.Differed, opts.ResultOnly)
}

// LoadModelCmd returns the text command that selects model id.
func LoadModelCmd(id int) (string, error) {
	if id < MinModelID || id > MaxModelID {
		return "", fault.New(fault.KindInvalidArgument, "load model",
			"model id %d outside %d-%d", id, MinModelID, MaxModelID)
	}
	return BuildCommand(NameModel, id), nil
}

// ConfigureSensorCmd returns the text command that enables sensor id.
//
//	AT+SENSOR=<id>,<enable>,<opt>!
func ConfigureSensorCmd(id int, enable bool, opt int) (string, error) {
	if id < MinSensorID || id > MaxSensorID {
		return "", fault.New(fault.KindInvalidArgument, "configure sensor",
			"sensor id %d outside %d-%d", id, MinSensorID, MaxSensorID)
	}
	if opt < 0 {
		return "", fault.New(fault.KindInvalidArgument, "configure sensor", "option %d is negative", opt)
	}
	return BuildCommand(NameSensor, id, enable, opt), nil
}
