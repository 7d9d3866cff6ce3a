// Package protocol implements the framing used to talk to the vision sensor.
//
// This package provides functions to build command frames, parse response
// frames and format the text commands carried inside WRITE frames.
//
// # Protocol Overview
//
// Every exchange uses the same 4-byte header:
//
//	Frame: [HEADER][CMD][LEN_H][LEN_L][PAYLOAD...]
//
// Where:
//   - HEADER = transport marker (0x10)
//   - CMD = READ (0x01), WRITE (0x02), AVAIL (0x03) or RESET (0x06)
//   - LEN = 16-bit payload length (big-endian)
//   - PAYLOAD = at most MaxFrameLen bytes
//
// AVAIL replies are a bare 2-byte big-endian count of pending bytes. READ
// requests carry the wanted byte count (at most MaxReadLen) in the length
// field and are answered by a READ frame holding the data.
//
// # Command Builders
//
// Use the Build* functions to create frames:
//
//	frame := protocol.BuildAvailQuery()
//	frame, err := protocol.BuildReadRequest(128)
//	frame, err := protocol.BuildWriteCmd(protocol.InvokeCmd(protocol.DefaultInvokeOptions()))
//
// # Text Commands
//
// WRITE payloads follow the AT convention:
//
//	AT+<NAME>=<args>!   set / action
//	AT+<NAME>?          query
//
// # Response Parsers
//
// Use ParseFrameExpect to validate a READ reply:
//
//	f, err := protocol.ParseFrameExpect(buf, protocol.CmdRead)
//	if f.Truncated() {
//	    // fewer bytes arrived than the header announced
//	}
//
// # Error Handling
//
// Errors are *fault.Error values (fault.KindInvalidResponse,
// fault.KindShortRead, fault.KindInvalidArgument). Non-zero result codes in
// text replies are described by DeviceError:
//
//	err := &protocol.DeviceError{Operation: "load model", Code: protocol.CodeInvalid}
//	// err.Error() returns: "load model failed: invalid argument (code 5)"
package protocol
