package protocol

import (
	"encoding/binary"

	"github.com/moffa90/go-visionai/fault"
)

// ParseFrame validates the header of buf and extracts the frame.
//
// Frame structure:
//
//	[HEADER][CMD][LEN_H][LEN_L][PAYLOAD...]
//
// Fails with an invalid-response error when fewer than HeaderSize bytes are
// present or the header marker does not match. The payload length is the
// declared length clamped to the bytes actually present.
func ParseFrame(buf []byte) (*Frame, error) {
	if len(buf) < HeaderSize {
		return nil, fault.New(fault.KindInvalidResponse, "parse frame",
			"frame too short: got %d bytes, minimum is %d", len(buf), HeaderSize)
	}

	if buf[0] != HeaderMarker {
		return nil, fault.New(fault.KindInvalidResponse, "parse frame",
			"invalid header: got 0x%02X, expected 0x%02X", buf[0], HeaderMarker)
	}

	declared := int(binary.BigEndian.Uint16(buf[2:4]))
	n := min(declared, len(buf)-HeaderSize)

	payload := make([]byte, n)
	copy(payload, buf[HeaderSize:HeaderSize+n])

	return &Frame{
		Command:  Command(buf[1]),
		Declared: declared,
		Payload:  payload,
	}, nil
}

// ParseFrameExpect parses buf like ParseFrame and additionally requires the
// echoed command code to equal want.
func ParseFrameExpect(buf []byte, want Command) (*Frame, error) {
	f, err := ParseFrame(buf)
	if err != nil {
		return nil, err
	}
	if f.Command != want {
		return nil, fault.New(fault.KindInvalidResponse, "parse frame",
			"command echo mismatch: got %s, expected %s", f.Command, want)
	}
	return f, nil
}

// ParseAvailable decodes the reply to an AVAIL query.
//
// Data format (2 bytes):
//
//	[COUNT_H][COUNT_L]
func ParseAvailable(data []byte) (int, error) {
	if len(data) < AvailSize {
		return 0, fault.New(fault.KindShortRead, "parse available",
			"got %d bytes, expected %d", len(data), AvailSize)
	}
	return int(binary.BigEndian.Uint16(data[:AvailSize])), nil
}
