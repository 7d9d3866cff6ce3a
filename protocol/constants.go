package protocol

// ProtocolVersion is the sensor transport protocol revision implemented by this library.
const ProtocolVersion = "2.0"

// Frame structure constants.
//
//	[HEADER][CMD][LEN_H][LEN_L][PAYLOAD...]
const (
	// HeaderMarker is the transport feature byte that opens every frame (0x10)
	HeaderMarker = 0x10

	// HeaderSize is the frame header size in bytes:
	// MARKER(1) + CMD(1) + LEN(2)
	HeaderSize = 4

	// MaxFrameLen is the negotiated maximum payload size of one frame
	MaxFrameLen = 512

	// MaxReadLen is the largest number of bytes a single READ may request
	MaxReadLen = 256

	// AvailSize is the size of the reply to an AVAIL query
	AvailSize = 2
)

// DefaultAddress is the default register address of the sensor on the bus.
const DefaultAddress = 0x62

// Command codes.
const (
	// CmdRead reads pending response bytes from the device buffer
	CmdRead Command = 0x01

	// CmdWrite writes a text command to the device
	CmdWrite Command = 0x02

	// CmdAvail queries the number of pending response bytes
	CmdAvail Command = 0x03

	// CmdReset clears the device-side buffers
	CmdReset Command = 0x06
)

// Text command names. Sent inside WRITE frames as AT+<NAME>=<args>! or AT+<NAME>?.
const (
	// NameID queries the device identifier
	NameID = "ID"

	// NameName queries the device name
	NameName = "NAME"

	// NameStatus queries the device status
	NameStatus = "STAT"

	// NameVersion queries firmware and hardware versions
	NameVersion = "VER"

	// NameInfo queries the device info blob
	NameInfo = "INFO"

	// NameInvoke runs the loaded model
	NameInvoke = "INVOKE"

	// NameModels lists the models stored on the device
	NameModels = "MODELS"

	// NameModel selects a model by ID
	NameModel = "MODEL"

	// NameSensor configures a sensor by ID
	NameSensor = "SENSOR"
)

// Text command syntax.
const (
	// CommandPrefix opens every text command
	CommandPrefix = "AT+"

	// SetSuffix terminates a command carrying arguments
	SetSuffix = "!"

	// QuerySuffix terminates a query command
	QuerySuffix = "?"

	// ReplyTerminator ends every reply line sent by the device
	ReplyTerminator = "\r\n"
)

// ID ranges accepted by the configuration commands.
const (
	MinModelID  = 0
	MaxModelID  = 255
	MinSensorID = 0
	MaxSensorID = 7
)
