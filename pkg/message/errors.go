package message

import "errors"

// Codec errors. Decoders wrap these with the offending detail, so match
// them with errors.Is.
var (
	// ErrMalformedFrame is returned when a buffer is shorter than the header
	// its own flags describe, or the flags hold reserved values.
	ErrMalformedFrame = errors.New("message: malformed frame")

	// ErrMalformedPayload is returned when an exchange payload is truncated.
	ErrMalformedPayload = errors.New("message: malformed exchange payload")
)

// Wire format constants.
const (
	// MessageVersion is the only supported message format version.
	MessageVersion uint8 = 0

	// MinHeaderSize is Message Flags (1) + Session ID (2) + Security Flags (1)
	// + Message Counter (4).
	MinHeaderSize = 8

	// MinProtocolHeaderSize is Exchange Flags (1) + Opcode (1) + Exchange ID (2)
	// + Protocol ID (2).
	MinProtocolHeaderSize = 6

	// MaxMessageSize is the IPv6 minimum MTU, the largest unsegmented frame.
	MaxMessageSize = 1280

	NodeIDSize  = 8
	GroupIDSize = 2
)

// Message Flags.
const (
	flagDSIZMask      uint8 = 0x03
	flagSourcePresent uint8 = 0x04
	flagVersionShift        = 4
	flagVersionMask   uint8 = 0x0F
)

// Security Flags.
const (
	secFlagSessionTypeMask uint8 = 0x03
	secFlagExtensions      uint8 = 0x20
	secFlagControl         uint8 = 0x40
	secFlagPrivacy         uint8 = 0x80
)

// Exchange Flags.
const (
	exchFlagInitiator         uint8 = 0x01
	exchFlagAcknowledgement   uint8 = 0x02
	exchFlagReliability       uint8 = 0x04
	exchFlagSecuredExtensions uint8 = 0x08
	exchFlagVendor            uint8 = 0x10
)
