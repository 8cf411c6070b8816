// Package message implements the two framing layers of a Matter message:
// the outer wire frame (message header) and the inner exchange payload
// (protocol header plus application payload).
//
// Both codecs are pure transforms. Header length is always derived from the
// flag bits, never stored, so a header can be peeked without decoding the
// payload behind it.
package message

// SessionType identifies the session kind carried in the Security Flags
// (bits 0-1).
type SessionType uint8

const (
	// SessionTypeUnicast indicates a unicast session. Session ID 0 with this
	// type is the unsecured session.
	SessionTypeUnicast SessionType = 0

	// SessionTypeGroup indicates a group session.
	SessionTypeGroup SessionType = 1
)

// String returns a human-readable name for the session type.
func (s SessionType) String() string {
	switch s {
	case SessionTypeUnicast:
		return "Unicast"
	case SessionTypeGroup:
		return "Group"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the session type is a defined value.
func (s SessionType) IsValid() bool {
	return s <= SessionTypeGroup
}

// DestinationType is the DSIZ field of the Message Flags (bits 0-1). It
// selects between no destination, a 64-bit node ID and a 16-bit group ID.
type DestinationType uint8

const (
	DestinationNone    DestinationType = 0
	DestinationNodeID  DestinationType = 1
	DestinationGroupID DestinationType = 2
)

// String returns a human-readable name for the destination type.
func (d DestinationType) String() string {
	switch d {
	case DestinationNone:
		return "None"
	case DestinationNodeID:
		return "NodeID"
	case DestinationGroupID:
		return "GroupID"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the destination type is a defined value.
func (d DestinationType) IsValid() bool {
	return d <= DestinationGroupID
}

// Size returns the size in bytes of the destination field for this type.
func (d DestinationType) Size() int {
	switch d {
	case DestinationNodeID:
		return NodeIDSize
	case DestinationGroupID:
		return GroupIDSize
	default:
		return 0
	}
}

// ProtocolID identifies the protocol that defines the message opcode.
type ProtocolID uint16

const (
	// ProtocolSecureChannel carries MRP acknowledgements and status reports.
	ProtocolSecureChannel ProtocolID = 0x0000

	// ProtocolInteractionModel carries read/write/invoke/subscribe traffic.
	ProtocolInteractionModel ProtocolID = 0x0001

	ProtocolBDX                       ProtocolID = 0x0002
	ProtocolUserDirectedCommissioning ProtocolID = 0x0003
	ProtocolForTesting                ProtocolID = 0x0004
)

// String returns a human-readable name for the protocol ID.
func (p ProtocolID) String() string {
	switch p {
	case ProtocolSecureChannel:
		return "SecureChannel"
	case ProtocolInteractionModel:
		return "InteractionModel"
	case ProtocolBDX:
		return "BDX"
	case ProtocolUserDirectedCommissioning:
		return "UDC"
	case ProtocolForTesting:
		return "Testing"
	default:
		return "Unknown"
	}
}

// Secure Channel opcodes the exchange layer interprets itself.
const (
	// OpcodeStandaloneAck is an MRP acknowledgement with no payload.
	OpcodeStandaloneAck uint8 = 0x10

	// OpcodeStatusReport is a peer-reported protocol outcome.
	OpcodeStatusReport uint8 = 0x40
)

// VendorIDMatter is the standard Matter vendor ID.
const VendorIDMatter uint16 = 0x0000
