// Package btp implements the segmentation header of the Bluetooth Transport
// Protocol, which carries Matter messages larger than the negotiated ATT MTU
// as a run of characteristic writes.
package btp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Header flags.
const (
	FlagBeginning  uint8 = 0x01
	FlagContinuing uint8 = 0x02
	FlagEnding     uint8 = 0x04
	FlagAck        uint8 = 0x08
	FlagManagement uint8 = 0x20
	FlagHandshake  uint8 = 0x40
)

// OpcodeHandshake is the management opcode of handshake segments.
const OpcodeHandshake uint8 = 0x6C

// HandshakeVersionsSize is the size of the supported-versions block.
const HandshakeVersionsSize = 4

var (
	// ErrMalformedSegment is returned when a segment is shorter than its
	// flags require.
	ErrMalformedSegment = errors.New("btp: malformed segment")

	ErrSequenceMismatch  = errors.New("btp: sequence number mismatch")
	ErrUnexpectedSegment = errors.New("btp: unexpected segment")
	ErrLengthMismatch    = errors.New("btp: message length mismatch")
)

// Segment is one BTP characteristic write or indication.
type Segment struct {
	Beginning  bool
	Continuing bool
	Ending     bool
	Ack        bool
	Management bool
	Handshake  bool

	// Opcode and Version are present with Management. Only the low 4 bits
	// of Version are used.
	Opcode  uint8
	Version uint8

	// AckNumber is present with Ack.
	AckNumber uint8

	// Data segment fields. MessageLength is on the wire only for a
	// Beginning segment.
	Sequence      uint8
	MessageLength uint16
	Payload       []byte

	// Handshake fields, in place of the data segment fields.
	Versions   [HandshakeVersionsSize]byte
	ATTMTU     uint16
	WindowSize uint8
}

// Flags returns the header flags byte.
func (s *Segment) Flags() uint8 {
	var f uint8
	if s.Beginning {
		f |= FlagBeginning
	}
	if s.Continuing {
		f |= FlagContinuing
	}
	if s.Ending {
		f |= FlagEnding
	}
	if s.Ack {
		f |= FlagAck
	}
	if s.Management {
		f |= FlagManagement
	}
	if s.Handshake {
		f |= FlagHandshake
	}
	return f
}

// HeaderSize returns the encoded size without the payload.
func (s *Segment) HeaderSize() int {
	size := 1
	if s.Management {
		size += 2
	}
	if s.Ack {
		size++
	}
	if s.Handshake {
		return size + HandshakeVersionsSize + 3
	}
	size++
	if s.Beginning {
		size += 2
	}
	return size
}

// Encode serializes the segment.
func (s *Segment) Encode() []byte {
	size := s.HeaderSize()
	if !s.Handshake {
		size += len(s.Payload)
	}
	buf := make([]byte, size)

	buf[0] = s.Flags()
	off := 1
	if s.Management {
		buf[off] = s.Opcode
		buf[off+1] = s.Version & 0x0F
		off += 2
	}
	if s.Ack {
		buf[off] = s.AckNumber
		off++
	}

	if s.Handshake {
		off += copy(buf[off:], s.Versions[:])
		binary.LittleEndian.PutUint16(buf[off:], s.ATTMTU)
		buf[off+2] = s.WindowSize
		return buf
	}

	buf[off] = s.Sequence
	off++
	if s.Beginning {
		binary.LittleEndian.PutUint16(buf[off:], s.MessageLength)
		off += 2
	}
	copy(buf[off:], s.Payload)
	return buf
}

// Decode parses a segment. The payload aliases data.
func Decode(data []byte) (*Segment, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedSegment)
	}
	f := data[0]
	s := &Segment{
		Beginning:  f&FlagBeginning != 0,
		Continuing: f&FlagContinuing != 0,
		Ending:     f&FlagEnding != 0,
		Ack:        f&FlagAck != 0,
		Management: f&FlagManagement != 0,
		Handshake:  f&FlagHandshake != 0,
	}
	if len(data) < s.HeaderSize() {
		return nil, fmt.Errorf("%w: %d bytes, flags %#02x require %d", ErrMalformedSegment, len(data), f, s.HeaderSize())
	}

	off := 1
	if s.Management {
		s.Opcode = data[off]
		s.Version = data[off+1] & 0x0F
		off += 2
	}
	if s.Ack {
		s.AckNumber = data[off]
		off++
	}

	if s.Handshake {
		off += copy(s.Versions[:], data[off:])
		s.ATTMTU = binary.LittleEndian.Uint16(data[off:])
		s.WindowSize = data[off+2]
		return s, nil
	}

	s.Sequence = data[off]
	off++
	if s.Beginning {
		s.MessageLength = binary.LittleEndian.Uint16(data[off:])
		off += 2
	}
	s.Payload = data[off:]
	return s, nil
}
