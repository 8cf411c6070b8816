package message

import (
	"encoding/binary"
	"fmt"
)

// MessageHeader is the outer header of a wire frame. All multi-byte fields
// are little-endian on the wire.
type MessageHeader struct {
	SessionID      uint16
	MessageCounter uint32
	SessionType    SessionType

	// SourcePresent selects the S flag; SourceNodeID is encoded only when set.
	SourcePresent bool
	SourceNodeID  uint64

	// DestinationType selects which of the two destination fields is on the
	// wire. They are mutually exclusive.
	DestinationType    DestinationType
	DestinationNodeID  uint64
	DestinationGroupID uint16

	Privacy    bool
	Control    bool
	Extensions bool
}

// Size returns the encoded size of the header in bytes.
func (h *MessageHeader) Size() int {
	size := MinHeaderSize
	if h.SourcePresent {
		size += NodeIDSize
	}
	return size + h.DestinationType.Size()
}

// Encode serializes the header. The result doubles as AEAD additional data.
func (h *MessageHeader) Encode() []byte {
	buf := make([]byte, h.Size())
	h.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the header into buf, which must be at least Size()
// bytes. Returns the number of bytes written.
func (h *MessageHeader) EncodeTo(buf []byte) int {
	buf[0] = h.messageFlags()
	binary.LittleEndian.PutUint16(buf[1:], h.SessionID)
	buf[3] = h.SecurityFlags()
	binary.LittleEndian.PutUint32(buf[4:], h.MessageCounter)
	offset := MinHeaderSize

	if h.SourcePresent {
		binary.LittleEndian.PutUint64(buf[offset:], h.SourceNodeID)
		offset += NodeIDSize
	}

	switch h.DestinationType {
	case DestinationNodeID:
		binary.LittleEndian.PutUint64(buf[offset:], h.DestinationNodeID)
		offset += NodeIDSize
	case DestinationGroupID:
		binary.LittleEndian.PutUint16(buf[offset:], h.DestinationGroupID)
		offset += GroupIDSize
	}

	return offset
}

func (h *MessageHeader) messageFlags() uint8 {
	flags := MessageVersion << flagVersionShift
	if h.SourcePresent {
		flags |= flagSourcePresent
	}
	return flags | uint8(h.DestinationType)&flagDSIZMask
}

// SecurityFlags returns the Security Flags byte. It is also the first byte
// of the AEAD nonce.
func (h *MessageHeader) SecurityFlags() uint8 {
	flags := uint8(h.SessionType) & secFlagSessionTypeMask
	if h.Extensions {
		flags |= secFlagExtensions
	}
	if h.Control {
		flags |= secFlagControl
	}
	if h.Privacy {
		flags |= secFlagPrivacy
	}
	return flags
}

// Decode parses a header from data and returns the number of bytes consumed.
// The flags byte is read first and alone decides which optional fields are
// consumed.
func (h *MessageHeader) Decode(data []byte) (int, error) {
	if len(data) < MinHeaderSize {
		return 0, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedFrame, len(data), MinHeaderSize)
	}

	msgFlags := data[0]
	if version := (msgFlags >> flagVersionShift) & flagVersionMask; version != MessageVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrMalformedFrame, version)
	}
	h.SourcePresent = msgFlags&flagSourcePresent != 0
	h.DestinationType = DestinationType(msgFlags & flagDSIZMask)
	if !h.DestinationType.IsValid() {
		return 0, fmt.Errorf("%w: reserved DSIZ %d", ErrMalformedFrame, h.DestinationType)
	}

	h.SessionID = binary.LittleEndian.Uint16(data[1:])

	secFlags := data[3]
	h.SessionType = SessionType(secFlags & secFlagSessionTypeMask)
	if !h.SessionType.IsValid() {
		return 0, fmt.Errorf("%w: reserved session type %d", ErrMalformedFrame, h.SessionType)
	}
	h.Extensions = secFlags&secFlagExtensions != 0
	h.Control = secFlags&secFlagControl != 0
	h.Privacy = secFlags&secFlagPrivacy != 0

	h.MessageCounter = binary.LittleEndian.Uint32(data[4:])

	if need := h.Size(); len(data) < need {
		return 0, fmt.Errorf("%w: %d bytes, flags require %d", ErrMalformedFrame, len(data), need)
	}
	offset := MinHeaderSize

	h.SourceNodeID = 0
	if h.SourcePresent {
		h.SourceNodeID = binary.LittleEndian.Uint64(data[offset:])
		offset += NodeIDSize
	}

	h.DestinationNodeID = 0
	h.DestinationGroupID = 0
	switch h.DestinationType {
	case DestinationNodeID:
		h.DestinationNodeID = binary.LittleEndian.Uint64(data[offset:])
		offset += NodeIDSize
	case DestinationGroupID:
		h.DestinationGroupID = binary.LittleEndian.Uint16(data[offset:])
		offset += GroupIDSize
	}

	return offset, nil
}

// IsSecure returns false only for the unsecured session (unicast, ID 0).
func (h *MessageHeader) IsSecure() bool {
	return !(h.SessionType == SessionTypeUnicast && h.SessionID == 0)
}
