package message

import (
	"encoding/binary"
	"fmt"
)

// ProtocolHeader is the exchange header at the start of the message payload.
// For secured sessions it travels inside the ciphertext.
type ProtocolHeader struct {
	ProtocolID     ProtocolID
	ProtocolOpcode uint8
	ExchangeID     uint16

	// ProtocolVendorID is on the wire only when VendorPresent is set.
	ProtocolVendorID uint16
	VendorPresent    bool

	// AckedMessageCounter is on the wire only when Acknowledgement is set.
	AckedMessageCounter uint32

	Initiator       bool
	Acknowledgement bool
	Reliability     bool

	// SecuredExtensions is honoured on decode only. The extension blob is
	// skipped and the flag is never emitted.
	SecuredExtensions bool
}

// Size returns the encoded size of the protocol header in bytes.
func (p *ProtocolHeader) Size() int {
	size := MinProtocolHeaderSize
	if p.VendorPresent {
		size += 2
	}
	if p.Acknowledgement {
		size += 4
	}
	return size
}

// Encode serializes the protocol header.
func (p *ProtocolHeader) Encode() []byte {
	buf := make([]byte, p.Size())
	p.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the protocol header into buf, which must be at least
// Size() bytes. Returns the number of bytes written.
func (p *ProtocolHeader) EncodeTo(buf []byte) int {
	buf[0] = p.exchangeFlags()
	buf[1] = p.ProtocolOpcode
	binary.LittleEndian.PutUint16(buf[2:], p.ExchangeID)
	offset := 4

	if p.VendorPresent {
		binary.LittleEndian.PutUint16(buf[offset:], p.ProtocolVendorID)
		offset += 2
	}

	binary.LittleEndian.PutUint16(buf[offset:], uint16(p.ProtocolID))
	offset += 2

	if p.Acknowledgement {
		binary.LittleEndian.PutUint32(buf[offset:], p.AckedMessageCounter)
		offset += 4
	}

	return offset
}

func (p *ProtocolHeader) exchangeFlags() uint8 {
	var flags uint8
	if p.Initiator {
		flags |= exchFlagInitiator
	}
	if p.Acknowledgement {
		flags |= exchFlagAcknowledgement
	}
	if p.Reliability {
		flags |= exchFlagReliability
	}
	if p.VendorPresent {
		flags |= exchFlagVendor
	}
	return flags
}

// Decode parses a protocol header from data and returns the number of bytes
// consumed, including any secured extensions that were skipped.
func (p *ProtocolHeader) Decode(data []byte) (int, error) {
	if len(data) < MinProtocolHeaderSize {
		return 0, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedPayload, len(data), MinProtocolHeaderSize)
	}

	flags := data[0]
	p.Initiator = flags&exchFlagInitiator != 0
	p.Acknowledgement = flags&exchFlagAcknowledgement != 0
	p.Reliability = flags&exchFlagReliability != 0
	p.SecuredExtensions = flags&exchFlagSecuredExtensions != 0
	p.VendorPresent = flags&exchFlagVendor != 0

	if need := p.Size(); len(data) < need {
		return 0, fmt.Errorf("%w: %d bytes, flags require %d", ErrMalformedPayload, len(data), need)
	}

	p.ProtocolOpcode = data[1]
	p.ExchangeID = binary.LittleEndian.Uint16(data[2:])
	offset := 4

	p.ProtocolVendorID = VendorIDMatter
	if p.VendorPresent {
		p.ProtocolVendorID = binary.LittleEndian.Uint16(data[offset:])
		offset += 2
	}

	p.ProtocolID = ProtocolID(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2

	p.AckedMessageCounter = 0
	if p.Acknowledgement {
		p.AckedMessageCounter = binary.LittleEndian.Uint32(data[offset:])
		offset += 4
	}

	if p.SecuredExtensions {
		if len(data) < offset+2 {
			return 0, fmt.Errorf("%w: missing secured extensions length", ErrMalformedPayload)
		}
		extLen := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if len(data) < offset+extLen {
			return 0, fmt.Errorf("%w: secured extensions need %d bytes, have %d",
				ErrMalformedPayload, extLen, len(data)-offset)
		}
		offset += extLen
	}

	return offset, nil
}

// IsStandaloneAck reports whether p is an MRP standalone acknowledgement.
func IsStandaloneAck(p *ProtocolHeader) bool {
	return p != nil && p.ProtocolID == ProtocolSecureChannel && p.ProtocolOpcode == OpcodeStandaloneAck
}

// IsErrorReport reports whether p is a secure channel status report.
func IsErrorReport(p *ProtocolHeader) bool {
	return p != nil && p.ProtocolID == ProtocolSecureChannel && p.ProtocolOpcode == OpcodeStatusReport
}
