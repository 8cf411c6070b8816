package message

import "fmt"

// Frame is a decoded Matter message.
//
// Protocol and Payload are nil when the frame was decoded header-only; Raw
// then holds everything after the message header (ciphertext and MIC for a
// secured session).
type Frame struct {
	Header   MessageHeader
	Protocol *ProtocolHeader
	Payload  []byte
	Raw      []byte
}

// Encode serializes the frame in the clear. A nil Protocol encodes the
// message header followed by Payload verbatim.
func (f *Frame) Encode() []byte {
	if f.Protocol == nil {
		buf := make([]byte, f.Header.Size()+len(f.Payload))
		offset := f.Header.EncodeTo(buf)
		copy(buf[offset:], f.Payload)
		return buf
	}

	buf := make([]byte, f.Header.Size()+f.Protocol.Size()+len(f.Payload))
	offset := f.Header.EncodeTo(buf)
	offset += f.Protocol.EncodeTo(buf[offset:])
	copy(buf[offset:], f.Payload)
	return buf
}

// DecodeFrame parses a wire frame. With decodePayload false only the message
// header is parsed, which is enough to filter by session ID before paying
// for decryption.
func DecodeFrame(data []byte, decodePayload bool) (*Frame, error) {
	f := &Frame{}
	n, err := f.Header.Decode(data)
	if err != nil {
		return nil, err
	}
	f.Raw = data[n:]
	if !decodePayload {
		return f, nil
	}

	proto, payload, err := DecodePayload(f.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	f.Protocol = proto
	f.Payload = payload
	return f, nil
}

// EncodePayload builds an exchange payload: protocol header then app.
func EncodePayload(p *ProtocolHeader, app []byte) []byte {
	buf := make([]byte, p.Size()+len(app))
	offset := p.EncodeTo(buf)
	copy(buf[offset:], app)
	return buf
}

// DecodePayload splits an exchange payload into its protocol header and the
// application payload. The returned payload is a copy.
func DecodePayload(data []byte) (*ProtocolHeader, []byte, error) {
	p := &ProtocolHeader{}
	n, err := p.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	payload := make([]byte, len(data)-n)
	copy(payload, data[n:])
	return p, payload, nil
}
