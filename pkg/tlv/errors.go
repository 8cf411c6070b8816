package tlv

import "errors"

var (
	// ErrUnexpectedEOF is returned when the input ends inside an element.
	ErrUnexpectedEOF = errors.New("tlv: unexpected end of input")

	ErrInvalidElementType = errors.New("tlv: invalid element type")

	// ErrTypeMismatch is returned when a value is read as the wrong type.
	ErrTypeMismatch = errors.New("tlv: type mismatch")

	ErrNotInContainer = errors.New("tlv: not in container")

	// ErrNoElement is returned when a value is read before Next.
	ErrNoElement = errors.New("tlv: no current element")

	ErrInvalidUTF8 = errors.New("tlv: invalid UTF-8 string")
)
