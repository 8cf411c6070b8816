package tlv

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"
)

// Reader decodes TLV elements from a byte slice. Call Next to position on
// an element, then read its value with the accessor matching Type.
type Reader struct {
	data  []byte
	pos   int
	depth int

	hasElement bool
	elemType   ElementType
	tag        Tag

	// value is the current element's value bytes; for strings the payload
	// after the length prefix.
	value []byte
}

// NewReader creates a Reader over data. The slice is not copied.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Next advances to the next element. Returns io.EOF at the end of input.
// The value of a container is not consumed; use EnterContainer or Skip.
func (r *Reader) Next() error {
	if r.pos >= len(r.data) {
		r.hasElement = false
		return io.EOF
	}

	ctrl := r.data[r.pos]
	elemType := ElementType(ctrl & elementTypeMask)
	if elemType > ElementTypeEnd {
		return ErrInvalidElementType
	}
	tagCtrl := TagControl(ctrl >> tagControlShift)
	pos := r.pos + 1

	tagLen := tagCtrl.Size()
	if pos+tagLen > len(r.data) {
		return ErrUnexpectedEOF
	}
	tag := Tag{control: tagCtrl}
	switch tagCtrl {
	case TagControlContext:
		tag.number = uint32(r.data[pos])
	case TagControlCommonProfile2, TagControlImplicitProfile2:
		tag.number = uint32(binary.LittleEndian.Uint16(r.data[pos:]))
	case TagControlCommonProfile4, TagControlImplicitProfile4:
		tag.number = binary.LittleEndian.Uint32(r.data[pos:])
	case TagControlFullyQualified6:
		tag.number = uint32(binary.LittleEndian.Uint16(r.data[pos+4:]))
	case TagControlFullyQualified8:
		tag.number = binary.LittleEndian.Uint32(r.data[pos+4:])
	}
	pos += tagLen

	size := elemType.valueSize()
	if pos+size > len(r.data) {
		return ErrUnexpectedEOF
	}
	var value []byte
	if elemType.IsUTF8String() || elemType.IsBytes() {
		var length [8]byte
		copy(length[:], r.data[pos:pos+size])
		n := binary.LittleEndian.Uint64(length[:])
		pos += size
		if n > uint64(len(r.data)-pos) {
			return ErrUnexpectedEOF
		}
		value = r.data[pos : pos+int(n)]
		pos += int(n)
	} else {
		value = r.data[pos : pos+size]
		pos += size
	}

	r.pos = pos
	r.elemType = elemType
	r.tag = tag
	r.value = value
	r.hasElement = true
	return nil
}

func (r *Reader) Type() ElementType { return r.elemType }
func (r *Reader) Tag() Tag          { return r.tag }

// IsEndOfContainer reports whether the current element closes a container.
func (r *Reader) IsEndOfContainer() bool {
	return r.hasElement && r.elemType == ElementTypeEnd
}

// Int returns a signed integer value. Unsigned values that fit are accepted.
func (r *Reader) Int() (int64, error) {
	if !r.hasElement {
		return 0, ErrNoElement
	}
	switch {
	case r.elemType.IsSignedInt():
		switch len(r.value) {
		case 1:
			return int64(int8(r.value[0])), nil
		case 2:
			return int64(int16(binary.LittleEndian.Uint16(r.value))), nil
		case 4:
			return int64(int32(binary.LittleEndian.Uint32(r.value))), nil
		default:
			return int64(binary.LittleEndian.Uint64(r.value)), nil
		}
	case r.elemType.IsUnsignedInt():
		v, err := r.Uint()
		if err != nil {
			return 0, err
		}
		if v > math.MaxInt64 {
			return 0, ErrTypeMismatch
		}
		return int64(v), nil
	}
	return 0, ErrTypeMismatch
}

// Uint returns an unsigned integer value.
func (r *Reader) Uint() (uint64, error) {
	if !r.hasElement {
		return 0, ErrNoElement
	}
	if !r.elemType.IsUnsignedInt() {
		return 0, ErrTypeMismatch
	}
	var v [8]byte
	copy(v[:], r.value)
	return binary.LittleEndian.Uint64(v[:]), nil
}

func (r *Reader) Bool() (bool, error) {
	if !r.hasElement {
		return false, ErrNoElement
	}
	if !r.elemType.IsBool() {
		return false, ErrTypeMismatch
	}
	return r.elemType == ElementTypeTrue, nil
}

func (r *Reader) Float() (float64, error) {
	if !r.hasElement {
		return 0, ErrNoElement
	}
	switch r.elemType {
	case ElementTypeFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(r.value))), nil
	case ElementTypeFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(r.value)), nil
	}
	return 0, ErrTypeMismatch
}

func (r *Reader) String() (string, error) {
	if !r.hasElement {
		return "", ErrNoElement
	}
	if !r.elemType.IsUTF8String() {
		return "", ErrTypeMismatch
	}
	if !utf8.Valid(r.value) {
		return "", ErrInvalidUTF8
	}
	return string(r.value), nil
}

// Bytes returns a copy of an octet string value.
func (r *Reader) Bytes() ([]byte, error) {
	if !r.hasElement {
		return nil, ErrNoElement
	}
	if !r.elemType.IsBytes() {
		return nil, ErrTypeMismatch
	}
	out := make([]byte, len(r.value))
	copy(out, r.value)
	return out, nil
}

// EnterContainer descends into the current container element.
func (r *Reader) EnterContainer() error {
	if !r.hasElement {
		return ErrNoElement
	}
	if !r.elemType.IsContainer() {
		return ErrTypeMismatch
	}
	r.depth++
	r.hasElement = false
	return nil
}

// ExitContainer discards the rest of the current container, including its
// end marker, and returns to the parent level.
func (r *Reader) ExitContainer() error {
	if r.depth == 0 {
		return ErrNotInContainer
	}
	if !r.IsEndOfContainer() {
		nested := 0
		for {
			if err := r.Next(); err != nil {
				if err == io.EOF {
					return ErrUnexpectedEOF
				}
				return err
			}
			if r.elemType.IsContainer() {
				nested++
			} else if r.elemType == ElementTypeEnd {
				if nested == 0 {
					break
				}
				nested--
			}
		}
	}
	r.depth--
	r.hasElement = false
	return nil
}

// Skip moves past the current element. Containers are skipped whole.
func (r *Reader) Skip() error {
	if !r.hasElement {
		return ErrNoElement
	}
	if r.elemType.IsContainer() {
		if err := r.EnterContainer(); err != nil {
			return err
		}
		return r.ExitContainer()
	}
	r.hasElement = false
	return nil
}

// ContainerDepth returns how many containers have been entered.
func (r *Reader) ContainerDepth() int {
	return r.depth
}
