package tlv

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// Writer encodes TLV elements to an io.Writer.
type Writer struct {
	w     io.Writer
	depth int
	buf   [10]byte
}

// NewWriter creates a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// head fills the control octet and tag into w.buf and returns its length.
func (w *Writer) head(e ElementType, tag Tag) int {
	w.buf[0] = controlOctet(e, tag.control)
	if tag.control == TagControlContext {
		w.buf[1] = byte(tag.number)
		return 2
	}
	return 1
}

func (w *Writer) writeElement(e ElementType, tag Tag, value []byte) error {
	n := w.head(e, tag)
	if _, err := w.w.Write(w.buf[:n]); err != nil {
		return err
	}
	if len(value) == 0 {
		return nil
	}
	_, err := w.w.Write(value)
	return err
}

func widthOf(v uint64, signed bool) int {
	if signed {
		i := int64(v)
		switch {
		case i >= math.MinInt8 && i <= math.MaxInt8:
			return 1
		case i >= math.MinInt16 && i <= math.MaxInt16:
			return 2
		case i >= math.MinInt32 && i <= math.MaxInt32:
			return 4
		}
		return 8
	}
	switch {
	case v <= math.MaxUint8:
		return 1
	case v <= math.MaxUint16:
		return 2
	case v <= math.MaxUint32:
		return 4
	}
	return 8
}

func (w *Writer) putInteger(base ElementType, tag Tag, v uint64, width int) error {
	var val [8]byte
	var e ElementType
	switch width {
	case 1:
		e = base
		val[0] = byte(v)
	case 2:
		e = base + 1
		binary.LittleEndian.PutUint16(val[:], uint16(v))
	case 4:
		e = base + 2
		binary.LittleEndian.PutUint32(val[:], uint32(v))
	case 8:
		e = base + 3
		binary.LittleEndian.PutUint64(val[:], v)
	default:
		return fmt.Errorf("%w: integer width %d", ErrInvalidElementType, width)
	}
	return w.writeElement(e, tag, val[:width])
}

// PutInt writes a signed integer in the narrowest width that holds v.
func (w *Writer) PutInt(tag Tag, v int64) error {
	return w.putInteger(ElementTypeInt8, tag, uint64(v), widthOf(uint64(v), true))
}

// PutIntWithWidth writes a signed integer with a fixed width of 1, 2, 4 or
// 8 bytes.
func (w *Writer) PutIntWithWidth(tag Tag, v int64, width int) error {
	return w.putInteger(ElementTypeInt8, tag, uint64(v), width)
}

// PutUint writes an unsigned integer in the narrowest width that holds v.
func (w *Writer) PutUint(tag Tag, v uint64) error {
	return w.putInteger(ElementTypeUInt8, tag, v, widthOf(v, false))
}

// PutUintWithWidth writes an unsigned integer with a fixed width of 1, 2, 4
// or 8 bytes.
func (w *Writer) PutUintWithWidth(tag Tag, v uint64, width int) error {
	return w.putInteger(ElementTypeUInt8, tag, v, width)
}

func (w *Writer) PutBool(tag Tag, v bool) error {
	if v {
		return w.writeElement(ElementTypeTrue, tag, nil)
	}
	return w.writeElement(ElementTypeFalse, tag, nil)
}

func (w *Writer) PutFloat32(tag Tag, v float32) error {
	var val [4]byte
	binary.LittleEndian.PutUint32(val[:], math.Float32bits(v))
	return w.writeElement(ElementTypeFloat32, tag, val[:])
}

func (w *Writer) PutFloat64(tag Tag, v float64) error {
	var val [8]byte
	binary.LittleEndian.PutUint64(val[:], math.Float64bits(v))
	return w.writeElement(ElementTypeFloat64, tag, val[:])
}

func (w *Writer) PutNull(tag Tag) error {
	return w.writeElement(ElementTypeNull, tag, nil)
}

// PutString writes a UTF-8 string. Invalid UTF-8 is rejected.
func (w *Writer) PutString(tag Tag, v string) error {
	if !utf8.ValidString(v) {
		return ErrInvalidUTF8
	}
	return w.putLengthPrefixed(ElementTypeUTF8_1, tag, []byte(v))
}

// PutBytes writes an octet string.
func (w *Writer) PutBytes(tag Tag, v []byte) error {
	return w.putLengthPrefixed(ElementTypeBytes1, tag, v)
}

func (w *Writer) putLengthPrefixed(base ElementType, tag Tag, data []byte) error {
	width := widthOf(uint64(len(data)), false)
	var e ElementType
	switch width {
	case 1:
		e = base
	case 2:
		e = base + 1
	case 4:
		e = base + 2
	default:
		e = base + 3
	}
	n := w.head(e, tag)
	var length [8]byte
	binary.LittleEndian.PutUint64(length[:], uint64(len(data)))
	if _, err := w.w.Write(w.buf[:n]); err != nil {
		return err
	}
	if _, err := w.w.Write(length[:width]); err != nil {
		return err
	}
	_, err := w.w.Write(data)
	return err
}

func (w *Writer) StartStructure(tag Tag) error { return w.start(ElementTypeStruct, tag) }
func (w *Writer) StartArray(tag Tag) error     { return w.start(ElementTypeArray, tag) }
func (w *Writer) StartList(tag Tag) error      { return w.start(ElementTypeList, tag) }

func (w *Writer) start(e ElementType, tag Tag) error {
	if err := w.writeElement(e, tag, nil); err != nil {
		return err
	}
	w.depth++
	return nil
}

// EndContainer closes the innermost open container.
func (w *Writer) EndContainer() error {
	if w.depth == 0 {
		return ErrNotInContainer
	}
	w.depth--
	return w.writeElement(ElementTypeEnd, Anonymous(), nil)
}

// ContainerDepth returns the number of open containers.
func (w *Writer) ContainerDepth() int {
	return w.depth
}
