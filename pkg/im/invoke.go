package im

import (
	"bytes"
	"fmt"
	"math"
	"math/big"

	"github.com/backkem/protogate/pkg/tlv"
)

// CommandPath addresses one command on one endpoint. Encoded as a list.
type CommandPath struct {
	Endpoint uint16
	Cluster  uint32
	Command  uint32
}

const (
	cmdPathTagEndpoint = 0
	cmdPathTagCluster  = 1
	cmdPathTagCommand  = 2
)

func (p CommandPath) encode(w *tlv.Writer, tag tlv.Tag) error {
	if err := w.StartList(tag); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(cmdPathTagEndpoint), uint64(p.Endpoint)); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(cmdPathTagCluster), uint64(p.Cluster)); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(cmdPathTagCommand), uint64(p.Command)); err != nil {
		return err
	}
	return w.EndContainer()
}

// AccessControlTarget is one entry of an access control target list.
type AccessControlTarget struct {
	Cluster uint32
}

// InvokeRequest carries a single command invocation.
//
// Fields are the command's arguments in order; argument i is written under
// context tag i. A nil argument is omitted and does not shift the tags of
// the arguments after it. With no Fields the command-fields structure is
// left out entirely.
type InvokeRequest struct {
	SuppressResponse bool
	TimedRequest     bool
	Path             CommandPath
	Fields           []any
}

const (
	invokeReqTagSuppressResponse = 0
	invokeReqTagTimedRequest     = 1
	invokeReqTagInvokeRequests   = 2

	cmdDataTagPath   = 0
	cmdDataTagFields = 1
)

// Encode returns the TLV encoding of the request. It fails with
// ErrUnsupportedParameterType if any field has no TLV mapping.
func (m *InvokeRequest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)

	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutBool(tlv.ContextTag(invokeReqTagSuppressResponse), m.SuppressResponse); err != nil {
		return nil, err
	}
	if err := w.PutBool(tlv.ContextTag(invokeReqTagTimedRequest), m.TimedRequest); err != nil {
		return nil, err
	}
	if err := w.StartArray(tlv.ContextTag(invokeReqTagInvokeRequests)); err != nil {
		return nil, err
	}

	// CommandDataIB
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := m.Path.encode(w, tlv.ContextTag(cmdDataTagPath)); err != nil {
		return nil, err
	}
	if len(m.Fields) > 0 {
		if err := EncodeCommandFields(w, tlv.ContextTag(cmdDataTagFields), m.Fields); err != nil {
			return nil, err
		}
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}

	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeCommandFields writes params as a structure under tag.
func EncodeCommandFields(w *tlv.Writer, tag tlv.Tag, params []any) error {
	if len(params) > 0xFF {
		return fmt.Errorf("im: %d command fields exceed the context tag range", len(params))
	}
	if err := w.StartStructure(tag); err != nil {
		return err
	}
	for i, p := range params {
		if p == nil {
			continue
		}
		if err := encodeParameter(w, tlv.ContextTag(uint8(i)), p); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	return w.EndContainer()
}

func encodeParameter(w *tlv.Writer, tag tlv.Tag, p any) error {
	switch v := p.(type) {
	case int8:
		return w.PutIntWithWidth(tag, int64(v), 1)
	case int16:
		return w.PutIntWithWidth(tag, int64(v), 2)
	case int32:
		return w.PutIntWithWidth(tag, int64(v), 4)
	case int64:
		return w.PutIntWithWidth(tag, v, 8)
	case uint8:
		return w.PutUintWithWidth(tag, uint64(v), 1)
	case uint16:
		return w.PutUintWithWidth(tag, uint64(v), 2)
	case uint32:
		return w.PutUintWithWidth(tag, uint64(v), 4)
	case uint64:
		return w.PutUintWithWidth(tag, v, 8)
	case *big.Int:
		if v == nil {
			return nil
		}
		if v.Sign() < 0 || v.BitLen() > 64 {
			return fmt.Errorf("%w: big.Int %s does not fit an unsigned 64-bit field", ErrUnsupportedParameterType, v)
		}
		return w.PutUintWithWidth(tag, v.Uint64(), 8)
	case string:
		return w.PutString(tag, v)
	case []byte:
		return w.PutBytes(tag, v)
	case []uint64:
		if err := w.StartArray(tag); err != nil {
			return err
		}
		for _, e := range v {
			if err := w.PutUintWithWidth(tlv.Anonymous(), e, 8); err != nil {
				return err
			}
		}
		return w.EndContainer()
	case []AccessControlTarget:
		if err := w.StartArray(tag); err != nil {
			return err
		}
		for _, t := range v {
			if err := w.StartStructure(tlv.Anonymous()); err != nil {
				return err
			}
			if err := w.PutUintWithWidth(tlv.ContextTag(0), uint64(t.Cluster), 4); err != nil {
				return err
			}
			if err := w.EndContainer(); err != nil {
				return err
			}
		}
		return w.EndContainer()
	case bool:
		return w.PutBool(tag, v)
	case float64:
		// Numeric command fields are unsigned on the wire even when the
		// caller's value arrived as a float.
		return putFloatAsUint(w, tag, v)
	case float32:
		return putFloatAsUint(w, tag, float64(v))
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedParameterType, p)
	}
}

// putFloatAsUint writes the truncated value of f as an unsigned 64-bit
// integer. Values outside [0, 2^64) and NaN are rejected.
func putFloatAsUint(w *tlv.Writer, tag tlv.Tag, f float64) error {
	if math.IsNaN(f) || f < 0 || f >= 1<<64 {
		return fmt.Errorf("%w: float %v does not fit an unsigned 64-bit field", ErrUnsupportedParameterType, f)
	}
	return w.PutUintWithWidth(tag, uint64(f), 8)
}

// TimedRequest opens a timed interaction window of Timeout milliseconds.
type TimedRequest struct {
	Timeout uint16
}

const timedReqTagTimeout = 0

// Encode returns the TLV encoding of the request, including the IM revision.
func (m *TimedRequest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)

	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutUint(tlv.ContextTag(timedReqTagTimeout), uint64(m.Timeout)); err != nil {
		return nil, err
	}
	if err := w.PutUint(tlv.ContextTag(RevisionTag), uint64(Revision)); err != nil {
		return nil, err
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
