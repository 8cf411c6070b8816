package im

import (
	"bytes"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/backkem/protogate/pkg/tlv"
	"github.com/pion/logging"
)

func TestInvokeRequestEncode(t *testing.T) {
	req := &InvokeRequest{Path: CommandPath{Endpoint: 1, Cluster: 6, Command: 1}}
	got, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{
		0x15,
		0x28, 0x00,
		0x28, 0x01,
		0x36, 0x02,
		0x15,
		0x37, 0x00,
		0x24, 0x00, 0x01,
		0x24, 0x01, 0x06,
		0x24, 0x02, 0x01,
		0x18,
		0x18,
		0x18,
		0x18,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = %x, want %x", got, want)
	}
}

func TestInvokeRequestTimedFlag(t *testing.T) {
	req := &InvokeRequest{TimedRequest: true, Path: CommandPath{Endpoint: 1, Cluster: 0x101, Command: 0}}
	got, err := req.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if got[3] != 0x29 || got[4] != 0x01 {
		t.Errorf("timed flag = %x, want 29 01", got[3:5])
	}
}

// fieldsOf returns the command-fields structure bytes of an encoded request.
func fieldsOf(t *testing.T, params []any) []byte {
	t.Helper()
	req := &InvokeRequest{Path: CommandPath{Endpoint: 0, Cluster: 0, Command: 0}, Fields: params}
	enc, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	// Fixed prefix: struct, two bools, array, struct, then the 12-byte path list.
	const prefix = 1 + 2 + 2 + 2 + 1 + 12
	// Trailer: end of CommandDataIB, array and outer struct.
	return enc[prefix : len(enc)-3]
}

func TestParameterEncoding(t *testing.T) {
	tests := []struct {
		name   string
		params []any
		want   []byte
	}{
		{"int8", []any{int8(-1)}, []byte{0x20, 0x00, 0xFF}},
		{"int16", []any{int16(2)}, []byte{0x21, 0x00, 0x02, 0x00}},
		{"int32", []any{int32(3)}, []byte{0x22, 0x00, 0x03, 0, 0, 0}},
		{"int64", []any{int64(4)}, []byte{0x23, 0x00, 0x04, 0, 0, 0, 0, 0, 0, 0}},
		{"uint8", []any{uint8(5)}, []byte{0x24, 0x00, 0x05}},
		{"uint16", []any{uint16(6)}, []byte{0x25, 0x00, 0x06, 0x00}},
		{"uint32", []any{uint32(7)}, []byte{0x26, 0x00, 0x07, 0, 0, 0}},
		{"uint64", []any{uint64(8)}, []byte{0x27, 0x00, 0x08, 0, 0, 0, 0, 0, 0, 0}},
		{"big int", []any{new(big.Int).SetUint64(0xFFFFFFFFFFFFFFFF)}, []byte{0x27, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"string", []any{"ab"}, []byte{0x2C, 0x00, 0x02, 'a', 'b'}},
		{"bytes", []any{[]byte{0xCA}}, []byte{0x30, 0x00, 0x01, 0xCA}},
		{"uint64 array", []any{[]uint64{1}}, []byte{0x36, 0x00, 0x07, 0x01, 0, 0, 0, 0, 0, 0, 0, 0x18}},
		{"acl targets", []any{[]AccessControlTarget{{Cluster: 6}}}, []byte{0x36, 0x00, 0x15, 0x26, 0x00, 0x06, 0, 0, 0, 0x18, 0x18}},
		{"bool", []any{true}, []byte{0x29, 0x00}},
		{"float64 as uint64", []any{float64(10)}, []byte{0x27, 0x00, 0x0A, 0, 0, 0, 0, 0, 0, 0}},
		{"float32 truncated", []any{float32(2.5)}, []byte{0x27, 0x00, 0x02, 0, 0, 0, 0, 0, 0, 0}},
		{"nil skipped keeps position", []any{nil, uint8(1)}, []byte{0x24, 0x01, 0x01}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := fieldsOf(t, tc.params)
			want := append(append([]byte{0x35, 0x01}, tc.want...), 0x18)
			if !bytes.Equal(got, want) {
				t.Errorf("fields = %x, want %x", got, want)
			}
		})
	}
}

func TestParameterEncodingUnsupported(t *testing.T) {
	tests := []struct {
		name  string
		param any
	}{
		{"int", 5},
		{"map", map[string]int{}},
		{"negative big int", big.NewInt(-1)},
		{"oversized big int", new(big.Int).Lsh(big.NewInt(1), 64)},
		{"struct", struct{}{}},
		{"negative float", -1.0},
		{"NaN", math.NaN()},
		{"+Inf", math.Inf(1)},
		{"-Inf", math.Inf(-1)},
		{"float beyond uint64", 1e30},
		{"float at 2^64", math.Exp2(64)},
		{"negative float32", float32(-0.5)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := &InvokeRequest{Fields: []any{uint8(1), tc.param}}
			if _, err := req.Encode(); !errors.Is(err, ErrUnsupportedParameterType) {
				t.Errorf("Encode() error = %v, want ErrUnsupportedParameterType", err)
			}
		})
	}
}

func TestTimedRequestEncode(t *testing.T) {
	got, err := (&TimedRequest{Timeout: 500}).Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x15, 0x25, 0x00, 0xF4, 0x01, 0x24, 0xFF, Revision, 0x18}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = %x, want %x", got, want)
	}
}

func TestStatusResponseEncode(t *testing.T) {
	got, err := (&StatusResponse{Status: StatusBusy}).Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x15, 0x24, 0x00, 0x9C, 0x24, 0xFF, Revision, 0x18}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = %x, want %x", got, want)
	}
	if res := ParseStatus(got, nil); !res.HasStatus || res.Status != StatusBusy {
		t.Errorf("ParseStatus() = %+v, want Busy", res)
	}
}

func statusPayload(t *testing.T, fn func(w *tlv.Writer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)
	w.StartStructure(tlv.Anonymous())
	fn(w)
	w.EndContainer()
	return buf.Bytes()
}

func TestParseStatus(t *testing.T) {
	log := logging.NewDefaultLoggerFactory().NewLogger("im")

	t.Run("flat", func(t *testing.T) {
		payload := statusPayload(t, func(w *tlv.Writer) {
			w.PutUint(tlv.ContextTag(0), uint64(StatusSuccess))
			w.PutUint(tlv.ContextTag(RevisionTag), 11)
		})
		res := ParseStatus(payload, log)
		if !res.HasStatus || res.Status != StatusSuccess {
			t.Errorf("status = %v (present %v), want Success", res.Status, res.HasStatus)
		}
		if res.Revision == nil || *res.Revision != 11 {
			t.Errorf("revision = %v, want 11", res.Revision)
		}
		if res.ClusterStatus != nil {
			t.Errorf("cluster status = %d, want nil", *res.ClusterStatus)
		}
	})

	t.Run("nested", func(t *testing.T) {
		payload := statusPayload(t, func(w *tlv.Writer) {
			w.PutString(tlv.ContextTag(7), "ignored")
			w.StartStructure(tlv.ContextTag(3))
			w.PutUint(tlv.ContextTag(0), uint64(StatusNeedsTimedInteraction))
			w.PutUint(tlv.ContextTag(1), 0x1234)
			w.EndContainer()
			w.PutUint(tlv.ContextTag(RevisionTag), 10)
		})
		res := ParseStatus(payload, log)
		if res.Status != StatusNeedsTimedInteraction {
			t.Errorf("status = %v, want NeedsTimedInteraction", res.Status)
		}
		if res.ClusterStatus == nil || *res.ClusterStatus != 0x1234 {
			t.Errorf("cluster status = %v, want 0x1234", res.ClusterStatus)
		}
		if res.Revision == nil || *res.Revision != 10 {
			t.Errorf("revision = %v, want 10", res.Revision)
		}
	})

	t.Run("unknown containers skipped", func(t *testing.T) {
		payload := statusPayload(t, func(w *tlv.Writer) {
			w.StartArray(tlv.ContextTag(5))
			w.PutUint(tlv.Anonymous(), 99)
			w.EndContainer()
			w.PutUint(tlv.ContextTag(0), uint64(StatusBusy))
		})
		if res := ParseStatus(payload, log); res.Status != StatusBusy {
			t.Errorf("status = %v, want Busy", res.Status)
		}
	})

	t.Run("missing status", func(t *testing.T) {
		payload := statusPayload(t, func(w *tlv.Writer) {
			w.PutUint(tlv.ContextTag(1), 2)
		})
		res := ParseStatus(payload, log)
		if res.HasStatus || res.Status != StatusFailure {
			t.Errorf("result = %+v, want absent status reported as Failure", res)
		}
		if res.ClusterStatus == nil || *res.ClusterStatus != 2 {
			t.Errorf("cluster status = %v, want 2", res.ClusterStatus)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		for _, payload := range [][]byte{nil, {0x24}, {0x15, 0x24, 0x00}} {
			res := ParseStatus(payload, nil)
			if res.HasStatus || res.Status != StatusFailure {
				t.Errorf("ParseStatus(%x) = %+v, want failure", payload, res)
			}
		}
	})
}
