package session

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/backkem/protogate/pkg/message"
	"github.com/backkem/protogate/pkg/transport"
)

var (
	testI2R = bytes.Repeat([]byte{0x11}, 16)
	testR2I = bytes.Repeat([]byte{0x22}, 16)
)

func newSecurePair(t *testing.T, p *transport.Pipe) (*Secure, *Secure) {
	t.Helper()
	a, err := NewSecure(SecureConfig{
		Conn:           p.Conn0(),
		LocalSessionID: 10,
		PeerSessionID:  20,
		Role:           RoleInitiator,
		I2RKey:         testI2R,
		R2IKey:         testR2I,
		LocalNodeID:    1,
		PeerNodeID:     2,
		NodeAddressing: true,
		Reliable:       true,
	})
	if err != nil {
		t.Fatalf("NewSecure(initiator) error = %v", err)
	}
	b, err := NewSecure(SecureConfig{
		Conn:           p.Conn1(),
		LocalSessionID: 20,
		PeerSessionID:  10,
		Role:           RoleResponder,
		I2RKey:         testI2R,
		R2IKey:         testR2I,
		LocalNodeID:    2,
		PeerNodeID:     1,
		Reliable:       true,
	})
	if err != nil {
		t.Fatalf("NewSecure(responder) error = %v", err)
	}
	return a, b
}

func testFrame(s Session, counter uint32) *message.Frame {
	f := &message.Frame{
		Header: message.MessageHeader{
			SessionID:      s.PeerSessionID(),
			MessageCounter: counter,
		},
		Protocol: &message.ProtocolHeader{
			ProtocolID:     message.ProtocolInteractionModel,
			ProtocolOpcode: 0x08,
			ExchangeID:     0x1234,
			Initiator:      true,
			Reliability:    s.RequiresReliability(),
		},
		Payload: []byte{0x15, 0x18},
	}
	if id, ok := s.SourceNodeID(); ok {
		f.Header.SourcePresent = true
		f.Header.SourceNodeID = id
	}
	if id, ok := s.DestinationNodeID(); ok {
		f.Header.DestinationType = message.DestinationNodeID
		f.Header.DestinationNodeID = id
	}
	return f
}

func TestMessageCounter(t *testing.T) {
	t.Run("random start", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			v, err := NewMessageCounter().Next()
			if err != nil {
				t.Fatal(err)
			}
			if v < 1 || v > counterInitMax {
				t.Fatalf("initial counter %d out of [1, 2^28]", v)
			}
		}
	})

	t.Run("monotonic", func(t *testing.T) {
		c := NewMessageCounterAt(7)
		for want := uint32(7); want < 12; want++ {
			got, err := c.Next()
			if err != nil || got != want {
				t.Fatalf("Next() = %d, %v; want %d", got, err, want)
			}
		}
	})

	t.Run("exhaustion", func(t *testing.T) {
		c := NewMessageCounterAt(math.MaxUint32 - 1)
		for _, want := range []uint32{math.MaxUint32 - 1, math.MaxUint32} {
			got, err := c.Next()
			if err != nil || got != want {
				t.Fatalf("Next() = %d, %v; want %d", got, err, want)
			}
		}
		if _, err := c.Next(); !errors.Is(err, ErrCounterExhausted) {
			t.Fatalf("Next() error = %v, want ErrCounterExhausted", err)
		}
		if _, err := c.Next(); !errors.Is(err, ErrCounterExhausted) {
			t.Fatalf("Next() after exhaustion error = %v", err)
		}
	})
}

func TestNewSecureValidation(t *testing.T) {
	p := transport.NewPipe()
	defer p.Close()

	tests := []struct {
		name    string
		config  SecureConfig
		wantErr error
	}{
		{
			name:    "zero local session",
			config:  SecureConfig{Conn: p.Conn0(), Role: RoleInitiator, I2RKey: testI2R, R2IKey: testR2I},
			wantErr: ErrInvalidSessionID,
		},
		{
			name:    "short key",
			config:  SecureConfig{Conn: p.Conn0(), LocalSessionID: 1, Role: RoleInitiator, I2RKey: testI2R[:8], R2IKey: testR2I},
			wantErr: ErrInvalidKey,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSecure(tt.config); !errors.Is(err, tt.wantErr) {
				t.Errorf("NewSecure() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := NewSecure(SecureConfig{Conn: p.Conn0(), LocalSessionID: 1, I2RKey: testI2R, R2IKey: testR2I}); err == nil {
		t.Error("NewSecure() without role succeeded")
	}
}

func TestSecureRoundTrip(t *testing.T) {
	p := transport.NewPipe()
	defer p.Close()
	a, b := newSecurePair(t, p)
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sent := testFrame(a, 42)
	wire, err := a.Encode(sent)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if bytes.Contains(wire[sent.Header.Size():], sent.Payload) {
		t.Error("payload visible in ciphertext")
	}
	if err := a.SendRaw(ctx, wire); err != nil {
		t.Fatalf("SendRaw() error = %v", err)
	}

	raw, err := b.ReceiveRaw(ctx)
	if err != nil {
		t.Fatalf("ReceiveRaw() error = %v", err)
	}
	got, err := b.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.Header.SessionID != 20 || got.Header.MessageCounter != 42 {
		t.Errorf("header = %+v", got.Header)
	}
	if got.Header.SourceNodeID != 1 || got.Header.DestinationNodeID != 2 {
		t.Errorf("node IDs = %d -> %d, want 1 -> 2", got.Header.SourceNodeID, got.Header.DestinationNodeID)
	}
	if got.Protocol.ExchangeID != 0x1234 || !got.Protocol.Initiator || !got.Protocol.Reliability {
		t.Errorf("protocol header = %+v", got.Protocol)
	}
	if !bytes.Equal(got.Payload, sent.Payload) {
		t.Errorf("payload = %x, want %x", got.Payload, sent.Payload)
	}

	// The reverse direction uses the other key.
	reply := testFrame(b, 7)
	wire, err = b.Encode(reply)
	if err != nil {
		t.Fatal(err)
	}
	back, err := a.Decode(wire)
	if err != nil {
		t.Fatalf("Decode(reply) error = %v", err)
	}
	if !bytes.Equal(back.Payload, reply.Payload) {
		t.Errorf("reply payload = %x", back.Payload)
	}
	if _, err := b.Decode(wire); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("decoding own frame: error = %v, want ErrDecryptionFailed", err)
	}
}

func TestSecureDecodeTampered(t *testing.T) {
	p := transport.NewPipe()
	defer p.Close()
	a, b := newSecurePair(t, p)
	defer a.Close()
	defer b.Close()

	f := testFrame(a, 100)
	wire, err := a.Encode(f)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		offset int
	}{
		{"counter", 4},
		{"source node", message.MinHeaderSize},
		{"ciphertext", f.Header.Size()},
		{"mic", len(wire) - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := append([]byte(nil), wire...)
			tampered[tt.offset] ^= 0x01
			if _, err := b.Decode(tampered); !errors.Is(err, ErrDecryptionFailed) {
				t.Errorf("Decode() error = %v, want ErrDecryptionFailed", err)
			}
		})
	}

	if _, err := b.Decode(wire[:4]); !errors.Is(err, message.ErrMalformedFrame) {
		t.Errorf("Decode(truncated) error = %v, want ErrMalformedFrame", err)
	}
}

func TestUnsecured(t *testing.T) {
	p := transport.NewPipe()
	defer p.Close()

	u, err := NewUnsecured(UnsecuredConfig{Conn: p.Conn0(), Reliable: true})
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	if u.LocalSessionID() != 0 || u.PeerSessionID() != 0 {
		t.Error("unsecured session IDs must be 0")
	}
	id, ok := u.SourceNodeID()
	if !ok || id == 0 || id > maxOperationalNodeID {
		t.Errorf("SourceNodeID() = %#x, %v", id, ok)
	}
	if _, ok := u.DestinationNodeID(); ok {
		t.Error("DestinationNodeID() present on unsecured session")
	}

	f := testFrame(u, 9)
	wire, err := u.Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := u.Decode(wire)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Header.IsSecure() {
		t.Error("unsecured frame reports secure")
	}
	if !bytes.Equal(got.Payload, f.Payload) || got.Protocol.ExchangeID != f.Protocol.ExchangeID {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := u.Encode(&message.Frame{}); err == nil {
		t.Error("Encode() without protocol header succeeded")
	}
}

func TestReceiveRaw(t *testing.T) {
	t.Run("cancel", func(t *testing.T) {
		p := transport.NewPipe()
		defer p.Close()
		u, err := NewUnsecured(UnsecuredConfig{Conn: p.Conn0()})
		if err != nil {
			t.Fatal(err)
		}
		defer u.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := u.ReceiveRaw(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("ReceiveRaw() error = %v, want DeadlineExceeded", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		p := transport.NewPipe()
		defer p.Close()
		u, err := NewUnsecured(UnsecuredConfig{Conn: p.Conn0()})
		if err != nil {
			t.Fatal(err)
		}
		_ = u.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := u.ReceiveRaw(ctx); !errors.Is(err, ErrClosed) {
			t.Errorf("ReceiveRaw() after Close error = %v, want ErrClosed", err)
		}
	})

	t.Run("transient error", func(t *testing.T) {
		conn := newScriptedConn()
		u, err := NewUnsecured(UnsecuredConfig{Conn: conn})
		if err != nil {
			t.Fatal(err)
		}
		defer u.Close()

		conn.reads <- scriptedRead{err: &net.OpError{Op: "read", Net: "udp", Err: syscall.ECONNREFUSED}}
		conn.reads <- scriptedRead{data: []byte{0x01, 0x02}}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		got, err := u.ReceiveRaw(ctx)
		if err != nil {
			t.Fatalf("ReceiveRaw() error = %v", err)
		}
		if !bytes.Equal(got, []byte{0x01, 0x02}) {
			t.Errorf("ReceiveRaw() = %x, want 0102", got)
		}
	})

	t.Run("connection closed", func(t *testing.T) {
		conn := newScriptedConn()
		u, err := NewUnsecured(UnsecuredConfig{Conn: conn})
		if err != nil {
			t.Fatal(err)
		}
		defer u.Close()

		conn.reads <- scriptedRead{err: net.ErrClosed}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := u.ReceiveRaw(ctx); !errors.Is(err, ErrClosed) {
			t.Errorf("ReceiveRaw() error = %v, want ErrClosed", err)
		}
	})
}

type scriptedRead struct {
	data []byte
	err  error
}

// scriptedConn returns queued reads in order and blocks when none are
// queued. Reads after Close fail with net.ErrClosed.
type scriptedConn struct {
	net.Conn
	reads  chan scriptedRead
	closed chan struct{}
	once   sync.Once
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		reads:  make(chan scriptedRead, 8),
		closed: make(chan struct{}),
	}
}

func (c *scriptedConn) Read(b []byte) (int, error) {
	select {
	case r := <-c.reads:
		if r.err != nil {
			return 0, r.err
		}
		return copy(b, r.data), nil
	case <-c.closed:
		return 0, net.ErrClosed
	}
}

func (c *scriptedConn) Write(b []byte) (int, error) { return len(b), nil }

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
