package session

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/backkem/protogate/pkg/crypto"
	"github.com/backkem/protogate/pkg/message"
	"github.com/pion/logging"
)

// Role is the local node's part in session establishment. It selects which
// of the two session keys encrypts and which decrypts.
type Role int

const (
	RoleInitiator Role = iota + 1
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "Initiator"
	case RoleResponder:
		return "Responder"
	default:
		return "Unknown"
	}
}

// SecureConfig configures a Secure session. Keys come from a completed
// PASE or CASE handshake, which happens elsewhere.
type SecureConfig struct {
	Conn net.Conn

	LocalSessionID uint16
	PeerSessionID  uint16
	Role           Role

	// I2RKey and R2IKey are 16-byte AES keys.
	I2RKey []byte
	R2IKey []byte

	// LocalNodeID and PeerNodeID feed the AEAD nonce. Both are zero for a
	// PASE session.
	LocalNodeID uint64
	PeerNodeID  uint64

	// NodeAddressing places the node IDs in outbound headers.
	NodeAddressing bool

	Reliable bool
	Counter  *MessageCounter

	// LoggerFactory creates the session logger. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Secure is an established unicast session. Payloads are AES-CCM encrypted
// with the message header as additional data.
type Secure struct {
	link    *link
	counter *MessageCounter

	localSessionID uint16
	peerSessionID  uint16
	localNodeID    uint64
	peerNodeID     uint64
	nodeAddressing bool
	reliable       bool

	encrypt *crypto.CCM
	decrypt *crypto.CCM

	log logging.LeveledLogger
}

// NewSecure creates a secure session over config.Conn.
func NewSecure(config SecureConfig) (*Secure, error) {
	if config.Conn == nil {
		return nil, errors.New("session: nil conn")
	}
	if config.LocalSessionID == 0 {
		return nil, ErrInvalidSessionID
	}
	if len(config.I2RKey) != crypto.KeySize || len(config.R2IKey) != crypto.KeySize {
		return nil, ErrInvalidKey
	}

	encKey, decKey := config.I2RKey, config.R2IKey
	switch config.Role {
	case RoleInitiator:
	case RoleResponder:
		encKey, decKey = decKey, encKey
	default:
		return nil, fmt.Errorf("session: invalid role %d", config.Role)
	}

	enc, err := crypto.NewCCM(encKey)
	if err != nil {
		return nil, err
	}
	dec, err := crypto.NewCCM(decKey)
	if err != nil {
		return nil, err
	}

	s := &Secure{
		counter:        config.Counter,
		localSessionID: config.LocalSessionID,
		peerSessionID:  config.PeerSessionID,
		localNodeID:    config.LocalNodeID,
		peerNodeID:     config.PeerNodeID,
		nodeAddressing: config.NodeAddressing,
		reliable:       config.Reliable,
		encrypt:        enc,
		decrypt:        dec,
	}
	if s.counter == nil {
		s.counter = NewMessageCounter()
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("session")
	}
	s.link = newLink(config.Conn, s.log)
	return s, nil
}

func (s *Secure) LocalSessionID() uint16 { return s.localSessionID }
func (s *Secure) PeerSessionID() uint16  { return s.peerSessionID }

func (s *Secure) SourceNodeID() (uint64, bool) {
	return s.localNodeID, s.nodeAddressing
}

func (s *Secure) DestinationNodeID() (uint64, bool) {
	return s.peerNodeID, s.nodeAddressing
}

func (s *Secure) RequiresReliability() bool { return s.reliable }

func (s *Secure) NextMessageCounter() (uint32, error) { return s.counter.Next() }

// Encode serializes f with its exchange payload sealed under the outbound
// key.
func (s *Secure) Encode(f *message.Frame) ([]byte, error) {
	if f.Protocol == nil {
		return nil, errors.New("session: frame has no protocol header")
	}

	hdr := f.Header.Encode()
	nonce := crypto.BuildNonce(f.Header.SecurityFlags(), f.Header.MessageCounter, s.localNodeID)
	sealed, err := s.encrypt.Seal(nonce, message.EncodePayload(f.Protocol, f.Payload), hdr)
	if err != nil {
		return nil, fmt.Errorf("session: encrypt: %w", err)
	}

	out := make([]byte, 0, len(hdr)+len(sealed))
	out = append(out, hdr...)
	return append(out, sealed...), nil
}

// Decode authenticates and decrypts a secured frame.
func (s *Secure) Decode(data []byte) (*message.Frame, error) {
	f, err := message.DecodeFrame(data, false)
	if err != nil {
		return nil, err
	}
	if f.Header.Privacy {
		return nil, fmt.Errorf("%w: privacy obfuscation is not supported", message.ErrMalformedFrame)
	}

	sender := s.peerNodeID
	if f.Header.SourcePresent {
		sender = f.Header.SourceNodeID
	}
	nonce := crypto.BuildNonce(f.Header.SecurityFlags(), f.Header.MessageCounter, sender)
	aad := data[:f.Header.Size()]

	plaintext, err := s.decrypt.Open(nonce, f.Raw, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: counter %d: %w", ErrDecryptionFailed, f.Header.MessageCounter, err)
	}

	f.Protocol, f.Payload, err = message.DecodePayload(plaintext)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Secure) SendRaw(ctx context.Context, data []byte) error {
	return s.link.send(ctx, data)
}

func (s *Secure) ReceiveRaw(ctx context.Context) ([]byte, error) {
	return s.link.receive(ctx)
}

// Close closes the underlying link.
func (s *Secure) Close() error {
	return s.link.close()
}

var (
	_ Session = (*Secure)(nil)
	_ Session = (*Unsecured)(nil)
)
