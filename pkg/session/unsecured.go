package session

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net"

	"github.com/backkem/protogate/pkg/message"
	"github.com/pion/logging"
)

// UnsecuredConfig configures an Unsecured session.
type UnsecuredConfig struct {
	// Conn is the datagram link to the peer. The session closes it on Close.
	Conn net.Conn

	// EphemeralNodeID is sent as the source node ID. Zero picks a random
	// operational node ID.
	EphemeralNodeID uint64

	// Reliable sets the R flag on outbound frames.
	Reliable bool

	// Counter overrides the random initial message counter.
	Counter *MessageCounter

	// LoggerFactory creates the session logger. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Unsecured is the session-ID-0 channel used before keys exist. Frames are
// sent in the clear.
type Unsecured struct {
	link     *link
	counter  *MessageCounter
	nodeID   uint64
	reliable bool
}

// NewUnsecured creates an unsecured session over config.Conn.
func NewUnsecured(config UnsecuredConfig) (*Unsecured, error) {
	if config.Conn == nil {
		return nil, errors.New("session: nil conn")
	}

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("session")
	}

	nodeID := config.EphemeralNodeID
	if nodeID == 0 {
		nodeID = randomOperationalNodeID()
	}
	counter := config.Counter
	if counter == nil {
		counter = NewMessageCounter()
	}

	return &Unsecured{
		link:     newLink(config.Conn, log),
		counter:  counter,
		nodeID:   nodeID,
		reliable: config.Reliable,
	}, nil
}

func (u *Unsecured) LocalSessionID() uint16 { return 0 }
func (u *Unsecured) PeerSessionID() uint16  { return 0 }

func (u *Unsecured) SourceNodeID() (uint64, bool)      { return u.nodeID, true }
func (u *Unsecured) DestinationNodeID() (uint64, bool) { return 0, false }

func (u *Unsecured) RequiresReliability() bool { return u.reliable }

func (u *Unsecured) NextMessageCounter() (uint32, error) { return u.counter.Next() }

// Encode serializes f in the clear.
func (u *Unsecured) Encode(f *message.Frame) ([]byte, error) {
	if f.Protocol == nil {
		return nil, errors.New("session: frame has no protocol header")
	}
	return f.Encode(), nil
}

// Decode parses a clear frame.
func (u *Unsecured) Decode(data []byte) (*message.Frame, error) {
	return message.DecodeFrame(data, true)
}

func (u *Unsecured) SendRaw(ctx context.Context, data []byte) error {
	return u.link.send(ctx, data)
}

func (u *Unsecured) ReceiveRaw(ctx context.Context) ([]byte, error) {
	return u.link.receive(ctx)
}

// Close closes the underlying link.
func (u *Unsecured) Close() error {
	return u.link.close()
}

// Operational node IDs lie in [0x1, 0xFFFF_FFEF_FFFF_FFFF].
const maxOperationalNodeID uint64 = 0xFFFFFFEFFFFFFFFF

func randomOperationalNodeID() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	return binary.LittleEndian.Uint64(buf[:])%maxOperationalNodeID + 1
}
