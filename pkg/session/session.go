// Package session implements the session contract the exchange layer runs
// on: identity and addressing, the outbound message counter, frame
// encoding (clear or AES-CCM secured) and raw datagram I/O.
//
// Sessions are owned by the caller. An exchange holds a reference and never
// closes one.
package session

import (
	"context"

	"github.com/backkem/protogate/pkg/message"
)

// Session is a channel to one peer.
type Session interface {
	// LocalSessionID is the ID peers put in frames addressed to us.
	LocalSessionID() uint16

	// PeerSessionID is the ID we put in frames addressed to the peer.
	PeerSessionID() uint16

	// SourceNodeID returns the node ID to place in outbound headers, if
	// this session uses node addressing.
	SourceNodeID() (uint64, bool)

	// DestinationNodeID returns the peer node ID to place in outbound
	// headers, if this session uses node addressing.
	DestinationNodeID() (uint64, bool)

	// RequiresReliability reports whether outbound frames request an
	// acknowledgement.
	RequiresReliability() bool

	// NextMessageCounter returns the counter for the next outbound frame and
	// advances it. It fails with ErrCounterExhausted rather than wrap.
	NextMessageCounter() (uint32, error)

	Encode(f *message.Frame) ([]byte, error)
	Decode(data []byte) (*message.Frame, error)

	SendRaw(ctx context.Context, data []byte) error

	// ReceiveRaw blocks until a datagram arrives or ctx is done.
	ReceiveRaw(ctx context.Context) ([]byte, error)
}
