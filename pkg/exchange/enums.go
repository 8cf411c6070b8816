// Package exchange implements the client side of a Matter message exchange:
// one request/response conversation carried over a session.
//
// An Exchange turns an unreliable datagram session into an ordered,
// acknowledged and deduplicated channel. It piggybacks acknowledgements on
// outbound frames, drops duplicate and out-of-order counters, retransmits
// reliable frames with the MRP backoff until they are acknowledged, and
// sequences the timed-invoke handshake on top of that.
//
// At most one Exchange is live per Registry. A process that talks to one
// device at a time uses DefaultRegistry.
package exchange

// State tracks the lifecycle of an exchange.
type State int

const (
	// StateUnknown indicates an uninitialized state.
	StateUnknown State = iota

	// StateActive accepts sends and delivers inbound frames.
	StateActive

	// StateAwaitingResponse is Active with a caller blocked on the inbound
	// queue. The idle watchdog does not run in this state.
	StateAwaitingResponse

	// StateClosing rejects new sends. The receive loop keeps running for the
	// close grace period so late acknowledgements are still processed.
	StateClosing

	// StateClosed is terminal. The registry slot has been released.
	StateClosed
)

// String returns a human-readable name for the exchange state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the state is a defined value.
func (s State) IsValid() bool {
	return s >= StateActive && s <= StateClosed
}

// CanSend returns true if callers may send in this state.
func (s State) CanSend() bool {
	return s == StateActive || s == StateAwaitingResponse
}
