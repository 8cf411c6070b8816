package exchange

import "time"

// MRP (Message Reliability Protocol) parameters.
const (
	// MRPMaxTransmissions is the default number of transmissions of a
	// reliable frame, the first one included.
	MRPMaxTransmissions = 5

	// MRPBackoffBase is the base of the exponential backoff.
	MRPBackoffBase = 1.6

	// MRPBackoffJitter scales the random jitter term.
	MRPBackoffJitter = 0.25

	// MRPBackoffMargin is applied to the peer's retry interval.
	MRPBackoffMargin = 1.1

	// MRPBackoffThreshold is the number of transmissions after which backoff
	// turns exponential.
	MRPBackoffThreshold = 1

	// MRPStandaloneAckTimeout is how long a received reliable frame waits
	// for a piggyback opportunity before a standalone ack is sent.
	MRPStandaloneAckTimeout = 200 * time.Millisecond

	// MRPActiveRetryInterval is the default SESSION_ACTIVE_INTERVAL.
	MRPActiveRetryInterval = 300 * time.Millisecond
)

// Exchange timing defaults.
const (
	DefaultResponseTimeout = 10 * time.Second
	DefaultIdleTimeout     = 10 * time.Second
	DefaultCloseGrace      = 250 * time.Millisecond
)

// QueueCapacity bounds the inbound frame queue. When it is full the receive
// loop blocks, which stops reading from the session.
const QueueCapacity = 10

// receiveRetryDelay paces the receive loop after a transport error.
const receiveRetryDelay = 20 * time.Millisecond
