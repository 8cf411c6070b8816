package exchange

import (
	"time"

	"github.com/pion/logging"
)

// Config configures an Exchange. Zero values select the defaults.
type Config struct {
	// ResponseTimeout bounds each wait for an inbound frame.
	ResponseTimeout time.Duration

	// IdleTimeout closes the exchange after this long without traffic or
	// API calls while nobody is waiting.
	IdleTimeout time.Duration

	// CloseGrace is how long Close keeps receiving before shutting down.
	CloseGrace time.Duration

	// StandaloneAckTimeout is how long a received reliable frame may wait
	// for a piggybacked acknowledgement.
	StandaloneAckTimeout time.Duration

	// MaxTransmissions is the total transmission budget of a reliable frame.
	// 1 disables retransmission.
	MaxTransmissions int

	// RetryInterval is the peer's MRP retry interval the backoff scales.
	RetryInterval time.Duration

	// Random supplies backoff jitter.
	Random RandomSource

	// Registry holds the exchange slot. Defaults to DefaultRegistry.
	Registry *Registry

	// LoggerFactory creates the "exchange" logger. Defaults to pion's
	// default factory.
	LoggerFactory logging.LoggerFactory
}

func (c Config) withDefaults() Config {
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = DefaultCloseGrace
	}
	if c.StandaloneAckTimeout <= 0 {
		c.StandaloneAckTimeout = MRPStandaloneAckTimeout
	}
	if c.MaxTransmissions <= 0 {
		c.MaxTransmissions = MRPMaxTransmissions
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = MRPActiveRetryInterval
	}
	if c.Random == nil {
		c.Random = DefaultRandomSource
	}
	if c.Registry == nil {
		c.Registry = DefaultRegistry
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	return c
}
