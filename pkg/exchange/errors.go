package exchange

import "errors"

// Errors returned by the exchange package.
var (
	// ErrExchangeAlreadyActive is returned by New while another exchange
	// holds the registry slot.
	ErrExchangeAlreadyActive = errors.New("exchange: an exchange is already active")

	// ErrExchangeClosed is returned by operations on a closing or closed
	// exchange, including one closed by the idle watchdog.
	ErrExchangeClosed = errors.New("exchange: exchange is closed")

	// ErrNilSession is returned by New without a session.
	ErrNilSession = errors.New("exchange: nil session")
)
