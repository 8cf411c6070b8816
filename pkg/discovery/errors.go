package discovery

import "errors"

var (
	// ErrServiceNotFound is returned when the lookup ends without a result.
	ErrServiceNotFound = errors.New("discovery: service not found")

	// ErrTimeout is returned when the lookup timeout expires.
	ErrTimeout = errors.New("discovery: lookup timed out")

	// ErrInvalidInstanceName is returned for an instance name that is not
	// <fabric>-<node> in 16-digit uppercase hex.
	ErrInvalidInstanceName = errors.New("discovery: invalid instance name format")

	// ErrInvalidTXTRecord is returned when a TXT value does not parse.
	ErrInvalidTXTRecord = errors.New("discovery: invalid TXT record format")

	// ErrNoAddress is returned by Address when the record has no IPs.
	ErrNoAddress = errors.New("discovery: service has no address")
)
