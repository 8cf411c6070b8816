package session

import "errors"

var (
	// ErrCounterExhausted is returned once every counter value has been
	// used. The session must be re-established.
	ErrCounterExhausted = errors.New("session: message counter exhausted")

	ErrInvalidKey = errors.New("session: invalid key length")

	// ErrInvalidSessionID is returned for a secure session with local ID 0.
	ErrInvalidSessionID = errors.New("session: invalid session ID")

	// ErrDecryptionFailed is returned when a secured frame fails
	// authentication.
	ErrDecryptionFailed = errors.New("session: decryption failed")

	// ErrClosed is returned by I/O on a closed session.
	ErrClosed = errors.New("session: closed")
)
