package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// sessionKeysInfo is the HKDF info string for operational session keys.
var sessionKeysInfo = []byte("SessionKeys")

// SessionKeys are the three keys derived from a session's shared secret.
type SessionKeys struct {
	I2R                  [KeySize]byte
	R2I                  [KeySize]byte
	AttestationChallenge [KeySize]byte
}

// DeriveSessionKeys expands a shared secret into initiator-to-responder and
// responder-to-initiator keys with HKDF-SHA256.
func DeriveSessionKeys(sharedSecret, salt []byte) (*SessionKeys, error) {
	r := hkdf.New(sha256.New, sharedSecret, salt, sessionKeysInfo)
	var keys SessionKeys
	for _, k := range [][]byte{keys.I2R[:], keys.R2I[:], keys.AttestationChallenge[:]} {
		if _, err := io.ReadFull(r, k); err != nil {
			return nil, fmt.Errorf("crypto: derive session keys: %w", err)
		}
	}
	return &keys, nil
}
