package crypto

import "encoding/binary"

// BuildNonce returns the AEAD nonce of a secured message: the security
// flags, the message counter (LE) and the sender's node ID (LE).
func BuildNonce(securityFlags uint8, messageCounter uint32, sourceNodeID uint64) []byte {
	nonce := make([]byte, NonceSize)
	nonce[0] = securityFlags
	binary.LittleEndian.PutUint32(nonce[1:], messageCounter)
	binary.LittleEndian.PutUint64(nonce[5:], sourceNodeID)
	return nonce
}
