// Package crypto provides the symmetric primitives a secured Matter session
// needs: AES-128-CCM with a 13-byte nonce and 16-byte MIC, session key
// derivation and AEAD nonce construction.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

const (
	KeySize   = 16
	MICSize   = 16
	NonceSize = 13

	// lenSize is the CCM length field width L = 15 - NonceSize.
	lenSize = 15 - NonceSize
)

var (
	ErrInvalidKeySize   = errors.New("crypto: key must be 16 bytes")
	ErrInvalidNonceSize = errors.New("crypto: nonce must be 13 bytes")
	ErrMessageTooLong   = errors.New("crypto: message exceeds CCM length field")
	ErrAuthFailed       = errors.New("crypto: message authentication failed")
)

// CCM is AES-128-CCM fixed to Matter's parameters.
type CCM struct {
	block cipher.Block
}

// NewCCM creates a CCM cipher for a 16-byte key.
func NewCCM(key []byte) (*CCM, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &CCM{block: block}, nil
}

// Seal encrypts plaintext and returns ciphertext || MIC.
func (c *CCM) Seal(nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}
	if len(plaintext) >= 1<<(8*lenSize) {
		return nil, ErrMessageTooLong
	}

	out := make([]byte, len(plaintext)+MICSize)
	mac := c.cbcMAC(nonce, plaintext, aad)
	c.ctr(nonce, 0, out[len(plaintext):], mac[:])
	c.ctr(nonce, 1, out[:len(plaintext)], plaintext)
	return out, nil
}

// Open verifies and decrypts ciphertext || MIC.
func (c *CCM) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}
	if len(ciphertext) < MICSize {
		return nil, ErrAuthFailed
	}

	n := len(ciphertext) - MICSize
	plaintext := make([]byte, n)
	c.ctr(nonce, 1, plaintext, ciphertext[:n])

	var received [MICSize]byte
	c.ctr(nonce, 0, received[:], ciphertext[n:])
	expected := c.cbcMAC(nonce, plaintext, aad)
	if subtle.ConstantTimeCompare(received[:], expected[:]) != 1 {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// counterBlock returns A_i: flags L-1, the nonce, then i big-endian.
func counterBlock(nonce []byte, i uint16) []byte {
	a := make([]byte, aes.BlockSize)
	a[0] = lenSize - 1
	copy(a[1:], nonce)
	binary.BigEndian.PutUint16(a[aes.BlockSize-lenSize:], i)
	return a
}

// ctr XORs src with the keystream starting at counter block first.
func (c *CCM) ctr(nonce []byte, first uint16, dst, src []byte) {
	cipher.NewCTR(c.block, counterBlock(nonce, first)).XORKeyStream(dst, src)
}

func (c *CCM) cbcMAC(nonce, plaintext, aad []byte) [MICSize]byte {
	var x [aes.BlockSize]byte

	// B_0: Adata bit, M' = (MIC-2)/2, L' = L-1, nonce, message length.
	b0 := byte((MICSize-2)/2)<<3 | (lenSize - 1)
	if len(aad) > 0 {
		b0 |= 0x40
	}
	x[0] = b0
	copy(x[1:], nonce)
	binary.BigEndian.PutUint16(x[aes.BlockSize-lenSize:], uint16(len(plaintext)))
	c.block.Encrypt(x[:], x[:])

	if len(aad) > 0 {
		// Matter AAD is a message header, well under 0xFF00 bytes.
		prefixed := make([]byte, 2+len(aad))
		binary.BigEndian.PutUint16(prefixed, uint16(len(aad)))
		copy(prefixed[2:], aad)
		c.absorb(&x, prefixed)
	}
	c.absorb(&x, plaintext)
	return x
}

// absorb runs zero-padded data through the CBC-MAC state.
func (c *CCM) absorb(x *[aes.BlockSize]byte, data []byte) {
	for len(data) > 0 {
		n := min(len(data), aes.BlockSize)
		subtle.XORBytes(x[:n], x[:n], data[:n])
		c.block.Encrypt(x[:], x[:])
		data = data[n:]
	}
}
