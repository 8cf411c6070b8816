package session

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"sync"
)

// counterInitMax bounds the random initial counter to [1, 2^28].
const counterInitMax = 1 << 28

// MessageCounter hands out outbound message counters. It never wraps:
// after 0xFFFFFFFF has been issued, Next fails with ErrCounterExhausted.
type MessageCounter struct {
	mu        sync.Mutex
	next      uint32
	exhausted bool
}

// NewMessageCounter starts at a random value in [1, 2^28].
func NewMessageCounter() *MessageCounter {
	var buf [4]byte
	start := uint32(1)
	if _, err := rand.Read(buf[:]); err == nil {
		start = binary.LittleEndian.Uint32(buf[:])&(counterInitMax-1) + 1
	}
	return &MessageCounter{next: start}
}

// NewMessageCounterAt starts at a fixed value.
func NewMessageCounterAt(start uint32) *MessageCounter {
	return &MessageCounter{next: start}
}

// Next returns the current value and advances.
func (c *MessageCounter) Next() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exhausted {
		return 0, ErrCounterExhausted
	}
	v := c.next
	if v == math.MaxUint32 {
		c.exhausted = true
	} else {
		c.next++
	}
	return v, nil
}
