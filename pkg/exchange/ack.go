package exchange

import (
	"sync"
	"time"
)

// ackTracker holds the inbound counter bookkeeping of one exchange: the
// highest counter accepted and the counter most recently acknowledged to
// the peer.
//
// When a received reliable frame has not been acknowledged within the
// standalone ack timeout, onTimeout is called with the pending counter.
type ackTracker struct {
	mu sync.Mutex

	hasReceived  bool
	lastReceived uint32
	hasAcked     bool
	lastAcked    uint32

	timeout   time.Duration
	timer     *time.Timer
	onTimeout func(counter uint32)
	stopped   bool
}

func newAckTracker(timeout time.Duration, onTimeout func(uint32)) *ackTracker {
	return &ackTracker{timeout: timeout, onTimeout: onTimeout}
}

// accept records counter if it is strictly greater than every counter seen
// before. The first counter is always accepted. Counters never wrap on a
// unicast session, so anything not greater is a duplicate.
func (t *ackTracker) accept(counter uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasReceived && counter <= t.lastReceived {
		return false
	}
	t.hasReceived = true
	t.lastReceived = counter
	return true
}

// pending returns the counter an outbound frame should acknowledge, if any.
func (t *ackTracker) pending() (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingLocked()
}

func (t *ackTracker) pendingLocked() (uint32, bool) {
	if !t.hasReceived {
		return 0, false
	}
	if t.hasAcked && t.lastAcked == t.lastReceived {
		return 0, false
	}
	return t.lastReceived, true
}

// markAcked records that counter has been acknowledged on the wire. The
// recorded counter only moves forward.
func (t *ackTracker) markAcked(counter uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasAcked || counter > t.lastAcked {
		t.hasAcked = true
		t.lastAcked = counter
	}
	if _, ok := t.pendingLocked(); !ok && t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// schedule arms the standalone ack timer unless it is already running.
func (t *ackTracker) schedule() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.timer != nil || t.timeout <= 0 || t.onTimeout == nil {
		return
	}
	t.timer = time.AfterFunc(t.timeout, t.fire)
}

func (t *ackTracker) fire() {
	t.mu.Lock()
	t.timer = nil
	counter, ok := t.pendingLocked()
	if t.stopped {
		ok = false
	}
	t.mu.Unlock()

	if ok {
		t.onTimeout(counter)
	}
}

// acked returns the last acknowledged counter.
func (t *ackTracker) acked() (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastAcked, t.hasAcked
}

func (t *ackTracker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
