package exchange

import (
	"sync"
	"time"
)

// retransmitEntry is a reliable frame awaiting acknowledgement. The bytes
// are the fully encoded frame, so a retransmission reuses its counter.
type retransmitEntry struct {
	counter   uint32
	data      []byte
	sendCount int
	timer     *time.Timer
}

// retransmitter keeps the single outstanding reliable frame of an exchange
// and resends it on the MRP backoff schedule until it is acknowledged or
// maxTransmissions is reached.
type retransmitter struct {
	mu      sync.Mutex
	entry   *retransmitEntry
	stopped bool

	backoff          *Backoff
	baseInterval     time.Duration
	maxTransmissions int

	// resend is called without the lock held.
	resend func(data []byte)
	// giveUp is called once the budget is spent.
	giveUp func(counter uint32, sendCount int)
}

// track starts timing a frame that has just been sent for the first time.
// A previous outstanding frame is abandoned.
func (r *retransmitter) track(counter uint32, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	r.stopLocked()

	e := &retransmitEntry{counter: counter, data: data, sendCount: 1}
	e.timer = time.AfterFunc(r.backoff.Interval(r.baseInterval, 0), func() { r.onTimeout(e) })
	r.entry = e
}

func (r *retransmitter) onTimeout(e *retransmitEntry) {
	r.mu.Lock()
	if r.stopped || r.entry != e {
		r.mu.Unlock()
		return
	}
	if e.sendCount >= r.maxTransmissions {
		r.entry = nil
		r.mu.Unlock()
		if r.giveUp != nil {
			r.giveUp(e.counter, e.sendCount)
		}
		return
	}
	e.sendCount++
	e.timer = time.AfterFunc(r.backoff.Interval(r.baseInterval, e.sendCount-1), func() { r.onTimeout(e) })
	r.mu.Unlock()

	r.resend(e.data)
}

// ack clears the outstanding frame if counter acknowledges it.
func (r *retransmitter) ack(counter uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entry == nil || r.entry.counter != counter {
		return false
	}
	r.stopLocked()
	return true
}

// outstanding returns the counter of the unacknowledged frame, if any.
func (r *retransmitter) outstanding() (uint32, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entry == nil {
		return 0, 0, false
	}
	return r.entry.counter, r.entry.sendCount, true
}

func (r *retransmitter) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	r.stopLocked()
}

func (r *retransmitter) stopLocked() {
	if r.entry != nil {
		r.entry.timer.Stop()
		r.entry = nil
	}
}
