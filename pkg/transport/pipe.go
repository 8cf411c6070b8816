// Package transport provides the datagram links a session runs over: UDP
// sockets, a BTP-segmenting adapter for BLE characteristics, and an
// in-memory pipe for tests.
package transport

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures lossy link simulation on a Pipe.
type NetworkCondition struct {
	// DropRate is the probability of dropping a datagram (0.0 - 1.0).
	DropRate float64

	// DuplicateRate is the probability of sending a datagram twice.
	DuplicateRate float64
}

// Pipe is a bidirectional in-memory datagram link built on pion's
// test.Bridge. Datagrams are delivered by a background ticker.
type Pipe struct {
	bridge *test.Bridge

	mu        sync.RWMutex
	condition NetworkCondition
	rng       *rand.Rand
	closed    bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPipe creates a pipe delivering queued datagrams every millisecond.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge: test.NewBridge(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh: make(chan struct{}),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
	return p
}

// SetCondition configures loss simulation for both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Conn0 returns endpoint 0.
func (p *Pipe) Conn0() net.Conn {
	return &lossyConn{Conn: p.bridge.GetConn0(), pipe: p}
}

// Conn1 returns endpoint 1.
func (p *Pipe) Conn1() net.Conn {
	return &lossyConn{Conn: p.bridge.GetConn1(), pipe: p}
}

// Close stops delivery and closes both endpoints.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// lossyConn applies the pipe's NetworkCondition on write.
type lossyConn struct {
	net.Conn
	pipe *Pipe
}

func (c *lossyConn) Write(b []byte) (int, error) {
	c.pipe.mu.Lock()
	cond := c.pipe.condition
	drop := cond.DropRate > 0 && c.pipe.rng.Float64() < cond.DropRate
	dup := cond.DuplicateRate > 0 && c.pipe.rng.Float64() < cond.DuplicateRate
	c.pipe.mu.Unlock()

	if drop {
		return len(b), nil
	}
	if dup {
		if _, err := c.Conn.Write(b); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
