package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// maxDatagramSize bounds a single read. Matter frames fit the IPv6
// minimum MTU; the slack covers transports that deliver slightly more.
const maxDatagramSize = 1500

// readRetryDelay paces reads after a transient error such as an ICMP
// port unreachable reported on a connected UDP socket.
const readRetryDelay = 20 * time.Millisecond

// link pumps datagrams from a net.Conn into a channel so that receives can
// be abandoned on context cancellation regardless of deadline support.
type link struct {
	conn    net.Conn
	rx      chan []byte
	done    chan struct{}
	closing chan struct{}
	err     error

	closeOnce sync.Once
	log       logging.LeveledLogger
}

func newLink(conn net.Conn, log logging.LeveledLogger) *link {
	l := &link{
		conn:    conn,
		rx:      make(chan []byte, 16),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		log:     log,
	}
	go l.readLoop()
	return l
}

func (l *link) readLoop() {
	defer close(l.done)
	for {
		buf := make([]byte, maxDatagramSize)
		n, err := l.conn.Read(buf)
		if err != nil {
			if isTerminal(err) {
				l.err = err
				return
			}
			if l.log != nil {
				l.log.Debugf("read: %v", err)
			}
			select {
			case <-time.After(readRetryDelay):
				continue
			case <-l.closing:
				l.err = err
				return
			}
		}
		if l.log != nil {
			l.log.Tracef("rx %d bytes", n)
		}
		select {
		case l.rx <- buf[:n]:
		case <-l.closing:
			return
		}
	}
}

func (l *link) send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := l.conn.Write(data); err != nil {
		return fmt.Errorf("session: send: %w", err)
	}
	return nil
}

func (l *link) receive(ctx context.Context) ([]byte, error) {
	select {
	case b := <-l.rx:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		// Drain anything the reader queued before it stopped.
		select {
		case b := <-l.rx:
			return b, nil
		default:
		}
		return nil, fmt.Errorf("%w: %v", ErrClosed, l.err)
	}
}

func (l *link) close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closing)
		err = l.conn.Close()
	})
	return err
}

// isTerminal reports whether a read error means the connection is gone.
func isTerminal(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)
}
