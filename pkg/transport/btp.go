package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/backkem/protogate/pkg/btp"
	"github.com/pion/logging"
)

// BTPConfig configures a BTPConn.
type BTPConfig struct {
	// SegmentSize is the largest characteristic write, normally the
	// negotiated ATT MTU minus 3.
	SegmentSize int

	// LoggerFactory creates the connection's logger. If nil, a default
	// factory is used.
	LoggerFactory logging.LoggerFactory
}

// BTPConn carries whole Matter messages over a link that only moves
// characteristic-sized datagrams. Each Write is split into BTP segments;
// Read returns one reassembled message. The BLE handshake is the caller's
// responsibility and must be complete before the first Write.
type BTPConn struct {
	net.Conn

	writeMu   sync.Mutex
	segmenter *btp.Segmenter

	readMu      sync.Mutex
	reassembler *btp.Reassembler
	buf         []byte

	log logging.LeveledLogger
}

// NewBTPConn wraps link, which must preserve datagram boundaries.
func NewBTPConn(link net.Conn, config BTPConfig) (*BTPConn, error) {
	seg, err := btp.NewSegmenter(config.SegmentSize)
	if err != nil {
		return nil, err
	}
	lf := config.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &BTPConn{
		Conn:        link,
		segmenter:   seg,
		reassembler: btp.NewReassembler(lf),
		buf:         make([]byte, config.SegmentSize),
		log:         lf.NewLogger("btp"),
	}, nil
}

// Write sends msg as a run of segments.
func (c *BTPConn) Write(msg []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	segs, err := c.segmenter.Split(msg)
	if err != nil {
		return 0, err
	}
	for _, s := range segs {
		if _, err := c.Conn.Write(s.Encode()); err != nil {
			return 0, fmt.Errorf("transport: write segment %d: %w", s.Sequence, err)
		}
	}
	return len(msg), nil
}

// Read blocks until a full message has been reassembled. Malformed or
// out-of-order segments are logged and dropped along with any partial
// message.
func (c *BTPConn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		n, err := c.Conn.Read(c.buf)
		if err != nil {
			return 0, err
		}
		seg, err := btp.Decode(c.buf[:n])
		if err != nil {
			c.log.Debugf("dropping segment: %v", err)
			continue
		}
		msg, err := c.reassembler.Add(seg)
		if err != nil {
			if errors.Is(err, btp.ErrSequenceMismatch) {
				c.log.Warnf("segment lost: %v", err)
			} else {
				c.log.Debugf("dropping segment: %v", err)
			}
			continue
		}
		if msg == nil {
			continue
		}
		if len(msg) > len(b) {
			return 0, fmt.Errorf("transport: %d-byte message exceeds %d-byte read buffer", len(msg), len(b))
		}
		return copy(b, msg), nil
	}
}
