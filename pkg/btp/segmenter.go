package btp

import (
	"fmt"

	"github.com/pion/logging"
)

// Segmenter splits messages into data segments no larger than the
// negotiated segment size. Sequence numbers continue across messages and
// wrap at 255.
type Segmenter struct {
	segmentSize int
	nextSeq     uint8
}

// NewSegmenter creates a Segmenter for segments of at most segmentSize bytes
// (the ATT MTU minus the 3-byte ATT header).
func NewSegmenter(segmentSize int) (*Segmenter, error) {
	// A Beginning segment needs 4 header bytes plus at least one payload byte.
	if segmentSize < 5 {
		return nil, fmt.Errorf("btp: segment size %d too small", segmentSize)
	}
	return &Segmenter{segmentSize: segmentSize}, nil
}

// Split returns the segments carrying msg, in send order.
func (s *Segmenter) Split(msg []byte) ([]*Segment, error) {
	if len(msg) > 0xFFFF {
		return nil, fmt.Errorf("btp: message of %d bytes exceeds the length field", len(msg))
	}

	var segs []*Segment
	off := 0
	for {
		seg := &Segment{Sequence: s.nextSeq}
		s.nextSeq++

		if off == 0 {
			seg.Beginning = true
			seg.MessageLength = uint16(len(msg))
		} else {
			seg.Continuing = true
		}

		n := min(s.segmentSize-seg.HeaderSize(), len(msg)-off)
		seg.Payload = msg[off : off+n]
		off += n

		if off == len(msg) {
			seg.Ending = true
			seg.Continuing = false
			segs = append(segs, seg)
			return segs, nil
		}
		segs = append(segs, seg)
	}
}

// Reassembler rebuilds messages from data segments received in order.
// Any protocol violation discards the partial message.
type Reassembler struct {
	expectedSeq uint8
	inProgress  bool
	length      int
	buf         []byte

	log logging.LeveledLogger
}

// NewReassembler creates a Reassembler expecting sequence number 0 first.
func NewReassembler(loggerFactory logging.LoggerFactory) *Reassembler {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Reassembler{log: loggerFactory.NewLogger("btp")}
}

// Add consumes one segment. It returns the complete message once the Ending
// segment arrives, and nil before that.
func (r *Reassembler) Add(seg *Segment) ([]byte, error) {
	if seg.Handshake || seg.Management {
		return nil, fmt.Errorf("%w: management segment on data path", ErrUnexpectedSegment)
	}
	if seg.Sequence != r.expectedSeq {
		want := r.expectedSeq
		r.reset()
		r.expectedSeq = seg.Sequence + 1
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSequenceMismatch, seg.Sequence, want)
	}
	r.expectedSeq++

	switch {
	case seg.Beginning:
		if r.inProgress {
			r.log.Debugf("beginning segment %d discards %d buffered bytes", seg.Sequence, len(r.buf))
			r.reset()
			return nil, fmt.Errorf("%w: beginning inside a message", ErrUnexpectedSegment)
		}
		r.inProgress = true
		r.length = int(seg.MessageLength)
		r.buf = make([]byte, 0, r.length)
	case seg.Continuing || seg.Ending:
		if !r.inProgress {
			return nil, fmt.Errorf("%w: continuation without beginning", ErrUnexpectedSegment)
		}
	default:
		// Ack-only segment: consumes a sequence number, carries no data.
		return nil, nil
	}

	r.buf = append(r.buf, seg.Payload...)
	if len(r.buf) > r.length {
		r.reset()
		return nil, fmt.Errorf("%w: more than %d bytes", ErrLengthMismatch, r.length)
	}
	if !seg.Ending {
		return nil, nil
	}

	msg := r.buf
	if len(msg) != r.length {
		r.reset()
		return nil, fmt.Errorf("%w: got %d, want %d", ErrLengthMismatch, len(msg), r.length)
	}
	r.reset()
	return msg, nil
}

func (r *Reassembler) reset() {
	r.inProgress = false
	r.length = 0
	r.buf = nil
}
