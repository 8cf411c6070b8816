package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/backkem/protogate/pkg/message"
	"github.com/backkem/protogate/pkg/session"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// Exchange is a single conversation with a peer, driven by the local node
// as initiator. Every frame it sends carries the I flag.
//
// Inbound frames are read by a background loop, filtered by session ID and
// counter, and queued for SendAndReceive and WaitForNextMessage. Waits that
// time out or are cancelled return a nil frame and a nil error; the exchange
// stays usable.
type Exchange struct {
	id      uint16
	session session.Session
	config  Config
	log     logging.LeveledLogger
	name    string
	traceID string

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	done     chan struct{}

	queue chan *message.Frame

	acks       *ackTracker
	retransmit *retransmitter

	// sendMu orders counter allocation with transmission.
	sendMu sync.Mutex

	mu           sync.Mutex
	state        State
	waiters      int
	lastActivity time.Time
	idleTimer    *time.Timer

	closeOnce sync.Once
}

// New opens an exchange over sess. It fails with ErrExchangeAlreadyActive
// while another exchange holds config.Registry.
func New(exchangeID uint16, sess session.Session, config Config) (*Exchange, error) {
	if sess == nil {
		return nil, ErrNilSession
	}
	config = config.withDefaults()

	traceID := uuid.NewString()
	e := &Exchange{
		id:           exchangeID,
		session:      sess,
		config:       config,
		log:          config.LoggerFactory.NewLogger("exchange"),
		name:         fmt.Sprintf("exchange %#04x [%s]", exchangeID, traceID[:8]),
		traceID:      traceID,
		loopDone:     make(chan struct{}),
		done:         make(chan struct{}),
		queue:        make(chan *message.Frame, QueueCapacity),
		state:        StateActive,
		lastActivity: time.Now(),
	}
	if err := config.Registry.acquire(e); err != nil {
		return nil, err
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.acks = newAckTracker(config.StandaloneAckTimeout, e.sendStandaloneAck)
	e.retransmit = &retransmitter{
		backoff:          NewBackoff(config.Random),
		baseInterval:     config.RetryInterval,
		maxTransmissions: config.MaxTransmissions,
		resend:           e.resend,
		giveUp:           e.onRetransmitExhausted,
	}
	e.idleTimer = time.AfterFunc(config.IdleTimeout, e.onIdle)

	go e.receiveLoop()

	e.log.Debugf("%s: opened on session %d (trace %s)", e.name, sess.LocalSessionID(), traceID)
	return e, nil
}

// ID returns the exchange ID.
func (e *Exchange) ID() uint16 { return e.id }

// State returns the current lifecycle state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Done is closed once the exchange has fully closed, whether by Close or
// by the idle watchdog.
func (e *Exchange) Done() <-chan struct{} { return e.done }

// SendAndReceive sends payload as an initiator frame and waits up to the
// response timeout for its response. Frames left queued by an earlier
// request, and frames acknowledging an earlier counter, are dropped.
//
// A timeout, a cancelled ctx, or a status report from the peer all return
// (nil, nil). Errors are reserved for failures to send.
func (e *Exchange) SendAndReceive(ctx context.Context, payload []byte, protocolID message.ProtocolID, opcode uint8) (*message.Frame, error) {
	if err := e.beginWait(); err != nil {
		return nil, err
	}
	defer e.endWait()

	e.dropUnclaimed()

	p := &message.ProtocolHeader{
		ProtocolID:     protocolID,
		ProtocolOpcode: opcode,
		ExchangeID:     e.id,
		Initiator:      true,
	}
	counter, err := e.send(ctx, p, payload)
	if err != nil {
		return nil, err
	}

	// A frame acknowledging an earlier counter answers an earlier request.
	f := e.wait(ctx, "response", func(f *message.Frame) bool {
		return !f.Protocol.Acknowledgement || f.Protocol.AckedMessageCounter == counter
	})
	if f == nil {
		return nil, nil
	}
	if message.IsErrorReport(f.Protocol) {
		e.log.Warnf("%s: peer returned status report: %x", e.name, f.Payload)
		return nil, nil
	}
	return f, nil
}

// WaitForNextMessage waits up to the response timeout for the next inbound
// frame. A timeout or a cancelled ctx returns (nil, nil).
func (e *Exchange) WaitForNextMessage(ctx context.Context) (*message.Frame, error) {
	if err := e.beginWait(); err != nil {
		return nil, err
	}
	defer e.endWait()

	return e.wait(ctx, "message", nil), nil
}

// Acknowledge sends a standalone acknowledgement of counter and records it
// as the last acknowledged counter.
func (e *Exchange) Acknowledge(ctx context.Context, counter uint32) error {
	e.mu.Lock()
	open := e.state.CanSend()
	e.mu.Unlock()
	if !open {
		return ErrExchangeClosed
	}
	return e.sendAck(ctx, counter)
}

// Close shuts the exchange down and releases its registry slot. Inbound
// frames are still processed for the close grace period. Close is
// idempotent.
func (e *Exchange) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.state = StateClosing
		e.idleTimer.Stop()
		e.mu.Unlock()

		grace := time.NewTimer(e.config.CloseGrace)
		select {
		case <-grace.C:
		case <-e.loopDone:
			grace.Stop()
		}

		e.acks.stop()
		e.retransmit.stop()
		e.cancel()
		<-e.loopDone
		e.config.Registry.release(e)

		e.mu.Lock()
		e.state = StateClosed
		e.mu.Unlock()

		e.log.Debugf("%s: closed (trace %s)", e.name, e.traceID)
		close(e.done)
	})
	return nil
}

// send fills in the message header from the session, piggybacks any
// pending acknowledgement, encodes and transmits one frame.
func (e *Exchange) send(ctx context.Context, p *message.ProtocolHeader, payload []byte) (uint32, error) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	if !p.Acknowledgement {
		if counter, ok := e.acks.pending(); ok {
			p.Acknowledgement = true
			p.AckedMessageCounter = counter
		}
	}
	p.Reliability = e.session.RequiresReliability() && !message.IsStandaloneAck(p)

	counter, err := e.session.NextMessageCounter()
	if err != nil {
		return 0, fmt.Errorf("exchange: next message counter: %w", err)
	}

	f := &message.Frame{
		Header: message.MessageHeader{
			SessionID:      e.session.PeerSessionID(),
			MessageCounter: counter,
		},
		Protocol: p,
		Payload:  payload,
	}
	if id, ok := e.session.SourceNodeID(); ok {
		f.Header.SourcePresent = true
		f.Header.SourceNodeID = id
	}
	if id, ok := e.session.DestinationNodeID(); ok {
		f.Header.DestinationType = message.DestinationNodeID
		f.Header.DestinationNodeID = id
	}

	data, err := e.session.Encode(f)
	if err != nil {
		return 0, fmt.Errorf("exchange: encode: %w", err)
	}
	if err := e.session.SendRaw(ctx, data); err != nil {
		return 0, fmt.Errorf("exchange: send: %w", err)
	}

	if p.Acknowledgement {
		e.acks.markAcked(p.AckedMessageCounter)
	}
	if p.Reliability && e.config.MaxTransmissions > 1 {
		e.retransmit.track(counter, data)
	}
	e.touch()

	e.log.Tracef("%s: sent %s opcode %#02x counter %d (ack %v/%d, reliable %v)",
		e.name, p.ProtocolID, p.ProtocolOpcode, counter, p.Acknowledgement, p.AckedMessageCounter, p.Reliability)
	return counter, nil
}

func (e *Exchange) sendAck(ctx context.Context, counter uint32) error {
	_, err := e.send(ctx, &message.ProtocolHeader{
		ProtocolID:          message.ProtocolSecureChannel,
		ProtocolOpcode:      message.OpcodeStandaloneAck,
		ExchangeID:          e.id,
		Initiator:           true,
		Acknowledgement:     true,
		AckedMessageCounter: counter,
	}, nil)
	return err
}

func (e *Exchange) sendStandaloneAck(counter uint32) {
	if err := e.sendAck(e.ctx, counter); err != nil && e.ctx.Err() == nil {
		e.log.Warnf("%s: standalone ack for %d: %v", e.name, counter, err)
	}
}

func (e *Exchange) resend(data []byte) {
	if err := e.session.SendRaw(e.ctx, data); err != nil && e.ctx.Err() == nil {
		e.log.Warnf("%s: retransmit: %v", e.name, err)
		return
	}
	if counter, n, ok := e.retransmit.outstanding(); ok {
		e.log.Debugf("%s: retransmitted counter %d (transmission %d)", e.name, counter, n)
	}
}

func (e *Exchange) onRetransmitExhausted(counter uint32, sendCount int) {
	e.log.Warnf("%s: counter %d unacknowledged after %d transmissions", e.name, counter, sendCount)
}

// wait returns the next queued frame accepted by match, or nil on timeout,
// cancellation or close. Frames match rejects are dropped. A nil match
// accepts everything.
func (e *Exchange) wait(ctx context.Context, what string, match func(*message.Frame) bool) *message.Frame {
	timer := time.NewTimer(e.config.ResponseTimeout)
	defer timer.Stop()

	for {
		select {
		case f := <-e.queue:
			if match == nil || match(f) {
				return f
			}
			e.log.Infof("%s: dropping stale frame counter %d (acks %d)",
				e.name, f.Header.MessageCounter, f.Protocol.AckedMessageCounter)
		case <-timer.C:
			e.log.Infof("%s: no %s within %v", e.name, what, e.config.ResponseTimeout)
			return nil
		case <-ctx.Done():
			e.log.Infof("%s: wait for %s cancelled: %v", e.name, what, ctx.Err())
			return nil
		case <-e.ctx.Done():
			e.log.Debugf("%s: closed while waiting for %s", e.name, what)
			return nil
		}
	}
}

// dropUnclaimed discards frames that arrived after their request stopped
// waiting, so a new request never receives an earlier answer.
func (e *Exchange) dropUnclaimed() {
	for {
		select {
		case f := <-e.queue:
			e.log.Infof("%s: dropping unclaimed frame counter %d opcode %#02x: %x",
				e.name, f.Header.MessageCounter, f.Protocol.ProtocolOpcode, f.Payload)
		default:
			return
		}
	}
}

func (e *Exchange) receiveLoop() {
	defer close(e.loopDone)

	for {
		raw, err := e.session.ReceiveRaw(e.ctx)
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			if errors.Is(err, session.ErrClosed) {
				e.log.Errorf("%s: session closed, closing exchange: %v", e.name, err)
				e.abandon()
				return
			}
			e.log.Warnf("%s: receive: %v", e.name, err)
			select {
			case <-time.After(receiveRetryDelay):
				continue
			case <-e.ctx.Done():
				return
			}
		}
		if !e.handleInbound(raw) {
			return
		}
	}
}

// abandon starts closing the exchange from the receive loop after the
// session went away. Sends fail from here on; Close runs once the loop has
// returned.
func (e *Exchange) abandon() {
	e.mu.Lock()
	if e.state.CanSend() {
		e.state = StateClosing
	}
	e.mu.Unlock()
	go e.Close()
}

// handleInbound processes one datagram. It returns false once the exchange
// has been cancelled while blocked on a full queue.
func (e *Exchange) handleInbound(raw []byte) bool {
	peek, err := message.DecodeFrame(raw, false)
	if err != nil {
		e.log.Warnf("%s: dropping undecodable frame: %v: %x", e.name, err, raw)
		return true
	}
	if local := e.session.LocalSessionID(); peek.Header.SessionID != local {
		e.log.Infof("%s: dropping frame for session %d, expected %d", e.name, peek.Header.SessionID, local)
		return true
	}

	f, err := e.session.Decode(raw)
	if err != nil {
		e.log.Warnf("%s: dropping frame: %v: %x", e.name, err, raw)
		return true
	}
	e.touch()

	counter := f.Header.MessageCounter
	reliable := f.Protocol.Reliability

	if !e.acks.accept(counter) {
		e.log.Debugf("%s: duplicate counter %d", e.name, counter)
		if reliable {
			e.sendStandaloneAck(counter)
		}
		return true
	}

	if f.Protocol.Acknowledgement && e.retransmit.ack(f.Protocol.AckedMessageCounter) {
		e.log.Tracef("%s: counter %d acknowledged", e.name, f.Protocol.AckedMessageCounter)
	}

	if message.IsStandaloneAck(f.Protocol) {
		if reliable {
			e.sendStandaloneAck(counter)
		}
		return true
	}
	if reliable {
		e.acks.schedule()
	}

	select {
	case e.queue <- f:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *Exchange) beginWait() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.CanSend() {
		return ErrExchangeClosed
	}
	e.waiters++
	e.state = StateAwaitingResponse
	e.lastActivity = time.Now()
	e.idleTimer.Stop()
	return nil
}

func (e *Exchange) endWait() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.waiters--
	e.lastActivity = time.Now()
	if e.waiters == 0 && e.state == StateAwaitingResponse {
		e.state = StateActive
		e.idleTimer.Reset(e.config.IdleTimeout)
	}
}

func (e *Exchange) touch() {
	e.mu.Lock()
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

// onIdle is the watchdog. It re-arms itself until IdleTimeout has passed
// since the last activity with nobody waiting.
func (e *Exchange) onIdle() {
	e.mu.Lock()
	if e.state != StateActive || e.waiters > 0 {
		e.mu.Unlock()
		return
	}
	if remaining := e.config.IdleTimeout - time.Since(e.lastActivity); remaining > 0 {
		e.idleTimer.Reset(remaining)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.log.Infof("%s: idle for %v, closing (trace %s)", e.name, e.config.IdleTimeout, e.traceID)
	_ = e.Close()
}
