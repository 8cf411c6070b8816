package main

import (
	"context"

	"github.com/backkem/protogate/pkg/im"
	"github.com/backkem/protogate/pkg/message"
	"github.com/backkem/protogate/pkg/session"
	"github.com/pion/logging"
)

// responder answers interaction model requests on sess: timed requests get
// a success status, invokes are echoed back as the invoke response.
// Duplicate counters and standalone acks are dropped. It returns when ctx
// ends or the session fails.
func responder(ctx context.Context, sess session.Session, log logging.LeveledLogger) {
	var (
		last    uint32
		seen    bool
		counter = session.NewMessageCounter()
	)
	for {
		raw, err := sess.ReceiveRaw(ctx)
		if err != nil {
			return
		}
		req, err := sess.Decode(raw)
		if err != nil {
			log.Warnf("responder: drop frame: %v", err)
			continue
		}
		if seen && req.Header.MessageCounter <= last {
			continue
		}
		seen, last = true, req.Header.MessageCounter
		if req.Protocol == nil || message.IsStandaloneAck(req.Protocol) || req.Protocol.ProtocolID != message.ProtocolInteractionModel {
			continue
		}

		var (
			opcode  im.Opcode
			payload []byte
		)
		switch im.Opcode(req.Protocol.ProtocolOpcode) {
		case im.OpcodeTimedRequest:
			opcode = im.OpcodeStatusResponse
			payload, err = (&im.StatusResponse{Status: im.StatusSuccess}).Encode()
		case im.OpcodeInvokeRequest:
			opcode = im.OpcodeInvokeResponse
			payload = req.Payload
		default:
			opcode = im.OpcodeStatusResponse
			payload, err = (&im.StatusResponse{Status: im.StatusInvalidAction}).Encode()
		}
		if err != nil {
			log.Errorf("responder: %v", err)
			return
		}

		c, err := counter.Next()
		if err != nil {
			log.Errorf("responder: %v", err)
			return
		}
		resp := &message.Frame{
			Header: message.MessageHeader{SessionID: sess.PeerSessionID(), MessageCounter: c},
			Protocol: &message.ProtocolHeader{
				ProtocolID:          message.ProtocolInteractionModel,
				ProtocolOpcode:      uint8(opcode),
				ExchangeID:          req.Protocol.ExchangeID,
				Acknowledgement:     req.Protocol.Reliability,
				AckedMessageCounter: req.Header.MessageCounter,
			},
			Payload: payload,
		}
		if src, ok := sess.SourceNodeID(); ok {
			resp.Header.SourcePresent = true
			resp.Header.SourceNodeID = src
		}
		if dst, ok := sess.DestinationNodeID(); ok {
			resp.Header.DestinationType = message.DestinationNodeID
			resp.Header.DestinationNodeID = dst
		}
		data, err := sess.Encode(resp)
		if err != nil {
			log.Errorf("responder: encode: %v", err)
			return
		}
		if err := sess.SendRaw(ctx, data); err != nil {
			return
		}
		log.Debugf("responder: %s answered with %s", im.Opcode(req.Protocol.ProtocolOpcode), opcode)
	}
}
