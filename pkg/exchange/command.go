package exchange

import (
	"context"
	"fmt"

	"github.com/backkem/protogate/pkg/im"
	"github.com/backkem/protogate/pkg/message"
)

// SendCommand invokes one command on endpoint/cluster and returns the
// response frame. params are the command fields in order; nil entries are
// skipped. An unsupported parameter type fails with
// im.ErrUnsupportedParameterType before anything is sent.
func (e *Exchange) SendCommand(ctx context.Context, endpoint uint16, cluster, command uint32, params []any, timed bool) (*message.Frame, error) {
	payload, err := invokePayload(endpoint, cluster, command, params, timed)
	if err != nil {
		return nil, err
	}
	return e.SendAndReceive(ctx, payload, message.ProtocolInteractionModel, uint8(im.OpcodeInvokeRequest))
}

// SendTimedCommand opens a timed interaction of timeoutMs milliseconds and,
// if the peer accepts it, sends the command with the timed flag set.
//
// When the peer rejects the timed request or does not answer, the status
// is logged and (nil, nil) is returned without sending the command.
func (e *Exchange) SendTimedCommand(ctx context.Context, timeoutMs uint16, endpoint uint16, cluster, command uint32, params []any) (*message.Frame, error) {
	invoke, err := invokePayload(endpoint, cluster, command, params, true)
	if err != nil {
		return nil, err
	}

	timed := im.TimedRequest{Timeout: timeoutMs}
	payload, err := timed.Encode()
	if err != nil {
		return nil, fmt.Errorf("exchange: timed request: %w", err)
	}

	resp, err := e.SendAndReceive(ctx, payload, message.ProtocolInteractionModel, uint8(im.OpcodeTimedRequest))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		e.log.Warnf("%s: no status for timed request, command %#x/%#x not sent", e.name, cluster, command)
		return nil, nil
	}

	status := im.ParseStatus(resp.Payload, e.log)
	if !status.Status.IsSuccess() {
		clusterStatus := "none"
		if status.ClusterStatus != nil {
			clusterStatus = fmt.Sprintf("%#02x", *status.ClusterStatus)
		}
		e.log.Warnf("%s: timed request rejected: status %s, cluster status %s", e.name, status.Status, clusterStatus)
		return nil, nil
	}

	return e.SendAndReceive(ctx, invoke, message.ProtocolInteractionModel, uint8(im.OpcodeInvokeRequest))
}

func invokePayload(endpoint uint16, cluster, command uint32, params []any, timed bool) ([]byte, error) {
	req := im.InvokeRequest{
		TimedRequest: timed,
		Path: im.CommandPath{
			Endpoint: endpoint,
			Cluster:  cluster,
			Command:  command,
		},
		Fields: params,
	}
	payload, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("exchange: command %#x/%#x: %w", cluster, command, err)
	}
	return payload, nil
}
