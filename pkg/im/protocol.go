// Package im builds and inspects the Interaction Model payloads a client
// exchange needs: invoke and timed requests, and status responses.
package im

// Opcode is an Interaction Model message opcode.
type Opcode uint8

const (
	OpcodeStatusResponse    Opcode = 0x01
	OpcodeReadRequest       Opcode = 0x02
	OpcodeSubscribeRequest  Opcode = 0x03
	OpcodeSubscribeResponse Opcode = 0x04
	OpcodeReportData        Opcode = 0x05
	OpcodeWriteRequest      Opcode = 0x06
	OpcodeWriteResponse     Opcode = 0x07
	OpcodeInvokeRequest     Opcode = 0x08
	OpcodeInvokeResponse    Opcode = 0x09
	OpcodeTimedRequest      Opcode = 0x0a
)

func (o Opcode) String() string {
	switch o {
	case OpcodeStatusResponse:
		return "StatusResponse"
	case OpcodeReadRequest:
		return "ReadRequest"
	case OpcodeSubscribeRequest:
		return "SubscribeRequest"
	case OpcodeSubscribeResponse:
		return "SubscribeResponse"
	case OpcodeReportData:
		return "ReportData"
	case OpcodeWriteRequest:
		return "WriteRequest"
	case OpcodeWriteResponse:
		return "WriteResponse"
	case OpcodeInvokeRequest:
		return "InvokeRequest"
	case OpcodeInvokeResponse:
		return "InvokeResponse"
	case OpcodeTimedRequest:
		return "TimedRequest"
	default:
		return "Unknown"
	}
}

// Revision is the Interaction Model revision this package speaks. It is
// carried under RevisionTag at the top level of request messages.
const Revision uint8 = 11

// RevisionTag is the context tag reserved for the IM revision.
const RevisionTag uint8 = 0xFF
