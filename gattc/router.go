package gattc

import (
	"github.com/user/gattcore/att"
	"github.com/user/gattcore/logger"
)

// Deliver hands one complete inbound ATT PDU to the engine. It is the
// transport's callback and must be serialized with the other event sources.
func (c *Conn) Deliver(pdu []byte) {
	c.dispatch(func() { c.handlePDU(pdu) })
}

func (c *Conn) handlePDU(pdu []byte) {
	if c.closed || len(pdu) == 0 {
		return
	}
	opcode := pdu[0]
	bodyLen := len(pdu) - 1
	logger.Trace(c.tag, "rx %s (%d bytes)", att.OpcodeName(opcode), len(pdu))

	// server-initiated PDUs bypass request/response pairing
	if att.IsServerInitiated(opcode) {
		if bodyLen >= int(c.payloadSize) {
			logger.Error(c.tag, "oversize notification: %d body bytes, PDU size %d", bodyLen, c.payloadSize)
			return
		}
		c.processNotification(opcode, pdu)
		return
	}

	cmd := c.outstanding()
	if cmd == nil {
		logger.Warn(c.tag, "unsolicited %s, dropping", att.OpcodeName(opcode))
		return
	}

	// a response is accepted only when its opcode pairs with the
	// outstanding request, or it is an Error Response; anything else is
	// dropped without touching state and the response timer keeps running
	expected := att.ResponseOpcodeFor(cmd.opcode)
	if opcode != expected && opcode != att.OpErrorResponse {
		logger.Warn(c.tag, "wrong response: got %s while waiting for %s, ignoring",
			att.OpcodeName(opcode), att.OpcodeName(expected))
		return
	}

	c.popOutstanding()
	p := cmd.proc

	if p == nil || p.done {
		// the procedure was cancelled; drain the late response silently
		logger.Debug(c.tag, "response for cancelled procedure, draining")
		c.sendNext()
		return
	}

	c.stopRespTimer(p)
	p.retryCount = 0

	// the response may not exceed the agreed MTU (body excludes the opcode)
	if bodyLen >= int(c.payloadSize) {
		logger.Error(c.tag, "oversize response: %d body bytes, PDU size %d", bodyLen, c.payloadSize)
		c.endOperation(p, StatusError, Completion{})
		c.sendNext()
		return
	}

	c.routeResponse(p, opcode, pdu)
	c.sendNext()
}

// routeResponse decodes the accepted response and feeds the procedure
// engine. Decode failures (a PDU under its opcode-specific minimum) end the
// procedure with InvalidPdu, except where the reference engine demands
// more: a truncated Error Response still fails the request with a
// synthesized "unknown reason", a truncated MTU response still aligns the
// channel, and a truncated prepare-write echo cancels the server queue.
func (c *Conn) routeResponse(p *procedure, opcode uint8, pdu []byte) {
	pkt, err := att.Decode(pdu)
	if err != nil {
		logger.Error(c.tag, "malformed %s: %v", att.OpcodeName(opcode), err)
		switch opcode {
		case att.OpErrorResponse:
			c.processErrorRsp(p, &att.ErrorResponse{Reason: att.ErrUnknownReason})
		case att.OpExchangeMTUResponse:
			c.processMTURsp(p, nil)
		case att.OpPrepareWriteResponse:
			c.processPrepWriteInvalid(p)
		default:
			c.endOperation(p, StatusInvalidPDU, Completion{})
		}
		return
	}

	switch rsp := pkt.(type) {
	case *att.ErrorResponse:
		c.processErrorRsp(p, rsp)
	case *att.ExchangeMTUResponse:
		c.processMTURsp(p, rsp)
	case *att.FindInformationResponse:
		c.processFindInfoRsp(p, rsp)
	case *att.FindByTypeValueResponse:
		c.processFindByTypeValueRsp(p, rsp)
	case *att.ReadByTypeResponse:
		c.processReadByTypeRsp(p, att.OpReadByTypeResponse, rsp.Length, rsp.AttributeData)
	case *att.ReadByGroupTypeResponse:
		c.processReadByTypeRsp(p, att.OpReadByGroupTypeResponse, rsp.Length, rsp.AttributeData)
	case *att.ReadResponse:
		c.processReadRsp(p, rsp.Value)
	case *att.ReadBlobResponse:
		c.processReadRsp(p, rsp.Value)
	case *att.ReadMultipleResponse:
		c.processReadRsp(p, rsp.Values)
	case *att.WriteResponse:
		c.processWriteRsp(p)
	case *att.PrepareWriteResponse:
		c.processPrepWriteRsp(p, rsp)
	case *att.ExecuteWriteResponse:
		c.processExecWriteRsp(p)
	default:
		logger.Error(c.tag, "unhandled response %s", att.OpcodeName(opcode))
	}
}

// isRangingOpcode reports whether a request opcode belongs to a ranging
// discovery procedure, where Attribute Not Found just means the end of the
// list.
func isRangingOpcode(op uint8) bool {
	switch op {
	case att.OpReadByGroupTypeRequest, att.OpFindByTypeValueRequest,
		att.OpReadByTypeRequest, att.OpFindInformationRequest:
		return true
	}
	return false
}

// processErrorRsp translates a server error through the remap rules before
// surfacing it: Attribute Not Found ends a ranging discovery successfully,
// Attribute Not Long on the first blob after a read means the attribute was
// short after all, and a prepare-write failure during a regular long write
// cancels the server queue before reporting.
func (c *Conn) processErrorRsp(p *procedure, e *att.ErrorResponse) {
	logger.Debug(c.tag, "error response: %s for %s on 0x%04X",
		att.ErrorName(e.Reason), att.OpcodeName(e.RequestOpcode), e.Handle)

	if p.op == opDiscovery {
		status := Status(e.Reason)
		if isRangingOpcode(e.RequestOpcode) && e.Reason == att.ErrAttributeNotFound {
			logger.Debug(c.tag, "discovery completed")
			status = StatusSuccess
		}
		c.endOperation(p, status, Completion{})
		return
	}

	if p.op == opWrite && p.wrKind == WriteRequest &&
		e.RequestOpcode == att.OpPrepareWriteRequest && e.Handle == p.wrHandle {
		p.status = Status(e.Reason)
		c.sendExecuteWrite(p, false)
		return
	}

	if p.op == opRead && p.readKind == ReadByHandle &&
		e.RequestOpcode == att.OpReadBlobRequest &&
		p.blobsSent == 1 && e.Reason == att.ErrAttributeNotLong {
		// the attribute was not long after all; what the initial read
		// returned is the whole value
		c.endOperation(p, StatusSuccess, Completion{Value: p.attrBuf})
		return
	}

	c.endOperation(p, Status(e.Reason), Completion{})
}
