package gattc

import (
	"bytes"
	"fmt"

	"github.com/user/gattcore/att"
	"github.com/user/gattcore/logger"
)

const prepareWriteHdrSize = 5 // opcode + handle + offset

// WriteAttr writes an attribute value with acknowledgement. Values longer
// than payload-3 go through the prepared-write procedure and are committed
// with an Execute Write once every fragment has been echoed back intact.
func (c *Conn) WriteAttr(app AppID, handle uint16, value []byte) error {
	if err := checkWriteArgs(handle, value); err != nil {
		return err
	}
	var err error
	c.dispatch(func() {
		var p *procedure
		p, err = c.beginProcedure(app, opWrite)
		if err != nil {
			return
		}
		p.wrKind = WriteRequest
		p.wrHandle = handle
		p.wrValue = append([]byte{}, value...)
		c.actWrite(p, SecurityNone)
	})
	return err
}

// WriteNoRsp writes an attribute value without acknowledgement. The
// procedure completes as soon as the transport accepts the PDU. With
// SecuritySign the value goes out as a Signed Write Command using the
// connection's Signer.
func (c *Conn) WriteNoRsp(app AppID, handle uint16, value []byte, sec SecurityAction) error {
	if err := checkWriteArgs(handle, value); err != nil {
		return err
	}
	var err error
	c.dispatch(func() {
		var p *procedure
		p, err = c.beginProcedure(app, opWrite)
		if err != nil {
			return
		}
		p.wrKind = WriteNoResponse
		p.wrHandle = handle
		p.wrValue = append([]byte{}, value...)
		c.actWrite(p, sec)
	})
	return err
}

// PrepareWriteAttr queues fragments of a reliable write under application
// control; the engine never executes on its own. A value longer than
// payload-5 goes out as consecutive Prepare Write fragments and OnComplete
// receives a single echo: that of the last fragment, or of the first
// fragment whose echo did not match. offset is added to every fragment's
// wire offset.
func (c *Conn) PrepareWriteAttr(app AppID, handle, offset uint16, value []byte) error {
	if err := checkWriteArgs(handle, value); err != nil {
		return err
	}
	var err error
	c.dispatch(func() {
		var p *procedure
		p, err = c.beginProcedure(app, opWrite)
		if err != nil {
			return
		}
		p.wrKind = WritePrepare
		p.wrHandle = handle
		p.startOffset = offset
		p.wrValue = append([]byte{}, value...)
		c.actWrite(p, SecurityNone)
	})
	return err
}

// ExecuteWrite commits or cancels the server's prepared-write queue on
// behalf of the application, pairing with PrepareWriteAttr.
func (c *Conn) ExecuteWrite(app AppID, commit bool) error {
	var err error
	c.dispatch(func() {
		var p *procedure
		p, err = c.beginProcedure(app, opWrite)
		if err != nil {
			return
		}
		p.wrKind = WriteRequest
		c.sendExecuteWrite(p, commit)
	})
	return err
}

func checkWriteArgs(handle uint16, value []byte) error {
	if handle == 0 {
		return fmt.Errorf("gattc: invalid handle 0")
	}
	if len(value) > MaxAttrLen {
		return fmt.Errorf("gattc: value length %d exceeds %d", len(value), MaxAttrLen)
	}
	return nil
}

func (c *Conn) actWrite(p *procedure, sec SecurityAction) {
	switch p.wrKind {
	case WriteNoResponse:
		p.start = p.wrHandle
		if sec == SecuritySign {
			if c.signer == nil {
				logger.Error(c.tag, "signed write requested without a signer")
				c.endOperation(p, StatusError, Completion{})
				return
			}
			cmd := &att.WriteCommand{Handle: p.wrHandle, Value: p.wrValue}
			sig, err := c.signer.Sign(cmd.Encode())
			if err != nil {
				logger.Error(c.tag, "signing failed: %v", err)
				c.endOperation(p, StatusError, Completion{})
				return
			}
			signed := &att.SignedWriteCommand{Handle: p.wrHandle, Value: p.wrValue, Signature: sig}
			c.enqueueSend(p, att.OpSignedWriteCommand, signed.Encode())
			return
		}
		c.enqueueSend(p, att.OpWriteCommand,
			(&att.WriteCommand{Handle: p.wrHandle, Value: p.wrValue}).Encode())

	case WriteRequest:
		if len(p.wrValue) <= int(c.payloadSize)-3 {
			p.start = p.wrHandle
			c.enqueueSend(p, att.OpWriteRequest,
				(&att.WriteRequest{Handle: p.wrHandle, Value: p.wrValue}).Encode())
			return
		}
		c.sendPrepareWrite(p)

	case WritePrepare:
		c.sendPrepareWrite(p)

	default:
		c.endOperation(p, StatusInternalError, Completion{})
	}
}

// sendPrepareWrite queues the next fragment. The fragment size is bounded by
// payload-5 (opcode, handle and offset precede the value).
func (c *Conn) sendPrepareWrite(p *procedure) {
	toSend := len(p.wrValue) - p.wrOffset
	if max := int(c.payloadSize) - prepareWriteHdrSize; toSend > max {
		toSend = max
	}
	p.start = p.wrHandle

	offset := p.wrOffset
	if p.wrKind == WritePrepare {
		offset += int(p.startOffset)
	}

	p.counter = toSend
	c.enqueueSend(p, att.OpPrepareWriteRequest, (&att.PrepareWriteRequest{
		Handle: p.wrHandle,
		Offset: uint16(offset),
		Value:  p.wrValue[p.wrOffset : p.wrOffset+toSend],
	}).Encode())
}

func (c *Conn) sendExecuteWrite(p *procedure, commit bool) {
	c.enqueueSend(p, att.OpExecuteWriteRequest,
		(&att.ExecuteWriteRequest{Commit: commit}).Encode())
}

// processPrepWriteRsp verifies one fragment echo. The echoed handle must
// match, the echoed length must equal the bytes just sent, and the echoed
// bytes must equal the source slice; any mismatch cancels the server queue
// and fails the procedure. On a clean echo the cursor advances and either
// the next fragment goes out or the queue is committed.
func (c *Conn) processPrepWriteRsp(p *procedure, rsp *att.PrepareWriteResponse) {
	terminate := false
	commit := true

	if rsp.Handle != p.wrHandle ||
		len(rsp.Value) != p.counter ||
		p.wrOffset+len(rsp.Value) > len(p.wrValue) ||
		!bytes.Equal(rsp.Value, p.wrValue[p.wrOffset:p.wrOffset+len(rsp.Value)]) {
		logger.Error(c.tag, "prepare write echo mismatch on handle 0x%04X", rsp.Handle)
		p.status = StatusError
		commit = false
		terminate = true
	} else {
		p.status = StatusSuccess
		p.wrOffset += len(rsp.Value)
		if p.wrOffset >= len(p.wrValue) {
			terminate = true
		}
	}

	if terminate && p.wrKind != WritePrepare {
		c.sendExecuteWrite(p, commit)
		return
	}
	if !terminate {
		c.sendPrepareWrite(p)
		return
	}

	// application-driven prepare: hand the echo back, nothing auto-executes
	c.endOperation(p, p.status, Completion{
		Handle: rsp.Handle,
		Offset: rsp.Offset,
		Value:  append([]byte{}, rsp.Value...),
	})
}

// processPrepWriteInvalid handles a prepare-write response too short to
// parse: the procedure fails with InvalidPDU. During a regular long write
// the server queue is cancelled first; an application-driven prepare leaves
// the queue to the application.
func (c *Conn) processPrepWriteInvalid(p *procedure) {
	logger.Error(c.tag, "illegal prepare write response length")
	if p.wrKind != WritePrepare {
		p.status = StatusInvalidPDU
		c.sendExecuteWrite(p, false)
		return
	}
	c.endOperation(p, StatusInvalidPDU, Completion{})
}

// processWriteRsp completes a plain acknowledged write.
func (c *Conn) processWriteRsp(p *procedure) {
	if p.op != opWrite {
		logger.Warn(c.tag, "unexpected write response, dropping")
		return
	}
	c.endOperation(p, StatusSuccess, Completion{Handle: p.wrHandle})
}

// processExecWriteRsp ends a long write with the status accumulated while
// the fragments were echoed.
func (c *Conn) processExecWriteRsp(p *procedure) {
	c.endOperation(p, p.status, Completion{Handle: p.wrHandle})
}
