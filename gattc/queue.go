package gattc

import (
	"github.com/user/gattcore/att"
	"github.com/user/gattcore/logger"
)

// command is one entry of the per-connection FIFO. toSend flips to false
// once the PDU has been handed to the transport; a request then stays at the
// head until its response (or timeout) arrives.
type command struct {
	opcode uint8
	pdu    []byte
	proc   *procedure
	toSend bool
}

// enqueueSend appends a command for p and drains the queue. If the command
// is dropped on a transport error the procedure ends here with StatusError.
func (c *Conn) enqueueSend(p *procedure, opcode uint8, pdu []byte) {
	if c.closed {
		c.endOperation(p, StatusLinkLost, Completion{})
		return
	}
	logger.Trace(c.tag, "enqueue %s (%d bytes)", att.OpcodeName(opcode), len(pdu))
	c.cmdQ = append(c.cmdQ, &command{opcode: opcode, pdu: pdu, proc: p, toSend: true})
	c.sendNext()
}

// sendNext pushes queued commands to the transport until a request goes out
// or the queue runs dry. One request may be outstanding at a time: a head
// entry with toSend cleared blocks the queue until the router pops it.
//
// Write commands carry no response, so they complete right here with the
// transport status; draining continues after one the transport accepted and
// stops after a congested one. For requests congestion is transparent: the
// transport holds the PDU, the entry just stops being resendable.
func (c *Conn) sendNext() bool {
	for len(c.cmdQ) > 0 {
		cmd := c.cmdQ[0]
		if !cmd.toSend || cmd.pdu == nil {
			return false
		}

		st := c.tr.Send(cmd.pdu)
		if st == TxFailed {
			logger.Error(c.tag, "transport rejected %s, dropping", att.OpcodeName(cmd.opcode))
			c.cmdQ = c.cmdQ[1:]
			c.endOperation(cmd.proc, StatusError, Completion{})
			continue
		}

		cmd.toSend = false
		cmd.pdu = nil

		if cmd.opcode == att.OpWriteCommand || cmd.opcode == att.OpSignedWriteCommand {
			c.cmdQ = c.cmdQ[1:]
			status := StatusSuccess
			if st == TxCongested {
				status = StatusCongested
			}
			c.endOperation(cmd.proc, status, Completion{})
			if st == TxOK {
				continue
			}
			return true
		}

		c.startRespTimer(cmd.proc)
		return true
	}
	return false
}

// outstanding returns the head command if it has been sent and awaits a
// response.
func (c *Conn) outstanding() *command {
	if len(c.cmdQ) == 0 || c.cmdQ[0].toSend {
		return nil
	}
	return c.cmdQ[0]
}

// popOutstanding removes the head command once its response is accepted.
func (c *Conn) popOutstanding() {
	if len(c.cmdQ) > 0 {
		c.cmdQ = c.cmdQ[1:]
	}
}
