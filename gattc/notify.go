package gattc

import (
	"encoding/binary"

	"github.com/user/gattcore/att"
	"github.com/user/gattcore/logger"
)

// processNotification handles Handle Value Notification and Indication. An
// indication is confirmed once every registered app with a completion
// callback has called Confirm, or immediately when there is none. A
// notification needs no acknowledgement.
func (c *Conn) processNotification(opcode uint8, pdu []byte) {
	if len(pdu) < 3 {
		logger.Error(c.tag, "illegal notification PDU length %d, discarding", len(pdu))
		return
	}
	handle := binary.LittleEndian.Uint16(pdu[1:3])
	value := pdu[3:]
	if len(value) > MaxAttrLen {
		logger.Error(c.tag, "notification value %d bytes over limit, discarding", len(value))
		return
	}

	indication := opcode == att.OpHandleValueIndication

	if handle == 0 {
		// illegal handle; an indication still gets its ack so the peer is
		// not left blocked, then the PDU is dropped
		if indication {
			c.sendConfirmation()
		}
		logger.Error(c.tag, "notification with handle 0, discarding")
		return
	}

	if indication {
		if c.indCount > 0 {
			logger.Error(c.tag, "indication received with %d ack(s) still pending on 0x%04X",
				c.indCount, c.indPending)
			if c.indOverflow == IndicationOverflowDisconnect && c.disconnect != nil {
				c.enqueueCallback(c.disconnect)
			}
			c.indCount = 0
		}
		c.indPending = handle

		// count the acks before any callback runs, then arm the timer
		for _, id := range c.appOrder {
			if app := c.apps[id]; app != nil && app.OnComplete != nil {
				c.indCount++
			}
		}
		if c.indCount > 0 {
			c.startIndAckTimer()
		} else {
			c.sendConfirmation()
		}
	}

	ev := EventNotification
	if indication {
		ev = EventIndication
	}
	enc := c.encryptStatus()
	val := append([]byte{}, value...)
	for _, id := range c.appOrder {
		app := c.apps[id]
		if app == nil || app.OnComplete == nil {
			continue
		}
		cb := app.OnComplete
		cid := ConnID{Conn: c.index, App: id}
		c.enqueueCallback(func() {
			cb(cid, ev, enc, Completion{Status: StatusSuccess, Handle: handle, Value: val})
		})
	}
}

// Confirm acknowledges the pending indication on behalf of one application.
// The Handle Value Confirmation goes out once every counted application has
// confirmed.
func (c *Conn) Confirm(app AppID) {
	c.dispatch(func() {
		if c.closed || c.indCount == 0 {
			return
		}
		c.indCount--
		if c.indCount == 0 {
			c.stopIndAckTimer()
			c.sendConfirmation()
		}
	})
}
