package gattc

import (
	"fmt"

	"github.com/user/gattcore/att"
	"github.com/user/gattcore/logger"
)

// ReadAttr reads a single attribute by handle. Values longer than the
// payload are fetched with blob reads and reassembled, up to MaxAttrLen.
func (c *Conn) ReadAttr(app AppID, handle uint16) error {
	if handle == 0 {
		return fmt.Errorf("gattc: invalid handle 0")
	}
	var err error
	c.dispatch(func() {
		var p *procedure
		p, err = c.beginProcedure(app, opRead)
		if err != nil {
			return
		}
		p.readKind = ReadByHandle
		p.start = handle
		p.readReqMTU = c.payloadSize
		c.actRead(p, 0)
	})
	return err
}

// ReadCharByUUID reads the value of the first characteristic in the range
// whose UUID matches u, scanning declarations window by window.
func (c *Conn) ReadCharByUUID(app AppID, start, end uint16, u att.UUID) error {
	if err := checkRange(start, end); err != nil {
		return err
	}
	if u.IsZero() {
		return fmt.Errorf("gattc: characteristic UUID required")
	}
	var err error
	c.dispatch(func() {
		var p *procedure
		p, err = c.beginProcedure(app, opRead)
		if err != nil {
			return
		}
		p.readKind = ReadByUUID
		p.start, p.end = start, end
		p.uuid = u
		p.readReqMTU = c.payloadSize
		c.actRead(p, 0)
	})
	return err
}

// ReadUsingType issues one Read By Type request with the caller's type UUID
// and returns the first record's value, continuing with blob reads if the
// record fills the PDU.
func (c *Conn) ReadUsingType(app AppID, start, end uint16, u att.UUID) error {
	if err := checkRange(start, end); err != nil {
		return err
	}
	if u.IsZero() {
		return fmt.Errorf("gattc: type UUID required")
	}
	var err error
	c.dispatch(func() {
		var p *procedure
		p, err = c.beginProcedure(app, opRead)
		if err != nil {
			return
		}
		p.readKind = ReadByType
		p.start, p.end = start, end
		p.uuid = u
		p.readReqMTU = c.payloadSize
		c.actRead(p, 0)
	})
	return err
}

// ReadPartialAttr reads one fragment of an attribute at the given offset.
// No reassembly loop runs; the fragment comes back as-is.
func (c *Conn) ReadPartialAttr(app AppID, handle, offset uint16) error {
	if handle == 0 {
		return fmt.Errorf("gattc: invalid handle 0")
	}
	var err error
	c.dispatch(func() {
		var p *procedure
		p, err = c.beginProcedure(app, opRead)
		if err != nil {
			return
		}
		p.readKind = ReadPartial
		p.start = handle
		p.readReqMTU = c.payloadSize
		c.actRead(p, int(offset))
	})
	return err
}

// ReadMultipleAttrs reads a set of attributes in one request. The server
// concatenates the values and the result is delivered verbatim.
func (c *Conn) ReadMultipleAttrs(app AppID, handles []uint16) error {
	if len(handles) < 2 {
		return fmt.Errorf("gattc: read multiple needs at least 2 handles")
	}
	for _, h := range handles {
		if h == 0 {
			return fmt.Errorf("gattc: invalid handle 0")
		}
	}
	var err error
	c.dispatch(func() {
		var p *procedure
		p, err = c.beginProcedure(app, opRead)
		if err != nil {
			return
		}
		p.readKind = ReadMultiple
		p.handles = append([]uint16{}, handles...)
		p.readReqMTU = c.payloadSize
		c.actRead(p, 0)
	})
	return err
}

// actRead issues the next request of a read procedure. For ReadByHandle the
// first round is a plain Read; once bytes have been buffered, blob reads
// continue from offset.
func (c *Conn) actRead(p *procedure, offset int) {
	switch p.readKind {
	case ReadByUUID:
		if p.start > p.end || p.start == 0 {
			// window exhausted without a matching characteristic
			c.endOperation(p, StatusNotFound, Completion{})
			return
		}
		c.enqueueSend(p, att.OpReadByTypeRequest, (&att.ReadByTypeRequest{
			StartHandle: p.start, EndHandle: p.end,
			Type: att.UUID16(att.TypeCharacteristic),
		}).Encode())

	case ReadByType:
		c.enqueueSend(p, att.OpReadByTypeRequest, (&att.ReadByTypeRequest{
			StartHandle: p.start, EndHandle: p.end,
			Type: p.uuid,
		}).Encode())

	case ReadByHandle:
		if p.counter == 0 {
			c.enqueueSend(p, att.OpReadRequest, (&att.ReadRequest{Handle: p.start}).Encode())
			return
		}
		p.blobsSent++
		c.enqueueSend(p, att.OpReadBlobRequest, (&att.ReadBlobRequest{
			Handle: p.start, Offset: uint16(offset),
		}).Encode())

	case ReadPartial:
		c.enqueueSend(p, att.OpReadBlobRequest, (&att.ReadBlobRequest{
			Handle: p.start, Offset: uint16(offset),
		}).Encode())

	case ReadMultiple:
		c.enqueueSend(p, att.OpReadMultipleRequest, (&att.ReadMultipleRequest{
			Handles: p.handles,
		}).Encode())

	default:
		c.endOperation(p, StatusInternalError, Completion{})
	}
}

// processReadRsp handles Read, Read Blob and Read Multiple responses. It is
// also the resume point for included-service discovery waiting on a 128-bit
// UUID read.
func (c *Conn) processReadRsp(p *procedure, value []byte) {
	if p.op == opRead {
		if p.readKind != ReadByHandle {
			// single-shot reads: deliver as-is
			p.counter = len(value)
			c.endOperation(p, StatusSuccess, Completion{Value: append([]byte{}, value...)})
			return
		}

		offset := p.counter
		if offset >= MaxAttrLen {
			logger.Error(c.tag, "read reassembly offset %d beyond limit", offset)
			c.endOperation(p, StatusNoResources, Completion{Value: p.attrBuf})
			return
		}
		if offset+len(value) > MaxAttrLen {
			value = value[:MaxAttrLen-offset]
		}
		got := len(value)
		if p.attrBuf == nil {
			p.attrBuf = make([]byte, 0, MaxAttrLen)
		}
		p.attrBuf = append(p.attrBuf, value...)
		p.counter += got

		// a fragment that fills the PDU means there may be more; the MTU
		// may have changed mid-procedure, in which case a fragment sized to
		// either the old or the new payload counts as full
		var full bool
		if c.payloadSize == p.readReqMTU {
			full = got == int(c.payloadSize)-1
		} else {
			full = got == int(p.readReqMTU)-1 || got == int(c.payloadSize)-1
			p.readReqMTU = c.payloadSize
		}

		if full && p.counter < MaxAttrLen {
			c.actRead(p, p.counter)
			return
		}
		c.endOperation(p, StatusSuccess, Completion{Value: p.attrBuf})
		return
	}

	if p.op == opDiscovery && p.discKind == DiscoverIncludedServices && p.includeRead.waiting {
		p.start = p.includeRead.nextStart
		p.includeRead.waiting = false
		if len(value) != 16 {
			c.endOperation(p, StatusInvalidPDU, Completion{})
			return
		}
		rec := p.includeRead.parked
		rec.ServiceUUID, _ = att.UUIDFromLE(value)
		c.notifyDiscovery(p, rec)
		c.actDiscovery(p)
		return
	}

	logger.Warn(c.tag, "unexpected read response, dropping")
}
