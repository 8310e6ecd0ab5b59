package gattc

import (
	"encoding/binary"
	"fmt"

	"github.com/user/gattcore/att"
	"github.com/user/gattcore/logger"
)

// checkRange validates a discovery window: handle 0 is invalid and the
// window must not be inverted.
func checkRange(start, end uint16) error {
	if start == 0 || start > end {
		return fmt.Errorf("gattc: invalid handle range 0x%04X..0x%04X", start, end)
	}
	return nil
}

// beginProcedure validates the app and the one-procedure-per-app rule, then
// allocates the control block. Must run under the connection lock.
func (c *Conn) beginProcedure(app AppID, op operation) (*procedure, error) {
	if c.closed {
		return nil, fmt.Errorf("gattc: connection closed")
	}
	if _, ok := c.apps[app]; !ok {
		return nil, fmt.Errorf("gattc: app %d not registered", app)
	}
	for _, p := range c.procs {
		if p.app == app && !p.done {
			return nil, fmt.Errorf("gattc: app %d busy", app)
		}
	}
	return c.newProcedure(app, op), nil
}

// DiscoverAllPrimaryServices enumerates every primary service in the handle
// range. Results arrive through OnDiscoveryResult, one per service, then
// OnDiscoveryComplete.
func (c *Conn) DiscoverAllPrimaryServices(app AppID, start, end uint16) error {
	return c.startDiscovery(app, DiscoverAllServices, start, end, att.UUID{})
}

// DiscoverPrimaryServicesByUUID enumerates the primary services whose type
// matches u.
func (c *Conn) DiscoverPrimaryServicesByUUID(app AppID, start, end uint16, u att.UUID) error {
	if u.IsZero() {
		return fmt.Errorf("gattc: service UUID required")
	}
	return c.startDiscovery(app, DiscoverServicesByUUID, start, end, u)
}

// DiscoverIncludedServices enumerates the include declarations of a service.
func (c *Conn) DiscoverIncludedServices(app AppID, start, end uint16) error {
	return c.startDiscovery(app, DiscoverIncludedServices, start, end, att.UUID{})
}

// DiscoverCharacteristics enumerates characteristic declarations. A non-zero
// filter limits results to characteristics of that UUID; mismatches are
// skipped silently.
func (c *Conn) DiscoverCharacteristics(app AppID, start, end uint16, filter att.UUID) error {
	return c.startDiscovery(app, DiscoverCharacteristics, start, end, filter)
}

// DiscoverDescriptors enumerates the descriptors of a characteristic.
func (c *Conn) DiscoverDescriptors(app AppID, start, end uint16) error {
	return c.startDiscovery(app, DiscoverDescriptors, start, end, att.UUID{})
}

func (c *Conn) startDiscovery(app AppID, kind DiscoveryKind, start, end uint16, u att.UUID) error {
	if err := checkRange(start, end); err != nil {
		return err
	}
	var err error
	c.dispatch(func() {
		var p *procedure
		p, err = c.beginProcedure(app, opDiscovery)
		if err != nil {
			return
		}
		p.discKind = kind
		p.start, p.end = start, end
		p.uuid = u
		c.actDiscovery(p)
	})
	return err
}

// actDiscovery issues the next request of a discovery procedure, or ends it
// when the window is exhausted. The window wraps to zero past 0xFFFF, which
// also terminates.
func (c *Conn) actDiscovery(p *procedure) {
	if p.start > p.end || p.start == 0 {
		c.endOperation(p, StatusSuccess, Completion{})
		return
	}

	var opcode uint8
	var pdu []byte

	switch p.discKind {
	case DiscoverAllServices:
		opcode = att.OpReadByGroupTypeRequest
		pdu = (&att.ReadByGroupTypeRequest{
			StartHandle: p.start, EndHandle: p.end,
			Type: att.UUID16(att.TypePrimaryService),
		}).Encode()
	case DiscoverServicesByUUID:
		// a 16-bit target goes on the wire as-is; 32-bit and 128-bit
		// targets travel in the 128-bit little-endian form
		opcode = att.OpFindByTypeValueRequest
		pdu = (&att.FindByTypeValueRequest{
			StartHandle: p.start, EndHandle: p.end,
			Type:  att.TypePrimaryService,
			Value: p.uuid.LE(),
		}).Encode()
	case DiscoverIncludedServices:
		opcode = att.OpReadByTypeRequest
		pdu = (&att.ReadByTypeRequest{
			StartHandle: p.start, EndHandle: p.end,
			Type: att.UUID16(att.TypeInclude),
		}).Encode()
	case DiscoverCharacteristics:
		opcode = att.OpReadByTypeRequest
		pdu = (&att.ReadByTypeRequest{
			StartHandle: p.start, EndHandle: p.end,
			Type: att.UUID16(att.TypeCharacteristic),
		}).Encode()
	case DiscoverDescriptors:
		opcode = att.OpFindInformationRequest
		pdu = (&att.FindInformationRequest{
			StartHandle: p.start, EndHandle: p.end,
		}).Encode()
	default:
		c.endOperation(p, StatusInternalError, Completion{})
		return
	}

	c.enqueueSend(p, opcode, pdu)
}

func (c *Conn) notifyDiscovery(p *procedure, rec DiscoveryRecord) {
	app := c.apps[p.app]
	if app == nil || app.OnDiscoveryResult == nil {
		return
	}
	cb := app.OnDiscoveryResult
	id := p.id()
	kind := p.discKind
	c.enqueueCallback(func() { cb(id, kind, rec) })
}

// processFindByTypeValueRsp handles one round of service-by-UUID discovery:
// a series of handle ranges, each a service whose type matched the target.
func (c *Conn) processFindByTypeValueRsp(p *procedure, rsp *att.FindByTypeValueResponse) {
	if p.op != opDiscovery || p.discKind != DiscoverServicesByUUID {
		logger.Warn(c.tag, "unexpected find-by-type-value response, dropping")
		return
	}

	var lastEnd uint16
	for _, r := range rsp.Ranges {
		c.notifyDiscovery(p, DiscoveryRecord{
			Handle:      r.Found,
			Type:        att.UUID16(att.TypePrimaryService),
			EndHandle:   r.GroupEnd,
			ServiceUUID: p.uuid,
		})
		lastEnd = r.GroupEnd
	}

	if lastEnd == 0 {
		p.start = 0
	} else {
		p.start = lastEnd + 1
	}
	c.actDiscovery(p)
}

// processFindInfoRsp handles one round of descriptor discovery: a format
// byte followed by (handle, UUID) pairs.
func (c *Conn) processFindInfoRsp(p *procedure, rsp *att.FindInformationResponse) {
	if p.op != opDiscovery || p.discKind != DiscoverDescriptors {
		logger.Warn(c.tag, "unexpected find-information response, dropping")
		return
	}

	uuidLen := 2
	if rsp.Format == att.FindInformationFormat128 {
		uuidLen = 16
	}

	data := rsp.Data
	var last uint16
	for len(data) >= 2+uuidLen {
		handle := binary.LittleEndian.Uint16(data[0:2])
		u, ok := att.UUIDFromLE(data[2 : 2+uuidLen])
		if !ok {
			break
		}
		c.notifyDiscovery(p, DiscoveryRecord{Handle: handle, Type: u})
		last = handle
		data = data[2+uuidLen:]
	}

	if last == 0 {
		p.start = 0
	} else {
		p.start = last + 1
	}
	c.actDiscovery(p)
}

// processReadByTypeRsp handles Read By Type and Read By Group Type
// responses. The record list serves five procedures: all-services discovery,
// included-service discovery, characteristic discovery, the
// characteristic-value reads that scan declarations, and direct Read By Type
// reads. Every record is
// bounds-checked against the declared record length, the negotiated payload
// size and the bytes actually present.
func (c *Conn) processReadByTypeRsp(p *procedure, opcode uint8, length uint8, data []byte) {
	valueLen := int(length)
	bodyLen := len(data) + 1 // the length byte counts toward the body

	if valueLen > int(c.payloadSize)-2 || valueLen > bodyLen-1 {
		logger.Error(c.tag, "declared record length %d exceeds MTU-2 (%d) or body (%d), discarding",
			valueLen, int(c.payloadSize)-2, bodyLen-1)
		c.endOperation(p, StatusError, Completion{})
		return
	}

	handleLen := 2
	if opcode == att.OpReadByGroupTypeResponse {
		handleLen = 4
	}
	if valueLen < handleLen {
		c.endOperation(p, StatusInvalidPDU, Completion{})
		return
	}
	valueLen -= handleLen

	rem := data
	var last uint16

loop:
	for len(rem) >= handleLen+valueLen {
		handle := binary.LittleEndian.Uint16(rem[0:2])
		rem = rem[2:]
		if handle == 0 {
			c.endOperation(p, StatusInvalidHandle, Completion{})
			return
		}

		switch {
		case p.op == opDiscovery && p.discKind == DiscoverAllServices &&
			opcode == att.OpReadByGroupTypeResponse:
			endHandle := binary.LittleEndian.Uint16(rem[0:2])
			rem = rem[2:]
			if endHandle == 0 {
				c.endOperation(p, StatusInvalidHandle, Completion{})
				return
			}
			last = endHandle
			u, ok := att.UUIDFromLE(rem[:valueLen])
			if !ok {
				logger.Error(c.tag, "service record with %d-byte UUID, stopping round", valueLen)
				break loop
			}
			rem = rem[valueLen:]
			c.notifyDiscovery(p, DiscoveryRecord{
				Handle:      handle,
				Type:        att.UUID16(att.TypePrimaryService),
				EndHandle:   endHandle,
				ServiceUUID: u,
			})

		case p.op == opDiscovery && p.discKind == DiscoverIncludedServices:
			if valueLen != 4 && valueLen != 6 {
				c.endOperation(p, StatusInvalidPDU, Completion{})
				return
			}
			inclStart := binary.LittleEndian.Uint16(rem[0:2])
			inclEnd := binary.LittleEndian.Uint16(rem[2:4])
			if inclStart == 0 || inclEnd == 0 {
				c.endOperation(p, StatusInvalidHandle, Completion{})
				return
			}
			rec := DiscoveryRecord{
				Handle:        handle,
				Type:          att.UUID16(att.TypeInclude),
				IncludedStart: inclStart,
				IncludedEnd:   inclEnd,
			}
			if valueLen == 6 {
				rec.ServiceUUID = att.UUID16(binary.LittleEndian.Uint16(rem[4:6]))
				rem = rem[6:]
				c.notifyDiscovery(p, rec)
				last = handle
				continue
			}
			// the 128-bit service type did not fit in the record; park the
			// result and read it from the included service declaration
			p.start = inclStart
			p.includeRead = includeReadState{
				waiting:   true,
				nextStart: handle + 1,
				parked:    rec,
			}
			c.enqueueSend(p, att.OpReadRequest, (&att.ReadRequest{Handle: inclStart}).Encode())
			return

		case p.op == opRead && p.readKind == ReadByType:
			// direct read by type: the first record wins; its value is the
			// record's bytes after its handle
			p.counter = valueLen
			p.start = handle
			value := rem[:valueLen]
			if p.counter == int(c.payloadSize)-4 {
				// a record that fills the PDU may be truncated; switch to
				// blob reads to fetch the rest
				if p.counter > MaxAttrLen {
					c.endOperation(p, StatusInternalError, Completion{})
					return
				}
				p.readKind = ReadByHandle
				p.attrBuf = append(make([]byte, 0, MaxAttrLen), value...)
				c.actRead(p, p.counter)
				return
			}
			c.endOperation(p, StatusSuccess, Completion{Handle: handle, Value: append([]byte{}, value...)})
			return

		default:
			// characteristic declaration records, for characteristic
			// discovery and for reads that scan declarations by UUID
			if valueLen < 3 {
				c.endOperation(p, StatusInvalidPDU, Completion{})
				return
			}
			props := rem[0]
			valueHandle := binary.LittleEndian.Uint16(rem[1:3])
			if valueHandle == 0 {
				c.endOperation(p, StatusInvalidHandle, Completion{})
				return
			}
			u, ok := att.UUIDFromLE(rem[3:valueLen])
			if !ok {
				// unparseable declaration: stop and report what we have
				c.endOperation(p, StatusSuccess, Completion{})
				return
			}
			rem = rem[valueLen:]

			if !p.uuid.IsZero() && !u.Equal(p.uuid) {
				last = handle
				continue
			}

			if p.op == opRead {
				// first matching characteristic: read its value handle
				p.start = valueHandle
				p.readKind = ReadByHandle
				c.actRead(p, 0)
				return
			}

			c.notifyDiscovery(p, DiscoveryRecord{
				Handle:      handle,
				Type:        att.UUID16(att.TypeCharacteristic),
				Properties:  props,
				ValueHandle: valueHandle,
				CharUUID:    u,
			})
			last = handle
		}
	}

	if last == 0 {
		p.start = 0
	} else {
		p.start = last + 1
	}

	if p.op == opDiscovery {
		c.actDiscovery(p)
	} else {
		// keep scanning the remaining window for a matching characteristic
		c.actRead(p, 0)
	}
}
