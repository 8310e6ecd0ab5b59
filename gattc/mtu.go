package gattc

import (
	"fmt"

	"github.com/user/gattcore/att"
	"github.com/user/gattcore/logger"
)

// ConfigureMTU starts an MTU exchange announcing the client's receive MTU.
// ATT permits exactly one exchange per connection; a second call is
// refused, which keeps the settled payload size from ever decreasing. The
// payload size is raised to the requested value right away so requests
// already in flight are sized against it; the response clamps it back down
// to the server's value when that is smaller. The payload size never drops
// below what it was before the exchange.
func (c *Conn) ConfigureMTU(app AppID, rxMTU uint16) error {
	if rxMTU < DefaultMTU || rxMTU > MaxMTU {
		return fmt.Errorf("gattc: MTU %d out of range [%d, %d]", rxMTU, DefaultMTU, MaxMTU)
	}
	var err error
	c.dispatch(func() {
		if c.mtuConfigured {
			err = fmt.Errorf("gattc: MTU already exchanged on this connection")
			return
		}
		var p *procedure
		p, err = c.beginProcedure(app, opConfig)
		if err != nil {
			return
		}
		c.mtuConfigured = true
		if rxMTU > c.payloadSize {
			c.payloadSize = rxMTU
		}
		c.enqueueSend(p, att.OpExchangeMTURequest,
			(&att.ExchangeMTURequest{ClientRxMTU: rxMTU}).Encode())
	})
	return err
}

// processMTURsp adopts the server's receive MTU when it is smaller than the
// current payload size but still a legal ATT MTU, then aligns the fixed
// channel's transmit length. A nil rsp marks a truncated response; the
// channel is still aligned, the procedure ends with InvalidPdu.
func (c *Conn) processMTURsp(p *procedure, rsp *att.ExchangeMTUResponse) {
	status := StatusSuccess
	if rsp == nil {
		logger.Error(c.tag, "invalid MTU response PDU received")
		status = StatusInvalidPDU
	} else if rsp.ServerRxMTU >= DefaultMTU && rsp.ServerRxMTU < c.payloadSize {
		c.payloadSize = rsp.ServerRxMTU
	}

	c.tr.SetTxDataLength(c.payloadSize)
	c.endOperation(p, status, Completion{})
}
