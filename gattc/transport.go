package gattc

// TxStatus is the transport's verdict on a submitted PDU.
type TxStatus uint8

const (
	// TxOK means the PDU was accepted and will be delivered in order.
	TxOK TxStatus = iota
	// TxCongested means the PDU was accepted but the channel is flow-blocked;
	// the transport retries on its own and delivery order is preserved.
	TxCongested
	// TxFailed means the PDU was not accepted.
	TxFailed
)

// Transport is the southbound contract: an in-order, reliable, segment-free
// byte channel carrying one complete ATT PDU per Send. In a live stack this
// is the L2CAP fixed channel (CID 0x04).
//
// Inbound PDUs are handed to the engine through Conn.Deliver.
type Transport interface {
	// Send submits one complete ATT PDU, opcode byte first.
	Send(pdu []byte) TxStatus

	// SetTxDataLength aligns the channel's transmit size with the
	// negotiated ATT payload size after an MTU exchange.
	SetTxDataLength(mtu uint16)
}
