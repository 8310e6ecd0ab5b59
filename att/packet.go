package att

import (
	"encoding/binary"
)

// Client requests. Each carries an Encode producing the complete PDU,
// opcode byte included. All multi-byte integers are little-endian.

// ExchangeMTURequest announces the client's receive MTU (Opcode 0x02).
type ExchangeMTURequest struct {
	ClientRxMTU uint16
}

func (r *ExchangeMTURequest) Encode() []byte {
	buf := make([]byte, 3)
	buf[0] = OpExchangeMTURequest
	binary.LittleEndian.PutUint16(buf[1:3], r.ClientRxMTU)
	return buf
}

// FindInformationRequest enumerates attribute types in a handle range
// (Opcode 0x04). Used for descriptor discovery.
type FindInformationRequest struct {
	StartHandle uint16
	EndHandle   uint16
}

func (r *FindInformationRequest) Encode() []byte {
	buf := make([]byte, 5)
	buf[0] = OpFindInformationRequest
	binary.LittleEndian.PutUint16(buf[1:3], r.StartHandle)
	binary.LittleEndian.PutUint16(buf[3:5], r.EndHandle)
	return buf
}

// FindByTypeValueRequest finds attributes of a 16-bit type whose value
// matches Value (Opcode 0x06). Used for service-by-UUID discovery.
type FindByTypeValueRequest struct {
	StartHandle uint16
	EndHandle   uint16
	Type        uint16
	Value       []byte
}

func (r *FindByTypeValueRequest) Encode() []byte {
	buf := make([]byte, 7+len(r.Value))
	buf[0] = OpFindByTypeValueRequest
	binary.LittleEndian.PutUint16(buf[1:3], r.StartHandle)
	binary.LittleEndian.PutUint16(buf[3:5], r.EndHandle)
	binary.LittleEndian.PutUint16(buf[5:7], r.Type)
	copy(buf[7:], r.Value)
	return buf
}

// ReadByTypeRequest reads all attributes of a type in a handle range
// (Opcode 0x08).
type ReadByTypeRequest struct {
	StartHandle uint16
	EndHandle   uint16
	Type        UUID
}

func (r *ReadByTypeRequest) Encode() []byte {
	t := r.Type.LE()
	buf := make([]byte, 5+len(t))
	buf[0] = OpReadByTypeRequest
	binary.LittleEndian.PutUint16(buf[1:3], r.StartHandle)
	binary.LittleEndian.PutUint16(buf[3:5], r.EndHandle)
	copy(buf[5:], t)
	return buf
}

// ReadByGroupTypeRequest reads all grouping attributes of a type in a handle
// range (Opcode 0x10). Used for primary service discovery.
type ReadByGroupTypeRequest struct {
	StartHandle uint16
	EndHandle   uint16
	Type        UUID
}

func (r *ReadByGroupTypeRequest) Encode() []byte {
	t := r.Type.LE()
	buf := make([]byte, 5+len(t))
	buf[0] = OpReadByGroupTypeRequest
	binary.LittleEndian.PutUint16(buf[1:3], r.StartHandle)
	binary.LittleEndian.PutUint16(buf[3:5], r.EndHandle)
	copy(buf[5:], t)
	return buf
}

// ReadRequest reads the value of one attribute (Opcode 0x0A).
type ReadRequest struct {
	Handle uint16
}

func (r *ReadRequest) Encode() []byte {
	buf := make([]byte, 3)
	buf[0] = OpReadRequest
	binary.LittleEndian.PutUint16(buf[1:3], r.Handle)
	return buf
}

// ReadBlobRequest reads part of a long attribute value starting at Offset
// (Opcode 0x0C).
type ReadBlobRequest struct {
	Handle uint16
	Offset uint16
}

func (r *ReadBlobRequest) Encode() []byte {
	buf := make([]byte, 5)
	buf[0] = OpReadBlobRequest
	binary.LittleEndian.PutUint16(buf[1:3], r.Handle)
	binary.LittleEndian.PutUint16(buf[3:5], r.Offset)
	return buf
}

// ReadMultipleRequest reads a set of attribute values in one round trip
// (Opcode 0x0E). At least two handles are required by the protocol.
type ReadMultipleRequest struct {
	Handles []uint16
}

func (r *ReadMultipleRequest) Encode() []byte {
	buf := make([]byte, 1+2*len(r.Handles))
	buf[0] = OpReadMultipleRequest
	for i, h := range r.Handles {
		binary.LittleEndian.PutUint16(buf[1+2*i:], h)
	}
	return buf
}

// WriteRequest writes an attribute value and expects an acknowledgement
// (Opcode 0x12).
type WriteRequest struct {
	Handle uint16
	Value  []byte
}

func (r *WriteRequest) Encode() []byte {
	buf := make([]byte, 3+len(r.Value))
	buf[0] = OpWriteRequest
	binary.LittleEndian.PutUint16(buf[1:3], r.Handle)
	copy(buf[3:], r.Value)
	return buf
}

// WriteCommand writes an attribute value with no response (Opcode 0x52).
type WriteCommand struct {
	Handle uint16
	Value  []byte
}

func (r *WriteCommand) Encode() []byte {
	buf := make([]byte, 3+len(r.Value))
	buf[0] = OpWriteCommand
	binary.LittleEndian.PutUint16(buf[1:3], r.Handle)
	copy(buf[3:], r.Value)
	return buf
}

// SignedWriteCommand writes an attribute value authenticated by a 12-byte
// signature, with no response (Opcode 0xD2).
type SignedWriteCommand struct {
	Handle    uint16
	Value     []byte
	Signature [SignatureLen]byte
}

func (r *SignedWriteCommand) Encode() []byte {
	buf := make([]byte, 3+len(r.Value)+SignatureLen)
	buf[0] = OpSignedWriteCommand
	binary.LittleEndian.PutUint16(buf[1:3], r.Handle)
	copy(buf[3:], r.Value)
	copy(buf[3+len(r.Value):], r.Signature[:])
	return buf
}

// PrepareWriteRequest queues one fragment of a long write on the server
// (Opcode 0x16).
type PrepareWriteRequest struct {
	Handle uint16
	Offset uint16
	Value  []byte
}

func (r *PrepareWriteRequest) Encode() []byte {
	buf := make([]byte, 5+len(r.Value))
	buf[0] = OpPrepareWriteRequest
	binary.LittleEndian.PutUint16(buf[1:3], r.Handle)
	binary.LittleEndian.PutUint16(buf[3:5], r.Offset)
	copy(buf[5:], r.Value)
	return buf
}

// ExecuteWriteRequest commits or cancels all queued prepared writes
// (Opcode 0x18).
type ExecuteWriteRequest struct {
	Commit bool
}

func (r *ExecuteWriteRequest) Encode() []byte {
	flag := byte(0x00)
	if r.Commit {
		flag = 0x01
	}
	return []byte{OpExecuteWriteRequest, flag}
}

// HandleValueConfirmation acknowledges an indication (Opcode 0x1E).
type HandleValueConfirmation struct{}

func (r *HandleValueConfirmation) Encode() []byte {
	return []byte{OpHandleValueConfirmation}
}

// Server PDUs, produced by Decode.

// ErrorResponse reports why a request failed (Opcode 0x01).
type ErrorResponse struct {
	RequestOpcode uint8
	Handle        uint16
	Reason        uint8
}

// ExchangeMTUResponse carries the server's receive MTU (Opcode 0x03).
type ExchangeMTUResponse struct {
	ServerRxMTU uint16
}

// Find Information Response format values.
const (
	FindInformationFormat16  = 0x01
	FindInformationFormat128 = 0x02
)

// FindInformationResponse lists (handle, UUID) pairs (Opcode 0x05).
// Data holds the raw pair list; the pair width follows from Format.
type FindInformationResponse struct {
	Format uint8
	Data   []byte
}

// HandleRange is one entry of a Find By Type Value Response: the handle of a
// found attribute and the end handle of its group.
type HandleRange struct {
	Found    uint16
	GroupEnd uint16
}

// FindByTypeValueResponse lists the handle ranges whose attribute value
// matched (Opcode 0x07).
type FindByTypeValueResponse struct {
	Ranges []HandleRange
}

// ReadByTypeResponse carries a list of (handle, value) records, each Length
// bytes long (Opcode 0x09). The record walk is left to the caller because
// the record layout depends on the procedure in flight.
type ReadByTypeResponse struct {
	Length        uint8
	AttributeData []byte
}

// ReadByGroupTypeResponse carries a list of (handle, end handle, value)
// records, each Length bytes long (Opcode 0x11).
type ReadByGroupTypeResponse struct {
	Length        uint8
	AttributeData []byte
}

// ReadResponse carries an attribute value (Opcode 0x0B).
type ReadResponse struct {
	Value []byte
}

// ReadBlobResponse carries part of a long attribute value (Opcode 0x0D).
type ReadBlobResponse struct {
	Value []byte
}

// ReadMultipleResponse carries the concatenated values of a Read Multiple
// Request, delivered verbatim (Opcode 0x0F).
type ReadMultipleResponse struct {
	Values []byte
}

// WriteResponse acknowledges a Write Request (Opcode 0x13). No body.
type WriteResponse struct{}

// PrepareWriteResponse echoes a queued fragment (Opcode 0x17).
type PrepareWriteResponse struct {
	Handle uint16
	Offset uint16
	Value  []byte
}

// ExecuteWriteResponse acknowledges an Execute Write Request (Opcode 0x19).
type ExecuteWriteResponse struct{}

// HandleValueNotification is a server-initiated value push with no
// acknowledgement (Opcode 0x1B).
type HandleValueNotification struct {
	Handle uint16
	Value  []byte
}

// HandleValueIndication is a server-initiated value push that must be
// confirmed (Opcode 0x1D).
type HandleValueIndication struct {
	Handle uint16
	Value  []byte
}

// Minimum total PDU lengths, opcode byte included, enforced by Decode before
// any field is read.
const (
	minErrorResponse        = 5
	minExchangeMTUResponse  = 3
	minFindInfoResponse     = 2
	minFindByTypeResponse   = 5
	minReadByTypeResponse   = 2
	minPrepareWriteResponse = 5
	minNotification         = 3
)

// Decode parses a server-originated PDU into its typed record. Every opcode
// has a minimum length gate; a short or malformed PDU yields an *Error and a
// nil record. Value lengths against the negotiated MTU are the engine's
// business, not the codec's.
func Decode(data []byte) (interface{}, error) {
	if len(data) < 1 {
		return nil, decodeErr(0, "empty PDU")
	}

	opcode := data[0]

	switch opcode {
	case OpErrorResponse:
		if len(data) < minErrorResponse {
			return nil, decodeErr(opcode, "truncated")
		}
		return &ErrorResponse{
			RequestOpcode: data[1],
			Handle:        binary.LittleEndian.Uint16(data[2:4]),
			Reason:        data[4],
		}, nil

	case OpExchangeMTUResponse:
		if len(data) < minExchangeMTUResponse {
			return nil, decodeErr(opcode, "truncated")
		}
		return &ExchangeMTUResponse{
			ServerRxMTU: binary.LittleEndian.Uint16(data[1:3]),
		}, nil

	case OpFindInformationResponse:
		if len(data) < minFindInfoResponse {
			return nil, decodeErr(opcode, "truncated")
		}
		format := data[1]
		if format != FindInformationFormat16 && format != FindInformationFormat128 {
			return nil, decodeErr(opcode, "bad format")
		}
		return &FindInformationResponse{
			Format: format,
			Data:   append([]byte{}, data[2:]...),
		}, nil

	case OpFindByTypeValueResponse:
		if len(data) < minFindByTypeResponse {
			return nil, decodeErr(opcode, "truncated")
		}
		rest := data[1:]
		var ranges []HandleRange
		for len(rest) >= 4 {
			ranges = append(ranges, HandleRange{
				Found:    binary.LittleEndian.Uint16(rest[0:2]),
				GroupEnd: binary.LittleEndian.Uint16(rest[2:4]),
			})
			rest = rest[4:]
		}
		return &FindByTypeValueResponse{Ranges: ranges}, nil

	case OpReadByTypeResponse:
		if len(data) < minReadByTypeResponse {
			return nil, decodeErr(opcode, "truncated")
		}
		return &ReadByTypeResponse{
			Length:        data[1],
			AttributeData: append([]byte{}, data[2:]...),
		}, nil

	case OpReadByGroupTypeResponse:
		if len(data) < minReadByTypeResponse {
			return nil, decodeErr(opcode, "truncated")
		}
		return &ReadByGroupTypeResponse{
			Length:        data[1],
			AttributeData: append([]byte{}, data[2:]...),
		}, nil

	case OpReadResponse:
		return &ReadResponse{Value: append([]byte{}, data[1:]...)}, nil

	case OpReadBlobResponse:
		return &ReadBlobResponse{Value: append([]byte{}, data[1:]...)}, nil

	case OpReadMultipleResponse:
		return &ReadMultipleResponse{Values: append([]byte{}, data[1:]...)}, nil

	case OpWriteResponse:
		return &WriteResponse{}, nil

	case OpPrepareWriteResponse:
		if len(data) < minPrepareWriteResponse {
			return nil, decodeErr(opcode, "truncated")
		}
		return &PrepareWriteResponse{
			Handle: binary.LittleEndian.Uint16(data[1:3]),
			Offset: binary.LittleEndian.Uint16(data[3:5]),
			Value:  append([]byte{}, data[5:]...),
		}, nil

	case OpExecuteWriteResponse:
		return &ExecuteWriteResponse{}, nil

	case OpHandleValueNotification:
		if len(data) < minNotification {
			return nil, decodeErr(opcode, "truncated")
		}
		return &HandleValueNotification{
			Handle: binary.LittleEndian.Uint16(data[1:3]),
			Value:  append([]byte{}, data[3:]...),
		}, nil

	case OpHandleValueIndication:
		if len(data) < minNotification {
			return nil, decodeErr(opcode, "truncated")
		}
		return &HandleValueIndication{
			Handle: binary.LittleEndian.Uint16(data[1:3]),
			Value:  append([]byte{}, data[3:]...),
		}, nil

	default:
		return nil, decodeErr(opcode, "not a server PDU")
	}
}
