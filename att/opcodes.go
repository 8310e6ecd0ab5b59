package att

// ATT opcodes (Bluetooth Core Spec v5.3 Vol 3, Part F, Section 3.4)
const (
	OpErrorResponse = 0x01

	OpExchangeMTURequest  = 0x02
	OpExchangeMTUResponse = 0x03

	OpFindInformationRequest  = 0x04
	OpFindInformationResponse = 0x05

	OpFindByTypeValueRequest  = 0x06
	OpFindByTypeValueResponse = 0x07

	OpReadByTypeRequest    = 0x08
	OpReadByTypeResponse   = 0x09
	OpReadRequest          = 0x0A
	OpReadResponse         = 0x0B
	OpReadBlobRequest      = 0x0C
	OpReadBlobResponse     = 0x0D
	OpReadMultipleRequest  = 0x0E
	OpReadMultipleResponse = 0x0F

	OpReadByGroupTypeRequest  = 0x10
	OpReadByGroupTypeResponse = 0x11

	OpWriteRequest  = 0x12
	OpWriteResponse = 0x13

	// Commands carry the command flag bit and never produce a response.
	OpWriteCommand       = 0x52
	OpSignedWriteCommand = 0xD2

	OpPrepareWriteRequest  = 0x16
	OpPrepareWriteResponse = 0x17
	OpExecuteWriteRequest  = 0x18
	OpExecuteWriteResponse = 0x19

	OpHandleValueNotification = 0x1B
	OpHandleValueIndication   = 0x1D
	OpHandleValueConfirmation = 0x1E
)

// Well-known 16-bit attribute types used by GATT discovery.
const (
	TypePrimaryService   = 0x2800
	TypeSecondaryService = 0x2801
	TypeInclude          = 0x2802
	TypeCharacteristic   = 0x2803
)

// SignatureLen is the length of the authentication signature carried by a
// Signed Write Command.
const SignatureLen = 12

// opcodeNames maps opcodes to human-readable names (useful for debugging)
var opcodeNames = map[uint8]string{
	OpErrorResponse:           "Error Response",
	OpExchangeMTURequest:      "Exchange MTU Request",
	OpExchangeMTUResponse:     "Exchange MTU Response",
	OpFindInformationRequest:  "Find Information Request",
	OpFindInformationResponse: "Find Information Response",
	OpFindByTypeValueRequest:  "Find By Type Value Request",
	OpFindByTypeValueResponse: "Find By Type Value Response",
	OpReadByTypeRequest:       "Read By Type Request",
	OpReadByTypeResponse:      "Read By Type Response",
	OpReadRequest:             "Read Request",
	OpReadResponse:            "Read Response",
	OpReadBlobRequest:         "Read Blob Request",
	OpReadBlobResponse:        "Read Blob Response",
	OpReadMultipleRequest:     "Read Multiple Request",
	OpReadMultipleResponse:    "Read Multiple Response",
	OpReadByGroupTypeRequest:  "Read By Group Type Request",
	OpReadByGroupTypeResponse: "Read By Group Type Response",
	OpWriteRequest:            "Write Request",
	OpWriteResponse:           "Write Response",
	OpWriteCommand:            "Write Command",
	OpSignedWriteCommand:      "Signed Write Command",
	OpPrepareWriteRequest:     "Prepare Write Request",
	OpPrepareWriteResponse:    "Prepare Write Response",
	OpExecuteWriteRequest:     "Execute Write Request",
	OpExecuteWriteResponse:    "Execute Write Response",
	OpHandleValueNotification: "Handle Value Notification",
	OpHandleValueIndication:   "Handle Value Indication",
	OpHandleValueConfirmation: "Handle Value Confirmation",
}

// OpcodeName returns a human-readable name for an opcode.
func OpcodeName(op uint8) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "Unknown Opcode"
}

// responseFor maps request opcodes to their response opcodes. Write Command
// and Signed Write Command are deliberately absent: they have no response.
var responseFor = map[uint8]uint8{
	OpExchangeMTURequest:      OpExchangeMTUResponse,
	OpFindInformationRequest:  OpFindInformationResponse,
	OpFindByTypeValueRequest:  OpFindByTypeValueResponse,
	OpReadByTypeRequest:       OpReadByTypeResponse,
	OpReadRequest:             OpReadResponse,
	OpReadBlobRequest:         OpReadBlobResponse,
	OpReadMultipleRequest:     OpReadMultipleResponse,
	OpReadByGroupTypeRequest:  OpReadByGroupTypeResponse,
	OpWriteRequest:            OpWriteResponse,
	OpPrepareWriteRequest:     OpPrepareWriteResponse,
	OpExecuteWriteRequest:     OpExecuteWriteResponse,
}

// ResponseOpcodeFor returns the response opcode paired with a request opcode,
// or 0 if the opcode expects no response.
func ResponseOpcodeFor(requestOpcode uint8) uint8 {
	return responseFor[requestOpcode]
}

// IsServerInitiated returns true for PDUs the server originates on its own
// (notifications and indications), which bypass request/response pairing.
func IsServerInitiated(op uint8) bool {
	return op == OpHandleValueNotification || op == OpHandleValueIndication
}
