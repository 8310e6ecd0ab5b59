package att

import "testing"

func TestResponseOpcodeFor(t *testing.T) {
	tests := []struct {
		req  uint8
		want uint8
	}{
		{OpExchangeMTURequest, OpExchangeMTUResponse},
		{OpFindInformationRequest, OpFindInformationResponse},
		{OpFindByTypeValueRequest, OpFindByTypeValueResponse},
		{OpReadByTypeRequest, OpReadByTypeResponse},
		{OpReadRequest, OpReadResponse},
		{OpReadBlobRequest, OpReadBlobResponse},
		{OpReadMultipleRequest, OpReadMultipleResponse},
		{OpReadByGroupTypeRequest, OpReadByGroupTypeResponse},
		{OpWriteRequest, OpWriteResponse},
		{OpPrepareWriteRequest, OpPrepareWriteResponse},
		{OpExecuteWriteRequest, OpExecuteWriteResponse},
		// commands have no response; this is the whole point of the table
		{OpWriteCommand, 0},
		{OpSignedWriteCommand, 0},
		{OpHandleValueConfirmation, 0},
	}

	for _, tt := range tests {
		if got := ResponseOpcodeFor(tt.req); got != tt.want {
			t.Errorf("ResponseOpcodeFor(0x%02X) = 0x%02X, want 0x%02X", tt.req, got, tt.want)
		}
	}
}

func TestIsServerInitiated(t *testing.T) {
	if !IsServerInitiated(OpHandleValueNotification) || !IsServerInitiated(OpHandleValueIndication) {
		t.Error("notification/indication not recognized as server-initiated")
	}
	if IsServerInitiated(OpReadResponse) || IsServerInitiated(OpErrorResponse) {
		t.Error("response opcodes recognized as server-initiated")
	}
}

func TestOpcodeName(t *testing.T) {
	if OpcodeName(OpReadBlobRequest) != "Read Blob Request" {
		t.Errorf("OpcodeName = %q", OpcodeName(OpReadBlobRequest))
	}
	if OpcodeName(0x7B) != "Unknown Opcode" {
		t.Errorf("OpcodeName(0x7B) = %q", OpcodeName(0x7B))
	}
}
