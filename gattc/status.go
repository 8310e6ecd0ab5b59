package gattc

import (
	"fmt"

	"github.com/user/gattcore/att"
)

// Status is the outcome of a client procedure. It shares the ATT error-code
// space so a server-reported reason byte passes through unchanged. The
// engine's own codes sit at 0x80 and above, a range where a server may also
// report application or profile errors; such a reason byte reads as the
// engine code of the same value.
type Status uint8

const (
	StatusSuccess       Status = 0x00
	StatusInvalidHandle Status = att.ErrInvalidHandle
	StatusInvalidPDU    Status = att.ErrInvalidPDU
	StatusNotFound      Status = att.ErrAttributeNotFound
	StatusNotLong       Status = att.ErrAttributeNotLong

	StatusNoResources   Status = 0x80
	StatusInternalError Status = 0x81
	StatusBusy          Status = 0x84
	StatusError         Status = 0x85
	StatusTimeout       Status = 0x88
	StatusCongested     Status = 0x8F
	StatusCancelled     Status = 0x92
	StatusLinkLost      Status = 0x93
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusNoResources:
		return "No Resources"
	case StatusInternalError:
		return "Internal Error"
	case StatusBusy:
		return "Busy"
	case StatusError:
		return "Error"
	case StatusTimeout:
		return "Timeout"
	case StatusCongested:
		return "Congested"
	case StatusCancelled:
		return "Cancelled"
	case StatusLinkLost:
		return "Link Lost"
	}
	if s < 0x80 {
		return att.ErrorName(uint8(s))
	}
	return fmt.Sprintf("Status(0x%02X)", uint8(s))
}
