package gattc

import (
	"github.com/user/gattcore/att"
)

// AppID identifies a registered application on a connection.
type AppID uint8

// ConnID is the composite identifier handed to application callbacks:
// the connection index plus the application the event is for.
type ConnID struct {
	Conn uint8
	App  AppID
}

// Event classifies a completion callback.
type Event uint8

const (
	EventRead Event = iota + 1
	EventWrite
	EventMTUConfig
	EventNotification
	EventIndication
	EventConfirm
)

func (e Event) String() string {
	switch e {
	case EventRead:
		return "Read"
	case EventWrite:
		return "Write"
	case EventMTUConfig:
		return "MTUConfig"
	case EventNotification:
		return "Notification"
	case EventIndication:
		return "Indication"
	case EventConfirm:
		return "Confirm"
	}
	return "Unknown"
}

// EncryptStatus is the link encryption status attached to completion
// callbacks. It is supplied by the security collaborator, not computed here.
type EncryptStatus uint8

const (
	EncryptNone EncryptStatus = iota
	EncryptNoMITM
	EncryptMITM
)

// SecurityAction is the per-write security requirement supplied by the
// security collaborator. SecuritySign turns a Write Without Response into a
// Signed Write Command; SecurityEncrypt is enforced at the link and changes
// nothing on the ATT layer.
type SecurityAction uint8

const (
	SecurityNone SecurityAction = iota
	SecuritySign
	SecurityEncrypt
)

// Signer produces the 12-byte authentication signature for a Signed Write
// Command. Implemented by the security manager; the engine never computes
// signatures itself.
type Signer interface {
	Sign(message []byte) ([SignatureLen]byte, error)
}

// SignatureLen mirrors the ATT signature length for Signer implementors.
const SignatureLen = att.SignatureLen

// Completion is the payload of a completion callback. Fields are filled per
// event: Value and Handle for reads, notifications and prepare-write echoes,
// Offset for prepare-write echoes, MTU for EventMTUConfig.
type Completion struct {
	Status Status
	Handle uint16
	Offset uint16
	Value  []byte
	MTU    uint16
}

// DiscoveryKind selects a discovery procedure.
type DiscoveryKind uint8

const (
	DiscoverAllServices DiscoveryKind = iota + 1
	DiscoverServicesByUUID
	DiscoverIncludedServices
	DiscoverCharacteristics
	DiscoverDescriptors
)

func (k DiscoveryKind) String() string {
	switch k {
	case DiscoverAllServices:
		return "AllServices"
	case DiscoverServicesByUUID:
		return "ServicesByUUID"
	case DiscoverIncludedServices:
		return "IncludedServices"
	case DiscoverCharacteristics:
		return "Characteristics"
	case DiscoverDescriptors:
		return "Descriptors"
	}
	return "Unknown"
}

// DiscoveryRecord is one parsed discovery result. Handle and Type are always
// set; the remaining fields are filled per kind:
//
//	services:          EndHandle, ServiceUUID
//	included services: IncludedStart, IncludedEnd, ServiceUUID
//	characteristics:   Properties, ValueHandle, CharUUID
//	descriptors:       Type is the descriptor UUID
type DiscoveryRecord struct {
	Handle uint16
	Type   att.UUID

	EndHandle   uint16
	ServiceUUID att.UUID

	IncludedStart uint16
	IncludedEnd   uint16

	Properties  uint8
	ValueHandle uint16
	CharUUID    att.UUID
}

// App is the northbound contract. Each registered application supplies the
// callbacks it cares about; nil callbacks are skipped. OnComplete also
// receives server-initiated notifications and indications, and an app
// without OnComplete does not take part in indication acknowledgement.
type App struct {
	OnDiscoveryResult   func(id ConnID, kind DiscoveryKind, rec DiscoveryRecord)
	OnDiscoveryComplete func(id ConnID, kind DiscoveryKind, status Status)
	OnComplete          func(id ConnID, ev Event, enc EncryptStatus, c Completion)
}
