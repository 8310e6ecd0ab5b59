package att

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// base is the Bluetooth Base UUID. 16-bit and 32-bit UUIDs occupy the first
// four bytes of it when expanded to 128 bits.
var base = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// UUID is a Bluetooth UUID. The zero value means "no UUID" and is used as the
// wildcard filter in discovery. Internally every UUID is kept in its expanded
// canonical 128-bit form together with its shortest representation size.
type UUID struct {
	val  uuid.UUID
	size uint8 // shortest representation in bytes: 0, 2, 4 or 16
}

// UUID16 builds a 16-bit Bluetooth UUID.
func UUID16(v uint16) UUID {
	u := base
	binary.BigEndian.PutUint32(u[0:4], uint32(v))
	return UUID{val: u, size: 2}
}

// UUID32 builds a 32-bit Bluetooth UUID.
func UUID32(v uint32) UUID {
	u := base
	binary.BigEndian.PutUint32(u[0:4], v)
	return UUID{val: u, size: 4}
}

// ParseUUID parses a canonical string form
// ("xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"). UUIDs that fall inside the
// Bluetooth base range come back in their shortest representation.
func ParseUUID(s string) (UUID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("att: parse uuid: %w", err)
	}
	return fromCanonical(v), nil
}

// MustParseUUID is ParseUUID for compile-time constants; it panics on error.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// fromCanonical classifies a canonical 128-bit value by its shortest
// Bluetooth representation.
func fromCanonical(v uuid.UUID) UUID {
	onBase := true
	for i := 4; i < 16; i++ {
		if v[i] != base[i] {
			onBase = false
			break
		}
	}
	switch {
	case onBase && v[0] == 0 && v[1] == 0:
		return UUID{val: v, size: 2}
	case onBase:
		return UUID{val: v, size: 4}
	default:
		return UUID{val: v, size: 16}
	}
}

// UUIDFromLE decodes a little-endian wire representation. Accepted lengths
// are 2, 4 and 16 bytes; anything else reports ok == false.
func UUIDFromLE(b []byte) (UUID, bool) {
	switch len(b) {
	case 2:
		return UUID16(binary.LittleEndian.Uint16(b)), true
	case 4:
		return UUID32(binary.LittleEndian.Uint32(b)), true
	case 16:
		var v uuid.UUID
		for i := 0; i < 16; i++ {
			v[i] = b[15-i]
		}
		return fromCanonical(v), true
	default:
		return UUID{}, false
	}
}

// IsZero reports whether u is the zero (wildcard) UUID.
func (u UUID) IsZero() bool { return u.size == 0 }

// Is16Bit reports whether the shortest representation is 16 bits.
func (u UUID) Is16Bit() bool { return u.size == 2 }

// As16Bit returns the 16-bit value. Only meaningful when Is16Bit is true.
func (u UUID) As16Bit() uint16 {
	return binary.BigEndian.Uint16(u.val[2:4])
}

// LE returns the wire form: two bytes little-endian for a 16-bit UUID,
// sixteen bytes little-endian otherwise. 32-bit UUIDs are always expanded to
// 128 bits on the wire.
func (u UUID) LE() []byte {
	if u.size == 2 {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, u.As16Bit())
		return b
	}
	le := u.LE128()
	return le[:]
}

// LE128 returns the expanded 128-bit little-endian wire form.
func (u UUID) LE128() [16]byte {
	var b [16]byte
	for i := 0; i < 16; i++ {
		b[i] = u.val[15-i]
	}
	return b
}

// Equal compares two UUIDs over their expanded 128-bit values, so a 16-bit
// UUID equals its promoted form.
func (u UUID) Equal(o UUID) bool { return u.val == o.val }

// String renders short UUIDs as 0xXXXX and everything else canonically.
func (u UUID) String() string {
	switch u.size {
	case 0:
		return "<none>"
	case 2:
		return fmt.Sprintf("0x%04X", u.As16Bit())
	default:
		return u.val.String()
	}
}
