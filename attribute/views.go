package attribute

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/josharian/native"
	"github.com/scitags/gonl/types"
)

func (a Attribute) order() binary.ByteOrder {
	if a.NetByteOrder {
		return binary.BigEndian
	}
	return native.Endian
}

func (a Attribute) expect(width int) error {
	if a.Nested {
		return fmt.Errorf("attribute %d is nested: %w", a.Type, types.ErrInvalidLength)
	}
	if len(a.Data) != width {
		return fmt.Errorf("attribute %d: expected %d bytes, got %d: %w",
			a.Type, width, len(a.Data), types.ErrInvalidLength)
	}
	return nil
}

func (a Attribute) Uint8() (uint8, error) {
	if err := a.expect(1); err != nil {
		return 0, err
	}
	return a.Data[0], nil
}

func (a Attribute) Uint16() (uint16, error) {
	if err := a.expect(2); err != nil {
		return 0, err
	}
	return a.order().Uint16(a.Data), nil
}

func (a Attribute) Uint32() (uint32, error) {
	if err := a.expect(4); err != nil {
		return 0, err
	}
	return a.order().Uint32(a.Data), nil
}

func (a Attribute) Uint64() (uint64, error) {
	if err := a.expect(8); err != nil {
		return 0, err
	}
	return a.order().Uint64(a.Data), nil
}

func (a Attribute) Int8() (int8, error) {
	v, err := a.Uint8()
	return int8(v), err
}

func (a Attribute) Int16() (int16, error) {
	v, err := a.Uint16()
	return int16(v), err
}

func (a Attribute) Int32() (int32, error) {
	v, err := a.Uint32()
	return int32(v), err
}

func (a Attribute) Int64() (int64, error) {
	v, err := a.Uint64()
	return int64(v), err
}

// NetUint16 reads a big endian value no matter what the flag says: plenty of
// families send ports and the like in network order without setting it.
func (a Attribute) NetUint16() (uint16, error) {
	if err := a.expect(2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(a.Data), nil
}

func (a Attribute) NetUint32() (uint32, error) {
	if err := a.expect(4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(a.Data), nil
}

// String interprets the payload as a C string. Anything after the first NUL
// is ignored and a missing terminator is tolerated.
func (a Attribute) String() (string, error) {
	if a.Nested {
		return "", fmt.Errorf("attribute %d is nested: %w", a.Type, types.ErrInvalidLength)
	}
	if i := bytes.IndexByte(a.Data, 0); i >= 0 {
		return string(a.Data[:i]), nil
	}
	return string(a.Data), nil
}

// HardwareAddr interprets a 6-byte payload as a MAC/BSSID.
func (a Attribute) HardwareAddr() (net.HardwareAddr, error) {
	if err := a.expect(6); err != nil {
		return nil, err
	}
	return net.HardwareAddr(a.Data), nil
}

// Flag reports whether a NLA_FLAG style attribute is valid, that is, whether
// it carries no payload at all.
func (a Attribute) Flag() (bool, error) {
	if err := a.expect(0); err != nil {
		return false, err
	}
	return true, nil
}

// NestedAttributes returns the children of a. Quite a few kernel families
// (the generic netlink controller amongst them) don't bother setting
// NLA_F_NESTED, so the raw payload gets decoded on demand when the flag is
// missing.
func (a Attribute) NestedAttributes() (Attributes, error) {
	if a.Nested {
		return a.Children, nil
	}
	children, err := Decode(a.Data)
	if err != nil {
		return nil, fmt.Errorf("nested attribute %d: %w", a.Type, err)
	}
	return children, nil
}

// Lookups by type. They fail with an error wrapping ErrInvalidLength when the
// attribute is present but malformed and return ok == false when it's absent.

func (as Attributes) Uint16(typ uint16) (uint16, bool, error) {
	a, ok := as.Get(typ)
	if !ok {
		return 0, false, nil
	}
	v, err := a.Uint16()
	return v, true, err
}

func (as Attributes) Uint32(typ uint16) (uint32, bool, error) {
	a, ok := as.Get(typ)
	if !ok {
		return 0, false, nil
	}
	v, err := a.Uint32()
	return v, true, err
}

func (as Attributes) String(typ uint16) (string, bool, error) {
	a, ok := as.Get(typ)
	if !ok {
		return "", false, nil
	}
	v, err := a.String()
	return v, true, err
}
