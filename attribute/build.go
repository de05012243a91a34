package attribute

import (
	"encoding/binary"

	"github.com/josharian/native"
)

func Uint8(typ uint16, v uint8) Attribute {
	return Attribute{Type: typ, Data: []byte{v}}
}

func Uint16(typ uint16, v uint16) Attribute {
	b := make([]byte, 2)
	native.Endian.PutUint16(b, v)
	return Attribute{Type: typ, Data: b}
}

func Uint32(typ uint16, v uint32) Attribute {
	b := make([]byte, 4)
	native.Endian.PutUint32(b, v)
	return Attribute{Type: typ, Data: b}
}

func Uint64(typ uint16, v uint64) Attribute {
	b := make([]byte, 8)
	native.Endian.PutUint64(b, v)
	return Attribute{Type: typ, Data: b}
}

func Int8(typ uint16, v int8) Attribute   { return Uint8(typ, uint8(v)) }
func Int16(typ uint16, v int16) Attribute { return Uint16(typ, uint16(v)) }
func Int32(typ uint16, v int32) Attribute { return Uint32(typ, uint32(v)) }
func Int64(typ uint16, v int64) Attribute { return Uint64(typ, uint64(v)) }

// BigEndianUint16 stores v in network byte order and flags it as such.
func BigEndianUint16(typ uint16, v uint16) Attribute {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return Attribute{Type: typ, NetByteOrder: true, Data: b}
}

func BigEndianUint32(typ uint16, v uint32) Attribute {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return Attribute{Type: typ, NetByteOrder: true, Data: b}
}

// String builds a NUL-terminated string attribute (NLA_NUL_STRING).
func String(typ uint16, s string) Attribute {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return Attribute{Type: typ, Data: b}
}

// Bytes builds an attribute with an opaque payload. The slice is not copied.
func Bytes(typ uint16, b []byte) Attribute {
	return Attribute{Type: typ, Data: b}
}

// Flag builds a payload-less attribute whose presence is the value.
func Flag(typ uint16) Attribute {
	return Attribute{Type: typ}
}

// Nest builds an attribute with NLA_F_NESTED set wrapping children.
func Nest(typ uint16, children ...Attribute) Attribute {
	return Attribute{Type: typ, Nested: true, Children: children}
}
