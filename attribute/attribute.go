// Package attribute implements the netlink type-length-value attribute
// format. Be sure to check netlink(7) and include/uapi/linux/netlink.h for the
// kernel's view of things:
//
//	|<-- 2 bytes -->|<-- 2 bytes -->|<-- length - 4 bytes -->|<- pad ->|
//	+---------------+---------------+------------------------+---------+
//	|    length     |     type      |        payload         | 0 ... 3 |
//	+---------------+---------------+------------------------+---------+
//
// The length covers the 4-byte header and the payload, but never the padding
// needed to bring the next attribute onto a 4-byte boundary. The two upper
// bits of the type are flags: NLA_F_NESTED (1 << 15) marks a payload made up
// of further attributes and NLA_F_NET_BYTEORDER (1 << 14) marks an integer
// payload in network byte order.
//
// Decoding is lazy: payloads are handed out as sub-slices of the input buffer
// and are only interpreted when a typed view (Uint32, String...) is asked for.
package attribute

// All of these names mirror the kernel's NLA_* macros.
const (
	// HeaderLen is the size of the length and type fields.
	HeaderLen = 4

	// Alignment is NLA_ALIGNTO.
	Alignment = 4

	// FlagNested is NLA_F_NESTED.
	FlagNested uint16 = 1 << 15

	// FlagNetByteOrder is NLA_F_NET_BYTEORDER.
	FlagNetByteOrder uint16 = 1 << 14

	// TypeMask is NLA_TYPE_MASK: the 14 bits left for the semantic type.
	TypeMask uint16 = ^(FlagNested | FlagNetByteOrder)

	// MaxLen is the largest length the 16-bit length field can hold.
	MaxLen = 0xFFFF
)

// Align rounds n up to the next attribute boundary.
func Align(n int) int {
	return (n + Alignment - 1) & ^(Alignment - 1)
}

// An Attribute is a node in an attribute tree. Leaves carry their payload in
// Data whilst nested attributes carry their children in Children. Decoded
// attributes reference the buffer they were decoded from.
type Attribute struct {
	// Type is the semantic type, flags already stripped.
	Type uint16

	Nested       bool
	NetByteOrder bool

	// Data is nil for decoded attributes with an empty payload, whether they
	// were built with Flag or with Bytes and an empty slice. The wire can't
	// tell them apart.
	Data     []byte
	Children Attributes
}

// rawType rebuilds the on-the-wire type with its flag bits.
func (a Attribute) rawType() uint16 {
	t := a.Type & TypeMask
	if a.Nested {
		t |= FlagNested
	}
	if a.NetByteOrder {
		t |= FlagNetByteOrder
	}
	return t
}

// PayloadLen returns the unpadded payload length, which is what ends up in
// the length field minus the header.
func (a Attribute) PayloadLen() int {
	if !a.Nested {
		return len(a.Data)
	}
	return a.Children.encodedLen()
}

// EncodedLen returns the number of bytes the attribute takes up on the wire,
// padding included.
func (a Attribute) EncodedLen() int {
	return Align(HeaderLen + a.PayloadLen())
}

// Attributes is an ordered attribute sequence. Repeated types are allowed and
// preserved: it's up to each family to give them a meaning.
type Attributes []Attribute

func (as Attributes) encodedLen() int {
	n := 0
	for _, a := range as {
		n += a.EncodedLen()
	}
	return n
}

// Get returns the first attribute with the given type.
func (as Attributes) Get(typ uint16) (Attribute, bool) {
	for _, a := range as {
		if a.Type == typ {
			return a, true
		}
	}
	return Attribute{}, false
}

// All returns every attribute with the given type in the order they appear.
func (as Attributes) All(typ uint16) Attributes {
	var res Attributes
	for _, a := range as {
		if a.Type == typ {
			res = append(res, a)
		}
	}
	return res
}
