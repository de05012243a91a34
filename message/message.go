// Package message implements the fixed netlink message header and the
// framing rules for batches of messages. Be sure to check netlink(7) and
// include/uapi/linux/netlink.h:
//
//	+---------+------+-------+----------+---------+---------------+---------+
//	| len u32 | type | flags | seq u32  | pid u32 | payload       | padding |
//	|         | u16  | u16   |          |         | (len - 16)    | 0 ... 3 |
//	+---------+------+-------+----------+---------+---------------+---------+
//
// All integers are in host byte order. The kernel is free to pack several
// messages back to back in a single datagram, which is why each of them needs
// to be padded up to a 4-byte boundary.
package message

import (
	"fmt"
	"strings"
)

const (
	// HeaderLen is sizeof(struct nlmsghdr).
	HeaderLen = 16

	// Alignment is NLMSG_ALIGNTO.
	Alignment = 4
)

// Align rounds n up to the next message boundary.
func Align(n int) int {
	return (n + Alignment - 1) & ^(Alignment - 1)
}

// Type is the nlmsg_type field: either one of the reserved control types or
// a protocol specific value (the family ID for generic netlink).
type Type uint16

// All of these constants' names make the linter complain, but we inherited
// these names from external C code, so we will keep them.
const (
	NLMSG_NOOP     Type = 0x1
	NLMSG_ERROR    Type = 0x2
	NLMSG_DONE     Type = 0x3
	NLMSG_OVERRUN  Type = 0x4
	NLMSG_MIN_TYPE Type = 0x10
)

var typeName = map[Type]string{
	NLMSG_NOOP:    "NOOP",
	NLMSG_ERROR:   "ERROR",
	NLMSG_DONE:    "DONE",
	NLMSG_OVERRUN: "OVERRUN",
}

func (t Type) String() string {
	if n, ok := typeName[t]; ok {
		return n
	}
	return fmt.Sprintf("%#x", uint16(t))
}

// Control reports whether t is one of the reserved control types.
func (t Type) Control() bool {
	return t < NLMSG_MIN_TYPE
}

// Flags is the nlmsg_flags bitmask. Bits 8 to 11 are overloaded: their
// meaning depends on whether the request is a GET, a NEW or a DELETE style
// one, and on whether the message is an acknowledgement.
type Flags uint16

const (
	Request         Flags = 0x1
	Multi           Flags = 0x2
	Ack             Flags = 0x4
	Echo            Flags = 0x8
	DumpInterrupted Flags = 0x10
	DumpFiltered    Flags = 0x20

	// Modifiers to GET requests.
	Root   Flags = 0x100
	Match  Flags = 0x200
	Atomic Flags = 0x400
	Dump   Flags = Root | Match

	// Modifiers to NEW requests.
	Replace Flags = 0x100
	Excl    Flags = 0x200
	Create  Flags = 0x400
	Append  Flags = 0x800

	// Modifiers to DELETE requests.
	NonRecursive Flags = 0x100
	Bulk         Flags = 0x200

	// Flags for acknowledgements.
	Capped  Flags = 0x100
	AckTLVs Flags = 0x200
)

// Names for the flags whose meaning doesn't depend on context. The overloaded
// bits are named after their GET meaning.
var flagNames = []struct {
	f    Flags
	name string
}{
	{Request, "REQUEST"},
	{Multi, "MULTI"},
	{Ack, "ACK"},
	{Echo, "ECHO"},
	{DumpInterrupted, "DUMP_INTR"},
	{DumpFiltered, "DUMP_FILTERED"},
	{Root, "ROOT"},
	{Match, "MATCH"},
	{Atomic, "ATOMIC"},
	{Append, "APPEND"},
}

func (f Flags) String() string {
	if f == 0 {
		return "0"
	}

	var (
		names []string
		left  = f
	)
	for _, fn := range flagNames {
		if f&fn.f != 0 {
			names = append(names, fn.name)
			left &^= fn.f
		}
	}
	if left != 0 {
		names = append(names, fmt.Sprintf("%#x", uint16(left)))
	}
	return strings.Join(names, "|")
}

// Header is struct nlmsghdr.
type Header struct {
	// Length of the message including the header but excluding the
	// trailing padding.
	Length uint32

	Type  Type
	Flags Flags

	// Sequence correlates replies with requests. The kernel uses 0 for
	// unsolicited notifications.
	Sequence uint32

	// PortID is the netlink address of the sender (0 for the kernel).
	PortID uint32
}

// A Message is a header plus its undecoded payload.
type Message struct {
	Header  Header
	Payload []byte
}
