// Package genetlink implements the generic netlink sub-protocol: the 4-byte
// header following the netlink header, the controller (nlctrl) used to map
// family names onto their dynamically assigned IDs and a client dispatching
// commands to resolved families.
//
//	+--------+---------+--------------+----------------------+
//	| cmd u8 | ver u8  | reserved u16 | attributes ...       |
//	+--------+---------+--------------+----------------------+
//
// The numeric netlink message type of a generic netlink message is the ID of
// the family it's addressed to. This package is the only place translating
// between those IDs and family names.
package genetlink

import (
	"fmt"

	"github.com/scitags/gonl/attribute"
	"github.com/scitags/gonl/types"
)

// HeaderLen is GENL_HDRLEN.
const HeaderLen = 4

type Header struct {
	Command uint8
	Version uint8
}

// A Message is a generic netlink header plus the attributes following it.
// Parsed messages share their backing storage with the received datagram and
// should be treated as read-only.
type Message struct {
	Header     Header
	Attributes attribute.Attributes
}

// MarshalBinary encodes the generic netlink header and attributes. The
// reserved bytes are always zeroed.
func (m Message) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderLen, HeaderLen+4*len(m.Attributes))
	b[0] = m.Header.Command
	b[1] = m.Header.Version

	b, err := attribute.Append(b, m.Attributes)
	if err != nil {
		return nil, fmt.Errorf("error encoding attributes for command %d: %w", m.Header.Command, err)
	}
	return b, nil
}

// Unmarshal parses a generic netlink payload, that is, the bytes following
// the netlink header.
func Unmarshal(b []byte) (Message, error) {
	if len(b) < HeaderLen {
		return Message{}, fmt.Errorf("%d bytes left for a %d-byte generic header: %w",
			len(b), HeaderLen, types.ErrTruncatedMessage)
	}

	attrs, err := attribute.Decode(b[HeaderLen:])
	if err != nil {
		return Message{}, fmt.Errorf("error decoding attributes for command %d: %w", b[0], err)
	}

	return Message{
		Header:     Header{Command: b[0], Version: b[1]},
		Attributes: attrs,
	}, nil
}
