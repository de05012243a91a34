package message

import (
	"fmt"

	"github.com/josharian/native"
	"github.com/scitags/gonl/types"
)

func (h Header) put(b []byte) {
	native.Endian.PutUint32(b[0:4], h.Length)
	native.Endian.PutUint16(b[4:6], uint16(h.Type))
	native.Endian.PutUint16(b[6:8], uint16(h.Flags))
	native.Endian.PutUint32(b[8:12], h.Sequence)
	native.Endian.PutUint32(b[12:16], h.PortID)
}

func parseHeader(b []byte) Header {
	return Header{
		Length:   native.Endian.Uint32(b[0:4]),
		Type:     Type(native.Endian.Uint16(b[4:6])),
		Flags:    Flags(native.Endian.Uint16(b[6:8])),
		Sequence: native.Endian.Uint32(b[8:12]),
		PortID:   native.Endian.Uint32(b[12:16]),
	}
}

// Encode frames payload behind h. The length field is computed here, so
// whatever h.Length holds is ignored. The result is padded to a 4-byte
// boundary so that it can be concatenated with further messages.
func Encode(h Header, payload []byte) []byte {
	l := HeaderLen + len(payload)
	h.Length = uint32(l)

	b := make([]byte, Align(l))
	h.put(b)
	copy(b[HeaderLen:], payload)
	return b
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m Message) MarshalBinary() ([]byte, error) {
	return Encode(m.Header, m.Payload), nil
}

// DecodeOne decodes the message at the start of b. It returns the number of
// bytes consumed, which includes the padding if any: the last message in a
// datagram is allowed to come without it, just like the kernel allows (see
// net/netlink/af_netlink.c:netlink_rcv_skb).
func DecodeOne(b []byte) (Message, int, error) {
	if len(b) < HeaderLen {
		return Message{}, 0, fmt.Errorf("%d bytes left for a %d-byte header: %w",
			len(b), HeaderLen, types.ErrTruncatedMessage)
	}

	h := parseHeader(b)
	if h.Length < HeaderLen {
		return Message{}, 0, fmt.Errorf("declared length %d: %w", h.Length, types.ErrInvalidLength)
	}
	if uint64(h.Length) > uint64(len(b)) {
		return Message{}, 0, fmt.Errorf("declared length %d exceeds the %d bytes left: %w",
			h.Length, len(b), types.ErrTruncatedMessage)
	}

	l := int(h.Length)
	m := Message{Header: h}
	if l > HeaderLen {
		m.Payload = b[HeaderLen:l:l]
	}

	n := Align(l)
	if n > len(b) {
		n = len(b)
	}
	return m, n, nil
}

// Decode decodes every message in b. On failure it returns whatever it
// managed to decode before the offending message together with the error.
func Decode(b []byte) ([]Message, error) {
	var (
		msgs []Message
		off  int
	)
	for off < len(b) {
		m, n, err := DecodeOne(b[off:])
		if err != nil {
			return msgs, fmt.Errorf("message at offset %d: %w", off, err)
		}
		msgs = append(msgs, m)
		off += n
	}
	return msgs, nil
}
