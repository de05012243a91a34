package nltest

import (
	"github.com/josharian/native"
	"github.com/scitags/gonl/message"
)

// Batch packs messages back to back into a single datagram.
func Batch(msgs ...message.Message) []byte {
	var b []byte
	for _, m := range msgs {
		b = append(b, message.Encode(m.Header, m.Payload)...)
	}
	return b
}

// Reply builds a single-part reply to req.
func Reply(req message.Message, typ message.Type, payload []byte) message.Message {
	return message.Message{
		Header: message.Header{
			Type:     typ,
			Sequence: req.Header.Sequence,
			PortID:   0,
		},
		Payload: payload,
	}
}

// Part builds one fragment of a multipart reply to req.
func Part(req message.Message, typ message.Type, payload []byte) message.Message {
	m := Reply(req, typ, payload)
	m.Header.Flags = message.Multi
	return m
}

// Done terminates a multipart reply. The kernel always appends the dump's
// error code, 0 when it succeeded.
func Done(req message.Message) message.Message {
	p := make([]byte, 4)
	native.Endian.PutUint32(p, 0)
	return message.Message{
		Header: message.Header{
			Type:     message.NLMSG_DONE,
			Flags:    message.Multi,
			Sequence: req.Header.Sequence,
		},
		Payload: p,
	}
}

// Ack acknowledges req.
func Ack(req message.Message) message.Message {
	return message.NewError(req.Header, 0, "")
}

// Error rejects req with errno, which is given as a positive number.
func Error(req message.Message, errno int32, extMsg string) message.Message {
	return message.NewError(req.Header, -errno, extMsg)
}

// Notification builds an unsolicited message.
func Notification(typ message.Type, payload []byte) message.Message {
	return message.Message{Header: message.Header{Type: typ}, Payload: payload}
}
