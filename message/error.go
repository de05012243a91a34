package message

import (
	"fmt"

	"github.com/josharian/native"
	"github.com/scitags/gonl/attribute"
	"github.com/scitags/gonl/types"
)

// Extended acknowledgement attributes (enum nlmsgerr_attrs).
const (
	NLMSGERR_ATTR_UNUSED = 0
	NLMSGERR_ATTR_MSG    = 1
	NLMSGERR_ATTR_OFFS   = 2
	NLMSGERR_ATTR_COOKIE = 3
)

const errnoLen = 4

// ErrorPayload is struct nlmsgerr plus the extended acknowledgement TLVs the
// kernel appends when NETLINK_EXT_ACK is enabled on the socket.
type ErrorPayload struct {
	// Errno is the raw code: 0 for a plain acknowledgement and a negative
	// errno otherwise.
	Errno int32

	// Request is the header of the request being answered.
	Request Header

	Message string
	Offset  uint32
}

// DecodeError parses the payload of an NLMSG_ERROR message.
func DecodeError(m Message) (ErrorPayload, error) {
	b := m.Payload
	if len(b) < errnoLen {
		return ErrorPayload{}, fmt.Errorf("error payload of %d bytes: %w", len(b), types.ErrTruncatedMessage)
	}

	ep := ErrorPayload{Errno: int32(native.Endian.Uint32(b[0:errnoLen]))}

	// Some peers only bother with the code.
	if len(b) < errnoLen+HeaderLen {
		return ep, nil
	}
	ep.Request = parseHeader(b[errnoLen:])

	if m.Header.Flags&AckTLVs == 0 {
		return ep, nil
	}

	// Without NLM_F_CAPPED the whole request is echoed back before the TLVs.
	// Acknowledgements never echo the payload.
	off := errnoLen + HeaderLen
	if m.Header.Flags&Capped == 0 && ep.Errno != 0 {
		off = errnoLen + Align(int(ep.Request.Length))
	}
	if off > len(b) {
		return ep, fmt.Errorf("extended ack at offset %d of %d bytes: %w", off, len(b), types.ErrTruncatedMessage)
	}

	attrs, err := attribute.Decode(b[off:])
	if err != nil {
		return ep, fmt.Errorf("error decoding extended ack: %w", err)
	}
	if s, ok, _ := attrs.String(NLMSGERR_ATTR_MSG); ok {
		ep.Message = s
	}
	if o, ok, _ := attrs.Uint32(NLMSGERR_ATTR_OFFS); ok {
		ep.Offset = o
	}

	return ep, nil
}

// Err maps the payload onto a *types.KernelError, or nil for an
// acknowledgement.
func (ep ErrorPayload) Err() error {
	ke := types.NewKernelError(ep.Errno)
	if ke == nil {
		return nil
	}
	ke.Message = ep.Message
	ke.Offset = ep.Offset
	return ke
}

// NewError builds the NLMSG_ERROR reply the kernel would send for req. An
// errno of 0 builds an acknowledgement. A non-empty extMsg is appended as an
// extended ack message.
func NewError(req Header, errno int32, extMsg string) Message {
	h := Header{
		Type:     NLMSG_ERROR,
		Flags:    Capped,
		Sequence: req.Sequence,
		PortID:   req.PortID,
	}

	b := make([]byte, errnoLen+HeaderLen)
	native.Endian.PutUint32(b[0:errnoLen], uint32(errno))
	req.put(b[errnoLen:])

	if extMsg != "" {
		h.Flags |= AckTLVs
		// Encoding a single short string can't fail.
		b, _ = attribute.Append(b, attribute.Attributes{attribute.String(NLMSGERR_ATTR_MSG, extMsg)})
	}

	h.Length = uint32(HeaderLen + len(b))
	return Message{Header: h, Payload: b}
}
