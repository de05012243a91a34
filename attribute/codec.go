package attribute

import (
	"fmt"

	"github.com/josharian/native"
	"github.com/scitags/gonl/types"
)

// Decode walks b and returns the attribute sequence it contains. Payloads
// flagged as nested are decoded recursively; everything else is left as a
// view into b. Padding bytes are skipped without being checked and the last
// attribute may come without its trailing padding.
func Decode(b []byte) (Attributes, error) {
	var (
		attrs Attributes
		off   int
	)
	for off < len(b) {
		a, n, err := decodeOne(b[off:])
		if err != nil {
			return nil, fmt.Errorf("attribute at offset %d: %w", off, err)
		}
		attrs = append(attrs, a)
		off += n
	}
	return attrs, nil
}

// decodeOne decodes the attribute at the start of b and reports how many
// bytes were consumed, padding included.
func decodeOne(b []byte) (Attribute, int, error) {
	if len(b) < HeaderLen {
		return Attribute{}, 0, fmt.Errorf("%d bytes left for a %d-byte header: %w",
			len(b), HeaderLen, types.ErrTruncatedAttribute)
	}

	l := int(native.Endian.Uint16(b[0:2]))
	t := native.Endian.Uint16(b[2:4])

	if l < HeaderLen {
		return Attribute{}, 0, fmt.Errorf("declared length %d: %w", l, types.ErrInvalidLength)
	}
	if l > len(b) {
		return Attribute{}, 0, fmt.Errorf("declared length %d exceeds the %d bytes left: %w",
			l, len(b), types.ErrTruncatedAttribute)
	}

	a := Attribute{
		Type:         t & TypeMask,
		Nested:       t&FlagNested != 0,
		NetByteOrder: t&FlagNetByteOrder != 0,
	}

	// Limit the capacity too so that appending to a payload can never
	// scribble over the following attribute.
	payload := b[HeaderLen:l:l]

	if a.Nested {
		children, err := Decode(payload)
		if err != nil {
			return Attribute{}, 0, fmt.Errorf("nested attribute %d: %w", a.Type, err)
		}
		a.Children = children
	} else if len(payload) > 0 {
		a.Data = payload
	}

	n := Align(l)
	if n > len(b) {
		n = len(b)
	}
	return a, n, nil
}

// Encode serialises attrs in the given order.
func Encode(attrs Attributes) ([]byte, error) {
	return Append(make([]byte, 0, attrs.encodedLen()), attrs)
}

// Append serialises attrs at the end of b.
func Append(b []byte, attrs Attributes) ([]byte, error) {
	var err error
	for _, a := range attrs {
		if b, err = appendOne(b, a); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func appendOne(b []byte, a Attribute) ([]byte, error) {
	l := HeaderLen + a.PayloadLen()
	if l > MaxLen {
		return nil, fmt.Errorf("attribute %d needs %d bytes: %w", a.Type, l, types.ErrInvalidLength)
	}

	var hdr [HeaderLen]byte
	native.Endian.PutUint16(hdr[0:2], uint16(l))
	native.Endian.PutUint16(hdr[2:4], a.rawType())
	b = append(b, hdr[:]...)

	if a.Nested {
		var err error
		if b, err = Append(b, a.Children); err != nil {
			return nil, fmt.Errorf("nested attribute %d: %w", a.Type, err)
		}
	} else {
		b = append(b, a.Data...)
	}

	for i := l; i < Align(l); i++ {
		b = append(b, 0)
	}
	return b, nil
}
