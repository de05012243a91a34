package message

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/josharian/native"
	"github.com/mdlayher/netlink"
	"github.com/scitags/gonl/types"
	"golang.org/x/sys/unix"
)

func TestEncodeDecode(t *testing.T) {
	h := Header{
		Type:     0x1c,
		Flags:    Request | Ack,
		Sequence: 7,
		PortID:   1234,
	}
	payload := []byte{1, 2, 3, 4, 5}

	b := Encode(h, payload)
	if len(b) != 24 {
		t.Fatalf("encoded %d bytes, want 24", len(b))
	}

	m, n, err := DecodeOne(b)
	if err != nil {
		t.Fatalf("error decoding: %v", err)
	}
	if n != len(b) {
		t.Errorf("consumed %d bytes, want %d", n, len(b))
	}

	h.Length = HeaderLen + uint32(len(payload))
	if diff := cmp.Diff(Message{Header: h, Payload: payload}, m); diff != "" {
		t.Errorf("decoded message differs (-want +got):\n%s", diff)
	}
}

func TestBatch(t *testing.T) {
	var (
		buf  []byte
		want []Message
	)
	for i, p := range [][]byte{{1}, {1, 2, 3, 4}, nil, {9, 9, 9, 9, 9, 9}} {
		h := Header{Type: NLMSG_MIN_TYPE, Flags: Multi, Sequence: uint32(i + 1)}
		buf = append(buf, Encode(h, p)...)

		h.Length = uint32(HeaderLen + len(p))
		want = append(want, Message{Header: h, Payload: p})
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("error decoding the batch: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded batch differs (-want +got):\n%s", diff)
	}
}

func TestTruncation(t *testing.T) {
	b := Encode(Header{Type: NLMSG_MIN_TYPE, Sequence: 1}, []byte("some payload"))

	declared := HeaderLen + len("some payload")
	for i := 0; i < declared; i++ {
		_, _, err := DecodeOne(b[:i])
		if !errors.Is(err, types.ErrTruncatedMessage) {
			t.Errorf("prefix %d: expected ErrTruncatedMessage, got %v", i, err)
		}
	}
}

func TestPartialBatch(t *testing.T) {
	first := Encode(Header{Type: NLMSG_MIN_TYPE, Sequence: 1}, []byte{1, 2, 3, 4})
	second := Encode(Header{Type: NLMSG_MIN_TYPE, Sequence: 2}, []byte{1, 2, 3, 4})

	msgs, err := Decode(append(first, second[:20]...))
	if !errors.Is(err, types.ErrTruncatedMessage) {
		t.Errorf("expected ErrTruncatedMessage, got %v", err)
	}
	if len(msgs) != 1 || msgs[0].Header.Sequence != 1 {
		t.Errorf("expected the first message to survive, got %+v", msgs)
	}
}

func TestInvalidLength(t *testing.T) {
	b := Encode(Header{Type: NLMSG_MIN_TYPE}, nil)
	native.Endian.PutUint32(b[0:4], 8)

	if _, _, err := DecodeOne(b); !errors.Is(err, types.ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
}

func TestCompatibility(t *testing.T) {
	m := netlink.Message{
		Header: netlink.Header{
			Length:   HeaderLen + 8,
			Type:     netlink.HeaderType(0x10),
			Flags:    netlink.Request | netlink.Dump,
			Sequence: 42,
			PID:      4321,
		},
		Data: []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	want, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("error marshaling with mdlayher/netlink: %v", err)
	}

	got := Encode(Header{Type: 0x10, Flags: Request | Dump, Sequence: 42, PortID: 4321}, m.Data)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("encodings differ (-mdlayher +ours):\n%s", diff)
	}
}

func TestFlagsString(t *testing.T) {
	tests := map[Flags]string{
		0:                       "0",
		Request | Ack:           "REQUEST|ACK",
		Request | Dump:          "REQUEST|ROOT|MATCH",
		Multi | DumpInterrupted: "MULTI|DUMP_INTR",
		Flags(0x8000) | Request: "REQUEST|0x8000",
	}
	for f, want := range tests {
		if got := f.String(); got != want {
			t.Errorf("Flags(%#x).String() = %q, want %q", uint16(f), got, want)
		}
	}

	if NLMSG_DONE.String() != "DONE" || Type(0x1c).String() != "0x1c" {
		t.Errorf("unexpected type names %q, %q", NLMSG_DONE, Type(0x1c))
	}
}

func TestErrorPayload(t *testing.T) {
	req := Header{Length: 36, Type: 0x1c, Flags: Request | Ack, Sequence: 5, PortID: 99}

	tests := map[string]struct {
		errno   int32
		extMsg  string
		wantErr error
	}{
		"ack":    {errno: 0},
		"enodev": {errno: -int32(unix.ENODEV), wantErr: unix.ENODEV},
		"extack": {errno: -int32(unix.EINVAL), extMsg: "missing attribute", wantErr: unix.EINVAL},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m := NewError(req, tc.errno, tc.extMsg)

			// Push it through the wire format to exercise the real decoder.
			wire, _, err := DecodeOne(Encode(m.Header, m.Payload))
			if err != nil {
				t.Fatalf("error decoding: %v", err)
			}

			ep, err := DecodeError(wire)
			if err != nil {
				t.Fatalf("error decoding the error payload: %v", err)
			}
			if ep.Request != req {
				t.Errorf("echoed header %+v, want %+v", ep.Request, req)
			}

			err = ep.Err()
			if tc.wantErr == nil {
				if err != nil {
					t.Errorf("expected an acknowledgement, got %v", err)
				}
				return
			}

			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
			var ke *types.KernelError
			if !errors.As(err, &ke) {
				t.Fatalf("expected a *types.KernelError, got %T", err)
			}
			if ke.Errno != tc.wantErr {
				t.Errorf("errno %d, want %d", ke.Errno, tc.wantErr)
			}
			if ke.Message != tc.extMsg {
				t.Errorf("extended ack %q, want %q", ke.Message, tc.extMsg)
			}
		})
	}
}

func TestShortErrorPayload(t *testing.T) {
	m := Message{Header: Header{Type: NLMSG_ERROR}, Payload: []byte{1, 2}}
	if _, err := DecodeError(m); !errors.Is(err, types.ErrTruncatedMessage) {
		t.Errorf("expected ErrTruncatedMessage, got %v", err)
	}
}
