package transport

import (
	"errors"
	"math"
	"testing"

	"github.com/scitags/gonl/internal/nltest"
	"github.com/scitags/gonl/message"
	"github.com/scitags/gonl/types"
	"golang.org/x/sys/unix"
)

func TestSequenceAllocation(t *testing.T) {
	p := newPendingTable(nopObserver{})

	first := newRequest(0)
	if err := p.insert(first); err != nil {
		t.Fatalf("error inserting: %v", err)
	}
	if first.Seq != 1 {
		t.Errorf("sequence numbers should start at 1, got %d", first.Seq)
	}

	p.next = math.MaxUint32 - 1
	last := newRequest(0)
	p.insert(last)
	if last.Seq != math.MaxUint32 {
		t.Errorf("expected %d, got %d", uint32(math.MaxUint32), last.Seq)
	}

	// 0 is reserved and 1 is still in use.
	wrapped := newRequest(0)
	p.insert(wrapped)
	if wrapped.Seq != 2 {
		t.Errorf("expected the counter to wrap onto 2, got %d", wrapped.Seq)
	}

	if p.len() != 3 {
		t.Errorf("expected 3 pending requests, got %d", p.len())
	}

	p.failAll(types.ErrCancelled)
	if err := p.insert(newRequest(0)); !errors.Is(err, types.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestStateMachine(t *testing.T) {
	req := message.Message{Header: message.Header{Type: testType, Sequence: 1, Length: message.HeaderLen}}

	part := nltest.Part(req, testType, []byte("x"))
	single := nltest.Reply(req, testType, []byte("x"))

	tests := map[string]struct {
		in       []message.Message
		terminal bool
		state    State
		n        int
	}{
		"single":     {in: []message.Message{single}, terminal: true, state: Done, n: 1},
		"collecting": {in: []message.Message{part, part}, terminal: false, state: Collecting, n: 2},
		"dump":       {in: []message.Message{part, part, nltest.Done(req)}, terminal: true, state: Done, n: 2},
		"ack":        {in: []message.Message{nltest.Ack(req)}, terminal: true, state: Done, n: 0},
		"error":      {in: []message.Message{part, nltest.Error(req, int32(unix.ENOENT), "")}, terminal: true, state: Failed, n: 0},
		"noop":       {in: []message.Message{nltest.Reply(req, message.NLMSG_NOOP, nil)}, terminal: false, state: Sent, n: 0},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := newRequest(message.Request)

			var terminal bool
			for _, m := range tc.in {
				// Go through the wire format so that lengths are filled in.
				wire, _, err := message.DecodeOne(message.Encode(m.Header, m.Payload))
				if err != nil {
					t.Fatalf("error decoding: %v", err)
				}
				terminal = r.advance(wire)
			}

			if terminal != tc.terminal {
				t.Errorf("terminal = %t, want %t", terminal, tc.terminal)
			}
			if r.state != tc.state {
				t.Errorf("state = %s, want %s", r.state, tc.state)
			}
			if len(r.msgs) != tc.n {
				t.Errorf("accumulated %d messages, want %d", len(r.msgs), tc.n)
			}
		})
	}
}

func TestStateNames(t *testing.T) {
	for s, want := range map[State]string{Sent: "sent", Cancelled: "cancelled", State(42): "state(42)"} {
		if s.String() != want {
			t.Errorf("got %q, want %q", s.String(), want)
		}
	}

	p, err := ParseProtocol("kobject_uevent")
	if err != nil || p != NETLINK_KOBJECT_UEVENT {
		t.Errorf("ParseProtocol = %v, %v", p, err)
	}
}
