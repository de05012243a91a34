package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/josharian/native"
	"github.com/scitags/gonl/message"
	"github.com/scitags/gonl/types"
)

type State int

const (
	Sent State = iota
	Collecting
	Done
	Failed
	Cancelled
)

var stateName = map[State]string{
	Sent:       "sent",
	Collecting: "collecting",
	Done:       "done",
	Failed:     "failed",
	Cancelled:  "cancelled",
}

func (s State) String() string {
	if n, ok := stateName[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s >= Done
}

// A Request is an in-flight exchange with the kernel. Its fields are only
// touched with the owning table locked until done is closed. From then on
// they're immutable.
type Request struct {
	Seq   uint32
	Flags message.Flags

	table   *pendingTable
	startTS time.Time
	done    chan struct{}

	state       State
	msgs        []message.Message
	err         error
	interrupted bool
}

func newRequest(flags message.Flags) *Request {
	return &Request{
		Flags:   flags,
		startTS: time.Now(),
		done:    make(chan struct{}),
		state:   Sent,
	}
}

// advance feeds one reply into the state machine and reports whether the
// request reached a terminal state. It doesn't care about how replies are
// pumped, which keeps it trivially testable.
func (r *Request) advance(m message.Message) bool {
	switch m.Header.Type {
	case message.NLMSG_NOOP:
		return false

	case message.NLMSG_ERROR:
		ep, err := message.DecodeError(m)
		if err != nil {
			return r.fail(fmt.Errorf("error decoding the error reply: %w", err))
		}
		if kerr := ep.Err(); kerr != nil {
			return r.fail(kerr)
		}
		// A plain acknowledgement.
		return r.finish()

	case message.NLMSG_OVERRUN:
		return r.fail(types.ErrOverrun)

	case message.NLMSG_DONE:
		// Dumps failing half way through report the error in the payload
		// of NLMSG_DONE. Check net/netlink/af_netlink.c:netlink_dump_done.
		if len(m.Payload) >= 4 {
			if kerr := types.NewKernelError(int32(native.Endian.Uint32(m.Payload[0:4]))); kerr != nil {
				return r.fail(kerr)
			}
		}
		return r.finish()
	}

	if m.Header.Flags&message.DumpInterrupted != 0 {
		r.interrupted = true
	}

	r.msgs = append(r.msgs, m)
	if m.Header.Flags&message.Multi != 0 {
		r.state = Collecting
		return false
	}

	return r.finish()
}

func (r *Request) finish() bool {
	r.state = Done
	if r.interrupted {
		r.err = types.ErrDumpInterrupted
	}
	return true
}

func (r *Request) fail(err error) bool {
	r.state = Failed
	r.err = err
	r.msgs = nil
	return true
}

func (r *Request) cancel(err error) {
	r.state = Cancelled
	r.err = err
	r.msgs = nil
}

// Wait blocks until the request completes or ctx expires. In the latter case
// the request is cancelled so that late replies are dropped. Completed dumps
// the kernel flagged as interrupted are returned alongside
// types.ErrDumpInterrupted.
func (r *Request) Wait(ctx context.Context) ([]message.Message, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		r.table.cancel(r, fmt.Errorf("%w: %w", types.ErrCancelled, ctx.Err()))
		<-r.done
	}
	return r.msgs, r.err
}

// Cancel abandons the request. It's a no-op on completed requests.
func (r *Request) Cancel() {
	r.table.cancel(r, types.ErrCancelled)
}

// State is only meaningful once Done returns a closed channel.
func (r *Request) State() State {
	select {
	case <-r.done:
		return r.state
	default:
		return Sent
	}
}

// Done is closed when the request reaches a terminal state.
func (r *Request) Done() <-chan struct{} {
	return r.done
}
