// Package nltest provides a scripted stand-in for the kernel side of a
// netlink socket so that the upper layers can be exercised without root
// privileges or a real kernel.
package nltest

import (
	"sync"

	"github.com/scitags/gonl/message"
	"github.com/scitags/gonl/types"
)

// A Handler answers a single request with zero or more datagrams.
type Handler func(req message.Message) [][]byte

type event struct {
	b   []byte
	err error
}

// Kernel implements transport.Socket and transport.GroupJoiner.
type Kernel struct {
	Handler Handler

	pid    uint32
	events chan event

	mu      sync.Mutex
	sent    []message.Message
	groups  map[uint32]bool
	closed  bool
	closeCh chan struct{}
}

// NewKernel returns a fake kernel answering requests with h, which may be nil
// when replies are to be injected by hand.
func NewKernel(pid uint32, h Handler) *Kernel {
	return &Kernel{
		Handler: h,
		pid:     pid,
		events:  make(chan event, 1024),
		groups:  make(map[uint32]bool),
		closeCh: make(chan struct{}),
	}
}

func (k *Kernel) PortID() uint32 {
	return k.pid
}

// Send records every message in b and queues whatever the handler replies.
func (k *Kernel) Send(b []byte) error {
	msgs, err := message.Decode(b)
	if err != nil {
		return err
	}

	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return types.ErrClosed
	}
	k.sent = append(k.sent, msgs...)
	k.mu.Unlock()

	if k.Handler == nil {
		return nil
	}
	for _, m := range msgs {
		for _, d := range k.Handler(m) {
			k.Inject(d)
		}
	}
	return nil
}

func (k *Kernel) Receive() ([]byte, error) {
	select {
	case ev := <-k.events:
		return ev.b, ev.err
	case <-k.closeCh:
		return nil, types.ErrClosed
	}
}

// Inject queues a raw datagram for the next Receive.
func (k *Kernel) Inject(datagram []byte) {
	k.events <- event{b: datagram}
}

// Fail makes the next Receive return err.
func (k *Kernel) Fail(err error) {
	k.events <- event{err: err}
}

func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.closed {
		k.closed = true
		close(k.closeCh)
	}
	return nil
}

// Sent returns every message written so far.
func (k *Kernel) Sent() []message.Message {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]message.Message(nil), k.sent...)
}

func (k *Kernel) JoinGroup(group uint32) error {
	k.mu.Lock()
	k.groups[group] = true
	k.mu.Unlock()
	return nil
}

func (k *Kernel) LeaveGroup(group uint32) error {
	k.mu.Lock()
	delete(k.groups, group)
	k.mu.Unlock()
	return nil
}

func (k *Kernel) Member(group uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.groups[group]
}
