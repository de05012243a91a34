package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/scitags/gonl/message"
	"github.com/scitags/gonl/types"
)

// pendingTable maps sequence numbers onto in-flight requests. The counter and
// the map share the same lock so that allocating a number and registering it
// happen atomically.
type pendingTable struct {
	sync.Mutex
	pending map[uint32]*Request
	next    uint32

	// Once set no more requests are accepted.
	closedErr error

	obs Observer
}

func newPendingTable(obs Observer) *pendingTable {
	return &pendingTable{pending: make(map[uint32]*Request), obs: obs}
}

// insert stamps r with a free sequence number and registers it. Numbers wrap
// around from the maximum back to 1 as 0 is reserved for notifications, and
// numbers still in use are skipped.
func (p *pendingTable) insert(r *Request) error {
	p.Lock()
	defer p.Unlock()

	if p.closedErr != nil {
		return fmt.Errorf("%w: %w", types.ErrClosed, p.closedErr)
	}

	for {
		p.next++
		if p.next == 0 {
			continue
		}
		if _, busy := p.pending[p.next]; !busy {
			break
		}
	}

	r.Seq = p.next
	r.table = p
	p.pending[r.Seq] = r
	return nil
}

// dispatch routes a reply to its request. It reports false when nobody is
// waiting for that sequence number.
func (p *pendingTable) dispatch(m message.Message) bool {
	p.Lock()
	defer p.Unlock()

	r, ok := p.pending[m.Header.Sequence]
	if !ok {
		return false
	}

	if r.advance(m) {
		p.completeLocked(r)
	}
	return true
}

func (p *pendingTable) completeLocked(r *Request) {
	delete(p.pending, r.Seq)
	close(r.done)
	p.obs.RequestDone(r.state, time.Since(r.startTS))
}

func (p *pendingTable) cancel(r *Request, err error) {
	p.Lock()
	defer p.Unlock()

	if cur, ok := p.pending[r.Seq]; !ok || cur != r {
		return
	}
	r.cancel(err)
	p.completeLocked(r)
}

// fail terminates a single request which never made it to the wire.
func (p *pendingTable) fail(r *Request, err error) {
	p.Lock()
	defer p.Unlock()

	if cur, ok := p.pending[r.Seq]; !ok || cur != r {
		return
	}
	r.fail(err)
	p.completeLocked(r)
}

// failAll terminates every pending request and rejects any further one.
// Partial dumps are discarded. Requests end up Cancelled when err is
// types.ErrCancelled and Failed otherwise.
func (p *pendingTable) failAll(err error) int {
	p.Lock()
	defer p.Unlock()

	if p.closedErr == nil {
		p.closedErr = err
	}

	n := len(p.pending)
	for _, r := range p.pending {
		if errors.Is(err, types.ErrCancelled) {
			r.cancel(err)
		} else {
			r.fail(err)
		}
		p.completeLocked(r)
	}
	return n
}

func (p *pendingTable) len() int {
	p.Lock()
	defer p.Unlock()
	return len(p.pending)
}
