package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/scitags/gonl/message"
	"github.com/scitags/gonl/types"
	"golang.org/x/sys/unix"
)

// A Conn multiplexes requests and notifications over a Socket.
type Conn struct {
	Config

	sock Socket
	log  *slog.Logger
	obs  Observer

	pending *pendingTable

	// Serialises writes so that datagrams are never interleaved.
	wmu sync.Mutex

	notifyChan chan message.Message

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
	loopDone  chan struct{}

	errMu sync.Mutex
	err   error
}

// NewConn takes ownership of sock and starts the receive loop. A nil config
// means DefaultConfig and a nil obs discards every event.
func NewConn(sock Socket, config *Config, obs Observer) *Conn {
	if config == nil {
		config = &DefaultConfig
	}
	if obs == nil {
		obs = nopObserver{}
	}

	c := &Conn{
		Config:     *config,
		sock:       sock,
		log:        types.ComponentLogger("transport", config.Log),
		obs:        obs,
		pending:    newPendingTable(obs),
		notifyChan: make(chan message.Message, config.NotificationBuffer),
		loopDone:   make(chan struct{}),
	}

	go c.receiveLoop()

	return c
}

// Dial opens a socket for protocol and wraps it in a Conn.
func Dial(protocol Protocol, config *Config, obs Observer) (*Conn, error) {
	if config == nil {
		config = &DefaultConfig
	}

	sock, err := OpenSocket(protocol, config)
	if err != nil {
		return nil, err
	}

	return NewConn(sock, config, obs), nil
}

func (c *Conn) PortID() uint32 {
	return c.sock.PortID()
}

// Send stamps m with a fresh sequence number, registers it and writes it out.
// It doesn't wait for any reply: that's what Request.Wait is for. The request
// flag is not implied.
func (c *Conn) Send(m message.Message) (*Request, error) {
	r := newRequest(m.Header.Flags)
	if err := c.pending.insert(r); err != nil {
		return nil, err
	}

	m.Header.Sequence = r.Seq
	if m.Header.PortID == 0 {
		m.Header.PortID = c.sock.PortID()
	}
	b := message.Encode(m.Header, m.Payload)

	c.log.Log(context.Background(), types.LevelTrace, "sending message",
		"type", m.Header.Type, "flags", m.Header.Flags, "seq", r.Seq, "len", len(b))

	c.wmu.Lock()
	err := c.sock.Send(b)
	c.wmu.Unlock()

	if err != nil {
		ioErr := &types.IoError{Op: "send", Err: err}
		c.pending.fail(r, ioErr)
		return nil, ioErr
	}

	c.obs.RequestSent()
	return r, nil
}

// Execute sends m and waits for it to complete.
func (c *Conn) Execute(ctx context.Context, m message.Message) ([]message.Message, error) {
	r, err := c.Send(m)
	if err != nil {
		return nil, err
	}
	return r.Wait(ctx)
}

// Notifications carries every message the kernel sent with a sequence number
// of 0. The channel is closed once the receive loop exits.
func (c *Conn) Notifications() <-chan message.Message {
	return c.notifyChan
}

func (c *Conn) JoinGroup(group uint32) error {
	gj, ok := c.sock.(GroupJoiner)
	if !ok {
		return fmt.Errorf("socket %T can't join multicast groups", c.sock)
	}
	if err := gj.JoinGroup(group); err != nil {
		return &types.IoError{Op: "join-group", Err: err}
	}
	return nil
}

func (c *Conn) LeaveGroup(group uint32) error {
	gj, ok := c.sock.(GroupJoiner)
	if !ok {
		return fmt.Errorf("socket %T can't leave multicast groups", c.sock)
	}
	if err := gj.LeaveGroup(group); err != nil {
		return &types.IoError{Op: "leave-group", Err: err}
	}
	return nil
}

// Err returns the error that brought the receive loop down, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close cancels every pending request, releases the socket and waits for the
// receive loop to exit.
func (c *Conn) Close() error {
	c.closing.Store(true)

	if n := c.pending.failAll(types.ErrCancelled); n > 0 {
		c.log.Debug("cancelled pending requests", "n", n)
	}
	err := c.closeSocket()
	<-c.loopDone

	return err
}

func (c *Conn) closeSocket() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.sock.Close()
	})
	return c.closeErr
}

// Errors worth retrying the read after. ENOBUFS means the kernel dropped
// messages because we weren't fast enough: pending dumps may never complete,
// but that's up to their callers' deadlines.
func transient(err error) bool {
	return errors.Is(err, unix.ENOBUFS) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}

func (c *Conn) receiveLoop() {
	defer close(c.loopDone)
	defer close(c.notifyChan)

	c.log.Debug("starting the receive loop", "pid", c.sock.PortID())

	for {
		b, err := c.sock.Receive()
		if err != nil {
			if c.closing.Load() {
				c.log.Debug("cleanly exiting the receive loop")
				return
			}

			if transient(err) {
				c.log.Warn("transient receive error", "err", err)
				if errors.Is(err, unix.ENOBUFS) {
					c.obs.MessageDropped(DropOverrun)
				}
				continue
			}

			ioErr := &types.IoError{Op: "receive", Err: err}
			c.log.Error("fatal receive error, tearing down", "err", err)

			c.errMu.Lock()
			c.err = ioErr
			c.errMu.Unlock()

			c.pending.failAll(ioErr)
			c.closeSocket()
			return
		}

		c.process(b)
	}
}

// process handles a single datagram. A malformed message makes us give up on
// the rest of the datagram as there's no telling where the next one starts.
func (c *Conn) process(b []byte) {
	for off := 0; off < len(b); {
		m, n, err := message.DecodeOne(b[off:])
		if err != nil {
			c.log.Warn("abandoning malformed datagram", "offset", off, "len", len(b), "err", err)
			c.obs.MessageDropped(DropMalformed)
			return
		}
		off += n

		c.obs.MessageReceived(m.Header.Type)
		c.log.Log(context.Background(), types.LevelTrace, "received message",
			"type", m.Header.Type, "flags", m.Header.Flags, "seq", m.Header.Sequence, "pid", m.Header.PortID)

		if m.Header.Type == message.NLMSG_NOOP {
			continue
		}

		if m.Header.Sequence == 0 {
			c.notify(m)
			continue
		}

		if !c.pending.dispatch(m) {
			c.log.Debug("dropping reply for unknown request", "seq", m.Header.Sequence, "type", m.Header.Type)
			c.obs.MessageDropped(DropUnmatched)
		}
	}
}

// Notifications are handed over as soon as they arrive, even in the middle
// of a dump. The loop never waits for a slow consumer.
func (c *Conn) notify(m message.Message) {
	select {
	case c.notifyChan <- m:
	default:
		c.log.Warn("notification buffer full, dropping", "type", m.Header.Type)
		c.obs.MessageDropped(DropNotification)
	}
}
