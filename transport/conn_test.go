package transport

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/josharian/native"
	"github.com/scitags/gonl/internal/nltest"
	"github.com/scitags/gonl/message"
	"github.com/scitags/gonl/types"
	"golang.org/x/sys/unix"
)

func init() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelError,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Remove time.
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Remove the directory from the source's filename.
			if a.Key == slog.SourceKey {
				source := a.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return a
		},
	}))
	slog.SetDefault(logger)
}

const testType message.Type = 0x20

type testObserver struct {
	sync.Mutex
	sent     int
	received int
	done     map[State]int
	dropped  map[string]int
}

func newTestObserver() *testObserver {
	return &testObserver{done: map[State]int{}, dropped: map[string]int{}}
}

func (o *testObserver) RequestSent() {
	o.Lock()
	o.sent++
	o.Unlock()
}

func (o *testObserver) RequestDone(s State, _ time.Duration) {
	o.Lock()
	o.done[s]++
	o.Unlock()
}

func (o *testObserver) MessageReceived(message.Type) {
	o.Lock()
	o.received++
	o.Unlock()
}

func (o *testObserver) MessageDropped(reason string) {
	o.Lock()
	o.dropped[reason]++
	o.Unlock()
}

func (o *testObserver) drops(reason string) int {
	o.Lock()
	defer o.Unlock()
	return o.dropped[reason]
}

func newTestConn(t *testing.T, h nltest.Handler, config *Config) (*Conn, *nltest.Kernel, *testObserver) {
	t.Helper()

	if config == nil {
		config = &Config{Log: true, NotificationBuffer: 16}
	}

	k := nltest.NewKernel(4321, h)
	obs := newTestObserver()
	c := NewConn(k, config, obs)
	t.Cleanup(func() { c.Close() })

	return c, k, obs
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func request(flags message.Flags, payload string) message.Message {
	return message.Message{
		Header:  message.Header{Type: testType, Flags: message.Request | flags},
		Payload: []byte(payload),
	}
}

func reply(seq uint32, payload string) message.Message {
	return message.Message{
		Header:  message.Header{Type: testType, Sequence: seq},
		Payload: []byte(payload),
	}
}

func payloads(msgs []message.Message) []string {
	ps := []string{}
	for _, m := range msgs {
		ps = append(ps, string(m.Payload))
	}
	return ps
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSequenceCorrelation(t *testing.T) {
	c, k, obs := newTestConn(t, nil, nil)

	c.pending.Lock()
	c.pending.next = 4
	c.pending.Unlock()
	r5, err := c.Send(request(0, "five"))
	if err != nil {
		t.Fatalf("error sending: %v", err)
	}

	c.pending.Lock()
	c.pending.next = 6
	c.pending.Unlock()
	r7, err := c.Send(request(0, "seven"))
	if err != nil {
		t.Fatalf("error sending: %v", err)
	}

	if r5.Seq != 5 || r7.Seq != 7 {
		t.Fatalf("got sequence numbers %d and %d", r5.Seq, r7.Seq)
	}

	for _, m := range k.Sent() {
		if m.Header.PortID != 4321 {
			t.Errorf("request %d wasn't stamped with our port ID", m.Header.Sequence)
		}
	}

	k.Inject(nltest.Batch(reply(7, "seven"), reply(99, "stale"), reply(5, "five")))

	ctx := testContext(t)
	for want, r := range map[string]*Request{"five": r5, "seven": r7} {
		msgs, err := r.Wait(ctx)
		if err != nil {
			t.Fatalf("request %d failed: %v", r.Seq, err)
		}
		if diff := cmp.Diff([]string{want}, payloads(msgs)); diff != "" {
			t.Errorf("request %d got the wrong replies (-want +got):\n%s", r.Seq, diff)
		}
		if r.State() != Done {
			t.Errorf("request %d ended up %s", r.Seq, r.State())
		}
	}

	if n := obs.drops(DropUnmatched); n != 1 {
		t.Errorf("expected the stale reply to be dropped, got %d drops", n)
	}
}

func TestMultipart(t *testing.T) {
	c, _, _ := newTestConn(t, func(req message.Message) [][]byte {
		return [][]byte{
			nltest.Batch(
				nltest.Part(req, testType, []byte("a")),
				nltest.Part(req, testType, []byte("b")),
			),
			nltest.Batch(
				nltest.Part(req, testType, []byte("c")),
				nltest.Done(req),
			),
		}
	}, nil)

	msgs, err := c.Execute(testContext(t), request(message.Dump, ""))
	if err != nil {
		t.Fatalf("error executing the dump: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, payloads(msgs)); diff != "" {
		t.Errorf("wrong fragments (-want +got):\n%s", diff)
	}
}

func TestTeardown(t *testing.T) {
	c, _, obs := newTestConn(t, func(req message.Message) [][]byte {
		return [][]byte{nltest.Batch(
			nltest.Part(req, testType, []byte("a")),
			nltest.Part(req, testType, []byte("b")),
		)}
	}, nil)

	r, err := c.Send(request(message.Dump, ""))
	if err != nil {
		t.Fatalf("error sending: %v", err)
	}

	waitFor(t, "both fragments", func() bool {
		c.pending.Lock()
		defer c.pending.Unlock()
		return r.state == Collecting && len(r.msgs) == 2
	})

	if err := c.Close(); err != nil {
		t.Fatalf("error closing: %v", err)
	}

	msgs, err := r.Wait(testContext(t))
	if !errors.Is(err, types.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if msgs != nil {
		t.Errorf("got partial results %v", payloads(msgs))
	}
	if r.State() != Cancelled {
		t.Errorf("request ended up %s", r.State())
	}

	if _, err := c.Send(request(0, "")); !errors.Is(err, types.ErrClosed) {
		t.Errorf("expected ErrClosed sending after Close, got %v", err)
	}

	if _, ok := <-c.Notifications(); ok {
		t.Errorf("the notification channel should be closed")
	}

	obs.Lock()
	defer obs.Unlock()
	if obs.done[Cancelled] != 1 {
		t.Errorf("expected a cancelled request, got %v", obs.done)
	}
}

func TestKernelError(t *testing.T) {
	c, _, _ := newTestConn(t, func(req message.Message) [][]byte {
		if string(req.Payload) == "bad" {
			return [][]byte{nltest.Batch(nltest.Error(req, int32(unix.ENODEV), "no such device"))}
		}
		return [][]byte{nltest.Batch(nltest.Reply(req, testType, []byte("ok")))}
	}, nil)

	bad, err := c.Send(request(0, "bad"))
	if err != nil {
		t.Fatalf("error sending: %v", err)
	}
	good, err := c.Send(request(0, "good"))
	if err != nil {
		t.Fatalf("error sending: %v", err)
	}

	ctx := testContext(t)

	_, err = bad.Wait(ctx)
	var ke *types.KernelError
	if !errors.As(err, &ke) {
		t.Fatalf("expected a *types.KernelError, got %v", err)
	}
	if ke.Errno != 19 || !errors.Is(err, unix.ENODEV) {
		t.Errorf("expected ENODEV, got %v", ke.Errno)
	}
	if ke.Message != "no such device" {
		t.Errorf("extended ack %q", ke.Message)
	}
	if bad.State() != Failed {
		t.Errorf("bad request ended up %s", bad.State())
	}

	msgs, err := good.Wait(ctx)
	if err != nil {
		t.Fatalf("good request failed: %v", err)
	}
	if diff := cmp.Diff([]string{"ok"}, payloads(msgs)); diff != "" {
		t.Errorf("wrong replies (-want +got):\n%s", diff)
	}
}

func TestAcknowledgement(t *testing.T) {
	c, _, _ := newTestConn(t, func(req message.Message) [][]byte {
		return [][]byte{nltest.Batch(nltest.Ack(req))}
	}, nil)

	msgs, err := c.Execute(testContext(t), request(message.Ack, "set something"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no replies, got %d", len(msgs))
	}
}

func TestDumpTermination(t *testing.T) {
	tests := map[string]struct {
		replies func(req message.Message) []message.Message
		wantErr error
		wantN   int
	}{
		"interrupted": {
			replies: func(req message.Message) []message.Message {
				intr := nltest.Part(req, testType, []byte("b"))
				intr.Header.Flags |= message.DumpInterrupted
				return []message.Message{nltest.Part(req, testType, []byte("a")), intr, nltest.Done(req)}
			},
			wantErr: types.ErrDumpInterrupted,
			wantN:   2,
		},
		"doneError": {
			replies: func(req message.Message) []message.Message {
				done := nltest.Done(req)
				code := -int32(unix.EPERM)
				native.Endian.PutUint32(done.Payload, uint32(code))
				return []message.Message{nltest.Part(req, testType, []byte("a")), done}
			},
			wantErr: unix.EPERM,
		},
		"overrun": {
			replies: func(req message.Message) []message.Message {
				return []message.Message{nltest.Reply(req, message.NLMSG_OVERRUN, nil)}
			},
			wantErr: types.ErrOverrun,
		},
		"noop": {
			replies: func(req message.Message) []message.Message {
				return []message.Message{
					nltest.Reply(req, message.NLMSG_NOOP, nil),
					nltest.Part(req, testType, []byte("a")),
					nltest.Done(req),
				}
			},
			wantN: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c, _, _ := newTestConn(t, func(req message.Message) [][]byte {
				return [][]byte{nltest.Batch(tc.replies(req)...)}
			}, nil)

			msgs, err := c.Execute(testContext(t), request(message.Dump, ""))
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if len(msgs) != tc.wantN {
				t.Errorf("expected %d messages, got %d", tc.wantN, len(msgs))
			}
		})
	}
}

func TestNotifications(t *testing.T) {
	c, _, _ := newTestConn(t, func(req message.Message) [][]byte {
		return [][]byte{nltest.Batch(
			nltest.Part(req, testType, []byte("a")),
			nltest.Notification(0x21, []byte("event")),
			nltest.Part(req, testType, []byte("b")),
			nltest.Done(req),
		)}
	}, nil)

	msgs, err := c.Execute(testContext(t), request(message.Dump, ""))
	if err != nil {
		t.Fatalf("error executing the dump: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, payloads(msgs)); diff != "" {
		t.Errorf("the notification leaked into the dump (-want +got):\n%s", diff)
	}

	select {
	case n := <-c.Notifications():
		if n.Header.Type != 0x21 || string(n.Payload) != "event" {
			t.Errorf("unexpected notification %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no notification was delivered")
	}
}

func TestNotificationOverflow(t *testing.T) {
	c, k, obs := newTestConn(t, func(req message.Message) [][]byte {
		return [][]byte{nltest.Batch(nltest.Ack(req))}
	}, &Config{NotificationBuffer: 1})

	k.Inject(nltest.Batch(
		nltest.Notification(0x21, []byte("1")),
		nltest.Notification(0x21, []byte("2")),
		nltest.Notification(0x21, []byte("3")),
	))

	// Replies are queued after the notifications, so once this returns
	// they've all been handled.
	if _, err := c.Execute(testContext(t), request(message.Ack, "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := obs.drops(DropNotification); n != 2 {
		t.Errorf("expected 2 dropped notifications, got %d", n)
	}
	if n := <-c.Notifications(); string(n.Payload) != "1" {
		t.Errorf("expected the first notification to be kept, got %q", n.Payload)
	}
}

func TestMalformedDatagram(t *testing.T) {
	c, k, obs := newTestConn(t, nil, nil)

	r, err := c.Send(request(0, ""))
	if err != nil {
		t.Fatalf("error sending: %v", err)
	}

	garbage := make([]byte, message.HeaderLen)
	native.Endian.PutUint32(garbage[0:4], 8)
	k.Inject(garbage)

	// A valid reply followed by a truncated one in the same datagram.
	k.Inject(append(nltest.Batch(reply(r.Seq, "ok")), 0xff, 0xff, 0xff))

	msgs, err := r.Wait(testContext(t))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if diff := cmp.Diff([]string{"ok"}, payloads(msgs)); diff != "" {
		t.Errorf("wrong replies (-want +got):\n%s", diff)
	}

	waitFor(t, "malformed drops", func() bool { return obs.drops(DropMalformed) == 2 })
	if c.Err() != nil {
		t.Errorf("malformed input should never be fatal: %v", c.Err())
	}
}

func TestReceiveErrors(t *testing.T) {
	c, k, obs := newTestConn(t, nil, nil)

	k.Fail(unix.ENOBUFS)

	r, err := c.Send(request(0, ""))
	if err != nil {
		t.Fatalf("error sending: %v", err)
	}
	k.Inject(nltest.Batch(reply(r.Seq, "ok")))
	if _, err := r.Wait(testContext(t)); err != nil {
		t.Fatalf("a transient error shouldn't affect requests: %v", err)
	}
	if obs.drops(DropOverrun) != 1 {
		t.Errorf("the overrun wasn't accounted for")
	}

	r, err = c.Send(request(0, ""))
	if err != nil {
		t.Fatalf("error sending: %v", err)
	}
	k.Fail(unix.EBADF)

	_, err = r.Wait(testContext(t))
	var ioErr *types.IoError
	if !errors.As(err, &ioErr) || !errors.Is(err, unix.EBADF) {
		t.Fatalf("expected an IoError wrapping EBADF, got %v", err)
	}
	if r.State() != Failed {
		t.Errorf("request ended up %s", r.State())
	}

	waitFor(t, "the loop to exit", func() bool { return c.Err() != nil })
	if _, err := c.Send(request(0, "")); !errors.Is(err, types.ErrClosed) {
		t.Errorf("expected ErrClosed after a fatal error, got %v", err)
	}
}

func TestWaitTimeout(t *testing.T) {
	c, k, obs := newTestConn(t, nil, nil)

	r, err := c.Send(request(0, ""))
	if err != nil {
		t.Fatalf("error sending: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = r.Wait(ctx)
	if !errors.Is(err, types.ErrCancelled) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a cancellation due to the deadline, got %v", err)
	}
	if c.pending.len() != 0 {
		t.Errorf("the request wasn't removed from the pending table")
	}

	k.Inject(nltest.Batch(reply(r.Seq, "late")))
	waitFor(t, "the late reply to be dropped", func() bool { return obs.drops(DropUnmatched) == 1 })
}

func TestGroups(t *testing.T) {
	c, k, _ := newTestConn(t, nil, nil)

	if err := c.JoinGroup(3); err != nil {
		t.Fatalf("error joining: %v", err)
	}
	if !k.Member(3) {
		t.Errorf("group 3 wasn't joined")
	}
	if err := c.LeaveGroup(3); err != nil {
		t.Fatalf("error leaving: %v", err)
	}
	if k.Member(3) {
		t.Errorf("group 3 wasn't left")
	}
}
