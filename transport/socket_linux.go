//go:build linux

package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"

	"github.com/mdlayher/netlink"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// RawSocket is a netlink socket handing out whole datagrams. Creating and
// binding the socket and managing its options is left to mdlayher/netlink,
// whereas reads and writes go straight to the file descriptor: we need the
// raw datagrams rather than parsed messages.
type RawSocket struct {
	c   *netlink.Conn
	rc  syscall.RawConn
	pid uint32

	// Scratch space for peeking at the next datagram's size.
	peek [1]byte
}

// OpenSocket opens and binds a netlink socket for protocol. Multicast groups
// listed in the configuration are joined right away.
func OpenSocket(protocol Protocol, config *Config) (*RawSocket, error) {
	if config == nil {
		config = &DefaultConfig
	}

	c, err := netlink.Dial(int(protocol), &netlink.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not open a %s netlink socket: %w", protocol, err)
	}

	s, err := newRawSocket(c, config)
	if err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func newRawSocket(c *netlink.Conn, config *Config) (*RawSocket, error) {
	rc, err := c.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("could not get the raw connection: %w", err)
	}

	s := &RawSocket{c: c, rc: rc}

	// There's no way of getting the PID out of a netlink.Conn, so we simply
	// ask the kernel which address we were bound to.
	var (
		sa    unix.Sockaddr
		saErr error
	)
	if err := rc.Control(func(fd uintptr) {
		sa, saErr = unix.Getsockname(int(fd))
	}); err != nil {
		return nil, err
	}
	if saErr != nil {
		return nil, fmt.Errorf("getsockname: %w", saErr)
	}
	nsa, ok := sa.(*unix.SockaddrNetlink)
	if !ok {
		return nil, fmt.Errorf("unexpected socket address %T", sa)
	}
	s.pid = nsa.Pid

	if config.ExtendedAck {
		// Old kernels reject the option, which isn't reason enough to bail out.
		if err := c.SetOption(netlink.ExtendedAcknowledge, true); err != nil {
			slog.Debug("couldn't enable extended acknowledgements", "err", err)
		}
	}

	if config.StrictCheck {
		if err := c.SetOption(netlink.GetStrictCheck, true); err != nil {
			return nil, fmt.Errorf("could not enable strict checking: %w", err)
		}
	}

	if config.ReceiveBufferSize > 0 {
		size := capReceiveBuffer(config.ReceiveBufferSize)
		if err := c.SetReadBuffer(size); err != nil {
			return nil, fmt.Errorf("could not set the receive buffer to %d bytes: %w", size, err)
		}
	}

	for _, g := range config.Groups {
		if err := c.JoinGroup(g); err != nil {
			return nil, fmt.Errorf("could not join multicast group %d: %w", g, err)
		}
	}

	return s, nil
}

// The kernel silently caps SO_RCVBUF at net.core.rmem_max for unprivileged
// processes. We'd rather know the actual figure.
func capReceiveBuffer(want int) int {
	fs, err := procfs.NewFS(procfs.DefaultMountPoint)
	if err != nil {
		slog.Debug("couldn't initialise the procfs filesystem", "err", err)
		return want
	}

	vals, err := fs.SysctlInts("net.core.rmem_max")
	if err != nil || len(vals) == 0 {
		slog.Debug("couldn't read net.core.rmem_max", "err", err)
		return want
	}

	if want > vals[0] {
		slog.Warn("capping the receive buffer at net.core.rmem_max", "wanted", want, "max", vals[0])
		return vals[0]
	}
	return want
}

func (s *RawSocket) PortID() uint32 {
	return s.pid
}

func (s *RawSocket) Send(b []byte) error {
	to := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}

	var serr error
	err := s.rc.Write(func(fd uintptr) bool {
		serr = unix.Sendto(int(fd), b, 0, to)
		return !errors.Is(serr, unix.EAGAIN)
	})
	if err != nil {
		return err
	}
	return serr
}

func (s *RawSocket) recv(b []byte, flags int) (int, error) {
	var (
		n    int
		rerr error
	)
	err := s.rc.Read(func(fd uintptr) bool {
		n, _, rerr = unix.Recvfrom(int(fd), b, flags)
		return !errors.Is(rerr, unix.EAGAIN)
	})
	if err != nil {
		return 0, err
	}
	return n, rerr
}

// Receive sizes the next datagram with MSG_PEEK|MSG_TRUNC before reading it
// so that it's never truncated, no matter how large dumps get.
func (s *RawSocket) Receive() ([]byte, error) {
	n, err := s.recv(s.peek[:], unix.MSG_PEEK|unix.MSG_TRUNC)
	if err != nil {
		return nil, err
	}

	b := make([]byte, n)
	n, err = s.recv(b, 0)
	if err != nil {
		return nil, err
	}
	return b[:n], nil
}

func (s *RawSocket) JoinGroup(group uint32) error {
	return s.c.JoinGroup(group)
}

func (s *RawSocket) LeaveGroup(group uint32) error {
	return s.c.LeaveGroup(group)
}

func (s *RawSocket) Close() error {
	return s.c.Close()
}
