package uevent

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/scitags/gonl/transport"
	"github.com/scitags/gonl/types"
)

// A Monitor reads uevents straight off a socket. There's no request/reply
// traffic involved, so there's no need for a transport.Conn.
type Monitor struct {
	Config

	sock transport.Socket
	log  *slog.Logger
}

// Open binds a NETLINK_KOBJECT_UEVENT socket to the configured groups.
func Open(config *Config) (*Monitor, error) {
	if config == nil {
		config = &DefaultConfig
	}

	sock, err := transport.OpenSocket(transport.NETLINK_KOBJECT_UEVENT, &transport.Config{
		Log:               config.Log,
		Groups:            config.Groups,
		ReceiveBufferSize: config.ReceiveBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open the uevent socket: %w", err)
	}

	return NewMonitor(sock, config), nil
}

func NewMonitor(sock transport.Socket, config *Config) *Monitor {
	if config == nil {
		config = &DefaultConfig
	}

	return &Monitor{
		Config: *config,
		sock:   sock,
		log:    types.ComponentLogger("uevent", config.Log),
	}
}

// Next blocks until a kernel uevent matching the configured subsystems
// arrives. udev's own broadcasts and malformed datagrams are skipped.
func (m *Monitor) Next() (Event, error) {
	for {
		b, err := m.sock.Receive()
		if err != nil {
			return Event{}, &types.IoError{Op: "receive", Err: err}
		}

		e, err := Parse(b)
		if errors.Is(err, ErrNotKernelEvent) {
			m.log.Debug("skipping udev event", "len", len(b))
			continue
		}
		if err != nil {
			m.log.Warn("skipping malformed uevent", "err", err)
			continue
		}

		if len(m.Subsystems) > 0 && !slices.Contains(m.Subsystems, e.Subsystem()) {
			continue
		}

		m.log.Debug("got uevent", "event", e, "seqnum", e.Seqnum())
		return e, nil
	}
}

func (m *Monitor) Close() error {
	return m.sock.Close()
}
