// Package uevent listens for kobject uevents, the hotplug notifications the
// kernel broadcasts over NETLINK_KOBJECT_UEVENT. Unlike everything else in
// netlink these datagrams carry no netlink header at all:
//
//	ACTION@DEVPATH\0KEY=VALUE\0KEY=VALUE\0...
//
// Be sure to check lib/kobject_uevent.c.
package uevent

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// KernelGroup is the multicast group the kernel sends uevents to. udev
// rebroadcasts them on group 2 in its own format.
const KernelGroup = 1

var (
	// ErrNotKernelEvent flags datagrams sent by udev rather than the kernel.
	ErrNotKernelEvent = errors.New("not a kernel uevent")

	ErrMalformedEvent = errors.New("malformed uevent")
)

// udev prefixes its datagrams with this magic string.
var udevMagic = []byte("libudev\x00")

type Event struct {
	Action  string
	DevPath string

	// Env holds every KEY=VALUE pair, ACTION and DEVPATH included.
	Env map[string]string
}

// Seqnum is the kernel's uevent sequence number, 0 if absent.
func (e Event) Seqnum() uint64 {
	n, _ := strconv.ParseUint(e.Env["SEQNUM"], 10, 64)
	return n
}

func (e Event) Subsystem() string {
	return e.Env["SUBSYSTEM"]
}

func (e Event) String() string {
	return fmt.Sprintf("%s@%s", e.Action, e.DevPath)
}

// Parse decodes a single uevent datagram.
func Parse(b []byte) (Event, error) {
	if bytes.HasPrefix(b, udevMagic) {
		return Event{}, ErrNotKernelEvent
	}

	fields := strings.Split(strings.TrimRight(string(b), "\x00"), "\x00")

	action, devPath, ok := strings.Cut(fields[0], "@")
	if !ok || action == "" || devPath == "" {
		return Event{}, fmt.Errorf("%w: bad header %q", ErrMalformedEvent, fields[0])
	}

	e := Event{
		Action:  action,
		DevPath: devPath,
		Env:     make(map[string]string, len(fields)-1),
	}

	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			// The kernel never sends these, but there's no point in
			// dropping the whole event because of one.
			continue
		}
		e.Env[k] = v
	}

	return e, nil
}
