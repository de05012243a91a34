// Package transport correlates netlink requests with their replies over a
// single datagram socket. Each request is tracked by its sequence number
// through a small state machine:
//
//	Sent -> Collecting -> Done | Failed | Cancelled
//
// A single goroutine owns the receive side of the socket. Any number of
// goroutines can send concurrently. Be sure to check netlink(7):
//
//	https://www.man7.org/linux/man-pages/man7/netlink.7.html
package transport

import (
	"fmt"
)

// Socket is the raw datagram capability a Conn is built on.
type Socket interface {
	// Send writes a single datagram which may hold several messages.
	Send(b []byte) error

	// Receive blocks until a whole datagram is available. The returned slice
	// is owned by the caller and must not be reused by the Socket.
	Receive() ([]byte, error)

	// PortID is the netlink address the socket is bound to.
	PortID() uint32

	// Close must unblock any ongoing Receive.
	Close() error
}

// A GroupJoiner is a Socket able to manage multicast group memberships after
// being bound.
type GroupJoiner interface {
	JoinGroup(group uint32) error
	LeaveGroup(group uint32) error
}

// Protocol is the protocol selector a netlink socket is opened with.
type Protocol int

// All of these constants' names make the linter complain, but we inherited
// these names from external C code, so we will keep them. Be sure to check
// include/uapi/linux/netlink.h.
const (
	NETLINK_ROUTE          Protocol = 0
	NETLINK_UNUSED         Protocol = 1
	NETLINK_USERSOCK       Protocol = 2
	NETLINK_FIREWALL       Protocol = 3
	NETLINK_SOCK_DIAG      Protocol = 4
	NETLINK_NFLOG          Protocol = 5
	NETLINK_XFRM           Protocol = 6
	NETLINK_SELINUX        Protocol = 7
	NETLINK_ISCSI          Protocol = 8
	NETLINK_AUDIT          Protocol = 9
	NETLINK_FIB_LOOKUP     Protocol = 10
	NETLINK_CONNECTOR      Protocol = 11
	NETLINK_NETFILTER      Protocol = 12
	NETLINK_IP6_FW         Protocol = 13
	NETLINK_DNRTMSG        Protocol = 14
	NETLINK_KOBJECT_UEVENT Protocol = 15
	NETLINK_GENERIC        Protocol = 16
	NETLINK_SCSITRANSPORT  Protocol = 18
	NETLINK_ECRYPTFS       Protocol = 19
	NETLINK_RDMA           Protocol = 20
	NETLINK_CRYPTO         Protocol = 21
	NETLINK_SMC            Protocol = 22
)

var protocolName = map[Protocol]string{
	NETLINK_ROUTE:          "route",
	NETLINK_UNUSED:         "unused",
	NETLINK_USERSOCK:       "usersock",
	NETLINK_FIREWALL:       "firewall",
	NETLINK_SOCK_DIAG:      "sock_diag",
	NETLINK_NFLOG:          "nflog",
	NETLINK_XFRM:           "xfrm",
	NETLINK_SELINUX:        "selinux",
	NETLINK_ISCSI:          "iscsi",
	NETLINK_AUDIT:          "audit",
	NETLINK_FIB_LOOKUP:     "fib_lookup",
	NETLINK_CONNECTOR:      "connector",
	NETLINK_NETFILTER:      "netfilter",
	NETLINK_IP6_FW:         "ip6_fw",
	NETLINK_DNRTMSG:        "dnrtmsg",
	NETLINK_KOBJECT_UEVENT: "kobject_uevent",
	NETLINK_GENERIC:        "generic",
	NETLINK_SCSITRANSPORT:  "scsitransport",
	NETLINK_ECRYPTFS:       "ecryptfs",
	NETLINK_RDMA:           "rdma",
	NETLINK_CRYPTO:         "crypto",
	NETLINK_SMC:            "smc",
}

func (p Protocol) String() string {
	if n, ok := protocolName[p]; ok {
		return n
	}
	return fmt.Sprintf("protocol(%d)", int(p))
}

// ParseProtocol is the inverse of Protocol.String.
func ParseProtocol(name string) (Protocol, error) {
	for p, n := range protocolName {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown netlink protocol %q", name)
}
