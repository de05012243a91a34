//go:build !linux

package transport

import "errors"

var errUnsupported = errors.New("netlink sockets are only available on Linux")

type RawSocket struct{}

func OpenSocket(protocol Protocol, config *Config) (*RawSocket, error) {
	return nil, errUnsupported
}

func (s *RawSocket) PortID() uint32                { return 0 }
func (s *RawSocket) Send(b []byte) error           { return errUnsupported }
func (s *RawSocket) Receive() ([]byte, error)      { return nil, errUnsupported }
func (s *RawSocket) JoinGroup(group uint32) error  { return errUnsupported }
func (s *RawSocket) LeaveGroup(group uint32) error { return errUnsupported }
func (s *RawSocket) Close() error                  { return nil }
