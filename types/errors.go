package types

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Codec and transport failures. Callers should match them with errors.Is as
// they're usually wrapped with some context on the way up.
var (
	ErrTruncatedMessage   = errors.New("truncated netlink message")
	ErrTruncatedAttribute = errors.New("truncated netlink attribute")
	ErrInvalidLength      = errors.New("invalid netlink length")
	ErrUnknownFamily      = errors.New("unknown generic netlink family")
	ErrCancelled          = errors.New("netlink request cancelled")
	ErrOverrun            = errors.New("netlink data overrun")
	ErrDumpInterrupted    = errors.New("netlink dump interrupted")
	ErrClosed             = errors.New("netlink transport closed")
)

// KernelError is an explicit NLMSG_ERROR carrying a non-zero code. Errno is
// always positive, even though the kernel sends it negated.
type KernelError struct {
	Errno unix.Errno

	// Message and Offset are only populated when the kernel supports
	// extended acknowledgements and the socket asked for them.
	Message string
	Offset  uint32
}

func (e *KernelError) Error() string {
	name := unix.ErrnoName(e.Errno)
	if name == "" {
		name = fmt.Sprintf("errno %d", int(e.Errno))
	}
	if e.Message != "" {
		return fmt.Sprintf("netlink kernel error %s (%v): %s", name, e.Errno, e.Message)
	}
	return fmt.Sprintf("netlink kernel error %s (%v)", name, e.Errno)
}

// Unwrap lets callers check for specific codes with errors.Is(err, unix.ENOENT).
func (e *KernelError) Unwrap() error {
	return e.Errno
}

// NewKernelError maps the raw errno found in an error payload. It returns nil
// for the zero code, which the kernel uses for plain acknowledgements.
func NewKernelError(code int32) *KernelError {
	if code == 0 {
		return nil
	}
	if code < 0 {
		code = -code
	}
	return &KernelError{Errno: unix.Errno(code)}
}

// IoError is an underlying socket failure. It's never retried internally.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("netlink %s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}
