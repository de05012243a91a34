package transport

import (
	"time"

	"github.com/scitags/gonl/message"
)

// Reasons a received message can be dropped for.
const (
	DropMalformed    = "malformed"
	DropUnmatched    = "unmatched"
	DropNotification = "notification_overflow"
	DropOverrun      = "socket_overrun"
)

// An Observer is told about everything going through a Conn. Its methods are
// called from within the receive loop, sometimes with locks held, so they
// must never block.
type Observer interface {
	RequestSent()
	RequestDone(state State, elapsed time.Duration)
	MessageReceived(typ message.Type)
	MessageDropped(reason string)
}

// NopObserver discards every event.
var NopObserver Observer = nopObserver{}

type nopObserver struct{}

func (nopObserver) RequestSent()                     {}
func (nopObserver) RequestDone(State, time.Duration) {}
func (nopObserver) MessageReceived(message.Type)     {}
func (nopObserver) MessageDropped(string)            {}
