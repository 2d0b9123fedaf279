package laser

import (
	"time"

	"i4.energy/across/lmsgw/sopas"
)

//go:generate go tool mockgen -destination=mock_notifier.go -package=laser . Notifier

// EventKind names a session notification.
type EventKind string

const (
	EventConnectingFailed   EventKind = "connecting_failed"
	EventConnected          EventKind = "connected"
	EventDisconnected       EventKind = "disconnected"
	EventServerDisconnected EventKind = "server_disconnected"
	EventNetworkDead        EventKind = "network_dead"
	EventNetworkAlive       EventKind = "network_alive"
	EventCommandSent        EventKind = "command_sent"
	EventSendFailed         EventKind = "command_send_failed"
	EventSendTimeout        EventKind = "send_timeout"
	EventReceiveFailed      EventKind = "receive_failed"
	EventDecodeFailed       EventKind = "decode_failed"
	EventMessage            EventKind = "message"
)

// Event is one notification of a Session.
//
// Message is set for EventMessage. Command is set for the three send
// related kinds. Err carries the failure for the failure kinds and the
// *sopas.DeviceError for device error messages.
type Event struct {
	Kind    EventKind
	At      time.Time
	Message sopas.Message
	Command sopas.Command
	Err     error
}

// Notifier receives session events. Messages are delivered in arrival
// order from the receive goroutine; other events may come from the connect
// and send goroutines. Notify must not block for long.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Notifiers fans an event out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(e Event) {
	for _, n := range ns {
		n.Notify(e)
	}
}
