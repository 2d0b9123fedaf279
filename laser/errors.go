package laser

import (
	"errors"
	"fmt"

	"i4.energy/across/lmsgw/sopas"
)

var (
	// ErrNoDialer is returned when a Session is configured without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the scanner.
	ErrNoDialer = errors.New("laser: no dialer configured")

	// ErrNotConnected is reported for commands submitted while the session
	// has no established link.
	ErrNotConnected = errors.New("laser: not connected")

	// ErrAlreadyConnected is returned by Connect unless the session is
	// disconnected.
	ErrAlreadyConnected = errors.New("laser: already connected or connecting")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("laser: session closed")

	// ErrConnectTimeout is carried by a ConnectionError when the dial did not
	// complete within the connect timeout.
	ErrConnectTimeout = errors.New("laser: connect timeout")

	// ErrSendTimeout is carried by send_timeout events. The write itself may
	// still succeed afterwards.
	ErrSendTimeout = errors.New("laser: send timeout")
)

// ConnectionError reports a failed connection attempt. The session is back
// in the disconnected state when it is delivered.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("laser: connect %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SendError reports a command that could not be written.
type SendError struct {
	Command sopas.Command
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("laser: send %s: %v", e.Command, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
