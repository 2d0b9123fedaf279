package laser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -destination=mock_transport.go -package=laser . Transport,Dialer

// Transport represents an established, bidirectional byte stream to a
// scanner.
//
// A Transport is assumed to be already connected and ready for use. Typical
// implementations are TCP connections to the scanner's CoLa-A port, serial
// ports, or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a scanner.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may block and must
	// respect cancellation and deadlines of the context.
	Dial(ctx context.Context) (Transport, error)
}

// Transports may optionally support a half close and an explicit flush of
// buffered output.
type (
	closeWriter interface{ CloseWrite() error }
	drainer     interface{ Drain() error }
)

// DefaultPort is the CoLa-A TCP port of LMS5xx scanners.
const DefaultPort = "2111"

// TCPDialer connects to a scanner over TCP.
type TCPDialer struct {
	// Address is host:port. A missing port selects DefaultPort.
	Address string
}

func (d TCPDialer) Dial(ctx context.Context) (Transport, error) {
	if d.Address == "" {
		return nil, errors.New("laser: tcp address is required")
	}
	addr := d.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d TCPDialer) String() string {
	return d.Address
}

// SerialDialer opens a scanner over its auxiliary serial interface.
type SerialDialer struct {
	PortName string
	// Mode defaults to 57600 8N1.
	Mode *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("laser: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: 57600,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("laser: open serial port %s: %w", d.PortName, err)
	}
	return port, nil
}

func (d SerialDialer) String() string {
	return d.PortName
}

// address names the endpoint of a dialer for errors and logs.
func address(d Dialer) string {
	if s, ok := d.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", d)
}
