package laser

import (
	"context"
	"net"
	"time"
)

//go:generate go tool mockgen -destination=mock_monitor.go -package=laser . NetworkMonitor

// NetworkMonitor reports host network availability.
type NetworkMonitor interface {
	// Watch sends true when the network becomes available and false when
	// it is lost. The channel is closed once ctx is done.
	Watch(ctx context.Context) <-chan bool
}

// InterfaceMonitor polls the host interfaces. The network counts as
// available while at least one non-loopback interface is up.
type InterfaceMonitor struct {
	Interval time.Duration

	// interfaces is replaced in tests.
	interfaces func() ([]net.Interface, error)
}

func (m *InterfaceMonitor) Watch(ctx context.Context) <-chan bool {
	interval := m.Interval
	if interval <= 0 {
		interval = time.Second
	}
	list := m.interfaces
	if list == nil {
		list = net.Interfaces
	}

	ch := make(chan bool, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := available(list)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			up := available(list)
			if up == last {
				continue
			}
			last = up
			select {
			case ch <- up:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func available(list func() ([]net.Interface, error)) bool {
	ifaces, err := list()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}
