package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"i4.energy/across/lmsgw/laser"
	"i4.energy/across/lmsgw/sopas"
)

// Sender accepts commands for the scanner.
type Sender interface {
	Send(cmd sopas.Command) error
}

// Device is the view of a session used by the HTTP API.
type Device interface {
	Sender
	State() laser.State
	Address() string
	Pending() int
}

// Controller drives the connection of a session.
type Controller interface {
	Sender
	State() laser.State
	Connect(ctx context.Context) error
	Reconnect(delay time.Duration) error
}

// Gateway keeps the scanner connected and, if enabled, measuring. It reacts
// to session events, so it is installed as one of the session's notifiers
// and attached to the session once that exists.
type Gateway struct {
	log            zerolog.Logger
	reconnectDelay time.Duration
	autoStart      bool

	mu      sync.Mutex
	session Controller
}

func NewGateway(cfg DeviceConfig, log zerolog.Logger) *Gateway {
	return &Gateway{
		log:            log,
		reconnectDelay: cfg.ReconnectDelay,
		autoStart:      cfg.AutoStart,
	}
}

// Attach binds the gateway to its session.
func (g *Gateway) Attach(c Controller) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = c
}

func (g *Gateway) controller() Controller {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// Start opens the first connection. Failures are retried through the
// connecting_failed event like any later attempt.
func (g *Gateway) Start(ctx context.Context) error {
	c := g.controller()
	if c == nil {
		return laser.ErrNotConnected
	}
	return c.Connect(ctx)
}

// Send forwards cmd to the attached session.
func (g *Gateway) Send(cmd sopas.Command) error {
	c := g.controller()
	if c == nil {
		return laser.ErrNotConnected
	}
	return c.Send(cmd)
}

func (g *Gateway) Notify(e laser.Event) {
	c := g.controller()
	if c == nil {
		return
	}

	switch e.Kind {
	case laser.EventConnected:
		if !g.autoStart {
			return
		}
		g.log.Info().Msg("starting continuous scan output")
		if err := c.Send(sopas.NewCommand(sopas.ScanEvent{Enable: true})); err != nil {
			g.log.Error().Err(err).Msg("failed to start scan output")
		}

	case laser.EventConnectingFailed, laser.EventServerDisconnected, laser.EventNetworkAlive:
		if g.reconnectDelay <= 0 {
			return
		}
		if e.Kind == laser.EventNetworkAlive && c.State() != laser.StateDisconnected {
			return
		}
		if err := c.Reconnect(g.reconnectDelay); err != nil && !errors.Is(err, laser.ErrClosed) {
			g.log.Error().Err(err).Msg("failed to schedule reconnect")
		}

	case laser.EventMessage:
		if de, ok := e.Message.(*sopas.DeviceError); ok {
			g.log.Warn().Uint64("code", de.Code).Str("description", de.Description).Msg("device error")
		}
	}
}
