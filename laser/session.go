// Package laser drives a SICK LMS5xx scanner over a CoLa-A byte stream. A
// Session owns the connection lifecycle, the receive loop and the send
// path, and reports everything that happens through a Notifier.
package laser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"i4.energy/across/lmsgw/cola"
	"i4.energy/across/lmsgw/sopas"
)

// State is the connection state of a Session.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

const (
	eventConnect     = "connect"
	eventEstablished = "established"
	eventFail        = "fail"
	eventDisconnect  = "disconnect"
	eventClosed      = "closed"
)

func newStateMachine(callbacks fsm.Callbacks) *fsm.FSM {
	return fsm.NewFSM(
		string(StateDisconnected),
		fsm.Events{
			{Name: eventConnect, Src: []string{string(StateDisconnected)}, Dst: string(StateConnecting)},
			{Name: eventEstablished, Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
			{Name: eventFail, Src: []string{string(StateConnecting)}, Dst: string(StateDisconnected)},
			{Name: eventDisconnect, Src: []string{string(StateConnected)}, Dst: string(StateDisconnecting)},
			{Name: eventClosed, Src: []string{string(StateDisconnecting)}, Dst: string(StateDisconnected)},
		},
		callbacks,
	)
}

// Session is a client connection to one scanner.
//
// All methods are safe for concurrent use. Connect and Send return
// immediately; their outcome is reported to the Notifier. Notifier
// callbacks may call back into the Session, except for Close.
type Session struct {
	config   Config
	notifier Notifier
	decoder  *sopas.Decoder
	log      zerolog.Logger
	addr     string

	// ctx lives until Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards the state machine together with the fields below, so that
	// a state and the link it implies always change together.
	mu      sync.Mutex
	state   *fsm.FSM
	link    *link
	dial    context.CancelFunc
	attempt uint64
	retry   *time.Timer
	retries uint64

	permit  *semaphore.Weighted
	pending *atomic.Int32
	closed  *atomic.Bool
}

// link is one established connection.
type link struct {
	transport Transport
	// ctx is cancelled on teardown and aborts sends waiting for the permit.
	ctx    context.Context
	cancel context.CancelFunc
	// ready is closed once connected has been reported.
	ready   chan struct{}
	closing *atomic.Bool
}

func newLink(parent context.Context, t Transport) *link {
	ctx, cancel := context.WithCancel(parent)
	return &link{
		transport: t,
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
		closing:   atomic.NewBool(false),
	}
}

func (l *link) shutdown() error {
	if cw, ok := l.transport.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
	return l.transport.Close()
}

// New creates a disconnected Session. A nil notifier discards events.
func New(config Config, notifier Notifier) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()
	if notifier == nil {
		notifier = NotifierFunc(func(Event) {})
	}

	addr := address(config.dialer)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		config:   config,
		notifier: notifier,
		decoder:  sopas.NewDecoder(config.errorTable),
		log:      config.logger.With().Str("component", "laser").Str("address", addr).Logger(),
		addr:     addr,
		ctx:      ctx,
		cancel:   cancel,
		permit:   semaphore.NewWeighted(1),
		pending:  atomic.NewInt32(0),
		closed:   atomic.NewBool(false),
	}
	s.state = newStateMachine(fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			s.log.Info().Str("from", e.Src).Str("state", e.Dst).Msg("state transition")
		},
	})

	if config.monitor != nil {
		s.wg.Add(1)
		go s.watchNetwork(config.monitor.Watch(ctx))
	}
	return s, nil
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.state.Current())
}

// Address names the scanner endpoint.
func (s *Session) Address() string {
	return s.addr
}

// Pending returns the number of sends that have not completed yet.
func (s *Session) Pending() int {
	return int(s.pending.Load())
}

// Connect starts a connection attempt bounded by the connect timeout and by
// ctx, which only governs the attempt. The outcome is reported as
// connected or connecting_failed.
//
// Connect fails with ErrAlreadyConnected unless the session is
// disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.state.Can(eventConnect) {
		return ErrAlreadyConnected
	}
	s.transition(eventConnect)

	s.attempt++
	dialCtx, cancel := context.WithTimeout(ctx, s.config.connectTimeout)
	stop := context.AfterFunc(s.ctx, cancel)
	s.dial = cancel

	s.wg.Add(1)
	go s.connect(dialCtx, s.attempt, func() {
		stop()
		cancel()
	})
	return nil
}

func (s *Session) connect(ctx context.Context, attempt uint64, release func()) {
	defer s.wg.Done()
	defer release()

	s.log.Debug().Dur("timeout", s.config.connectTimeout).Msg("connecting")
	t, err := s.config.dialer.Dial(ctx)

	s.mu.Lock()
	if attempt != s.attempt || s.State() != StateConnecting {
		// Disconnect or Close gave up on this attempt.
		s.mu.Unlock()
		if err == nil {
			t.Close()
		}
		return
	}
	s.dial = nil

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrConnectTimeout, s.config.connectTimeout, err)
		}
		s.transition(eventFail)
		s.mu.Unlock()

		cerr := &ConnectionError{Address: s.addr, Err: err}
		s.log.Warn().Err(cerr).Msg("connection failed")
		s.notify(Event{Kind: EventConnectingFailed, Err: cerr})
		return
	}

	l := newLink(s.ctx, t)
	s.link = l
	s.transition(eventEstablished)
	s.wg.Add(1)
	go s.receive(l)
	s.mu.Unlock()

	s.notify(Event{Kind: EventConnected})
	close(l.ready)
}

// receive is the only reader of a link. Telegrams are decoded and reported
// strictly in arrival order.
func (s *Session) receive(l *link) {
	defer s.wg.Done()
	<-l.ready

	r := cola.NewReader(l.transport, s.config.maxTelegramSize)
	for {
		tg, err := r.ReadTelegram()
		if err != nil {
			s.receiveEnded(l, err)
			return
		}
		if l.closing.Load() {
			return
		}
		s.dispatch(tg)
	}
}

func (s *Session) dispatch(tg cola.Telegram) {
	msg, err := s.decoder.Decode(tg)
	switch {
	case err != nil:
		id := cola.Identify(tg.Tokens())
		s.log.Warn().Err(err).
			Str("qualifier", id.Qualifier).
			Str("name", id.Name).
			Int("bytes", tg.Len()).
			Msg("telegram discarded")
		s.notify(Event{Kind: EventDecodeFailed, Err: err})

	case msg == nil:
		s.log.Trace().Bytes("telegram", tg.Body()).Msg("unhandled telegram")

	default:
		e := Event{Kind: EventMessage, Message: msg}
		if de, ok := msg.(*sopas.DeviceError); ok {
			e.Err = de
		}
		s.notify(e)
	}
}

// receiveEnded handles the end of the stream. Nothing is reported for a
// link the session tore down itself.
func (s *Session) receiveEnded(l *link, err error) {
	s.mu.Lock()
	if s.link != l {
		s.mu.Unlock()
		return
	}
	_ = s.teardownLocked(l)
	s.mu.Unlock()

	if !errors.Is(err, io.EOF) {
		s.log.Error().Err(err).Msg("receive failed")
		s.notify(Event{Kind: EventReceiveFailed, Err: err})
	}
	s.log.Info().Msg("server disconnected")
	s.notify(Event{Kind: EventServerDisconnected})
}

func (s *Session) teardownLocked(l *link) error {
	l.closing.Store(true)
	s.link = nil
	s.transition(eventDisconnect)
	l.cancel()
	err := l.shutdown()
	s.transition(eventClosed)
	return err
}

// Send encodes cmd and writes it on its own goroutine while holding the
// send permit, so that telegrams never interleave on the wire.
//
// An encoding failure is returned without any I/O. Without an established
// link a *SendError wrapping ErrNotConnected is returned and also reported
// as command_send_failed. Otherwise the outcome is reported as
// command_sent or command_send_failed, and send_timeout fires if the write
// is still pending after the send timeout.
func (s *Session) Send(cmd sopas.Command) error {
	raw, err := sopas.Encode(cmd)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return ErrClosed
	}
	l := s.link
	if l == nil {
		s.mu.Unlock()
		serr := &SendError{Command: cmd, Err: ErrNotConnected}
		s.notify(Event{Kind: EventSendFailed, Command: cmd, Err: serr})
		return serr
	}
	s.pending.Inc()
	s.wg.Add(1)
	s.mu.Unlock()

	go s.write(l, cmd, raw)
	return nil
}

func (s *Session) write(l *link, cmd sopas.Command, raw []byte) {
	defer s.wg.Done()
	defer s.pending.Dec()

	timer := time.AfterFunc(s.config.sendTimeout, func() {
		s.log.Warn().Stringer("command", cmd).Msg("send timeout")
		s.notify(Event{Kind: EventSendTimeout, Command: cmd, Err: &SendError{Command: cmd, Err: ErrSendTimeout}})
	})
	defer timer.Stop()

	if err := s.writeTelegram(l, raw); err != nil {
		serr := &SendError{Command: cmd, Err: err}
		s.log.Warn().Err(serr).Msg("send failed")
		s.notify(Event{Kind: EventSendFailed, Command: cmd, Err: serr})
		return
	}
	s.log.Debug().Stringer("command", cmd).Int("bytes", len(raw)).Msg("command sent")
	s.notify(Event{Kind: EventCommandSent, Command: cmd})
}

// writeTelegram issues raw as a single write under the send permit.
func (s *Session) writeTelegram(l *link, raw []byte) error {
	if err := s.permit.Acquire(l.ctx, 1); err != nil {
		return ErrNotConnected
	}
	defer s.permit.Release(1)

	if _, err := l.transport.Write(raw); err != nil {
		return err
	}
	if d, ok := l.transport.(drainer); ok {
		return d.Drain()
	}
	return nil
}

// Disconnect closes the link, or abandons a pending connection attempt,
// and reports disconnected. A scheduled reconnect is cancelled. On a
// disconnected session it does nothing and returns nil.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.stopRetryLocked()
	changed, err := s.disconnectLocked()
	s.mu.Unlock()

	if changed {
		s.notify(Event{Kind: EventDisconnected, Err: err})
	}
	return err
}

func (s *Session) disconnectLocked() (bool, error) {
	switch s.State() {
	case StateConnecting:
		s.attempt++
		if s.dial != nil {
			s.dial()
			s.dial = nil
		}
		s.transition(eventFail)
		return true, nil
	case StateConnected:
		return true, s.teardownLocked(s.link)
	}
	return false, nil
}

// Reconnect disconnects and schedules a single connection attempt after
// delay. There is no backoff; a failed attempt is reported as
// connecting_failed like any other.
func (s *Session) Reconnect(delay time.Duration) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return ErrClosed
	}
	s.stopRetryLocked()
	changed, err := s.disconnectLocked()
	s.retries++
	n := s.retries
	s.retry = time.AfterFunc(delay, func() { s.retryConnect(n) })
	s.mu.Unlock()

	s.log.Info().Dur("delay", delay).Msg("reconnect scheduled")
	if changed {
		s.notify(Event{Kind: EventDisconnected, Err: err})
	}
	return err
}

// retryConnect runs a scheduled reconnect unless it was stopped while
// the timer was firing.
func (s *Session) retryConnect(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retry == nil || s.retries != n {
		return
	}
	s.retry = nil
	if err := s.connectLocked(s.ctx); err != nil {
		s.log.Debug().Err(err).Msg("reconnect skipped")
	}
}

func (s *Session) stopRetryLocked() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

// Close disconnects and waits for every goroutine of the session. It must
// not be called from a Notifier. After Close the session cannot be reused.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()
		return ErrClosed
	}
	s.stopRetryLocked()
	changed, err := s.disconnectLocked()
	s.mu.Unlock()

	if changed {
		s.notify(Event{Kind: EventDisconnected, Err: err})
	}
	s.cancel()
	s.wg.Wait()
	return err
}

func (s *Session) watchNetwork(ch <-chan bool) {
	defer s.wg.Done()
	for {
		var up, ok bool
		select {
		case <-s.ctx.Done():
			return
		case up, ok = <-ch:
			if !ok {
				return
			}
		}

		if up {
			s.log.Info().Msg("network alive")
			s.notify(Event{Kind: EventNetworkAlive})
			continue
		}

		s.log.Warn().Msg("network dead")
		s.mu.Lock()
		s.stopRetryLocked()
		_, err := s.disconnectLocked()
		s.mu.Unlock()
		s.notify(Event{Kind: EventNetworkDead})
		s.notify(Event{Kind: EventDisconnected, Err: err})
	}
}

func (s *Session) transition(event string) {
	if err := s.state.Event(context.Background(), event); err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("invalid state transition")
	}
}

func (s *Session) notify(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.notifier.Notify(e)
}
