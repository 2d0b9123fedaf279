package laser_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/lmsgw/cola"
	"i4.energy/across/lmsgw/laser"
	"i4.energy/across/lmsgw/sopas"
)

const eventTimeout = 2 * time.Second

// recorder collects session events for assertions.
type recorder struct {
	events chan laser.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan laser.Event, 64)}
}

func (r *recorder) Notify(e laser.Event) {
	r.events <- e
}

func (r *recorder) next(t *testing.T) laser.Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(eventTimeout):
		t.Fatal("timeout waiting for event")
	}
	return laser.Event{}
}

// expect reads the next events and checks their kinds in order.
func (r *recorder) expect(t *testing.T, kinds ...laser.EventKind) []laser.Event {
	t.Helper()
	out := make([]laser.Event, 0, len(kinds))
	for _, want := range kinds {
		e := r.next(t)
		if e.Kind != want {
			t.Fatalf("Expected event %s, got %s (err: %v)", want, e.Kind, e.Err)
		}
		if e.At.IsZero() {
			t.Errorf("Expected %s event to carry a timestamp", e.Kind)
		}
		out = append(out, e)
	}
	return out
}

// quiet checks that no event arrives within d.
func (r *recorder) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Errorf("Expected no event, got %s (err: %v)", e.Kind, e.Err)
	case <-time.After(d):
	}
}

func newSession(t *testing.T, dialer laser.Dialer, n laser.Notifier, opts ...func(*laser.ConfigBuilder)) *laser.Session {
	t.Helper()
	b := laser.NewConfigBuilder().WithDialer(dialer)
	for _, opt := range opts {
		opt(b)
	}
	config, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	s, err := laser.New(config, n)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// connectedSession returns a session connected to a TestTransport.
func connectedSession(t *testing.T, opts ...func(*laser.ConfigBuilder)) (*laser.Session, *laser.TestTransport, *recorder) {
	t.Helper()
	ctrl := gomock.NewController(t)
	transport := laser.NewTestTransport()
	dialer := laser.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any()).Return(transport, nil)

	rec := newRecorder()
	s := newSession(t, dialer, rec, opts...)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error from Connect(): %v", err)
	}
	rec.expect(t, laser.EventConnected)
	return s, transport, rec
}

func blockingDial(ctx context.Context) (laser.Transport, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSessionConnect(t *testing.T) {
	t.Run("Connected", func(t *testing.T) {
		s, transport, rec := connectedSession(t)

		if s.State() != laser.StateConnected {
			t.Errorf("Expected state %s, got %s", laser.StateConnected, s.State())
		}
		if transport.Closed() {
			t.Error("Expected transport to be open")
		}
		rec.quiet(t, 20*time.Millisecond)
	})

	t.Run("Dialer error is reported as connecting_failed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		dialErr := errors.New("connection refused")
		dialer := laser.NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any()).Return(nil, dialErr)

		done := make(chan laser.Event, 1)
		notifier := laser.NewMockNotifier(ctrl)
		notifier.EXPECT().Notify(gomock.Any()).Do(func(e laser.Event) {
			done <- e
		})

		s := newSession(t, dialer, notifier)
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from Connect(): %v", err)
		}

		var e laser.Event
		select {
		case e = <-done:
		case <-time.After(eventTimeout):
			t.Fatal("timeout waiting for event")
		}

		if e.Kind != laser.EventConnectingFailed {
			t.Fatalf("Expected %s, got %s", laser.EventConnectingFailed, e.Kind)
		}
		var cerr *laser.ConnectionError
		if !errors.As(e.Err, &cerr) {
			t.Fatalf("Expected *ConnectionError, got %T", e.Err)
		}
		if !errors.Is(e.Err, dialErr) {
			t.Errorf("Expected error to wrap %v, got %v", dialErr, e.Err)
		}
		if s.State() != laser.StateDisconnected {
			t.Errorf("Expected state %s, got %s", laser.StateDisconnected, s.State())
		}
	})

	t.Run("Timeout is reported as connecting_failed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		dialer := laser.NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any()).DoAndReturn(blockingDial)

		rec := newRecorder()
		s := newSession(t, dialer, rec, func(b *laser.ConfigBuilder) {
			b.WithConnectTimeout(20 * time.Millisecond)
		})
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from Connect(): %v", err)
		}

		e := rec.expect(t, laser.EventConnectingFailed)[0]
		if !errors.Is(e.Err, laser.ErrConnectTimeout) {
			t.Errorf("Expected ErrConnectTimeout, got %v", e.Err)
		}
		if s.State() != laser.StateDisconnected {
			t.Errorf("Expected state %s, got %s", laser.StateDisconnected, s.State())
		}
	})

	t.Run("ErrAlreadyConnected on consecutive calls", func(t *testing.T) {
		s, _, _ := connectedSession(t)

		if err := s.Connect(context.Background()); err != laser.ErrAlreadyConnected {
			t.Errorf("Expected ErrAlreadyConnected, got %v", err)
		}
	})

	t.Run("Connect after failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		transport := laser.NewTestTransport()
		dialer := laser.NewMockDialer(ctrl)
		gomock.InOrder(
			dialer.EXPECT().Dial(gomock.Any()).Return(nil, errors.New("no route to host")),
			dialer.EXPECT().Dial(gomock.Any()).Return(transport, nil),
		)

		rec := newRecorder()
		s := newSession(t, dialer, rec)

		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from Connect(): %v", err)
		}
		rec.expect(t, laser.EventConnectingFailed)

		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from Connect(): %v", err)
		}
		rec.expect(t, laser.EventConnected)
	})
}

func TestSessionReceive(t *testing.T) {
	t.Run("Messages are reported in arrival order", func(t *testing.T) {
		_, transport, rec := connectedSession(t)

		transport.SendData("\x02sAN Run 1\x03\x02sRA SCdev")
		transport.SendData("icestate 2\x03")
		transport.SendData("\x02sRA LCMstate 0\x03")

		events := rec.expect(t, laser.EventMessage, laser.EventMessage, laser.EventMessage)
		want := []sopas.Message{
			sopas.RunResult{Success: 1},
			sopas.DeviceState{State: 2},
			sopas.LCMState{State: 0},
		}
		for i, e := range events {
			if e.Message != want[i] {
				t.Errorf("Expected message %#v, got %#v", want[i], e.Message)
			}
			if e.Err != nil {
				t.Errorf("Expected no error, got %v", e.Err)
			}
		}
	})

	t.Run("Device error carries the error", func(t *testing.T) {
		_, transport, rec := connectedSession(t)

		transport.SendData("\x02sFA 5\x03")

		e := rec.expect(t, laser.EventMessage)[0]
		var derr *sopas.DeviceError
		if !errors.As(e.Err, &derr) {
			t.Fatalf("Expected *sopas.DeviceError, got %T", e.Err)
		}
		if derr.Code != 5 || derr.Description != "Sopas_Error_INVALID_DATA" {
			t.Errorf("Expected code 5 Sopas_Error_INVALID_DATA, got %d %s", derr.Code, derr.Description)
		}
		if e.Message != derr {
			t.Error("Expected message to be the device error")
		}
	})

	t.Run("Decode errors keep the link", func(t *testing.T) {
		s, transport, rec := connectedSession(t)

		transport.SendData("\x02sRA Run 1\x03")
		transport.SendData("\x02sXX Unknown 1\x03")
		transport.SendData("\x02sAN Run 0\x03")

		e := rec.expect(t, laser.EventDecodeFailed)[0]
		var perr *sopas.ProtocolError
		if !errors.As(e.Err, &perr) {
			t.Errorf("Expected *sopas.ProtocolError, got %T", e.Err)
		}
		e = rec.expect(t, laser.EventMessage)[0]
		if e.Message != (sopas.RunResult{Success: 0}) {
			t.Errorf("Expected RunResult{0}, got %#v", e.Message)
		}
		if s.State() != laser.StateConnected {
			t.Errorf("Expected state %s, got %s", laser.StateConnected, s.State())
		}
	})

	t.Run("Peer close is reported once as server_disconnected", func(t *testing.T) {
		s, transport, rec := connectedSession(t)

		transport.Hangup()

		rec.expect(t, laser.EventServerDisconnected)
		rec.quiet(t, 50*time.Millisecond)
		if s.State() != laser.StateDisconnected {
			t.Errorf("Expected state %s, got %s", laser.StateDisconnected, s.State())
		}
	})

	t.Run("Framing error closes the link", func(t *testing.T) {
		s, transport, rec := connectedSession(t)

		transport.SendData("garbage\x03")

		events := rec.expect(t, laser.EventReceiveFailed, laser.EventServerDisconnected)
		var ferr *cola.FramingError
		if !errors.As(events[0].Err, &ferr) {
			t.Errorf("Expected *cola.FramingError, got %T", events[0].Err)
		}
		if !errors.Is(events[0].Err, cola.ErrMissingSTX) {
			t.Errorf("Expected ErrMissingSTX, got %v", events[0].Err)
		}
		if !transport.Closed() {
			t.Error("Expected transport to be closed")
		}
		if s.State() != laser.StateDisconnected {
			t.Errorf("Expected state %s, got %s", laser.StateDisconnected, s.State())
		}
	})

	t.Run("Oversized telegram closes the link", func(t *testing.T) {
		_, transport, rec := connectedSession(t, func(b *laser.ConfigBuilder) {
			b.WithMaxTelegramSize(16)
		})

		transport.SendData("\x02sRA LMDscandata 1 0 0 0 0 0 0\x03")

		e := rec.expect(t, laser.EventReceiveFailed, laser.EventServerDisconnected)[0]
		if !errors.Is(e.Err, cola.ErrTelegramTooLong) {
			t.Errorf("Expected ErrTelegramTooLong, got %v", e.Err)
		}
	})

	t.Run("Read error closes the link", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		readErr := errors.New("connection reset by peer")
		transport := laser.NewMockTransport(ctrl)
		dialer := laser.NewMockDialer(ctrl)
		gomock.InOrder(
			dialer.EXPECT().Dial(gomock.Any()).Return(transport, nil),
			transport.EXPECT().Read(gomock.Any()).Return(0, readErr),
			transport.EXPECT().Close().Return(nil),
		)

		rec := newRecorder()
		s := newSession(t, dialer, rec)
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from Connect(): %v", err)
		}

		events := rec.expect(t, laser.EventConnected, laser.EventReceiveFailed, laser.EventServerDisconnected)
		if !errors.Is(events[1].Err, readErr) {
			t.Errorf("Expected %v, got %v", readErr, events[1].Err)
		}
	})
}

func TestSessionSend(t *testing.T) {
	t.Run("Writes the encoded telegram", func(t *testing.T) {
		s, transport, rec := connectedSession(t)

		cmd := sopas.NewCommand(sopas.ScanEvent{Enable: true})
		if err := s.Send(cmd); err != nil {
			t.Fatalf("unexpected error from Send(): %v", err)
		}

		e := rec.expect(t, laser.EventCommandSent)[0]
		if e.Command != cmd {
			t.Errorf("Expected command %v, got %v", cmd, e.Command)
		}
		want := []byte("\x02sEN LMDscandata \x01\x03")
		if got := transport.Stream(); !bytes.Equal(got, want) {
			t.Errorf("Expected %q, got %q", want, got)
		}
		if s.Pending() != 0 {
			t.Errorf("Expected no pending sends, got %d", s.Pending())
		}
	})

	t.Run("Not connected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		rec := newRecorder()
		s := newSession(t, laser.NewMockDialer(ctrl), rec)

		cmd := sopas.NewCommand(sopas.Run{})
		err := s.Send(cmd)

		var serr *laser.SendError
		if !errors.As(err, &serr) {
			t.Fatalf("Expected *SendError, got %T", err)
		}
		if !errors.Is(err, laser.ErrNotConnected) {
			t.Errorf("Expected ErrNotConnected, got %v", err)
		}
		e := rec.expect(t, laser.EventSendFailed)[0]
		if !errors.Is(e.Err, laser.ErrNotConnected) {
			t.Errorf("Expected ErrNotConnected, got %v", e.Err)
		}
		if e.Command != cmd {
			t.Errorf("Expected command %v, got %v", cmd, e.Command)
		}
	})

	t.Run("Unsupported command performs no I/O", func(t *testing.T) {
		s, transport, rec := connectedSession(t)

		err := s.Send(sopas.Command{})

		var uerr *sopas.UnsupportedCommandError
		if !errors.As(err, &uerr) {
			t.Fatalf("Expected *sopas.UnsupportedCommandError, got %v", err)
		}
		rec.quiet(t, 20*time.Millisecond)
		if len(transport.Stream()) != 0 {
			t.Errorf("Expected no bytes written, got %q", transport.Stream())
		}
	})

	t.Run("Concurrent sends do not interleave", func(t *testing.T) {
		s, transport, rec := connectedSession(t)
		transport.SetWriteDelay(100 * time.Microsecond)

		a := sopas.NewCommand(sopas.SetAccessMode{Level: 3, Password: 0xF4724744})
		b := sopas.NewCommand(sopas.ReadDeviceState{})

		var wg sync.WaitGroup
		for _, cmd := range []sopas.Command{a, b} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Send(cmd); err != nil {
					t.Errorf("unexpected error from Send(): %v", err)
				}
			}()
		}
		wg.Wait()
		rec.expect(t, laser.EventCommandSent, laser.EventCommandSent)

		ra, _ := sopas.Encode(a)
		rb, _ := sopas.Encode(b)
		got := transport.Stream()
		ab := append(bytes.Clone(ra), rb...)
		ba := append(bytes.Clone(rb), ra...)
		if !bytes.Equal(got, ab) && !bytes.Equal(got, ba) {
			t.Errorf("Expected two whole telegrams, got %q", got)
		}
	})

	t.Run("Slow write is reported as send_timeout", func(t *testing.T) {
		s, transport, rec := connectedSession(t, func(b *laser.ConfigBuilder) {
			b.WithSendTimeout(10 * time.Millisecond)
		})
		transport.SetWriteDelay(5 * time.Millisecond)

		if err := s.Send(sopas.NewCommand(sopas.Run{})); err != nil {
			t.Fatalf("unexpected error from Send(): %v", err)
		}

		events := rec.expect(t, laser.EventSendTimeout, laser.EventCommandSent)
		if !errors.Is(events[0].Err, laser.ErrSendTimeout) {
			t.Errorf("Expected ErrSendTimeout, got %v", events[0].Err)
		}
	})

	t.Run("Write error is reported as command_send_failed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		release := make(chan struct{})
		writeErr := errors.New("broken pipe")
		transport := laser.NewMockTransport(ctrl)
		dialer := laser.NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any()).Return(transport, nil)
		transport.EXPECT().Read(gomock.Any()).DoAndReturn(func([]byte) (int, error) {
			<-release
			return 0, io.EOF
		})
		transport.EXPECT().Write([]byte("\x02sMN Run\x03")).Return(0, writeErr)
		transport.EXPECT().Close().DoAndReturn(func() error {
			close(release)
			return nil
		})

		rec := newRecorder()
		s := newSession(t, dialer, rec)
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from Connect(): %v", err)
		}
		rec.expect(t, laser.EventConnected)

		if err := s.Send(sopas.NewCommand(sopas.Run{})); err != nil {
			t.Fatalf("unexpected error from Send(): %v", err)
		}
		e := rec.expect(t, laser.EventSendFailed)[0]
		if !errors.Is(e.Err, writeErr) {
			t.Errorf("Expected %v, got %v", writeErr, e.Err)
		}

		if err := s.Disconnect(); err != nil {
			t.Errorf("unexpected error from Disconnect(): %v", err)
		}
		rec.expect(t, laser.EventDisconnected)
	})

	t.Run("Request and answer over a pipe", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		client, device := net.Pipe()
		defer device.Close()
		dialer := laser.NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any()).Return(client, nil)

		rec := newRecorder()
		s := newSession(t, dialer, rec)
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from Connect(): %v", err)
		}
		rec.expect(t, laser.EventConnected)

		// The device answers a device state request.
		go func() {
			r := cola.NewReader(device, 0)
			tg, err := r.ReadTelegram()
			if err != nil {
				return
			}
			if bytes.Equal(tg.Raw(), []byte("\x02sRN SCdevicestate\x03")) {
				device.Write([]byte("\x02sRA SCdevicestate 1\x03"))
			}
		}()

		if err := s.Send(sopas.NewCommand(sopas.ReadDeviceState{})); err != nil {
			t.Fatalf("unexpected error from Send(): %v", err)
		}

		var got []laser.Event
		for range 2 {
			got = append(got, rec.next(t))
		}
		var msg sopas.Message
		for _, e := range got {
			if e.Kind == laser.EventMessage {
				msg = e.Message
			}
		}
		if msg != (sopas.DeviceState{State: 1}) {
			t.Errorf("Expected DeviceState{1}, got %#v", msg)
		}
	})
}

func TestSessionDisconnect(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		s, transport, rec := connectedSession(t)

		if err := s.Disconnect(); err != nil {
			t.Errorf("unexpected error from Disconnect(): %v", err)
		}
		rec.expect(t, laser.EventDisconnected)

		if err := s.Disconnect(); err != nil {
			t.Errorf("unexpected error from second Disconnect(): %v", err)
		}
		rec.quiet(t, 50*time.Millisecond)

		if !transport.Closed() {
			t.Error("Expected transport to be closed")
		}
		if s.State() != laser.StateDisconnected {
			t.Errorf("Expected state %s, got %s", laser.StateDisconnected, s.State())
		}
	})

	t.Run("Disconnected session does nothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		rec := newRecorder()
		s := newSession(t, laser.NewMockDialer(ctrl), rec)

		if err := s.Disconnect(); err != nil {
			t.Errorf("unexpected error from Disconnect(): %v", err)
		}
		rec.quiet(t, 20*time.Millisecond)
	})

	t.Run("Abandons a pending attempt", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		dialing := make(chan struct{})
		dialer := laser.NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any()).DoAndReturn(func(ctx context.Context) (laser.Transport, error) {
			close(dialing)
			return blockingDial(ctx)
		})

		rec := newRecorder()
		s := newSession(t, dialer, rec)
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from Connect(): %v", err)
		}
		<-dialing
		if s.State() != laser.StateConnecting {
			t.Errorf("Expected state %s, got %s", laser.StateConnecting, s.State())
		}

		if err := s.Disconnect(); err != nil {
			t.Errorf("unexpected error from Disconnect(): %v", err)
		}
		rec.expect(t, laser.EventDisconnected)
		rec.quiet(t, 50*time.Millisecond)
		if s.State() != laser.StateDisconnected {
			t.Errorf("Expected state %s, got %s", laser.StateDisconnected, s.State())
		}
	})

	t.Run("Pending sends are aborted", func(t *testing.T) {
		s, transport, _ := connectedSession(t)
		transport.SetWriteDelay(2 * time.Millisecond)

		for range 3 {
			if err := s.Send(sopas.NewCommand(sopas.Reboot{})); err != nil {
				t.Fatalf("unexpected error from Send(): %v", err)
			}
		}
		if err := s.Disconnect(); err != nil {
			t.Errorf("unexpected error from Disconnect(): %v", err)
		}

		deadline := time.After(eventTimeout)
		for s.Pending() != 0 {
			select {
			case <-deadline:
				t.Fatalf("Expected pending sends to finish, %d left", s.Pending())
			case <-time.After(time.Millisecond):
			}
		}
	})
}

func TestSessionReconnect(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	first := laser.NewTestTransport()
	second := laser.NewTestTransport()
	dialer := laser.NewMockDialer(ctrl)
	gomock.InOrder(
		dialer.EXPECT().Dial(gomock.Any()).Return(first, nil),
		dialer.EXPECT().Dial(gomock.Any()).Return(second, nil),
	)

	rec := newRecorder()
	s := newSession(t, dialer, rec)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error from Connect(): %v", err)
	}
	rec.expect(t, laser.EventConnected)

	if err := s.Reconnect(10 * time.Millisecond); err != nil {
		t.Fatalf("unexpected error from Reconnect(): %v", err)
	}
	rec.expect(t, laser.EventDisconnected, laser.EventConnected)

	if !first.Closed() {
		t.Error("Expected first transport to be closed")
	}
	second.SendData("\x02sAN Run 1\x03")
	rec.expect(t, laser.EventMessage)
}

func TestSessionNetworkMonitor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	changes := make(chan bool)
	monitor := laser.NewMockNetworkMonitor(ctrl)
	monitor.EXPECT().Watch(gomock.Any()).Return((<-chan bool)(changes))

	s, transport, rec := connectedSession(t, func(b *laser.ConfigBuilder) {
		b.WithNetworkMonitor(monitor)
	})

	changes <- false
	rec.expect(t, laser.EventNetworkDead, laser.EventDisconnected)
	if !transport.Closed() {
		t.Error("Expected transport to be closed")
	}
	if s.State() != laser.StateDisconnected {
		t.Errorf("Expected state %s, got %s", laser.StateDisconnected, s.State())
	}

	changes <- true
	rec.expect(t, laser.EventNetworkAlive)
}

func TestSessionNetworkDeadCancelsReconnect(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	changes := make(chan bool)
	monitor := laser.NewMockNetworkMonitor(ctrl)
	monitor.EXPECT().Watch(gomock.Any()).Return((<-chan bool)(changes))

	s, _, rec := connectedSession(t, func(b *laser.ConfigBuilder) {
		b.WithNetworkMonitor(monitor)
	})

	if err := s.Reconnect(50 * time.Millisecond); err != nil {
		t.Fatalf("unexpected error from Reconnect(): %v", err)
	}
	rec.expect(t, laser.EventDisconnected)

	changes <- false
	rec.expect(t, laser.EventNetworkDead, laser.EventDisconnected)

	// The dialer allows a single call, so a retry would also fail the mock.
	rec.quiet(t, 120*time.Millisecond)
	if s.State() != laser.StateDisconnected {
		t.Errorf("Expected state %s, got %s", laser.StateDisconnected, s.State())
	}
}

func TestSessionClose(t *testing.T) {
	t.Run("ErrClosed on double close", func(t *testing.T) {
		s, transport, rec := connectedSession(t)

		if err := s.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
		rec.expect(t, laser.EventDisconnected)
		if !transport.Closed() {
			t.Error("Expected transport to be closed")
		}

		if err := s.Close(); err != laser.ErrClosed {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	})

	t.Run("Closed session rejects calls", func(t *testing.T) {
		s, _, _ := connectedSession(t)
		s.Close()

		if err := s.Connect(context.Background()); err != laser.ErrClosed {
			t.Errorf("Expected ErrClosed from Connect(), got %v", err)
		}
		if err := s.Send(sopas.NewCommand(sopas.Run{})); err != laser.ErrClosed {
			t.Errorf("Expected ErrClosed from Send(), got %v", err)
		}
		if err := s.Reconnect(time.Millisecond); err != laser.ErrClosed {
			t.Errorf("Expected ErrClosed from Reconnect(), got %v", err)
		}
	})

	t.Run("Cancels a scheduled reconnect", func(t *testing.T) {
		s, _, rec := connectedSession(t)

		if err := s.Reconnect(20 * time.Millisecond); err != nil {
			t.Fatalf("unexpected error from Reconnect(): %v", err)
		}
		rec.expect(t, laser.EventDisconnected)
		s.Close()
		rec.quiet(t, 60*time.Millisecond)
	})
}
