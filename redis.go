package main

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"i4.energy/across/lmsgw/laser"
	"i4.energy/across/lmsgw/sopas"
)

const storeQueueSize = 256

// StateStore keeps the latest connection and device state of the scanner
// in the Redis hash "<key>:<address>". Writes happen on Run's goroutine;
// Notify only queues and drops events when the queue is full.
type StateStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	addr   string
	log    zerolog.Logger
	events chan laser.Event
}

func NewStateStore(client redis.Cmdable, cfg RedisConfig, addr string, log zerolog.Logger) *StateStore {
	return &StateStore{
		client: client,
		key:    cfg.Key + ":" + addr,
		ttl:    cfg.TTL,
		addr:   addr,
		log:    log.With().Str("component", "redis").Logger(),
		events: make(chan laser.Event, storeQueueSize),
	}
}

func (s *StateStore) Notify(e laser.Event) {
	select {
	case s.events <- e:
	default:
		s.log.Warn().Str("kind", string(e.Kind)).Msg("state store queue full, event dropped")
	}
}

// Run writes queued events until ctx is done.
func (s *StateStore) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-s.events:
			if err := s.write(ctx, e); err != nil {
				s.log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("state write failed")
			}
		}
	}
}

func (s *StateStore) write(ctx context.Context, e laser.Event) error {
	fields := stateFields(e)
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key, fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// stateFields maps an event to the hash fields it updates.
func stateFields(e laser.Event) map[string]any {
	at := e.At.UTC().Format(time.RFC3339Nano)
	fields := map[string]any{}

	switch e.Kind {
	case laser.EventConnected:
		fields["connection"] = string(laser.StateConnected)
		fields["connection_at"] = at
	case laser.EventDisconnected, laser.EventServerDisconnected, laser.EventConnectingFailed:
		fields["connection"] = string(laser.StateDisconnected)
		fields["connection_at"] = at
	case laser.EventNetworkDead:
		fields["network"] = "dead"
	case laser.EventNetworkAlive:
		fields["network"] = "alive"
	case laser.EventMessage:
		messageFields(fields, e.Message, at)
	}

	if e.Err != nil {
		fields["last_error"] = e.Err.Error()
		fields["last_error_at"] = at
	}
	return fields
}

func messageFields(fields map[string]any, msg sopas.Message, at string) {
	switch m := msg.(type) {
	case sopas.DeviceState:
		fields["device_state"] = strconv.Itoa(m.State)
	case sopas.LCMState:
		fields["lcm_state"] = strconv.Itoa(m.State)
	case sopas.DeviceIdent:
		fields["ident"] = m.Text
	case *sopas.ScanRecord:
		fields["serial_number"] = strconv.FormatUint(uint64(m.SerialNumber), 10)
		fields["device_status"] = strconv.Itoa(int(m.DeviceStatus))
		fields["scan_counter"] = strconv.Itoa(int(m.ScanCounter))
		fields["telegram_counter"] = strconv.Itoa(int(m.TelegramCounter))
		fields["scan_frequency"] = strconv.FormatUint(uint64(m.ScanFrequency), 10)
		samples := 0
		if m.Channel16 != nil {
			samples = len(m.Channel16.Data)
		}
		fields["samples"] = strconv.Itoa(samples)
		fields["scan_at"] = at
	}
}
