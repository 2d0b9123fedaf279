package main

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"i4.energy/across/lmsgw/laser"
)

// natsConn is the part of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// NATSPublisher publishes every session event as JSON on
// "<subject>.<kind>[.<message>]" and accepts commands on
// "<subject>.commands.<kind>".
type NATSPublisher struct {
	conn    natsConn
	subject string
	addr    string
	log     zerolog.Logger
}

func connectNATS(cfg NATSConfig, log zerolog.Logger) (*nats.Conn, error) {
	return nats.Connect(cfg.URL,
		nats.Name("lmsgw"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
}

func NewNATSPublisher(conn natsConn, subject, addr string, log zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		addr:    addr,
		log:     log.With().Str("component", "nats").Logger(),
	}
}

func (p *NATSPublisher) Notify(e laser.Event) {
	data, err := json.Marshal(newEventRecord(p.addr, e))
	if err != nil {
		p.log.Error().Err(err).Str("kind", string(e.Kind)).Msg("failed to encode event")
		return
	}
	subject := eventPath(p.subject, ".", e)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("publish failed")
	}
}

// Subscribe forwards commands received on NATS to s. A request with a reply
// subject is answered with {"status": "queued"} or {"error": ...}.
func (p *NATSPublisher) Subscribe(s Sender) (*nats.Subscription, error) {
	return p.conn.Subscribe(commandPath(p.subject, ".", "*"), func(m *nats.Msg) {
		p.handleCommand(s, m.Subject, m.Reply, m.Data)
	})
}

func (p *NATSPublisher) handleCommand(s Sender, subject, reply string, data []byte) {
	resp := map[string]string{"status": "queued"}
	cmd, err := commandFromPath(p.subject, ".", subject, data)
	if err == nil {
		err = s.Send(cmd)
	}
	if err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("command rejected")
		resp = map[string]string{"error": err.Error()}
	} else {
		p.log.Debug().Stringer("command", cmd).Msg("command accepted")
	}

	if reply == "" {
		return
	}
	out, _ := json.Marshal(resp)
	if err := p.conn.Publish(reply, out); err != nil {
		p.log.Warn().Err(err).Str("subject", reply).Msg("reply failed")
	}
}
