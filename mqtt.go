package main

import (
	"context"
	"encoding/json"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"i4.energy/across/lmsgw/laser"
)

// MQTTBridge publishes session events on "<topic>/<kind>[/<message>]" and
// forwards JSON commands received on "<topic>/commands/<kind>".
type MQTTBridge struct {
	client mqtt.Client
	topic  string
	addr   string
	log    zerolog.Logger
}

func NewMQTTBridge(cfg MQTTConfig, addr string, s Sender, log zerolog.Logger) *MQTTBridge {
	b := &MQTTBridge{
		topic: cfg.Topic,
		addr:  addr,
		log:   log.With().Str("component", "mqtt").Logger(),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.Warn().Err(err).Msg("mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		topic := commandPath(b.topic, "/", "+")
		b.log.Info().Str("topic", topic).Msg("mqtt connected, subscribing")
		token := c.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
			b.handleCommand(s, m.Topic(), m.Payload())
		})
		if token.Wait() && token.Error() != nil {
			b.log.Error().Err(token.Error()).Str("topic", topic).Msg("mqtt subscribe failed")
		}
	})
	b.client = mqtt.NewClient(opts)
	return b
}

// Connect waits for the first broker connection. Later losses are handled
// by the client's auto reconnect.
func (b *MQTTBridge) Connect(ctx context.Context) error {
	token := b.client.Connect()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MQTTBridge) Notify(e laser.Event) {
	data, err := json.Marshal(newEventRecord(b.addr, e))
	if err != nil {
		b.log.Error().Err(err).Str("kind", string(e.Kind)).Msg("failed to encode event")
		return
	}
	// Fire and forget; the client queues while reconnecting.
	b.client.Publish(eventPath(b.topic, "/", e), 0, false, data)
}

func (b *MQTTBridge) handleCommand(s Sender, topic string, payload []byte) {
	cmd, err := commandFromPath(b.topic, "/", topic, payload)
	if err == nil {
		err = s.Send(cmd)
	}
	if err != nil {
		b.log.Warn().Err(err).Str("topic", topic).Msg("command rejected")
		return
	}
	b.log.Debug().Stringer("command", cmd).Msg("command accepted")
}

func (b *MQTTBridge) Close() {
	b.client.Disconnect(500)
}
