package main

import (
	"fmt"
	"strings"
	"time"

	"i4.energy/across/lmsgw/laser"
	"i4.energy/across/lmsgw/sopas"
)

// eventRecord is the JSON form of a session event on the message buses.
type eventRecord struct {
	Kind    laser.EventKind `json:"kind"`
	At      time.Time       `json:"at"`
	Address string          `json:"address"`
	Name    string          `json:"name,omitempty"`
	Message sopas.Message   `json:"message,omitempty"`
	Command *sopas.Command  `json:"command,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func newEventRecord(addr string, e laser.Event) eventRecord {
	rec := eventRecord{
		Kind:    e.Kind,
		At:      e.At,
		Address: addr,
		Message: e.Message,
	}
	if e.Message != nil {
		rec.Name = e.Message.Name()
	}
	if e.Command.Kind != sopas.KindNone {
		cmd := e.Command
		rec.Command = &cmd
	}
	if e.Err != nil {
		rec.Error = e.Err.Error()
	}
	return rec
}

// eventPath names the bus destination of an event: the prefix, the event
// kind and, for messages, the message name, joined with sep.
func eventPath(prefix, sep string, e laser.Event) string {
	parts := []string{prefix, string(e.Kind)}
	if e.Kind == laser.EventMessage && e.Message != nil {
		parts = append(parts, e.Message.Name())
	}
	return strings.Join(parts, sep)
}

// commandPath is the subscription pattern for inbound commands.
func commandPath(prefix, sep, wildcard string) string {
	return strings.Join([]string{prefix, "commands", wildcard}, sep)
}

// commandFromPath resolves "<prefix><sep>commands<sep><kind>" and the JSON
// fields in data to a command.
func commandFromPath(prefix, sep, path string, data []byte) (sopas.Command, error) {
	base := prefix + sep + "commands" + sep
	kind, ok := strings.CutPrefix(path, base)
	if !ok || kind == "" || strings.Contains(kind, sep) {
		return sopas.Command{}, fmt.Errorf("%w: %q", sopas.ErrUnknownCommand, path)
	}
	return sopas.UnmarshalCommand(kind, data)
}
