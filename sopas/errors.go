package sopas

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCommand is returned when a command name or an encoded
	// command matches none of the supported kinds.
	ErrUnknownCommand = errors.New("sopas: unknown command")

	// ErrMalformedCommand is returned for command input that cannot be
	// decoded into the fields of its kind.
	ErrMalformedCommand = errors.New("sopas: malformed command")
)

// TruncatedRecordError is returned when a telegram declares more fields
// than it carries. Offset is the token index at which the read would have
// run past the end of the sequence.
type TruncatedRecordError struct {
	Name   string
	Offset int
	Len    int
}

func (e *TruncatedRecordError) Error() string {
	return fmt.Sprintf("sopas: %s truncated at token %d of %d", e.Name, e.Offset, e.Len)
}

// ProtocolError reports a known name that arrived with a qualifier the
// driver does not expect for it, or whose body fits none of the layouts
// of that name. Reason is set for the latter.
type ProtocolError struct {
	Qualifier string
	Name      string
	Reason    string
}

func (e *ProtocolError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("sopas: %s %s: %s", e.Qualifier, e.Name, e.Reason)
	}
	return fmt.Sprintf("sopas: unexpected qualifier %q for %q", e.Qualifier, e.Name)
}

// FieldError wraps a codec failure with the token it happened at.
type FieldError struct {
	Name   string
	Offset int
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("sopas: %s field at token %d: %v", e.Name, e.Offset, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// UnsupportedCommandError is returned by Encode for a command without a
// recognized payload. No I/O is attempted for such a command.
type UnsupportedCommandError struct {
	Kind CommandKind
}

func (e *UnsupportedCommandError) Error() string {
	if e.Kind == KindNone {
		return "sopas: command has no payload"
	}
	return fmt.Sprintf("sopas: unsupported command %s", e.Kind)
}
