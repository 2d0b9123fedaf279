package cola

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSTX is reported when a telegram does not begin with the
	// start marker.
	ErrMissingSTX = errors.New("cola: telegram does not start with STX")

	// ErrMissingETX is reported when a telegram does not end with the end
	// marker, including a stream that closed in the middle of a telegram.
	ErrMissingETX = errors.New("cola: telegram does not end with ETX")

	// ErrTelegramTooLong is reported when no end marker was found within
	// the configured maximum telegram size.
	ErrTelegramTooLong = errors.New("cola: telegram exceeds maximum size")

	// ErrInvalidHex is returned by the field codec for tokens that are not
	// ASCII hexadecimal.
	ErrInvalidHex = errors.New("cola: invalid hex token")

	// ErrFieldOverflow is returned when a token holds more digits than the
	// requested field width.
	ErrFieldOverflow = errors.New("cola: token overflows field width")
)

// FramingError reports a telegram with bad or missing delimiters. It is
// fatal to the receive pass that produced it.
type FramingError struct {
	// Raw holds the bytes that were assembled before the failure.
	Raw []byte
	Err error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("cola: framing error after %d bytes: %v", len(e.Raw), e.Err)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}
