package cola

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Splitter frames a CoLa-A byte stream into raw telegrams. It uses the
// signature of bufio.SplitFunc so it can be directly used with
// bufio.Scanner.
//
// Every token ends at (and includes) the first ETX. Validation of the start
// marker is left to Parse so that the caller sees exactly what was on the
// wire. When the stream ends in the middle of a telegram the partial bytes
// are returned as a final token, which Parse rejects.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, ETX); i >= 0 {
		return i + 1, data[:i+1], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Telegram is one complete, validated frame. The raw bytes include both
// markers; Body strips them. A Telegram must not be modified once parsed.
type Telegram struct {
	raw []byte
}

// Parse validates the delimiters of a raw frame.
func Parse(raw []byte) (Telegram, error) {
	if len(raw) == 0 || raw[0] != STX {
		return Telegram{}, &FramingError{Raw: raw, Err: ErrMissingSTX}
	}
	if len(raw) < 2 || raw[len(raw)-1] != ETX {
		return Telegram{}, &FramingError{Raw: raw, Err: ErrMissingETX}
	}
	return Telegram{raw: raw}, nil
}

// Frame wraps body in STX/ETX.
func Frame(body []byte) []byte {
	out := make([]byte, 0, len(body)+2)
	out = append(out, STX)
	out = append(out, body...)
	return append(out, ETX)
}

// Raw returns the frame including both markers.
func (t Telegram) Raw() []byte {
	return t.raw
}

// Body returns the frame without its markers.
func (t Telegram) Body() []byte {
	if len(t.raw) < 2 {
		return nil
	}
	return t.raw[1 : len(t.raw)-1]
}

// Tokens splits the body on SP.
func (t Telegram) Tokens() [][]byte {
	return Tokenize(t.Body())
}

// ByteAt returns the raw frame byte at offset i (STX is offset 0).
func (t Telegram) ByteAt(i int) (byte, bool) {
	if i < 0 || i >= len(t.raw) {
		return 0, false
	}
	return t.raw[i], true
}

// Len returns the raw frame length including markers.
func (t Telegram) Len() int {
	return len(t.raw)
}

// Reader reads telegrams from a byte stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader that rejects telegrams longer than maxSize
// bytes. A maxSize below 2 selects DefaultMaxTelegramSize.
func NewReader(r io.Reader, maxSize int) *Reader {
	if maxSize < 2 {
		maxSize = DefaultMaxTelegramSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(4096, maxSize)), maxSize)
	scanner.Split(Splitter)
	return &Reader{scanner: scanner}
}

// ReadTelegram returns the next telegram.
//
// io.EOF is returned when the stream closed cleanly between telegrams,
// which is how a peer disconnect shows up. Corrupt or truncated frames
// yield a *FramingError. Any other error comes from the underlying reader.
func (r *Reader) ReadTelegram() (Telegram, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return Telegram{}, &FramingError{Err: ErrTelegramTooLong}
			}
			return Telegram{}, err
		}
		return Telegram{}, io.EOF
	}

	// The scanner reuses its buffer, the telegram must own its bytes.
	raw := bytes.Clone(r.scanner.Bytes())
	return Parse(raw)
}
