package cola

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// Every multi-byte CoLa-A numeric field travels as an ASCII-hex token and
// is decoded big-endian once converted to bytes.

// HexBytes converts an ASCII-hex token to bytes. Odd-length tokens are
// left-padded with a zero nibble.
func HexBytes(tok []byte) ([]byte, error) {
	if len(tok) == 0 {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidHex)
	}
	src := tok
	if len(src)%2 != 0 {
		src = append([]byte{'0'}, tok...)
	}
	out := make([]byte, hex.DecodedLen(len(src)))
	if _, err := hex.Decode(out, src); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHex, tok)
	}
	return out, nil
}

// Uint decodes tok as an unsigned big-endian integer of the given width in
// bytes (1, 2, 4 or 8).
func Uint(tok []byte, width int) (uint64, error) {
	b, err := HexBytes(tok)
	if err != nil {
		return 0, err
	}
	// Leading zero bytes never overflow.
	for len(b) > width && b[0] == 0 {
		b = b[1:]
	}
	if len(b) > width {
		return 0, fmt.Errorf("%w: %q into %d bytes", ErrFieldOverflow, tok, width)
	}
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return binary.BigEndian.Uint64(buf[:]), nil
}

// Uint8 decodes a one-byte field.
func Uint8(tok []byte) (uint8, error) {
	v, err := Uint(tok, 1)
	return uint8(v), err
}

// Uint16 decodes a two-byte field.
func Uint16(tok []byte) (uint16, error) {
	v, err := Uint(tok, 2)
	return uint16(v), err
}

// Uint32 decodes a four-byte field.
func Uint32(tok []byte) (uint32, error) {
	v, err := Uint(tok, 4)
	return uint32(v), err
}

// Int16 decodes a two's complement two-byte field.
func Int16(tok []byte) (int16, error) {
	v, err := Uint(tok, 2)
	return int16(uint16(v)), err
}

// Int32 decodes a two's complement four-byte field.
func Int32(tok []byte) (int32, error) {
	v, err := Uint(tok, 4)
	return int32(uint32(v)), err
}

// Float32 decodes an IEEE-754 single carried as eight hex digits.
func Float32(tok []byte) (float32, error) {
	v, err := Uint(tok, 4)
	return math.Float32frombits(uint32(v)), err
}

// Nibble decodes a single hex character, as used for one-digit status
// fields such as the device status.
func Nibble(c byte) (uint8, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidHex, c)
}

// Digit returns the ASCII digit value of c without validation; devices use
// it for single-character result codes.
func Digit(c byte) int {
	return int(c) - '0'
}

// AppendUint8 appends v as one raw byte.
func AppendUint8(b []byte, v uint8) []byte {
	return append(b, v)
}

// AppendUint16 appends v big-endian.
func AppendUint16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

// AppendUint32 appends v big-endian.
func AppendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}
