package sopas

import (
	"i4.energy/across/lmsgw/cola"
)

// Encoder is the optional encoder block of a scan.
type Encoder struct {
	Position uint16 `json:"position"`
	Speed    uint16 `json:"speed"`
}

// ChannelHeader describes the samples of one output channel. StartAngle is
// in 1/10000 deg, Step in the same unit.
type ChannelHeader struct {
	Content     string  `json:"content"`
	ScaleFactor float32 `json:"scale_factor"`
	ScaleOffset float32 `json:"scale_offset"`
	StartAngle  int32   `json:"start_angle"`
	Step        uint16  `json:"step"`
}

// Channel16 carries 16-bit samples, usually distances in mm.
type Channel16 struct {
	ChannelHeader
	Data []uint16 `json:"data"`
}

// Channel8 carries 8-bit samples, usually remission values.
type Channel8 struct {
	ChannelHeader
	Data []uint8 `json:"data"`
}

// ScanTime is the optional device clock stamp of a scan.
type ScanTime struct {
	Year        uint16 `json:"year"`
	Month       uint8  `json:"month"`
	Day         uint8  `json:"day"`
	Hour        uint8  `json:"hour"`
	Minute      uint8  `json:"minute"`
	Second      uint8  `json:"second"`
	Microsecond uint32 `json:"microsecond"`
}

// ScanRecord is one measurement telegram ("sSN LMDscandata" or
// "sRA LMDscandata"). Optional blocks are nil when absent.
type ScanRecord struct {
	Qualifier string `json:"qualifier"`

	Version              uint16 `json:"version"`
	DeviceNumber         uint16 `json:"device_number"`
	SerialNumber         uint32 `json:"serial_number"`
	DeviceStatus         uint8  `json:"device_status"`
	ContaminationStatus  uint8  `json:"contamination_status"`
	TelegramCounter      uint16 `json:"telegram_counter"`
	ScanCounter          uint16 `json:"scan_counter"`
	TimeSinceStartup     uint32 `json:"time_since_startup"`
	TimeOfTransmission   uint32 `json:"time_of_transmission"`
	DigitalInputs        uint16 `json:"digital_inputs"`
	DigitalOutputs       uint16 `json:"digital_outputs"`
	Reserved             uint16 `json:"reserved"`
	ScanFrequency        uint32 `json:"scan_frequency"`
	MeasurementFrequency uint32 `json:"measurement_frequency"`

	Encoder   *Encoder   `json:"encoder,omitempty"`
	Channel16 *Channel16 `json:"channel16,omitempty"`
	Channel8  *Channel8  `json:"channel8,omitempty"`

	Position   uint16    `json:"position"`
	DeviceName *string   `json:"device_name,omitempty"`
	Comment    uint16    `json:"comment"`
	Time       *ScanTime `json:"time,omitempty"`
}

func (ScanRecord) Name() string { return cola.NameScanData }

// MinScanTokens is the token count of a scan with every optional block
// absent.
const MinScanTokens = 25

// ParseScanRecord decodes a scan telegram. Every optional block shifts the
// tokens after it, so reads go through a running offset and are bounds
// checked; no partial record is ever returned.
func ParseScanRecord(qualifier string, tokens [][]byte) (*ScanRecord, error) {
	r := &fieldReader{name: cola.NameScanData, tokens: tokens}
	rec := &ScanRecord{Qualifier: qualifier}

	rec.Version = r.u16(2)
	rec.DeviceNumber = r.u16(3)
	rec.SerialNumber = r.u32(4)
	rec.DeviceStatus = r.digit(5)
	rec.ContaminationStatus = r.u8(6)
	rec.TelegramCounter = r.u16(7)
	rec.ScanCounter = r.u16(8)
	rec.TimeSinceStartup = r.u32(9)
	rec.TimeOfTransmission = r.u32(10)
	rec.DigitalInputs = uint16(r.u8(11))<<8 | uint16(r.u8(12))
	rec.DigitalOutputs = uint16(r.u8(13))<<8 | uint16(r.u8(14))
	rec.Reserved = r.u16(15)
	rec.ScanFrequency = r.u32(16)
	rec.MeasurementFrequency = r.u32(17)

	if r.u16(18) != 0 {
		rec.Encoder = &Encoder{Position: r.u16(19), Speed: r.u16(20)}
		r.offset += 2
	}

	if r.u16(19) > 0 {
		ch := &Channel16{ChannelHeader: r.channelHeader(20)}
		n := int(r.u16(25))
		if r.want(26, n) {
			ch.Data = make([]uint16, n)
			for i := range n {
				ch.Data[i] = r.u16(26 + i)
			}
		}
		rec.Channel16 = ch
		r.offset += n + 6
	}

	if r.u16(20) > 0 {
		ch := &Channel8{ChannelHeader: r.channelHeader(21)}
		n := int(r.u16(26))
		if r.want(27, n) {
			ch.Data = make([]uint8, n)
			for i := range n {
				ch.Data[i] = r.firstByte(27 + i)
			}
		}
		rec.Channel8 = ch
		r.offset += n + 6
	}

	rec.Position = r.u16(21)
	if r.u16(22) != 0 {
		r.u8(23) // length prefix, the token itself carries the text
		name := r.text(24)
		rec.DeviceName = &name
		r.offset += 2
	}

	rec.Comment = r.u16(23)
	if r.u16(24) != 0 {
		rec.Time = &ScanTime{
			Year:        r.u16(25),
			Month:       r.u8(26),
			Day:         r.u8(27),
			Hour:        r.u8(28),
			Minute:      r.u8(29),
			Second:      r.u8(30),
			Microsecond: r.u32(31),
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

func (r *fieldReader) channelHeader(at int) ChannelHeader {
	return ChannelHeader{
		Content:     r.text(at),
		ScaleFactor: r.f32(at + 1),
		ScaleOffset: r.f32(at + 2),
		StartAngle:  r.i32(at + 3),
		Step:        r.u16(at + 4),
	}
}

// fieldReader reads numbered fields from a token sequence. Indexes are
// shifted by offset. The first failure sticks and turns every later read
// into a no-op returning zero.
type fieldReader struct {
	name   string
	tokens [][]byte
	offset int
	err    error
}

func (r *fieldReader) token(i int) ([]byte, bool) {
	if r.err != nil {
		return nil, false
	}
	at := i + r.offset
	if at < 0 || at >= len(r.tokens) {
		r.err = &TruncatedRecordError{Name: r.name, Offset: at, Len: len(r.tokens)}
		return nil, false
	}
	return r.tokens[at], true
}

// want checks that n tokens starting at field i are present, before a
// declared count is trusted.
func (r *fieldReader) want(i, n int) bool {
	if r.err != nil {
		return false
	}
	if end := i + r.offset + n; end > len(r.tokens) {
		r.err = &TruncatedRecordError{Name: r.name, Offset: len(r.tokens), Len: len(r.tokens)}
		return false
	}
	return true
}

func (r *fieldReader) fail(i int, err error) {
	r.err = &FieldError{Name: r.name, Offset: i + r.offset, Err: err}
}

func (r *fieldReader) u8(i int) uint8 {
	tok, ok := r.token(i)
	if !ok {
		return 0
	}
	v, err := cola.Uint8(tok)
	if err != nil {
		r.fail(i, err)
	}
	return v
}

func (r *fieldReader) u16(i int) uint16 {
	tok, ok := r.token(i)
	if !ok {
		return 0
	}
	v, err := cola.Uint16(tok)
	if err != nil {
		r.fail(i, err)
	}
	return v
}

func (r *fieldReader) u32(i int) uint32 {
	tok, ok := r.token(i)
	if !ok {
		return 0
	}
	v, err := cola.Uint32(tok)
	if err != nil {
		r.fail(i, err)
	}
	return v
}

func (r *fieldReader) i16(i int) int16 {
	tok, ok := r.token(i)
	if !ok {
		return 0
	}
	v, err := cola.Int16(tok)
	if err != nil {
		r.fail(i, err)
	}
	return v
}

func (r *fieldReader) i32(i int) int32 {
	tok, ok := r.token(i)
	if !ok {
		return 0
	}
	v, err := cola.Int32(tok)
	if err != nil {
		r.fail(i, err)
	}
	return v
}

func (r *fieldReader) f32(i int) float32 {
	tok, ok := r.token(i)
	if !ok {
		return 0
	}
	v, err := cola.Float32(tok)
	if err != nil {
		r.fail(i, err)
	}
	return v
}

// firstByte decodes a hex token of any width and keeps its leading byte.
func (r *fieldReader) firstByte(i int) uint8 {
	tok, ok := r.token(i)
	if !ok {
		return 0
	}
	b, err := cola.HexBytes(tok)
	if err != nil {
		r.fail(i, err)
		return 0
	}
	return b[0]
}

// digit decodes the first character of a token as one hex digit.
func (r *fieldReader) digit(i int) uint8 {
	tok, ok := r.token(i)
	if !ok {
		return 0
	}
	if len(tok) == 0 {
		r.fail(i, cola.ErrInvalidHex)
		return 0
	}
	v, err := cola.Nibble(tok[0])
	if err != nil {
		r.fail(i, err)
	}
	return v
}

// ascii returns the ASCII digit value of the first character of a token,
// as used by single-character result codes.
func (r *fieldReader) ascii(i int) int {
	tok, ok := r.token(i)
	if !ok {
		return 0
	}
	if len(tok) == 0 {
		r.fail(i, cola.ErrInvalidHex)
		return 0
	}
	return cola.Digit(tok[0])
}

func (r *fieldReader) text(i int) string {
	tok, ok := r.token(i)
	if !ok {
		return ""
	}
	return string(tok)
}
