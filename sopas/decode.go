// Package sopas implements the SOPAS message set of the LMS5xx scanners on
// top of the cola wire layer: inbound telegrams are classified by their
// (qualifier, name) identity and decoded into typed messages, outbound
// commands are encoded into fixed binary layouts.
package sopas

import (
	"fmt"
	"time"

	"i4.energy/across/lmsgw/cola"
)

type parseFunc func(d *Decoder, id cola.Identity, t cola.Telegram, tokens [][]byte) (Message, error)

type route struct {
	name     string
	handlers map[cola.Qualifier]parseFunc
}

// Names are matched by containment, so a name that contains another one
// must come first.
var routes = []route{
	{cola.NameScanDataConfig, map[cola.Qualifier]parseFunc{cola.QualifierWriteAnswer: parseScanDataConfig}},
	{cola.NameScanData, map[cola.Qualifier]parseFunc{
		cola.QualifierNotify:      parseScan,
		cola.QualifierReadAnswer:  parseScan,
		cola.QualifierEventAnswer: parseScanEventAck,
	}},
	{cola.NameRun, map[cola.Qualifier]parseFunc{cola.QualifierAck: parseRun}},
	{cola.NameSetAccessMode, map[cola.Qualifier]parseFunc{cola.QualifierAck: parseAccessMode}},
	{cola.NameSetDateTime, map[cola.Qualifier]parseFunc{cola.QualifierAck: parseSetDateTime}},
	{cola.NameSetScanConfig, map[cola.Qualifier]parseFunc{cola.QualifierAck: parseScanConfig}},
	{cola.NameLCMState, map[cola.Qualifier]parseFunc{cola.QualifierReadAnswer: parseLCMState}},
	{cola.NameDeviceState, map[cola.Qualifier]parseFunc{cola.QualifierReadAnswer: parseDeviceState}},
	{cola.NameOutputState, map[cola.Qualifier]parseFunc{cola.QualifierReadAnswer: parseOutputState}},
	{cola.NameSetOutput, map[cola.Qualifier]parseFunc{cola.QualifierAck: parseSetOutput}},
	{cola.NameResetOutputCnt, map[cola.Qualifier]parseFunc{cola.QualifierAck: parseResetOutputCounter}},
	{cola.NameReboot, map[cola.Qualifier]parseFunc{cola.QualifierAck: parseReboot}},
}

// Decoder turns telegrams into messages.
type Decoder struct {
	errors ErrorTable
	now    func() time.Time
}

// NewDecoder returns a Decoder that resolves device errors with table. A
// nil table selects DefaultErrorTable.
func NewDecoder(table ErrorTable) *Decoder {
	if table == nil {
		table = DefaultErrorTable
	}
	return &Decoder{errors: table, now: time.Now}
}

// Decode classifies t and runs the matching parser.
//
// A telegram whose name is not handled by the driver yields (nil, nil) and
// should be skipped. A handled name with an unexpected qualifier yields a
// *ProtocolError. Malformed fields yield a *TruncatedRecordError or a
// *FieldError. Device errors are returned as a *DeviceError message, not
// as an error.
func (d *Decoder) Decode(t cola.Telegram) (Message, error) {
	tokens := t.Tokens()
	id := cola.Identify(tokens)

	if id.Is(cola.QualifierError) {
		return d.parseDeviceError(tokens)
	}

	// The identification answer carries a numeric index instead of a name.
	if c, ok := t.ByteAt(5); ok && c == '0' && id.Is(cola.QualifierReadAnswer) {
		return parseDeviceIdent(t), nil
	}

	for _, r := range routes {
		if !id.Names(r.name) {
			continue
		}
		for q, parse := range r.handlers {
			if id.Is(q) {
				return parse(d, id, t, tokens)
			}
		}
		return nil, &ProtocolError{Qualifier: id.Qualifier, Name: r.name}
	}

	return nil, nil
}

// Decode decodes t with the default error table.
func Decode(t cola.Telegram) (Message, error) {
	return NewDecoder(nil).Decode(t)
}

func (d *Decoder) parseDeviceError(tokens [][]byte) (Message, error) {
	r := &fieldReader{name: string(cola.QualifierError), tokens: tokens}
	tok, ok := r.token(1)
	if !ok {
		return nil, r.err
	}
	code, err := cola.Uint(tok, 8)
	if err != nil {
		return nil, &FieldError{Name: r.name, Offset: 1, Err: err}
	}
	index, desc := d.errors.Lookup(code)
	return &DeviceError{Code: code, Index: index, Description: desc}, nil
}

func parseDeviceIdent(t cola.Telegram) Message {
	raw := t.Raw()
	if len(raw) <= 8 {
		return DeviceIdent{}
	}
	return DeviceIdent{Text: string(raw[7 : len(raw)-1])}
}

// rawDigit reads a single-digit result at a fixed offset of the raw frame.
func rawDigit(name string, t cola.Telegram, i int) (int, error) {
	c, ok := t.ByteAt(i)
	if !ok || c == cola.ETX {
		return 0, &TruncatedRecordError{Name: name, Offset: i, Len: t.Len()}
	}
	return cola.Digit(c), nil
}

func parseScan(_ *Decoder, id cola.Identity, _ cola.Telegram, tokens [][]byte) (Message, error) {
	rec, err := ParseScanRecord(id.Qualifier, tokens)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func parseScanEventAck(_ *Decoder, _ cola.Identity, t cola.Telegram, _ [][]byte) (Message, error) {
	v, err := rawDigit(cola.NameScanData, t, 17)
	if err != nil {
		return nil, err
	}
	return ScanEventAck{Measurement: v}, nil
}

func parseRun(_ *Decoder, _ cola.Identity, t cola.Telegram, _ [][]byte) (Message, error) {
	v, err := rawDigit(cola.NameRun, t, 9)
	if err != nil {
		return nil, err
	}
	return RunResult{Success: v}, nil
}

func parseDeviceState(_ *Decoder, _ cola.Identity, t cola.Telegram, _ [][]byte) (Message, error) {
	v, err := rawDigit(cola.NameDeviceState, t, 19)
	if err != nil {
		return nil, err
	}
	return DeviceState{State: v}, nil
}

// resultCode reads the single-digit result carried by token 2.
func resultCode(name string, tokens [][]byte) (int, error) {
	r := &fieldReader{name: name, tokens: tokens}
	v := r.ascii(2)
	return v, r.err
}

func parseAccessMode(_ *Decoder, _ cola.Identity, _ cola.Telegram, tokens [][]byte) (Message, error) {
	v, err := resultCode(cola.NameSetAccessMode, tokens)
	if err != nil {
		return nil, err
	}
	return AccessModeResult{Success: v}, nil
}

func parseSetDateTime(_ *Decoder, _ cola.Identity, _ cola.Telegram, tokens [][]byte) (Message, error) {
	v, err := resultCode(cola.NameSetDateTime, tokens)
	if err != nil {
		return nil, err
	}
	return SetDateTimeResult{Success: v}, nil
}

func parseLCMState(_ *Decoder, _ cola.Identity, _ cola.Telegram, tokens [][]byte) (Message, error) {
	v, err := resultCode(cola.NameLCMState, tokens)
	if err != nil {
		return nil, err
	}
	return LCMState{State: v}, nil
}

func parseSetOutput(_ *Decoder, _ cola.Identity, _ cola.Telegram, tokens [][]byte) (Message, error) {
	v, err := resultCode(cola.NameSetOutput, tokens)
	if err != nil {
		return nil, err
	}
	return SetOutputResult{Success: v}, nil
}

func parseResetOutputCounter(_ *Decoder, _ cola.Identity, _ cola.Telegram, tokens [][]byte) (Message, error) {
	v, err := resultCode(cola.NameResetOutputCnt, tokens)
	if err != nil {
		return nil, err
	}
	return ResetOutputCounterResult{Success: v}, nil
}

func parseScanConfig(_ *Decoder, _ cola.Identity, _ cola.Telegram, tokens [][]byte) (Message, error) {
	r := &fieldReader{name: cola.NameSetScanConfig, tokens: tokens}
	res := ScanConfigResult{
		Status:          ScanConfigStatus(r.digit(2)),
		Frequency:       r.u32(3),
		Sectors:         r.i16(4),
		AngleResolution: r.u32(5),
		StartAngle:      r.i32(6),
		StopAngle:       r.i32(7),
	}
	if r.err != nil {
		return nil, r.err
	}
	return res, nil
}

const (
	outputStateFirstPair = 4
	externalOutputs      = 8
)

// outputLayouts are the device output counts a LIDoutputstate answer may
// carry ahead of the 8 external outputs: 6 on the LMS511, 16 in the full
// SOPAS layout.
var outputLayouts = []int{6, 16}

// parseOutputState reads the status word followed by (state, count) pairs
// for the device outputs and then the external outputs.
func parseOutputState(_ *Decoder, id cola.Identity, _ cola.Telegram, tokens [][]byte) (Message, error) {
	r := &fieldReader{name: cola.NameOutputState, tokens: tokens}
	res := OutputState{Status: r.u32(2)}

	body := max(len(tokens)-outputStateFirstPair, 0)
	full := outputLayouts[len(outputLayouts)-1] + externalOutputs
	outputs := -1
	for _, n := range outputLayouts {
		if body == 2*(n+externalOutputs) {
			outputs = n
		}
	}
	switch {
	case outputs >= 0:
	case body > 2*full || body%2 != 0:
		return nil, &ProtocolError{
			Qualifier: id.Qualifier,
			Name:      r.name,
			Reason:    fmt.Sprintf("%d output tokens fit no layout", body),
		}
	default:
		return nil, &TruncatedRecordError{Name: r.name, Offset: len(tokens), Len: len(tokens)}
	}

	readPairs := func(first, n int) []OutputChannel {
		out := make([]OutputChannel, n)
		for i := range out {
			at := first + 2*i
			out[i] = OutputChannel{State: r.ascii(at), Count: r.u32(at + 1)}
		}
		return out
	}
	res.Outputs = readPairs(outputStateFirstPair, outputs)
	res.External = readPairs(outputStateFirstPair+2*outputs, externalOutputs)

	if r.err != nil {
		return nil, r.err
	}
	return res, nil
}

func parseReboot(d *Decoder, _ cola.Identity, _ cola.Telegram, _ [][]byte) (Message, error) {
	return RebootAck{At: d.now()}, nil
}

func parseScanDataConfig(_ *Decoder, _ cola.Identity, _ cola.Telegram, _ [][]byte) (Message, error) {
	return ScanDataConfigAck{Status: 1}, nil
}
