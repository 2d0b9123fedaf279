package sopas

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"i4.energy/across/lmsgw/cola"
)

// CommandKind selects the layout of an outbound command.
type CommandKind uint8

const (
	KindNone CommandKind = iota
	KindDeviceIdent
	KindReadDeviceState
	KindPollScan
	KindScanEvent
	KindRun
	KindSetAccessMode
	KindSetScanConfig
	KindSetOutput
	KindReadLCMState
	KindSetDateTime
	KindReadOutputState
	KindResetOutputCounter
	KindReboot
	KindScanDataConfig
)

// Payload is the field set of one command kind.
type Payload interface {
	Kind() CommandKind
	appendFields(b []byte) []byte
}

// Command is a tagged outbound command. Kind selects the layout; Payload
// must be the payload type of that kind.
type Command struct {
	Kind    CommandKind
	Payload Payload
}

// NewCommand tags p with its kind.
func NewCommand(p Payload) Command {
	return Command{Kind: p.Kind(), Payload: p}
}

func (c Command) String() string {
	return c.Kind.String()
}

// MarshalJSON renders the command as {"kind": ..., "payload": {...}}.
func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    string  `json:"kind"`
		Payload Payload `json:"payload,omitempty"`
	}{c.Kind.String(), c.Payload})
}

type commandLayout struct {
	name      string
	qualifier cola.Qualifier
	command   string
	width     int
	decode    func(r *binReader) Payload
	fromJSON  func(data []byte) (Payload, error)
}

var layouts = [...]commandLayout{
	KindNone: {name: "none"},
	KindDeviceIdent: {
		name: "device_ident", qualifier: cola.QualifierReadIndex, command: "0",
		decode:   func(*binReader) Payload { return ReadDeviceIdent{} },
		fromJSON: jsonPayload[ReadDeviceIdent],
	},
	KindReadDeviceState: {
		name: "read_device_state", qualifier: cola.QualifierRead, command: cola.NameDeviceState,
		decode:   func(*binReader) Payload { return ReadDeviceState{} },
		fromJSON: jsonPayload[ReadDeviceState],
	},
	KindPollScan: {
		name: "poll_scan", qualifier: cola.QualifierRead, command: cola.NameScanData,
		decode:   func(*binReader) Payload { return PollScan{} },
		fromJSON: jsonPayload[PollScan],
	},
	KindScanEvent: {
		name: "scan_event", qualifier: cola.QualifierEventStart, command: cola.NameScanData, width: 1,
		decode:   func(r *binReader) Payload { return ScanEvent{Enable: r.u8() != 0} },
		fromJSON: jsonPayload[ScanEvent],
	},
	KindRun: {
		name: "run", qualifier: cola.QualifierMethod, command: cola.NameRun,
		decode:   func(*binReader) Payload { return Run{} },
		fromJSON: jsonPayload[Run],
	},
	KindSetAccessMode: {
		name: "set_access_mode", qualifier: cola.QualifierMethod, command: cola.NameSetAccessMode, width: 5,
		decode: func(r *binReader) Payload {
			return SetAccessMode{Level: r.u8(), Password: r.u32()}
		},
		fromJSON: jsonPayload[SetAccessMode],
	},
	KindSetScanConfig: {
		name: "set_scan_config", qualifier: cola.QualifierMethod, command: cola.NameSetScanConfig, width: 18,
		decode: func(r *binReader) Payload {
			return SetScanConfig{
				Frequency:       r.u32(),
				Sectors:         int16(r.u16()),
				AngleResolution: r.u32(),
				StartAngle:      int32(r.u32()),
				StopAngle:       int32(r.u32()),
			}
		},
		fromJSON: jsonPayload[SetScanConfig],
	},
	KindSetOutput: {
		name: "set_output", qualifier: cola.QualifierMethod, command: cola.NameSetOutput, width: 2,
		decode:   func(r *binReader) Payload { return SetOutput{Output: r.u8(), State: r.u8()} },
		fromJSON: jsonPayload[SetOutput],
	},
	KindReadLCMState: {
		name: "read_lcm_state", qualifier: cola.QualifierRead, command: cola.NameLCMState,
		decode:   func(*binReader) Payload { return ReadLCMState{} },
		fromJSON: jsonPayload[ReadLCMState],
	},
	KindSetDateTime: {
		name: "set_date_time", qualifier: cola.QualifierMethod, command: cola.NameSetDateTime, width: 11,
		decode: func(r *binReader) Payload {
			return SetDateTime{
				Year:        r.u16(),
				Month:       r.u8(),
				Day:         r.u8(),
				Hour:        r.u8(),
				Minute:      r.u8(),
				Second:      r.u8(),
				Microsecond: r.u32(),
			}
		},
		fromJSON: jsonPayload[SetDateTime],
	},
	KindReadOutputState: {
		name: "read_output_state", qualifier: cola.QualifierRead, command: cola.NameOutputState,
		decode:   func(*binReader) Payload { return ReadOutputState{} },
		fromJSON: jsonPayload[ReadOutputState],
	},
	KindResetOutputCounter: {
		name: "reset_output_counter", qualifier: cola.QualifierMethod, command: cola.NameResetOutputCnt,
		decode:   func(*binReader) Payload { return ResetOutputCounter{} },
		fromJSON: jsonPayload[ResetOutputCounter],
	},
	KindReboot: {
		name: "reboot", qualifier: cola.QualifierMethod, command: cola.NameReboot,
		decode:   func(*binReader) Payload { return Reboot{} },
		fromJSON: jsonPayload[Reboot],
	},
	KindScanDataConfig: {
		name: "scan_data_config", qualifier: cola.QualifierWrite, command: cola.NameScanDataConfig, width: 12,
		decode: func(r *binReader) Payload {
			return ScanDataConfig{
				Channel:        r.u8(),
				Remission:      r.u8(),
				Resolution:     r.u8(),
				Unit:           r.u8(),
				Encoder:        r.u16(),
				Position:       r.u8(),
				DeviceName:     r.u8(),
				Comment:        r.u8(),
				Time:           r.u8(),
				OutputInterval: r.u16(),
			}
		},
		fromJSON: jsonPayload[ScanDataConfig],
	},
}

func layoutOf(k CommandKind) (commandLayout, bool) {
	if k == KindNone || int(k) >= len(layouts) {
		return commandLayout{}, false
	}
	return layouts[k], true
}

func (k CommandKind) String() string {
	if int(k) < len(layouts) {
		return layouts[k].name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind resolves a kind from its snake_case name.
func ParseKind(name string) (CommandKind, error) {
	for k := KindNone + 1; int(k) < len(layouts); k++ {
		if layouts[k].name == name {
			return k, nil
		}
	}
	return KindNone, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// Kinds lists every supported command kind.
func Kinds() []CommandKind {
	out := make([]CommandKind, 0, len(layouts)-1)
	for k := KindNone + 1; int(k) < len(layouts); k++ {
		out = append(out, k)
	}
	return out
}

// Encode serializes cmd as STX, the ASCII "<qualifier> <name>" prefix, a
// separator and the big-endian payload fields if there are any, and ETX.
func Encode(cmd Command) ([]byte, error) {
	l, ok := layoutOf(cmd.Kind)
	if !ok || cmd.Payload == nil || cmd.Payload.Kind() != cmd.Kind {
		return nil, &UnsupportedCommandError{Kind: cmd.Kind}
	}

	b := make([]byte, 0, 2+len(l.qualifier)+1+len(l.command)+1+l.width)
	b = append(b, cola.STX)
	b = append(b, l.qualifier...)
	b = append(b, cola.SP)
	b = append(b, l.command...)
	if l.width > 0 {
		b = append(b, cola.SP)
		b = cmd.Payload.appendFields(b)
	}
	return append(b, cola.ETX), nil
}

// DecodeCommand is the inverse of Encode.
func DecodeCommand(raw []byte) (Command, error) {
	if len(raw) < 2 || raw[0] != cola.STX || raw[len(raw)-1] != cola.ETX {
		return Command{}, fmt.Errorf("%w: bad delimiters", ErrMalformedCommand)
	}
	body := raw[1 : len(raw)-1]

	for k := KindNone + 1; int(k) < len(layouts); k++ {
		l := layouts[k]
		prefix := string(l.qualifier) + " " + l.command
		if !bytes.HasPrefix(body, []byte(prefix)) {
			continue
		}
		rest := body[len(prefix):]
		if l.width == 0 {
			if len(rest) != 0 {
				continue
			}
			return NewCommand(l.decode(nil)), nil
		}
		if len(rest) != l.width+1 || rest[0] != cola.SP {
			continue
		}
		r := &binReader{b: rest[1:]}
		return NewCommand(l.decode(r)), nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, body)
}

// UnmarshalCommand builds a command of the named kind from a JSON object
// holding its fields. An empty body yields the zero payload.
func UnmarshalCommand(kind string, data []byte) (Command, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Command{}, err
	}
	p, err := layouts[k].fromJSON(data)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	return NewCommand(p), nil
}

func jsonPayload[P Payload](data []byte) (Payload, error) {
	var p P
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return p, nil
}

// binReader reads fixed-width big-endian fields. Its callers check the
// total length first.
type binReader struct {
	b []byte
}

func (r *binReader) u8() uint8 {
	v := r.b[0]
	r.b = r.b[1:]
	return v
}

func (r *binReader) u16() uint16 {
	v := binary.BigEndian.Uint16(r.b)
	r.b = r.b[2:]
	return v
}

func (r *binReader) u32() uint32 {
	v := binary.BigEndian.Uint32(r.b)
	r.b = r.b[4:]
	return v
}

// ReadDeviceIdent requests the device type and firmware ("sRI 0").
type ReadDeviceIdent struct{}

func (ReadDeviceIdent) Kind() CommandKind            { return KindDeviceIdent }
func (ReadDeviceIdent) appendFields(b []byte) []byte { return b }

// ReadDeviceState polls SCdevicestate.
type ReadDeviceState struct{}

func (ReadDeviceState) Kind() CommandKind            { return KindReadDeviceState }
func (ReadDeviceState) appendFields(b []byte) []byte { return b }

// PollScan requests a single scan.
type PollScan struct{}

func (PollScan) Kind() CommandKind            { return KindPollScan }
func (PollScan) appendFields(b []byte) []byte { return b }

// ScanEvent starts or stops continuous scan output.
type ScanEvent struct {
	Enable bool `json:"enable"`
}

func (ScanEvent) Kind() CommandKind { return KindScanEvent }

func (p ScanEvent) appendFields(b []byte) []byte {
	var v uint8
	if p.Enable {
		v = 1
	}
	return cola.AppendUint8(b, v)
}

// Run leaves the configuration mode.
type Run struct{}

func (Run) Kind() CommandKind            { return KindRun }
func (Run) appendFields(b []byte) []byte { return b }

// SetAccessMode logs in with a user level and password hash.
type SetAccessMode struct {
	Level    uint8  `json:"level"`
	Password uint32 `json:"password"`
}

func (SetAccessMode) Kind() CommandKind { return KindSetAccessMode }

func (p SetAccessMode) appendFields(b []byte) []byte {
	b = cola.AppendUint8(b, p.Level)
	return cola.AppendUint32(b, p.Password)
}

// SetScanConfig changes frequency, resolution and the scan sector.
type SetScanConfig struct {
	Frequency       uint32 `json:"frequency"`
	Sectors         int16  `json:"sectors"`
	AngleResolution uint32 `json:"angle_resolution"`
	StartAngle      int32  `json:"start_angle"`
	StopAngle       int32  `json:"stop_angle"`
}

func (SetScanConfig) Kind() CommandKind { return KindSetScanConfig }

func (p SetScanConfig) appendFields(b []byte) []byte {
	b = cola.AppendUint32(b, p.Frequency)
	b = cola.AppendUint16(b, uint16(p.Sectors))
	b = cola.AppendUint32(b, p.AngleResolution)
	b = cola.AppendUint32(b, uint32(p.StartAngle))
	return cola.AppendUint32(b, uint32(p.StopAngle))
}

// SetOutput switches a digital output.
type SetOutput struct {
	Output uint8 `json:"output"`
	State  uint8 `json:"state"`
}

func (SetOutput) Kind() CommandKind { return KindSetOutput }

func (p SetOutput) appendFields(b []byte) []byte {
	b = cola.AppendUint8(b, p.Output)
	return cola.AppendUint8(b, p.State)
}

// ReadLCMState polls the contamination measurement.
type ReadLCMState struct{}

func (ReadLCMState) Kind() CommandKind            { return KindReadLCMState }
func (ReadLCMState) appendFields(b []byte) []byte { return b }

// SetDateTime sets the device clock.
type SetDateTime struct {
	Year        uint16 `json:"year"`
	Month       uint8  `json:"month"`
	Day         uint8  `json:"day"`
	Hour        uint8  `json:"hour"`
	Minute      uint8  `json:"minute"`
	Second      uint8  `json:"second"`
	Microsecond uint32 `json:"microsecond"`
}

func (SetDateTime) Kind() CommandKind { return KindSetDateTime }

func (p SetDateTime) appendFields(b []byte) []byte {
	b = cola.AppendUint16(b, p.Year)
	for _, v := range []uint8{p.Month, p.Day, p.Hour, p.Minute, p.Second} {
		b = cola.AppendUint8(b, v)
	}
	return cola.AppendUint32(b, p.Microsecond)
}

// ReadOutputState polls the digital output states and counters.
type ReadOutputState struct{}

func (ReadOutputState) Kind() CommandKind            { return KindReadOutputState }
func (ReadOutputState) appendFields(b []byte) []byte { return b }

// ResetOutputCounter clears the output switch counters.
type ResetOutputCounter struct{}

func (ResetOutputCounter) Kind() CommandKind            { return KindResetOutputCounter }
func (ResetOutputCounter) appendFields(b []byte) []byte { return b }

// Reboot restarts the device.
type Reboot struct{}

func (Reboot) Kind() CommandKind            { return KindReboot }
func (Reboot) appendFields(b []byte) []byte { return b }

// ScanDataConfig selects the content of scan telegrams.
type ScanDataConfig struct {
	Channel        uint8  `json:"channel"`
	Remission      uint8  `json:"remission"`
	Resolution     uint8  `json:"resolution"`
	Unit           uint8  `json:"unit"`
	Encoder        uint16 `json:"encoder"`
	Position       uint8  `json:"position"`
	DeviceName     uint8  `json:"device_name"`
	Comment        uint8  `json:"comment"`
	Time           uint8  `json:"time"`
	OutputInterval uint16 `json:"output_interval"`
}

func (ScanDataConfig) Kind() CommandKind { return KindScanDataConfig }

func (p ScanDataConfig) appendFields(b []byte) []byte {
	for _, v := range []uint8{p.Channel, p.Remission, p.Resolution, p.Unit} {
		b = cola.AppendUint8(b, v)
	}
	b = cola.AppendUint16(b, p.Encoder)
	for _, v := range []uint8{p.Position, p.DeviceName, p.Comment, p.Time} {
		b = cola.AppendUint8(b, v)
	}
	return cola.AppendUint16(b, p.OutputInterval)
}
