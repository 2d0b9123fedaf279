package sopas

import (
	"fmt"
	"time"
)

// Message is one decoded inbound telegram. Name returns the SOPAS command
// name the message answers, or the error marker for DeviceError.
type Message interface {
	Name() string
}

// DeviceError is an error reported by the device itself ("sFA"). Code is
// the decoded value, Index the clamped position in the error table.
type DeviceError struct {
	Code        uint64 `json:"code"`
	Index       int    `json:"index"`
	Description string `json:"description"`
}

func (*DeviceError) Name() string { return "sFA" }

func (e *DeviceError) Error() string {
	return fmt.Sprintf("sopas: device error %d: %s", e.Code, e.Description)
}

// ScanEventAck answers a scan output subscription ("sEA LMDscandata").
type ScanEventAck struct {
	Measurement int `json:"measurement"`
}

func (ScanEventAck) Name() string { return "LMDscandata" }

// RunResult answers "sMN Run". Success is 1.
type RunResult struct {
	Success int `json:"success"`
}

func (RunResult) Name() string { return "Run" }

// AccessModeResult answers "sMN SetAccessMode". Success is 1.
type AccessModeResult struct {
	Success int `json:"success"`
}

func (AccessModeResult) Name() string { return "SetAccessMode" }

// SetDateTimeResult answers "sMN LSPsetdatetime".
type SetDateTimeResult struct {
	Success int `json:"success"`
}

func (SetDateTimeResult) Name() string { return "LSPsetdatetime" }

// ScanConfigStatus is the status code of a scan configuration change.
type ScanConfigStatus uint8

const (
	ScanConfigOK ScanConfigStatus = iota
	ScanConfigFrequencyError
	ScanConfigResolutionError
	ScanConfigResolutionAndAreaError
	ScanConfigAreaError
	ScanConfigOtherError
)

func (s ScanConfigStatus) String() string {
	switch s {
	case ScanConfigOK:
		return "ok"
	case ScanConfigFrequencyError:
		return "frequency error"
	case ScanConfigResolutionError:
		return "resolution error"
	case ScanConfigResolutionAndAreaError:
		return "resolution and scan area error"
	case ScanConfigAreaError:
		return "scan area error"
	case ScanConfigOtherError:
		return "other error"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ScanConfigResult answers "sMN mLMPsetscancfg" with the configuration the
// device actually applied. Frequency is in 1/100 Hz, angles in 1/10000 deg.
type ScanConfigResult struct {
	Status          ScanConfigStatus `json:"status"`
	Frequency       uint32           `json:"frequency"`
	Sectors         int16            `json:"sectors"`
	AngleResolution uint32           `json:"angle_resolution"`
	StartAngle      int32            `json:"start_angle"`
	StopAngle       int32            `json:"stop_angle"`
}

func (ScanConfigResult) Name() string { return "mLMPsetscancfg" }

// LCMState reports the contamination measurement: 0 none, 1 warning,
// 2 error, 3 severe error.
type LCMState struct {
	State int `json:"state"`
}

func (LCMState) Name() string { return "LCMstate" }

// DeviceState reports the operating state: 0 busy, 1 ready, 2 error.
type DeviceState struct {
	State int `json:"state"`
}

func (DeviceState) Name() string { return "SCdevicestate" }

// OutputChannel is the state and switch counter of one digital output.
type OutputChannel struct {
	State int    `json:"state"`
	Count uint32 `json:"count"`
}

// OutputState answers "sRN LIDoutputstate".
type OutputState struct {
	Status   uint32          `json:"status"`
	Outputs  []OutputChannel `json:"outputs"`
	External []OutputChannel `json:"external"`
}

func (OutputState) Name() string { return "LIDoutputstate" }

// SetOutputResult answers "sMN mDOSetOutput". Success is 1.
type SetOutputResult struct {
	Success int `json:"success"`
}

func (SetOutputResult) Name() string { return "mDOSetOutput" }

// ResetOutputCounterResult answers "sMN LIDrstoutpcnt". Success is 0.
type ResetOutputCounterResult struct {
	Success int `json:"success"`
}

func (ResetOutputCounterResult) Name() string { return "LIDrstoutpcnt" }

// RebootAck answers "sMN mSCreboot". At is the local receive time.
type RebootAck struct {
	At time.Time `json:"at"`
}

func (RebootAck) Name() string { return "mSCreboot" }

// DeviceIdent answers "sRI 0" with the device type and firmware text.
type DeviceIdent struct {
	Text string `json:"text"`
}

func (DeviceIdent) Name() string { return "DeviceIdent" }

// ScanDataConfigAck answers "sWN LMDscandatacfg".
type ScanDataConfigAck struct {
	Status int `json:"status"`
}

func (ScanDataConfigAck) Name() string { return "LMDscandatacfg" }
