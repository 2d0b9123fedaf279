// Package cola implements the CoLa-A wire layer spoken by SICK laser
// scanners: STX/ETX telegram framing, space tokenization, ASCII-hex field
// decoding and the (qualifier, name) identity carried by every telegram.
package cola

const (
	// Framing
	STX byte = 0x02
	ETX byte = 0x03
	SP  byte = 0x20

	// DefaultMaxTelegramSize bounds one telegram including both markers.
	DefaultMaxTelegramSize = 64 * 1024
)

// Qualifier is the outcome/kind prefix found in token 0 of a telegram.
type Qualifier string

const (
	// Answers sent by the device
	QualifierAck         Qualifier = "sAN" // method acknowledge
	QualifierReadAnswer  Qualifier = "sRA" // read-by-name answer
	QualifierWriteAnswer Qualifier = "sWA" // write-by-name answer
	QualifierEventAnswer Qualifier = "sEA" // event subscription answer
	QualifierNotify      Qualifier = "sSN" // event notification
	QualifierError       Qualifier = "sFA" // SOPAS error

	// Requests sent to the device
	QualifierMethod     Qualifier = "sMN"
	QualifierRead       Qualifier = "sRN"
	QualifierReadIndex  Qualifier = "sRI"
	QualifierWrite      Qualifier = "sWN"
	QualifierEventStart Qualifier = "sEN"
)

// Command names handled by this driver.
const (
	NameScanData       = "LMDscandata"
	NameScanDataConfig = "LMDscandatacfg"
	NameRun            = "Run"
	NameSetAccessMode  = "SetAccessMode"
	NameSetDateTime    = "LSPsetdatetime"
	NameSetScanConfig  = "mLMPsetscancfg"
	NameLCMState       = "LCMstate"
	NameDeviceState    = "SCdevicestate"
	NameOutputState    = "LIDoutputstate"
	NameSetOutput      = "mDOSetOutput"
	NameResetOutputCnt = "LIDrstoutpcnt"
	NameReboot         = "mSCreboot"
)
