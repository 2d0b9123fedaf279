package sopas

// ErrorTable maps SOPAS error codes to descriptions. The last entry is the
// catch-all for codes past the named range.
type ErrorTable []string

// DefaultErrorTable holds the 27 named SOPAS error codes followed by the
// catch-all entry at index 27.
var DefaultErrorTable = ErrorTable{
	"Sopas_Ok",
	"Sopas_Error_METHODIN_ACCESSDENIED",
	"Sopas_Error_METHODIN_UNKNOWNINDEX",
	"Sopas_Error_VARIABLE_UNKNOWNINDEX",
	"Sopas_Error_LOCALCONDITIONFAILED",
	"Sopas_Error_INVALID_DATA",
	"Sopas_Error_UNKNOWN_ERROR",
	"Sopas_Error_BUFFER_OVERFLOW",
	"Sopas_Error_BUFFER_UNDERFLOW",
	"Sopas_Error_ERROR_UNKNOWN_TYPE",
	"Sopas_Error_VARIABLE_WRITE_ACCESSDENIED",
	"Sopas_Error_UNKNOWN_CMD_FOR_NAMESERVER",
	"Sopas_Error_UNKNOWN_COLA_COMMAND",
	"Sopas_Error_METHODIN_SERVER_BUSY",
	"Sopas_Error_FLEX_OUT_OF_BOUNDS",
	"Sopas_Error_EVENTREG_UNKNOWNINDEX",
	"Sopas_Error_COLA_A_VALUE_OVERFLOW",
	"Sopas_Error_COLA_A_INVALID_CHARACTER",
	"Sopas_Error_OSAI_NO_MESSAGE",
	"Sopas_Error_OSAI_NO_ANSWER_MESSAGE",
	"Sopas_Error_INTERNAL",
	"Sopas_Error_HubAddressCorrupted",
	"Sopas_Error_HubAddressDecoding",
	"Sopas_Error_HubAddressAddressExceeded",
	"Sopas_Error_HubAddressBlankExpected",
	"Sopas_Error_AsyncMethodsAreSuppressed",
	"Sopas_Error_ComplexArraysNotSupported",
	"no defined error",
}

// Lookup clamps code to the table and returns its index and description.
// An empty table describes every code as "no defined error".
func (t ErrorTable) Lookup(code uint64) (int, string) {
	if len(t) == 0 {
		return int(min(code, uint64(len(DefaultErrorTable)-1))), "no defined error"
	}
	last := uint64(len(t) - 1)
	if code > last {
		code = last
	}
	return int(code), t[code]
}
