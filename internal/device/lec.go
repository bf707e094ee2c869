package device

// LastError is a CAN controller last-error code.
type LastError uint8

const (
	LecNoError LastError = iota
	LecStuffError
	LecFormError
	LecAckError
	LecBit1Error
	LecBit0Error
	LecCRCError
	LecNoChange
	// LecUnknown marks a code the table does not know. It is never folded into LecNoError.
	LecUnknown
)

// lecTable maps each code to the driver's text and the published name.
var lecTable = [...]struct {
	driver string
	wire   string
}{
	LecNoError:    {"No error", "noError"},
	LecStuffError: {"Stuff error", "stuffError"},
	LecFormError:  {"Form error", "formError"},
	LecAckError:   {"AckError", "ackError"},
	LecBit1Error:  {"Bit1Error", "bit1Error"},
	LecBit0Error:  {"Bit0Error", "bit0Error"},
	LecCRCError:   {"CRCError", "crcError"},
	LecNoChange:   {"NoChange", "noChange"},
	LecUnknown:    {"", "unknown"},
}

var lecByDriver = func() map[string]LastError {
	m := make(map[string]LastError, len(lecTable))
	for code, e := range lecTable {
		if e.driver != "" {
			m[e.driver] = LastError(code)
		}
	}
	return m
}()

// ParseLastError maps the driver's text for a code. Unmapped text yields LecUnknown.
func ParseLastError(s string) LastError {
	if code, ok := lecByDriver[s]; ok {
		return code
	}
	return LecUnknown
}

// LastErrorFromCode maps the controller's 3-bit numeric code.
func LastErrorFromCode(code uint8) LastError {
	if code < uint8(LecUnknown) {
		return LastError(code)
	}
	return LecUnknown
}

// String returns the published name of the code.
func (e LastError) String() string {
	if int(e) < len(lecTable) {
		return lecTable[e].wire
	}
	return lecTable[LecUnknown].wire
}

// DriverString returns the driver's text for the code, empty for LecUnknown.
func (e LastError) DriverString() string {
	if int(e) < len(lecTable) {
		return lecTable[e].driver
	}
	return ""
}
