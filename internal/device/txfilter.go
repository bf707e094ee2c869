package device

// TxPolicy reproduces the transceiver's host-write filter for backends that
// have no firmware of their own (SocketCAN, simulation).
type TxPolicy struct {
	Model           SafetyModel
	Param           uint16
	ControlsAllowed bool
}

// Allowed reports whether f may be written to the bus under the policy.
func (p TxPolicy) Allowed(f Frame) bool {
	switch p.Model {
	case SafetySilent, SafetyNoOutput:
		return false
	case SafetyAllOutput:
		return true
	case SafetyELM327:
		return len(f.Data) == 8 && isDiagnosticAddress(f.Address)
	default:
		// diagnostic traffic stays allowed while a vehicle model is waiting for engagement
		return p.ControlsAllowed || (len(f.Data) == 8 && isDiagnosticAddress(f.Address))
	}
}

func isDiagnosticAddress(addr uint32) bool {
	switch {
	case addr == 0x7DF:
		return true
	case addr >= 0x7E0 && addr <= 0x7E7:
		return true
	case addr == 0x18DB33F1:
		return true
	case addr&0x1FFF00FF == 0x18DA00F1:
		return true
	}
	return false
}
