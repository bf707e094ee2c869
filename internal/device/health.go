package device

// SafetyModel is the transceiver-enforced policy for host CAN writes.
type SafetyModel uint16

// Safety models with a meaning to the daemon. Any other value is a
// vehicle-specific model and is passed through verbatim.
const (
	SafetySilent    SafetyModel = 0
	SafetyELM327    SafetyModel = 3
	SafetyAllOutput SafetyModel = 17
	SafetyNoOutput  SafetyModel = 19
)

func (m SafetyModel) String() string {
	switch m {
	case SafetySilent:
		return "silent"
	case SafetyELM327:
		return "elm327"
	case SafetyAllOutput:
		return "allOutput"
	case SafetyNoOutput:
		return "noOutput"
	default:
		return "vehicle"
	}
}

// ELM327 safety params. Multiplexing enabled means the OBD port is shared.
const (
	ELM327ParamMultiplexing   uint16 = 0
	ELM327ParamNoMultiplexing uint16 = 1
)

// HardwareType identifies the transceiver board.
type HardwareType uint8

const (
	HwUnknown HardwareType = iota
	HwWhitePanda
	HwGreyPanda
	HwBlackPanda
	HwPedal
	HwUno
	HwDos
	HwRedPanda
	HwRedPandaV2
	HwTres
	HwCuatro
)

var hardwareNames = [...]string{
	HwUnknown:    "unknown",
	HwWhitePanda: "whitePanda",
	HwGreyPanda:  "greyPanda",
	HwBlackPanda: "blackPanda",
	HwPedal:      "pedal",
	HwUno:        "uno",
	HwDos:        "dos",
	HwRedPanda:   "redPanda",
	HwRedPandaV2: "redPandaV2",
	HwTres:       "tres",
	HwCuatro:     "cuatro",
}

// HardwareTypeFromRaw maps the raw board byte. Unlisted values are unknown.
func HardwareTypeFromRaw(raw byte) HardwareType {
	if int(raw) < len(hardwareNames) {
		return HardwareType(raw)
	}
	return HwUnknown
}

func (h HardwareType) String() string {
	if int(h) < len(hardwareNames) {
		return hardwareNames[h]
	}
	return hardwareNames[HwUnknown]
}

// HarnessStatus is the wiring-harness connector state.
type HarnessStatus uint8

const (
	HarnessNotConnected HarnessStatus = iota
	HarnessNormal
	HarnessFlipped
)

func (h HarnessStatus) String() string {
	switch h {
	case HarnessNormal:
		return "normal"
	case HarnessFlipped:
		return "flipped"
	default:
		return "notConnected"
	}
}

// Fault bit range reported in Health.Faults.
const (
	FaultRelayMalfunction      = 0
	FaultHeartbeatLoopWatchdog = 26
)

// Health is one point-in-time read of the transceiver.
type Health struct {
	Voltage               uint32 // mV
	Current               uint32 // mA
	Uptime                uint32
	SafetyTxBlocked       uint32
	SafetyRxInvalid       uint32
	IgnitionLine          bool
	IgnitionCan           bool
	ControlsAllowed       bool
	TxBufferOverflow      uint32
	RxBufferOverflow      uint32
	SafetyModel           SafetyModel
	SafetyParam           uint16
	Faults                uint32
	PowerSaveEnabled      bool
	HeartbeatLost         bool
	AlternativeExperience uint16
	HarnessStatus         HarnessStatus
	InterruptLoad         float32
	FanPower              uint8
	SafetyRxChecksInvalid bool
	SpiErrorCount         uint16
	SBU1VoltageMV         uint32
	SBU2VoltageMV         uint32
}

// FaultSet returns the set fault codes in ascending order, or nil when none are set.
func (h Health) FaultSet() []int {
	return DecodeFaults(h.Faults)
}

// DecodeFaults extracts the codes in [FaultRelayMalfunction, FaultHeartbeatLoopWatchdog].
func DecodeFaults(bits uint32) []int {
	var faults []int
	for f := FaultRelayMalfunction; f <= FaultHeartbeatLoopWatchdog; f++ {
		if bits&(1<<uint(f)) != 0 {
			faults = append(faults, f)
		}
	}
	return faults
}

// CanHealth is one point-in-time read of a single CAN bus.
type CanHealth struct {
	BusOff              bool
	BusOffCnt           uint32
	ErrorWarning        bool
	ErrorPassive        bool
	LastError           LastError
	LastStoredError     LastError
	LastDataError       LastError
	LastDataStoredError LastError
	ReceiveErrorCnt     uint8
	TransmitErrorCnt    uint8
	TotalErrorCnt       uint32
	TotalTxLostCnt      uint32
	TotalRxLostCnt      uint32
	TotalTxCnt          uint32
	TotalRxCnt          uint32
	TotalFwdCnt         uint32
	CanSpeed            uint16 // kbps
	CanDataSpeed        uint16 // kbps
	CanfdEnabled        bool
	BrsEnabled          bool
	CanfdNonIso         bool
	Irq0CallRate        uint32
	Irq1CallRate        uint32
	Irq2CallRate        uint32
	CanCoreResetCnt     uint32
}
