// Package messaging carries typed events between the daemon and the rest of
// the stack over a publish/subscribe bus.
package messaging

import "time"

// Topic names a stream of events.
type Topic string

// Topics produced or consumed by the daemon.
const (
	TopicCan               Topic = "can"
	TopicSendcan           Topic = "sendcan"
	TopicPandaStates       Topic = "pandaStates"
	TopicPeripheralState   Topic = "peripheralState"
	TopicSelfdriveState    Topic = "selfdriveState"
	TopicDeviceState       Topic = "deviceState"
	TopicDriverCameraState Topic = "driverCameraState"
)

// Event is the envelope published on every topic. Exactly one payload field is set, matching the topic.
// LogMonoTime is the MonoTime stamp that staleness checks compare against.
// LogTime is the wall clock at publish in Unix nanoseconds, for display and storage only.
type Event struct {
	LogMonoTime int64 `json:"logMonoTime"`
	LogTime     int64 `json:"logTime,omitempty"`
	Valid       bool  `json:"valid"`

	Can               []CanData          `json:"can,omitempty"`
	Sendcan           []CanData          `json:"sendcan,omitempty"`
	PandaStates       []PandaState       `json:"pandaStates,omitempty"`
	PeripheralState   *PeripheralState   `json:"peripheralState,omitempty"`
	SelfdriveState    *SelfdriveState    `json:"selfdriveState,omitempty"`
	DeviceState       *DeviceState       `json:"deviceState,omitempty"`
	DriverCameraState *DriverCameraState `json:"driverCameraState,omitempty"`
}

// WallTime returns the publish wall clock, or now when the event was never stamped.
func (ev Event) WallTime() time.Time {
	if ev.LogTime == 0 {
		return time.Now()
	}
	return time.Unix(0, ev.LogTime)
}

// CanData is one CAN frame on the bus.
type CanData struct {
	Address uint32 `json:"address"`
	Dat     []byte `json:"dat"`
	Src     uint8  `json:"src"`
}

// PandaState is the device health snapshot.
type PandaState struct {
	Voltage               uint32  `json:"voltage"`
	Current               uint32  `json:"current"`
	Uptime                uint32  `json:"uptime"`
	SafetyTxBlocked       uint32  `json:"safetyTxBlocked"`
	SafetyRxInvalid       uint32  `json:"safetyRxInvalid"`
	IgnitionLine          bool    `json:"ignitionLine"`
	IgnitionCan           bool    `json:"ignitionCan"`
	ControlsAllowed       bool    `json:"controlsAllowed"`
	TxBufferOverflow      uint32  `json:"txBufferOverflow"`
	RxBufferOverflow      uint32  `json:"rxBufferOverflow"`
	PandaType             string  `json:"pandaType"`
	SafetyModel           uint16  `json:"safetyModel"`
	SafetyParam           uint16  `json:"safetyParam"`
	FaultStatus           uint32  `json:"faultStatus"`
	PowerSaveEnabled      bool    `json:"powerSaveEnabled"`
	HeartbeatLost         bool    `json:"heartbeatLost"`
	AlternativeExperience uint16  `json:"alternativeExperience"`
	HarnessStatus         string  `json:"harnessStatus"`
	InterruptLoad         float32 `json:"interruptLoad"`
	FanPower              uint8   `json:"fanPower"`
	SafetyRxChecksInvalid bool    `json:"safetyRxChecksInvalid"`
	SpiErrorCount         uint16  `json:"spiErrorCount"`
	Sbu1Voltage           float64 `json:"sbu1Voltage"`
	Sbu2Voltage           float64 `json:"sbu2Voltage"`

	CanState0 PandaCanState `json:"canState0"`
	CanState1 PandaCanState `json:"canState1"`
	CanState2 PandaCanState `json:"canState2"`

	Faults []int `json:"faults,omitempty"`
}

// CanStates returns the per-bus states in bus order.
func (p *PandaState) CanStates() [3]*PandaCanState {
	return [3]*PandaCanState{&p.CanState0, &p.CanState1, &p.CanState2}
}

// PandaCanState is the health of one CAN bus.
type PandaCanState struct {
	BusOff              bool   `json:"busOff"`
	BusOffCnt           uint32 `json:"busOffCnt"`
	ErrorWarning        bool   `json:"errorWarning"`
	ErrorPassive        bool   `json:"errorPassive"`
	LastError           string `json:"lastError"`
	LastStoredError     string `json:"lastStoredError"`
	LastDataError       string `json:"lastDataError"`
	LastDataStoredError string `json:"lastDataStoredError"`
	ReceiveErrorCnt     uint8  `json:"receiveErrorCnt"`
	TransmitErrorCnt    uint8  `json:"transmitErrorCnt"`
	TotalErrorCnt       uint32 `json:"totalErrorCnt"`
	TotalTxLostCnt      uint32 `json:"totalTxLostCnt"`
	TotalRxLostCnt      uint32 `json:"totalRxLostCnt"`
	TotalTxCnt          uint32 `json:"totalTxCnt"`
	TotalRxCnt          uint32 `json:"totalRxCnt"`
	TotalFwdCnt         uint32 `json:"totalFwdCnt"`
	CanSpeed            uint16 `json:"canSpeed"`
	CanDataSpeed        uint16 `json:"canDataSpeed"`
	CanfdEnabled        bool   `json:"canfdEnabled"`
	BrsEnabled          bool   `json:"brsEnabled"`
	CanfdNonIso         bool   `json:"canfdNonIso"`
	Irq0CallRate        uint32 `json:"irq0CallRate"`
	Irq1CallRate        uint32 `json:"irq1CallRate"`
	Irq2CallRate        uint32 `json:"irq2CallRate"`
	CanCoreResetCnt     uint32 `json:"canCoreResetCnt"`
}

// PeripheralState is the low-rate power and fan snapshot. FanSpeedRpm is nil when the read failed.
type PeripheralState struct {
	PandaType   string `json:"pandaType"`
	Voltage     uint32 `json:"voltage"`
	Current     uint32 `json:"current"`
	FanSpeedRpm *int   `json:"fanSpeedRpm,omitempty"`
}

// SelfdriveState carries the engagement flag.
type SelfdriveState struct {
	Enabled bool `json:"enabled"`
}

// DeviceState carries the thermal manager's fan target.
type DeviceState struct {
	FanSpeedPercentDesired int  `json:"fanSpeedPercentDesired"`
	Started                bool `json:"started"`
}

// DriverCameraState carries the driver camera exposure.
type DriverCameraState struct {
	FrameID    uint32  `json:"frameId"`
	IntegLines float64 `json:"integLines"`
}
