package config

import "os"

// Env holds the best-effort environment toggles. Presence of the variable enables the toggle.
type Env struct {
	Loopback          bool // BOARDD_LOOPBACK
	SkipFirmwareCheck bool // BOARDD_SKIP_FW_CHECK
	NoFanControl      bool // NO_FAN_CONTROL
	FakeSend          bool // FAKESEND
	SpoofStarted      bool // STARTED
}

// LoadEnv reads the toggles from the process environment.
func LoadEnv() Env {
	return Env{
		Loopback:          isSet("BOARDD_LOOPBACK"),
		SkipFirmwareCheck: isSet("BOARDD_SKIP_FW_CHECK"),
		NoFanControl:      isSet("NO_FAN_CONTROL"),
		FakeSend:          isSet("FAKESEND"),
		SpoofStarted:      isSet("STARTED"),
	}
}

func isSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}
