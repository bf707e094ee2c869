// YAML config loader with CUE validation integration
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var defaultSchema []byte

// DeviceConfig selects and parameterizes the transceiver driver.
type DeviceConfig struct {
	Driver    string   `yaml:"driver"`
	Serial    string   `yaml:"serial"`
	Buses     []string `yaml:"buses"`
	DebugPort string   `yaml:"debug_port"`
	DebugBaud int      `yaml:"debug_baud"`
}

// LoopConfig controls the fixed-rate control loop.
type LoopConfig struct {
	RateHz                int `yaml:"rate_hz"`
	PrintDelayThresholdMs int `yaml:"print_delay_threshold_ms"`
	RealtimeCore          int `yaml:"realtime_core"`
	RealtimePriority      int `yaml:"realtime_priority"`
}

// BusConfig selects the message bus transport. An empty broker means in-process.
type BusConfig struct {
	MQTTBroker  string `yaml:"mqtt_broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// ParamsConfig locates the persistent key-value store.
type ParamsConfig struct {
	Dir string `yaml:"dir"`
}

// HwmonConfig holds sysfs paths of the platform sensors.
type HwmonConfig struct {
	VoltagePath string `yaml:"voltage_path"`
	CurrentPath string `yaml:"current_path"`
	IRPath      string `yaml:"ir_path"`
}

// TelemetryConfig configures the health sinks. Every sink is optional.
type TelemetryConfig struct {
	GreptimeEndpoint string `yaml:"greptime_endpoint"`
	GreptimePort     int    `yaml:"greptime_port"`
	Database         string `yaml:"database"`
	Table            string `yaml:"table"`
	PeripheralTable  string `yaml:"peripheral_table"`
	LogFile          string `yaml:"log_file"`
	Stdout           bool   `yaml:"stdout"`
}

// AdminConfig configures the read-only status server. Empty Addr disables it.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root daemon configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	PC        bool            `yaml:"pc"`
	Device    DeviceConfig    `yaml:"device"`
	Loop      LoopConfig      `yaml:"loop"`
	Bus       BusConfig       `yaml:"bus"`
	Params    ParamsConfig    `yaml:"params"`
	Hwmon     HwmonConfig     `yaml:"hwmon"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Admin     AdminConfig     `yaml:"admin"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Device: DeviceConfig{
			Driver:    "socketcan",
			Buses:     []string{"can0", "can1", "can2"},
			DebugBaud: 115200,
		},
		Loop: LoopConfig{
			RateHz:                100,
			PrintDelayThresholdMs: 10,
			RealtimeCore:          3,
			RealtimePriority:      54,
		},
		Bus: BusConfig{
			TopicPrefix: "pandad",
		},
		Params: ParamsConfig{
			Dir: "/data/params/d",
		},
		Hwmon: HwmonConfig{
			VoltagePath: "/sys/class/hwmon/hwmon1/in1_input",
			CurrentPath: "/sys/class/hwmon/hwmon1/curr1_input",
		},
		Telemetry: TelemetryConfig{
			GreptimePort:    4001,
			Database:        "public",
			Table:           "panda_states",
			PeripheralTable: "peripheral_states",
		},
	}
}

// Load reads a YAML config, validates it against the CUE schema and overlays it on Default.
// An empty configPath returns the defaults. An empty cueSchemaPath uses the embedded schema.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	cfg := Default()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	schema := defaultSchema
	if cueSchemaPath != "" {
		schema, err = os.ReadFile(cueSchemaPath)
		if err != nil {
			return nil, fmt.Errorf("read CUE schema: %w", err)
		}
	}
	if err := ValidateWithCue(data, schema); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
