// CUE schema validation code
package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// MaxBuses is the number of CAN buses on one transceiver.
const MaxBuses = 3

// ValidateWithCue validates YAML config bytes against the #Config definition of a CUE schema.
func ValidateWithCue(configYAML, cueSchema []byte) error {
	ctx := cuecontext.New()

	var doc map[string]interface{}
	if err := yaml.Unmarshal(configYAML, &doc); err != nil {
		return fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	schemaVal := ctx.CompileBytes(cueSchema, cue.Filename("schema.cue"))
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", err)
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("CUE schema has no #Config definition")
	}

	final := def.Unify(ctx.Encode(doc))
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints the schema cannot express.
func Validate(cfg *Config) error {
	if len(cfg.Device.Buses) > MaxBuses {
		return fmt.Errorf("device.buses: at most %d buses, got %d", MaxBuses, len(cfg.Device.Buses))
	}
	if cfg.Loop.RateHz <= 0 {
		return fmt.Errorf("loop.rate_hz must be > 0")
	}
	// The 2 Hz phase runs every 50 ticks, so slower loops would starve it.
	if cfg.Loop.RateHz < 50 {
		return fmt.Errorf("loop.rate_hz must be >= 50, got %d", cfg.Loop.RateHz)
	}
	if cfg.Telemetry.GreptimeEndpoint != "" && cfg.Telemetry.Table == "" {
		return fmt.Errorf("telemetry.table required when greptime_endpoint is set")
	}
	return nil
}
