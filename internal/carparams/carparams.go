// Package carparams decodes the serialized vehicle parameters written by the
// fingerprinting stage. Only the fields the daemon needs are modelled; unknown
// fields are skipped.
package carparams

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrNoSafetyConfig is returned when the params carry no safety configuration.
var ErrNoSafetyConfig = errors.New("carparams: no safety config")

const (
	fieldSafetyConfigs         protowire.Number = 1
	fieldAlternativeExperience protowire.Number = 2
	fieldCarFingerprint        protowire.Number = 3

	fieldSafetyModel protowire.Number = 1
	fieldSafetyParam protowire.Number = 2
)

// SafetyConfig is one (model, param) pair. The first entry configures the transceiver.
type SafetyConfig struct {
	SafetyModel uint16
	SafetyParam uint16
}

// CarParams is the subset of vehicle parameters the daemon consumes.
type CarParams struct {
	SafetyConfigs         []SafetyConfig
	AlternativeExperience uint16
	CarFingerprint        string
}

// Primary returns the first safety config.
func (cp CarParams) Primary() (SafetyConfig, error) {
	if len(cp.SafetyConfigs) == 0 {
		return SafetyConfig{}, ErrNoSafetyConfig
	}
	return cp.SafetyConfigs[0], nil
}

// Parse decodes b. A payload without safety configs is an error.
func Parse(b []byte) (CarParams, error) {
	var cp CarParams
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return CarParams{}, fmt.Errorf("parse car params: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldSafetyConfigs && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return CarParams{}, fmt.Errorf("parse safety config: %w", protowire.ParseError(n))
			}
			sc, err := parseSafetyConfig(v)
			if err != nil {
				return CarParams{}, err
			}
			cp.SafetyConfigs = append(cp.SafetyConfigs, sc)
			b = b[n:]
		case num == fieldAlternativeExperience && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return CarParams{}, fmt.Errorf("parse alternative experience: %w", protowire.ParseError(n))
			}
			cp.AlternativeExperience = uint16(v)
			b = b[n:]
		case num == fieldCarFingerprint && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return CarParams{}, fmt.Errorf("parse car fingerprint: %w", protowire.ParseError(n))
			}
			cp.CarFingerprint = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return CarParams{}, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if len(cp.SafetyConfigs) == 0 {
		return CarParams{}, ErrNoSafetyConfig
	}
	return cp, nil
}

func parseSafetyConfig(b []byte) (SafetyConfig, error) {
	var sc SafetyConfig
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return SafetyConfig{}, fmt.Errorf("parse safety config: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if typ == protowire.VarintType && (num == fieldSafetyModel || num == fieldSafetyParam) {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return SafetyConfig{}, fmt.Errorf("parse safety config: %w", protowire.ParseError(n))
			}
			if num == fieldSafetyModel {
				sc.SafetyModel = uint16(v)
			} else {
				sc.SafetyParam = uint16(v)
			}
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return SafetyConfig{}, fmt.Errorf("parse safety config: %w", protowire.ParseError(n))
		}
		b = b[n:]
	}
	return sc, nil
}

// Marshal encodes cp in the layout Parse reads.
func Marshal(cp CarParams) []byte {
	var b []byte
	for _, sc := range cp.SafetyConfigs {
		var inner []byte
		inner = protowire.AppendTag(inner, fieldSafetyModel, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(sc.SafetyModel))
		inner = protowire.AppendTag(inner, fieldSafetyParam, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(sc.SafetyParam))
		b = protowire.AppendTag(b, fieldSafetyConfigs, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	if cp.AlternativeExperience != 0 {
		b = protowire.AppendTag(b, fieldAlternativeExperience, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(cp.AlternativeExperience))
	}
	if cp.CarFingerprint != "" {
		b = protowire.AppendTag(b, fieldCarFingerprint, protowire.BytesType)
		b = protowire.AppendString(b, cp.CarFingerprint)
	}
	return b
}
