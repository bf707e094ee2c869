package pandad

import (
	"fmt"
	"log/slog"

	"pandad/internal/carparams"
	"pandad/internal/device"
	"pandad/internal/params"
)

// SafetyState is the progress of the onroad safety handshake.
type SafetyState int

const (
	StateUninitialized SafetyState = iota
	StateFingerprinting
	StateMultiplexingSynced
	StateConfigured
)

func (s SafetyState) String() string {
	switch s {
	case StateFingerprinting:
		return "fingerprinting"
	case StateMultiplexingSynced:
		return "multiplexing_synced"
	case StateConfigured:
		return "configured"
	default:
		return "uninitialized"
	}
}

// SafetyStateMachine arms the vehicle safety mode once fingerprinting and
// controls are confirmed. Until then only ELM327 or NO_OUTPUT is written.
type SafetyStateMachine struct {
	dev    device.Device
	params params.Store
	log    *slog.Logger

	state           SafetyState
	prevMultiplexed bool
	loggedWaiting   bool
}

func NewSafetyStateMachine(dev device.Device, store params.Store, log *slog.Logger) *SafetyStateMachine {
	return &SafetyStateMachine{dev: dev, params: store, log: log}
}

// State returns the current handshake state.
func (s *SafetyStateMachine) State() SafetyState { return s.state }

// Configure advances the handshake for one 10 Hz tick. A device write error
// leaves the state unchanged so the write is retried on the next tick.
func (s *SafetyStateMachine) Configure(onroad bool) error {
	if !onroad {
		s.reset()
		return nil
	}
	if s.state == StateConfigured {
		return nil
	}

	if err := s.updateMultiplexing(); err != nil {
		return err
	}

	raw, ok := s.fetchCarParams()
	if !ok {
		return nil
	}
	cp, err := carparams.Parse(raw)
	if err != nil {
		s.log.Error("invalid CarParams, retrying", "bytes", len(raw), "err", err)
		return nil
	}
	s.log.Warn("got CarParams", "bytes", len(raw), "fingerprint", cp.CarFingerprint)
	return s.apply(cp)
}

func (s *SafetyStateMachine) reset() {
	if s.state != StateUninitialized {
		s.log.Info("leaving onroad, safety reset", "from", s.state)
	}
	s.state = StateUninitialized
	s.prevMultiplexed = false
	s.loggedWaiting = false
}

func (s *SafetyStateMachine) updateMultiplexing() error {
	if s.state == StateUninitialized {
		// fingerprint without OBD multiplexing
		if err := s.dev.SetSafetyMode(device.SafetyELM327, device.ELM327ParamNoMultiplexing); err != nil {
			return fmt.Errorf("set elm327 safety mode: %w", err)
		}
		s.prevMultiplexed = false
		s.state = StateFingerprinting
	}

	requested := s.params.GetBool(params.ObdMultiplexingEnabled)
	if requested == s.prevMultiplexed {
		return nil
	}
	param := device.ELM327ParamNoMultiplexing
	if requested {
		param = device.ELM327ParamMultiplexing
	}
	if err := s.dev.SetSafetyMode(device.SafetyELM327, param); err != nil {
		return fmt.Errorf("set elm327 multiplexing %t: %w", requested, err)
	}
	s.prevMultiplexed = requested
	if err := s.params.PutBool(params.ObdMultiplexingChanged, true); err != nil {
		s.log.Error("write ObdMultiplexingChanged failed", "err", err)
	}
	s.state = StateMultiplexingSynced
	return nil
}

func (s *SafetyStateMachine) fetchCarParams() ([]byte, bool) {
	if !s.params.GetBool(params.FirmwareQueryDone) {
		return nil, false
	}
	if !s.loggedWaiting {
		s.log.Warn("finished fw query, waiting for params to set safety model")
		s.loggedWaiting = true
	}
	if !s.params.GetBool(params.ControlsReady) {
		return nil, false
	}
	raw, err := s.params.Get(params.CarParams)
	if err != nil {
		s.log.Error("read CarParams failed", "err", err)
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

func (s *SafetyStateMachine) apply(cp carparams.CarParams) error {
	sc, err := cp.Primary()
	if err != nil {
		return err
	}
	model := device.SafetyModel(sc.SafetyModel)
	s.log.Warn("setting safety model", "model", sc.SafetyModel, "param", sc.SafetyParam, "alternative_experience", cp.AlternativeExperience)
	if err := s.dev.SetAlternativeExperience(cp.AlternativeExperience); err != nil {
		return fmt.Errorf("set alternative experience: %w", err)
	}
	if err := s.dev.SetSafetyMode(model, sc.SafetyParam); err != nil {
		return fmt.Errorf("set safety mode %d: %w", sc.SafetyModel, err)
	}
	s.state = StateConfigured
	return nil
}
