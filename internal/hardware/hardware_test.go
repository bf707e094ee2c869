package hardware

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSysfsReadsSensors(t *testing.T) {
	dir := t.TempDir()
	vp := filepath.Join(dir, "in1_input")
	cp := filepath.Join(dir, "curr1_input")
	os.WriteFile(vp, []byte("12034\n"), 0o644)
	os.WriteFile(cp, []byte("-850\n"), 0o644)

	s := &Sysfs{VoltagePath: vp, CurrentPath: cp}
	if s.PC() {
		t.Fatalf("sysfs platform is not a PC")
	}
	v, err := s.Voltage()
	if err != nil || v != 12034 {
		t.Fatalf("voltage = %d, %v", v, err)
	}
	c, err := s.Current()
	if err != nil || c != 850 {
		t.Fatalf("current = %d, %v", c, err)
	}
}

func TestSysfsMissingSensor(t *testing.T) {
	s := &Sysfs{}
	if _, err := s.Voltage(); !errors.Is(err, ErrNoSensor) {
		t.Fatalf("err = %v", err)
	}
	s.CurrentPath = filepath.Join(t.TempDir(), "missing")
	if _, err := s.Current(); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestSysfsSetIRPower(t *testing.T) {
	p := filepath.Join(t.TempDir(), "ir")
	s := &Sysfs{IRPath: p}
	if err := s.SetIRPower(42); err != nil {
		t.Fatalf("SetIRPower: %v", err)
	}
	b, _ := os.ReadFile(p)
	if string(b) != "42" {
		t.Fatalf("wrote %q", b)
	}
	if err := s.SetIRPower(101); err == nil {
		t.Fatalf("expected range error")
	}
	if err := (&Sysfs{}).SetIRPower(10); err != nil {
		t.Fatalf("no path should be a no-op: %v", err)
	}
}

func TestPCPlatform(t *testing.T) {
	var p Platform = PCPlatform{}
	if !p.PC() {
		t.Fatalf("expected PC")
	}
	if v, err := p.Voltage(); v != 0 || err != nil {
		t.Fatalf("voltage = %d, %v", v, err)
	}
}
