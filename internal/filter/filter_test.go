package filter

import (
	"math"
	"testing"
)

func TestFirstOrderStep(t *testing.T) {
	f := NewFirstOrder(0, 1, 1)
	if got := f.Update(10); got != 5 {
		t.Fatalf("first update = %v", got)
	}
	if got := f.Update(10); got != 7.5 {
		t.Fatalf("second update = %v", got)
	}
}

func TestFirstOrderConverges(t *testing.T) {
	f := NewFirstOrder(0, 5, 0.05)
	for i := 0; i < 2000; i++ {
		f.Update(1000)
	}
	if math.Abs(f.X()-1000) > 1e-3 {
		t.Fatalf("did not converge: %v", f.X())
	}
	f.Reset(0)
	if f.X() != 0 {
		t.Fatalf("reset = %v", f.X())
	}
}

func TestSlowerTimeConstantLags(t *testing.T) {
	fast := NewFirstOrder(0, 5, 0.05)
	slow := NewFirstOrder(0, 30, 0.05)
	for i := 0; i < 20; i++ {
		fast.Update(100)
		slow.Update(100)
	}
	if slow.X() >= fast.X() {
		t.Fatalf("slow %v should trail fast %v", slow.X(), fast.X())
	}
}
