// Package filter implements the low-pass filter used to smooth camera exposure.
package filter

// FirstOrder is a discrete first-order low-pass filter with time constant RC
// sampled every DT seconds.
type FirstOrder struct {
	x     float64
	alpha float64
}

// NewFirstOrder returns a filter starting at x0.
func NewFirstOrder(x0, rc, dt float64) *FirstOrder {
	f := &FirstOrder{x: x0}
	f.UpdateAlpha(rc, dt)
	return f
}

// UpdateAlpha changes the time constant.
func (f *FirstOrder) UpdateAlpha(rc, dt float64) {
	f.alpha = dt / (rc + dt)
}

// Update feeds one sample and returns the new output.
func (f *FirstOrder) Update(x float64) float64 {
	f.x = (1-f.alpha)*f.x + f.alpha*x
	return f.x
}

// Reset sets the output to x.
func (f *FirstOrder) Reset(x float64) { f.x = x }

// X is the current output.
func (f *FirstOrder) X() float64 { return f.x }
