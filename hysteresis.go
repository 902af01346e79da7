package fbc

import "time"

// Hysteresis is a bang-band law: full output in either direction while
// the error magnitude exceeds Band, held until the error actually
// crosses zero so the output does not chatter at the band edge.
type Hysteresis struct {
	// Band is the error magnitude that must be exceeded before the law
	// starts (or reverses) the drive.
	Band int
	// Output is the command magnitude used outside the band.
	Output int

	last int
}

func (h *Hysteresis) Compute(goal, err int, dt time.Duration) int {
	switch {
	case err > h.Band:
		h.last = h.Output
	case err < -h.Band:
		h.last = -h.Output
	case (h.last > 0 && err <= 0) || (h.last < 0 && err >= 0):
		h.last = 0
	}
	return h.last
}

func (h *Hysteresis) ResetLaw() {
	h.last = 0
}
