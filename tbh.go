package fbc

import (
	"math"
	"time"
)

// TakeBackHalf is the take-back-half law commonly used for flywheel
// velocity control. The output integrates the error; each time the
// error crosses zero the output is pulled halfway back toward the value
// it held at the previous crossing, which damps the oscillation around
// the goal.
type TakeBackHalf struct {
	Gain float64

	output    float64
	tbh       float64
	prevError int
}

func (t *TakeBackHalf) Compute(goal, err int, dt time.Duration) int {
	t.output += t.Gain * float64(err)
	if sgn(err) != sgn(t.prevError) {
		t.output = 0.5 * (t.output + t.tbh)
		t.tbh = t.output
		t.prevError = err
	}
	return int(math.Round(t.output))
}

func (t *TakeBackHalf) ResetLaw() {
	t.output = 0
	t.tbh = 0
	t.prevError = 0
}
