package fbc

import (
	"math"
	"time"
)

// Clegg is a Clegg integrator law: a pure integrator whose accumulator
// is cleared whenever the error crosses zero, trading the linear
// integrator's phase lag for a reset nonlinearity. A goal change kicks
// the output to InitialOutput (signed by the goal) and integrates from
// there.
type Clegg struct {
	Gain          float64
	InitialOutput int

	integral  int64
	prevGoal  int
	prevError int
}

func (cl *Clegg) Compute(goal, err int, dt time.Duration) int {
	cl.integral += int64(err)

	var out int
	switch {
	case goal != cl.prevGoal:
		out = sgn(goal) * cl.InitialOutput
		cl.integral = 0
	case sgn(err) != sgn(cl.prevError):
		out = 0
		cl.integral = 0
	default:
		out = int(math.Round(cl.Gain * float64(cl.integral)))
	}

	cl.prevGoal = goal
	cl.prevError = err
	return out
}

func (cl *Clegg) ResetLaw() {
	cl.integral = 0
	cl.prevGoal = 0
	cl.prevError = 0
}
