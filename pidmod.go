package fbc

import (
	"math"
	"time"
)

// PIDMod is a modified PID law. The integral term is halved whenever
// the error changes sign, which bleeds off windup without discarding
// the accumulated correction entirely, and FeedforwardGain adds a term
// proportional to the goal for velocity-control applications.
type PIDMod struct {
	// config
	ProportionalGain float64
	IntegralGain     float64
	DerivativeGain   float64
	FeedforwardGain  float64

	// state
	integral  float64
	prevError int
}

func (pid *PIDMod) Compute(goal, err int, dt time.Duration) int {
	if sgn(err) != sgn(pid.prevError) {
		pid.integral /= 2
	} else {
		pid.integral += float64(err)
	}

	var derivative float64
	if dt > 0 {
		derivative = float64(err-pid.prevError) / dt.Seconds()
	}
	pid.prevError = err

	out := pid.ProportionalGain*float64(err) +
		pid.IntegralGain*pid.integral +
		pid.DerivativeGain*derivative +
		pid.FeedforwardGain*float64(goal)
	return int(math.Round(out))
}

func (pid *PIDMod) ResetLaw() {
	pid.integral = 0
	pid.prevError = 0
}

func sgn(x int) int {
	if x > 0 {
		return 1
	}
	if x < 0 {
		return -1
	}
	return 0
}
