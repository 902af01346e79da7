package fbc

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/go-nlopt/nlopt"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/stat"
)

// TuneResult holds the oscillation measured by RelayTune and the PID
// gains derived from it.
type TuneResult struct {
	UltimateGain float64
	Period       time.Duration

	Kp, Ki, Kd float64
}

// Law returns a PIDMod law with the tuned gains.
func (tr *TuneResult) Law() *PIDMod {
	return &PIDMod{
		ProportionalGain: tr.Kp,
		IntegralGain:     tr.Ki,
		DerivativeGain:   tr.Kd,
	}
}

// RelayTune measures the plant's ultimate gain and oscillation period
// by driving it with a relay: full +amplitude below the goal, full
// -amplitude above it. The relay induces a bounded oscillation whose
// size and period yield Ziegler-Nichols PID gains. The plant is
// commanded to zero output before returning. cycles is how many full
// oscillations to average over.
func RelayTune(ctx context.Context, plant Plant, goal, amplitude, cycles int, interval time.Duration) (*TuneResult, error) {
	if cycles < 2 {
		cycles = 2
	}

	// one extreme per half-cycle, plus one discarded startup transient
	want := 2*cycles + 2

	var extremes []float64
	var times []float64

	sensed, err := plant.Sense(ctx)
	if err != nil {
		return nil, err
	}
	above := sensed >= goal
	extreme := float64(sensed)
	start := time.Now()

	maxSamples := want * 1000
	for sample := 0; len(extremes) < want; sample++ {
		if sample >= maxSamples {
			return nil, errors.New("relay tune: plant did not oscillate")
		}

		sensed, err := plant.Sense(ctx)
		if err != nil {
			return nil, err
		}
		v := float64(sensed)

		nowAbove := sensed >= goal
		if nowAbove != above {
			// half-cycle finished, keep its extreme
			extremes = append(extremes, extreme)
			times = append(times, time.Since(start).Seconds())
			extreme = v
			above = nowAbove
		} else if (above && v > extreme) || (!above && v < extreme) {
			extreme = v
		}

		out := amplitude
		if nowAbove {
			out = -amplitude
		}
		if err := plant.Move(ctx, out); err != nil {
			return nil, err
		}
		if !utils.SelectContextOrWait(ctx, interval) {
			return nil, ctx.Err()
		}
	}

	if err := plant.Move(ctx, 0); err != nil {
		return nil, err
	}

	var amps, periods []float64
	for i := 1; i+1 < len(extremes); i++ {
		amps = append(amps, math.Abs(extremes[i]-extremes[i+1])/2)
	}
	for i := 1; i+2 < len(times); i++ {
		periods = append(periods, times[i+2]-times[i])
	}

	a := stat.Mean(amps, nil)
	tu := stat.Mean(periods, nil)
	if a <= 0 || tu <= 0 {
		return nil, errors.New("relay tune: degenerate oscillation")
	}

	// Åström-Hägglund describing function, then classic Ziegler-Nichols
	ku := 4 * float64(amplitude) / (math.Pi * a)
	kp := 0.6 * ku
	ti := 0.5 * tu
	td := 0.125 * tu

	return &TuneResult{
		UltimateGain: ku,
		Period:       time.Duration(tu * float64(time.Second)),
		Kp:           kp,
		Ki:           kp / ti,
		Kd:           kp * td,
	}, nil
}

// StepResponseCost returns an objective scoring candidate PID gains by
// stepping a fresh plant toward goal and integrating time-weighted
// absolute error. newPlant must return an independent plant each call;
// a simulation, not real hardware, since the optimizer evaluates the
// objective many times.
func StepResponseCost(newPlant func() Plant, goal, steps int, dt time.Duration) func(PIDMod) float64 {
	return func(gains PIDMod) float64 {
		ctx := context.Background()
		law := PIDMod{
			ProportionalGain: gains.ProportionalGain,
			IntegralGain:     gains.IntegralGain,
			DerivativeGain:   gains.DerivativeGain,
			FeedforwardGain:  gains.FeedforwardGain,
		}
		plant := newPlant()

		cost := 0.0
		for i := 0; i < steps; i++ {
			sensed, err := plant.Sense(ctx)
			if err != nil {
				return math.Inf(1)
			}
			e := goal - sensed
			if err := plant.Move(ctx, law.Compute(goal, e, dt)); err != nil {
				return math.Inf(1)
			}
			cost += float64(i+1) * math.Abs(float64(e))
		}
		return cost
	}
}

// OptimizeGains searches for the [kP, kI, kD] triple minimizing cost
// with the derivative-free Sbplx optimizer, starting from initial and
// constrained to the lower/upper bounds. Feedforward gain is carried
// through untouched.
func OptimizeGains(initial PIDMod, lower, upper [3]float64, cost func(PIDMod) float64) (PIDMod, error) {
	opt, err := nlopt.NewNLopt(nlopt.LN_SBPLX, 3)
	if err != nil {
		return initial, err
	}
	defer opt.Destroy()

	if err := opt.SetLowerBounds(lower[:]); err != nil {
		return initial, err
	}
	if err := opt.SetUpperBounds(upper[:]); err != nil {
		return initial, err
	}
	if err := opt.SetXtolRel(1e-4); err != nil {
		return initial, err
	}
	if err := opt.SetMaxEval(500); err != nil {
		return initial, err
	}

	err = opt.SetMinObjective(func(x, gradient []float64) float64 {
		g := initial
		g.ProportionalGain, g.IntegralGain, g.DerivativeGain = x[0], x[1], x[2]
		return cost(g)
	})
	if err != nil {
		return initial, err
	}

	x, _, err := opt.Optimize([]float64{
		initial.ProportionalGain, initial.IntegralGain, initial.DerivativeGain,
	})
	if err != nil {
		return initial, err
	}

	out := initial
	out.ProportionalGain, out.IntegralGain, out.DerivativeGain = x[0], x[1], x[2]
	return out, nil
}
