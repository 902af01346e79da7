package fbc

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
)

// Axes gangs up to three controllers driving orthogonal axes toward a
// vector goal. Unused axes may be left nil. Each controller keeps its
// own plant, law, and stall history; Axes only fans the operations out.
type Axes struct {
	X, Y, Z *Controller
}

func (a *Axes) controllers() []*Controller {
	var out []*Controller
	for _, c := range []*Controller{a.X, a.Y, a.Z} {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// SetGoal sets each axis goal to the rounded vector component.
func (a *Axes) SetGoal(goal r3.Vector) error {
	var err error
	if a.X != nil {
		err = multierr.Combine(err, a.X.SetGoal(int(math.Round(goal.X))))
	}
	if a.Y != nil {
		err = multierr.Combine(err, a.Y.SetGoal(int(math.Round(goal.Y))))
	}
	if a.Z != nil {
		err = multierr.Combine(err, a.Z.SetGoal(int(math.Round(goal.Z))))
	}
	return err
}

// Reset resets every axis.
func (a *Axes) Reset(ctx context.Context) error {
	var err error
	for _, c := range a.controllers() {
		err = multierr.Combine(err, c.Reset(ctx))
	}
	return err
}

// RunToCompletion drives all axes concurrently and waits for every one
// to finish. The combined result is Stalled if any axis stalled,
// Confident only if every axis converged, and NotConfident otherwise
// (some axis timed out).
func (a *Axes) RunToCompletion(ctx context.Context, timeout time.Duration) (Result, error) {
	ctrls := a.controllers()
	results := make([]Result, len(ctrls))
	errs := make([]error, len(ctrls))

	var wg sync.WaitGroup
	for i, c := range ctrls {
		wg.Add(1)
		go func(i int, c *Controller) {
			defer wg.Done()
			results[i], errs[i] = c.RunToCompletion(ctx, timeout)
		}(i, c)
	}
	wg.Wait()

	res := Confident
	for _, r := range results {
		if r == Stalled {
			res = Stalled
			break
		}
		if r == NotConfident {
			res = NotConfident
		}
	}
	return res, multierr.Combine(errs...)
}

// Close closes every axis.
func (a *Axes) Close(ctx context.Context) error {
	var err error
	for _, c := range a.controllers() {
		err = multierr.Combine(err, c.Close(ctx))
	}
	return err
}
