package fbc

import (
	"context"
	"errors"
	"time"

	"go.viam.com/utils"
)

// RunContinuous performs one full control step: generate an output,
// command the actuator with it, and report the resulting assessment.
// This is the only place per-cycle actuation happens; the blocking and
// background drivers are both built on it.
func (c *Controller) RunContinuous(ctx context.Context) (Result, error) {
	out, err := c.GenerateOutput(ctx)
	if err != nil {
		return NotConfident, err
	}
	if err := c.plant.Move(ctx, out); err != nil {
		return NotConfident, err
	}
	return c.IsConfident(ctx)
}

// RunToCompletion steps the controller on its interval until it reports
// Confident or Stalled, or until timeout elapses. A timeout of zero
// never expires. A NotConfident result with a nil error means the
// timeout elapsed first. The cadence is drift-corrected: each wake time
// is computed from the previous one, not from when the step finished.
func (c *Controller) RunToCompletion(ctx context.Context, timeout time.Duration) (Result, error) {
	start := time.Now()
	next := start
	for {
		res, err := c.RunContinuous(ctx)
		if err != nil {
			return NotConfident, err
		}
		if res != NotConfident {
			return res, nil
		}
		if timeout != 0 && time.Since(start) >= timeout {
			return NotConfident, nil
		}
		next = next.Add(c.interval)
		if !utils.SelectContextOrWait(ctx, time.Until(next)) {
			return NotConfident, ctx.Err()
		}
	}
}

// Start spawns a background goroutine stepping the controller on its
// interval forever, regardless of the per-step result. It keeps running
// after convergence so new goals set with SetGoal are picked up on the
// next tick. Calling Start on a running controller is a no-op. Stop it
// with Close.
func (c *Controller) Start() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.running {
		return nil
	}

	var ctx context.Context
	ctx, c.cancel = context.WithCancel(context.Background())

	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()

		for {
			if !utils.SelectContextOrWait(ctx, c.interval) {
				return
			}
			if _, err := c.RunContinuous(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				c.logger.Warn(err)
			}
		}
	}()
	c.running = true
	return nil
}

// Close stops the background loop, waits for it to exit, and commands
// the actuator to zero output.
func (c *Controller) Close(ctx context.Context) error {
	c.lifecycleMu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.running = false
	c.lifecycleMu.Unlock()
	c.waitGroup.Wait()
	return c.plant.Move(ctx, 0)
}
