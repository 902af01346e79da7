// Package fbc implements a generic feedback controller for closed-loop
// actuator control. A Controller drives a Plant toward a goal using a
// pluggable control Law, tracks how confident it is that the actuator
// has converged, and detects when the actuator is mechanically stalled.
package fbc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/edaniels/golog"
)

// DefaultInterval is the control loop cadence used when Config.Interval
// is zero.
const DefaultInterval = time.Millisecond * 20

var errNilController = errors.New("nil controller")

// Result is the controller's assessment after a step.
type Result int

const (
	// NotConfident means the error has not stayed in tolerance long enough.
	NotConfident Result = iota
	// Confident means the error stayed in tolerance for the configured
	// number of consecutive steps.
	Confident
	// Stalled means the actuator is being commanded to move but the
	// sensed value is not changing. Stalled takes precedence over
	// Confident and is reported once per stall.
	Stalled
)

func (r Result) String() string {
	switch r {
	case Confident:
		return "confident"
	case Stalled:
		return "stalled"
	default:
		return "not confident"
	}
}

// Plant is the actuator/sensor pair under control.
//
// Sense may be called more than once per control step (once for the
// error computation and once for stall detection).
type Plant interface {
	Move(ctx context.Context, output int) error
	Sense(ctx context.Context) (int, error)
}

// SenseResetter is implemented by plants whose sensor accumulates state
// (encoders, integrating gyros). ResetSense is called from Reset.
type SenseResetter interface {
	ResetSense(ctx context.Context) error
}

// Law maps the current error to an actuator command. goal is the
// controller's current goal and dt the time since the previous step.
// Laws may keep internal state (integral terms etc.) across calls.
type Law interface {
	Compute(goal, err int, dt time.Duration) int
}

// LawResetter is implemented by laws with internal state that should be
// cleared when the controller is Reset.
type LawResetter interface {
	ResetLaw()
}

// StallDetector replaces the controller's built-in stall heuristic.
type StallDetector interface {
	StallDetect(ctx context.Context, c *Controller) (bool, error)
}

// Config holds the controller thresholds.
type Config struct {
	// NegDeadband and PosDeadband bound the output dead zone. Nonzero
	// outputs inside (NegDeadband, 0) or (0, PosDeadband) are clamped to
	// the nearest bound so the actuator is never commanded with a
	// sub-threshold output. Exactly zero passes through.
	NegDeadband int
	PosDeadband int

	// Tolerance is the error magnitude below which a step counts toward
	// convergence.
	Tolerance int

	// Confidence is how many consecutive in-tolerance steps are required
	// before the controller reports Confident.
	Confidence int

	// Interval is the loop cadence for RunToCompletion and Start.
	// Defaults to DefaultInterval.
	Interval time.Duration

	// Detector overrides the built-in stall heuristic.
	Detector StallDetector

	Logger golog.Logger
}

// Controller drives a single Plant toward a goal. A Controller must be
// stepped by one driver at a time; SetGoal and Reset are safe to call
// while a driver is running.
type Controller struct {
	plant Plant
	law   Law

	negDeadband int
	posDeadband int
	tolerance   int
	needed      int

	interval time.Duration
	detector StallDetector
	logger   golog.Logger

	mu         sync.Mutex
	goal       int
	confidence int
	lastOutput int
	lastRun    time.Time

	// stall history, scoped per controller
	prevSensed int
	stuckCount int

	lifecycleMu sync.Mutex
	running     bool
	cancel      context.CancelFunc
	waitGroup   sync.WaitGroup
}

// New wires a controller and resets it. plant and law are required;
// passing nil is a caller error.
func New(ctx context.Context, plant Plant, law Law, cfg Config) (*Controller, error) {
	c := &Controller{
		plant:       plant,
		law:         law,
		negDeadband: cfg.NegDeadband,
		posDeadband: cfg.PosDeadband,
		tolerance:   cfg.Tolerance,
		needed:      cfg.Confidence,
		interval:    cfg.Interval,
		detector:    cfg.Detector,
		logger:      cfg.Logger,
	}
	if c.interval == 0 {
		c.interval = DefaultInterval
	}
	if c.logger == nil {
		c.logger = golog.NewLogger("fbc")
	}
	return c, c.Reset(ctx)
}

// Reset clears the convergence and stall bookkeeping, invokes the
// plant's and law's optional reset hooks, and zeroes the goal. The last
// output and last-run timestamp are left alone.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.confidence = 0
	c.prevSensed = 0
	c.stuckCount = 0
	c.mu.Unlock()

	var err error
	if sr, ok := c.plant.(SenseResetter); ok {
		err = sr.ResetSense(ctx)
	}
	if lr, ok := c.law.(LawResetter); ok {
		lr.ResetLaw()
	}

	c.mu.Lock()
	c.goal = 0
	c.mu.Unlock()
	return err
}

// SetGoal updates the goal. Setting the same goal again is a no-op and
// does not touch the last-run timestamp. Changing the goal does not
// clear the confidence counter; the next steps re-accumulate it from
// the new error.
func (c *Controller) SetGoal(goal int) error {
	if c == nil {
		return errNilController
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.goal == goal {
		return nil
	}
	c.logger.Debugf("SetGoal %d (was %d)", goal, c.goal)
	c.goal = goal
	c.lastRun = time.Now()
	return nil
}

// Goal returns the current goal.
func (c *Controller) Goal() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.goal
}

// LastOutput returns the most recently generated actuator command.
func (c *Controller) LastOutput() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOutput
}

// Deadbands returns the negative and positive dead-band bounds.
func (c *Controller) Deadbands() (int, int) {
	return c.negDeadband, c.posDeadband
}

// Tolerance returns the acceptable error magnitude.
func (c *Controller) Tolerance() int {
	return c.tolerance
}

// Sense reads the plant's sensor.
func (c *Controller) Sense(ctx context.Context) (int, error) {
	return c.plant.Sense(ctx)
}

// GenerateOutput performs one control computation: read the sensor, run
// the law on the error, clamp the result out of the dead band, and
// update the confidence counter. It does not actuate.
func (c *Controller) GenerateOutput(ctx context.Context) (int, error) {
	sensed, err := c.plant.Sense(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	goal := c.goal
	dt := time.Since(c.lastRun)
	if c.lastRun.IsZero() {
		dt = c.interval
	}
	c.mu.Unlock()

	e := goal - sensed
	out := c.law.Compute(goal, e, dt)
	if out > 0 && out < c.posDeadband {
		out = c.posDeadband
	} else if out < 0 && out > c.negDeadband {
		out = c.negDeadband
	}

	c.mu.Lock()
	if abs(e) < c.tolerance {
		c.confidence++
	} else {
		c.confidence = 0
	}
	c.lastOutput = out
	c.lastRun = time.Now()
	c.mu.Unlock()

	return out, nil
}

// IsConfident reports the controller's current assessment. A detected
// stall takes precedence over a confident result.
func (c *Controller) IsConfident(ctx context.Context) (Result, error) {
	c.mu.Lock()
	res := NotConfident
	if c.confidence >= c.needed {
		res = Confident
	}
	c.mu.Unlock()

	var stalled bool
	var err error
	if c.detector != nil {
		stalled, err = c.detector.StallDetect(ctx, c)
	} else {
		stalled, err = c.stallDetect(ctx)
	}
	if err != nil {
		return NotConfident, err
	}
	if stalled {
		res = Stalled
	}
	return res, nil
}

// stallDetect is the built-in heuristic: the actuator is stalled when
// the sensed value has moved by less than max(1, tolerance>>3) for more
// than the confidence threshold's worth of consecutive cycles. An
// output sitting exactly on a dead-band bound is exempt, since minimal
// commanded motion is expected there. A detected stall clears the
// history, so it is reported once per stall.
func (c *Controller) stallDetect(ctx context.Context) (bool, error) {
	sensed, err := c.plant.Sense(ctx)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	minStuck := c.tolerance >> 3
	if minStuck < 1 {
		minStuck = 1
	}

	if c.lastOutput == c.negDeadband || c.lastOutput == c.posDeadband {
		c.stuckCount = 0
		return false, nil
	}

	if abs(sensed-c.prevSensed) < minStuck {
		c.stuckCount++
	} else {
		c.stuckCount = 0
	}
	c.prevSensed = sensed

	if c.stuckCount > c.needed {
		c.stuckCount = 0
		c.prevSensed = 0
		return true, nil
	}
	return false, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
