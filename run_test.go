package fbc

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"
)

// intPlant is a pure integrator: each command is added to the position.
type intPlant struct {
	mu       sync.Mutex
	pos      int
	moves    int
	lastMove int
}

func (p *intPlant) Move(ctx context.Context, output int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos += output
	p.moves++
	p.lastMove = output
	return nil
}

func (p *intPlant) Sense(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos, nil
}

func (p *intPlant) moveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moves
}

// bouncePlant never converges and never looks stuck: the position jumps
// between 0 and 200 on every command.
type bouncePlant struct {
	pos int
}

func (p *bouncePlant) Move(ctx context.Context, output int) error {
	if p.pos == 0 {
		p.pos = 200
	} else {
		p.pos = 0
	}
	return nil
}

func (p *bouncePlant) Sense(ctx context.Context) (int, error) {
	return p.pos, nil
}

func TestRunToCompletionConverges(t *testing.T) {
	ctx := context.Background()

	plant := &intPlant{}
	c, err := New(ctx, plant, pLaw(), Config{
		NegDeadband: -1,
		PosDeadband: 1,
		Tolerance:   5,
		Confidence:  2,
		Interval:    time.Millisecond,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.SetGoal(100), test.ShouldBeNil)

	res, err := c.RunToCompletion(ctx, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldEqual, Confident)
	test.That(t, plant.pos, test.ShouldEqual, 100)
}

// delayedPlant bounces for the first jumpAfter commands, then lands on
// target and stays there.
type delayedPlant struct {
	bounce    bouncePlant
	target    int
	jumpAfter int
	steps     int
	pos       int
}

func (p *delayedPlant) Move(ctx context.Context, output int) error {
	p.steps++
	if p.steps >= p.jumpAfter {
		p.pos = p.target
		return nil
	}
	if err := p.bounce.Move(ctx, output); err != nil {
		return err
	}
	p.pos = p.bounce.pos
	return nil
}

func (p *delayedPlant) Sense(ctx context.Context) (int, error) {
	return p.pos, nil
}

func TestRunToCompletionZeroTimeoutNeverExpires(t *testing.T) {
	ctx := context.Background()

	plant := &delayedPlant{target: 100, jumpAfter: 30}
	c, err := New(ctx, plant, pLaw(), Config{
		Tolerance:  5,
		Confidence: 2,
		Interval:   time.Millisecond,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.SetGoal(100), test.ShouldBeNil)

	res, err := c.RunToCompletion(ctx, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldEqual, Confident)
	test.That(t, plant.steps, test.ShouldBeGreaterThanOrEqualTo, 30)
}

func TestRunToCompletionTimeout(t *testing.T) {
	ctx := context.Background()

	plant := &bouncePlant{}
	c, err := New(ctx, plant, pLaw(), Config{
		Tolerance:  5,
		Confidence: 2,
		Interval:   time.Millisecond,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.SetGoal(100), test.ShouldBeNil)

	timeout := time.Millisecond * 30
	start := time.Now()
	res, err := c.RunToCompletion(ctx, timeout)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldEqual, NotConfident)
	test.That(t, time.Since(start), test.ShouldBeGreaterThanOrEqualTo, timeout)
}

func TestRunToCompletionStall(t *testing.T) {
	ctx := context.Background()

	// frozen plant, output well off the dead band: the run must end in
	// a stall, not spin forever
	plant := &fakePlant{}
	c, err := New(ctx, plant, constLaw(20), Config{
		NegDeadband: -5,
		PosDeadband: 5,
		Tolerance:   8,
		Confidence:  2,
		Interval:    time.Millisecond,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.SetGoal(100), test.ShouldBeNil)

	res, err := c.RunToCompletion(ctx, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldEqual, Stalled)
}

func TestRunToCompletionCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	plant := &bouncePlant{}
	c, err := New(ctx, plant, pLaw(), Config{
		Tolerance:  5,
		Confidence: 2,
		Interval:   time.Millisecond,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.SetGoal(100), test.ShouldBeNil)

	go func() {
		time.Sleep(time.Millisecond * 10)
		cancel()
	}()

	_, err = c.RunToCompletion(ctx, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBackground(t *testing.T) {
	ctx := context.Background()

	plant := &intPlant{}
	c, err := New(ctx, plant, pLaw(), Config{
		Tolerance:  5,
		Confidence: 2,
		Interval:   time.Millisecond,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.SetGoal(100), test.ShouldBeNil)

	test.That(t, c.Start(), test.ShouldBeNil)
	test.That(t, c.Start(), test.ShouldBeNil) // idempotent

	deadline := time.Now().Add(time.Second * 2)
	for plant.moveCount() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond * 2)
	}
	test.That(t, plant.moveCount(), test.ShouldBeGreaterThanOrEqualTo, 5)

	test.That(t, c.Close(ctx), test.ShouldBeNil)

	plant.mu.Lock()
	test.That(t, plant.lastMove, test.ShouldEqual, 0)
	plant.mu.Unlock()

	// the loop must be fully stopped
	stopped := plant.moveCount()
	time.Sleep(time.Millisecond * 20)
	test.That(t, plant.moveCount(), test.ShouldEqual, stopped)
}

func TestBackgroundPicksUpNewGoal(t *testing.T) {
	ctx := context.Background()

	plant := &intPlant{}
	c, err := New(ctx, plant, pLaw(), Config{
		Tolerance:  5,
		Confidence: 2,
		Interval:   time.Millisecond,
	})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, c.SetGoal(100), test.ShouldBeNil)
	test.That(t, c.Start(), test.ShouldBeNil)
	defer func() {
		test.That(t, c.Close(ctx), test.ShouldBeNil)
	}()

	waitForPos := func(want int) {
		deadline := time.Now().Add(time.Second * 2)
		for time.Now().Before(deadline) {
			plant.mu.Lock()
			pos := plant.pos
			plant.mu.Unlock()
			if pos == want {
				return
			}
			time.Sleep(time.Millisecond * 2)
		}
	}

	waitForPos(100)
	plant.mu.Lock()
	test.That(t, plant.pos, test.ShouldEqual, 100)
	plant.mu.Unlock()

	// the loop keeps running after convergence and tracks a new goal
	test.That(t, c.SetGoal(-40), test.ShouldBeNil)
	waitForPos(-40)
	plant.mu.Lock()
	test.That(t, plant.pos, test.ShouldEqual, -40)
	plant.mu.Unlock()
}
