// fbc-sim runs a feedback controller against a simulated first-order
// plant and logs how it converges.
package main

import (
	"context"
	"time"

	"github.com/edaniels/golog"

	"github.com/erh/fbc"
)

// simPlant is a first-order lag: each command moves the position a
// quarter of the commanded amount.
type simPlant struct {
	pos int
}

func (p *simPlant) Move(ctx context.Context, output int) error {
	p.pos += output / 4
	return nil
}

func (p *simPlant) Sense(ctx context.Context) (int, error) {
	return p.pos, nil
}

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	ctx := context.Background()
	logger := golog.NewDevelopmentLogger("fbc-sim")

	plant := &simPlant{}

	c, err := fbc.New(ctx, plant, &fbc.PIDMod{ProportionalGain: 0.8, IntegralGain: 0.05}, fbc.Config{
		NegDeadband: -4,
		PosDeadband: 4,
		Tolerance:   5,
		Confidence:  3,
		Interval:    time.Millisecond * 10,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if err := c.SetGoal(1000); err != nil {
		return err
	}

	start := time.Now()
	res, err := c.RunToCompletion(ctx, time.Second*5)
	if err != nil {
		return err
	}

	logger.Infof("result: %s position: %d elapsed: %s", res, plant.pos, time.Since(start))
	return nil
}
