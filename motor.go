package fbc

import (
	"context"
	"math"

	"go.viam.com/rdk/components/motor"
)

// MotorPlant adapts a Viam motor with an encoder into a Plant.
// Commands are scaled against MaxOutput to the motor's [-1, 1] power
// range and position readings are scaled to encoder ticks, so the
// controller works in the original library's integer units.
type MotorPlant struct {
	Motor motor.Motor

	// MaxOutput is the command magnitude that maps to full motor power.
	MaxOutput int

	// TicksPerRotation converts the motor's position (rotations) into
	// the integer sensed value.
	TicksPerRotation float64
}

func (mp *MotorPlant) Move(ctx context.Context, output int) error {
	power := float64(output) / float64(mp.MaxOutput)
	if power > 1 {
		power = 1
	} else if power < -1 {
		power = -1
	}
	return mp.Motor.SetPower(ctx, power, nil)
}

func (mp *MotorPlant) Sense(ctx context.Context) (int, error) {
	pos, err := mp.Motor.Position(ctx, nil)
	if err != nil {
		return 0, err
	}
	return int(math.Round(pos * mp.TicksPerRotation)), nil
}

func (mp *MotorPlant) ResetSense(ctx context.Context) error {
	return mp.Motor.ResetZeroPosition(ctx, 0, nil)
}

var (
	_ Plant         = (*MotorPlant)(nil)
	_ SenseResetter = (*MotorPlant)(nil)
)
