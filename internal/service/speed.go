package service

import "fmt"

const (
	MinSpeedControl     = 50
	MaxSpeedControl     = 200
	DefaultSpeedControl = 100
)

// SpeedFromControl maps the speed control (50..200) to a multiplier; 100 is 1.0.
func SpeedFromControl(units int) (float64, error) {
	if units < MinSpeedControl || units > MaxSpeedControl {
		return 0, fmt.Errorf("%w: speed %d out of range %d..%d", ErrInvalidRequest, units, MinSpeedControl, MaxSpeedControl)
	}
	return float64(units) / 100, nil
}
