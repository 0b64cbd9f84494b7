package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/kartsync/kartsync/pkg/core"
)

// ErrInvalidParams is returned when vehicle tuning cannot produce a valid simulation.
var ErrInvalidParams = errors.New("invalid vehicle params")

// DefaultParams returns the stock kart tuning.
func DefaultParams() core.VehicleParams {
	return core.VehicleParams{
		Mass:                         1000,
		MaxDrivingForce:              10000,
		MinTurningRadius:             10,
		DragCoefficient:              16,
		RollingResistanceCoefficient: 0.015,
		Gravity:                      9.81,
		DistanceScale:                100,
	}
}

// Validate checks that p can be integrated without dividing by zero or
// producing non-finite values.
func Validate(p core.VehicleParams) error {
	checks := []struct {
		name     string
		value    float64
		positive bool
	}{
		{"mass", p.Mass, true},
		{"minTurningRadius", p.MinTurningRadius, true},
		{"distanceScale", p.DistanceScale, true},
		{"maxDrivingForce", p.MaxDrivingForce, false},
		{"dragCoefficient", p.DragCoefficient, false},
		{"rollingResistanceCoefficient", p.RollingResistanceCoefficient, false},
		{"gravity", p.Gravity, false},
	}

	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidParams, c.name)
		}
		if c.positive && c.value <= 0 {
			return fmt.Errorf("%w: %s must be > 0, got %v", ErrInvalidParams, c.name, c.value)
		}
		if !c.positive && c.value < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %v", ErrInvalidParams, c.name, c.value)
		}
	}
	return nil
}
