// pkg/core/vehicle.go
package core

import "github.com/go-gl/mathgl/mgl64"

// Move is one tick of captured control input. Moves are values and are
// never mutated after capture.
type Move struct {
	Throttle  float64 `json:"throttle" msgpack:"throttle"`   // [-1, 1]
	Steering  float64 `json:"steering" msgpack:"steering"`   // [-1, 1]
	DeltaTime float64 `json:"deltaTime" msgpack:"deltaTime"` // seconds, > 0
	Timestamp float64 `json:"timestamp" msgpack:"timestamp"` // creator's simulation clock, seconds
}

// Pose is a vehicle's position and orientation in world space.
// Local +X is forward and local +Z is up.
type Pose struct {
	Position    mgl64.Vec3 `json:"position" msgpack:"position"`
	Orientation mgl64.Quat `json:"orientation" msgpack:"orientation"`
}

// NewPose returns a pose at position with the given heading in radians
// about the world up axis.
func NewPose(position mgl64.Vec3, heading float64) Pose {
	return Pose{
		Position:    position,
		Orientation: mgl64.QuatRotate(heading, mgl64.Vec3{0, 0, 1}),
	}
}

// Forward returns the unit forward vector in world space.
func (p Pose) Forward() mgl64.Vec3 {
	return p.Orientation.Rotate(mgl64.Vec3{1, 0, 0})
}

// Up returns the unit up vector in world space.
func (p Pose) Up() mgl64.Vec3 {
	return p.Orientation.Rotate(mgl64.Vec3{0, 0, 1})
}

// VehicleState is the locally simulated state of one vehicle.
// Velocity is the only integrated quantity carried across ticks.
type VehicleState struct {
	Pose     Pose       `json:"pose" msgpack:"pose"`
	Velocity mgl64.Vec3 `json:"velocity" msgpack:"velocity"` // world units per second, unscaled
	Throttle float64    `json:"throttle" msgpack:"throttle"`
	Steering float64    `json:"steering" msgpack:"steering"`
}

// AuthoritativeState is the server's word on a vehicle, produced once per
// accepted move. LastMove.Timestamp doubles as the acknowledgment for every
// move the owner created at or before it.
type AuthoritativeState struct {
	Pose     Pose       `json:"pose" msgpack:"pose"`
	Velocity mgl64.Vec3 `json:"velocity" msgpack:"velocity"`
	LastMove Move       `json:"lastMove" msgpack:"lastMove"`
}

// VehicleParams are the tuning constants of the vehicle physics model.
type VehicleParams struct {
	Mass                         float64 `json:"mass" msgpack:"mass" mapstructure:"mass"`                                                                // kg
	MaxDrivingForce              float64 `json:"maxDrivingForce" msgpack:"maxDrivingForce" mapstructure:"maxDrivingForce"`                               // N at full throttle
	MinTurningRadius             float64 `json:"minTurningRadius" msgpack:"minTurningRadius" mapstructure:"minTurningRadius"`                            // m at full lock
	DragCoefficient              float64 `json:"dragCoefficient" msgpack:"dragCoefficient" mapstructure:"dragCoefficient"`                               // kg/m
	RollingResistanceCoefficient float64 `json:"rollingResistanceCoefficient" msgpack:"rollingResistanceCoefficient" mapstructure:"rollingResistanceCoefficient"` // dimensionless
	Gravity                      float64 `json:"gravity" msgpack:"gravity" mapstructure:"gravity"`                                                       // m/s^2
	DistanceScale                float64 `json:"distanceScale" msgpack:"distanceScale" mapstructure:"distanceScale"`                                     // world units per metre
}
