// Package physics integrates the kart movement model: driving force, air
// drag and rolling resistance, plus steering as a rotation about the up axis
// bounded by the minimum turning radius.
//
// Integration is a pure function of its inputs: the same move on the same
// velocity and frame yields the same result on every host.
package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kartsync/kartsync/pkg/core"
)

// ErrInvalidDeltaTime is returned for moves whose DeltaTime is not a positive finite number.
var ErrInvalidDeltaTime = errors.New("delta time must be positive")

// Frame is the orientation basis the forces are resolved against.
type Frame struct {
	Forward mgl64.Vec3
	Up      mgl64.Vec3
}

// FrameOf returns the basis of a pose.
func FrameOf(p core.Pose) Frame {
	return Frame{Forward: p.Forward(), Up: p.Up()}
}

// Result is the outcome of integrating one move.
type Result struct {
	Velocity     mgl64.Vec3 // after steering
	Rotation     mgl64.Quat // world-space delta to apply to the orientation
	Displacement mgl64.Vec3 // scaled to world units
}

// Model integrates moves with fixed tuning.
type Model struct {
	params core.VehicleParams
}

// New validates p and returns a model using it.
func New(p core.VehicleParams) (Model, error) {
	if err := Validate(p); err != nil {
		return Model{}, err
	}
	return Model{params: p}, nil
}

// Params returns the tuning the model was built with.
func (m Model) Params() core.VehicleParams {
	return m.params
}

// Integrate advances velocity by one move. It does not touch the pose;
// callers apply Rotation and sweep Displacement against their collision world.
func (m Model) Integrate(velocity mgl64.Vec3, frame Frame, move core.Move) (Result, error) {
	dt := move.DeltaTime
	if !(dt > 0) || math.IsInf(dt, 0) {
		return Result{Velocity: velocity, Rotation: mgl64.QuatIdent()},
			fmt.Errorf("%w: got %v", ErrInvalidDeltaTime, dt)
	}
	p := m.params

	force := frame.Forward.Mul(p.MaxDrivingForce * move.Throttle)
	force = force.Add(m.AirResistance(velocity))
	force = force.Add(m.RollingResistance(velocity))

	accel := force.Mul(1 / p.Mass)
	v := velocity.Add(accel.Mul(dt))

	angle := frame.Forward.Dot(v) * dt / p.MinTurningRadius * move.Steering
	rotation := mgl64.QuatRotate(angle, frame.Up)
	v = rotation.Rotate(v)

	return Result{
		Velocity:     v,
		Rotation:     rotation,
		Displacement: v.Mul(dt * p.DistanceScale),
	}, nil
}

// AirResistance opposes velocity with magnitude speed² × drag coefficient.
func (m Model) AirResistance(velocity mgl64.Vec3) mgl64.Vec3 {
	return SafeNormalize(velocity).Mul(-velocity.LenSqr() * m.params.DragCoefficient)
}

// RollingResistance opposes velocity with constant magnitude
// coefficient × normal force. It is zero at rest.
func (m Model) RollingResistance(velocity mgl64.Vec3) mgl64.Vec3 {
	normal := m.params.Mass * m.params.Gravity
	return SafeNormalize(velocity).Mul(-m.params.RollingResistanceCoefficient * normal)
}

// SafeNormalize returns the unit vector of v, or the zero vector when v has
// no usable direction.
func SafeNormalize(v mgl64.Vec3) mgl64.Vec3 {
	l := v.Len()
	if l < 1e-12 || math.IsNaN(l) || math.IsInf(l, 0) {
		return mgl64.Vec3{}
	}
	return v.Mul(1 / l)
}
