package kart

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/kartsync/kartsync/internal/collision"
	"github.com/kartsync/kartsync/internal/physics"
	"github.com/kartsync/kartsync/pkg/core"
)

// Movement applies one move to a vehicle state: integrate velocity, turn
// the pose, then sweep the displacement through the world.
type Movement struct {
	model     physics.Model
	world     collision.World
	onBlocked func()
}

// NewMovement returns a Movement over world. A nil world is treated as open.
func NewMovement(model physics.Model, world collision.World) *Movement {
	if world == nil {
		world = collision.Open{}
	}
	return &Movement{model: model, world: world}
}

// Params returns the tuning used by the underlying model.
func (m *Movement) Params() core.VehicleParams {
	return m.model.Params()
}

// OnBlocked registers fn to run whenever a sweep ends in a blocking hit.
func (m *Movement) OnBlocked(fn func()) {
	m.onBlocked = fn
}

// SimulateMove returns s advanced by move. On error s is returned unchanged.
func (m *Movement) SimulateMove(s core.VehicleState, move core.Move) (core.VehicleState, error) {
	res, err := m.model.Integrate(s.Velocity, physics.FrameOf(s.Pose), move)
	if err != nil {
		return s, err
	}

	s.Velocity = res.Velocity
	s.Pose.Orientation = res.Rotation.Mul(s.Pose.Orientation).Normalize()

	hit := m.world.Sweep(s.Pose.Position, res.Displacement)
	s.Pose.Position = hit.Position
	if hit.Blocked {
		s.Velocity = mgl64.Vec3{}
		if m.onBlocked != nil {
			m.onBlocked()
		}
	}

	s.Throttle = move.Throttle
	s.Steering = move.Steering
	return s, nil
}
