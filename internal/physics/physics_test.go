package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kartsync/kartsync/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var straightAhead = Frame{Forward: mgl64.Vec3{1, 0, 0}, Up: mgl64.Vec3{0, 0, 1}}

func newTestModel(t *testing.T) Model {
	t.Helper()
	m, err := New(DefaultParams())
	require.NoError(t, err)
	return m
}

func assertVec(t *testing.T, want, got mgl64.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "component %d of %v", i, got)
	}
}

func TestSafeNormalize_ZeroVector(t *testing.T) {
	got := SafeNormalize(mgl64.Vec3{})
	assert.Equal(t, mgl64.Vec3{}, got)
	for _, c := range got {
		assert.False(t, math.IsNaN(c))
	}
}

func TestSafeNormalize_UnitLength(t *testing.T) {
	got := SafeNormalize(mgl64.Vec3{3, 4, 0})
	assertVec(t, mgl64.Vec3{0.6, 0.8, 0}, got)
	assert.InDelta(t, 1.0, got.Len(), 1e-12)
}

func TestIntegrate_FullThrottleFromRest(t *testing.T) {
	m := newTestModel(t)

	res, err := m.Integrate(mgl64.Vec3{}, straightAhead, core.Move{Throttle: 1, DeltaTime: 1, Timestamp: 1})
	require.NoError(t, err)

	// F = 10000 N on 1000 kg gives 10 m/s² for one second.
	assertVec(t, mgl64.Vec3{10, 0, 0}, res.Velocity)
	assertVec(t, mgl64.Vec3{1000, 0, 0}, res.Displacement)
	assert.Equal(t, mgl64.QuatIdent(), res.Rotation)
}

func TestIntegrate_AtRestWithoutInput(t *testing.T) {
	m := newTestModel(t)

	res, err := m.Integrate(mgl64.Vec3{}, straightAhead, core.Move{DeltaTime: 0.016})
	require.NoError(t, err)
	assert.Equal(t, mgl64.Vec3{}, res.Velocity)
	assert.Equal(t, mgl64.Vec3{}, res.Displacement)
}

func TestIntegrate_DragAndRollingResistance(t *testing.T) {
	m := newTestModel(t)

	res, err := m.Integrate(mgl64.Vec3{20, 0, 0}, straightAhead, core.Move{DeltaTime: 0.1})
	require.NoError(t, err)

	// air = 20² × 16 = 6400 N, rolling = 0.015 × 1000 × 9.81 = 147.15 N
	want := 20 - (6400+147.15)/1000*0.1
	assertVec(t, mgl64.Vec3{want, 0, 0}, res.Velocity)
}

func TestIntegrate_SteeringRotatesVelocity(t *testing.T) {
	m := newTestModel(t)

	res, err := m.Integrate(mgl64.Vec3{}, straightAhead, core.Move{Throttle: 1, Steering: 1, DeltaTime: 1})
	require.NoError(t, err)

	// 10 m travelled on a 10 m radius at full lock is one radian.
	assert.InDelta(t, 10.0, res.Velocity.Len(), 1e-9)
	assert.InDelta(t, 1.0, math.Atan2(res.Velocity.Y(), res.Velocity.X()), 1e-9)

	turned := res.Rotation.Rotate(mgl64.Vec3{1, 0, 0})
	assert.InDelta(t, math.Cos(1), turned.X(), 1e-9)
	assert.InDelta(t, math.Sin(1), turned.Y(), 1e-9)
}

func TestIntegrate_ReverseSteeringTurnsOppositeWay(t *testing.T) {
	m := newTestModel(t)

	fwd, err := m.Integrate(mgl64.Vec3{5, 0, 0}, straightAhead, core.Move{Throttle: 1, Steering: 0.5, DeltaTime: 0.1})
	require.NoError(t, err)
	back, err := m.Integrate(mgl64.Vec3{-5, 0, 0}, straightAhead, core.Move{Throttle: -1, Steering: 0.5, DeltaTime: 0.1})
	require.NoError(t, err)

	assert.Greater(t, fwd.Rotation.Rotate(mgl64.Vec3{1, 0, 0}).Y(), 0.0)
	assert.Less(t, back.Rotation.Rotate(mgl64.Vec3{1, 0, 0}).Y(), 0.0)
}

func TestIntegrate_InvalidDeltaTime(t *testing.T) {
	m := newTestModel(t)
	v := mgl64.Vec3{1, 2, 3}

	for _, dt := range []float64{0, -0.5, math.NaN(), math.Inf(1)} {
		res, err := m.Integrate(v, straightAhead, core.Move{Throttle: 1, DeltaTime: dt})
		require.ErrorIs(t, err, ErrInvalidDeltaTime, "dt=%v", dt)
		assert.Equal(t, v, res.Velocity)
		assert.Equal(t, mgl64.Vec3{}, res.Displacement)
	}
}

func TestIntegrate_Deterministic(t *testing.T) {
	m := newTestModel(t)
	frame := FrameOf(core.NewPose(mgl64.Vec3{}, 0.3))
	move := core.Move{Throttle: 0.7, Steering: -0.4, DeltaTime: 1.0 / 60}

	a, err := m.Integrate(mgl64.Vec3{4, -1, 0}, frame, move)
	require.NoError(t, err)
	b, err := m.Integrate(mgl64.Vec3{4, -1, 0}, frame, move)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *core.VehicleParams)
		ok     bool
	}{
		{"defaults", func(p *core.VehicleParams) {}, true},
		{"zero mass", func(p *core.VehicleParams) { p.Mass = 0 }, false},
		{"negative radius", func(p *core.VehicleParams) { p.MinTurningRadius = -1 }, false},
		{"zero scale", func(p *core.VehicleParams) { p.DistanceScale = 0 }, false},
		{"negative drag", func(p *core.VehicleParams) { p.DragCoefficient = -0.1 }, false},
		{"nan force", func(p *core.VehicleParams) { p.MaxDrivingForce = math.NaN() }, false},
		{"frictionless", func(p *core.VehicleParams) { p.DragCoefficient, p.RollingResistanceCoefficient = 0, 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := Validate(p)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidParams)
			}
		})
	}
}

func TestNew_RejectsInvalidParams(t *testing.T) {
	p := DefaultParams()
	p.Mass = 0
	_, err := New(p)
	assert.ErrorIs(t, err, ErrInvalidParams)
}
