package kart

import (
	"fmt"
	"math"

	"github.com/kartsync/kartsync/internal/physics"
	"github.com/kartsync/kartsync/internal/queue"
	"github.com/kartsync/kartsync/pkg/core"
)

// MoveSender forwards captured moves to the authority. Delivery is
// fire-and-forget.
type MoveSender interface {
	SendMove(core.Move)
}

// MoveSenderFunc adapts a function to MoveSender.
type MoveSenderFunc func(core.Move)

// SendMove calls f(m).
func (f MoveSenderFunc) SendMove(m core.Move) { f(m) }

// Clock is a vehicle's running simulation time in seconds.
type Clock struct {
	now float64
}

// Now returns the current simulation time.
func (c *Clock) Now() float64 {
	return c.now
}

// Capture advances the clock by dt and stamps a move with the new time.
func (c *Clock) Capture(dt, throttle, steering float64) core.Move {
	c.now += dt
	return core.Move{
		Throttle:  throttle,
		Steering:  steering,
		DeltaTime: dt,
		Timestamp: c.now,
	}
}

// Predictor simulates the locally controlled vehicle ahead of the authority
// and keeps every move the authority has not yet acknowledged.
type Predictor struct {
	movement *Movement
	state    *core.VehicleState
	clock    *Clock
	unacked  *queue.Queue[core.Move]
	sender   MoveSender
}

// NewPredictor returns a predictor advancing state. sender may be nil.
func NewPredictor(movement *Movement, state *core.VehicleState, clock *Clock, unacked *queue.Queue[core.Move], sender MoveSender) *Predictor {
	return &Predictor{
		movement: movement,
		state:    state,
		clock:    clock,
		unacked:  unacked,
		sender:   sender,
	}
}

// OnTick captures a move from the live axis values, simulates it at once,
// queues it as unacknowledged and forwards it to the authority.
// Axis values are clamped to [-1, 1].
func (p *Predictor) OnTick(dt, throttle, steering float64) (core.Move, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return core.Move{}, fmt.Errorf("%w: got %v", physics.ErrInvalidDeltaTime, dt)
	}

	move := p.clock.Capture(dt, ClampAxis(throttle), ClampAxis(steering))
	next, err := p.movement.SimulateMove(*p.state, move)
	if err != nil {
		return move, err
	}
	*p.state = next

	p.unacked.Push(move)
	if p.sender != nil {
		p.sender.SendMove(move)
	}
	return move, nil
}

// ClampAxis limits an input axis to [-1, 1]. NaN reads as centred.
func ClampAxis(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
