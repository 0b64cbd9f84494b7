package kart

import (
	"errors"
	"fmt"
	"math"

	"github.com/kartsync/kartsync/pkg/core"
)

// ErrInvalidMove is returned for moves the authority refuses to simulate.
// The sender is never told.
var ErrInvalidMove = errors.New("invalid move")

// ValidateMove checks the input magnitudes of m.
func ValidateMove(m core.Move) error {
	if !(math.Abs(m.Throttle) <= 1) {
		return fmt.Errorf("%w: throttle %v outside [-1, 1]", ErrInvalidMove, m.Throttle)
	}
	if !(math.Abs(m.Steering) <= 1) {
		return fmt.Errorf("%w: steering %v outside [-1, 1]", ErrInvalidMove, m.Steering)
	}
	return nil
}

// Authority runs received moves on the authoritative copy of a vehicle.
// It performs no ordering or duplicate checks; moves are simulated in the
// order they arrive.
type Authority struct {
	movement *Movement
	state    *core.VehicleState
	latest   core.AuthoritativeState
	dirty    bool
}

// NewAuthority returns an authority over state. The spawn state is pending
// replication.
func NewAuthority(movement *Movement, state *core.VehicleState) *Authority {
	return &Authority{
		movement: movement,
		state:    state,
		latest: core.AuthoritativeState{
			Pose:     state.Pose,
			Velocity: state.Velocity,
		},
		dirty: true,
	}
}

// OnMoveReceived validates and simulates m. A rejected move leaves all
// state untouched.
func (a *Authority) OnMoveReceived(m core.Move) error {
	if err := ValidateMove(m); err != nil {
		return err
	}

	next, err := a.movement.SimulateMove(*a.state, m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMove, err)
	}
	*a.state = next

	a.latest = core.AuthoritativeState{
		Pose:     next.Pose,
		Velocity: next.Velocity,
		LastMove: m,
	}
	a.dirty = true
	return nil
}

// State returns the latest authoritative state.
func (a *Authority) State() core.AuthoritativeState {
	return a.latest
}

// TakeReplication returns the latest state if it changed since the last
// call. Intermediate states are never sent.
func (a *Authority) TakeReplication() (core.AuthoritativeState, bool) {
	if !a.dirty {
		return core.AuthoritativeState{}, false
	}
	a.dirty = false
	return a.latest, true
}
