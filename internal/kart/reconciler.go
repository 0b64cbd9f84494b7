package kart

import (
	"errors"
	"fmt"

	"github.com/kartsync/kartsync/internal/queue"
	"github.com/kartsync/kartsync/pkg/core"
)

// ErrStaleState is returned for an authoritative state that does not
// acknowledge a newer move than the one already applied.
var ErrStaleState = errors.New("stale authoritative state")

// Correction describes one applied reconciliation.
type Correction struct {
	Error    float64 // distance between the prediction and the reconciled position, world units
	Pruned   int     // moves acknowledged by the state
	Replayed int     // moves re-simulated on top of it
}

// Reconciler snaps a vehicle to replicated authoritative state and replays
// whatever the authority has not acknowledged yet.
type Reconciler struct {
	movement *Movement
	state    *core.VehicleState
	unacked  *queue.Queue[core.Move]

	last    core.AuthoritativeState
	applied bool
}

// NewReconciler returns a reconciler over state and its unacknowledged
// moves.
func NewReconciler(movement *Movement, state *core.VehicleState, unacked *queue.Queue[core.Move]) *Reconciler {
	return &Reconciler{
		movement: movement,
		state:    state,
		unacked:  unacked,
	}
}

// OnAuthoritativeStateReceived snaps the vehicle to s, drops every queued
// move with a timestamp at or before s.LastMove.Timestamp and replays the
// rest in order. Once a state has been applied, a state that is not
// strictly newer is ignored and ErrStaleState returned.
func (r *Reconciler) OnAuthoritativeStateReceived(s core.AuthoritativeState) (Correction, error) {
	if r.applied && !(s.LastMove.Timestamp > r.last.LastMove.Timestamp) {
		return Correction{}, fmt.Errorf("%w: acknowledges %v, already at %v",
			ErrStaleState, s.LastMove.Timestamp, r.last.LastMove.Timestamp)
	}

	predicted := r.state.Pose.Position
	r.last = s
	r.applied = true

	r.state.Pose = s.Pose
	r.state.Velocity = s.Velocity

	var c Correction
	ack := s.LastMove.Timestamp
	c.Pruned = r.unacked.DropWhile(func(m core.Move) bool { return m.Timestamp <= ack })

	for _, m := range r.unacked.Items() {
		next, err := r.movement.SimulateMove(*r.state, m)
		if err != nil {
			return c, fmt.Errorf("replaying move at %v: %w", m.Timestamp, err)
		}
		*r.state = next
		c.Replayed++
	}

	c.Error = r.state.Pose.Position.Sub(predicted).Len()
	return c, nil
}

// Last returns the most recently applied state.
func (r *Reconciler) Last() (core.AuthoritativeState, bool) {
	return r.last, r.applied
}
