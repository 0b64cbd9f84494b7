// Package kart implements client-predicted, server-authoritative kart
// movement: the predictor, the authority simulator, the reconciler and the
// role dispatch that ties them to one vehicle.
package kart

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kartsync/kartsync/internal/collision"
	"github.com/kartsync/kartsync/internal/physics"
	"github.com/kartsync/kartsync/internal/queue"
	"github.com/kartsync/kartsync/pkg/core"
)

var (
	// ErrNotAuthority is returned when a move is submitted to a non-authority copy.
	ErrNotAuthority = errors.New("vehicle is not authoritative")
	// ErrAuthoritative is returned when replicated state is offered to the authority.
	ErrAuthoritative = errors.New("authority does not reconcile")
)

// Config describes one vehicle on one participant.
type Config struct {
	ID                  string
	Params              core.VehicleParams
	World               collision.World
	Spawn               core.Pose
	IsAuthority         bool
	IsLocallyControlled bool
	Sender              MoveSender // used while predicting
}

// Vehicle is a single kart as seen by one participant. It is not safe for
// concurrent use; the owning simulation loop drives it.
type Vehicle struct {
	id          string
	isAuthority bool
	isLocal     bool

	state    core.VehicleState
	clock    Clock
	throttle float64
	steering float64

	movement   *Movement
	unacked    *queue.Queue[core.Move]
	predictor  *Predictor
	authority  *Authority
	reconciler *Reconciler

	metrics *metrics
}

// New builds a vehicle at cfg.Spawn.
func New(cfg Config) (*Vehicle, error) {
	model, err := physics.New(cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("creating vehicle %s: %w", cfg.ID, err)
	}
	m, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating vehicle %s: %w", cfg.ID, err)
	}

	v := &Vehicle{
		id:          cfg.ID,
		isAuthority: cfg.IsAuthority,
		isLocal:     cfg.IsLocallyControlled,
		state:       core.VehicleState{Pose: cfg.Spawn},
		movement:    NewMovement(model, cfg.World),
		unacked:     queue.New[core.Move](),
		metrics:     m,
	}
	v.movement.OnBlocked(func() {
		v.metrics.blocked.Add(context.Background(), 1, roleAttr(v.Role()))
	})
	v.predictor = NewPredictor(v.movement, &v.state, &v.clock, v.unacked, cfg.Sender)
	v.authority = NewAuthority(v.movement, &v.state)
	v.reconciler = NewReconciler(v.movement, &v.state, v.unacked)
	return v, nil
}

// ID returns the vehicle's identifier.
func (v *Vehicle) ID() string {
	return v.id
}

// Role resolves the vehicle's current role.
func (v *Vehicle) Role() Role {
	return ResolveRole(v.isAuthority, v.isLocal)
}

// SetInput sets the live axis values read on the next Advance.
func (v *Vehicle) SetInput(throttle, steering float64) {
	v.throttle = ClampAxis(throttle)
	v.steering = ClampAxis(steering)
}

// Advance runs one tick of dt seconds for the current role. A dt that is
// not positive and finite is ignored.
func (v *Vehicle) Advance(dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil
	}

	switch v.Role() {
	case RoleAuthorityDriven:
		return v.SubmitMove(v.clock.Capture(dt, v.throttle, v.steering))
	case RolePredicting:
		_, err := v.predictor.OnTick(dt, v.throttle, v.steering)
		return err
	case RoleReplaying:
		return v.deadReckon(dt)
	case RoleAuthorityServing:
		return nil
	}
	return nil
}

// deadReckon re-applies the controls of the last authoritative move over
// the local tick.
func (v *Vehicle) deadReckon(dt float64) error {
	last, ok := v.reconciler.Last()
	if !ok {
		return nil
	}
	move := core.Move{
		Throttle:  last.LastMove.Throttle,
		Steering:  last.LastMove.Steering,
		DeltaTime: dt,
		Timestamp: last.LastMove.Timestamp,
	}
	next, err := v.movement.SimulateMove(v.state, move)
	if err != nil {
		return err
	}
	v.state = next
	return nil
}

// SubmitMove hands a move to the authority simulator.
func (v *Vehicle) SubmitMove(m core.Move) error {
	if !v.isAuthority {
		return ErrNotAuthority
	}
	ctx := context.Background()
	if err := v.authority.OnMoveReceived(m); err != nil {
		v.metrics.movesRejected.Add(ctx, 1, roleAttr(v.Role()))
		return err
	}
	v.metrics.movesAccepted.Add(ctx, 1, roleAttr(v.Role()))
	return nil
}

// ApplyAuthoritativeState reconciles against replicated state.
func (v *Vehicle) ApplyAuthoritativeState(s core.AuthoritativeState) (Correction, error) {
	if v.isAuthority {
		return Correction{}, ErrAuthoritative
	}
	role := v.Role()
	c, err := v.reconciler.OnAuthoritativeStateReceived(s)
	if errors.Is(err, ErrStaleState) {
		v.metrics.staleStates.Add(context.Background(), 1, roleAttr(role))
		return c, err
	}
	if err != nil {
		return c, err
	}
	v.metrics.recordCorrection(role, c)
	return c, nil
}

// TakeReplication returns the authoritative state if it changed since the
// last call.
func (v *Vehicle) TakeReplication() (core.AuthoritativeState, bool) {
	if !v.isAuthority {
		return core.AuthoritativeState{}, false
	}
	return v.authority.TakeReplication()
}

// AuthoritativeState returns the latest authoritative state. On a remote
// participant this is the last state received.
func (v *Vehicle) AuthoritativeState() core.AuthoritativeState {
	if v.isAuthority {
		return v.authority.State()
	}
	last, _ := v.reconciler.Last()
	return last
}

// State returns the local simulation state.
func (v *Vehicle) State() core.VehicleState {
	return v.state
}

// Unacknowledged returns the queued moves, oldest first.
func (v *Vehicle) Unacknowledged() []core.Move {
	return v.unacked.Items()
}

// Clock returns the vehicle's running simulation time.
func (v *Vehicle) Clock() float64 {
	return v.clock.Now()
}

// Params returns the tuning the vehicle simulates with.
func (v *Vehicle) Params() core.VehicleParams {
	return v.movement.Params()
}
