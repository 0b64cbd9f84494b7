package worker

import (
	"fmt"

	"github.com/kartsync/kartsync/internal/dispatcher"
	"github.com/kartsync/kartsync/pkg/core"
)

// Commands dispatched by the hub.
const (
	CmdSessionStart = ":SESSION:START:"
	CmdSessionEnd   = ":SESSION:END:"
	CmdVehicleAdd   = ":VEHICLE:ADD:"
	CmdMove         = ":MOVE:"
	CmdState        = ":STATE:"
)

// recordQueue carries vehicle, move and state rows in dispatch order, so a
// vehicle is stored before anything that refers to it.
const recordQueue = "record"

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Session lifecycle - sync
	d.Register(CmdSessionStart, m.handleSessionStart, dispatcher.Logged())
	d.Register(CmdSessionEnd, m.handleSessionEnd, dispatcher.Logged())

	size := m.deps.QueueSize
	queued := func(opts ...dispatcher.Option) []dispatcher.Option {
		return append(opts, dispatcher.Buffered(size), dispatcher.Queue(recordQueue))
	}

	// Vehicle rows and moves wait for room: verify needs every accepted
	// move. A dropped state only means one comparison fewer.
	d.Register(CmdVehicleAdd, m.handleVehicleAdd, queued(dispatcher.Blocking(), dispatcher.Logged())...)
	d.Register(CmdMove, m.handleMove, queued(dispatcher.Blocking())...)
	d.Register(CmdState, m.handleState, queued()...)
}

func payload[T any](e dispatcher.Event) (T, error) {
	v, ok := e.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s got %T", ErrBadPayload, e.Command, e.Payload)
	}
	return v, nil
}

func (m *Manager) handleSessionStart(e dispatcher.Event) (any, error) {
	s, err := payload[*core.Session](e)
	if err != nil {
		return nil, err
	}

	m.deps.VehicleCache.Reset()
	if err := m.backend.StartSession(s); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleSessionEnd(e dispatcher.Event) (any, error) {
	s, err := payload[*core.Session](e)
	if err != nil {
		return nil, err
	}

	if err := m.backend.EndSession(s); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleVehicleAdd(e dispatcher.Event) (any, error) {
	v, err := payload[core.VehicleInfo](e)
	if err != nil {
		return nil, err
	}

	// Always cache for move and state lookups
	m.deps.VehicleCache.Add(v)

	if err := m.backend.AddVehicle(&v); err != nil {
		return nil, fmt.Errorf("failed to log new vehicle: %w", err)
	}
	m.vehicles.Add(1)
	return nil, nil
}

func (m *Manager) handleMove(e dispatcher.Event) (any, error) {
	rec, err := payload[core.MoveRecord](e)
	if err != nil {
		return nil, err
	}

	if _, ok := m.deps.VehicleCache.Get(rec.VehicleID); !ok {
		m.dropped.Add(1)
		return nil, ErrTooEarlyForStateAssociation
	}

	if err := m.backend.RecordMove(&rec); err != nil {
		return nil, fmt.Errorf("failed to log move: %w", err)
	}
	m.moves.Add(1)
	return nil, nil
}

func (m *Manager) handleState(e dispatcher.Event) (any, error) {
	rec, err := payload[core.StateRecord](e)
	if err != nil {
		return nil, err
	}

	if _, ok := m.deps.VehicleCache.Get(rec.VehicleID); !ok {
		m.dropped.Add(1)
		return nil, ErrTooEarlyForStateAssociation
	}

	if err := m.backend.RecordState(&rec); err != nil {
		return nil, fmt.Errorf("failed to log vehicle state: %w", err)
	}
	m.states.Add(1)
	return nil, nil
}
