// Package worker turns hub events into storage writes off the simulation
// loop.
package worker

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kartsync/kartsync/internal/cache"
	"github.com/kartsync/kartsync/internal/logging"
	"github.com/kartsync/kartsync/internal/storage"
)

// ErrTooEarlyForStateAssociation is returned when a move or state arrives before its vehicle is registered
var ErrTooEarlyForStateAssociation = fmt.Errorf("too early for state association")

// ErrBadPayload is returned when an event carries the wrong payload type.
var ErrBadPayload = errors.New("unexpected event payload")

// DefaultQueueSize is the record queue length when none is configured.
const DefaultQueueSize = 10000

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	VehicleCache *cache.VehicleCache
	LogManager   *logging.SlogManager
	QueueSize    int // record queue length, DefaultQueueSize when zero
}

// Stats counts what the handlers have processed.
type Stats struct {
	Vehicles int64
	Moves    int64
	States   int64
	Dropped  int64 // moves and states for unknown vehicles
}

// Manager manages worker goroutines
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	vehicles atomic.Int64
	moves    atomic.Int64
	states   atomic.Int64
	dropped  atomic.Int64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.VehicleCache == nil {
		deps.VehicleCache = cache.NewVehicleCache()
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = DefaultQueueSize
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Stats returns the handler counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Vehicles: m.vehicles.Load(),
		Moves:    m.moves.Load(),
		States:   m.states.Load(),
		Dropped:  m.dropped.Load(),
	}
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(storage.QueueStats); ok {
		return p.LastWriteDuration()
	}
	return 0
}

// GetQueueLengths returns the backend's pending writes, nil if it writes
// synchronously.
func (m *Manager) GetQueueLengths() map[string]int {
	if p, ok := m.backend.(storage.QueueStats); ok {
		return p.QueueLengths()
	}
	return nil
}
