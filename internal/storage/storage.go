// Package storage defines the recording backend contract.
package storage

import (
	"time"

	"github.com/kartsync/kartsync/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession(s *core.Session) error

	// Entity registration
	AddVehicle(v *core.VehicleInfo) error

	// Recording
	RecordMove(m *core.MoveRecord) error
	RecordState(s *core.StateRecord) error
}

// QueueStats is implemented by backends that write asynchronously.
type QueueStats interface {
	QueueLengths() map[string]int
	LastWriteDuration() time.Duration
}

// Exportable is implemented by backends that produce a file per session.
type Exportable interface {
	ExportedFilePath() string
}

// Noop discards everything. It backs storage.type "none".
type Noop struct{}

func (Noop) Init() error { return nil }
func (Noop) Close() error { return nil }
func (Noop) StartSession(*core.Session) error { return nil }
func (Noop) EndSession(*core.Session) error { return nil }
func (Noop) AddVehicle(*core.VehicleInfo) error { return nil }
func (Noop) RecordMove(*core.MoveRecord) error { return nil }
func (Noop) RecordState(*core.StateRecord) error { return nil }
