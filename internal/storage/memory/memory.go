// Package memory implements a storage.Backend that keeps the session in
// memory and exports it as JSON when the session ends.
package memory

import (
	"sync"

	"github.com/kartsync/kartsync/internal/config"
	"github.com/kartsync/kartsync/pkg/core"
)

// VehicleRecord groups a vehicle with all its time-series data
type VehicleRecord struct {
	Vehicle core.VehicleInfo
	Moves   []core.MoveRecord
	States  []core.StateRecord
}

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	vehicles map[string]*VehicleRecord // keyed by vehicle ID
	orphans  int                       // rows for vehicles never added

	lastExportPath string
	ended          bool
	late           bool // rows arrived after the session ended
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		vehicles: make(map[string]*VehicleRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close rewrites the export if rows for the ended session arrived after it
// was written.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ended || !b.late {
		return nil
	}
	b.late = false
	return b.exportJSON()
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s
	b.vehicles = make(map[string]*VehicleRecord)
	b.orphans = 0
	b.lastExportPath = ""
	b.ended = false
	b.late = false
	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	if s != nil {
		b.session.EndTime = s.EndTime
	}
	b.ended = true
	b.late = false
	return b.exportJSON()
}

// AddVehicle registers a new vehicle
func (b *Backend) AddVehicle(v *core.VehicleInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.late = b.late || b.ended
	b.vehicles[v.ID] = &VehicleRecord{
		Vehicle: *v,
		Moves:   make([]core.MoveRecord, 0),
		States:  make([]core.StateRecord, 0),
	}
	return nil
}

// RecordMove appends a received move to its vehicle
func (b *Backend) RecordMove(m *core.MoveRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.late = b.late || b.ended
	record, ok := b.vehicles[m.VehicleID]
	if !ok {
		b.orphans++
		return nil
	}
	record.Moves = append(record.Moves, *m)
	return nil
}

// RecordState appends a replicated state to its vehicle
func (b *Backend) RecordState(s *core.StateRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.late = b.late || b.ended
	record, ok := b.vehicles[s.VehicleID]
	if !ok {
		b.orphans++
		return nil
	}
	record.States = append(record.States, *s)
	return nil
}

// Vehicle returns a copy of a vehicle's record.
func (b *Backend) Vehicle(id string) (VehicleRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.vehicles[id]
	if !ok {
		return VehicleRecord{}, false
	}
	out := VehicleRecord{
		Vehicle: record.Vehicle,
		Moves:   append([]core.MoveRecord(nil), record.Moves...),
		States:  append([]core.StateRecord(nil), record.States...),
	}
	return out, true
}

// Orphans counts moves and states dropped because their vehicle was unknown.
func (b *Backend) Orphans() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.orphans
}

// ExportedFilePath returns the path of the last export, empty before one.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
