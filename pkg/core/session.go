// pkg/core/session.go
package core

import "time"

// Session is one run of an authority host, from startup to shutdown.
type Session struct {
	ID            string
	Name          string
	StartTime     time.Time
	EndTime       time.Time
	TickHz        int
	ReplicationHz int
	Params        VehicleParams
}

// VehicleInfo describes a vehicle spawned during a session.
type VehicleInfo struct {
	ID         string
	SessionID  string
	Name       string
	Owner      string // client name, empty for host-driven vehicles
	HostDriven bool
	JoinTime   time.Time
	Spawn      Pose
}

// MoveRecord is a move as the authority received it.
type MoveRecord struct {
	SessionID  string
	VehicleID  string
	Move       Move
	Accepted   bool
	ReceivedAt time.Time
}

// StateRecord is an authoritative state at the moment it was replicated.
type StateRecord struct {
	SessionID string
	VehicleID string
	Tick      uint64
	Time      time.Time
	State     AuthoritativeState
}
