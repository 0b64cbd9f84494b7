// Package model holds the gorm schema of a recorded session.
package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&Vehicle{},
	&Move{},
	&VehicleState{},
	&Performance{},
}

// Vector is a world-space vector stored as three columns.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Orientation is a unit quaternion stored as four columns.
type Orientation struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// MoveInput is the control part of a move.
type MoveInput struct {
	Throttle  float64 `json:"throttle"`
	Steering  float64 `json:"steering"`
	DeltaTime float64 `json:"deltaTime"`
	Timestamp float64 `json:"timestamp"`
}

////////////////////////
// SESSION
////////////////////////

// Session is one run of an authority host.
type Session struct {
	ID            string         `json:"id" gorm:"primaryKey;size:36"`
	Name          string         `json:"name" gorm:"size:127"`
	StartTime     time.Time      `json:"startTime" gorm:"index:idx_session_start"`
	EndTime       *time.Time     `json:"endTime"` // nil while the session runs
	TickHz        int            `json:"tickHz"`
	ReplicationHz int            `json:"replicationHz"`
	Params        datatypes.JSON `json:"params"` // core.VehicleParams
}

func (*Session) TableName() string {
	return "sessions"
}

////////////////////////
// VEHICLES
////////////////////////

// Vehicle is a kart spawned during a session.
// Keyed by (SessionID, ID).
type Vehicle struct {
	SessionID        string      `json:"sessionId" gorm:"primaryKey;size:36"`
	ID               string      `json:"id" gorm:"primaryKey;size:36"`
	Name             string      `json:"name" gorm:"size:64"`
	Owner            string      `json:"owner" gorm:"size:64"` // client name, empty when host driven
	HostDriven       bool        `json:"hostDriven"`
	JoinTime         time.Time   `json:"joinTime" gorm:"NOT NULL;index:idx_vehicle_join_time"`
	Spawn            geom.Point  `json:"spawn"`
	SpawnOrientation Orientation `json:"spawnOrientation" gorm:"embedded;embeddedPrefix:spawn_orientation_"`
}

func (*Vehicle) TableName() string {
	return "vehicles"
}

// Move is a move as the authority received it, accepted or not.
//
// Dispatch command: :MOVE:
type Move struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID  string    `json:"sessionId" gorm:"size:36;index:idx_move_session_id"`
	VehicleID  string    `json:"vehicleId" gorm:"size:36;index:idx_move_vehicle_id"`
	Input      MoveInput `json:"input" gorm:"embedded"`
	Accepted   bool      `json:"accepted"`
	ReceivedAt time.Time `json:"receivedAt" gorm:"index:idx_move_received_at"`
}

func (*Move) TableName() string {
	return "moves"
}

// VehicleState is an authoritative state at the moment it was replicated.
//
// Dispatch command: :STATE:
type VehicleState struct {
	ID          uint        `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID   string      `json:"sessionId" gorm:"size:36;index:idx_vehiclestate_session_id"`
	VehicleID   string      `json:"vehicleId" gorm:"size:36;index:idx_vehiclestate_vehicle_id"`
	Tick        uint64      `json:"tick" gorm:"index:idx_vehiclestate_tick"`
	Time        time.Time   `json:"time"` // Server time when state was replicated
	Position    geom.Point  `json:"position"`
	Orientation Orientation `json:"orientation" gorm:"embedded;embeddedPrefix:orientation_"`
	Velocity    Vector      `json:"velocity" gorm:"embedded;embeddedPrefix:velocity_"`
	LastMove    MoveInput   `json:"lastMove" gorm:"embedded;embeddedPrefix:last_move_"`
}

func (*VehicleState) TableName() string {
	return "vehicle_states"
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// Performance is a periodic snapshot of host health
type Performance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_time"`
	SessionID           string            `json:"sessionId" gorm:"size:36;index:idx_performance_session_id"`
	Vehicles            int               `json:"vehicles"`
	Connections         int               `json:"connections"`
	MovesAccepted       int64             `json:"movesAccepted"`
	MovesRejected       int64             `json:"movesRejected"`
	TickDurationMs      float64           `json:"tickDurationMs"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*Performance) TableName() string {
	return "performances"
}

// WriteQueueLengths is the model for the write queue lengths
type WriteQueueLengths struct {
	Vehicles      int `json:"vehicles"`
	Moves         int `json:"moves"`
	VehicleStates int `json:"vehicleStates"`
}
