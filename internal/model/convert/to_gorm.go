// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kartsync/kartsync/internal/geo"
	"github.com/kartsync/kartsync/internal/model"
	"github.com/kartsync/kartsync/pkg/core"
	"gorm.io/datatypes"
)

func vectorToGorm(v mgl64.Vec3) model.Vector {
	return model.Vector{X: v[0], Y: v[1], Z: v[2]}
}

func quatToGorm(q mgl64.Quat) model.Orientation {
	return model.Orientation{W: q.W, X: q.V[0], Y: q.V[1], Z: q.V[2]}
}

func moveToGorm(m core.Move) model.MoveInput {
	return model.MoveInput{
		Throttle:  m.Throttle,
		Steering:  m.Steering,
		DeltaTime: m.DeltaTime,
		Timestamp: m.Timestamp,
	}
}

// SessionToGorm converts a core.Session to a GORM Session.
func SessionToGorm(s core.Session) (model.Session, error) {
	params, err := json.Marshal(s.Params)
	if err != nil {
		return model.Session{}, fmt.Errorf("encoding params: %w", err)
	}
	out := model.Session{
		ID:            s.ID,
		Name:          s.Name,
		StartTime:     s.StartTime,
		TickHz:        s.TickHz,
		ReplicationHz: s.ReplicationHz,
		Params:        datatypes.JSON(params),
	}
	if !s.EndTime.IsZero() {
		end := s.EndTime
		out.EndTime = &end
	}
	return out, nil
}

// VehicleToGorm converts a core.VehicleInfo to a GORM Vehicle.
func VehicleToGorm(v core.VehicleInfo) model.Vehicle {
	return model.Vehicle{
		SessionID:        v.SessionID,
		ID:               v.ID,
		Name:             v.Name,
		Owner:            v.Owner,
		HostDriven:       v.HostDriven,
		JoinTime:         v.JoinTime,
		Spawn:            geo.PointFromVec3(v.Spawn.Position),
		SpawnOrientation: quatToGorm(v.Spawn.Orientation),
	}
}

// MoveToGorm converts a core.MoveRecord to a GORM Move.
func MoveToGorm(m core.MoveRecord) model.Move {
	return model.Move{
		SessionID:  m.SessionID,
		VehicleID:  m.VehicleID,
		Input:      moveToGorm(m.Move),
		Accepted:   m.Accepted,
		ReceivedAt: m.ReceivedAt,
	}
}

// StateToGorm converts a core.StateRecord to a GORM VehicleState.
func StateToGorm(s core.StateRecord) model.VehicleState {
	return model.VehicleState{
		SessionID:   s.SessionID,
		VehicleID:   s.VehicleID,
		Tick:        s.Tick,
		Time:        s.Time,
		Position:    geo.PointFromVec3(s.State.Pose.Position),
		Orientation: quatToGorm(s.State.Pose.Orientation),
		Velocity:    vectorToGorm(s.State.Velocity),
		LastMove:    moveToGorm(s.State.LastMove),
	}
}
