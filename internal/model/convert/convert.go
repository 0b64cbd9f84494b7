package convert

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kartsync/kartsync/internal/geo"
	"github.com/kartsync/kartsync/internal/model"
	"github.com/kartsync/kartsync/pkg/core"
)

func vectorToCore(v model.Vector) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func quatToCore(o model.Orientation) mgl64.Quat {
	return mgl64.Quat{W: o.W, V: mgl64.Vec3{o.X, o.Y, o.Z}}
}

func moveToCore(m model.MoveInput) core.Move {
	return core.Move{
		Throttle:  m.Throttle,
		Steering:  m.Steering,
		DeltaTime: m.DeltaTime,
		Timestamp: m.Timestamp,
	}
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) (core.Session, error) {
	out := core.Session{
		ID:            s.ID,
		Name:          s.Name,
		StartTime:     s.StartTime,
		TickHz:        s.TickHz,
		ReplicationHz: s.ReplicationHz,
	}
	if s.EndTime != nil {
		out.EndTime = *s.EndTime
	}
	if len(s.Params) > 0 {
		if err := json.Unmarshal(s.Params, &out.Params); err != nil {
			return core.Session{}, fmt.Errorf("decoding params of session %s: %w", s.ID, err)
		}
	}
	return out, nil
}

// VehicleToCore converts a GORM Vehicle to a core.VehicleInfo.
func VehicleToCore(v model.Vehicle) (core.VehicleInfo, error) {
	pos, err := geo.Vec3FromPoint(v.Spawn)
	if err != nil {
		return core.VehicleInfo{}, fmt.Errorf("vehicle %s spawn: %w", v.ID, err)
	}
	return core.VehicleInfo{
		ID:         v.ID,
		SessionID:  v.SessionID,
		Name:       v.Name,
		Owner:      v.Owner,
		HostDriven: v.HostDriven,
		JoinTime:   v.JoinTime,
		Spawn:      core.Pose{Position: pos, Orientation: quatToCore(v.SpawnOrientation)},
	}, nil
}

// MoveToCore converts a GORM Move to a core.MoveRecord.
func MoveToCore(m model.Move) core.MoveRecord {
	return core.MoveRecord{
		SessionID:  m.SessionID,
		VehicleID:  m.VehicleID,
		Move:       moveToCore(m.Input),
		Accepted:   m.Accepted,
		ReceivedAt: m.ReceivedAt,
	}
}

// StateToCore converts a GORM VehicleState to a core.StateRecord.
func StateToCore(s model.VehicleState) (core.StateRecord, error) {
	pos, err := geo.Vec3FromPoint(s.Position)
	if err != nil {
		return core.StateRecord{}, fmt.Errorf("state %d position: %w", s.ID, err)
	}
	return core.StateRecord{
		SessionID: s.SessionID,
		VehicleID: s.VehicleID,
		Tick:      s.Tick,
		Time:      s.Time,
		State: core.AuthoritativeState{
			Pose:     core.Pose{Position: pos, Orientation: quatToCore(s.Orientation)},
			Velocity: vectorToCore(s.Velocity),
			LastMove: moveToCore(s.LastMove),
		},
	}, nil
}
