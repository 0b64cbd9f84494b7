// Package verify replays a recorded session through the vehicle physics and
// compares the outcome with the states the authority replicated.
package verify

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kartsync/kartsync/internal/collision"
	"github.com/kartsync/kartsync/internal/database"
	"github.com/kartsync/kartsync/internal/geo"
	"github.com/kartsync/kartsync/internal/kart"
	"github.com/kartsync/kartsync/pkg/core"
)

// DefaultTolerance is the largest position difference, in world units,
// still counted as a match.
const DefaultTolerance = 1e-6

// ErrDiverged is returned when a replayed state misses its recording.
var ErrDiverged = errors.New("replay diverged from recording")

// VehicleReport is the outcome for one vehicle.
type VehicleReport struct {
	VehicleID    string
	Name         string
	Moves        int // accepted moves replayed
	Rejected     int // moves the authority refused, skipped
	Checked      int // recorded states compared
	Mismatches   int
	MaxDeviation float64
	PathLength   float64 // replayed distance driven, world units
}

// Report is the outcome for a whole session.
type Report struct {
	SessionID string
	Vehicles  []VehicleReport
}

// Mismatches sums the mismatches of every vehicle.
func (r Report) Mismatches() int {
	n := 0
	for _, v := range r.Vehicles {
		n += v.Mismatches
	}
	return n
}

// Replay re-simulates every accepted move of rec from each vehicle's spawn
// pose. Recorded states are matched to replayed ones by the timestamp of
// the move they acknowledge. A non-positive tolerance uses
// DefaultTolerance. The report is complete even when ErrDiverged is
// returned.
func Replay(rec *database.Recording, world collision.World, tolerance float64) (Report, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if world == nil {
		world = collision.Open{}
	}

	report := Report{SessionID: rec.Session.ID}
	for _, info := range rec.Vehicles {
		vr, err := replayVehicle(rec, info, world, tolerance)
		if err != nil {
			return report, err
		}
		report.Vehicles = append(report.Vehicles, vr)
	}

	if n := report.Mismatches(); n > 0 {
		return report, fmt.Errorf("%w: %d states differ", ErrDiverged, n)
	}
	return report, nil
}

func replayVehicle(rec *database.Recording, info core.VehicleInfo, world collision.World, tolerance float64) (VehicleReport, error) {
	vr := VehicleReport{VehicleID: info.ID, Name: info.Name}

	v, err := kart.New(kart.Config{
		ID:          info.ID,
		Params:      rec.Session.Params,
		World:       world,
		Spawn:       info.Spawn,
		IsAuthority: true,
	})
	if err != nil {
		return vr, err
	}

	recorded := make(map[float64]core.AuthoritativeState)
	for _, s := range rec.StatesFor(info.ID) {
		// the spawn state acknowledges nothing
		if s.State.LastMove.DeltaTime > 0 {
			recorded[s.State.LastMove.Timestamp] = s.State
		}
	}

	path := []mgl64.Vec3{info.Spawn.Position}
	for _, m := range rec.MovesFor(info.ID) {
		if !m.Accepted {
			vr.Rejected++
			continue
		}
		if err := v.SubmitMove(m.Move); err != nil {
			return vr, fmt.Errorf("replaying %s at %v: %w", info.ID, m.Move.Timestamp, err)
		}
		vr.Moves++

		got := v.AuthoritativeState()
		path = append(path, got.Pose.Position)

		want, ok := recorded[m.Move.Timestamp]
		if !ok {
			continue
		}
		vr.Checked++
		d := got.Pose.Position.Sub(want.Pose.Position).Len()
		if d > vr.MaxDeviation {
			vr.MaxDeviation = d
		}
		if d > tolerance {
			vr.Mismatches++
		}
	}

	if track, err := geo.Track(path); err == nil {
		vr.PathLength = track.Length()
	}
	return vr, nil
}
