package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kartsync/kartsync/internal/geo"
	"github.com/kartsync/kartsync/pkg/core"
)

// SessionExport is the root JSON structure
type SessionExport struct {
	SessionID     string             `json:"sessionId"`
	Name          string             `json:"name"`
	StartTime     time.Time          `json:"startTime"`
	EndTime       time.Time          `json:"endTime"`
	TickHz        int                `json:"tickHz"`
	ReplicationHz int                `json:"replicationHz"`
	Params        core.VehicleParams `json:"params"`
	Vehicles      []VehicleJSON      `json:"vehicles"`
}

// VehicleJSON is one vehicle with its moves and states.
type VehicleJSON struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Owner       string     `json:"owner,omitempty"`
	HostDriven  bool       `json:"hostDriven"`
	JoinTime    time.Time  `json:"joinTime"`
	Spawn       [3]float64 `json:"spawn"`
	Track       string     `json:"track,omitempty"` // WKT LINESTRING Z of replicated positions
	TrackLength float64    `json:"trackLength"`
	Moves       [][]any    `json:"moves"`
	States      [][]any    `json:"states"`
}

// exportJSON writes the session data to a JSON file, gzipped when configured
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	name := strings.ReplaceAll(b.session.Name, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	if name == "" {
		name = "session"
	}
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		SessionID:     b.session.ID,
		Name:          b.session.Name,
		StartTime:     b.session.StartTime,
		EndTime:       b.session.EndTime,
		TickHz:        b.session.TickHz,
		ReplicationHz: b.session.ReplicationHz,
		Params:        b.session.Params,
		Vehicles:      make([]VehicleJSON, 0, len(b.vehicles)),
	}

	records := make([]*VehicleRecord, 0, len(b.vehicles))
	for _, r := range b.vehicles {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		a, c := records[i].Vehicle, records[j].Vehicle
		if !a.JoinTime.Equal(c.JoinTime) {
			return a.JoinTime.Before(c.JoinTime)
		}
		return a.ID < c.ID
	})

	for _, record := range records {
		v := record.Vehicle
		entity := VehicleJSON{
			ID:         v.ID,
			Name:       v.Name,
			Owner:      v.Owner,
			HostDriven: v.HostDriven,
			JoinTime:   v.JoinTime,
			Spawn:      v.Spawn.Position,
			Moves:      make([][]any, 0, len(record.Moves)),
			States:     make([][]any, 0, len(record.States)),
		}

		// Format: [timestamp, throttle, steering, deltaTime, accepted]
		for _, m := range record.Moves {
			entity.Moves = append(entity.Moves, []any{
				m.Move.Timestamp,
				m.Move.Throttle,
				m.Move.Steering,
				m.Move.DeltaTime,
				boolToInt(m.Accepted),
			})
		}

		// Format: [tick, [x, y, z], [w, x, y, z], [vx, vy, vz], ackTimestamp]
		positions := make([]mgl64.Vec3, 0, len(record.States))
		for _, s := range record.States {
			pose := s.State.Pose
			q := pose.Orientation
			entity.States = append(entity.States, []any{
				s.Tick,
				[3]float64(pose.Position),
				[4]float64{q.W, q.V[0], q.V[1], q.V[2]},
				[3]float64(s.State.Velocity),
				s.State.LastMove.Timestamp,
			})
			positions = append(positions, pose.Position)
		}

		if track, err := geo.Track(positions); err == nil {
			entity.Track = track.AsText()
			entity.TrackLength = track.Length()
		}

		export.Vehicles = append(export.Vehicles, entity)
	}

	return export
}

func writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
