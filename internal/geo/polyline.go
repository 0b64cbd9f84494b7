package geo

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Track builds an XYZ line string through the given positions.
func Track(points []mgl64.Vec3) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("track must have at least 2 points, got %d", len(points))
	}

	flat := make([]float64, 0, len(points)*3)
	for _, p := range points {
		flat = append(flat, p[0], p[1], p[2])
	}

	seq := geom.NewSequence(flat, geom.DimXYZ)
	return geom.NewLineString(seq), nil
}

// ParseTrack parses a JSON array of coordinates into positions.
// Input format: "[[x1,y1],[x2,y2,z2],...]"
func ParseTrack(input string) ([]mgl64.Vec3, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse track JSON: %w", err)
	}

	out := make([]mgl64.Vec3, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 || len(coord) > 3 {
			return nil, fmt.Errorf("coordinate %d has %d values", i, len(coord))
		}
		copy(out[i][:], coord)
	}
	return out, nil
}
