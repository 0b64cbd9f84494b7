// Package collision resolves swept vehicle displacement against the world.
package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kartsync/kartsync/internal/config"
)

// Hit is the outcome of a sweep. Position is where the swept body comes to
// rest. Blocked reports a blocking contact, which zeroes the body's velocity.
type Hit struct {
	Position mgl64.Vec3
	Blocked  bool
}

// World sweeps a body from a position along a displacement.
type World interface {
	Sweep(from, displacement mgl64.Vec3) Hit
}

// Open is a world with nothing in it.
type Open struct{}

// Sweep always reaches the full displacement.
func (Open) Sweep(from, displacement mgl64.Vec3) Hit {
	return Hit{Position: from.Add(displacement)}
}

// Arena is an axis-aligned box bounded by walls. Use math.Inf on an axis to
// leave it unbounded.
type Arena struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// NewArena returns a flat arena bounded in X and Y and open in Z.
func NewArena(minX, minY, maxX, maxY float64) Arena {
	return Arena{
		Min: mgl64.Vec3{minX, minY, math.Inf(-1)},
		Max: mgl64.Vec3{maxX, maxY, math.Inf(1)},
	}
}

// FromConfig returns the configured arena, or Open when it is disabled.
// Server and clients must agree on it.
func FromConfig(a config.ArenaConfig) World {
	if !a.Enabled {
		return Open{}
	}
	return NewArena(a.MinX, a.MinY, a.MaxX, a.MaxY)
}

// Sweep clips the displacement to the arena walls.
func (a Arena) Sweep(from, displacement mgl64.Vec3) Hit {
	target := from.Add(displacement)
	hit := Hit{Position: target}
	for i := range target {
		if target[i] < a.Min[i] {
			hit.Position[i] = a.Min[i]
			hit.Blocked = true
		} else if target[i] > a.Max[i] {
			hit.Position[i] = a.Max[i]
			hit.Blocked = true
		}
	}
	return hit
}

// Contains reports whether p lies inside the arena, walls included.
func (a Arena) Contains(p mgl64.Vec3) bool {
	for i := range p {
		if p[i] < a.Min[i] || p[i] > a.Max[i] {
			return false
		}
	}
	return true
}
