// Package geo converts between simulation vectors and the geometry types
// used by the recording backends.
package geo

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Positions are stored as XYZ points in world units. SQLite has no spatial
// types, so the backends persist the WKB form through geom.Point's
// Value and Scan.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PointFromVec3 builds an XYZ point from a world position.
func PointFromVec3(v mgl64.Vec3) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: v[0], Y: v[1]},
		Z:    v[2],
		Type: geom.DimXYZ,
	})
}

// Vec3FromPoint reads a world position back from a point. A 2D point yields
// a zero Z.
func Vec3FromPoint(p geom.Point) (mgl64.Vec3, error) {
	c, ok := p.Coordinates()
	if !ok {
		return mgl64.Vec3{}, ErrInvalidCoordinates
	}
	return mgl64.Vec3{c.X, c.Y, c.Z}, nil
}
