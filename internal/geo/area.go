// Package geo provides service-area membership and travel distance helpers
// for geographic referral scoring.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Ring is a closed boundary in [longitude, latitude] order.
type Ring struct {
	polygon *geom.Polygon
}

// NewRing builds a boundary ring from [lon, lat] points. The ring is closed
// automatically when the last point differs from the first.
func NewRing(points [][]float64) (*Ring, error) {
	if len(points) < 3 {
		return nil, eris.Errorf("geo: boundary needs at least 3 points, got %d", len(points))
	}

	flat := make([]float64, 0, 2*(len(points)+1))
	for i, p := range points {
		if len(p) != 2 {
			return nil, eris.Errorf("geo: boundary point %d has %d coordinates, want 2", i, len(p))
		}
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) {
			return nil, eris.Errorf("geo: boundary point %d is not a number", i)
		}
		flat = append(flat, p[0], p[1])
	}
	first, last := points[0], points[len(points)-1]
	if first[0] != last[0] || first[1] != last[1] {
		flat = append(flat, first[0], first[1])
	}

	return &Ring{polygon: geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})}, nil
}

// Contains reports whether the point lies inside or on the ring.
func (r *Ring) Contains(lat, lon float64) bool {
	if r == nil || r.polygon == nil {
		return false
	}
	ring := r.polygon.LinearRing(0)
	return xy.IsPointInRing(geom.XY, geom.Coord{lon, lat}, ring.FlatCoords())
}

// InBoundary builds the ring and tests the point in one step. Invalid
// boundaries never contain a point.
func InBoundary(points [][]float64, lat, lon float64) bool {
	r, err := NewRing(points)
	if err != nil {
		return false
	}
	return r.Contains(lat, lon)
}
