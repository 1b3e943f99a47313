// Package geom provides planar predicates over orb geometries that orb itself
// does not ship: segment and polygon intersection, ring simplicity, and
// point buffers. All coordinates are treated as planar degrees.
package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DefaultBufferSegments is the number of vertices used to approximate a circular buffer.
const DefaultBufferSegments = 64

// cross returns the z component of (b-a) x (c-a).
func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// onSegment reports whether p, already known to be collinear with a-b, lies within the segment's extent.
func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// SegmentsIntersect reports whether the closed segments p1-p2 and q1-q2 share at least one point.
func SegmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := sign(cross(q1, q2, p1))
	d2 := sign(cross(q1, q2, p2))
	d3 := sign(cross(p1, p2, q1))
	d4 := sign(cross(p1, p2, q2))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}

	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}

	return false
}

// RingSelfIntersects reports whether a closed ring crosses or touches itself
// anywhere other than at the shared vertex of consecutive edges. A spike that
// doubles back along its previous edge also counts.
func RingSelfIntersects(r orb.Ring) bool {
	n := len(r) - 1 // number of edges in a closed ring
	if n < 3 {
		return false
	}

	for i := 0; i < n; i++ {
		a1, a2 := r[i], r[i+1]
		for j := i + 1; j < n; j++ {
			b1, b2 := r[j], r[j+1]

			adjacent := j == i+1 || (i == 0 && j == n-1)
			if adjacent {
				// shared vertex is expected; collinear edges that fold back are not
				var shared, p, q orb.Point
				if j == i+1 {
					shared, p, q = a2, a1, b2
				} else {
					shared, p, q = a1, a2, b1
				}
				if cross(p, shared, q) == 0 && dot(p, shared, q) > 0 {
					return true
				}
				continue
			}

			if SegmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}

	return false
}

// dot returns (a-o).(b-o).
func dot(a, o, b orb.Point) float64 {
	return (a[0]-o[0])*(b[0]-o[0]) + (a[1]-o[1])*(b[1]-o[1])
}

// RingsCross reports whether any edge of a touches any edge of b.
func RingsCross(a, b orb.Ring) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if SegmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

// PolygonsIntersect reports whether two polygons share at least one point,
// boundaries included. Holes are honoured: a polygon lying wholly inside the
// other's hole does not intersect it.
func PolygonsIntersect(a, b orb.Polygon) bool {
	if len(a) == 0 || len(b) == 0 || len(a[0]) == 0 || len(b[0]) == 0 {
		return false
	}

	if !a.Bound().Intersects(b.Bound()) {
		return false
	}

	for _, ra := range a {
		for _, rb := range b {
			if RingsCross(ra, rb) {
				return true
			}
		}
	}

	// No boundary contact, so either one contains the other or they are disjoint.
	return planar.PolygonContains(b, a[0][0]) || planar.PolygonContains(a, b[0][0])
}

// MultiPolygonsIntersect reports whether any member of a intersects any member of b.
func MultiPolygonsIntersect(a, b orb.MultiPolygon) bool {
	for _, pa := range a {
		for _, pb := range b {
			if PolygonsIntersect(pa, pb) {
				return true
			}
		}
	}
	return false
}

// Buffer approximates a circle of the given radius around center with a
// closed, counter-clockwise ring. Every vertex lies at distance radius from
// center.
func Buffer(center orb.Point, radius float64, segments int) orb.Polygon {
	if segments < 4 {
		segments = DefaultBufferSegments
	}

	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		ring = append(ring, orb.Point{
			center[0] + radius*math.Cos(theta),
			center[1] + radius*math.Sin(theta),
		})
	}
	ring = append(ring, ring[0])

	return orb.Polygon{ring}
}

// Distance is the planar distance between two points in degrees.
func Distance(a, b orb.Point) float64 {
	return math.Hypot(a[0]-b[0], a[1]-b[1])
}
