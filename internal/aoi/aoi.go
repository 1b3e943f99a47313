// Package aoi turns user-supplied GeoJSON into a validated area of interest.
package aoi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/robert-malhotra/planet-overlap/pkg/geom"
)

// ErrInvalidGeometry is the sentinel every GeometryError unwraps to.
var ErrInvalidGeometry = errors.New("invalid geometry")

// GeometryError reports a feature that could not be normalized.
// Index is the zero-based position of the feature in the input, or -1 when
// the error concerns the input as a whole.
type GeometryError struct {
	Index  int
	Type   string
	Reason string
}

func (e *GeometryError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid geometry: %s", e.Reason)
	}
	if e.Type == "" {
		return fmt.Sprintf("invalid geometry at feature %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid geometry at feature %d (%s): %s", e.Index, e.Type, e.Reason)
}

func (e *GeometryError) Unwrap() error {
	return ErrInvalidGeometry
}

// AreaOfInterest is a non-empty set of valid, non-overlapping polygons in
// WGS84 degrees. It is immutable: accessors hand out copies.
type AreaOfInterest struct {
	polygons   []orb.Polygon
	bound      orb.Bound
	pointsOnly bool
}

// Polygons returns a copy of the member polygons.
func (a *AreaOfInterest) Polygons() []orb.Polygon {
	out := make([]orb.Polygon, len(a.polygons))
	for i, p := range a.polygons {
		out[i] = p.Clone()
	}
	return out
}

// MultiPolygon returns the area as a single multipolygon copy.
func (a *AreaOfInterest) MultiPolygon() orb.MultiPolygon {
	return orb.MultiPolygon(a.Polygons())
}

// Bound is the bounding box of the union of all polygons.
func (a *AreaOfInterest) Bound() orb.Bound {
	return a.bound
}

// PointsOnly reports whether every input feature was a point or multipoint.
func (a *AreaOfInterest) PointsOnly() bool {
	return a.pointsOnly
}

// Area is the planar area of the union in square degrees.
func (a *AreaOfInterest) Area() float64 {
	var total float64
	for _, p := range a.polygons {
		total += planar.Area(p)
	}
	return total
}

// Decode reads a GeoJSON FeatureCollection, Feature or bare geometry and
// returns the geometries in input order.
func Decode(data []byte) ([]orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &GeometryError{Index: -1, Reason: fmt.Sprintf("malformed GeoJSON: %v", err)}
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, &GeometryError{Index: -1, Reason: fmt.Sprintf("malformed feature collection: %v", err)}
		}
		geoms := make([]orb.Geometry, 0, len(fc.Features))
		for i, f := range fc.Features {
			if f == nil || f.Geometry == nil {
				return nil, &GeometryError{Index: i, Reason: "feature has no geometry"}
			}
			geoms = append(geoms, f.Geometry)
		}
		return geoms, nil

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, &GeometryError{Index: 0, Reason: fmt.Sprintf("malformed feature: %v", err)}
		}
		if f.Geometry == nil {
			return nil, &GeometryError{Index: 0, Reason: "feature has no geometry"}
		}
		return []orb.Geometry{f.Geometry}, nil

	case "":
		return nil, &GeometryError{Index: -1, Reason: "missing GeoJSON type"}

	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, &GeometryError{Index: 0, Type: head.Type, Reason: fmt.Sprintf("malformed geometry: %v", err)}
		}
		return []orb.Geometry{g.Geometry()}, nil
	}
}

// Normalize converts geometries into an AreaOfInterest. Points are replaced
// by circular buffers of radius bufferDegrees; polygons are repaired where
// the fix is unambiguous (unclosed rings, repeated vertices, winding order)
// and rejected otherwise. Overlapping members are merged into their union.
func Normalize(geoms []orb.Geometry, bufferDegrees float64) (*AreaOfInterest, error) {
	if len(geoms) == 0 {
		return nil, &GeometryError{Index: -1, Reason: "no geometries supplied"}
	}

	a := &AreaOfInterest{pointsOnly: true}
	for i, g := range geoms {
		polys, isPoint, err := normalizeOne(g, bufferDegrees)
		if err != nil {
			gerr := &GeometryError{Index: i, Reason: err.Error()}
			if g != nil {
				gerr.Type = g.GeoJSONType()
			}
			return nil, gerr
		}
		a.pointsOnly = a.pointsOnly && isPoint
		a.polygons = append(a.polygons, polys...)
	}
	a.polygons = dissolve(a.polygons)

	a.bound = a.polygons[0].Bound()
	for _, p := range a.polygons[1:] {
		a.bound = a.bound.Union(p.Bound())
	}

	return a, nil
}

func normalizeOne(g orb.Geometry, bufferDegrees float64) ([]orb.Polygon, bool, error) {
	switch g := g.(type) {
	case nil:
		return nil, false, errors.New("geometry is null")

	case orb.Point:
		p, err := bufferPoint(g, bufferDegrees)
		if err != nil {
			return nil, true, err
		}
		return []orb.Polygon{p}, true, nil

	case orb.MultiPoint:
		if len(g) == 0 {
			return nil, true, errors.New("multipoint has no points")
		}
		out := make([]orb.Polygon, 0, len(g))
		for _, pt := range g {
			p, err := bufferPoint(pt, bufferDegrees)
			if err != nil {
				return nil, true, err
			}
			out = append(out, p)
		}
		return out, true, nil

	case orb.Polygon:
		p, err := repairPolygon(g)
		if err != nil {
			return nil, false, err
		}
		return []orb.Polygon{p}, false, nil

	case orb.MultiPolygon:
		if len(g) == 0 {
			return nil, false, errors.New("multipolygon has no polygons")
		}
		out := make([]orb.Polygon, 0, len(g))
		for j, poly := range g {
			p, err := repairPolygon(poly)
			if err != nil {
				return nil, false, fmt.Errorf("polygon %d: %w", j, err)
			}
			out = append(out, p)
		}
		return out, false, nil

	default:
		return nil, false, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

func bufferPoint(pt orb.Point, radius float64) (orb.Polygon, error) {
	if err := checkPoint(pt); err != nil {
		return nil, err
	}
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("point buffer radius must be positive, got %v", radius)
	}
	return geom.Buffer(pt, radius, geom.DefaultBufferSegments), nil
}

func checkPoint(pt orb.Point) error {
	for _, v := range pt {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite coordinate %v", pt)
		}
	}
	if pt[0] < -180 || pt[0] > 180 || pt[1] < -90 || pt[1] > 90 {
		return fmt.Errorf("coordinate %v outside WGS84 range", pt)
	}
	return nil
}

// repairPolygon returns a cleaned copy of p. The exterior ring is made
// counter-clockwise and holes clockwise.
func repairPolygon(p orb.Polygon) (orb.Polygon, error) {
	if len(p) == 0 {
		return nil, errors.New("polygon has no rings")
	}

	out := make(orb.Polygon, 0, len(p))
	for i, r := range p {
		ring, err := repairRing(r)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("exterior ring: %w", err)
			}
			return nil, fmt.Errorf("hole %d: %w", i, err)
		}

		want := orb.CCW
		if i > 0 {
			want = orb.CW
		}
		if ring.Orientation() != want {
			ring.Reverse()
		}
		out = append(out, ring)
	}

	for i := 1; i < len(out); i++ {
		if geom.RingsCross(out[0], out[i]) {
			return nil, fmt.Errorf("hole %d touches the exterior ring", i)
		}
		if !planar.RingContains(out[0], out[i][0]) {
			return nil, fmt.Errorf("hole %d lies outside the exterior ring", i)
		}
	}

	return out, nil
}

func repairRing(r orb.Ring) (orb.Ring, error) {
	ring := make(orb.Ring, 0, len(r)+1)
	for _, pt := range r {
		if err := checkPoint(pt); err != nil {
			return nil, err
		}
		if len(ring) > 0 && ring[len(ring)-1].Equal(pt) {
			continue
		}
		ring = append(ring, pt)
	}

	if len(ring) > 0 && !ring[0].Equal(ring[len(ring)-1]) {
		ring = append(ring, ring[0])
	}

	if len(ring) < 4 {
		return nil, fmt.Errorf("ring has %d distinct positions, need at least 4 including closure", len(ring))
	}

	if planar.Area(ring) == 0 {
		return nil, errors.New("ring has zero area")
	}

	if geom.RingSelfIntersects(ring) {
		return nil, errors.New("ring is self-intersecting")
	}

	return ring, nil
}
