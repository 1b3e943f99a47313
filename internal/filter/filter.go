// Package filter builds the per-partition search predicate and encodes it
// for each catalog dialect.
package filter

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"

	"github.com/robert-malhotra/planet-overlap/internal/partition"
	"github.com/robert-malhotra/planet-overlap/internal/scene"
	"github.com/robert-malhotra/planet-overlap/pkg/geom"
)

// ErrValidation is the sentinel every ValidationError unwraps to.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a quality threshold outside its allowed range.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ItemTypeError reports a requested item type the service does not query.
type ItemTypeError struct {
	Value   string
	Allowed []string
}

func (e *ItemTypeError) Error() string {
	return fmt.Sprintf("invalid item_type %q: must be one of %v", e.Value, e.Allowed)
}

func (e *ItemTypeError) Unwrap() error {
	return ErrValidation
}

// CheckItemTypes rejects any requested type missing from allowed.
func CheckItemTypes(requested, allowed []string) error {
	for _, t := range requested {
		if !slices.Contains(allowed, t) {
			return &ItemTypeError{Value: t, Allowed: allowed}
		}
	}
	return nil
}

// QualityFilter holds the user's scene quality thresholds.
type QualityFilter struct {
	// MaxCloudCover is the largest accepted cloud fraction, in [0, 1].
	MaxCloudCover float64
	// MinSunAngle is the lowest accepted sun elevation in degrees, in [0, 90].
	MinSunAngle float64
}

// NewQualityFilter validates both thresholds. Out-of-range values are
// rejected, never clamped.
func NewQualityFilter(maxCloudCover, minSunAngle float64) (QualityFilter, error) {
	q := QualityFilter{MaxCloudCover: maxCloudCover, MinSunAngle: minSunAngle}
	if err := q.Validate(); err != nil {
		return QualityFilter{}, err
	}
	return q, nil
}

// Validate checks both thresholds.
func (q QualityFilter) Validate() error {
	if math.IsNaN(q.MaxCloudCover) || q.MaxCloudCover < 0 || q.MaxCloudCover > 1 {
		return &ValidationError{Field: "max_cloud_cover", Value: q.MaxCloudCover, Reason: "must be within [0, 1]"}
	}
	if math.IsNaN(q.MinSunAngle) || q.MinSunAngle < 0 || q.MinSunAngle > 90 {
		return &ValidationError{Field: "min_sun_angle", Value: q.MinSunAngle, Reason: "must be within [0, 90]"}
	}
	return nil
}

// Predicate is the conjunction sent to the catalog for one partition.
type Predicate struct {
	Geometry        orb.MultiPolygon
	Dates           partition.DateRange
	MaxCloudCover   float64
	MinSunElevation float64
	ItemTypes       []string
}

// Build returns the predicate for partition p. The quality filter is
// re-validated so a hand-built QualityFilter cannot slip through.
func Build(q QualityFilter, p partition.Partition, itemTypes []string) (*Predicate, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if len(p.Tile.Geometry) == 0 {
		return nil, fmt.Errorf("%s has no geometry", p)
	}
	if len(itemTypes) == 0 {
		itemTypes = scene.DefaultItemTypes
	}

	return &Predicate{
		Geometry:        p.Tile.Geometry,
		Dates:           p.Dates,
		MaxCloudCover:   q.MaxCloudCover,
		MinSunElevation: q.MinSunAngle,
		ItemTypes:       slices.Clone(itemTypes),
	}, nil
}

// QueryGeometry is the geometry in the simplest GeoJSON form: a Polygon
// when the tile holds one piece, a MultiPolygon otherwise.
func (p *Predicate) QueryGeometry() orb.Geometry {
	if len(p.Geometry) == 1 {
		return p.Geometry[0]
	}
	return p.Geometry
}

// Matches evaluates the predicate against a scene locally.
func (p *Predicate) Matches(s scene.Scene) bool {
	if !slices.Contains(p.ItemTypes, s.ItemType) {
		return false
	}
	if !p.Dates.Contains(s.Acquired) {
		return false
	}
	if s.CloudCover > p.MaxCloudCover {
		return false
	}
	if s.SunElevation < p.MinSunElevation {
		return false
	}
	for _, poly := range p.Geometry {
		if geom.PolygonsIntersect(poly, s.Footprint) {
			return true
		}
	}
	return false
}
