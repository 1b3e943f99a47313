// Package scene defines the normalized imagery record shared by every catalog backend.
package scene

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Item types understood by the pipeline.
const (
	ItemTypePSScene     = "PSScene"
	ItemTypeSkySatScene = "SkySatScene"
)

// DefaultItemTypes are queried when a request does not name any.
var DefaultItemTypes = []string{ItemTypePSScene, ItemTypeSkySatScene}

// ErrInvalidRecord marks catalog records that fail schema validation.
var ErrInvalidRecord = errors.New("invalid scene record")

// Key identifies a scene across partitions.
type Key struct {
	ID       string
	ItemType string
}

func (k Key) String() string {
	return k.ItemType + "/" + k.ID
}

// Scene is an imagery metadata record. Footprint is a single valid polygon
// in WGS84 degrees. CloudCover is a fraction in [0, 1].
type Scene struct {
	ID           string
	ItemType     string
	Footprint    orb.Polygon
	Acquired     time.Time
	CloudCover   float64
	SunElevation float64
	SatelliteID  string
	ViewAngle    float64

	// Optional fields used by the quality screen.
	GroundControl   bool
	QualityCategory string
	Instrument      string

	// Properties keeps the catalog's raw property map for output.
	Properties map[string]any

	// Derived is nil until the overlap analyzer runs.
	Derived *Derived
}

// Derived holds values computed once after merging.
type Derived struct {
	SunAngle     float64
	CentralLon   float64
	CentralLat   float64
	LocalTime    time.Time
	LocalHours   float64
	MaxSunDiff   float64
	OverlapCount int
}

// Key returns the deduplication key.
func (s Scene) Key() Key {
	return Key{ID: s.ID, ItemType: s.ItemType}
}

// SunAngle is the angle between the sun and the zenith in degrees.
func (s Scene) SunAngle() float64 {
	return 90 - s.SunElevation
}

// WithDerived returns a copy carrying d.
func (s Scene) WithDerived(d Derived) Scene {
	s.Derived = &d
	return s
}

// Validate checks the fields every backend must supply.
func (s Scene) Validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	case s.ItemType == "":
		return fmt.Errorf("%w: %s: missing item type", ErrInvalidRecord, s.ID)
	case len(s.Footprint) == 0 || len(s.Footprint[0]) < 4:
		return fmt.Errorf("%w: %s: footprint must be a polygon with at least 4 positions", ErrInvalidRecord, s.ID)
	case s.Acquired.IsZero():
		return fmt.Errorf("%w: %s: missing acquisition time", ErrInvalidRecord, s.ID)
	case math.IsNaN(s.CloudCover) || s.CloudCover < 0 || s.CloudCover > 1:
		return fmt.Errorf("%w: %s: cloud cover %v outside [0, 1]", ErrInvalidRecord, s.ID, s.CloudCover)
	case math.IsNaN(s.SunElevation) || s.SunElevation < -90 || s.SunElevation > 90:
		return fmt.Errorf("%w: %s: sun elevation %v outside [-90, 90]", ErrInvalidRecord, s.ID, s.SunElevation)
	}
	return nil
}

// Feature renders the scene as a GeoJSON feature. Raw catalog properties are
// kept and the normalized and derived fields are written over them.
func (s Scene) Feature() *geojson.Feature {
	f := geojson.NewFeature(s.Footprint)
	f.ID = s.ID

	for k, v := range s.Properties {
		f.Properties[k] = v
	}

	f.Properties["id"] = s.ID
	f.Properties["item_type"] = s.ItemType
	f.Properties["acquired"] = s.Acquired.UTC().Format(time.RFC3339Nano)
	f.Properties["cloud_cover"] = s.CloudCover
	f.Properties["sun_elevation"] = s.SunElevation
	if s.SatelliteID != "" {
		f.Properties["satellite_id"] = s.SatelliteID
	}
	f.Properties["view_angle"] = s.ViewAngle

	if d := s.Derived; d != nil {
		f.Properties["sun_angle"] = d.SunAngle
		f.Properties["central_lon"] = d.CentralLon
		f.Properties["central_lat"] = d.CentralLat
		f.Properties["local_time"] = d.LocalTime.Format("2006-01-02T15:04:05")
		f.Properties["local_hours"] = d.LocalHours
		f.Properties["max_sun_diff"] = d.MaxSunDiff
		f.Properties["overlap_count"] = d.OverlapCount
	}

	return f
}

// FeatureCollection renders scenes in order.
func FeatureCollection(scenes []Scene) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range scenes {
		fc.Append(s.Feature())
	}
	return fc
}

// DecodeFootprint reads a GeoJSON geometry that must be a Polygon or a
// MultiPolygon with exactly one member.
func DecodeFootprint(data []byte) (orb.Polygon, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, errors.New("missing geometry")
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("geometry: %v", err)
	}

	switch v := g.Geometry().(type) {
	case nil:
		return nil, errors.New("missing geometry")
	case orb.Polygon:
		return v, nil
	case orb.MultiPolygon:
		if len(v) == 1 {
			return v[0], nil
		}
		return nil, fmt.Errorf("multipolygon footprint with %d members", len(v))
	default:
		return nil, fmt.Errorf("unsupported footprint type %s", v.GeoJSONType())
	}
}
