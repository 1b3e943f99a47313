package planet

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/robert-malhotra/planet-overlap/internal/scene"
)

// SearchResponse is a Data API search result page.
type SearchResponse struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
	Links    Links     `json:"_links"`
}

// Links carries the page's continuation URLs.
type Links struct {
	Self string `json:"_self"`
	Next string `json:"_next"`
}

// Feature is one Data API item.
type Feature struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

// Properties are the item properties the pipeline reads.
type Properties struct {
	ItemType        string    `json:"item_type"`
	Acquired        time.Time `json:"acquired"`
	CloudCover      *float64  `json:"cloud_cover"`
	SunElevation    *float64  `json:"sun_elevation"`
	SatelliteID     string    `json:"satellite_id"`
	ViewAngle       float64   `json:"view_angle"`
	GroundControl   bool      `json:"ground_control"`
	QualityCategory string    `json:"quality_category"`
	Instrument      string    `json:"instrument"`
}

// ToScene validates a feature and converts it to a scene. The raw property
// map is kept on the scene for output.
func (f Feature) ToScene() (scene.Scene, error) {
	if f.ID == "" {
		return scene.Scene{}, fmt.Errorf("%w: feature without id", scene.ErrInvalidRecord)
	}

	var props Properties
	if err := json.Unmarshal(f.Properties, &props); err != nil {
		return scene.Scene{}, fmt.Errorf("%w: %s: properties: %v", scene.ErrInvalidRecord, f.ID, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(f.Properties, &raw); err != nil {
		return scene.Scene{}, fmt.Errorf("%w: %s: properties: %v", scene.ErrInvalidRecord, f.ID, err)
	}

	if props.CloudCover == nil {
		return scene.Scene{}, fmt.Errorf("%w: %s: missing cloud_cover", scene.ErrInvalidRecord, f.ID)
	}
	if props.SunElevation == nil {
		return scene.Scene{}, fmt.Errorf("%w: %s: missing sun_elevation", scene.ErrInvalidRecord, f.ID)
	}

	footprint, err := scene.DecodeFootprint(f.Geometry)
	if err != nil {
		return scene.Scene{}, fmt.Errorf("%w: %s: %v", scene.ErrInvalidRecord, f.ID, err)
	}

	s := scene.Scene{
		ID:              f.ID,
		ItemType:        props.ItemType,
		Footprint:       footprint,
		Acquired:        props.Acquired.UTC(),
		CloudCover:      *props.CloudCover,
		SunElevation:    *props.SunElevation,
		SatelliteID:     props.SatelliteID,
		ViewAngle:       props.ViewAngle,
		GroundControl:   props.GroundControl,
		QualityCategory: props.QualityCategory,
		Instrument:      props.Instrument,
		Properties:      raw,
	}

	if err := s.Validate(); err != nil {
		return scene.Scene{}, err
	}
	return s, nil
}
