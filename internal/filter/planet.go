package filter

import (
	"github.com/paulmach/orb/geojson"
)

// Planet Data API filter types.
const (
	PlanetAndFilter       = "AndFilter"
	PlanetGeometryFilter  = "GeometryFilter"
	PlanetDateRangeFilter = "DateRangeFilter"
	PlanetRangeFilter     = "RangeFilter"
)

// planetTimeLayout matches the millisecond precision the Data API expects.
const planetTimeLayout = "2006-01-02T15:04:05.000Z"

// AndFilter is a Data API conjunction.
type AndFilter struct {
	Type   string `json:"type"`
	Config []any  `json:"config"`
}

// GeometryFilter matches items whose footprint intersects Config.
type GeometryFilter struct {
	Type      string            `json:"type"`
	FieldName string            `json:"field_name"`
	Config    *geojson.Geometry `json:"config"`
}

// DateRange bounds a DateRangeFilter.
type DateRange struct {
	GTE string `json:"gte,omitempty"`
	LTE string `json:"lte,omitempty"`
}

// DateRangeFilter matches a timestamp field.
type DateRangeFilter struct {
	Type      string     `json:"type"`
	FieldName string     `json:"field_name"`
	Config    *DateRange `json:"config"`
}

// Range bounds a RangeFilter. Nil ends are open.
type Range struct {
	GTE *float64 `json:"gte,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

// RangeFilter matches a numeric field.
type RangeFilter struct {
	Type      string `json:"type"`
	FieldName string `json:"field_name"`
	Config    *Range `json:"config"`
}

// PlanetSearchRequest is the body of a Data API quick-search.
type PlanetSearchRequest struct {
	ItemTypes []string   `json:"item_types"`
	Filter    *AndFilter `json:"filter"`
}

// PlanetRequest encodes the predicate as a Data API quick-search body.
// Item types travel in the request envelope rather than the filter.
func (p *Predicate) PlanetRequest() *PlanetSearchRequest {
	maxCloud := p.MaxCloudCover
	minElevation := p.MinSunElevation

	return &PlanetSearchRequest{
		ItemTypes: p.ItemTypes,
		Filter: &AndFilter{
			Type: PlanetAndFilter,
			Config: []any{
				&GeometryFilter{
					Type:      PlanetGeometryFilter,
					FieldName: "geometry",
					Config:    geojson.NewGeometry(p.QueryGeometry()),
				},
				&DateRangeFilter{
					Type:      PlanetDateRangeFilter,
					FieldName: "acquired",
					Config: &DateRange{
						GTE: p.Dates.QueryStart().Format(planetTimeLayout),
						LTE: p.Dates.QueryEnd().Format(planetTimeLayout),
					},
				},
				&RangeFilter{
					Type:      PlanetRangeFilter,
					FieldName: "cloud_cover",
					Config:    &Range{LTE: &maxCloud},
				},
				&RangeFilter{
					Type:      PlanetRangeFilter,
					FieldName: "sun_elevation",
					Config:    &Range{GTE: &minElevation},
				},
			},
		},
	}
}
