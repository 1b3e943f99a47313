package filter

import (
	"github.com/paulmach/orb/geojson"
	"github.com/planetlabs/go-ogc/filter"
)

// STAC property names used in CQL2 predicates.
const (
	PropertyGeometry     = "geometry"
	PropertyDatetime     = "datetime"
	PropertyCloudCover   = "eo:cloud_cover"
	PropertySunElevation = "view:sun_elevation"
	PropertyItemType     = "pl:item_type"
)

// CQL2 encodes the predicate as a CQL2-JSON filter for STAC API search.
// eo:cloud_cover is a percentage in STAC, so the fraction is scaled.
func (p *Predicate) CQL2() *filter.Filter {
	items := make([]filter.ScalarExpression, 0, len(p.ItemTypes))
	for _, t := range p.ItemTypes {
		items = append(items, &filter.String{Value: t})
	}

	return &filter.Filter{
		Expression: &filter.And{
			Args: []filter.BooleanExpression{
				&filter.SpatialComparison{
					Name:  filter.GeometryIntersects,
					Left:  &filter.Property{Name: PropertyGeometry},
					Right: &filter.Geometry{Value: geojson.NewGeometry(p.QueryGeometry())},
				},
				&filter.TemporalComparison{
					Name: filter.TimeIntersects,
					Left: &filter.Property{Name: PropertyDatetime},
					Right: &filter.Interval{
						Start: &filter.Timestamp{Value: p.Dates.QueryStart()},
						End:   &filter.Timestamp{Value: p.Dates.QueryEnd()},
					},
				},
				&filter.Comparison{
					Name:  filter.LessThanOrEquals,
					Left:  &filter.Property{Name: PropertyCloudCover},
					Right: &filter.Number{Value: p.MaxCloudCover * 100},
				},
				&filter.Comparison{
					Name:  filter.GreaterThanOrEquals,
					Left:  &filter.Property{Name: PropertySunElevation},
					Right: &filter.Number{Value: p.MinSunElevation},
				},
				&filter.In{
					Item: &filter.Property{Name: PropertyItemType},
					List: items,
				},
			},
		},
	}
}
