package stacapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gostac "github.com/planetlabs/go-stac"
	ogcfilter "github.com/planetlabs/go-ogc/filter"

	"github.com/robert-malhotra/planet-overlap/internal/scene"
)

// SearchRequest is the body of a STAC API POST /search.
type SearchRequest struct {
	Collections []string          `json:"collections,omitempty"`
	Limit       int               `json:"limit"`
	FilterLang  string            `json:"filter-lang"`
	Filter      *ogcfilter.Filter `json:"filter"`
}

// ItemCollection is a STAC search response page.
type ItemCollection struct {
	Type           string          `json:"type"`
	Features       []*gostac.Item  `json:"features"`
	Links          []*Link         `json:"links"`
	NumberMatched  *int            `json:"numberMatched,omitempty"`
	NumberReturned int             `json:"numberReturned"`
}

// Link is a STAC API link. Paging links may carry a method and a body.
type Link struct {
	Href   string          `json:"href"`
	Rel    string          `json:"rel"`
	Type   string          `json:"type,omitempty"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// NextLink returns the rel=next link, or nil on the last page.
func (ic *ItemCollection) NextLink() *Link {
	for _, l := range ic.Links {
		if l != nil && l.Rel == "next" && l.Href != "" {
			return l
		}
	}
	return nil
}

// EncodeCursor encodes a next link as a URL-safe opaque cursor.
func EncodeCursor(link *Link) string {
	if link == nil {
		return ""
	}
	data, err := json.Marshal(link)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cursor string) (*Link, error) {
	data, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}
	var link Link
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}
	if link.Href == "" {
		return nil, fmt.Errorf("cursor has no href")
	}
	return &link, nil
}

// ItemToScene validates a STAC item and converts it to a scene.
// eo:cloud_cover is a percentage and is scaled to a fraction.
func ItemToScene(item *gostac.Item) (scene.Scene, error) {
	if item == nil || item.Id == "" {
		return scene.Scene{}, fmt.Errorf("%w: item without id", scene.ErrInvalidRecord)
	}
	props := item.Properties

	geomJSON, err := json.Marshal(item.Geometry)
	if err != nil {
		return scene.Scene{}, fmt.Errorf("%w: %s: geometry: %v", scene.ErrInvalidRecord, item.Id, err)
	}
	footprint, err := scene.DecodeFootprint(geomJSON)
	if err != nil {
		return scene.Scene{}, fmt.Errorf("%w: %s: %v", scene.ErrInvalidRecord, item.Id, err)
	}

	acquired, err := parseTime(props["datetime"])
	if err != nil {
		return scene.Scene{}, fmt.Errorf("%w: %s: datetime: %v", scene.ErrInvalidRecord, item.Id, err)
	}

	cloud, ok := number(props["eo:cloud_cover"])
	if ok {
		cloud /= 100
	} else if cloud, ok = number(props["cloud_cover"]); !ok {
		return scene.Scene{}, fmt.Errorf("%w: %s: missing eo:cloud_cover", scene.ErrInvalidRecord, item.Id)
	}

	elevation, ok := number(props["view:sun_elevation"])
	if !ok {
		if elevation, ok = number(props["sun_elevation"]); !ok {
			return scene.Scene{}, fmt.Errorf("%w: %s: missing view:sun_elevation", scene.ErrInvalidRecord, item.Id)
		}
	}

	itemType, _ := props["pl:item_type"].(string)
	if itemType == "" {
		itemType = item.Collection
	}

	s := scene.Scene{
		ID:           item.Id,
		ItemType:     itemType,
		Footprint:    footprint,
		Acquired:     acquired,
		CloudCover:   cloud,
		SunElevation: elevation,
		Properties:   props,
	}

	if v, ok := props["platform"].(string); ok {
		s.SatelliteID = v
	}
	if v, ok := number(props["view:off_nadir"]); ok {
		s.ViewAngle = v
	}
	if v, ok := props["pl:ground_control"].(bool); ok {
		s.GroundControl = v
	}
	if v, ok := props["pl:quality_category"].(string); ok {
		s.QualityCategory = v
	}
	if list, ok := props["instruments"].([]any); ok && len(list) > 0 {
		if v, ok := list[0].(string); ok {
			s.Instrument = v
		}
	}

	if err := s.Validate(); err != nil {
		return scene.Scene{}, err
	}
	return s, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func parseTime(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return time.Time{}, fmt.Errorf("missing")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
