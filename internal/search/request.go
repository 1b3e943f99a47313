package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/robert-malhotra/planet-overlap/internal/aoi"
	"github.com/robert-malhotra/planet-overlap/internal/config"
	"github.com/robert-malhotra/planet-overlap/internal/executor"
	"github.com/robert-malhotra/planet-overlap/internal/filter"
	"github.com/robert-malhotra/planet-overlap/internal/partition"
	"github.com/robert-malhotra/planet-overlap/internal/scene"
)

// ErrInvalidRequest wraps every validation failure detected before any query.
var ErrInvalidRequest = errors.New("invalid search request")

// Request describes one search. Nil thresholds fall back to configuration.
type Request struct {
	AOI           json.RawMessage `json:"aoi"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	MaxCloudCover *float64        `json:"max_cloud_cover,omitempty"`
	MinSunAngle   *float64        `json:"min_sun_angle,omitempty"`
	ItemTypes     []string        `json:"item_types,omitempty"`
}

// Plan is a validated request broken into partition jobs.
type Plan struct {
	AOI     *aoi.AreaOfInterest
	Dates   partition.DateRange
	Quality filter.QualityFilter
	Jobs    []executor.Job
}

// Partitions returns the planned partitions in order.
func (p *Plan) Partitions() []partition.Partition {
	out := make([]partition.Partition, len(p.Jobs))
	for i, j := range p.Jobs {
		out[i] = j.Partition
	}
	return out
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

// Prepare validates req against cfg and plans its partitions. Every error it
// returns wraps ErrInvalidRequest.
func Prepare(req Request, cfg config.SearchConfig) (*Plan, error) {
	if len(req.AOI) == 0 {
		return nil, invalid(errors.New("aoi is required"))
	}

	geoms, err := aoi.Decode(req.AOI)
	if err != nil {
		return nil, invalid(err)
	}
	area, err := aoi.Normalize(geoms, cfg.PointBufferDegrees)
	if err != nil {
		return nil, invalid(err)
	}

	dates, err := partition.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, invalid(err)
	}

	maxCloud, minSun := cfg.MaxCloudCover, cfg.MinSunAngle
	if req.MaxCloudCover != nil {
		maxCloud = *req.MaxCloudCover
	}
	if req.MinSunAngle != nil {
		minSun = *req.MinSunAngle
	}
	q, err := filter.NewQualityFilter(maxCloud, minSun)
	if err != nil {
		return nil, invalid(err)
	}

	itemTypes := req.ItemTypes
	if len(itemTypes) == 0 {
		itemTypes = cfg.ItemTypes
	} else if err := filter.CheckItemTypes(itemTypes, allowedItemTypes(cfg)); err != nil {
		return nil, invalid(err)
	}

	planner := &partition.Planner{
		TileSize:               cfg.TileSizeDegrees,
		DateThresholdDays:      cfg.DateThresholdDays,
		PointDateThresholdDays: cfg.PointDateThresholdDays,
	}
	parts := planner.Plan(area, dates)

	jobs := make([]executor.Job, 0, len(parts))
	for _, p := range parts {
		pred, err := filter.Build(q, p, itemTypes)
		if err != nil {
			return nil, invalid(err)
		}
		jobs = append(jobs, executor.Job{Partition: p, Predicate: pred})
	}

	return &Plan{AOI: area, Dates: dates, Quality: q, Jobs: jobs}, nil
}

// allowedItemTypes is the Planet item type set plus whatever the deployment
// configures, which for STAC backends are collection IDs.
func allowedItemTypes(cfg config.SearchConfig) []string {
	allowed := slices.Clone(scene.DefaultItemTypes)
	for _, t := range cfg.ItemTypes {
		if !slices.Contains(allowed, t) {
			allowed = append(allowed, t)
		}
	}
	return allowed
}
