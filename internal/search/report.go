package search

import (
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/robert-malhotra/planet-overlap/internal/executor"
	"github.com/robert-malhotra/planet-overlap/internal/scene"
)

// Report is the result of a search run.
type Report struct {
	ID         string                       `json:"id"`
	Backend    string                       `json:"backend"`
	StartDate  string                       `json:"start_date"`
	EndDate    string                       `json:"end_date"`
	BBox       [4]float64                   `json:"bbox"`
	Partitions int                          `json:"partitions"`
	Completed  int                          `json:"completed_partitions"`
	Failed     []executor.FailureDescriptor `json:"failed_partitions"`
	Stats      Stats                        `json:"stats"`
	StartedAt  time.Time                    `json:"started_at"`
	FinishedAt time.Time                    `json:"finished_at"`

	// Scenes are ordered by acquisition and carry derived fields.
	Scenes []scene.Scene `json:"-"`
}

// Stats summarizes the scenes and the work done to collect them.
type Stats struct {
	Scenes          int        `json:"scenes"`
	Overlapping     int        `json:"overlapping_scenes"`
	Pages           int        `json:"pages"`
	Retries         int        `json:"retries"`
	Skipped         int        `json:"skipped_records"`
	Rejected        int        `json:"rejected_records"`
	Duplicates      int        `json:"duplicates"`
	QualityRejected int        `json:"quality_rejected"`
	FirstAcquired   *time.Time `json:"first_acquired,omitempty"`
	LastAcquired    *time.Time `json:"last_acquired,omitempty"`
	MeanCloudCover  float64    `json:"mean_cloud_cover"`
	MeanSunAngle    float64    `json:"mean_sun_angle"`
}

// Partial reports whether any partition failed.
func (r *Report) Partial() bool {
	return len(r.Failed) > 0
}

// FeatureCollection renders the scenes with derived properties.
func (r *Report) FeatureCollection() *geojson.FeatureCollection {
	return scene.FeatureCollection(r.Scenes)
}

// Properties returns each scene's raw catalog properties tagged with its id.
func (r *Report) Properties() []map[string]any {
	out := make([]map[string]any, 0, len(r.Scenes))
	for _, s := range r.Scenes {
		props := make(map[string]any, len(s.Properties)+1)
		for k, v := range s.Properties {
			props[k] = v
		}
		props["id"] = s.ID
		out = append(out, props)
	}
	return out
}

func summarize(scenes []scene.Scene) Stats {
	st := Stats{Scenes: len(scenes)}
	if len(scenes) == 0 {
		return st
	}

	first, last := scenes[0].Acquired, scenes[0].Acquired
	var cloud, sun float64
	for _, s := range scenes {
		if s.Acquired.Before(first) {
			first = s.Acquired
		}
		if s.Acquired.After(last) {
			last = s.Acquired
		}
		cloud += s.CloudCover
		sun += s.SunAngle()
		if s.Derived != nil && s.Derived.OverlapCount > 0 {
			st.Overlapping++
		}
	}

	n := float64(len(scenes))
	st.FirstAcquired = &first
	st.LastAcquired = &last
	st.MeanCloudCover = cloud / n
	st.MeanSunAngle = sun / n
	return st
}
