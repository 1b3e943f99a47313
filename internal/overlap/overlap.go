// Package overlap derives per-scene values after merging, most notably the
// largest sun angle difference against any overlapping scene.
package overlap

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"

	"github.com/robert-malhotra/planet-overlap/internal/scene"
	"github.com/robert-malhotra/planet-overlap/pkg/geom"
)

// Analyzer computes derived fields for a merged scene set.
type Analyzer struct {
	// MaxTimeDelta, when positive, only pairs scenes acquired at most this
	// far apart. Zero compares every spatially overlapping pair.
	MaxTimeDelta time.Duration
}

// indexed is a quadtree entry: a scene's bound centre.
type indexed struct {
	idx    int
	center orb.Point
}

func (p indexed) Point() orb.Point { return p.center }

// Analyze returns copies of scenes, in the same order, with Derived set.
// A scene that overlaps nothing gets MaxSunDiff 0 and OverlapCount 0.
func (a Analyzer) Analyze(scenes []scene.Scene) []scene.Scene {
	n := len(scenes)
	derived := make([]scene.Derived, n)
	bounds := make([]orb.Bound, n)

	for i, s := range scenes {
		derived[i] = baseDerived(s)
		bounds[i] = s.Footprint.Bound()
	}

	for _, pair := range a.candidatePairs(bounds) {
		i, j := pair[0], pair[1]
		if !a.withinTime(scenes[i], scenes[j]) {
			continue
		}
		if !geom.PolygonsIntersect(scenes[i].Footprint, scenes[j].Footprint) {
			continue
		}
		diff := math.Abs(derived[i].SunAngle - derived[j].SunAngle)
		for _, k := range [2]int{i, j} {
			derived[k].OverlapCount++
			if diff > derived[k].MaxSunDiff {
				derived[k].MaxSunDiff = diff
			}
		}
	}

	out := make([]scene.Scene, n)
	for i, s := range scenes {
		out[i] = s.WithDerived(derived[i])
	}
	return out
}

// candidatePairs returns each unordered pair (i < j) whose bounds intersect.
// Bound centres are indexed in a quadtree; any bound that intersects bound i
// has its centre inside bound i padded by the largest half-extent.
func (a Analyzer) candidatePairs(bounds []orb.Bound) [][2]int {
	if len(bounds) < 2 {
		return nil
	}

	extent := bounds[0]
	maxHalf := 0.0
	for _, b := range bounds {
		extent = extent.Union(b)
		maxHalf = math.Max(maxHalf, math.Max(b.Right()-b.Left(), b.Top()-b.Bottom())/2)
	}

	qt := quadtree.New(extent.Pad(1e-9))
	for i, b := range bounds {
		// Centres lie inside the padded extent, so Add cannot fail.
		_ = qt.Add(indexed{idx: i, center: b.Center()})
	}

	var pairs [][2]int
	var buf []orb.Pointer
	for i, b := range bounds {
		buf = qt.InBound(buf[:0], b.Pad(maxHalf))
		for _, p := range buf {
			j := p.(indexed).idx
			if j <= i || !b.Intersects(bounds[j]) {
				continue
			}
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}

func (a Analyzer) withinTime(s, t scene.Scene) bool {
	if a.MaxTimeDelta <= 0 {
		return true
	}
	d := s.Acquired.Sub(t.Acquired)
	if d < 0 {
		d = -d
	}
	return d <= a.MaxTimeDelta
}

func baseDerived(s scene.Scene) scene.Derived {
	center, _ := planar.CentroidArea(s.Footprint)
	if math.IsNaN(center[0]) || math.IsNaN(center[1]) {
		center = s.Footprint.Bound().Center()
	}

	local := s.Acquired.UTC().Add(time.Duration(center[0] / 15 * float64(time.Hour)))
	return scene.Derived{
		SunAngle:   s.SunAngle(),
		CentralLon: center[0],
		CentralLat: center[1],
		LocalTime:  local,
		LocalHours: float64(local.Hour()) + float64(local.Minute())/60 +
			(float64(local.Second())+float64(local.Nanosecond())/1e9)/3600,
	}
}
