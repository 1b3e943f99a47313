package aoi

import (
	"math"

	polyclip "github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/robert-malhotra/planet-overlap/pkg/geom"
)

// dissolve replaces every group of intersecting polygons with their union so
// the members of an AreaOfInterest are pairwise disjoint. Polygons that meet
// no other member are returned as they are.
func dissolve(polys []orb.Polygon) []orb.Polygon {
	if len(polys) < 2 {
		return polys
	}

	parent := make([]int, len(polys))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	merged := false
	for i := range polys {
		bi := polys[i].Bound()
		for j := i + 1; j < len(polys); j++ {
			if !bi.Intersects(polys[j].Bound()) || !geom.PolygonsIntersect(polys[i], polys[j]) {
				continue
			}
			if ri, rj := find(i), find(j); ri != rj {
				parent[rj] = ri
				merged = true
			}
		}
	}
	if !merged {
		return polys
	}

	groups := make(map[int][]int)
	var roots []int
	for i := range polys {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	out := make([]orb.Polygon, 0, len(roots))
	for _, r := range roots {
		members := groups[r]
		if len(members) == 1 {
			out = append(out, polys[members[0]])
			continue
		}

		acc := toClip(polys[members[0]])
		for _, m := range members[1:] {
			acc = acc.Construct(polyclip.UNION, toClip(polys[m]))
		}
		out = append(out, fromClip(acc)...)
	}
	return out
}

// toClip drops the closing position of each ring; polyclip contours are
// implicitly closed.
func toClip(p orb.Polygon) polyclip.Polygon {
	out := make(polyclip.Polygon, 0, len(p))
	for _, r := range p {
		c := make(polyclip.Contour, 0, len(r))
		for _, pt := range r[:len(r)-1] {
			c = append(c, polyclip.Point{X: pt[0], Y: pt[1]})
		}
		out = append(out, c)
	}
	return out
}

// fromClip rebuilds polygons from clipper output, which does not say which
// contours are holes. A contour nested inside an odd number of others is a
// hole of the smallest shell around it.
func fromClip(p polyclip.Polygon) []orb.Polygon {
	var rings []orb.Ring
	for _, c := range p {
		if len(c) < 3 {
			continue
		}
		r := make(orb.Ring, 0, len(c)+1)
		for _, pt := range c {
			r = append(r, orb.Point{pt.X, pt.Y})
		}
		r = append(r, r[0])
		if planar.Area(r) == 0 {
			continue
		}
		rings = append(rings, r)
	}

	// an edge midpoint stays clear of shared vertices
	samples := make([]orb.Point, len(rings))
	depth := make([]int, len(rings))
	for i, r := range rings {
		samples[i] = orb.Point{(r[0][0] + r[1][0]) / 2, (r[0][1] + r[1][1]) / 2}
	}
	for i := range rings {
		for j, o := range rings {
			if i != j && o.Bound().Contains(samples[i]) && planar.RingContains(o, samples[i]) {
				depth[i]++
			}
		}
	}

	var out []orb.Polygon
	shellOf := make(map[int]int)
	for i, r := range rings {
		if depth[i]%2 != 0 {
			continue
		}
		if r.Orientation() != orb.CCW {
			r.Reverse()
		}
		shellOf[i] = len(out)
		out = append(out, orb.Polygon{r})
	}

	for i, r := range rings {
		if depth[i]%2 == 0 {
			continue
		}
		best, bestArea := -1, math.Inf(1)
		for j := range shellOf {
			area := math.Abs(planar.Area(rings[j]))
			if area < bestArea && planar.RingContains(rings[j], samples[i]) {
				best, bestArea = j, area
			}
		}
		if best < 0 {
			continue
		}
		if r.Orientation() != orb.CW {
			r.Reverse()
		}
		out[shellOf[best]] = append(out[shellOf[best]], r)
	}
	return out
}
