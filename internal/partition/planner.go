// Package partition splits a search into spatial tiles and date chunks small
// enough for a single catalog query.
package partition

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"

	"github.com/robert-malhotra/planet-overlap/internal/aoi"
)

const (
	// DefaultTileSize is the tile edge in degrees.
	DefaultTileSize = 1.0

	// DefaultDateThresholdDays is the longest date span queried in one request.
	DefaultDateThresholdDays = 30

	// minTileArea drops slivers produced where the AOI only touches a tile edge.
	minTileArea = 1e-12

	// gridSlack absorbs floating point noise in width/tile ratios.
	gridSlack = 1e-9
)

// Tile is one cell of the spatial grid clipped to the AOI.
type Tile struct {
	Row      int
	Col      int
	Bound    orb.Bound
	Geometry orb.MultiPolygon
}

// Partition is one unit of query work: a tile over a date chunk.
type Partition struct {
	Index int
	Tile  Tile
	Chunk int
	Dates DateRange
}

func (p Partition) String() string {
	return fmt.Sprintf("partition %d (tile r%d c%d, %s)", p.Index, p.Tile.Row, p.Tile.Col, p.Dates)
}

// WKT renders the partition's query geometry for failure manifests.
func (p Partition) WKT() string {
	if len(p.Tile.Geometry) == 1 {
		return wkt.MarshalString(p.Tile.Geometry[0])
	}
	return wkt.MarshalString(p.Tile.Geometry)
}

// Planner turns an AOI and a date range into partitions.
type Planner struct {
	TileSize          float64
	DateThresholdDays int

	// PointDateThresholdDays, when positive, replaces DateThresholdDays for
	// AOIs built only from points. Small areas return few scenes per day so
	// longer spans fit in one query.
	PointDateThresholdDays int
}

// NewPlanner returns a planner with the default thresholds.
func NewPlanner() *Planner {
	return &Planner{
		TileSize:          DefaultTileSize,
		DateThresholdDays: DefaultDateThresholdDays,
	}
}

// Plan returns the cross product of tiles and date chunks, ordered row-major
// over the grid and chronologically within each tile.
func (p *Planner) Plan(a *aoi.AreaOfInterest, dates DateRange) []Partition {
	tiles := p.Tiles(a)

	threshold := p.DateThresholdDays
	if a.PointsOnly() && p.PointDateThresholdDays > 0 {
		threshold = p.PointDateThresholdDays
	}
	chunks := dates.Split(threshold)

	out := make([]Partition, 0, len(tiles)*len(chunks))
	for _, t := range tiles {
		for c, dr := range chunks {
			out = append(out, Partition{
				Index: len(out),
				Tile:  t,
				Chunk: c,
				Dates: dr,
			})
		}
	}
	return out
}

// Tiles grids the AOI bounding box when either side exceeds the tile size
// and clips every cell to the AOI. Cells that do not overlap the AOI are
// dropped. Rows run south to north, columns west to east.
func (p *Planner) Tiles(a *aoi.AreaOfInterest) []Tile {
	size := p.TileSize
	if !(size > 0) {
		size = DefaultTileSize
	}

	b := a.Bound()
	width := b.Max[0] - b.Min[0]
	height := b.Max[1] - b.Min[1]

	if width <= size && height <= size {
		return []Tile{{Bound: b, Geometry: a.MultiPolygon()}}
	}

	rows := cells(height, size)
	cols := cells(width, size)
	polys := a.Polygons()

	var tiles []Tile
	for r := 0; r < rows; r++ {
		minY := b.Min[1] + float64(r)*size
		maxY := math.Min(minY+size, b.Max[1])
		if r == rows-1 {
			maxY = b.Max[1]
		}

		for c := 0; c < cols; c++ {
			minX := b.Min[0] + float64(c)*size
			maxX := math.Min(minX+size, b.Max[0])
			if c == cols-1 {
				maxX = b.Max[0]
			}

			cell := orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
			clipped := clipTo(cell, polys)
			if len(clipped) == 0 {
				continue
			}

			tiles = append(tiles, Tile{Row: r, Col: c, Bound: cell, Geometry: clipped})
		}
	}
	return tiles
}

func cells(extent, size float64) int {
	n := int(math.Ceil(extent/size - gridSlack))
	if n < 1 {
		n = 1
	}
	return n
}

func clipTo(cell orb.Bound, polys []orb.Polygon) orb.MultiPolygon {
	var out orb.MultiPolygon
	for _, poly := range polys {
		if !poly.Bound().Intersects(cell) {
			continue
		}
		// clip works in place, so hand it a copy
		piece := clip.Polygon(cell, poly.Clone())
		if len(piece) == 0 || planar.Area(piece) <= minTileArea {
			continue
		}
		out = append(out, piece)
	}
	return out
}
