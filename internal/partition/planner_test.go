package partition

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/robert-malhotra/planet-overlap/internal/aoi"
)

func mustAOI(t *testing.T, geoms ...orb.Geometry) *aoi.AreaOfInterest {
	t.Helper()
	a, err := aoi.Normalize(geoms, 0.001)
	if err != nil {
		t.Fatalf("aoi.Normalize() error: %v", err)
	}
	return a
}

func mustDates(t *testing.T, start, end string) DateRange {
	t.Helper()
	dr, err := ParseDateRange(start, end)
	if err != nil {
		t.Fatalf("ParseDateRange() error: %v", err)
	}
	return dr
}

func box(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon()
}

func TestPlanTwoByTwoDegrees(t *testing.T) {
	a := mustAOI(t, box(10, 20, 12, 22))
	dates := mustDates(t, "2023-01-01", "2023-02-15")

	planner := NewPlanner()
	parts := planner.Plan(a, dates)

	if len(parts) != 8 {
		t.Fatalf("expected 8 partitions, got %d", len(parts))
	}

	tiles := planner.Tiles(a)
	if len(tiles) != 4 {
		t.Fatalf("expected 4 tiles, got %d", len(tiles))
	}

	chunks := dates.Split(DefaultDateThresholdDays)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 date chunks, got %d", len(chunks))
	}
	if chunks[0].Days() != 30 || chunks[1].Days() != 16 {
		t.Errorf("expected chunk lengths 30 and 16, got %d and %d", chunks[0].Days(), chunks[1].Days())
	}

	// row-major over tiles, chronological within each tile
	wantOrder := [][3]int{
		{0, 0, 0}, {0, 0, 1},
		{0, 1, 0}, {0, 1, 1},
		{1, 0, 0}, {1, 0, 1},
		{1, 1, 0}, {1, 1, 1},
	}
	for i, p := range parts {
		if p.Index != i {
			t.Errorf("partition %d has index %d", i, p.Index)
		}
		got := [3]int{p.Tile.Row, p.Tile.Col, p.Chunk}
		if got != wantOrder[i] {
			t.Errorf("partition %d = row/col/chunk %v, want %v", i, got, wantOrder[i])
		}
	}

	for _, tile := range tiles {
		if area := planar.Area(tile.Geometry); math.Abs(area-1) > 1e-9 {
			t.Errorf("tile r%d c%d area = %v, want 1", tile.Row, tile.Col, area)
		}
	}
}

func TestTilesCoverAOI(t *testing.T) {
	// an L-shaped, concave AOI spanning a 3x3 grid
	l := orb.Polygon{orb.Ring{{0, 0}, {3, 0}, {3, 1}, {1, 1}, {1, 3}, {0, 3}, {0, 0}}}
	a := mustAOI(t, l)

	tiles := (&Planner{TileSize: 1}).Tiles(a)

	var total float64
	for _, tile := range tiles {
		total += planar.Area(tile.Geometry)

		if !a.Bound().Intersects(tile.Bound) {
			t.Errorf("tile r%d c%d lies outside the AOI bound", tile.Row, tile.Col)
		}
	}

	if math.Abs(total-a.Area()) > 1e-9 {
		t.Errorf("union of tile areas = %v, want AOI area %v", total, a.Area())
	}

	// five cells of the 3x3 grid are covered, the other four are dropped
	if len(tiles) != 5 {
		t.Errorf("expected 5 non-empty tiles, got %d", len(tiles))
	}
}

func TestTilesDropNonIntersecting(t *testing.T) {
	// two small islands at opposite corners of a 3x3 degree bound
	a := mustAOI(t, orb.MultiPolygon{box(0, 0, 0.5, 0.5), box(2.5, 2.5, 3, 3)})

	tiles := (&Planner{TileSize: 1}).Tiles(a)
	if len(tiles) != 2 {
		t.Fatalf("expected 2 tiles, got %d", len(tiles))
	}
	if tiles[0].Row != 0 || tiles[0].Col != 0 || tiles[1].Row != 2 || tiles[1].Col != 2 {
		t.Errorf("unexpected tiles: r%d c%d, r%d c%d", tiles[0].Row, tiles[0].Col, tiles[1].Row, tiles[1].Col)
	}
}

func TestPlanSinglePartition(t *testing.T) {
	poly := box(5, 5, 5.4, 5.3)
	a := mustAOI(t, poly)
	dates := mustDates(t, "2023-03-01", "2023-03-20")

	parts := NewPlanner().Plan(a, dates)
	if len(parts) != 1 {
		t.Fatalf("expected 1 partition, got %d", len(parts))
	}

	p := parts[0]
	if p.Dates != dates {
		t.Errorf("expected dates %s, got %s", dates, p.Dates)
	}
	if p.Tile.Bound != a.Bound() {
		t.Errorf("expected tile bound %v, got %v", a.Bound(), p.Tile.Bound)
	}
	if math.Abs(planar.Area(p.Tile.Geometry)-a.Area()) > 1e-12 {
		t.Errorf("single tile geometry differs from AOI")
	}
}

func TestPlanOneDayNeverSplits(t *testing.T) {
	dates := mustDates(t, "2023-06-15", "2023-06-15")
	if got := dates.Days(); got != 1 {
		t.Fatalf("Days() = %d, want 1", got)
	}
	for _, threshold := range []int{1, 30, 365} {
		if n := len(dates.Split(threshold)); n != 1 {
			t.Errorf("threshold %d produced %d chunks", threshold, n)
		}
	}
}

func TestPlanPointThreshold(t *testing.T) {
	a := mustAOI(t, orb.Point{1, 1})
	dates := mustDates(t, "2022-01-01", "2022-12-31")

	p := &Planner{TileSize: 1, DateThresholdDays: 30}
	if n := len(p.Plan(a, dates)); n != 13 {
		t.Errorf("expected 13 partitions without point threshold, got %d", n)
	}

	p.PointDateThresholdDays = 1095
	if n := len(p.Plan(a, dates)); n != 1 {
		t.Errorf("expected 1 partition with point threshold, got %d", n)
	}
}

func TestSplitReconstructsRange(t *testing.T) {
	tests := []struct {
		start, end string
		threshold  int
		wantChunks int
	}{
		{"2023-01-01", "2023-01-30", 30, 1},
		{"2023-01-01", "2023-01-31", 30, 2},
		{"2023-01-01", "2023-02-15", 30, 2},
		{"2020-02-01", "2020-03-31", 30, 2},
		{"2023-01-01", "2023-12-31", 30, 13},
		{"2023-01-01", "2023-01-10", 3, 4},
	}

	for _, tt := range tests {
		t.Run(tt.start+"_"+tt.end, func(t *testing.T) {
			dr := mustDates(t, tt.start, tt.end)
			chunks := dr.Split(tt.threshold)

			if len(chunks) != tt.wantChunks {
				t.Fatalf("expected %d chunks, got %d", tt.wantChunks, len(chunks))
			}
			if !chunks[0].Start.Equal(dr.Start) || !chunks[len(chunks)-1].End.Equal(dr.End) {
				t.Errorf("chunks do not span %s", dr)
			}

			total := 0
			for i, c := range chunks {
				total += c.Days()
				if c.Days() > tt.threshold {
					t.Errorf("chunk %d has %d days, threshold %d", i, c.Days(), tt.threshold)
				}
				if i > 0 && !chunks[i-1].End.AddDate(0, 0, 1).Equal(c.Start) {
					t.Errorf("gap or overlap between chunk %d and %d", i-1, i)
				}
			}
			if total != dr.Days() {
				t.Errorf("chunks cover %d days, range has %d", total, dr.Days())
			}
		})
	}
}

func TestNewDateRange(t *testing.T) {
	_, err := ParseDateRange("2023-02-01", "2023-01-01")
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("expected ErrInvalidDateRange for reversed range, got %v", err)
	}

	_, err = ParseDateRange("2023-13-01", "2023-12-01")
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("expected ErrInvalidDateRange for bad month, got %v", err)
	}

	dr, err := NewDateRange(
		time.Date(2023, 1, 1, 18, 30, 0, 0, time.UTC),
		time.Date(2023, 1, 2, 3, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("NewDateRange() error: %v", err)
	}
	if dr.Days() != 2 {
		t.Errorf("expected 2 days, got %d", dr.Days())
	}
	if !dr.Contains(time.Date(2023, 1, 2, 23, 59, 59, 0, time.UTC)) {
		t.Error("expected last second of final day to be contained")
	}
	if dr.Contains(time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected the day after the range to be excluded")
	}
	if got := dr.QueryEnd().Format("2006-01-02T15:04:05.000Z"); got != "2023-01-02T23:59:59.999Z" {
		t.Errorf("QueryEnd() = %s", got)
	}
}

func TestPartitionWKT(t *testing.T) {
	a := mustAOI(t, box(0, 0, 0.5, 0.5))
	parts := NewPlanner().Plan(a, mustDates(t, "2023-01-01", "2023-01-02"))
	if got := parts[0].WKT(); !strings.HasPrefix(got, "POLYGON((") {
		t.Errorf("WKT() = %s, want POLYGON", got)
	}
}

func TestTilesClipOverlappingInputsOnce(t *testing.T) {
	a := mustAOI(t, box(0, 0, 1.5, 1.5), box(0.5, 0.5, 2, 2))

	if math.Abs(a.Area()-3.5) > 1e-9 {
		t.Fatalf("AOI area = %v, want the union area 3.5", a.Area())
	}

	tiles := (&Planner{TileSize: 1}).Tiles(a)
	if len(tiles) != 4 {
		t.Fatalf("expected 4 tiles, got %d", len(tiles))
	}

	var total float64
	for _, tile := range tiles {
		if len(tile.Geometry) != 1 {
			t.Errorf("tile r%d c%d has %d members, want 1", tile.Row, tile.Col, len(tile.Geometry))
		}
		total += planar.Area(tile.Geometry)
	}
	if math.Abs(total-3.5) > 1e-9 {
		t.Errorf("sum of tile areas = %v, want 3.5", total)
	}
}

func TestPlanNearbyPointsSingleMember(t *testing.T) {
	a := mustAOI(t, orb.MultiPoint{{10, 10}, {10.0005, 10}})
	parts := NewPlanner().Plan(a, mustDates(t, "2023-01-01", "2023-01-10"))

	if len(parts) != 1 {
		t.Fatalf("expected 1 partition, got %d", len(parts))
	}
	if n := len(parts[0].Tile.Geometry); n != 1 {
		t.Errorf("partition geometry has %d members, want 1", n)
	}
}
