package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/robert-malhotra/planet-overlap/internal/search"
)

func writeAOI(t *testing.T, geojson string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aoi.geojson")
	if err := os.WriteFile(path, []byte(geojson), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runApp(t *testing.T, args ...string) (string, int) {
	t.Helper()

	var out, errOut bytes.Buffer
	app := createCliApp()
	app.Writer = &out
	app.ErrWriter = &errOut

	code := 0
	prev := cli.OsExiter
	cli.OsExiter = func(c int) { code = c }
	defer func() { cli.OsExiter = prev }()

	if err := app.Run(append([]string{"planet-overlap"}, args...)); err != nil && code == 0 {
		code = 1
	}
	return out.String(), code
}

func TestPlanCommand(t *testing.T) {
	t.Setenv("SEARCH_TILE_SIZE_DEGREES", "1")
	t.Setenv("SEARCH_DATE_THRESHOLD_DAYS", "30")

	aoi := writeAOI(t, `{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,2],[0,0]]]}`)
	out, code := runApp(t, "plan", "--aoi", aoi, "--start", "2023-01-01", "--end", "2023-02-15", "--wkt")
	if code != 0 {
		t.Fatalf("plan exited with %d: %s", code, out)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	// Header, eight partitions, eight WKT lines.
	if len(lines) != 17 {
		t.Fatalf("expected 17 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "INDEX") {
		t.Errorf("expected header, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "2023-01-01/2023-01-30") {
		t.Errorf("expected first chunk dates, got %q", lines[1])
	}
	if !strings.Contains(lines[9], "POLYGON") && !strings.Contains(lines[9], "MULTIPOLYGON") {
		t.Errorf("expected WKT, got %q", lines[9])
	}
}

func TestPlanCommandRejectsBadInput(t *testing.T) {
	aoi := writeAOI(t, `{"type":"Point","coordinates":[10,10]}`)

	tests := []struct {
		name string
		args []string
	}{
		{"missing aoi", []string{"plan", "--start", "2023-01-01", "--end", "2023-01-02"}},
		{"reversed dates", []string{"plan", "--aoi", aoi, "--start", "2023-02-01", "--end", "2023-01-02"}},
		{"cloud out of range", []string{"plan", "--aoi", aoi, "--start", "2023-01-01", "--end", "2023-01-02", "--max-cloud", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, code := runApp(t, tt.args...); code != exitInvalid {
				t.Errorf("expected exit code %d, got %d", exitInvalid, code)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, code := runApp(t, "version")
	if code != 0 {
		t.Fatalf("version exited with %d", code)
	}
	if !strings.Contains(out, "planet-overlap "+Version) {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestPrintSummary(t *testing.T) {
	first := time.Date(2023, 1, 10, 10, 0, 0, 0, time.UTC)
	last := time.Date(2023, 1, 20, 10, 0, 0, 0, time.UTC)
	r := &search.Report{
		ID:         "run-1",
		Backend:    "planet",
		StartDate:  "2023-01-01",
		EndDate:    "2023-02-15",
		Partitions: 8,
		Completed:  7,
		Stats: search.Stats{
			Scenes:         3,
			Overlapping:    2,
			Duplicates:     2,
			FirstAcquired:  &first,
			LastAcquired:   &last,
			MeanCloudCover: 0.1167,
			MeanSunAngle:   38.3,
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, r)
	out := buf.String()

	for _, want := range []string{
		"run-1",
		"7 of 8 completed",
		"3 (2 overlapping, 2 duplicates dropped)",
		"2023-01-10T10:00:00Z to 2023-01-20T10:00:00Z",
		"0.117",
		"38.30",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestSearchCommandWritesMetrics(t *testing.T) {
	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		w.Write([]byte(`{"type":"FeatureCollection","features":[],"links":[],"numberReturned":0}`))
	}))
	defer catalog.Close()

	t.Setenv("STAC_BASE_URL", catalog.URL)
	t.Setenv("SEARCH_ITEM_TYPES", "PSScene")

	aoi := writeAOI(t, `{"type":"Polygon","coordinates":[[[0,0],[0.5,0],[0.5,0.5],[0,0.5],[0,0]]]}`)
	outDir := t.TempDir()
	metricsPath := filepath.Join(t.TempDir(), "search.prom")

	out, code := runApp(t, "search", "--backend", "stac", "--aoi", aoi,
		"--start", "2023-01-01", "--end", "2023-01-10",
		"--out", outDir, "--metrics-file", metricsPath)
	if code != 0 {
		t.Fatalf("search exited with %d: %s", code, out)
	}

	if _, err := os.Stat(filepath.Join(outDir, "results.geojson")); err != nil {
		t.Errorf("results not written: %v", err)
	}

	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	for _, want := range []string{
		"search_progress_partitions_done 1",
		"search_progress_partitions_total 1",
		`search_runs_total{status="completed"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics file missing %q:\n%s", want, data)
		}
	}
}
