// Package output writes a finished search to disk.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robert-malhotra/planet-overlap/internal/search"
)

// File names written by WriteReport.
const (
	ResultsFile    = "results.geojson"
	PropertiesFile = "properties.json"
	FailuresFile   = "failed_partitions.json"
	ReportFile     = "report.json"
)

// WriteReport writes the scenes, their raw properties, the failed partition
// manifest and the run report into dir, creating it if needed. It returns the
// paths written.
func WriteReport(dir string, r *search.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	files := []struct {
		name string
		v    any
	}{
		{ResultsFile, r.FeatureCollection()},
		{PropertiesFile, r.Properties()},
		{FailuresFile, r.Failed},
		{ReportFile, r},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeJSON(path, f.v); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// writeJSON encodes v to a temporary file next to path and renames it into
// place, so readers never see a partial file.
func writeJSON(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
