// Script to compare Planet and STAC search results for the same AOI and dates.
//
//	go run ./scripts aoi.geojson 2023-01-01 2023-02-15
//
// Both backends are configured from the environment as for the server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/robert-malhotra/planet-overlap/internal/backend"
	"github.com/robert-malhotra/planet-overlap/internal/config"
	"github.com/robert-malhotra/planet-overlap/internal/search"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: compare_backends <aoi.geojson> <start> <end>")
		os.Exit(2)
	}

	aoi, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading AOI: %v\n", err)
		os.Exit(1)
	}
	req := search.Request{AOI: aoi, StartDate: os.Args[2], EndDate: os.Args[3]}

	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fmt.Println("=== Backend Comparison ===")
	fmt.Printf("Date range: %s to %s\n\n", req.StartDate, req.EndDate)

	ids := map[string]map[string]bool{}
	for _, name := range []string{backend.Planet, backend.STAC} {
		fmt.Printf("Querying %s...\n", name)
		found, err := run(cfg, name, req, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s search failed: %v\n\n", name, err)
			continue
		}
		ids[name] = found
	}

	planetIDs, stacIDs := ids[backend.Planet], ids[backend.STAC]
	fmt.Println("=== Comparison ===")
	fmt.Printf("planet: %d scenes\n", len(planetIDs))
	fmt.Printf("stac:   %d scenes\n", len(stacIDs))

	onlyPlanet, onlyStac := difference(planetIDs, stacIDs), difference(stacIDs, planetIDs)
	if len(onlyPlanet) == 0 && len(onlyStac) == 0 {
		fmt.Println("Scene sets match")
		return
	}
	for _, id := range onlyPlanet {
		fmt.Printf("  planet only: %s\n", id)
	}
	for _, id := range onlyStac {
		fmt.Printf("  stac only:   %s\n", id)
	}
}

func run(base *config.Config, name string, req search.Request, logger *slog.Logger) (map[string]bool, error) {
	cfg := *base
	cfg.Catalog.Backend = name
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := backend.New(&cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Search.Timeout)
	defer cancel()

	start := time.Now()
	report, err := search.NewService(client, cfg.Search).WithLogger(logger).Run(ctx, "", req, nil)
	if err != nil {
		return nil, err
	}
	fmt.Printf("%s: %d scenes, %d of %d partitions in %s\n\n",
		name, report.Stats.Scenes, report.Completed, report.Partitions, time.Since(start).Round(time.Millisecond))

	found := make(map[string]bool, len(report.Scenes))
	for _, s := range report.Scenes {
		found[s.ID] = true
	}
	return found, nil
}

func difference(a, b map[string]bool) []string {
	var out []string
	for id := range a {
		if !b[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
