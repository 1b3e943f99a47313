package main

import (
	cli "gopkg.in/urfave/cli.v1"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var requestFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "aoi, a",
		Usage: "GeoJSON file holding the area of interest",
	},
	cli.StringFlag{
		Name:  "start, s",
		Usage: "first acquisition day, YYYY-MM-DD",
	},
	cli.StringFlag{
		Name:  "end, e",
		Usage: "last acquisition day, YYYY-MM-DD",
	},
	cli.Float64Flag{
		Name:  "max-cloud",
		Usage: "largest accepted cloud cover fraction in [0, 1] (default SEARCH_MAX_CLOUD_COVER)",
	},
	cli.Float64Flag{
		Name:  "min-sun",
		Usage: "lowest accepted sun elevation in degrees (default SEARCH_MIN_SUN_ANGLE)",
	},
	cli.StringSliceFlag{
		Name:  "item-type",
		Usage: "item type to query, repeatable (default SEARCH_ITEM_TYPES)",
	},
}

var commands = cli.Commands{
	cli.Command{
		Name:    "search",
		Aliases: []string{"s"},
		Usage:   "Search the catalog and write overlap results",
		Flags: append([]cli.Flag{
			cli.StringFlag{
				Name:  "out, o",
				Value: ".",
				Usage: "directory receiving the output files",
			},
			cli.StringFlag{
				Name:  "metrics-file",
				Usage: "write run metrics to this file in Prometheus text format",
			},
			cli.StringFlag{
				Name:   "backend",
				Usage:  "catalog backend, planet or stac",
				EnvVar: "CATALOG_BACKEND",
			},
		}, requestFlags...),
		Action: searchAction,
	},
	cli.Command{
		Name:    "plan",
		Aliases: []string{"p"},
		Usage:   "Print the partitions a search would query without querying",
		Flags: append([]cli.Flag{
			cli.BoolFlag{
				Name:  "wkt",
				Usage: "print each partition geometry as WKT",
			},
		}, requestFlags...),
		Action: planAction,
	},
	cli.Command{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "Print the version number",
		Action:  versionAction,
	},
}

func createCliApp() (app *cli.App) {
	app = cli.NewApp()
	app.Name = "planet-overlap"
	app.Usage = "Find overlapping satellite imagery over an area and time span"
	app.Version = Version
	app.Commands = commands
	return
}
