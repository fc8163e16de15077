package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/alexis-pagnon/green-optimizer/internal/analyze"
	"github.com/alexis-pagnon/green-optimizer/internal/common"
	"github.com/alexis-pagnon/green-optimizer/internal/db"
	"github.com/alexis-pagnon/green-optimizer/internal/optimize"
	"github.com/alexis-pagnon/green-optimizer/internal/rescore"
	"github.com/alexis-pagnon/green-optimizer/internal/serve"
	"github.com/alexis-pagnon/green-optimizer/pkg/help"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "green-optimizer",
		Usage:   "measure the environmental footprint of web pages and suggest fixes",
		Version: version,
		Flags:   common.GlobalFlags(),
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "capture, score and get recommendations for one or more URLs",
				ArgsUsage: "<url> [url...]",
				Flags:     analyze.Flags(),
				Action:    analyze.AnalyzeAction,
			},
			{
				Name:      "rescore",
				Usage:     "score a stored analysis again, optionally with another model",
				ArgsUsage: "[url]",
				Flags:     rescore.Flags(),
				Action:    rescore.RescoreAction,
			},
			{
				Name:   "models",
				Usage:  "list the supported scoring models",
				Action: rescore.ModelsAction,
			},
			{
				Name:      "optimize",
				Usage:     "download and minify the page's text assets and list unused files",
				ArgsUsage: "<url>",
				Flags:     optimize.Flags(),
				Action:    optimize.OptimizeAction,
			},
			{
				Name:   "history",
				Usage:  "list stored analyses",
				Flags:  db.HistoryFlags(),
				Action: db.HistoryAction,
			},
			{
				Name:      "show",
				Usage:     "show a stored analysis by ID or URL (latest when omitted)",
				ArgsUsage: "[id|url]",
				Flags:     db.ShowFlags(),
				Action:    db.ShowAction,
			},
			{
				Name:  "runs",
				Usage: "list recent analyze runs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "max runs to list"},
				},
				Action: db.RunsAction,
			},
			{
				Name:      "invalidate",
				Usage:     "drop cached results so the next analysis captures again",
				ArgsUsage: "<url> [url...]",
				Action:    db.InvalidateAction,
			},
			{
				Name:   "init",
				Usage:  "create the database schema",
				Action: db.InitAction,
			},
			{
				Name:   "dashboard",
				Usage:  "serve the web dashboard, JSON API and MCP endpoint",
				Flags:  serve.DashboardFlags(),
				Action: serve.DashboardAction,
			},
			{
				Name:   "mcp",
				Usage:  "serve the analysis tools over MCP on stdio",
				Action: serve.MCPAction,
			},
			{
				Name:  "quickstart",
				Usage: "print a quick start guide",
				Action: func(c *cli.Context) error {
					fmt.Print(help.QuickstartYAML)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(common.ExitFailure)
	}
}
