package optimize

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/alexis-pagnon/green-optimizer/internal/common"
	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/db"
	"github.com/alexis-pagnon/green-optimizer/pkg/fetcher"
	optpkg "github.com/alexis-pagnon/green-optimizer/pkg/optimize"
	"github.com/alexis-pagnon/green-optimizer/pkg/recommend"
	"github.com/alexis-pagnon/green-optimizer/pkg/storage"
)

// Flags of the optimize command.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "out-dir", Value: "optimized", Usage: "directory receiving the minified files"},
		&cli.StringFlag{Name: "from-report", Usage: "analysis report whose unused files are skipped"},
		&cli.BoolFlag{Name: "no-history", Usage: "do not look up the latest stored analysis for unused files"},
	}
}

// OptimizeAction downloads the page HTML, CSS and JS, writes minified copies
// and prints the bytes saved.
func OptimizeAction(c *cli.Context) error {
	logger := common.NewLogger(c)

	if c.NArg() != 1 {
		return common.ConfigError("usage: green-optimizer optimize <url> [--out-dir DIR]")
	}
	pageURL, err := common.SanitizeAndValidateURL(c.Args().First())
	if err != nil {
		return common.ConfigError("%v", err)
	}

	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}

	unused, err := unusedFiles(c, cfg, pageURL)
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		logger.Info("Skipping files flagged unused", "url", pageURL, "count", len(unused))
	}

	ctx, cancel := common.SignalContext(c.Context)
	defer cancel()

	outDir := c.String("out-dir")
	opt := optpkg.New(fetcher.NewFetcher(fetcher.WithLogger(logger)), logger)
	report, err := opt.Run(ctx, pageURL, outDir, unused)
	if err != nil {
		return common.Failure("optimization of %s failed: %v", pageURL, err)
	}

	s := &storage.Storage{}
	reportPath := filepath.Join(outDir, "optimization-report.json")
	if err := s.WriteReport(reportPath, report); err != nil {
		logger.Warn("failed to write optimization report", "error", err)
	}

	printReport(report)
	fmt.Printf("\nOptimized files in: %s\n", outDir)
	return nil
}

// unusedFiles returns the JS and CSS files a previous analysis flagged as
// mostly unused: from --from-report when given, else from the history.
func unusedFiles(c *cli.Context, cfg *models.Config, pageURL string) ([]string, error) {
	if path := c.String("from-report"); path != "" {
		s := &storage.Storage{}
		var result models.AnalysisResult
		if err := s.ReadReport(path, &result); err != nil {
			return nil, common.ConfigError("failed to read report %s: %v", path, err)
		}
		return result.Snapshot.UnusedCode, nil
	}
	if c.Bool("no-history") {
		return nil, nil
	}

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, common.ConfigError("failed to open database: %v", err)
	}
	defer database.Close()

	result, err := database.LatestAnalysis(c.Context, pageURL)
	if errors.Is(err, db.ErrAnalysisNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, common.Failure("failed to read history: %v", err)
	}
	return result.Snapshot.UnusedCode, nil
}

func printReport(r *optpkg.Report) {
	fmt.Printf("\n%-6s %-40s %-10s %-10s %-10s\n", "Kind", "File", "Before", "After", "Saved")
	for _, f := range r.Minified {
		fmt.Printf("%-6s %-40s %-10s %-10s %-10s\n",
			f.Kind, f.File,
			recommend.FormatBytes(f.OriginalBytes),
			recommend.FormatBytes(f.OptimizedBytes),
			recommend.FormatBytes(f.Gain()),
		)
	}
	for _, f := range r.Failed {
		fmt.Printf("failed  %s: %s\n", f.URL, f.Error)
	}
	for _, u := range r.Unused {
		fmt.Printf("unused  %s (not copied)\n", u)
	}

	sum := r.Summary
	fmt.Printf("\nMinified %d file(s), %d failed, %d unused listed\n", sum.FilesMinified, sum.FilesFailed, sum.UnusedListed)
	fmt.Printf("Total: %s -> %s (saved %s, %.1f%%)\n",
		recommend.FormatBytes(sum.OriginalBytes),
		recommend.FormatBytes(sum.OptimizedBytes),
		recommend.FormatBytes(sum.GainBytes),
		sum.GainPercent,
	)
}
