package analyze

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alexis-pagnon/green-optimizer/internal/common"
	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/analyzer"
	"github.com/alexis-pagnon/green-optimizer/pkg/db"
	"github.com/alexis-pagnon/green-optimizer/pkg/manifest"
	"github.com/alexis-pagnon/green-optimizer/pkg/storage"
)

// BatchReport is written when more than one URL is analyzed or when the
// single analysis failed.
type BatchReport struct {
	GeneratedAt  time.Time             `json:"generated_at" yaml:"generated_at"`
	RunID        int64                 `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ModelVersion string                `json:"model_version" yaml:"model_version"`
	Summary      analyzer.BatchSummary `json:"summary" yaml:"summary"`
	Results      []analyzer.Outcome    `json:"results" yaml:"results"`
}

// Flags of the analyze command.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "urls", Usage: "comma-separated URLs (in addition to arguments)"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "report.json", Usage: "report file; the extension picks JSON or YAML"},
		&cli.StringFlag{Name: "format", Usage: "report format: json or yaml (overrides the extension)"},
		&cli.BoolFlag{Name: "fresh", Usage: "ignore cached results and capture again"},
		&cli.StringFlag{Name: "max-age", Usage: "accept cached results younger than this (e.g. 30m)"},
		&cli.StringFlag{Name: "timeout", Usage: "capture timeout (e.g. 45s)"},
		&cli.StringFlag{Name: "viewport", Usage: "browser viewport WIDTHxHEIGHT"},
		&cli.BoolFlag{Name: "manifest", Usage: "also write a summary manifest next to the report"},
	}
}

func AnalyzeAction(c *cli.Context) error {
	logger := common.NewLogger(c)

	rawURLs := c.Args().Slice()
	if c.IsSet("urls") {
		rawURLs = append(rawURLs, strings.Split(c.String("urls"), ",")...)
	}
	if len(rawURLs) == 0 {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, `  green-optimizer analyze https://example.com`)
		fmt.Fprintln(os.Stderr, `  green-optimizer analyze --urls "https://a.example,https://b.example" --output report.yaml`)
		return common.ConfigError("no URL provided")
	}

	urls, invalid := common.SanitizeAndValidateURLs(rawURLs)
	if len(invalid) > 0 {
		fmt.Fprintf(os.Stderr, "Error: %d URL(s) are malformed (even after cleanup):\n", len(invalid))
		for _, bad := range invalid {
			fmt.Fprintf(os.Stderr, "  - %s\n", bad)
		}
		return common.ConfigError("invalid URLs")
	}

	output := c.String("output")
	format := storage.FormatFor(output)
	if c.IsSet("format") {
		f, err := storage.ParseFormat(c.String("format"))
		if err != nil {
			return common.ConfigError("%v", err)
		}
		format = f
	}

	opts, err := common.RequestOptions(c)
	if err != nil {
		return err
	}

	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}
	rt, err := common.NewRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := common.SignalContext(c.Context)
	defer cancel()

	reqs := make([]models.AnalysisRequest, 0, len(urls))
	for _, u := range urls {
		req, err := rt.Request(u, opts...)
		if err != nil {
			return common.ConfigError("%v", err)
		}
		reqs = append(reqs, req)
	}

	if c.Bool("fresh") {
		for _, req := range reqs {
			if err := rt.Analyzer.Invalidate(ctx, req.URL); err != nil {
				logger.Warn("failed to invalidate cached result", "url", req.URL, "error", err)
			}
		}
	}

	startTime := time.Now()
	runID, err := rt.DB.CreateRun(len(reqs), rt.Analyzer.ModelVersion(), output)
	if err != nil {
		logger.Warn("failed to record run", "error", err)
	}

	outcomes := rt.Analyzer.AnalyzeAll(ctx, reqs)
	summary := analyzer.Summarize(outcomes, 10)
	analyzer.LogSummary(logger, summary)
	logger.Info("Analysis finished", "run_id", runID, "seconds", time.Since(startTime).Seconds())

	if runID > 0 {
		if err := rt.DB.UpdateRunStats(runID, summary.Succeeded, summary.Failed); err != nil {
			logger.Warn("failed to update run stats", "run_id", runID, "error", err)
		}
	}

	var report any
	if len(outcomes) == 1 && outcomes[0].Error == nil {
		report = outcomes[0].Result
	} else {
		report = BatchReport{
			GeneratedAt:  time.Now().UTC(),
			RunID:        runID,
			ModelVersion: rt.Analyzer.ModelVersion(),
			Summary:      summary,
			Results:      outcomes,
		}
	}

	data, err := storage.Encode(report, format)
	if err != nil {
		return common.Failure("failed to encode report: %v", err)
	}
	s := &storage.Storage{}
	if err := s.SaveFile(output, data); err != nil {
		return common.Failure("failed to write report: %v", err)
	}
	archiveReports(rt, logger, outcomes, format)

	if c.Bool("manifest") || len(outcomes) > 1 {
		m := manifest.Build(outcomes, summary, rt.Analyzer.ModelVersion(), time.Now())
		m.RunID = runID
		path, err := manifest.GenerateSummary(m, filepath.Dir(output), format, s)
		if err != nil {
			logger.Warn("failed to write summary manifest", "error", err)
		} else {
			fmt.Printf("Summary manifest saved to: %s\n", path)
		}
	}

	PrintOutcomes(outcomes)
	if len(outcomes) == 1 && outcomes[0].Result != nil {
		PrintRecommendations(outcomes[0].Result, 5)
	}
	fmt.Printf("\nReport saved to: %s\n", output)

	if ctx.Err() != nil {
		return common.Failure("interrupted")
	}
	if summary.Failed > 0 {
		return failureFor(outcomes, summary)
	}
	return nil
}

// failureFor reports the cause of a single failure, or a count for a batch.
func failureFor(outcomes []analyzer.Outcome, summary analyzer.BatchSummary) error {
	if len(outcomes) == 1 {
		o := outcomes[0]
		return common.Failure("analysis of %s failed (%s): %s", o.URL, o.ErrorType, o.Message)
	}
	return common.Failure("%d of %d analyses failed", summary.Failed, len(outcomes))
}

// archiveReports keeps a copy of every successful result next to its capture.
func archiveReports(rt *common.Runtime, logger *slog.Logger, outcomes []analyzer.Outcome, format storage.Format) {
	for _, o := range outcomes {
		if o.Result == nil {
			continue
		}
		if err := archive(rt, o.Result, format); err != nil {
			logger.Warn("failed to archive report", "url", o.URL, "error", err)
		}
	}
}

func archive(rt *common.Runtime, result *models.AnalysisResult, format storage.Format) error {
	data, err := storage.Encode(result, format)
	if err != nil {
		return err
	}
	art, err := rt.Artifacts.SaveReport(result.Request.URL, result.ID, format.Ext(), data)
	if err != nil {
		return err
	}
	urlID, err := rt.DB.InsertURL(result.Request.URL)
	if err != nil {
		return err
	}
	_, err = rt.DB.InsertArtifact(urlID, db.ArtifactInfo{
		AnalysisID:  result.ID,
		Kind:        "report",
		ContentHash: art.ContentHash,
		FilePath:    art.Path,
		SizeBytes:   art.SizeBytes,
	})
	return err
}
