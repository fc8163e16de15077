package rescore

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/alexis-pagnon/green-optimizer/internal/analyze"
	"github.com/alexis-pagnon/green-optimizer/internal/common"
	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/capture"
	"github.com/alexis-pagnon/green-optimizer/pkg/db"
	"github.com/alexis-pagnon/green-optimizer/pkg/scoring"
	"github.com/alexis-pagnon/green-optimizer/pkg/storage"
)

// Flags of the rescore command.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "id", Usage: "stored analysis ID (default: latest analysis of the URL argument)"},
		&cli.StringFlag{Name: "to", Usage: "model version to score with (default: the configured model)"},
		&cli.BoolFlag{Name: "reextract", Usage: "rebuild the snapshot from the stored raw capture first"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write the rescored result to this file"},
	}
}

// RescoreAction scores a stored analysis again without capturing the page.
// Neither the result cache nor the stored history is modified.
func RescoreAction(c *cli.Context) error {
	logger := common.NewLogger(c)

	if c.String("id") == "" && c.NArg() == 0 {
		return common.ConfigError("provide a URL argument or --id")
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

	ctx := c.Context
	var src *models.AnalysisResult
	if id := c.String("id"); id != "" {
		src, err = rt.DB.GetAnalysis(ctx, id)
	} else {
		src, err = rt.DB.LatestAnalysis(ctx, c.Args().First())
	}
	if errors.Is(err, db.ErrAnalysisNotFound) {
		return common.Failure("%v. Run 'green-optimizer analyze <url>' first", err)
	}
	if err != nil {
		return common.Failure("failed to load analysis: %v", err)
	}

	version := c.String("to")
	if version == "" {
		version = rt.Analyzer.ModelVersion()
	}

	var result *models.AnalysisResult
	if c.Bool("reextract") {
		raw, loadErr := loadCapture(rt, src)
		if loadErr != nil {
			return common.Failure("%v", loadErr)
		}
		result, err = rt.Analyzer.Reextract(ctx, raw, version)
		if err == nil {
			result.Request = src.Request
		}
	} else {
		result, err = rt.Analyzer.Rescore(src, version)
	}
	if errors.Is(err, scoring.ErrUnknownModelVersion) {
		return common.ConfigError("%v (available: %v)", err, rt.Analyzer.Versions())
	}
	if err != nil {
		return common.Failure("rescore failed: %v", err)
	}

	logger.Info("Rescored analysis",
		"source_id", src.ID,
		"from", src.Score.ModelVersion,
		"to", version,
		"before", src.Score.OverallScore,
		"after", result.Score.OverallScore,
	)

	fmt.Printf("%s\n", src.Request.URL)
	fmt.Printf("  %-14s %-8s %-6s\n", "Model", "Score", "Grade")
	fmt.Printf("  %-14s %-8.2f %-6s (stored %s)\n", src.Score.ModelVersion, src.Score.OverallScore, src.Score.Grade, src.ID)
	fmt.Printf("  %-14s %-8.2f %-6s\n", result.Score.ModelVersion, result.Score.OverallScore, result.Score.Grade)
	analyze.PrintRecommendations(result, 5)

	if out := c.String("output"); out != "" {
		s := &storage.Storage{}
		if err := s.WriteReport(out, result); err != nil {
			return common.Failure("failed to write report: %v", err)
		}
		fmt.Printf("\nReport saved to: %s\n", out)
	}
	return nil
}

// loadCapture finds the raw capture behind src: the artifact indexed for
// the analysis, else the newest capture stored for its URL.
func loadCapture(rt *common.Runtime, src *models.AnalysisResult) (*capture.RawCapture, error) {
	if path, err := rt.DB.GetArtifactPath(src.ID, "capture"); err == nil {
		raw, err := rt.Artifacts.LoadCapture(path)
		if err == nil {
			return raw, nil
		}
		rt.Logger.Warn("failed to load indexed capture", "path", path, "error", err)
	}
	raw, found, err := rt.Artifacts.LatestCapture(src.Request.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load capture: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("no stored capture for %s", src.Request.URL)
	}
	return raw, nil
}
