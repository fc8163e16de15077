package db

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/alexis-pagnon/green-optimizer/internal/analyze"
	"github.com/alexis-pagnon/green-optimizer/internal/common"
	dbpkg "github.com/alexis-pagnon/green-optimizer/pkg/db"
	"github.com/alexis-pagnon/green-optimizer/pkg/storage"
)

// HistoryFlags are the flags of the history command.
func HistoryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "url", Usage: "only analyses of this URL"},
		&cli.StringFlag{Name: "model-version", Usage: "only analyses scored with this model version"},
		&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum rows"},
	}
}

// HistoryAction lists stored analyses, newest first.
func HistoryAction(c *cli.Context) error {
	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	list, err := database.ListAnalyses(c.Context, dbpkg.HistoryFilter{
		URL:          c.String("url"),
		ModelVersion: c.String("model-version"),
		Limit:        c.Int("limit"),
	})
	if err != nil {
		return common.Failure("failed to list analyses: %v", err)
	}

	if len(list) == 0 {
		fmt.Println("No analyses found")
		return nil
	}

	fmt.Printf("%-36s %-20s %-14s %-7s %-6s %-5s %-40s\n",
		"ID", "Stored", "Model", "Score", "Grade", "Live", "URL")
	fmt.Println(strings.Repeat("-", 132))
	for _, a := range list {
		live := "yes"
		if a.Invalidated {
			live = "no"
		}
		fmt.Printf("%-36s %-20s %-14s %-7.2f %-6s %-5s %-40s\n",
			a.ID,
			a.StoredAt.Local().Format("2006-01-02 15:04:05"),
			a.ModelVersion,
			a.OverallScore,
			a.Grade,
			live,
			a.URL,
		)
	}
	fmt.Printf("\nTotal: %d analyses\n", len(list))

	if u := c.String("url"); u != "" {
		printAccessStats(database, u)
	}
	fmt.Printf("\nTip: Use 'green-optimizer show <id>' to see details\n")
	return nil
}

func printAccessStats(database *dbpkg.DB, rawURL string) {
	urlID, err := database.GetURLID(rawURL)
	if err != nil {
		return
	}
	stats, err := database.GetAccessStats(urlID)
	if err != nil || stats.Total == 0 {
		return
	}
	fmt.Printf("\nCapture attempts: %d (%d failed)\n", stats.Total, stats.Failed)
	kinds := make([]string, 0, len(stats.ByError))
	for k := range stats.ByError {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-22s %d\n", k, stats.ByError[k])
	}
	if last, err := database.GetLastAccess(urlID); err == nil && last != nil {
		status := "ok"
		if !last.Success {
			status = last.ErrorType
		}
		fmt.Printf("Last attempt: %s via %s in %dms (%s)\n",
			last.AccessedAt.Local().Format("2006-01-02 15:04:05"), last.Engine, last.DurationMs, status)
	}
}

// ShowFlags are the flags of the show command.
func ShowFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "format", Usage: "print the full stored result as json or yaml"},
	}
}

// ShowAction prints one stored analysis: by ID, by URL, or the latest one.
func ShowAction(c *cli.Context) error {
	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	id, err := AnalysisIDOrLatest(c, database)
	if err != nil {
		return common.Failure("%v", err)
	}
	result, err := database.GetAnalysis(c.Context, id)
	if err != nil {
		return common.Failure("%v", err)
	}

	if f := c.String("format"); f != "" {
		format, err := storage.ParseFormat(f)
		if err != nil {
			return common.ConfigError("%v", err)
		}
		data, err := storage.Encode(result, format)
		if err != nil {
			return common.Failure("%v", err)
		}
		os.Stdout.Write(data)
		return nil
	}

	fmt.Printf("Analysis %s\n", result.ID)
	fmt.Printf("URL:       %s\n", result.Request.URL)
	fmt.Printf("Generated: %s\n", result.GeneratedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Score:     %.2f (%s)\n", result.Score.OverallScore, result.Score.Grade)
	fmt.Printf("Hosting:   %s\n", result.Snapshot.GreenHost)
	analyze.PrintRecommendations(result, len(result.Recommendations))

	if urlID, err := database.GetURLID(result.Request.URL); err == nil {
		artifacts, err := database.ListArtifacts(urlID)
		if err == nil {
			for _, a := range artifacts {
				if a.AnalysisID == result.ID {
					fmt.Printf("\n%-8s %s (%d bytes)", a.Kind, a.FilePath, a.SizeBytes)
				}
			}
			fmt.Println()
		}
	}
	return nil
}

// RunsAction lists recent analyze runs.
func RunsAction(c *cli.Context) error {
	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := database.ListRuns(c.Int("limit"))
	if err != nil {
		return common.Failure("failed to list runs: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("%-6s %-20s %-8s %-8s %-8s %-14s %-30s\n",
		"ID", "Created", "URLs", "Success", "Failed", "Model", "Output")
	fmt.Println(strings.Repeat("-", 100))
	for _, r := range runs {
		fmt.Printf("%-6d %-20s %-8d %-8d %-8d %-14s %-30s\n",
			r.RunID,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.URLCount,
			r.SuccessCount,
			r.FailedCount,
			r.ModelVersion,
			r.OutputPath,
		)
	}
	fmt.Printf("\nTotal: %d runs\n", len(runs))
	return nil
}

// InvalidateAction drops the cached results of the given URLs so the next
// analysis captures again. Stored history is kept.
func InvalidateAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return common.ConfigError("usage: green-optimizer invalidate <url> [url...]")
	}
	logger := common.NewLogger(c)
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}
	rt, err := common.NewRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, raw := range c.Args().Slice() {
		u, err := common.SanitizeAndValidateURL(raw)
		if err != nil {
			return common.ConfigError("%v", err)
		}
		if err := rt.Analyzer.Invalidate(c.Context, u); err != nil {
			return common.Failure("failed to invalidate %s: %v", u, err)
		}
		fmt.Printf("Invalidated %s\n", u)
	}
	return nil
}

// InitAction creates the database schema.
func InitAction(c *cli.Context) error {
	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.InitSchema(); err != nil {
		return common.Failure("failed to initialize schema: %v", err)
	}
	fmt.Printf("Database ready at %s\n", database.Path())
	return nil
}
