package db

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/alexis-pagnon/green-optimizer/internal/common"
	dbpkg "github.com/alexis-pagnon/green-optimizer/pkg/db"
)

func openDatabase(c *cli.Context) (*dbpkg.DB, error) {
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return nil, err
	}
	database, err := dbpkg.Open(cfg.DatabasePath)
	if err != nil {
		return nil, common.ConfigError("failed to open database: %v", err)
	}
	return database, nil
}

// AnalysisIDOrLatest resolves the first argument: an analysis ID, a URL
// (its latest analysis), or nothing (the latest analysis overall).
func AnalysisIDOrLatest(c *cli.Context, database *dbpkg.DB) (string, error) {
	arg := strings.TrimSpace(c.Args().First())
	filter := dbpkg.HistoryFilter{Limit: 1}
	switch {
	case arg == "":
	case strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://"):
		filter.URL = arg
	default:
		return arg, nil
	}

	list, err := database.ListAnalyses(c.Context, filter)
	if err != nil {
		return "", fmt.Errorf("failed to get latest analysis: %w", err)
	}
	if len(list) == 0 {
		return "", fmt.Errorf("no analyses found. Run 'green-optimizer analyze <url>' first")
	}
	return list[0].ID, nil
}
