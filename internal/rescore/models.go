package rescore

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/alexis-pagnon/green-optimizer/internal/common"
	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/scoring"
)

// ModelsAction lists the scoring models and their category weights.
func ModelsAction(c *cli.Context) error {
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}
	current := cfg.ModelVersion
	if current == "" {
		current = scoring.DefaultModelVersion
	}

	engine := scoring.NewEngine()
	fmt.Printf("%-3s %-14s %-10s %-10s %-10s %-10s %s\n", "", "Version", "Transfer", "Requests", "Rendering", "Hosting", "Description")
	fmt.Println(strings.Repeat("-", 100))
	for _, v := range engine.Versions() {
		m, err := engine.Model(v)
		if err != nil {
			return common.Failure("%v", err)
		}
		marker := ""
		if v == current {
			marker = "*"
		}
		fmt.Printf("%-3s %-14s %-10.3f %-10.3f %-10.3f %-10.3f %s\n",
			marker, v,
			m.Weights[models.CategoryTransfer],
			m.Weights[models.CategoryRequests],
			m.Weights[models.CategoryRendering],
			m.Weights[models.CategoryHosting],
			m.Description,
		)
	}
	if !engine.Supports(current) {
		return common.ConfigError("configured model %q is not available", current)
	}
	return nil
}
