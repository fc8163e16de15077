package analyze

import (
	"fmt"
	"strings"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/analyzer"
	"github.com/alexis-pagnon/green-optimizer/pkg/recommend"
)

// PrintOutcomes prints one row per analyzed URL.
func PrintOutcomes(outcomes []analyzer.Outcome) {
	fmt.Printf("\n%-50s %-7s %-6s %-10s %-6s %-6s %s\n",
		"URL", "Score", "Grade", "Transfer", "Reqs", "Conf", "Status")
	fmt.Println(strings.Repeat("-", 100))

	for _, o := range outcomes {
		if o.Result == nil {
			fmt.Printf("%-50s %-7s %-6s %-10s %-6s %-6s %s\n",
				truncate(o.URL, 50), "-", "-", "-", "-", "-", "failed: "+o.ErrorType)
			continue
		}
		r := o.Result
		fmt.Printf("%-50s %-7.2f %-6s %-10s %-6d %-6s %s\n",
			truncate(o.URL, 50),
			r.Score.OverallScore,
			r.Score.Grade,
			recommend.FormatBytes(r.Snapshot.TotalBytes),
			r.Snapshot.RequestCount,
			r.Score.Confidence,
			"ok",
		)
	}
}

// PrintRecommendations prints the score breakdown and the first n recommendations.
func PrintRecommendations(r *models.AnalysisResult, n int) {
	fmt.Printf("\nModel %s  |  %.2f gCO2e  |  %.2f cl water\n",
		r.Score.ModelVersion, r.Score.GHGEmissionsGrams, r.Score.WaterCentiliters)
	for _, c := range models.Categories {
		fmt.Printf("  %-10s %6.2f\n", c, r.Score.Category(c))
	}
	if r.Score.Confidence == models.ConfidenceLow {
		fmt.Printf("  low confidence: %s\n", r.Score.ConfidenceReason)
	}

	if len(r.Recommendations) == 0 {
		fmt.Println("\nNo recommendations.")
		return
	}
	fmt.Println("\nTop recommendations:")
	for i, rec := range r.Recommendations {
		if i == n {
			fmt.Printf("  ... and %d more in the report\n", len(r.Recommendations)-n)
			break
		}
		line := fmt.Sprintf("  [%s] %s", rec.Severity, rec.Title)
		if rec.EstimatedByteSavings != nil {
			line += fmt.Sprintf(" (-%s)", recommend.FormatBytes(*rec.EstimatedByteSavings))
		}
		if rec.EstimatedScoreDelta != nil {
			line += fmt.Sprintf(" (+%.2f pts)", *rec.EstimatedScoreDelta)
		}
		fmt.Println(line)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
