package models

// Category is a scored dimension of the page footprint.
type Category string

const (
	CategoryTransfer  Category = "transfer"
	CategoryRequests  Category = "requests"
	CategoryRendering Category = "rendering"
	CategoryHosting   Category = "hosting"
)

// Categories lists every scored category in a fixed order.
var Categories = []Category{CategoryTransfer, CategoryRequests, CategoryRendering, CategoryHosting}

// Confidence flags whether a score reflects a genuine page load.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// ScoreBreakdown is the output of a scoring model for one snapshot.
// It depends only on the snapshot and ModelVersion.
type ScoreBreakdown struct {
	OverallScore     float64              `json:"overall_score" yaml:"overall_score"`
	CategoryScores   map[Category]float64 `json:"category_scores" yaml:"category_scores"`
	ModelVersion     string               `json:"model_version" yaml:"model_version"`
	Confidence       Confidence           `json:"confidence" yaml:"confidence"`
	ConfidenceReason string               `json:"confidence_reason,omitempty" yaml:"confidence_reason,omitempty"`

	// EcoIndex-style derived figures.
	Grade             string  `json:"grade" yaml:"grade"`
	GHGEmissionsGrams float64 `json:"ghg_emissions_gco2e" yaml:"ghg_emissions_gco2e"`
	WaterCentiliters  float64 `json:"water_cl" yaml:"water_cl"`
}

// Category returns one sub-score.
func (b ScoreBreakdown) Category(c Category) float64 {
	return b.CategoryScores[c]
}

// Clone returns a deep copy.
func (b ScoreBreakdown) Clone() ScoreBreakdown {
	c := b
	if b.CategoryScores != nil {
		c.CategoryScores = make(map[Category]float64, len(b.CategoryScores))
		for k, v := range b.CategoryScores {
			c.CategoryScores[k] = v
		}
	}
	return c
}
