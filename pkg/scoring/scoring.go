// Package scoring turns a PageSnapshot into a versioned, deterministic ScoreBreakdown.
package scoring

import (
	"math"
	"sort"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// Engine holds the registry of scoring models. It keeps no other state:
// a breakdown depends only on the snapshot and the requested version.
type Engine struct {
	models map[string]Model
}

// NewEngine returns an engine with every built-in model registered.
func NewEngine() *Engine {
	e := &Engine{models: make(map[string]Model)}
	e.register(logScaleModel())
	e.register(ecoIndexModel())
	return e
}

func (e *Engine) register(m Model) {
	e.models[m.Version] = m
}

// Versions lists registered model versions in sorted order.
func (e *Engine) Versions() []string {
	out := make([]string, 0, len(e.models))
	for v := range e.models {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Model returns the model registered under version.
func (e *Engine) Model(version string) (Model, error) {
	m, ok := e.models[version]
	if !ok {
		return Model{}, &ScoringError{Version: version}
	}
	return m, nil
}

// Supports reports whether version is registered.
func (e *Engine) Supports(version string) bool {
	_, ok := e.models[version]
	return ok
}

// Score applies the model named version to snap.
func (e *Engine) Score(snap models.PageSnapshot, version string) (models.ScoreBreakdown, error) {
	m, err := e.Model(version)
	if err != nil {
		return models.ScoreBreakdown{}, err
	}

	categories := map[models.Category]float64{
		models.CategoryRendering: normalize(m.rendering(snap)),
		models.CategoryHosting:   normalize(hostingScore(snap.GreenHost)),
	}

	out := models.ScoreBreakdown{
		ModelVersion: m.Version,
		Confidence:   models.ConfidenceHigh,
	}
	if snap.Empty() {
		// Nothing transferred: do not reward it, flag it.
		categories[models.CategoryTransfer] = 100
		categories[models.CategoryRequests] = 100
		out.Confidence = models.ConfidenceLow
		out.ConfidenceReason = "no bytes or requests were captured; the page was probably blocked or failed to load"
	} else {
		categories[models.CategoryTransfer] = normalize(m.transfer(snap))
		categories[models.CategoryRequests] = normalize(m.requests(snap))
	}

	var overall float64
	for _, c := range models.Categories {
		overall += m.Weights[c] * categories[c]
	}
	out.CategoryScores = categories
	out.OverallScore = normalize(overall)
	out.Grade = Grade(out.OverallScore)
	out.GHGEmissionsGrams = round2(2 + 2*(50-out.OverallScore)/100)
	out.WaterCentiliters = round2(3 + 3*(50-out.OverallScore)/100)
	return out, nil
}

// Grade maps an overall score to the EcoIndex letter scale.
func Grade(score float64) string {
	switch {
	case score > 80:
		return "A"
	case score > 70:
		return "B"
	case score > 55:
		return "C"
	case score > 40:
		return "D"
	case score > 25:
		return "E"
	case score > 10:
		return "F"
	}
	return "G"
}

// normalize clamps to [0,100] and rounds to two decimals; NaN becomes 0.
func normalize(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return round2(math.Max(0, math.Min(100, v)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
