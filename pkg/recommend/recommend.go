// Package recommend derives ranked optimization advice from a snapshot and its score.
package recommend

import (
	"math"
	"sort"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// Scorer re-scores simulated snapshots. *scoring.Engine satisfies it.
type Scorer interface {
	Score(snap models.PageSnapshot, version string) (models.ScoreBreakdown, error)
}

// Engine evaluates a rule table.
type Engine struct {
	rules  []Rule
	scorer Scorer
}

// New creates an engine. With no rules the default table is used; a nil
// scorer disables score delta estimates.
func New(scorer Scorer, rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules, scorer: scorer}
}

// Rules returns the rule table in declaration order.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

type ranked struct {
	rec   models.Recommendation
	order int
}

// Recommend returns the fired rules sorted by severity, then estimated score
// delta, then declaration order. Duplicate IDs keep their first occurrence.
// The result is never nil.
func (e *Engine) Recommend(snap models.PageSnapshot, score models.ScoreBreakdown) []models.Recommendation {
	seen := make(map[string]bool, len(e.rules))
	var fired []ranked

	for i, rule := range e.rules {
		if seen[rule.ID] {
			continue
		}
		f, ok := rule.Check(snap, score)
		if !ok {
			continue
		}
		seen[rule.ID] = true

		rec := models.Recommendation{
			ID:       rule.ID,
			Category: rule.Category,
			Severity: f.Severity,
			Title:    f.Title,
			Detail:   f.Detail,
		}
		if f.ByteSavings > 0 {
			b := f.ByteSavings
			rec.EstimatedByteSavings = &b
		}
		if f.Simulate != nil {
			rec.EstimatedScoreDelta = e.delta(snap, score, f.Simulate)
		}
		fired = append(fired, ranked{rec: rec, order: i})
	}

	sort.SliceStable(fired, func(i, j int) bool {
		a, b := fired[i], fired[j]
		if a.rec.Severity != b.rec.Severity {
			return a.rec.Severity > b.rec.Severity
		}
		da, db := deltaValue(a.rec), deltaValue(b.rec)
		if da != db {
			return da > db
		}
		return a.order < b.order
	})

	out := make([]models.Recommendation, len(fired))
	for i, r := range fired {
		out[i] = r.rec
	}
	return out
}

func (e *Engine) delta(snap models.PageSnapshot, score models.ScoreBreakdown, simulate func(models.PageSnapshot) models.PageSnapshot) *float64 {
	if e.scorer == nil {
		return nil
	}
	after, err := e.scorer.Score(simulate(snap.Clone()), score.ModelVersion)
	if err != nil {
		return nil
	}
	d := math.Round((after.OverallScore-score.OverallScore)*100) / 100
	if d < 0 {
		d = 0
	}
	return &d
}

// deltaValue ranks recommendations without an estimate below any estimate.
func deltaValue(r models.Recommendation) float64 {
	if r.EstimatedScoreDelta == nil {
		return math.Inf(-1)
	}
	return *r.EstimatedScoreDelta
}
