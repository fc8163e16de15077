package models

import "time"

// ResultSchemaVersion is bumped when the serialized AnalysisResult layout changes.
const ResultSchemaVersion = 1

// AnalysisResult aggregates everything produced for one request.
// Instances held by the result cache are never handed out; callers get clones.
type AnalysisResult struct {
	ID              string           `json:"id" yaml:"id"`
	SchemaVersion   int              `json:"schema_version" yaml:"schema_version"`
	Request         AnalysisRequest  `json:"request" yaml:"request"`
	Snapshot        PageSnapshot     `json:"snapshot" yaml:"snapshot"`
	Score           ScoreBreakdown   `json:"score" yaml:"score"`
	Recommendations []Recommendation `json:"recommendations" yaml:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at" yaml:"generated_at"`
}

// Clone returns a deep copy that shares no mutable state with r.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.Request.Viewport != nil {
		v := *r.Request.Viewport
		c.Request.Viewport = &v
	}
	c.Snapshot = r.Snapshot.Clone()
	c.Score = r.Score.Clone()
	c.Recommendations = make([]Recommendation, len(r.Recommendations))
	for i, rec := range r.Recommendations {
		c.Recommendations[i] = rec.Clone()
	}
	return &c
}
