package manifest

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/alexis-pagnon/green-optimizer/pkg/analyzer"
	"github.com/alexis-pagnon/green-optimizer/pkg/storage"
)

// Build aggregates batch outcomes into a manifest.
func Build(outcomes []analyzer.Outcome, summary analyzer.BatchSummary, modelVersion string, now time.Time) Manifest {
	m := Manifest{
		GeneratedAt:  now.UTC().Format(time.RFC3339),
		ModelVersion: modelVersion,
		TotalURLs:    len(outcomes),
		Successful:   summary.Succeeded,
		Failed:       summary.Failed,
		TopHosts:     summary.TopHosts,
		Results:      make([]URLSummary, 0, len(outcomes)),
	}

	var total float64
	for _, o := range outcomes {
		s := URLSummary{URL: o.URL}
		if o.Error != nil || o.Result == nil {
			s.Status = "error"
			s.ErrorType = o.ErrorType
			s.ErrorMessage = o.Message
			m.Results = append(m.Results, s)
			continue
		}

		r := o.Result
		s.Status = "success"
		s.AnalysisID = r.ID
		s.Score = r.Score.OverallScore
		s.Grade = r.Score.Grade
		s.Confidence = string(r.Score.Confidence)
		s.TotalBytes = r.Snapshot.TotalBytes
		s.RequestCount = r.Snapshot.RequestCount
		if len(r.Recommendations) > 0 {
			s.TopFix = r.Recommendations[0].ID
		}
		total += s.Score
		m.Results = append(m.Results, s)
	}
	if m.Successful > 0 {
		m.AverageScore = math.Round(total/float64(m.Successful)*100) / 100
	}
	return m
}

// GenerateSummary writes m under dir as summary-<date>.<ext> and returns the path.
func GenerateSummary(m Manifest, dir string, format storage.Format, s *storage.Storage) (string, error) {
	date := time.Now().Format("2006-01-02")
	if t, err := time.Parse(time.RFC3339, m.GeneratedAt); err == nil {
		date = t.Format("2006-01-02")
	}
	manifestPath := filepath.Join(dir, fmt.Sprintf("summary-%s%s", date, format.Ext()))
	if err := s.WriteReport(manifestPath, m); err != nil {
		return "", fmt.Errorf("error saving manifest: %w", err)
	}
	return manifestPath, nil
}
