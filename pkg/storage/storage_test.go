package storage

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alexis-pagnon/green-optimizer/models"
)

func sampleResult() *models.AnalysisResult {
	delta := 4.5
	savings := int64(120000)
	return &models.AnalysisResult{
		ID:            "0192f0c4-aaaa-7bbb-8ccc-000000000001",
		SchemaVersion: models.ResultSchemaVersion,
		Request:       models.AnalysisRequest{URL: "https://example.com/", CaptureTimeout: 30 * time.Second},
		Snapshot: models.PageSnapshot{
			URL:         "https://example.com/",
			TotalBytes:  512000,
			BytesByType: map[models.ResourceType]int64{models.ResourceImage: 400000},
		},
		Score: models.ScoreBreakdown{
			OverallScore:   63.2,
			CategoryScores: map[models.Category]float64{models.CategoryTransfer: 70},
			ModelVersion:   "green-2025.1",
			Grade:          "C",
		},
		Recommendations: []models.Recommendation{{
			ID:                   "compress-images",
			Severity:             models.SeverityMedium,
			EstimatedByteSavings: &savings,
			EstimatedScoreDelta:  &delta,
		}},
	}
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"report.json", FormatJSON},
		{"report.YAML", FormatYAML},
		{"out/report.yml", FormatYAML},
		{"report", FormatJSON},
	}
	for _, tt := range tests {
		if got := FormatFor(tt.path); got != tt.want {
			t.Errorf("FormatFor(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("YML"); err != nil || f != FormatYAML {
		t.Errorf("ParseFormat(YML) = %s, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestWriteReadReport(t *testing.T) {
	s := &Storage{}
	dir := t.TempDir()

	for _, name := range []string{"nested/report.json", "report.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := s.WriteReport(path, sampleResult()); err != nil {
				t.Fatalf("WriteReport() failed: %v", err)
			}
			if !s.HasFile(path) {
				t.Fatal("report file missing")
			}

			data, _ := s.ReadFile(path)
			if !strings.Contains(string(data), "medium") {
				t.Errorf("severity should be written by name:\n%s", data)
			}

			var got models.AnalysisResult
			if err := s.ReadReport(path, &got); err != nil {
				t.Fatalf("ReadReport() failed: %v", err)
			}
			if got.Score.OverallScore != 63.2 || got.Snapshot.BytesByType[models.ResourceImage] != 400000 {
				t.Errorf("report did not round-trip: %+v", got.Score)
			}
			if len(got.Recommendations) != 1 || *got.Recommendations[0].EstimatedScoreDelta != 4.5 {
				t.Errorf("recommendations did not round-trip: %+v", got.Recommendations)
			}

			stats, err := s.GetFileStats(path)
			if err != nil || stats.SizeBytes == 0 {
				t.Errorf("GetFileStats() = %+v, %v", stats, err)
			}
		})
	}
}
