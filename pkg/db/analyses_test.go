package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/cache"
)

func sampleRecord(id, version string, score float64, storedAt time.Time) cache.Record {
	return cache.Record{
		Result: &models.AnalysisResult{
			ID:            id,
			SchemaVersion: models.ResultSchemaVersion,
			Request:       models.AnalysisRequest{URL: "https://example.com/", CaptureTimeout: 30 * time.Second},
			Snapshot: models.PageSnapshot{
				URL:          "https://example.com/",
				TotalBytes:   2048,
				RequestCount: 4,
				BytesByType:  map[models.ResourceType]int64{models.ResourceHTML: 2048},
			},
			Score: models.ScoreBreakdown{
				OverallScore:   score,
				CategoryScores: map[models.Category]float64{models.CategoryHosting: 50},
				ModelVersion:   version,
				Confidence:     models.ConfidenceHigh,
				Grade:          "A",
			},
			Recommendations: []models.Recommendation{{ID: "green-hosting", Severity: models.SeverityLow}},
		},
		StoredAt:  storedAt,
		ExpiresAt: storedAt.Add(time.Hour),
	}
}

func TestStore_SaveLoad(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	rec, err := db.Load(ctx, "https://example.com/")
	if err != nil || rec != nil {
		t.Fatalf("Load() on empty db = %v, %v; want nil, nil", rec, err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)
	if err := db.Save(ctx, "https://example.com/", sampleRecord("a1", "green-2024.1", 70, base)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := db.Save(ctx, "https://example.com/", sampleRecord("a2", "green-2025.1", 81.5, base.Add(time.Minute))); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	rec, err = db.Load(ctx, "https://example.com/")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if rec == nil {
		t.Fatal("Load() returned nil")
	}
	if rec.Result.ID != "a2" {
		t.Errorf("Load() returned %s, want newest a2", rec.Result.ID)
	}
	if !rec.StoredAt.Equal(base.Add(time.Minute)) || !rec.ExpiresAt.Equal(base.Add(time.Minute+time.Hour)) {
		t.Errorf("times did not round-trip: %v %v", rec.StoredAt, rec.ExpiresAt)
	}
	if rec.Result.Score.OverallScore != 81.5 || rec.Result.Score.CategoryScores[models.CategoryHosting] != 50 {
		t.Errorf("score did not round-trip: %+v", rec.Result.Score)
	}
	if len(rec.Result.Recommendations) != 1 || rec.Result.Recommendations[0].Severity != models.SeverityLow {
		t.Errorf("recommendations did not round-trip: %+v", rec.Result.Recommendations)
	}
}

func TestForModel_SkipsOtherModels(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	base := time.Now().UTC().Add(-2 * time.Minute)
	if err := db.Save(ctx, "https://example.com/", sampleRecord("current", "green-2025.1", 80, base)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := db.Save(ctx, "https://example.com/", sampleRecord("other", "green-2024.1", 60, base.Add(time.Minute))); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	rec, err := db.ForModel("green-2025.1").Load(ctx, "https://example.com/")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if rec == nil || rec.Result.ID != "current" {
		t.Errorf("Load() = %+v, want the older analysis of the requested model", rec)
	}

	rec, err = db.ForModel("green-1999.9").Load(ctx, "https://example.com/")
	if err != nil || rec != nil {
		t.Errorf("Load() for a model without analyses = %v, %v; want nil, nil", rec, err)
	}

	// The unscoped store still returns the newest row of any model.
	rec, err = db.Load(ctx, "https://example.com/")
	if err != nil || rec == nil || rec.Result.ID != "other" {
		t.Errorf("DB.Load() = %v, %v; want newest row", rec, err)
	}

	// A cache bound to the model reuses its analysis instead of computing.
	c := cache.New(cache.Options{Store: db.ForModel("green-2025.1")})
	req, _ := models.NewAnalysisRequest("https://example.com")
	res, err := c.GetOrCompute(ctx, req, func(context.Context, models.AnalysisRequest) (*models.AnalysisResult, error) {
		return nil, errors.New("should not compute")
	})
	if err != nil {
		t.Fatalf("GetOrCompute() failed: %v", err)
	}
	if res.ID != "current" {
		t.Errorf("GetOrCompute() = %s, want current", res.ID)
	}
}

func TestStore_Delete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	if err := db.Save(ctx, "https://example.com/", sampleRecord("a1", "green-2025.1", 80, now)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := db.Delete(ctx, "https://example.com/"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	rec, err := db.Load(ctx, "https://example.com/")
	if err != nil || rec != nil {
		t.Errorf("Load() after Delete() = %v, %v; want nil, nil", rec, err)
	}

	// History keeps the invalidated row.
	list, err := db.ListAnalyses(ctx, HistoryFilter{})
	if err != nil {
		t.Fatalf("ListAnalyses() failed: %v", err)
	}
	if len(list) != 1 || !list[0].Invalidated {
		t.Errorf("ListAnalyses() = %+v, want one invalidated row", list)
	}

	// Deleting an unknown key is not an error.
	if err := db.Delete(ctx, "https://unknown.example/"); err != nil {
		t.Errorf("Delete() of unknown key failed: %v", err)
	}
}

func TestListAnalyses(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db.Save(ctx, "https://example.com/", sampleRecord("a1", "green-2024.1", 70, base))
	db.Save(ctx, "https://example.com/", sampleRecord("a2", "green-2025.1", 80, base.Add(time.Minute)))
	db.Save(ctx, "https://other.example/", sampleRecord("b1", "green-2025.1", 60, base.Add(2*time.Minute)))

	tests := []struct {
		name    string
		filter  HistoryFilter
		wantIDs []string
	}{
		{"all newest first", HistoryFilter{}, []string{"b1", "a2", "a1"}},
		{"by url", HistoryFilter{URL: "https://EXAMPLE.com"}, []string{"a2", "a1"}},
		{"by model version", HistoryFilter{ModelVersion: "green-2024.1"}, []string{"a1"}},
		{"limit", HistoryFilter{Limit: 1}, []string{"b1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := db.ListAnalyses(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAnalyses() failed: %v", err)
			}
			if len(list) != len(tt.wantIDs) {
				t.Fatalf("ListAnalyses() returned %d rows, want %d", len(list), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if list[i].ID != id {
					t.Errorf("row %d = %s, want %s", i, list[i].ID, id)
				}
			}
		})
	}

	list, _ := db.ListAnalyses(ctx, HistoryFilter{URL: "https://other.example/"})
	if list[0].ModelVersion != "green-2025.1" || list[0].OverallScore != 60 || list[0].TotalBytes != 2048 || list[0].RequestCount != 4 {
		t.Errorf("summary = %+v", list[0])
	}
}

func TestGetAnalysis(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	db.Save(ctx, "https://example.com/", sampleRecord("a1", "green-2024.1", 70, time.Now()))

	got, err := db.GetAnalysis(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAnalysis() failed: %v", err)
	}
	if got.Score.ModelVersion != "green-2024.1" {
		t.Errorf("model version = %s", got.Score.ModelVersion)
	}

	if _, err := db.GetAnalysis(ctx, "missing"); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("GetAnalysis(missing) error = %v, want ErrAnalysisNotFound", err)
	}

	latest, err := db.LatestAnalysis(ctx, "https://example.com")
	if err != nil || latest.ID != "a1" {
		t.Errorf("LatestAnalysis() = %v, %v", latest, err)
	}
	if _, err := db.LatestAnalysis(ctx, "https://none.example/"); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("LatestAnalysis(none) error = %v", err)
	}
}

func TestStore_UsedByCache(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	c := cache.New(cache.Options{Store: db})
	req, _ := models.NewAnalysisRequest("https://example.com")
	calls := 0
	compute := func(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
		calls++
		r := sampleRecord("c1", "green-2025.1", 77, time.Now()).Result
		return r, nil
	}
	if _, err := c.GetOrCompute(context.Background(), req, compute); err != nil {
		t.Fatalf("GetOrCompute() failed: %v", err)
	}

	fresh := cache.New(cache.Options{Store: db})
	res, err := fresh.GetOrCompute(context.Background(), req, compute)
	if err != nil {
		t.Fatalf("GetOrCompute() failed: %v", err)
	}
	if calls != 1 || res.ID != "c1" {
		t.Errorf("second cache should reuse the stored analysis, calls = %d, id = %s", calls, res.ID)
	}
}
