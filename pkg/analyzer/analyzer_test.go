package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/artifact_manager"
	"github.com/alexis-pagnon/green-optimizer/pkg/cache"
	"github.com/alexis-pagnon/green-optimizer/pkg/capture"
	"github.com/alexis-pagnon/green-optimizer/pkg/db"
	"github.com/alexis-pagnon/green-optimizer/pkg/extractor"
	"github.com/alexis-pagnon/green-optimizer/pkg/greenhost"
	"github.com/alexis-pagnon/green-optimizer/pkg/scoring"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func pageCapture(rawURL string) *capture.RawCapture {
	return &capture.RawCapture{
		RequestedURL: rawURL,
		FinalURL:     rawURL,
		Title:        "Shop",
		Engine:       "browser",
		DOMNodeCount: 900,
		StartedAt:    time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		Timing:       capture.Timing{LoadEventMs: 1200},
		Exchanges: []capture.Exchange{
			{URL: rawURL, ResourceType: "Document", Status: 200, EncodedBytes: 40_000},
			{URL: "https://cdn.example.net/app.js", ResourceType: "Script", Status: 200, EncodedBytes: 700_000},
			{URL: "https://cdn.example.net/hero.jpg", ResourceType: "Image", Status: 200, EncodedBytes: 900_000},
			{URL: "https://fonts.example.io/a.woff2", ResourceType: "Font", Status: 200, EncodedBytes: 60_000},
		},
	}
}

// fakeCapturer serves pageCapture for every URL except those in fail.
type fakeCapturer struct {
	calls   atomic.Int32
	release chan struct{}
	fail    map[string]error
}

func (f *fakeCapturer) Capture(ctx context.Context, req models.AnalysisRequest) (*capture.RawCapture, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.fail[req.URL]; ok {
		return nil, err
	}
	return pageCapture(req.URL), nil
}

func newAnalyzer(t *testing.T, c capture.Capturer, mutate func(*Config)) *Analyzer {
	t.Helper()
	cfg := Config{
		Capturer:  c,
		Extractor: extractor.New(greenhost.Unknown{}, quiet),
		Logger:    quiet,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return a
}

func mustRequest(t *testing.T, rawURL string) models.AnalysisRequest {
	t.Helper()
	req, err := models.NewAnalysisRequest(rawURL)
	if err != nil {
		t.Fatalf("NewAnalysisRequest() failed: %v", err)
	}
	return req
}

func openDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Extractor: extractor.New(nil, quiet)}); err == nil {
		t.Error("New() without capturer should fail")
	}
	if _, err := New(Config{Capturer: &fakeCapturer{}}); err == nil {
		t.Error("New() without extractor should fail")
	}
	_, err := New(Config{Capturer: &fakeCapturer{}, Extractor: extractor.New(nil, quiet), ModelVersion: "green-1999.9"})
	if !errors.Is(err, scoring.ErrUnknownModelVersion) {
		t.Errorf("New() with unknown model error = %v, want ErrUnknownModelVersion", err)
	}
}

func TestAnalyze(t *testing.T) {
	fc := &fakeCapturer{}
	a := newAnalyzer(t, fc, nil)

	res, err := a.Analyze(context.Background(), mustRequest(t, "https://shop.example.com/"))
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}
	if res.ID == "" || res.SchemaVersion != models.ResultSchemaVersion {
		t.Errorf("result header = %q / %d", res.ID, res.SchemaVersion)
	}
	if res.Snapshot.TotalBytes != 1_700_000 || res.Snapshot.RequestCount != 4 {
		t.Errorf("snapshot = %d bytes / %d requests", res.Snapshot.TotalBytes, res.Snapshot.RequestCount)
	}
	if res.Score.ModelVersion != scoring.DefaultModelVersion {
		t.Errorf("ModelVersion = %s, want %s", res.Score.ModelVersion, scoring.DefaultModelVersion)
	}
	if res.Score.CategoryScores[models.CategoryHosting] != 50 {
		t.Errorf("unknown hosting should score 50, got %v", res.Score.CategoryScores[models.CategoryHosting])
	}
	if len(res.Recommendations) == 0 {
		t.Error("expected recommendations for a 1.7MB page")
	}
	if res.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}

	again, err := a.Analyze(context.Background(), mustRequest(t, "https://SHOP.example.com"))
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}
	if again.ID != res.ID || fc.calls.Load() != 1 {
		t.Errorf("second analysis should be served from cache (calls = %d)", fc.calls.Load())
	}
	if cached, ok := a.Cached(context.Background(), "https://shop.example.com/"); !ok || cached.ID != res.ID {
		t.Error("Cached() should return the stored result")
	}
}

func TestAnalyze_ConcurrentCallersShareOneCapture(t *testing.T) {
	fc := &fakeCapturer{release: make(chan struct{})}
	a := newAnalyzer(t, fc, func(c *Config) { c.Workers = 4 })
	req := mustRequest(t, "https://shop.example.com/")

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := a.Analyze(context.Background(), req)
			if err != nil {
				t.Errorf("Analyze() failed: %v", err)
				return
			}
			ids[i] = res.ID
		}(i)
	}
	for a.Cache().State(req.URL) != cache.StatePending {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(fc.release)
	wg.Wait()

	if fc.calls.Load() != 1 {
		t.Errorf("capture ran %d times, want 1", fc.calls.Load())
	}
	for i := range ids {
		if ids[i] != ids[0] {
			t.Errorf("caller %d got result %s, want %s", i, ids[i], ids[0])
		}
	}
}

func TestAnalyze_CaptureFailure(t *testing.T) {
	target := "https://slow.example.com/"
	fc := &fakeCapturer{fail: map[string]error{
		target: capture.NewError(capture.KindTimeout, target, context.DeadlineExceeded),
	}}
	database := openDB(t)
	a := newAnalyzer(t, fc, func(c *Config) { c.DB = database })

	_, err := a.Analyze(context.Background(), mustRequest(t, target))
	if !errors.Is(err, capture.ErrTimeout) {
		t.Fatalf("Analyze() error = %v, want capture timeout", err)
	}
	if a.Cache().State(target) != cache.StateAbsent {
		t.Errorf("failed key should be absent, got %s", a.Cache().State(target))
	}

	urlID, err := database.GetURLID(target)
	if err != nil {
		t.Fatalf("GetURLID() failed: %v", err)
	}
	access, err := database.GetLastAccess(urlID)
	if err != nil || access == nil {
		t.Fatalf("GetLastAccess() = %v, %v", access, err)
	}
	if access.Success || access.ErrorType != "timeout" {
		t.Errorf("access = %+v, want failed timeout", access)
	}

	// The next request retries.
	delete(fc.fail, target)
	if _, err := a.Analyze(context.Background(), mustRequest(t, target)); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if fc.calls.Load() != 2 {
		t.Errorf("capture ran %d times, want 2", fc.calls.Load())
	}
}

func TestAnalyze_PersistsAcrossProcesses(t *testing.T) {
	database := openDB(t)
	fc := &fakeCapturer{}
	req := mustRequest(t, "https://shop.example.com/")

	first := newAnalyzer(t, fc, func(c *Config) { c.DB = database })
	res, err := first.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}

	second := newAnalyzer(t, fc, func(c *Config) { c.DB = database })
	reused, err := second.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}
	if reused.ID != res.ID || fc.calls.Load() != 1 {
		t.Errorf("stored result should be reused, calls = %d", fc.calls.Load())
	}

	// A different model version never serves the old result as current.
	other := newAnalyzer(t, fc, func(c *Config) {
		c.DB = database
		c.ModelVersion = scoring.VersionLogScale
	})
	fresh, err := other.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}
	if fresh.Score.ModelVersion != scoring.VersionLogScale || fc.calls.Load() != 2 {
		t.Errorf("expected a new capture scored with %s, got %s (calls %d)", scoring.VersionLogScale, fresh.Score.ModelVersion, fc.calls.Load())
	}

	history, err := database.ListAnalyses(context.Background(), db.HistoryFilter{URL: req.URL})
	if err != nil {
		t.Fatalf("ListAnalyses() failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history has %d rows, want 2", len(history))
	}
}

func TestAnalyze_SavesCapture(t *testing.T) {
	database := openDB(t)
	artifacts, err := artifact_manager.NewManager(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}
	a := newAnalyzer(t, &fakeCapturer{}, func(c *Config) {
		c.DB = database
		c.Artifacts = artifacts
	})

	res, err := a.Analyze(context.Background(), mustRequest(t, "https://shop.example.com/"))
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}
	path, err := database.GetArtifactPath(res.ID, "capture")
	if err != nil {
		t.Fatalf("GetArtifactPath() failed: %v", err)
	}
	raw, err := artifacts.LoadCapture(path)
	if err != nil {
		t.Fatalf("LoadCapture() failed: %v", err)
	}
	if len(raw.Exchanges) != 4 {
		t.Errorf("stored capture has %d exchanges, want 4", len(raw.Exchanges))
	}
}

func TestRescore_DoesNotTouchCache(t *testing.T) {
	a := newAnalyzer(t, &fakeCapturer{}, nil)
	req := mustRequest(t, "https://shop.example.com/")
	res, err := a.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}

	rescored, err := a.Rescore(res, scoring.VersionLogScale)
	if err != nil {
		t.Fatalf("Rescore() failed: %v", err)
	}
	if rescored.Score.ModelVersion != scoring.VersionLogScale {
		t.Errorf("ModelVersion = %s", rescored.Score.ModelVersion)
	}
	if rescored.ID == res.ID {
		t.Error("rescored result should get its own ID")
	}
	if rescored.Snapshot.TotalBytes != res.Snapshot.TotalBytes {
		t.Error("rescoring must reuse the snapshot")
	}

	cached, ok := a.Cached(context.Background(), req.URL)
	if !ok || cached.ID != res.ID || cached.Score.ModelVersion != scoring.DefaultModelVersion {
		t.Errorf("cache changed by Rescore(): %+v", cached.Score)
	}

	if _, err := a.Rescore(res, "nope"); !errors.Is(err, scoring.ErrUnknownModelVersion) {
		t.Errorf("Rescore(nope) error = %v", err)
	}
	if _, err := a.Rescore(nil, ""); err == nil {
		t.Error("Rescore(nil) should fail")
	}
}

func TestReextract(t *testing.T) {
	hosts := greenhost.NewStatic(greenhost.StaticList{Green: []greenhost.StaticEntry{{Domain: "example.com"}}})
	a := newAnalyzer(t, &fakeCapturer{}, func(c *Config) { c.Extractor = extractor.New(hosts, quiet) })

	res, err := a.Reextract(context.Background(), pageCapture("https://shop.example.com/"), "")
	if err != nil {
		t.Fatalf("Reextract() failed: %v", err)
	}
	if !res.Snapshot.GreenHost.IsGreen {
		t.Error("reextraction should apply the current green-host directory")
	}
	if res.Score.CategoryScores[models.CategoryHosting] != 100 {
		t.Errorf("hosting = %v, want 100", res.Score.CategoryScores[models.CategoryHosting])
	}
	if a.Cache().Len() != 0 {
		t.Error("Reextract() must not populate the cache")
	}
}

func TestAnalyzeAll(t *testing.T) {
	bad := "https://broken.example.com/"
	fc := &fakeCapturer{fail: map[string]error{
		bad: capture.NewError(capture.KindNavigationFailed, bad, errors.New("net::ERR_NAME_NOT_RESOLVED")),
	}}
	a := newAnalyzer(t, fc, func(c *Config) { c.Workers = 3 })

	urls := []string{"https://a.example.com/", bad, "https://b.example.com/", "https://a.example.com"}
	reqs := make([]models.AnalysisRequest, len(urls))
	for i, u := range urls {
		reqs[i] = mustRequest(t, u)
	}

	outcomes := a.AnalyzeAll(context.Background(), reqs)
	if len(outcomes) != len(urls) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(urls))
	}
	for i, o := range outcomes {
		if o.URL != urls[i] {
			t.Errorf("outcome %d is for %s, want %s", i, o.URL, urls[i])
		}
	}
	if outcomes[1].Error == nil || outcomes[1].ErrorType != "navigation_failed" {
		t.Errorf("broken outcome = %+v", outcomes[1])
	}
	if outcomes[0].Result == nil || outcomes[3].Result == nil || outcomes[0].Result.ID != outcomes[3].Result.ID {
		t.Error("equivalent URLs in a batch should share one analysis")
	}

	summary := Summarize(outcomes, 2)
	if summary.Succeeded != 3 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.TopHosts) != 2 || summary.TopHosts[0].Host != "cdn.example.net" || summary.TopHosts[0].Bytes != 3*1_600_000 {
		t.Errorf("TopHosts = %+v", summary.TopHosts)
	}
	LogSummary(quiet, summary)
}
