// Package analyzer composes capture, extraction, scoring and recommendation
// behind the result cache.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/artifact_manager"
	"github.com/alexis-pagnon/green-optimizer/pkg/cache"
	"github.com/alexis-pagnon/green-optimizer/pkg/capture"
	"github.com/alexis-pagnon/green-optimizer/pkg/db"
	"github.com/alexis-pagnon/green-optimizer/pkg/extractor"
	"github.com/alexis-pagnon/green-optimizer/pkg/recommend"
	"github.com/alexis-pagnon/green-optimizer/pkg/scoring"
)

// Config wires the pipeline stages. Capturer and Extractor are required.
type Config struct {
	Capturer  capture.Capturer
	Extractor *extractor.Extractor
	Scorer    *scoring.Engine
	Rules     []recommend.Rule

	// Workers bounds concurrent captures. Default: 2.
	Workers int
	// ModelVersion scores new analyses. Default: scoring.DefaultModelVersion.
	ModelVersion string
	// FreshnessWindow applies when a request does not set its own.
	FreshnessWindow time.Duration

	// DB, when set, persists results and records every capture attempt.
	DB *db.DB
	// Artifacts, when set, keeps each raw capture on disk.
	Artifacts *artifact_manager.Manager

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.ModelVersion == "" {
		c.ModelVersion = scoring.DefaultModelVersion
	}
	if c.Scorer == nil {
		c.Scorer = scoring.NewEngine()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Analyzer runs analyses. It is safe for concurrent use.
type Analyzer struct {
	cfg         Config
	pool        *capture.Pool
	cache       *cache.Cache
	recommender *recommend.Engine
	now         func() time.Time
}

// New validates cfg and builds an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	cfg.defaults()
	if cfg.Capturer == nil {
		return nil, fmt.Errorf("analyzer: capturer is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("analyzer: extractor is required")
	}
	if !cfg.Scorer.Supports(cfg.ModelVersion) {
		return nil, &scoring.ScoringError{Version: cfg.ModelVersion}
	}

	opts := cache.Options{
		FreshnessWindow: cfg.FreshnessWindow,
		Logger:          cfg.Logger,
		// Results of another model version are never served as current.
		Accept: func(r *models.AnalysisResult) bool {
			return r.Score.ModelVersion == cfg.ModelVersion && r.SchemaVersion == models.ResultSchemaVersion
		},
	}
	if cfg.DB != nil {
		opts.Store = cfg.DB.ForModel(cfg.ModelVersion)
	}

	return &Analyzer{
		cfg:         cfg,
		pool:        capture.NewPool(cfg.Capturer, cfg.Workers),
		cache:       cache.New(opts),
		recommender: recommend.New(cfg.Scorer, cfg.Rules...),
		now:         time.Now,
	}, nil
}

// ModelVersion returns the model used for new analyses.
func (a *Analyzer) ModelVersion() string {
	return a.cfg.ModelVersion
}

// Versions lists the scoring models the analyzer can rescore with.
func (a *Analyzer) Versions() []string {
	return a.cfg.Scorer.Versions()
}

// Cache exposes the result cache to read-only consumers.
func (a *Analyzer) Cache() *cache.Cache {
	return a.cache
}

// Pool exposes the capture pool.
func (a *Analyzer) Pool() *capture.Pool {
	return a.pool
}

// Analyze returns a fresh cached result for req or computes one. Concurrent
// calls for the same URL share a single capture.
func (a *Analyzer) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	return a.cache.GetOrCompute(ctx, req, a.compute)
}

// Cached returns the fresh result for rawURL without computing anything.
func (a *Analyzer) Cached(ctx context.Context, rawURL string) (*models.AnalysisResult, bool) {
	return a.cache.Get(ctx, rawURL)
}

// Invalidate forces the next analysis of rawURL to capture again.
func (a *Analyzer) Invalidate(ctx context.Context, rawURL string) error {
	return a.cache.Invalidate(ctx, rawURL)
}

func (a *Analyzer) compute(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	log := a.cfg.Logger.With("url", req.URL)

	started := a.now()
	raw, err := a.pool.Capture(ctx, req)
	a.recordAccess(req.URL, raw, err, a.now().Sub(started))
	if err != nil {
		log.Warn("analyzer: capture failed", "kind", capture.KindOf(err), "error", err)
		return nil, err
	}

	snap := a.cfg.Extractor.Extract(ctx, raw)
	result, err := a.build(req, snap, a.cfg.ModelVersion)
	if err != nil {
		return nil, err
	}

	a.saveCapture(result, raw)
	log.Info("analyzer: analysis complete",
		"id", result.ID,
		"score", result.Score.OverallScore,
		"grade", result.Score.Grade,
		"bytes", snap.TotalBytes,
		"requests", snap.RequestCount,
		"engine", raw.Engine,
	)
	return result, nil
}

// build scores snap and attaches recommendations under a new ID.
func (a *Analyzer) build(req models.AnalysisRequest, snap models.PageSnapshot, version string) (*models.AnalysisResult, error) {
	score, err := a.cfg.Scorer.Score(snap, version)
	if err != nil {
		return nil, err
	}
	return &models.AnalysisResult{
		ID:              newID(),
		SchemaVersion:   models.ResultSchemaVersion,
		Request:         req,
		Snapshot:        snap,
		Score:           score,
		Recommendations: a.recommender.Recommend(snap, score),
		GeneratedAt:     a.now().UTC(),
	}, nil
}

func (a *Analyzer) recordAccess(rawURL string, raw *capture.RawCapture, err error, elapsed time.Duration) {
	if a.cfg.DB == nil {
		return
	}
	urlID, dbErr := a.cfg.DB.InsertURL(rawURL)
	if dbErr != nil {
		a.cfg.Logger.Warn("analyzer: failed to record URL", "url", rawURL, "error", dbErr)
		return
	}
	access := db.Access{DurationMs: elapsed.Milliseconds(), Success: err == nil}
	if raw != nil {
		access.Engine = raw.Engine
	}
	if err != nil {
		access.ErrorType = string(capture.KindOf(err))
		if access.ErrorType == "" {
			access.ErrorType = "canceled"
		}
	}
	if dbErr := a.cfg.DB.RecordAccess(urlID, access); dbErr != nil {
		a.cfg.Logger.Warn("analyzer: failed to record access", "url", rawURL, "error", dbErr)
	}
}

func (a *Analyzer) saveCapture(result *models.AnalysisResult, raw *capture.RawCapture) {
	if a.cfg.Artifacts == nil {
		return
	}
	art, err := a.cfg.Artifacts.SaveCapture(result.ID, raw)
	if err != nil {
		a.cfg.Logger.Warn("analyzer: failed to save capture", "url", raw.RequestedURL, "error", err)
		return
	}
	if a.cfg.DB == nil {
		return
	}
	urlID, err := a.cfg.DB.InsertURL(raw.RequestedURL)
	if err == nil {
		_, err = a.cfg.DB.InsertArtifact(urlID, db.ArtifactInfo{
			AnalysisID:  result.ID,
			Kind:        "capture",
			ContentHash: art.ContentHash,
			FilePath:    art.Path,
			SizeBytes:   art.SizeBytes,
		})
	}
	if err != nil {
		a.cfg.Logger.Warn("analyzer: failed to index capture", "url", raw.RequestedURL, "error", err)
	}
}

// newID returns a time-ordered UUID so IDs sort by creation.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
