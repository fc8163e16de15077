package analyzer

import (
	"context"
	"fmt"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/capture"
)

// Rescore scores the snapshot of a stored result under version without
// capturing again. The result cache is not read or written.
func (a *Analyzer) Rescore(src *models.AnalysisResult, version string) (*models.AnalysisResult, error) {
	if src == nil {
		return nil, fmt.Errorf("rescore: no source result")
	}
	if version == "" {
		version = a.cfg.ModelVersion
	}
	return a.build(src.Request, src.Snapshot.Clone(), version)
}

// Reextract rebuilds the snapshot from a stored raw capture, so extraction
// changes such as a new green-host directory apply, and scores it under
// version. The result cache is not read or written.
func (a *Analyzer) Reextract(ctx context.Context, raw *capture.RawCapture, version string) (*models.AnalysisResult, error) {
	if raw == nil {
		return nil, fmt.Errorf("reextract: no capture")
	}
	if version == "" {
		version = a.cfg.ModelVersion
	}
	req, err := models.NewAnalysisRequest(raw.RequestedURL)
	if err != nil {
		return nil, err
	}
	return a.build(req, a.cfg.Extractor.Extract(ctx, raw), version)
}
