// Package capture loads a page in an isolated browsing context and records
// every network exchange, DOM facts and coverage needed to measure it.
package capture

import (
	"context"
	"time"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// Capturer turns an analysis request into a raw capture.
// Implementations never write to disk and release every browser resource before returning.
type Capturer interface {
	Capture(ctx context.Context, req models.AnalysisRequest) (*RawCapture, error)
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(ctx context.Context, req models.AnalysisRequest) (*RawCapture, error)

func (f CapturerFunc) Capture(ctx context.Context, req models.AnalysisRequest) (*RawCapture, error) {
	return f(ctx, req)
}

// Exchange is one network request with its outcome. Failed exchanges keep
// zero bytes and the failure reason.
type Exchange struct {
	URL           string `json:"url" yaml:"url"`
	ResourceType  string `json:"resource_type" yaml:"resource_type"`
	MimeType      string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
	Status        int    `json:"status" yaml:"status"`
	EncodedBytes  int64  `json:"encoded_bytes" yaml:"encoded_bytes"`
	Failed        bool   `json:"failed,omitempty" yaml:"failed,omitempty"`
	FailureReason string `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	FromCache     bool   `json:"from_cache,omitempty" yaml:"from_cache,omitempty"`
	StartMs       int64  `json:"start_ms" yaml:"start_ms"`
	DurationMs    int64  `json:"duration_ms" yaml:"duration_ms"`
}

// Timing holds page timing marks in milliseconds since navigation start. Zero means unavailable.
type Timing struct {
	DOMContentLoadedMs     int64 `json:"dom_content_loaded_ms" yaml:"dom_content_loaded_ms"`
	LoadEventMs            int64 `json:"load_event_ms" yaml:"load_event_ms"`
	FirstContentfulPaintMs int64 `json:"first_contentful_paint_ms" yaml:"first_contentful_paint_ms"`
	NetworkIdleMs          int64 `json:"network_idle_ms" yaml:"network_idle_ms"`
}

// DOMImage is an <img> element as rendered.
type DOMImage struct {
	Src    string `json:"src" yaml:"src"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

// ZeroSize reports whether the image occupies no layout area.
func (i DOMImage) ZeroSize() bool {
	return i.Width == 0 || i.Height == 0
}

// FileCoverage is the used/unused split of one script or stylesheet, in decoded bytes.
type FileCoverage struct {
	URL         string `json:"url" yaml:"url"`
	Type        string `json:"type" yaml:"type"`
	TotalBytes  int64  `json:"total_bytes" yaml:"total_bytes"`
	UnusedBytes int64  `json:"unused_bytes" yaml:"unused_bytes"`
}

// UnusedRatio returns the unused share in [0,1].
func (f FileCoverage) UnusedRatio() float64 {
	if f.TotalBytes <= 0 {
		return 0
	}
	r := float64(f.UnusedBytes) / float64(f.TotalBytes)
	if r > 1 {
		return 1
	}
	return r
}

// RawCapture is everything observed during one page load.
type RawCapture struct {
	RequestedURL        string         `json:"requested_url" yaml:"requested_url"`
	FinalURL            string         `json:"final_url" yaml:"final_url"`
	Title               string         `json:"title,omitempty" yaml:"title,omitempty"`
	Exchanges           []Exchange     `json:"exchanges" yaml:"exchanges"`
	DOMNodeCount        int            `json:"dom_node_count" yaml:"dom_node_count"`
	Timing              Timing         `json:"timing" yaml:"timing"`
	Images              []DOMImage     `json:"images,omitempty" yaml:"images,omitempty"`
	BackgroundImageURLs []string       `json:"background_image_urls,omitempty" yaml:"background_image_urls,omitempty"`
	Coverage            []FileCoverage `json:"coverage,omitempty" yaml:"coverage,omitempty"`
	Engine              string         `json:"engine" yaml:"engine"`
	StartedAt           time.Time      `json:"started_at" yaml:"started_at"`
	Notes               []string       `json:"notes,omitempty" yaml:"notes,omitempty"`
}
