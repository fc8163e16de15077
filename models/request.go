package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultCaptureTimeout = 30 * time.Second
	DefaultViewportWidth  = 1366
	DefaultViewportHeight = 768
)

// ErrInvalidURL is returned when a request URL is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid analysis URL")

// Viewport is the browser window size used for a capture.
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// String renders the viewport as WIDTHxHEIGHT.
func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// ParseViewport parses a WIDTHxHEIGHT string such as "1366x768".
func ParseViewport(s string) (*Viewport, error) {
	var v Viewport
	if _, err := fmt.Sscanf(strings.ToLower(strings.TrimSpace(s)), "%dx%d", &v.Width, &v.Height); err != nil {
		return nil, fmt.Errorf("invalid viewport %q: %w", s, err)
	}
	if v.Width <= 0 || v.Height <= 0 {
		return nil, fmt.Errorf("invalid viewport %q: dimensions must be positive", s)
	}
	return &v, nil
}

// AnalysisRequest is the sole input of the analysis pipeline.
// It is treated as immutable once built by NewAnalysisRequest.
type AnalysisRequest struct {
	URL             string        `json:"url" yaml:"url"`
	FreshnessWindow time.Duration `json:"freshness_window,omitempty" yaml:"freshness_window,omitempty"`
	CaptureTimeout  time.Duration `json:"capture_timeout" yaml:"capture_timeout"`
	Viewport        *Viewport     `json:"viewport,omitempty" yaml:"viewport,omitempty"`
}

// RequestOption customises an AnalysisRequest.
type RequestOption func(*AnalysisRequest)

// WithFreshnessWindow accepts a cached result younger than d.
func WithFreshnessWindow(d time.Duration) RequestOption {
	return func(r *AnalysisRequest) { r.FreshnessWindow = d }
}

// WithCaptureTimeout sets the hard ceiling for the page load.
func WithCaptureTimeout(d time.Duration) RequestOption {
	return func(r *AnalysisRequest) {
		if d > 0 {
			r.CaptureTimeout = d
		}
	}
}

// WithViewport sets the browser window size.
func WithViewport(v *Viewport) RequestOption {
	return func(r *AnalysisRequest) {
		if v != nil {
			vv := *v
			r.Viewport = &vv
		}
	}
}

// NewAnalysisRequest validates rawURL and builds a request.
func NewAnalysisRequest(rawURL string, opts ...RequestOption) (AnalysisRequest, error) {
	if err := ValidateURL(rawURL); err != nil {
		return AnalysisRequest{}, err
	}
	req := AnalysisRequest{
		URL:            rawURL,
		CaptureTimeout: DefaultCaptureTimeout,
	}
	for _, o := range opts {
		o(&req)
	}
	if req.FreshnessWindow < 0 {
		req.FreshnessWindow = 0
	}
	return req, nil
}

// ValidateURL checks that rawURL is absolute with an http or https scheme and a host.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}
	return nil
}

// EffectiveViewport returns the requested viewport or the default one.
func (r AnalysisRequest) EffectiveViewport() Viewport {
	if r.Viewport != nil {
		return *r.Viewport
	}
	return Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
}
