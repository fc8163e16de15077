package capture

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies why a capture failed.
type Kind string

const (
	KindTimeout            Kind = "timeout"
	KindNavigationFailed   Kind = "navigation_failed"
	KindBrowserUnavailable Kind = "browser_unavailable"
)

// Sentinels for errors.Is against a *CaptureError.
var (
	ErrTimeout            = errors.New("capture timed out")
	ErrNavigationFailed   = errors.New("navigation failed")
	ErrBrowserUnavailable = errors.New("browser unavailable")
)

// CaptureError is returned by every Capturer when a page could not be captured.
type CaptureError struct {
	Kind Kind
	URL  string
	Err  error
}

// NewError builds a CaptureError.
func NewError(kind Kind, url string, err error) *CaptureError {
	return &CaptureError{Kind: kind, URL: url, Err: err}
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("capture %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to the error kind.
func (e *CaptureError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrNavigationFailed:
		return e.Kind == KindNavigationFailed
	case ErrBrowserUnavailable:
		return e.Kind == KindBrowserUnavailable
	}
	return false
}

// KindOf returns the capture error kind of err, or "" when err is not a capture error.
func KindOf(err error) Kind {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// Classify maps an error raised while loading url into the capture taxonomy.
// parent is the caller's context and bounded the one carrying the capture timeout.
// Cancellation by the caller is returned as a plain context error.
func Classify(parent, bounded context.Context, url string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CaptureError
	if errors.As(err, &ce) {
		return err
	}
	if parent.Err() != nil {
		return fmt.Errorf("capture of %s canceled: %w", url, parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(bounded.Err(), context.DeadlineExceeded) {
		return NewError(KindTimeout, url, err)
	}
	return NewError(KindNavigationFailed, url, err)
}
