package capture

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// Fallback captures with Primary and retries with Secondary only when the
// browser could not be obtained. Timeouts and navigation failures are final.
type Fallback struct {
	Primary   Capturer
	Secondary Capturer
	Logger    *slog.Logger
}

func (f *Fallback) Capture(ctx context.Context, req models.AnalysisRequest) (*RawCapture, error) {
	raw, err := f.Primary.Capture(ctx, req)
	if err == nil || f.Secondary == nil || !errors.Is(err, ErrBrowserUnavailable) {
		return raw, err
	}

	log := f.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Warn("browser unavailable, falling back to http capture", "url", req.URL, "error", err)

	raw, err = f.Secondary.Capture(ctx, req)
	if err != nil {
		return nil, err
	}
	raw.Notes = append(raw.Notes, "browser unavailable: captured over plain HTTP, no script execution or coverage")
	return raw, nil
}
