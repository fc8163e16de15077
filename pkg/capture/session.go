package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// CapturerConfig tunes a BrowserCapturer.
type CapturerConfig struct {
	// Stealth masks common headless fingerprints.
	Stealth bool

	// Coverage records JS and CSS coverage for dead code detection.
	Coverage bool

	// IdleQuiet is how long the network must stay silent to count as idle. Default: 500ms.
	IdleQuiet time.Duration

	// IdleMax bounds the wait for network idle after the load event. Default: 5s.
	IdleMax time.Duration

	// MaxExchanges caps the recorded requests. Default: 5000.
	MaxExchanges int

	Logger *slog.Logger
}

func (c *CapturerConfig) defaults() {
	if c.IdleQuiet <= 0 {
		c.IdleQuiet = defaultIdleQuiet
	}
	if c.IdleMax <= 0 {
		c.IdleMax = defaultIdleMax
	}
	if c.MaxExchanges <= 0 {
		c.MaxExchanges = defaultMaxExchanges
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserCapturer loads pages in a fresh incognito context of a managed Chrome.
type BrowserCapturer struct {
	manager *BrowserManager
	cfg     CapturerConfig
}

// NewBrowserCapturer creates a capturer backed by manager.
func NewBrowserCapturer(manager *BrowserManager, cfg CapturerConfig) *BrowserCapturer {
	cfg.defaults()
	return &BrowserCapturer{manager: manager, cfg: cfg}
}

// pageState is what the in-page probe reports once the page has settled.
type pageState struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	DOMNodes    int        `json:"domNodes"`
	DCL         int64      `json:"dcl"`
	Load        int64      `json:"load"`
	FCP         int64      `json:"fcp"`
	Images      []DOMImage `json:"images"`
	Backgrounds []string   `json:"backgrounds"`
}

const pageProbe = `() => {
	const nav = performance.getEntriesByType('navigation')[0];
	const fcp = performance.getEntriesByName('first-contentful-paint')[0];
	const images = Array.from(document.images).map(i => ({
		src: i.currentSrc || i.src,
		width: i.offsetWidth,
		height: i.offsetHeight,
	}));
	const backgrounds = new Set();
	for (const el of document.querySelectorAll('*')) {
		const value = getComputedStyle(el).backgroundImage;
		if (!value || value === 'none') continue;
		for (const m of value.matchAll(/url\(["']?([^"')]+)["']?\)/g)) {
			try { backgrounds.add(new URL(m[1], document.baseURI).href); } catch (e) {}
		}
	}
	return JSON.stringify({
		title: document.title,
		url: location.href,
		domNodes: document.getElementsByTagName('*').length,
		dcl: nav ? Math.round(nav.domContentLoadedEventEnd) : 0,
		load: nav ? Math.round(nav.loadEventEnd) : 0,
		fcp: fcp ? Math.round(fcp.startTime) : 0,
		images: images,
		backgrounds: Array.from(backgrounds),
	});
}`

// Capture loads req.URL once. req.CaptureTimeout is a hard ceiling for the
// whole capture. The page and its incognito context are released on every path.
func (c *BrowserCapturer) Capture(ctx context.Context, req models.AnalysisRequest) (*RawCapture, error) {
	timeout := req.CaptureTimeout
	if timeout <= 0 {
		timeout = models.DefaultCaptureTimeout
	}
	capCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := c.cfg.Logger.With("url", req.URL)

	incog, err := c.manager.Incognito(capCtx)
	if err != nil {
		var ce *CaptureError
		if errors.As(err, &ce) {
			return nil, NewError(ce.Kind, req.URL, ce.Err)
		}
		return nil, Classify(ctx, capCtx, req.URL, err)
	}
	defer func() {
		if err := incog.Close(); err != nil {
			log.Debug("capture: dispose context failed", "error", err)
		}
	}()

	page, err := c.newPage(incog)
	if err != nil {
		return nil, NewError(KindBrowserUnavailable, req.URL, fmt.Errorf("failed to open page: %w", err))
	}
	// Closed through the unbound page so teardown still runs after capCtx expired.
	defer func(p *rod.Page) {
		if err := p.Close(); err != nil {
			log.Debug("capture: close page failed", "error", err)
		}
	}(page)
	page = page.Context(capCtx)

	vp := req.EffectiveViewport()
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, Classify(ctx, capCtx, req.URL, fmt.Errorf("failed to set viewport: %w", err))
	}

	started := time.Now()
	rec := newRecorder(c.cfg.MaxExchanges, started)
	sheets := newSheetIndex()

	evCtx, stopEvents := context.WithCancel(capCtx)
	defer stopEvents()
	wait := page.Context(evCtx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			var hop redirectHop
			if e.RedirectResponse != nil {
				hop.Status = e.RedirectResponse.Status
				hop.EncodedBytes = int64(e.RedirectResponse.EncodedDataLength)
			}
			rec.requestStarted(string(e.RequestID), e.Request.URL, string(e.Type), hop, time.Now())
		},
		func(e *proto.NetworkResponseReceived) {
			rec.responseReceived(string(e.RequestID), e.Response.Status, e.Response.MIMEType,
				string(e.Type), e.Response.FromDiskCache, time.Now())
		},
		func(e *proto.NetworkLoadingFinished) {
			rec.loadingFinished(string(e.RequestID), int64(e.EncodedDataLength), time.Now())
		},
		func(e *proto.NetworkLoadingFailed) {
			reason := e.ErrorText
			if e.BlockedReason != "" {
				reason = fmt.Sprintf("%s (blocked: %s)", reason, e.BlockedReason)
			}
			rec.loadingFailed(string(e.RequestID), reason, time.Now())
		},
		func(e *proto.CSSStyleSheetAdded) {
			sheets.add(string(e.Header.StyleSheetID), e.Header.SourceURL, toOffset(e.Header.Length))
		},
	)
	go wait()

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return nil, Classify(ctx, capCtx, req.URL, fmt.Errorf("failed to enable network events: %w", err))
	}

	raw := &RawCapture{
		RequestedURL: req.URL,
		Engine:       "browser",
		StartedAt:    started.UTC(),
	}

	coverage := c.cfg.Coverage
	if coverage {
		if err := startCoverage(page); err != nil {
			log.Warn("capture: coverage unavailable", "error", err)
			raw.Notes = append(raw.Notes, "coverage unavailable: "+err.Error())
			coverage = false
		}
	}

	if err := page.Navigate(req.URL); err != nil {
		return nil, Classify(ctx, capCtx, req.URL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, Classify(ctx, capCtx, req.URL, err)
	}

	if mark, ok := rec.waitIdle(capCtx, c.cfg.IdleQuiet, c.cfg.IdleMax); ok {
		raw.Timing.NetworkIdleMs = mark
	} else {
		if capCtx.Err() != nil {
			return nil, Classify(ctx, capCtx, req.URL, capCtx.Err())
		}
		raw.Notes = append(raw.Notes, "network did not become idle; late requests may be missing")
	}

	res, err := page.Eval(pageProbe)
	if err != nil {
		return nil, Classify(ctx, capCtx, req.URL, fmt.Errorf("failed to read page state: %w", err))
	}
	var state pageState
	if err := json.Unmarshal([]byte(res.Value.Str()), &state); err != nil {
		return nil, NewError(KindNavigationFailed, req.URL, fmt.Errorf("failed to decode page state: %w", err))
	}

	raw.Title = state.Title
	raw.FinalURL = state.URL
	raw.DOMNodeCount = state.DOMNodes
	raw.Timing.DOMContentLoadedMs = state.DCL
	raw.Timing.LoadEventMs = state.Load
	raw.Timing.FirstContentfulPaintMs = state.FCP
	raw.Images = state.Images
	raw.BackgroundImageURLs = state.Backgrounds

	if coverage {
		files, err := collectCoverage(page, sheets, raw.FinalURL)
		if err != nil {
			log.Warn("capture: coverage collection failed", "error", err)
			raw.Notes = append(raw.Notes, "coverage incomplete: "+err.Error())
		}
		raw.Coverage = files
	}

	stopEvents()
	exchanges, dropped := rec.exchanges()
	raw.Exchanges = exchanges
	if dropped > 0 {
		raw.Notes = append(raw.Notes, fmt.Sprintf("request buffer full: %d requests not recorded", dropped))
	}

	log.Debug("capture: done", "requests", len(raw.Exchanges), "dom_nodes", raw.DOMNodeCount,
		"elapsed", time.Since(started))
	return raw, nil
}

func (c *BrowserCapturer) newPage(b *rod.Browser) (*rod.Page, error) {
	if c.cfg.Stealth {
		return stealth.Page(b)
	}
	return b.Page(proto.TargetCreateTarget{URL: ""})
}
