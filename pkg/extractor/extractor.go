// Package extractor reduces a raw capture into a normalized PageSnapshot.
package extractor

import (
	"context"
	"html"
	"log/slog"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/publicsuffix"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/capture"
	"github.com/alexis-pagnon/green-optimizer/pkg/greenhost"
	"github.com/alexis-pagnon/green-optimizer/pkg/urlutil"
)

const (
	maxTitleRunes        = 200
	defaultLookupTimeout = 5 * time.Second
)

// Extractor turns captures into snapshots. The green-hosting lookup is the
// only collaborator; its failures degrade to an unknown signal.
type Extractor struct {
	hosts         greenhost.Checker
	policy        *bluemonday.Policy
	lookupTimeout time.Duration
	logger        *slog.Logger
}

// New creates an Extractor. A nil checker leaves hosting unknown.
func New(hosts greenhost.Checker, logger *slog.Logger) *Extractor {
	if hosts == nil {
		hosts = greenhost.Unknown{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		hosts:         hosts,
		policy:        bluemonday.StrictPolicy(),
		lookupTimeout: defaultLookupTimeout,
		logger:        logger,
	}
}

// Extract builds the snapshot of raw. raw must not be nil.
func (e *Extractor) Extract(ctx context.Context, raw *capture.RawCapture) models.PageSnapshot {
	pageURL := raw.FinalURL
	if pageURL == "" {
		pageURL = raw.RequestedURL
	}
	pageSite := site(urlutil.Hostname(pageURL))

	snap := models.PageSnapshot{
		URL:                    raw.RequestedURL,
		FinalURL:               raw.FinalURL,
		Title:                  e.cleanTitle(raw.Title),
		BytesByType:            make(map[models.ResourceType]int64, len(models.ResourceTypes)),
		RequestCountByType:     make(map[models.ResourceType]int, len(models.ResourceTypes)),
		DOMNodeCount:           raw.DOMNodeCount,
		LoadTimeMs:             loadTime(raw),
		FirstContentfulPaintMs: raw.Timing.FirstContentfulPaintMs,
		CapturedAt:             raw.StartedAt,
	}
	for _, t := range models.ResourceTypes {
		snap.BytesByType[t] = 0
		snap.RequestCountByType[t] = 0
	}

	for _, ex := range raw.Exchanges {
		if !countable(ex.URL) {
			continue
		}
		typ := Classify(ex.ResourceType, ex.MimeType)
		failed := ex.Failed || ex.Status >= 400
		bytes := ex.EncodedBytes
		if failed || bytes < 0 {
			bytes = 0
		}
		thirdParty := pageSite != "" && site(urlutil.Hostname(ex.URL)) != pageSite

		snap.TotalBytes += bytes
		snap.BytesByType[typ] += bytes
		snap.RequestCount++
		snap.RequestCountByType[typ]++
		if failed {
			snap.FailedRequestCount++
		}
		if thirdParty {
			snap.ThirdPartyRequestCount++
		}
		snap.Resources = append(snap.Resources, models.ResourceSummary{
			URL:        ex.URL,
			Type:       typ,
			Status:     ex.Status,
			Bytes:      bytes,
			Failed:     failed,
			ThirdParty: thirdParty,
		})
	}

	snap.UnusedImages, snap.UnusedImageBytes = unusedImages(raw, snap.Resources)
	snap.UnusedCode, snap.UnusedCodeBytes = unusedCode(raw.Coverage, snap.Resources)
	snap.GreenHost = e.greenHost(ctx, urlutil.Hostname(pageURL))

	return snap
}

func (e *Extractor) greenHost(ctx context.Context, host string) models.GreenHostSignal {
	if host == "" {
		return models.UnknownHost()
	}
	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	signal, err := e.hosts.Check(lookupCtx, host)
	if err != nil {
		e.logger.Warn("green host lookup failed", "domain", host, "error", err)
		return models.UnknownHost()
	}
	return signal
}

func (e *Extractor) cleanTitle(title string) string {
	clean := html.UnescapeString(e.policy.Sanitize(title))
	clean = strings.Join(strings.Fields(clean), " ")
	if utf8.RuneCountInString(clean) > maxTitleRunes {
		clean = string([]rune(clean)[:maxTitleRunes])
	}
	return clean
}

// Classify maps a DevTools resource type to a bucket, falling back on the
// MIME type for XHR, fetch and untyped requests.
func Classify(resourceType, mimeType string) models.ResourceType {
	switch strings.ToLower(resourceType) {
	case "document":
		return models.ResourceHTML
	case "stylesheet":
		return models.ResourceCSS
	case "script":
		return models.ResourceJS
	case "image":
		return models.ResourceImage
	case "font":
		return models.ResourceFont
	case "media":
		return models.ResourceMedia
	}

	mime := strings.ToLower(mimeType)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(mime)
	switch {
	case mime == "text/html" || mime == "application/xhtml+xml":
		return models.ResourceHTML
	case mime == "text/css":
		return models.ResourceCSS
	case strings.Contains(mime, "javascript") || strings.Contains(mime, "ecmascript"):
		return models.ResourceJS
	case strings.HasPrefix(mime, "image/"):
		return models.ResourceImage
	case strings.HasPrefix(mime, "font/") || strings.Contains(mime, "font-woff"):
		return models.ResourceFont
	case strings.HasPrefix(mime, "video/") || strings.HasPrefix(mime, "audio/"):
		return models.ResourceMedia
	}
	return models.ResourceOther
}

// loadTime prefers the load event, then network idle, then DOMContentLoaded,
// then the end of the last exchange.
func loadTime(raw *capture.RawCapture) int64 {
	switch {
	case raw.Timing.LoadEventMs > 0:
		return raw.Timing.LoadEventMs
	case raw.Timing.NetworkIdleMs > 0:
		return raw.Timing.NetworkIdleMs
	case raw.Timing.DOMContentLoadedMs > 0:
		return raw.Timing.DOMContentLoadedMs
	}
	var last int64
	for _, ex := range raw.Exchanges {
		last = max(last, ex.StartMs+ex.DurationMs)
	}
	return last
}

// countable drops inline data and blob URLs, which never touch the network.
func countable(rawURL string) bool {
	return !strings.HasPrefix(rawURL, "data:") && !strings.HasPrefix(rawURL, "blob:")
}

// site returns the registrable domain of host, or host itself for IPs and
// names without a public suffix.
func site(host string) string {
	if host == "" {
		return ""
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	return host
}

// unusedImages lists downloaded images that are neither an <img> source nor
// a CSS background, plus <img> elements rendered at zero size.
func unusedImages(raw *capture.RawCapture, resources []models.ResourceSummary) ([]string, int64) {
	referenced := make(map[string]bool)
	zeroSize := make(map[string]bool)
	for _, img := range raw.Images {
		key := imageKey(img.Src)
		referenced[key] = true
		if img.ZeroSize() {
			zeroSize[key] = true
		}
	}
	for _, bg := range raw.BackgroundImageURLs {
		referenced[imageKey(bg)] = true
	}

	seen := make(map[string]bool)
	var urls []string
	var total int64
	for _, r := range resources {
		if r.Type != models.ResourceImage || r.Failed || seen[r.URL] || isIcon(r.URL) {
			continue
		}
		key := imageKey(r.URL)
		if referenced[key] && !zeroSize[key] {
			continue
		}
		seen[r.URL] = true
		urls = append(urls, r.URL)
		total += r.Bytes
	}
	sort.Strings(urls)
	return urls, total
}

func imageKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	return u.String()
}

func isIcon(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.Contains(lower, "favicon") || strings.HasSuffix(lower, ".ico")
}

// unusedCode lists scripts and stylesheets mostly unused during the load.
// Savings are the unused share of the transferred bytes.
func unusedCode(files []capture.FileCoverage, resources []models.ResourceSummary) ([]string, int64) {
	wire := make(map[string]int64)
	for _, r := range resources {
		if !r.Failed {
			wire[r.URL] += r.Bytes
		}
	}

	var urls []string
	var total int64
	for _, f := range files {
		ratio := f.UnusedRatio()
		if ratio < capture.DeadCodeThreshold {
			continue
		}
		urls = append(urls, f.URL)
		if b, ok := wire[f.URL]; ok {
			total += int64(math.Round(float64(b) * ratio))
		} else {
			total += f.UnusedBytes
		}
	}
	sort.Strings(urls)
	return urls, total
}
