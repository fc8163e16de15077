package recommend

import (
	"fmt"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// Finding is what a rule reports when it fires.
type Finding struct {
	Severity      models.Severity
	Title         string
	Detail        string
	ByteSavings   int64
	RequestsSaved int

	// Simulate returns the snapshot as it would look once the advice is
	// applied. The engine re-scores it to estimate the score delta.
	Simulate func(models.PageSnapshot) models.PageSnapshot
}

// Rule inspects a snapshot and its score. It must be pure and fire at most once.
type Rule struct {
	ID       string
	Category models.Category
	Check    func(snap models.PageSnapshot, score models.ScoreBreakdown) (Finding, bool)
}

const (
	kb = 1024
	mb = 1024 * kb
)

// DefaultRules returns the built-in rule table. Declaration order breaks ties
// when sorting.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "compress-images", Category: models.CategoryTransfer, Check: compressImages},
		{ID: "remove-unused-images", Category: models.CategoryTransfer, Check: removeUnusedImages},
		{ID: "remove-unused-code", Category: models.CategoryTransfer, Check: removeUnusedCode},
		{ID: "reduce-javascript", Category: models.CategoryTransfer, Check: reduceJavaScript},
		{ID: "reduce-css", Category: models.CategoryTransfer, Check: reduceCSS},
		{ID: "bundle-requests", Category: models.CategoryRequests, Check: bundleRequests},
		{ID: "simplify-dom", Category: models.CategoryRendering, Check: simplifyDOM},
		{ID: "optimize-fonts", Category: models.CategoryTransfer, Check: optimizeFonts},
		{ID: "lazy-load-media", Category: models.CategoryTransfer, Check: lazyLoadMedia},
		{ID: "limit-third-party", Category: models.CategoryRequests, Check: limitThirdParty},
		{ID: "fix-failed-requests", Category: models.CategoryRequests, Check: fixFailedRequests},
		{ID: "green-hosting", Category: models.CategoryHosting, Check: greenHosting},
		{ID: "verify-capture", Category: models.CategoryTransfer, Check: verifyCapture},
	}
}

// Images converted to WebP/AVIF typically shrink by about a third.
const imageCompressionRatio = 0.3

func compressImages(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	img := s.Bytes(models.ResourceImage) - s.UnusedImageBytes
	if img <= 500*kb {
		return Finding{}, false
	}
	savings := int64(float64(img) * imageCompressionRatio)
	sev := models.SeverityMedium
	if img > 1*mb {
		sev = models.SeverityHigh
	}
	return Finding{
		Severity:    sev,
		Title:       "Compress and resize images",
		Detail:      fmt.Sprintf("Images weigh %s. Serve WebP or AVIF at the displayed size.", FormatBytes(img)),
		ByteSavings: savings,
		Simulate:    shrink(models.ResourceImage, savings, 0),
	}, true
}

func removeUnusedImages(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	if len(s.UnusedImages) == 0 {
		return Finding{}, false
	}
	sev := models.SeverityLow
	switch {
	case s.UnusedImageBytes > 200*kb:
		sev = models.SeverityHigh
	case s.UnusedImageBytes > 50*kb:
		sev = models.SeverityMedium
	}
	return Finding{
		Severity: sev,
		Title:    "Remove images that are never displayed",
		Detail: fmt.Sprintf("%d downloaded images (%s) are hidden or not referenced by the page.",
			len(s.UnusedImages), FormatBytes(s.UnusedImageBytes)),
		ByteSavings:   s.UnusedImageBytes,
		RequestsSaved: len(s.UnusedImages),
		Simulate:      shrink(models.ResourceImage, s.UnusedImageBytes, len(s.UnusedImages)),
	}, true
}

func removeUnusedCode(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	if len(s.UnusedCode) == 0 || s.UnusedCodeBytes <= 0 {
		return Finding{}, false
	}
	sev := models.SeverityLow
	switch {
	case s.UnusedCodeBytes > 200*kb:
		sev = models.SeverityHigh
	case s.UnusedCodeBytes > 50*kb:
		sev = models.SeverityMedium
	}
	return Finding{
		Severity: sev,
		Title:    "Remove unused JavaScript and CSS",
		Detail: fmt.Sprintf("%d files are mostly unused during page load; about %s could be dropped or deferred.",
			len(s.UnusedCode), FormatBytes(s.UnusedCodeBytes)),
		ByteSavings: s.UnusedCodeBytes,
		Simulate:    shrink("", s.UnusedCodeBytes, 0),
	}, true
}

const jsBudget = 300 * kb

func reduceJavaScript(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	js := s.Bytes(models.ResourceJS)
	if js <= 500*kb {
		return Finding{}, false
	}
	sev := models.SeverityMedium
	if js > 1*mb {
		sev = models.SeverityHigh
	}
	savings := js - jsBudget
	return Finding{
		Severity:    sev,
		Title:       "Reduce JavaScript payload",
		Detail:      fmt.Sprintf("Scripts weigh %s. Code-split, tree-shake and drop unused libraries to stay under %s.", FormatBytes(js), FormatBytes(jsBudget)),
		ByteSavings: savings,
		Simulate:    shrink(models.ResourceJS, savings, 0),
	}, true
}

const cssBudget = 100 * kb

func reduceCSS(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	css := s.Bytes(models.ResourceCSS)
	if css <= 150*kb {
		return Finding{}, false
	}
	sev := models.SeverityLow
	if css > 300*kb {
		sev = models.SeverityMedium
	}
	savings := css - cssBudget
	return Finding{
		Severity:    sev,
		Title:       "Reduce stylesheet size",
		Detail:      fmt.Sprintf("Stylesheets weigh %s. Purge unused selectors and minify.", FormatBytes(css)),
		ByteSavings: savings,
		Simulate:    shrink(models.ResourceCSS, savings, 0),
	}, true
}

const requestBudget = 50

func bundleRequests(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	if s.RequestCount <= requestBudget {
		return Finding{}, false
	}
	sev := models.SeverityMedium
	if s.RequestCount > 2*requestBudget {
		sev = models.SeverityHigh
	}
	saved := s.RequestCount - requestBudget
	return Finding{
		Severity:      sev,
		Title:         "Bundle and reduce HTTP requests",
		Detail:        fmt.Sprintf("The page makes %d requests. Bundle assets, use sprites and inline tiny resources.", s.RequestCount),
		RequestsSaved: saved,
		Simulate: func(p models.PageSnapshot) models.PageSnapshot {
			p.RequestCount = requestBudget
			return p
		},
	}, true
}

const (
	domThreshold = 1500
	domTarget    = 1000
)

func simplifyDOM(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	if s.DOMNodeCount <= domThreshold {
		return Finding{}, false
	}
	sev := models.SeverityMedium
	if s.DOMNodeCount > 2*domThreshold {
		sev = models.SeverityHigh
	}
	return Finding{
		Severity: sev,
		Title:    "Simplify the DOM",
		Detail:   fmt.Sprintf("The page has %d elements. Flatten wrappers and paginate or virtualize long lists.", s.DOMNodeCount),
		Simulate: func(p models.PageSnapshot) models.PageSnapshot {
			p.DOMNodeCount = domTarget
			return p
		},
	}, true
}

const fontBudget = 50 * kb

func optimizeFonts(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	fonts := s.Bytes(models.ResourceFont)
	count := s.Requests(models.ResourceFont)
	if fonts <= 100*kb && count <= 4 {
		return Finding{}, false
	}
	sev := models.SeverityLow
	if fonts > 300*kb {
		sev = models.SeverityMedium
	}
	savings := max(fonts-fontBudget, 0)
	saved := max(count-2, 0)
	return Finding{
		Severity:      sev,
		Title:         "Limit and subset web fonts",
		Detail:        fmt.Sprintf("%d font files weigh %s. Subset to used glyphs, serve WOFF2, or use system fonts.", count, FormatBytes(fonts)),
		ByteSavings:   savings,
		RequestsSaved: saved,
		Simulate:      shrink(models.ResourceFont, savings, saved),
	}, true
}

func lazyLoadMedia(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	media := s.Bytes(models.ResourceMedia)
	if media <= 1*mb {
		return Finding{}, false
	}
	sev := models.SeverityMedium
	if media > 5*mb {
		sev = models.SeverityHigh
	}
	count := s.Requests(models.ResourceMedia)
	return Finding{
		Severity:      sev,
		Title:         "Do not preload video and audio",
		Detail:        fmt.Sprintf("Media downloads weigh %s before any interaction. Use preload=\"none\" and a poster image.", FormatBytes(media)),
		ByteSavings:   media,
		RequestsSaved: count,
		Simulate:      shrink(models.ResourceMedia, media, count),
	}, true
}

func limitThirdParty(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	if s.ThirdPartyRequestCount <= 10 {
		return Finding{}, false
	}
	var bytes int64
	for _, r := range s.Resources {
		if r.ThirdParty {
			bytes += r.Bytes
		}
	}
	sev := models.SeverityLow
	if s.ThirdPartyRequestCount > 25 {
		sev = models.SeverityMedium
	}
	return Finding{
		Severity: sev,
		Title:    "Limit third-party scripts and trackers",
		Detail: fmt.Sprintf("%d requests (%s) go to other sites. Remove unneeded tags, self-host what remains.",
			s.ThirdPartyRequestCount, FormatBytes(bytes)),
		ByteSavings:   bytes,
		RequestsSaved: s.ThirdPartyRequestCount,
		Simulate:      shrink("", bytes, s.ThirdPartyRequestCount),
	}, true
}

func fixFailedRequests(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	if s.FailedRequestCount == 0 {
		return Finding{}, false
	}
	sev := models.SeverityLow
	if s.FailedRequestCount > 5 {
		sev = models.SeverityMedium
	}
	return Finding{
		Severity:      sev,
		Title:         "Fix or remove failing requests",
		Detail:        fmt.Sprintf("%d requests failed. Broken references waste connections and retries.", s.FailedRequestCount),
		RequestsSaved: s.FailedRequestCount,
		Simulate:      shrink("", 0, s.FailedRequestCount),
	}, true
}

func greenHosting(s models.PageSnapshot, _ models.ScoreBreakdown) (Finding, bool) {
	if s.GreenHost.Known && s.GreenHost.IsGreen {
		return Finding{}, false
	}
	f := Finding{
		Simulate: func(p models.PageSnapshot) models.PageSnapshot {
			p.GreenHost = models.GreenHostSignal{Known: true, IsGreen: true}
			return p
		},
	}
	if s.GreenHost.Known {
		f.Severity = models.SeverityHigh
		f.Title = "Move to a green hosting provider"
		f.Detail = "The host is not known to run on renewable energy."
	} else {
		f.Severity = models.SeverityLow
		f.Title = "Verify your hosting provider's energy source"
		f.Detail = "The hosting provider could not be found in a green hosting directory."
	}
	return f, true
}

func verifyCapture(_ models.PageSnapshot, score models.ScoreBreakdown) (Finding, bool) {
	if score.Confidence != models.ConfidenceLow {
		return Finding{}, false
	}
	return Finding{
		Severity: models.SeverityHigh,
		Title:    "Re-run the analysis: the capture looks incomplete",
		Detail:   score.ConfidenceReason,
	}, true
}

// shrink removes bytes and requests from one bucket (or only from totals
// when typ is empty), never going below zero.
func shrink(typ models.ResourceType, bytes int64, requests int) func(models.PageSnapshot) models.PageSnapshot {
	return func(p models.PageSnapshot) models.PageSnapshot {
		p.TotalBytes = max(p.TotalBytes-bytes, 0)
		p.RequestCount = max(p.RequestCount-requests, 0)
		if typ != "" {
			if p.BytesByType != nil {
				p.BytesByType[typ] = max(p.BytesByType[typ]-bytes, 0)
			}
			if p.RequestCountByType != nil {
				p.RequestCountByType[typ] = max(p.RequestCountByType[typ]-requests, 0)
			}
		}
		return p
	}
}

// FormatBytes returns a human-readable size string.
func FormatBytes(b int64) string {
	switch {
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/mb)
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/kb)
	default:
		return fmt.Sprintf("%d B", b)
	}
}
