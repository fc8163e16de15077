package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/capture"
)

// Asset is a sub-resource referenced by a document. Type uses the DevTools
// resource type names so captures from both engines read the same way.
type Asset struct {
	URL  string
	Type string
}

type job struct {
	index int
	asset Asset
}

// Capture implements capture.Capturer without a browser: the document and
// its statically referenced assets are downloaded, nothing is executed.
func (f *Fetcher) Capture(ctx context.Context, req models.AnalysisRequest) (*capture.RawCapture, error) {
	timeout := req.CaptureTimeout
	if timeout <= 0 {
		timeout = models.DefaultCaptureTimeout
	}
	capCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	log := f.logger.With("url", req.URL)

	doc, err := f.get(capCtx, req.URL)
	if err != nil {
		return nil, capture.Classify(ctx, capCtx, req.URL, err)
	}
	if doc.status < 200 || doc.status > 299 {
		return nil, capture.NewError(capture.KindNavigationFailed, req.URL,
			fmt.Errorf("document returned status %d", doc.status))
	}
	documentMs := elapsedMs(started)

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.body))
	if err != nil {
		return nil, capture.NewError(capture.KindNavigationFailed, req.URL, fmt.Errorf("failed to parse HTML: %w", err))
	}

	raw := &capture.RawCapture{
		RequestedURL: req.URL,
		FinalURL:     doc.finalURL,
		Title:        strings.TrimSpace(page.Find("title").First().Text()),
		DOMNodeCount: page.Find("*").Length(),
		Engine:       "http",
		StartedAt:    started.UTC(),
		Notes:        []string{"static capture: scripts were not executed"},
	}
	raw.Exchanges = append(raw.Exchanges, capture.Exchange{
		URL:          doc.finalURL,
		ResourceType: "Document",
		MimeType:     doc.mimeType,
		Status:       doc.status,
		EncodedBytes: doc.wireBytes,
		DurationMs:   documentMs,
	})

	base, _ := url.Parse(doc.finalURL)
	assets := DiscoverAssets(page, base)
	raw.Images = domImages(page, base)

	exchanges := f.fetchAll(capCtx, assets, started)
	if capCtx.Err() != nil {
		return nil, capture.Classify(ctx, capCtx, req.URL, capCtx.Err())
	}
	raw.Exchanges = append(raw.Exchanges, exchanges...)

	raw.Timing.DOMContentLoadedMs = documentMs
	raw.Timing.LoadEventMs = elapsedMs(started)
	raw.Timing.NetworkIdleMs = raw.Timing.LoadEventMs

	log.Debug("http capture: done", "requests", len(raw.Exchanges), "dom_nodes", raw.DOMNodeCount)
	return raw, nil
}

// fetchAll downloads assets with a bounded worker pool, keeping input order.
func (f *Fetcher) fetchAll(ctx context.Context, assets []Asset, started time.Time) []capture.Exchange {
	out := make([]capture.Exchange, len(assets))
	if len(assets) == 0 {
		return out
	}

	var wg sync.WaitGroup
	jobs := make(chan job, len(assets))

	workers := min(f.workers, len(assets))
	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range jobs {
				out[j.index] = f.fetchAsset(ctx, j.asset, started)
				f.logger.Debug("http capture: asset", "worker_id", workerID, "asset", j.asset.URL,
					"failed", out[j.index].Failed)
			}
		}(w)
	}

	for i, a := range assets {
		jobs <- job{index: i, asset: a}
	}
	close(jobs)
	wg.Wait()
	return out
}

// fetchAsset never fails: transport errors and error statuses yield a failed
// zero-byte exchange.
func (f *Fetcher) fetchAsset(ctx context.Context, a Asset, started time.Time) capture.Exchange {
	begin := time.Now()
	ex := capture.Exchange{
		URL:          a.URL,
		ResourceType: a.Type,
		StartMs:      begin.Sub(started).Milliseconds(),
	}
	resp, err := f.get(ctx, a.URL)
	ex.DurationMs = elapsedMs(begin)
	if err != nil {
		ex.Failed = true
		ex.FailureReason = err.Error()
		return ex
	}
	ex.Status = resp.status
	ex.MimeType = resp.mimeType
	if resp.status >= 400 {
		ex.Failed = true
		ex.FailureReason = fmt.Sprintf("HTTP %d", resp.status)
		return ex
	}
	ex.EncodedBytes = resp.wireBytes
	return ex
}

// DiscoverAssets lists the sub-resources a document references, resolved
// against base, deduplicated and in document order. data: URIs are skipped.
func DiscoverAssets(doc *goquery.Document, base *url.URL) []Asset {
	seen := make(map[string]bool)
	var assets []Asset
	add := func(ref, typ string) {
		abs := resolve(base, ref)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		assets = append(assets, Asset{URL: abs, Type: typ})
	}

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		rel := strings.ToLower(s.AttrOr("rel", ""))
		as := strings.ToLower(s.AttrOr("as", ""))
		switch {
		case hasToken(rel, "stylesheet"):
			add(href, "Stylesheet")
		case hasToken(rel, "icon") || hasToken(rel, "apple-touch-icon"):
			add(href, "Image")
		case hasToken(rel, "preload") && as == "font":
			add(href, "Font")
		case hasToken(rel, "preload") && as == "script":
			add(href, "Script")
		case hasToken(rel, "preload") && as == "style":
			add(href, "Stylesheet")
		case hasToken(rel, "preload") && as == "image":
			add(href, "Image")
		}
	})
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("src", ""), "Script")
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("src", ""), "Image")
	})
	doc.Find("video[poster]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("poster", ""), "Image")
	})
	doc.Find("video[src], audio[src], video source[src], audio source[src]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("src", ""), "Media")
	})
	return assets
}

// domImages lists <img> elements. Sizes come from width/height attributes;
// -1 means the attribute is absent and the rendered size is unknown.
func domImages(doc *goquery.Document, base *url.URL) []capture.DOMImage {
	var images []capture.DOMImage
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := resolve(base, s.AttrOr("src", ""))
		if src == "" {
			return
		}
		images = append(images, capture.DOMImage{
			Src:    src,
			Width:  dimension(s.AttrOr("width", "")),
			Height: dimension(s.AttrOr("height", "")),
		})
	})
	return images
}

func dimension(v string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if err != nil {
		return -1
	}
	return n
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(list) {
		if t == token {
			return true
		}
	}
	return false
}
