// Package optimize downloads a page with its stylesheets and scripts,
// writes minified copies and reports the bytes saved.
package optimize

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"

	"github.com/alexis-pagnon/green-optimizer/pkg/fetcher"
)

const (
	mediaHTML = "text/html"
	mediaCSS  = "text/css"
	mediaJS   = "application/javascript"
)

// MinifiedFile is one rewritten asset.
type MinifiedFile struct {
	URL            string `json:"url" yaml:"url"`
	Kind           string `json:"kind" yaml:"kind"`
	File           string `json:"file" yaml:"file"`
	OriginalBytes  int64  `json:"original_bytes" yaml:"original_bytes"`
	OptimizedBytes int64  `json:"optimized_bytes" yaml:"optimized_bytes"`
}

// Gain returns the bytes saved.
func (m MinifiedFile) Gain() int64 {
	return m.OriginalBytes - m.OptimizedBytes
}

// FailedFile is an asset that could not be downloaded or minified.
type FailedFile struct {
	URL   string `json:"url" yaml:"url"`
	Error string `json:"error" yaml:"error"`
}

// Summary totals a report.
type Summary struct {
	FilesMinified  int     `json:"files_minified" yaml:"files_minified"`
	FilesFailed    int     `json:"files_failed" yaml:"files_failed"`
	UnusedListed   int     `json:"unused_listed" yaml:"unused_listed"`
	OriginalBytes  int64   `json:"original_bytes" yaml:"original_bytes"`
	OptimizedBytes int64   `json:"optimized_bytes" yaml:"optimized_bytes"`
	GainBytes      int64   `json:"gain_bytes" yaml:"gain_bytes"`
	GainPercent    float64 `json:"gain_percent" yaml:"gain_percent"`
}

// Report is the outcome of Run.
type Report struct {
	URL       string         `json:"url" yaml:"url"`
	OutputDir string         `json:"output_dir" yaml:"output_dir"`
	Minified  []MinifiedFile `json:"minified" yaml:"minified"`
	Failed    []FailedFile   `json:"failed,omitempty" yaml:"failed,omitempty"`
	// Unused lists files flagged unused by a prior analysis; they are not copied.
	Unused  []string `json:"unused,omitempty" yaml:"unused,omitempty"`
	Summary Summary  `json:"summary" yaml:"summary"`
}

// Optimizer is safe for concurrent use.
type Optimizer struct {
	fetcher *fetcher.Fetcher
	m       *minify.M
	logger  *slog.Logger
}

// New builds an Optimizer. A nil fetcher gets the default one.
func New(f *fetcher.Fetcher, logger *slog.Logger) *Optimizer {
	if f == nil {
		f = fetcher.NewFetcher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := minify.New()
	m.AddFunc(mediaCSS, css.Minify)
	m.Add(mediaHTML, &html.Minifier{KeepDocumentTags: true, KeepEndTags: true, KeepQuotes: true})
	m.AddFuncRegexp(regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`), js.Minify)
	return &Optimizer{fetcher: f, m: m, logger: logger}
}

// Minify minifies data of the given media type.
func (o *Optimizer) Minify(mediaType string, data []byte) ([]byte, error) {
	out, err := o.m.Bytes(mediaType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to minify %s: %w", mediaType, err)
	}
	return out, nil
}

// Run optimizes pageURL into outDir. unused lists asset URLs a previous
// analysis found unused; they are skipped and reported. Individual asset
// failures are recorded in the report; only a page that cannot be loaded
// fails the run.
func (o *Optimizer) Run(ctx context.Context, pageURL, outDir string, unused []string) (*Report, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	for _, dir := range []string{"html", "css", "js"} {
		if err := os.MkdirAll(filepath.Join(outDir, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	page, err := o.fetcher.GetHtmlBytes(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", pageURL, err)
	}

	report := &Report{URL: pageURL, OutputDir: outDir, Minified: []MinifiedFile{}}
	skip := make(map[string]bool, len(unused))
	for _, u := range unused {
		skip[u] = true
	}

	if f, err := o.write(outDir, "html", "index.html", pageURL, mediaHTML, page); err != nil {
		report.Failed = append(report.Failed, FailedFile{URL: pageURL, Error: err.Error()})
	} else {
		report.Minified = append(report.Minified, *f)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	names := make(map[string]int)
	for _, asset := range fetcher.DiscoverAssets(doc, base) {
		var dir, media string
		switch asset.Type {
		case "Stylesheet":
			dir, media = "css", mediaCSS
		case "Script":
			dir, media = "js", mediaJS
		default:
			continue
		}
		if skip[asset.URL] {
			report.Unused = append(report.Unused, asset.URL)
			o.logger.Debug("optimize: skipping unused file", "url", asset.URL)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := o.fetcher.GetBytes(ctx, asset.URL)
		if err != nil {
			o.logger.Warn("optimize: download failed", "url", asset.URL, "error", err)
			report.Failed = append(report.Failed, FailedFile{URL: asset.URL, Error: err.Error()})
			continue
		}
		f, err := o.write(outDir, dir, fileName(asset.URL, dir, names), asset.URL, media, data)
		if err != nil {
			report.Failed = append(report.Failed, FailedFile{URL: asset.URL, Error: err.Error()})
			continue
		}
		report.Minified = append(report.Minified, *f)
	}

	report.Summary = summarize(report)
	o.logger.Info("optimize: done", "url", pageURL, "files", report.Summary.FilesMinified, "gain_bytes", report.Summary.GainBytes)
	return report, nil
}

func (o *Optimizer) write(outDir, dir, name, src, media string, data []byte) (*MinifiedFile, error) {
	out, err := o.Minify(media, data)
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(outDir, dir, name)
	if err := os.WriteFile(dest, out, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return &MinifiedFile{
		URL:            src,
		Kind:           dir,
		File:           dest,
		OriginalBytes:  int64(len(data)),
		OptimizedBytes: int64(len(out)),
	}, nil
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// fileName derives a unique file name from the asset URL path.
func fileName(rawURL, dir string, used map[string]int) string {
	name := "file." + dir
	if u, err := url.Parse(rawURL); err == nil {
		if b := unsafeName.ReplaceAllString(path.Base(u.Path), "_"); b != "" && b != "." && b != "/" && b != "_" {
			name = b
		}
	}
	key := dir + "/" + strings.ToLower(name)
	used[key]++
	if n := used[key]; n > 1 {
		ext := filepath.Ext(name)
		name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
	}
	return name
}

func summarize(r *Report) Summary {
	s := Summary{FilesMinified: len(r.Minified), FilesFailed: len(r.Failed), UnusedListed: len(r.Unused)}
	for _, f := range r.Minified {
		s.OriginalBytes += f.OriginalBytes
		s.OptimizedBytes += f.OptimizedBytes
	}
	s.GainBytes = s.OriginalBytes - s.OptimizedBytes
	if s.OriginalBytes > 0 {
		s.GainPercent = math.Round(float64(s.GainBytes)/float64(s.OriginalBytes)*10000) / 100
	}
	return s
}
