package capture

import (
	"sort"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// DeadCodeThreshold is the unused share above which a file counts as dead code.
const DeadCodeThreshold = 0.7

// Files larger than this are not painted byte by byte.
const maxCoverageFileBytes = 64 << 20

type offset interface {
	~int | ~int64 | ~float64
}

func toOffset[T offset](v T) int { return int(v) }

type coverageRange struct {
	start, end int
	used       bool
}

// unusedBytes paints ranges in order over a file of size total, later ranges
// overriding earlier ones, and counts the bytes left unused.
func unusedBytes(total int, ranges []coverageRange) int {
	if total <= 0 || total > maxCoverageFileBytes {
		return 0
	}
	used := make([]bool, total)
	for _, r := range ranges {
		start, end := max(r.start, 0), min(r.end, total)
		for i := start; i < end; i++ {
			used[i] = r.used
		}
	}
	n := 0
	for _, u := range used {
		if !u {
			n++
		}
	}
	return n
}

// mergeCoverage sums entries sharing a URL and type, sorted by URL.
func mergeCoverage(files []FileCoverage) []FileCoverage {
	type key struct{ url, typ string }
	idx := make(map[key]int)
	var out []FileCoverage
	for _, f := range files {
		if f.URL == "" || f.TotalBytes <= 0 {
			continue
		}
		k := key{f.URL, f.Type}
		if i, ok := idx[k]; ok {
			out[i].TotalBytes += f.TotalBytes
			out[i].UnusedBytes += f.UnusedBytes
			continue
		}
		idx[k] = len(out)
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// sheetIndex maps stylesheet ids to their source URL and length,
// filled from CSS.styleSheetAdded events.
type sheetIndex struct {
	mu     sync.Mutex
	sheets map[string]sheetInfo
}

type sheetInfo struct {
	url    string
	length int
}

func newSheetIndex() *sheetIndex {
	return &sheetIndex{sheets: make(map[string]sheetInfo)}
}

func (s *sheetIndex) add(id, url string, length int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[id] = sheetInfo{url: url, length: length}
}

func (s *sheetIndex) get(id string) (sheetInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.sheets[id]
	return info, ok
}

// startCoverage turns on precise JS coverage and CSS rule usage tracking.
// CSS tracking needs the DOM and CSS domains enabled first.
func startCoverage(page *rod.Page) error {
	if err := (proto.ProfilerEnable{}).Call(page); err != nil {
		return err
	}
	if _, err := (proto.ProfilerStartPreciseCoverage{Detailed: true}).Call(page); err != nil {
		return err
	}
	if err := (proto.DOMEnable{}).Call(page); err != nil {
		return err
	}
	if err := (proto.CSSEnable{}).Call(page); err != nil {
		return err
	}
	return (proto.CSSStartRuleUsageTracking{}).Call(page)
}

// collectCoverage stops tracking and returns per-file coverage. Inline
// scripts report the document URL and are skipped.
func collectCoverage(page *rod.Page, sheets *sheetIndex, documentURL string) ([]FileCoverage, error) {
	var files []FileCoverage

	js, err := (proto.ProfilerTakePreciseCoverage{}).Call(page)
	if err != nil {
		return nil, err
	}
	for _, script := range js.Result {
		if script.URL == "" || script.URL == documentURL {
			continue
		}
		var ranges []coverageRange
		total := 0
		for _, fn := range script.Functions {
			for _, r := range fn.Ranges {
				cr := coverageRange{start: toOffset(r.StartOffset), end: toOffset(r.EndOffset), used: r.Count > 0}
				total = max(total, cr.end)
				ranges = append(ranges, cr)
			}
		}
		files = append(files, FileCoverage{
			URL:         script.URL,
			Type:        "js",
			TotalBytes:  int64(total),
			UnusedBytes: int64(unusedBytes(total, ranges)),
		})
	}

	css, err := (proto.CSSStopRuleUsageTracking{}).Call(page)
	if err != nil {
		return mergeCoverage(files), err
	}
	bySheet := make(map[string][]coverageRange)
	for _, u := range css.RuleUsage {
		id := string(u.StyleSheetID)
		bySheet[id] = append(bySheet[id], coverageRange{
			start: toOffset(u.StartOffset),
			end:   toOffset(u.EndOffset),
			used:  u.Used,
		})
	}
	for id, ranges := range bySheet {
		info, ok := sheets.get(id)
		if !ok || info.url == "" || info.url == documentURL {
			continue
		}
		files = append(files, FileCoverage{
			URL:         info.url,
			Type:        "css",
			TotalBytes:  int64(info.length),
			UnusedBytes: int64(unusedBytes(info.length, ranges)),
		})
	}

	return mergeCoverage(files), nil
}
