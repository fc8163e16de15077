package artifact_manager

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alexis-pagnon/green-optimizer/pkg/capture"
)

func sampleCapture(u string) *capture.RawCapture {
	return &capture.RawCapture{
		RequestedURL: u,
		FinalURL:     u,
		Title:        "Example",
		Engine:       "browser",
		DOMNodeCount: 420,
		Exchanges: []capture.Exchange{
			{URL: u, ResourceType: "Document", MimeType: "text/html", Status: 200, EncodedBytes: 5120},
			{URL: u + "app.js", ResourceType: "Script", Status: 200, EncodedBytes: 90000},
		},
		Coverage: []capture.FileCoverage{{URL: u + "app.js", Type: "js", TotalBytes: 300000, UnusedBytes: 240000}},
		Timing:   capture.Timing{LoadEventMs: 900},
	}
}

func TestSanitizeSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/", "example_com"},
		{"https://example.com/blog/post-1.html", "example_com_blog_post-1_html"},
		{"https://example.com:8443/a", "example_com_a"},
		{"not a url", "not_a_url"},
	}
	for _, tt := range tests {
		if got := sanitizeSlug(tt.in); got != tt.want {
			t.Errorf("sanitizeSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestURLDir_EquivalentURLs(t *testing.T) {
	m, err := NewManager(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}
	a, _ := m.URLDir(CapturesDir, "https://Example.com")
	b, _ := m.URLDir(CapturesDir, "https://example.com:443/#top")
	if a != b {
		t.Errorf("URLDir differs for equivalent URLs: %s vs %s", a, b)
	}
	c, _ := m.URLDir(CapturesDir, "https://example.com/other")
	if a == c {
		t.Error("URLDir should differ for different pages")
	}
}

func TestSaveAndLatestCapture(t *testing.T) {
	base := t.TempDir()
	m, err := NewManager(base, time.Hour)
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}

	raw, found, err := m.LatestCapture("https://example.com/")
	if err != nil || found || raw != nil {
		t.Fatalf("LatestCapture() on empty dir = %v, %v, %v", raw, found, err)
	}

	art, err := m.SaveCapture("id-1", sampleCapture("https://example.com/"))
	if err != nil {
		t.Fatalf("SaveCapture() failed: %v", err)
	}
	if !strings.HasPrefix(art.Path, filepath.Join(base, CapturesDir)) || filepath.Base(art.Path) != "id-1.yaml" {
		t.Errorf("unexpected artifact path %s", art.Path)
	}
	if art.SizeBytes == 0 || len(art.ContentHash) != 64 {
		t.Errorf("artifact metadata = %+v", art)
	}

	second := sampleCapture("https://example.com/")
	second.Title = "Newer"
	art2, err := m.SaveCapture("id-2", second)
	if err != nil {
		t.Fatalf("SaveCapture() failed: %v", err)
	}
	// Make the ordering independent of filesystem timestamp resolution.
	old := time.Now().Add(-time.Minute)
	os.Chtimes(art.Path, old, old)

	got, found, err := m.LatestCapture("https://EXAMPLE.com")
	if err != nil || !found {
		t.Fatalf("LatestCapture() = %v, %v", found, err)
	}
	if got.Title != "Newer" {
		t.Errorf("LatestCapture() title = %q, want Newer (from %s)", got.Title, art2.Path)
	}
	if len(got.Exchanges) != 2 || got.Exchanges[1].EncodedBytes != 90000 {
		t.Errorf("exchanges did not round-trip: %+v", got.Exchanges)
	}
	if len(got.Coverage) != 1 || got.Coverage[0].UnusedRatio() != 0.8 {
		t.Errorf("coverage did not round-trip: %+v", got.Coverage)
	}
}

func TestLatestCapture_Stale(t *testing.T) {
	m, _ := NewManager(t.TempDir(), time.Minute)
	art, err := m.SaveCapture("id-1", sampleCapture("https://example.com/"))
	if err != nil {
		t.Fatalf("SaveCapture() failed: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(art.Path, old, old); err != nil {
		t.Fatalf("Chtimes() failed: %v", err)
	}

	_, found, err := m.LatestCapture("https://example.com/")
	if err != nil {
		t.Fatalf("LatestCapture() failed: %v", err)
	}
	if found {
		t.Error("stale capture should not be returned")
	}
}

func TestSaveReport(t *testing.T) {
	m, _ := NewManager(t.TempDir(), 0)
	art, err := m.SaveReport("https://example.com/", "id-1", ".json", []byte(`{"ok":true}`))
	if err != nil {
		t.Fatalf("SaveReport() failed: %v", err)
	}
	data, err := os.ReadFile(art.Path)
	if err != nil || string(data) != `{"ok":true}` {
		t.Errorf("report content = %q, %v", data, err)
	}
}
