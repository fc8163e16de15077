// Package artifact_manager keeps raw captures and reports on disk so an
// analysis can be re-extracted or re-scored without loading the page again.
package artifact_manager

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alexis-pagnon/green-optimizer/pkg/capture"
	"github.com/alexis-pagnon/green-optimizer/pkg/urlutil"
)

const (
	DefaultBaseDir = "green-results"
	CapturesDir    = "captures"
	ReportsDir     = "reports"
)

// Manager handles storage and retrieval of capture artifacts.
type Manager struct {
	baseDir string
	maxAge  time.Duration // captures older than this are not reused; <= 0 never expires
}

// NewManager creates a new Artifact Manager instance.
// It ensures the base directory and its subdirectories exist.
func NewManager(baseDir string, maxAge time.Duration) (*Manager, error) {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	for _, dir := range []string{CapturesDir, ReportsDir} {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0750); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return &Manager{baseDir: baseDir, maxAge: maxAge}, nil
}

// BaseDir returns the root directory of the artifacts.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// MaxAge returns the configured max age for captures.
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// getShortHash generates a short, stable hash from a normalized URL.
func getShortHash(normalizedURL string) string {
	hash := sha256.Sum256([]byte(normalizedURL))
	return fmt.Sprintf("%x", hash[:6])
}

var invalidFilenameChar = regexp.MustCompile(`[^a-zA-Z0-9\-_]+`)

// sanitizeSlug creates a filesystem-safe slug from a URL host and path.
func sanitizeSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		safe := invalidFilenameChar.ReplaceAllString(rawURL, "_")
		return strings.Trim(safe, "_")
	}

	hostPart := strings.ReplaceAll(u.Hostname(), ".", "_")
	pathPart := strings.TrimPrefix(u.Path, "/")
	pathPart = invalidFilenameChar.ReplaceAllString(pathPart, "_")
	pathPart = strings.Trim(pathPart, "_")
	if len(pathPart) > 60 {
		pathPart = pathPart[:60]
	}

	if pathPart == "" {
		return hostPart
	}
	return fmt.Sprintf("%s_%s", hostPart, pathPart)
}

// URLDir returns the per-URL directory inside an artifact kind directory.
// Example: green-results/captures/example_com_blog-3f2a9c1d0b4e
func (m *Manager) URLDir(kindDir, rawURL string) (string, error) {
	normalized, err := urlutil.NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s", sanitizeSlug(normalized), getShortHash(normalized))
	return filepath.Join(m.baseDir, kindDir, name), nil
}

// Artifact describes a written file.
type Artifact struct {
	Path        string
	ContentHash string
	SizeBytes   int64
}

func (m *Manager) write(kindDir, rawURL, name string, data []byte) (*Artifact, error) {
	dir, err := m.URLDir(kindDir, rawURL)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	return &Artifact{Path: path, ContentHash: urlutil.ContentHash(data), SizeBytes: int64(len(data))}, nil
}

// SaveCapture stores raw as YAML under the analysis ID.
func (m *Manager) SaveCapture(analysisID string, raw *capture.RawCapture) (*Artifact, error) {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode capture: %w", err)
	}
	return m.write(CapturesDir, raw.RequestedURL, analysisID+".yaml", data)
}

// SaveReport stores an already encoded report under the analysis ID.
func (m *Manager) SaveReport(rawURL, analysisID, ext string, data []byte) (*Artifact, error) {
	return m.write(ReportsDir, rawURL, analysisID+ext, data)
}

// LoadCapture reads a capture written by SaveCapture.
func (m *Manager) LoadCapture(path string) (*capture.RawCapture, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("error reading capture artifact: %w", err)
	}
	var raw capture.RawCapture
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode capture artifact: %w", err)
	}
	return &raw, nil
}

// LatestCapture returns the newest capture stored for rawURL if it is
// younger than the max age.
func (m *Manager) LatestCapture(rawURL string) (*capture.RawCapture, bool, error) {
	dir, err := m.URLDir(CapturesDir, rawURL)
	if err != nil {
		return nil, false, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error listing captures: %w", err)
	}

	type candidate struct {
		name string
		mod  time.Time
	}
	var found []candidate
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{e.Name(), info.ModTime()})
	}
	if len(found) == 0 {
		return nil, false, nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.After(found[j].mod) })

	newest := found[0]
	if m.maxAge > 0 && time.Since(newest.mod) > m.maxAge {
		return nil, false, nil // Stale
	}
	raw, err := m.LoadCapture(filepath.Join(dir, newest.name))
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}
