// Package models defines the data structures shared by the analysis pipeline,
// its configuration and its consumers.
package models

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "green-optimizer.yaml"

// Config holds runtime configuration. Values come from an optional YAML file;
// CLI flags override them.
type Config struct {
	WorkerCount     int           `yaml:"workers"`
	CaptureTimeout  time.Duration `yaml:"capture_timeout"`
	FreshnessWindow time.Duration `yaml:"freshness_window"`
	ModelVersion    string        `yaml:"model_version"`
	Engine          string        `yaml:"engine"` // browser | http | auto
	DatabasePath    string        `yaml:"database"`
	ArtifactsDir    string        `yaml:"artifacts_dir"`

	Browser   BrowserConfig   `yaml:"browser"`
	GreenHost GreenHostConfig `yaml:"green_host"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// BrowserConfig controls the Chrome instance used for captures.
type BrowserConfig struct {
	Remote   string    `yaml:"remote"` // DevTools websocket URL; empty launches a local Chrome
	Bin      string    `yaml:"bin"`
	Headless *bool     `yaml:"headless"`
	Stealth  bool      `yaml:"stealth"`
	Viewport *Viewport `yaml:"viewport"`
	Coverage *bool     `yaml:"coverage"`
}

// GreenHostConfig selects how hosting is classified.
type GreenHostConfig struct {
	Mode       string        `yaml:"mode"` // static | api | chain | none
	StaticFile string        `yaml:"static_file"`
	APIURL     string        `yaml:"api_url"`
	CacheDir   string        `yaml:"cache_dir"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// DashboardConfig configures the HTTP dashboard.
type DashboardConfig struct {
	Addr string `yaml:"addr"`
}

// LoadConfig reads a YAML configuration file. A missing file is not an error:
// the defaults are returned instead.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = DefaultCaptureTimeout
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = time.Hour
	}
	if c.Engine == "" {
		c.Engine = "auto"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "green-optimizer.db"
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = "green-results"
	}
	if c.Browser.Headless == nil {
		headless := true
		c.Browser.Headless = &headless
	}
	if c.Browser.Coverage == nil {
		coverage := true
		c.Browser.Coverage = &coverage
	}
	if c.GreenHost.Mode == "" {
		c.GreenHost.Mode = "api"
	}
	if c.GreenHost.CacheTTL <= 0 {
		c.GreenHost.CacheTTL = 7 * 24 * time.Hour
	}
	if c.GreenHost.CacheDir == "" {
		c.GreenHost.CacheDir = ".green-cache"
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = "127.0.0.1:8080"
	}
}
