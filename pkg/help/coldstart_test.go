package help

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alexis-pagnon/green-optimizer/models"
)

func TestQuickstartYAML_Parses(t *testing.T) {
	var doc struct {
		Commands   map[string]string `yaml:"commands"`
		ConfigFile string            `yaml:"config_file"`
		ExitCodes  map[int]string    `yaml:"exit_codes"`
	}
	if err := yaml.Unmarshal([]byte(QuickstartYAML), &doc); err != nil {
		t.Fatalf("quickstart is not valid YAML: %v", err)
	}
	if len(doc.Commands) == 0 {
		t.Error("expected commands")
	}
	if len(doc.ExitCodes) != 3 {
		t.Errorf("exit codes = %v", doc.ExitCodes)
	}

	// The sample configuration must load into the real config type.
	var cfg models.Config
	if err := yaml.Unmarshal([]byte(doc.ConfigFile), &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.WorkerCount != 2 || cfg.CaptureTimeout != 45*time.Second || cfg.DatabasePath != "green-optimizer.db" {
		t.Errorf("sample config = %+v", cfg)
	}
	if cfg.Browser.Viewport == nil || cfg.Browser.Viewport.Width != 1366 {
		t.Errorf("viewport = %+v", cfg.Browser.Viewport)
	}
	if cfg.GreenHost.CacheTTL != 168*time.Hour {
		t.Errorf("cache ttl = %v", cfg.GreenHost.CacheTTL)
	}
}
