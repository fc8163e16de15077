package common

import (
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

// newContext parses args against the global flags plus the request flags.
func newContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := append(GlobalFlags(),
		&cli.StringFlag{Name: "timeout"},
		&cli.StringFlag{Name: "max-age"},
		&cli.StringFlag{Name: "viewport"},
	)
	for _, f := range flags {
		if err := f.Apply(set); err != nil {
			t.Fatalf("apply %v: %v", f.Names(), err)
		}
	}
	if err := set.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cli.NewContext(&cli.App{}, set, nil)
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "green.yaml")
	if err := os.WriteFile(path, []byte("engine: browser\nworkers: 3\nmodel_version: green-2024.1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(newContext(t, "--config", path))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Engine != "browser" || cfg.WorkerCount != 3 || cfg.ModelVersion != "green-2024.1" {
		t.Errorf("file values not applied: %+v", cfg)
	}

	cfg, err = LoadConfig(newContext(t, "--config", path, "--engine", "http", "--workers", "8", "--db", "x.db", "--green-host", "none"))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Engine != "http" || cfg.WorkerCount != 8 || cfg.DatabasePath != "x.db" || cfg.GreenHost.Mode != "none" {
		t.Errorf("flags did not override: %+v", cfg)
	}
	if cfg.ModelVersion != "green-2024.1" {
		t.Errorf("unset flag overrode file value: %q", cfg.ModelVersion)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("workers: [oops\n"), 0644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		args []string
	}{
		{"invalid engine", []string{"--config", "", "--engine", "lynx"}},
		{"malformed file", []string{"--config", bad}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(newContext(t, tt.args...))
			if code := exitCode(err); code != ExitConfigError {
				t.Errorf("exit code = %d, want %d (err %v)", code, ExitConfigError, err)
			}
		})
	}
}

func TestRequestOptions(t *testing.T) {
	opts, err := RequestOptions(newContext(t, "--timeout", "12s", "--max-age", "5m", "--viewport", "800x600"))
	if err != nil {
		t.Fatalf("RequestOptions() failed: %v", err)
	}
	if len(opts) != 3 {
		t.Fatalf("got %d options, want 3", len(opts))
	}

	for _, args := range [][]string{
		{"--timeout", "soon"},
		{"--timeout", "-1s"},
		{"--max-age", "forever"},
		{"--viewport", "wide"},
	} {
		if _, err := RequestOptions(newContext(t, args...)); exitCode(err) != ExitConfigError {
			t.Errorf("RequestOptions(%v) err = %v, want config error", args, err)
		}
	}
}

func TestNewRuntime_HTTPEngine(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(newContext(t,
		"--config", "",
		"--engine", "http",
		"--green-host", "none",
		"--db", ":memory:",
		"--artifacts-dir", filepath.Join(dir, "artifacts"),
	))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	rt, err := NewRuntime(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRuntime() failed: %v", err)
	}
	defer rt.Close()

	if rt.Analyzer == nil || rt.DB == nil || rt.Artifacts == nil {
		t.Fatal("runtime is missing components")
	}
	if rt.browser != nil {
		t.Error("http engine must not start a browser manager")
	}

	req, err := rt.Request("https://example.com/")
	if err != nil {
		t.Fatalf("Request() failed: %v", err)
	}
	if req.CaptureTimeout != cfg.CaptureTimeout || req.FreshnessWindow != time.Hour {
		t.Errorf("request defaults not applied: %+v", req)
	}
}
