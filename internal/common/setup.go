package common

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/analyzer"
	"github.com/alexis-pagnon/green-optimizer/pkg/artifact_manager"
	"github.com/alexis-pagnon/green-optimizer/pkg/capture"
	"github.com/alexis-pagnon/green-optimizer/pkg/db"
	"github.com/alexis-pagnon/green-optimizer/pkg/extractor"
	"github.com/alexis-pagnon/green-optimizer/pkg/fetcher"
	"github.com/alexis-pagnon/green-optimizer/pkg/greenhost"
	"github.com/alexis-pagnon/green-optimizer/pkg/scoring"
)

// Exit codes shared by every command.
const (
	ExitFailure     = 1
	ExitConfigError = 2
)

// GlobalFlags are accepted before any command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: models.DefaultConfigFile, Usage: "YAML configuration file (optional)"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors"},
		&cli.StringFlag{Name: "log-level", Usage: "log level: debug, info, warn, error"},
		&cli.StringFlag{Name: "db", Usage: "SQLite database path"},
		&cli.StringFlag{Name: "artifacts-dir", Usage: "directory for stored captures and reports"},
		&cli.StringFlag{Name: "engine", Usage: "capture engine: browser, http or auto"},
		&cli.IntFlag{Name: "workers", Usage: "concurrent captures"},
		&cli.StringFlag{Name: "model", Usage: "scoring model version"},
		&cli.StringFlag{Name: "green-host", Usage: "green hosting lookup: api, static, chain or none"},
		&cli.StringFlag{Name: "browser-remote", Usage: "DevTools websocket URL of a running Chrome"},
	}
}

// NewLogger builds the JSON stderr logger. --quiet wins over --log-level.
func NewLogger(c *cli.Context) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// ConfigError marks a failure the user fixes by changing flags or the
// configuration file.
func ConfigError(format string, args ...any) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(format, args...), ExitConfigError)
}

// Failure marks an operation that ran and failed.
func Failure(format string, args ...any) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(format, args...), ExitFailure)
}

// LoadConfig reads the configuration file and applies flag overrides.
func LoadConfig(c *cli.Context) (*models.Config, error) {
	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return nil, ConfigError("%v", err)
	}

	if v := c.String("db"); v != "" {
		cfg.DatabasePath = v
	}
	if v := c.String("artifacts-dir"); v != "" {
		cfg.ArtifactsDir = v
	}
	if v := c.String("engine"); v != "" {
		cfg.Engine = v
	}
	if v := c.Int("workers"); v > 0 {
		cfg.WorkerCount = v
	}
	if v := c.String("model"); v != "" {
		cfg.ModelVersion = v
	}
	if v := c.String("green-host"); v != "" {
		cfg.GreenHost.Mode = v
	}
	if v := c.String("browser-remote"); v != "" {
		cfg.Browser.Remote = v
	}

	switch cfg.Engine {
	case "browser", "http", "auto":
	default:
		return nil, ConfigError("invalid engine %q: must be browser, http or auto", cfg.Engine)
	}
	return cfg, nil
}

// Runtime holds the long-lived components a command works with.
type Runtime struct {
	Config    *models.Config
	Logger    *slog.Logger
	DB        *db.DB
	Artifacts *artifact_manager.Manager
	Fetcher   *fetcher.Fetcher
	Analyzer  *analyzer.Analyzer

	browser *capture.BrowserManager
}

// NewRuntime opens the database and artifact store and wires the analysis
// pipeline for cfg. Every error it returns is a configuration error.
func NewRuntime(cfg *models.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, ConfigError("failed to open database: %v", err)
	}
	rt.DB = database

	rt.Artifacts, err = artifact_manager.NewManager(cfg.ArtifactsDir, 0)
	if err != nil {
		rt.Close()
		return nil, ConfigError("failed to initialize artifact manager: %v", err)
	}

	hosts, err := greenhost.FromConfig(cfg.GreenHost, logger)
	if err != nil {
		rt.Close()
		return nil, ConfigError("failed to configure green hosting lookup: %v", err)
	}

	rt.Fetcher = fetcher.NewFetcher(fetcher.WithLogger(logger))

	rt.Analyzer, err = analyzer.New(analyzer.Config{
		Capturer:        rt.capturer(),
		Extractor:       extractor.New(hosts, logger),
		Scorer:          scoring.NewEngine(),
		Workers:         cfg.WorkerCount,
		ModelVersion:    cfg.ModelVersion,
		FreshnessWindow: cfg.FreshnessWindow,
		DB:              rt.DB,
		Artifacts:       rt.Artifacts,
		Logger:          logger,
	})
	if err != nil {
		rt.Close()
		return nil, ConfigError("failed to build analyzer: %v", err)
	}
	return rt, nil
}

func (rt *Runtime) capturer() capture.Capturer {
	cfg := rt.Config
	if cfg.Engine == "http" {
		return rt.Fetcher
	}

	rt.browser = capture.NewBrowserManager(capture.ManagerConfig{
		RemoteURL: cfg.Browser.Remote,
		Bin:       cfg.Browser.Bin,
		Headful:   cfg.Browser.Headless != nil && !*cfg.Browser.Headless,
		Logger:    rt.Logger,
	})
	browser := capture.NewBrowserCapturer(rt.browser, capture.CapturerConfig{
		Stealth:  cfg.Browser.Stealth,
		Coverage: cfg.Browser.Coverage == nil || *cfg.Browser.Coverage,
		Logger:   rt.Logger,
	})
	if cfg.Engine == "browser" {
		return browser
	}
	return &capture.Fallback{Primary: browser, Secondary: rt.Fetcher, Logger: rt.Logger}
}

// RequestDefaults are the request options taken from the configuration.
func (rt *Runtime) RequestDefaults() []models.RequestOption {
	return []models.RequestOption{
		models.WithCaptureTimeout(rt.Config.CaptureTimeout),
		models.WithFreshnessWindow(rt.Config.FreshnessWindow),
		models.WithViewport(rt.Config.Browser.Viewport),
	}
}

// Request builds an analysis request using the configured defaults.
func (rt *Runtime) Request(rawURL string, opts ...models.RequestOption) (models.AnalysisRequest, error) {
	return models.NewAnalysisRequest(rawURL, append(rt.RequestDefaults(), opts...)...)
}

// Close releases the browser and the database.
func (rt *Runtime) Close() {
	if rt.browser != nil {
		if err := rt.browser.Close(); err != nil {
			rt.Logger.Warn("failed to close browser", "error", err)
		}
	}
	if rt.DB != nil {
		if err := rt.DB.Close(); err != nil {
			rt.Logger.Warn("failed to close database", "error", err)
		}
	}
}

// RequestOptions reads the per-request flags shared by analyze-like commands.
func RequestOptions(c *cli.Context) ([]models.RequestOption, error) {
	var opts []models.RequestOption
	if c.IsSet("timeout") {
		d, err := time.ParseDuration(c.String("timeout"))
		if err != nil || d <= 0 {
			return nil, ConfigError("invalid timeout %q", c.String("timeout"))
		}
		opts = append(opts, models.WithCaptureTimeout(d))
	}
	if c.IsSet("max-age") {
		d, err := time.ParseDuration(c.String("max-age"))
		if err != nil {
			return nil, ConfigError("invalid max-age duration: %v", err)
		}
		opts = append(opts, models.WithFreshnessWindow(d))
	}
	if v := c.String("viewport"); v != "" {
		vp, err := models.ParseViewport(v)
		if err != nil {
			return nil, ConfigError("%v", err)
		}
		opts = append(opts, models.WithViewport(vp))
	}
	return opts, nil
}

// SignalContext is cancelled on interrupt or termination.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
