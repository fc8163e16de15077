package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ManagerConfig configures the browser manager.
type ManagerConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local Chrome.
	RemoteURL string

	// Bin is the Chrome executable. Empty = look it up on the system;
	// the browser is never downloaded.
	Bin string

	// Headful shows the browser window. Default: headless.
	Headful bool

	Logger *slog.Logger
}

func (c *ManagerConfig) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserManager owns one Chrome connection shared by every capture.
// Chrome is started lazily on first use.
type BrowserManager struct {
	cfg     ManagerConfig
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewBrowserManager creates a manager. Nothing is launched until a capture needs it.
func NewBrowserManager(cfg ManagerConfig) *BrowserManager {
	cfg.defaults()
	return &BrowserManager{cfg: cfg}
}

// Browser returns the connected browser, launching or connecting if needed.
func (m *BrowserManager) Browser(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, NewError(KindBrowserUnavailable, "", errors.New("browser manager is closed"))
	}
	if m.browser != nil {
		return m.browser, nil
	}

	b, err := m.launch(ctx)
	if err != nil {
		return nil, NewError(KindBrowserUnavailable, "", err)
	}
	m.browser = b
	return b, nil
}

// Incognito opens a fresh isolated browser context. A dead connection is
// dropped and re-established once before giving up.
func (m *BrowserManager) Incognito(ctx context.Context) (*rod.Browser, error) {
	b, err := m.Browser(ctx)
	if err != nil {
		return nil, err
	}
	incog, err := b.Incognito()
	if err == nil {
		return incog, nil
	}

	m.cfg.Logger.Warn("browser: incognito failed, reconnecting", "error", err)
	m.reset()

	b, err = m.Browser(ctx)
	if err != nil {
		return nil, err
	}
	incog, err = b.Incognito()
	if err != nil {
		return nil, NewError(KindBrowserUnavailable, "", fmt.Errorf("failed to open incognito context: %w", err))
	}
	return incog, nil
}

// Close shuts down Chrome. Later captures fail with ErrBrowserUnavailable.
func (m *BrowserManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *BrowserManager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.cleanup(); err != nil {
		m.cfg.Logger.Warn("browser: cleanup failed", "error", err)
	}
}

func (m *BrowserManager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		bin := m.cfg.Bin
		if bin == "" {
			found, ok := launcher.LookPath()
			if !ok {
				return nil, errors.New("no chrome executable found")
			}
			bin = found
		}

		// The process must outlive the capture that started it, so the
		// launcher is not bound to ctx.
		l := launcher.New().Bin(bin).Headless(!m.cfg.Headful)
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch chrome: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "bin", bin)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *BrowserManager) cleanup() error {
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return err
}
