package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alexis-pagnon/green-optimizer/models"
)

const fixturePage = `<!DOCTYPE html>
<html><head><title>Fixture</title></head>
<body><p>hello</p><img src="/missing.png" width="10" height="10"></body></html>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	stop := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(fixturePage))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(10 * time.Second):
		case <-r.Context().Done():
		case <-stop:
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(stop) })
	return srv
}

// openTargets counts page targets and browser contexts left in Chrome.
func openTargets(t *testing.T, b *rod.Browser) (pages, contexts int) {
	t.Helper()
	targets, err := proto.TargetGetTargets{}.Call(b)
	if err != nil {
		t.Fatalf("TargetGetTargets failed: %v", err)
	}
	for _, info := range targets.TargetInfos {
		if info.Type == proto.TargetTargetInfoTypePage {
			pages++
		}
	}
	ctxs, err := proto.TargetGetBrowserContexts{}.Call(b)
	if err != nil {
		t.Fatalf("TargetGetBrowserContexts failed: %v", err)
	}
	return pages, len(ctxs.BrowserContextIDs)
}

func TestBrowserCapturer(t *testing.T) {
	if testing.Short() {
		t.Skip("launches chrome")
	}
	bin, has := launcher.LookPath()
	if !has {
		t.Skip("no chrome executable found")
	}

	srv := newFixtureServer(t)
	mgr := NewBrowserManager(ManagerConfig{Bin: bin, Logger: quietLogger()})
	defer mgr.Close()

	b, err := mgr.Browser(context.Background())
	if err != nil {
		t.Fatalf("Browser() failed: %v", err)
	}
	basePages, baseContexts := openTargets(t, b)

	c := NewBrowserCapturer(mgr, CapturerConfig{
		IdleQuiet: 100 * time.Millisecond,
		IdleMax:   2 * time.Second,
		Logger:    quietLogger(),
	})

	t.Run("missing sub-resource is failed with zero bytes", func(t *testing.T) {
		raw, err := c.Capture(context.Background(), models.AnalysisRequest{URL: srv.URL + "/", CaptureTimeout: 20 * time.Second})
		if err != nil {
			t.Fatalf("Capture() failed: %v", err)
		}
		if raw.Engine != "browser" || raw.Title != "Fixture" {
			t.Errorf("raw = engine %q title %q", raw.Engine, raw.Title)
		}
		if raw.DOMNodeCount == 0 {
			t.Error("expected DOM nodes to be counted")
		}

		var doc, missing *Exchange
		for i := range raw.Exchanges {
			switch raw.Exchanges[i].URL {
			case srv.URL + "/":
				doc = &raw.Exchanges[i]
			case srv.URL + "/missing.png":
				missing = &raw.Exchanges[i]
			}
		}
		if doc == nil || doc.Status != http.StatusOK || doc.Failed || doc.EncodedBytes == 0 {
			t.Errorf("document exchange = %+v", doc)
		}
		if missing == nil {
			t.Fatalf("missing.png was not recorded: %+v", raw.Exchanges)
		}
		if !missing.Failed || missing.EncodedBytes != 0 || missing.Status != http.StatusNotFound {
			t.Errorf("404 exchange = %+v, want failed with zero bytes and status kept", missing)
		}
	})

	t.Run("slow page times out", func(t *testing.T) {
		_, err := c.Capture(context.Background(), models.AnalysisRequest{URL: srv.URL + "/slow", CaptureTimeout: 500 * time.Millisecond})
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("Capture() error = %v, want ErrTimeout", err)
		}
	})

	pages, contexts := openTargets(t, b)
	if pages != basePages || contexts != baseContexts {
		t.Errorf("captures left targets behind: pages %d -> %d, contexts %d -> %d", basePages, pages, baseContexts, contexts)
	}
}

func TestBrowserManager_Unavailable(t *testing.T) {
	mgr := NewBrowserManager(ManagerConfig{RemoteURL: "ws://127.0.0.1:1/devtools/browser/none", Logger: quietLogger()})
	c := NewBrowserCapturer(mgr, CapturerConfig{Logger: quietLogger()})

	req := models.AnalysisRequest{URL: "https://example.com/", CaptureTimeout: 5 * time.Second}
	_, err := c.Capture(context.Background(), req)
	if !errors.Is(err, ErrBrowserUnavailable) {
		t.Fatalf("Capture() error = %v, want ErrBrowserUnavailable", err)
	}
	var ce *CaptureError
	if !errors.As(err, &ce) || ce.URL != req.URL {
		t.Errorf("error should carry the requested URL: %v", err)
	}

	if err := mgr.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := mgr.Browser(context.Background()); !errors.Is(err, ErrBrowserUnavailable) {
		t.Errorf("Browser() after Close() = %v, want ErrBrowserUnavailable", err)
	}
}
