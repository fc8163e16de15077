package greenhost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/caching"
)

func TestStatic(t *testing.T) {
	s := NewStatic(StaticList{
		Green:    []StaticEntry{{Domain: "example.org", HostedBy: "Leaf Hosting"}},
		NotGreen: []string{"legacy.example.org", "coal.example"},
	})

	tests := []struct {
		domain string
		want   string
	}{
		{"example.org", "green"},
		{"www.example.org", "green"},
		{"EXAMPLE.org.", "green"},
		{"legacy.example.org", "not-green"},
		{"cdn.legacy.example.org", "not-green"},
		{"coal.example", "not-green"},
		{"unlisted.test", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			got, err := s.Check(context.Background(), tt.domain)
			if err != nil {
				t.Fatalf("Check() failed: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("Check(%q) = %s, want %s", tt.domain, got, tt.want)
			}
		})
	}
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "green.yaml")
	content := "green:\n  - domain: leaf.example\n    hosted_by: Leaf\nnot_green:\n  - coal.example\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	s, err := LoadStatic(path)
	if err != nil {
		t.Fatalf("LoadStatic() failed: %v", err)
	}
	got, _ := s.Check(context.Background(), "leaf.example")
	if !got.IsGreen || got.HostedBy != "Leaf" {
		t.Errorf("Check() = %+v", got)
	}

	if _, err := LoadStatic(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func newGreencheckServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/api/v3/greencheck/green.example":
			w.Write([]byte(`{"url":"green.example","green":true,"hosted_by":"Leaf"}`))
		case "/api/v3/greencheck/grey.example":
			w.Write([]byte(`{"url":"grey.example","green":false}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAPI(t *testing.T) {
	var calls atomic.Int32
	srv := newGreencheckServer(t, &calls)
	api := NewAPI(srv.URL + "/")

	got, err := api.Check(context.Background(), "Green.Example")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if got.String() != "green" || got.HostedBy != "Leaf" {
		t.Errorf("Check() = %+v", got)
	}

	got, err = api.Check(context.Background(), "grey.example")
	if err != nil || got.String() != "not-green" {
		t.Errorf("Check(grey) = %+v, %v", got, err)
	}

	got, err = api.Check(context.Background(), "broken.example")
	if err == nil {
		t.Error("expected error on server failure")
	}
	if got.Known {
		t.Error("a failed lookup must stay unknown")
	}
}

func TestCached(t *testing.T) {
	var calls atomic.Int32
	srv := newGreencheckServer(t, &calls)
	cache, err := caching.NewCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewCache() failed: %v", err)
	}
	c := &Cached{Inner: NewAPI(srv.URL), Cache: cache}

	for i := 0; i < 3; i++ {
		got, err := c.Check(context.Background(), "green.example")
		if err != nil || !got.IsGreen {
			t.Fatalf("Check() = %+v, %v", got, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("API called %d times, want 1", calls.Load())
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Check(context.Background(), "broken.example"); err == nil {
			t.Error("expected error")
		}
	}
	if calls.Load() != 3 {
		t.Errorf("failed lookups should not be cached, calls = %d", calls.Load())
	}
}

func TestChain(t *testing.T) {
	boom := errors.New("boom")
	failing := Func(func(context.Context, string) (models.GreenHostSignal, error) {
		return models.UnknownHost(), boom
	})
	green := Func(func(context.Context, string) (models.GreenHostSignal, error) {
		return models.GreenHostSignal{Known: true, IsGreen: true}, nil
	})

	got, err := Chain{Unknown{}, failing, green}.Check(context.Background(), "x.example")
	if err != nil || !got.IsGreen {
		t.Errorf("Chain should return first known answer, got %+v, %v", got, err)
	}

	got, err = Chain{Unknown{}, failing}.Check(context.Background(), "x.example")
	if got.Known || !errors.Is(err, boom) {
		t.Errorf("Chain without answer = %+v, %v", got, err)
	}
}

func TestFromConfig(t *testing.T) {
	if _, err := FromConfig(models.GreenHostConfig{Mode: "none"}, nil); err != nil {
		t.Errorf("mode none failed: %v", err)
	}
	if _, err := FromConfig(models.GreenHostConfig{Mode: "static"}, nil); err == nil {
		t.Error("static mode without file should fail")
	}
	if _, err := FromConfig(models.GreenHostConfig{Mode: "bogus"}, nil); err == nil {
		t.Error("unknown mode should fail")
	}
	c, err := FromConfig(models.GreenHostConfig{Mode: "api", CacheDir: t.TempDir(), CacheTTL: time.Hour}, nil)
	if err != nil {
		t.Fatalf("api mode failed: %v", err)
	}
	if _, ok := c.(*Cached); !ok {
		t.Errorf("api mode with cache dir should be cached, got %T", c)
	}
}
