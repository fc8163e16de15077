// Package dashboard serves the analysis pipeline over HTTP: an HTML form
// with history and result pages, plus a small JSON API.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alexis-pagnon/green-optimizer/models"
	dbpkg "github.com/alexis-pagnon/green-optimizer/pkg/db"
)

// Analyzer is the part of the pipeline the dashboard drives.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)
	Cached(ctx context.Context, rawURL string) (*models.AnalysisResult, bool)
	Invalidate(ctx context.Context, rawURL string) error
	ModelVersion() string
	Versions() []string
}

// History lists stored analyses.
type History interface {
	ListAnalyses(ctx context.Context, f dbpkg.HistoryFilter) ([]dbpkg.AnalysisSummary, error)
}

// Config configures the dashboard. Analyzer is required.
type Config struct {
	Analyzer Analyzer
	History  History

	// RequestOptions are applied to every analysis request.
	RequestOptions []models.RequestOption

	// MCP, when set, is mounted under /mcp.
	MCP http.Handler

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is the dashboard HTTP handler.
type Server struct {
	cfg    Config
	router *chi.Mux
}

// New builds the dashboard and its routes.
func New(cfg Config) (*Server, error) {
	cfg.defaults()
	if cfg.Analyzer == nil {
		return nil, errors.New("dashboard: analyzer is required")
	}
	s := &Server{cfg: cfg}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", s.handleIndex)
	r.Post("/analyze", s.handleAnalyzeForm)
	r.Get("/result", s.handleResult)
	r.Post("/invalidate", s.handleInvalidateForm)

	r.Route("/api", func(r chi.Router) {
		r.Get("/analyze", s.handleAPIAnalyze)
		r.Get("/history", s.handleAPIHistory)
		r.Get("/models", s.handleAPIModels)
		r.Post("/invalidate", s.handleAPIInvalidate)
	})

	if s.cfg.MCP != nil {
		r.Mount("/mcp", s.cfg.MCP)
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.cfg.Logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
// Analyses can take as long as the capture timeout, so the write timeout is generous.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.cfg.Logger.Info("dashboard starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve dashboard: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.cfg.Logger.Info("dashboard shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down dashboard: %w", err)
	}
	return nil
}
