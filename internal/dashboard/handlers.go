package dashboard

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"

	dbpkg "github.com/alexis-pagnon/green-optimizer/pkg/db"
)

// errorView is what the error page shows. It never carries a score.
type errorView struct {
	URL     string
	Message string
	Kind    string
}

func (s *Server) render(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		s.cfg.Logger.Error("dashboard: template failed", "template", tmpl.Name(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) renderError(w http.ResponseWriter, rawURL string, err error) {
	status, kind := classify(err)
	s.render(w, status, errorTmpl, errorView{URL: rawURL, Message: err.Error(), Kind: kind})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var history []dbpkg.AnalysisSummary
	if s.cfg.History != nil {
		list, err := s.cfg.History.ListAnalyses(r.Context(), dbpkg.HistoryFilter{Limit: 20})
		if err != nil {
			s.cfg.Logger.Warn("dashboard: failed to list history", "error", err)
		}
		history = list
	}
	s.render(w, http.StatusOK, indexTmpl, struct {
		ModelVersion string
		History      []dbpkg.AnalysisSummary
	}{
		ModelVersion: s.cfg.Analyzer.ModelVersion(),
		History:      history,
	})
}

// handleAnalyzeForm validates the submitted URL and redirects to its result page.
func (s *Server) handleAnalyzeForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	rawURL := r.FormValue("url")
	req, err := s.request(rawURL)
	if err != nil {
		s.renderError(w, "", err)
		return
	}
	http.Redirect(w, r, "/result?url="+url.QueryEscape(req.URL), http.StatusSeeOther)
}

// handleResult shows the fresh result for the URL, analyzing it when needed.
// Concurrent visitors of the same URL share one capture.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	req, err := s.request(rawURL)
	if err != nil {
		s.renderError(w, "", err)
		return
	}
	result, err := s.cfg.Analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.cfg.Logger.Warn("dashboard: analysis failed", "url", req.URL, "error", err)
		s.renderError(w, req.URL, err)
		return
	}
	s.render(w, http.StatusOK, resultTmpl, result)
}

// handleInvalidateForm drops the cached result and analyzes again.
func (s *Server) handleInvalidateForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	req, err := s.request(r.FormValue("url"))
	if err != nil {
		s.renderError(w, "", err)
		return
	}
	if err := s.cfg.Analyzer.Invalidate(r.Context(), req.URL); err != nil {
		s.renderError(w, req.URL, err)
		return
	}
	http.Redirect(w, r, "/result?url="+url.QueryEscape(req.URL), http.StatusSeeOther)
}
