package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alexis-pagnon/green-optimizer/internal/common"
	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/capture"
	dbpkg "github.com/alexis-pagnon/green-optimizer/pkg/db"
	"github.com/alexis-pagnon/green-optimizer/pkg/scoring"
)

// apiError is the JSON body of every failed API call.
type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	writeJSON(w, status, apiError{Error: err.Error(), Kind: kind})
}

// classify maps an analysis error to an HTTP status and a short kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidURL):
		return http.StatusBadRequest, "invalid_url"
	case errors.Is(err, scoring.ErrUnknownModelVersion):
		return http.StatusBadRequest, "unknown_model_version"
	case errors.Is(err, capture.ErrTimeout):
		return http.StatusGatewayTimeout, string(capture.KindTimeout)
	case errors.Is(err, capture.ErrNavigationFailed):
		return http.StatusBadGateway, string(capture.KindNavigationFailed)
	case errors.Is(err, capture.ErrBrowserUnavailable):
		return http.StatusServiceUnavailable, string(capture.KindBrowserUnavailable)
	}
	return http.StatusInternalServerError, "internal"
}

// request validates rawURL and applies the configured request options.
func (s *Server) request(rawURL string, extra ...models.RequestOption) (models.AnalysisRequest, error) {
	cleaned, err := common.SanitizeAndValidateURL(rawURL)
	if err != nil {
		return models.AnalysisRequest{}, fmt.Errorf("%w: %v", models.ErrInvalidURL, err)
	}
	opts := append(append([]models.RequestOption{}, s.cfg.RequestOptions...), extra...)
	return models.NewAnalysisRequest(cleaned, opts...)
}

func (s *Server) handleAPIAnalyze(w http.ResponseWriter, r *http.Request) {
	req, err := s.request(r.URL.Query().Get("url"))
	if err != nil {
		jsonErr(w, err)
		return
	}
	if r.URL.Query().Get("fresh") == "1" {
		if err := s.cfg.Analyzer.Invalidate(r.Context(), req.URL); err != nil {
			jsonErr(w, err)
			return
		}
	}
	result, err := s.cfg.Analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.cfg.Logger.Warn("dashboard: analysis failed", "url", req.URL, "error", err)
		jsonErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeJSON(w, http.StatusOK, []dbpkg.AnalysisSummary{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	list, err := s.cfg.History.ListAnalyses(r.Context(), dbpkg.HistoryFilter{
		URL:          r.URL.Query().Get("url"),
		ModelVersion: r.URL.Query().Get("model_version"),
		Limit:        limit,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error(), Kind: "internal"})
		return
	}
	if list == nil {
		list = []dbpkg.AnalysisSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAPIModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"current":  s.cfg.Analyzer.ModelVersion(),
		"versions": s.cfg.Analyzer.Versions(),
	})
}

func (s *Server) handleAPIInvalidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Kind: "invalid_body"})
		return
	}
	req, err := s.request(body.URL)
	if err != nil {
		jsonErr(w, err)
		return
	}
	if err := s.cfg.Analyzer.Invalidate(r.Context(), req.URL); err != nil {
		jsonErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "url": req.URL})
}
