package analyzer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/capture"
	"github.com/alexis-pagnon/green-optimizer/pkg/mapreduce"
)

// Outcome is the result of one request of a batch.
type Outcome struct {
	Index     int                    `json:"-" yaml:"-"`
	URL       string                 `json:"url" yaml:"url"`
	Result    *models.AnalysisResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error     error                  `json:"-" yaml:"-"`
	ErrorType string                 `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	Message   string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchSummary aggregates the outcomes of a batch.
type BatchSummary struct {
	Succeeded int                   `json:"succeeded" yaml:"succeeded"`
	Failed    int                   `json:"failed" yaml:"failed"`
	TopHosts  []mapreduce.HostBytes `json:"top_hosts,omitempty" yaml:"top_hosts,omitempty"`
}

type job struct {
	index int
	req   models.AnalysisRequest
}

// AnalyzeAll analyzes reqs with a fixed set of workers and returns outcomes
// in request order. Failures are reported per request.
func (a *Analyzer) AnalyzeAll(ctx context.Context, reqs []models.AnalysisRequest) []Outcome {
	workers := a.cfg.Workers
	if workers > len(reqs) {
		workers = len(reqs)
	}
	a.cfg.Logger.Info("Starting analysis batch", "url_count", len(reqs), "workers", workers, "model_version", a.cfg.ModelVersion)

	var wg sync.WaitGroup
	jobs := make(chan job, len(reqs))
	results := make(chan Outcome, len(reqs))

	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go a.worker(ctx, w, &wg, jobs, results)
	}
	for i, req := range reqs {
		jobs <- job{index: i, req: req}
	}
	close(jobs)

	wg.Wait()
	close(results)
	a.cfg.Logger.Info("All analysis workers finished")

	outcomes := make([]Outcome, len(reqs))
	for o := range results {
		outcomes[o.Index] = o
	}
	return outcomes
}

func (a *Analyzer) worker(ctx context.Context, id int, wg *sync.WaitGroup, jobs <-chan job, results chan<- Outcome) {
	defer wg.Done()
	for j := range jobs {
		a.cfg.Logger.Debug("Worker analyzing", "worker_id", id, "url", j.req.URL)
		res, err := a.Analyze(ctx, j.req)
		o := Outcome{Index: j.index, URL: j.req.URL, Result: res, Error: err}
		if err != nil {
			o.ErrorType = errorType(err)
			o.Message = err.Error()
			a.cfg.Logger.Error("Analysis failed", "worker_id", id, "url", j.req.URL, "error", err)
		}
		results <- o
	}
}

func errorType(err error) string {
	if kind := capture.KindOf(err); kind != "" {
		return string(kind)
	}
	return "analysis_error"
}

// Summarize counts outcomes and ranks the heaviest hosts across the batch.
func Summarize(outcomes []Outcome, topN int) BatchSummary {
	var s BatchSummary
	var perPage []map[string]int64
	for _, o := range outcomes {
		if o.Error != nil || o.Result == nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		perPage = append(perPage, mapreduce.Map(o.Result.Snapshot))
	}
	s.TopHosts = mapreduce.TopHosts(mapreduce.Reduce(perPage), topN)
	return s
}

// LogSummary writes the batch summary to logger.
func LogSummary(logger *slog.Logger, s BatchSummary) {
	hosts := make([]string, len(s.TopHosts))
	for i, h := range s.TopHosts {
		hosts[i] = h.String()
	}
	logger.Info("Analysis batch summary", "succeeded", s.Succeeded, "failed", s.Failed, "top_hosts", hosts)
}
