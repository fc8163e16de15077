// Package manifest describes a batch analysis run in a lightweight summary
// file that can be read without opening every report.
package manifest

import "github.com/alexis-pagnon/green-optimizer/pkg/mapreduce"

// Manifest is the summary file written next to a batch report.
type Manifest struct {
	GeneratedAt  string                `json:"generated_at" yaml:"generated_at"`
	RunID        int64                 `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ModelVersion string                `json:"model_version" yaml:"model_version"`
	TotalURLs    int                   `json:"total_urls" yaml:"total_urls"`
	Successful   int                   `json:"successful" yaml:"successful"`
	Failed       int                   `json:"failed" yaml:"failed"`
	AverageScore float64               `json:"average_score" yaml:"average_score"`
	TopHosts     []mapreduce.HostBytes `json:"top_hosts,omitempty" yaml:"top_hosts,omitempty"`
	Results      []URLSummary          `json:"results" yaml:"results"`
}

// URLSummary is the one-line outcome of a single URL.
type URLSummary struct {
	URL          string  `json:"url" yaml:"url"`
	Status       string  `json:"status" yaml:"status"` // "success" or "error"
	AnalysisID   string  `json:"analysis_id,omitempty" yaml:"analysis_id,omitempty"`
	ErrorType    string  `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Score        float64 `json:"score,omitempty" yaml:"score,omitempty"`
	Grade        string  `json:"grade,omitempty" yaml:"grade,omitempty"`
	Confidence   string  `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	TotalBytes   int64   `json:"total_bytes,omitempty" yaml:"total_bytes,omitempty"`
	RequestCount int     `json:"request_count,omitempty" yaml:"request_count,omitempty"`
	TopFix       string  `json:"top_recommendation,omitempty" yaml:"top_recommendation,omitempty"`
}
