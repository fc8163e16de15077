package models

import (
	"fmt"
	"strings"
)

// Severity ranks how urgent a recommendation is.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalText encodes the severity as its name for JSON and YAML.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "low":
		*s = SeverityLow
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Recommendation is one actionable optimization.
type Recommendation struct {
	ID                   string   `json:"id" yaml:"id"`
	Category             Category `json:"category" yaml:"category"`
	Severity             Severity `json:"severity" yaml:"severity"`
	Title                string   `json:"title" yaml:"title"`
	Detail               string   `json:"detail,omitempty" yaml:"detail,omitempty"`
	EstimatedByteSavings *int64   `json:"estimated_byte_savings,omitempty" yaml:"estimated_byte_savings,omitempty"`
	EstimatedScoreDelta  *float64 `json:"estimated_score_delta,omitempty" yaml:"estimated_score_delta,omitempty"`
}

// Clone returns a deep copy.
func (r Recommendation) Clone() Recommendation {
	c := r
	if r.EstimatedByteSavings != nil {
		v := *r.EstimatedByteSavings
		c.EstimatedByteSavings = &v
	}
	if r.EstimatedScoreDelta != nil {
		v := *r.EstimatedScoreDelta
		c.EstimatedScoreDelta = &v
	}
	return c
}
