package greenhost

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// StaticEntry is one green domain of a static list.
type StaticEntry struct {
	Domain   string `yaml:"domain"`
	HostedBy string `yaml:"hosted_by,omitempty"`
}

// StaticList is the YAML layout of a static green-hosting file:
//
//	green:
//	  - domain: example.org
//	    hosted_by: Some Green Host
//	not_green:
//	  - legacy.example
type StaticList struct {
	Green    []StaticEntry `yaml:"green"`
	NotGreen []string      `yaml:"not_green"`
}

// Static answers from a fixed list. A listed domain also covers its subdomains;
// the most specific match wins.
type Static struct {
	green    map[string]string
	notGreen map[string]bool
}

// NewStatic builds a checker from an in-memory list.
func NewStatic(list StaticList) *Static {
	s := &Static{green: make(map[string]string), notGreen: make(map[string]bool)}
	for _, e := range list.Green {
		s.green[normalizeDomain(e.Domain)] = e.HostedBy
	}
	for _, d := range list.NotGreen {
		s.notGreen[normalizeDomain(d)] = true
	}
	return s
}

// LoadStatic reads a StaticList from a YAML file.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read green host list: %w", err)
	}
	var list StaticList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse green host list %s: %w", path, err)
	}
	return NewStatic(list), nil
}

func (s *Static) Check(_ context.Context, domain string) (models.GreenHostSignal, error) {
	d := normalizeDomain(domain)
	for d != "" {
		if hostedBy, ok := s.green[d]; ok {
			return models.GreenHostSignal{Known: true, IsGreen: true, HostedBy: hostedBy}, nil
		}
		if s.notGreen[d] {
			return models.GreenHostSignal{Known: true}, nil
		}
		d = parent(d)
	}
	return models.UnknownHost(), nil
}

func parent(domain string) string {
	for i := 0; i < len(domain); i++ {
		if domain[i] == '.' {
			return domain[i+1:]
		}
	}
	return ""
}
