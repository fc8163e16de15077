// Package mapreduce aggregates transfer sizes across the pages of a batch.
package mapreduce

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// Map returns the bytes transferred per host for a single snapshot.
// Failed requests carry zero bytes and are skipped.
func Map(snap models.PageSnapshot) map[string]int64 {
	counts := make(map[string]int64)
	for _, r := range snap.Resources {
		if r.Failed || r.Bytes == 0 {
			continue
		}
		u, err := url.Parse(r.URL)
		if err != nil || u.Hostname() == "" {
			continue
		}
		counts[strings.ToLower(u.Hostname())] += r.Bytes
	}
	return counts
}

// Reduce aggregates a slice of per-host maps into a single map.
func Reduce(intermediate []map[string]int64) map[string]int64 {
	finalResults := make(map[string]int64)

	for _, counts := range intermediate {
		for host, n := range counts {
			finalResults[host] += n
		}
	}

	return finalResults
}

// HostBytes is one row of a TopHosts ranking.
type HostBytes struct {
	Host  string `json:"host" yaml:"host"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
}

func (h HostBytes) String() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Bytes)
}

// TopHosts returns the n heaviest hosts, ties broken by name.
func TopHosts(counts map[string]int64, n int) []HostBytes {
	ss := make([]HostBytes, 0, len(counts))
	for k, v := range counts {
		ss = append(ss, HostBytes{k, v})
	}

	sort.Slice(ss, func(i, j int) bool {
		if ss[i].Bytes != ss[j].Bytes {
			return ss[i].Bytes > ss[j].Bytes
		}
		return ss[i].Host < ss[j].Host
	})

	if n >= 0 && len(ss) > n {
		ss = ss[:n]
	}
	return ss
}
