package models

import "time"

// ResourceType is a normalized bucket for network transfers.
type ResourceType string

const (
	ResourceHTML  ResourceType = "html"
	ResourceCSS   ResourceType = "css"
	ResourceJS    ResourceType = "js"
	ResourceImage ResourceType = "image"
	ResourceFont  ResourceType = "font"
	ResourceMedia ResourceType = "media"
	ResourceOther ResourceType = "other"
)

// ResourceTypes lists every bucket in a fixed order.
var ResourceTypes = []ResourceType{
	ResourceHTML, ResourceCSS, ResourceJS, ResourceImage, ResourceFont, ResourceMedia, ResourceOther,
}

// GreenHostSignal is a tri-state: unknown (Known=false), green, or not green.
type GreenHostSignal struct {
	Known    bool   `json:"known" yaml:"known"`
	IsGreen  bool   `json:"is_green" yaml:"is_green"`
	HostedBy string `json:"hosted_by,omitempty" yaml:"hosted_by,omitempty"`
}

// UnknownHost is the signal used when no directory has an answer.
func UnknownHost() GreenHostSignal {
	return GreenHostSignal{}
}

// String returns "green", "not-green" or "unknown".
func (g GreenHostSignal) String() string {
	switch {
	case !g.Known:
		return "unknown"
	case g.IsGreen:
		return "green"
	default:
		return "not-green"
	}
}

// ResourceSummary describes one network exchange of the capture.
type ResourceSummary struct {
	URL        string       `json:"url" yaml:"url"`
	Type       ResourceType `json:"type" yaml:"type"`
	Status     int          `json:"status" yaml:"status"`
	Bytes      int64        `json:"bytes" yaml:"bytes"`
	Failed     bool         `json:"failed,omitempty" yaml:"failed,omitempty"`
	ThirdParty bool         `json:"third_party,omitempty" yaml:"third_party,omitempty"`
}

// PageSnapshot is the normalized measurement record of one capture.
// Snapshots are produced once per capture and never mutated afterwards.
type PageSnapshot struct {
	URL      string `json:"url" yaml:"url"`
	FinalURL string `json:"final_url,omitempty" yaml:"final_url,omitempty"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`

	TotalBytes         int64                  `json:"total_bytes" yaml:"total_bytes"`
	BytesByType        map[ResourceType]int64 `json:"bytes_by_type" yaml:"bytes_by_type"`
	RequestCount       int                    `json:"request_count" yaml:"request_count"`
	RequestCountByType map[ResourceType]int   `json:"request_count_by_type" yaml:"request_count_by_type"`

	FailedRequestCount     int `json:"failed_request_count" yaml:"failed_request_count"`
	ThirdPartyRequestCount int `json:"third_party_request_count" yaml:"third_party_request_count"`

	DOMNodeCount           int   `json:"dom_node_count" yaml:"dom_node_count"`
	LoadTimeMs             int64 `json:"load_time_ms" yaml:"load_time_ms"`
	FirstContentfulPaintMs int64 `json:"first_contentful_paint_ms,omitempty" yaml:"first_contentful_paint_ms,omitempty"`

	GreenHost GreenHostSignal `json:"green_host" yaml:"green_host"`

	Resources        []ResourceSummary `json:"resources,omitempty" yaml:"resources,omitempty"`
	UnusedImages     []string          `json:"unused_images,omitempty" yaml:"unused_images,omitempty"`
	UnusedImageBytes int64             `json:"unused_image_bytes,omitempty" yaml:"unused_image_bytes,omitempty"`
	UnusedCode       []string          `json:"unused_code,omitempty" yaml:"unused_code,omitempty"`
	UnusedCodeBytes  int64             `json:"unused_code_bytes,omitempty" yaml:"unused_code_bytes,omitempty"`

	CapturedAt time.Time `json:"captured_at" yaml:"captured_at"`
}

// Bytes returns the transfer size of one bucket.
func (s PageSnapshot) Bytes(t ResourceType) int64 {
	return s.BytesByType[t]
}

// Requests returns the request count of one bucket.
func (s PageSnapshot) Requests(t ResourceType) int {
	return s.RequestCountByType[t]
}

// Empty reports whether nothing was transferred, typically a blocked navigation.
func (s PageSnapshot) Empty() bool {
	return s.TotalBytes == 0 || s.RequestCount == 0
}

// Clone returns a deep copy.
func (s PageSnapshot) Clone() PageSnapshot {
	c := s
	if s.BytesByType != nil {
		c.BytesByType = make(map[ResourceType]int64, len(s.BytesByType))
		for k, v := range s.BytesByType {
			c.BytesByType[k] = v
		}
	}
	if s.RequestCountByType != nil {
		c.RequestCountByType = make(map[ResourceType]int, len(s.RequestCountByType))
		for k, v := range s.RequestCountByType {
			c.RequestCountByType[k] = v
		}
	}
	c.Resources = append([]ResourceSummary(nil), s.Resources...)
	c.UnusedImages = append([]string(nil), s.UnusedImages...)
	c.UnusedCode = append([]string(nil), s.UnusedCode...)
	return c
}
