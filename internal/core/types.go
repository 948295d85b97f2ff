package core

import "time"

// Endpoint identifies which catalog endpoint served a search.
type Endpoint string

const (
	EndpointPrimary Endpoint = "primary"
	EndpointProxy   Endpoint = "proxy"
)

// LookupMode controls which query parameter carries the search text.
type LookupMode string

const (
	// LookupFreeText sends the text as q=.
	LookupFreeText LookupMode = "q"
	// LookupCode sends the text as code=.
	LookupCode LookupMode = "code"
	// LookupDescription sends the text as description_normalized=.
	LookupDescription LookupMode = "description_normalized"
)

// SearchResult is a canonical ICD-10 catalog match.
type SearchResult struct {
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description" yaml:"description"`
}

// Provenance captures metadata about how a search was resolved.
type Provenance struct {
	AttemptID   string     `json:"attempt_id" yaml:"attempt_id"`
	RequestedAt time.Time  `json:"requested_at" yaml:"requested_at"`
	ResolvedAt  time.Time  `json:"resolved_at" yaml:"resolved_at"`
	Endpoint    Endpoint   `json:"endpoint" yaml:"endpoint"`
	Mode        LookupMode `json:"mode" yaml:"mode"`
	URL         string     `json:"url" yaml:"url"`
	ToolVersion string     `json:"tool_version,omitempty" yaml:"tool_version,omitempty"`
}

// SearchPage is the settled outcome of one query.
type SearchPage struct {
	Query      string         `json:"query" yaml:"query"`
	Results    []SearchResult `json:"results" yaml:"results"`
	Total      int            `json:"total" yaml:"total"`
	Limit      int            `json:"limit" yaml:"limit"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	Provenance *Provenance    `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// CanLoadMore reports whether the upstream advertised more matches than shown.
func (p *SearchPage) CanLoadMore() bool {
	if p == nil {
		return false
	}
	return p.Total > len(p.Results) && len(p.Results) >= p.Limit
}
