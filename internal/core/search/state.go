package search

import "github.com/icdlens/icdlens/internal/core"

// Phase is the orchestrator's position in the query lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseDebouncing Phase = "debouncing"
	PhaseInFlight   Phase = "in_flight"
	PhaseSettled    Phase = "settled"
)

// State is the snapshot published to consumers. Error holds a user-facing
// message and is empty on success or cancellation.
type State struct {
	Query      string
	Results    []core.SearchResult
	Loading    bool
	Error      string
	Total      int
	Limit      int
	Phase      Phase
	Provenance *core.Provenance
}

// CanLoadMore reports whether LoadMore would reveal additional matches.
func (s State) CanLoadMore() bool {
	return s.Page().CanLoadMore()
}

// Page converts the state into a search page for rendering.
func (s State) Page() *core.SearchPage {
	return &core.SearchPage{
		Query:      s.Query,
		Results:    s.Results,
		Total:      s.Total,
		Limit:      s.Limit,
		Error:      s.Error,
		Provenance: s.Provenance,
	}
}

func (s State) clone() State {
	if s.Results != nil {
		s.Results = append([]core.SearchResult(nil), s.Results...)
	}
	return s
}
