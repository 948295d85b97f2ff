// Package normalize turns heterogeneous catalog payloads into canonical
// search results using declared field precedence tables.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/icdlens/icdlens/internal/core"
)

// Field precedence tables. The first key holding a non-empty string wins.
var (
	ListKeys        = []string{"results", "items", "data"}
	CodeKeys        = []string{"code", "icd", "icd10", "icd_code", "compact_code"}
	DescriptionKeys = []string{"description", "desc", "term", "label"}
	TotalKeys       = []string{"total", "count", "total_results"}
)

// ExtractCandidates locates the record list inside a decoded payload.
func ExtractCandidates(payload any) []any {
	switch value := payload.(type) {
	case []any:
		return value
	case map[string]any:
		for _, key := range ListKeys {
			if list, ok := value[key].([]any); ok {
				return list
			}
		}
		return []any{value}
	default:
		return []any{}
	}
}

// Normalize converts one raw record. It reports false when the record is
// not an object or carries no usable code.
func Normalize(candidate any) (core.SearchResult, bool) {
	record, ok := candidate.(map[string]any)
	if !ok {
		return core.SearchResult{}, false
	}

	code := firstString(record, CodeKeys)
	if code == "" {
		return core.SearchResult{}, false
	}

	description := firstString(record, DescriptionKeys)
	if description == "" {
		description = code
	}

	return core.SearchResult{Code: code, Description: description}, true
}

// Results extracts and normalizes every record of payload, dropping the
// invalid ones and keeping upstream order.
func Results(payload any) []core.SearchResult {
	candidates := ExtractCandidates(payload)
	results := make([]core.SearchResult, 0, len(candidates))
	for _, candidate := range candidates {
		if result, ok := Normalize(candidate); ok {
			results = append(results, result)
		}
	}
	return results
}

// Dedupe keeps the first occurrence of each code.
func Dedupe(results []core.SearchResult) []core.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]core.SearchResult, 0, len(results))
	for _, result := range results {
		if _, dup := seen[result.Code]; dup {
			continue
		}
		seen[result.Code] = struct{}{}
		out = append(out, result)
	}
	return out
}

// ExtractTotal reads the first positive total advertised by an object
// payload, or returns fallback.
func ExtractTotal(payload any, fallback int) int {
	record, ok := payload.(map[string]any)
	if !ok {
		return fallback
	}
	for _, key := range TotalKeys {
		if total := positiveInt(record[key]); total > 0 {
			return total
		}
	}
	return fallback
}

func firstString(record map[string]any, keys []string) string {
	for _, key := range keys {
		value, ok := record[key].(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func positiveInt(value any) int {
	switch v := value.(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return int(n)
		}
	}
	return 0
}
