package catalog

import (
	"regexp"
	"strings"

	"github.com/icdlens/icdlens/internal/core"
)

var (
	codeQueryPattern = regexp.MustCompile(`(?i)^[A-Z]\d{1,2}(?:\.\d{0,4})?$`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// CompactCode strips all whitespace from a query.
func CompactCode(query string) string {
	return whitespace.ReplaceAllString(query, "")
}

// IsCodeLike reports whether query looks like an ICD-10 code such as
// "J45", "e11.9" or "Z79. 899".
func IsCodeLike(query string) bool {
	return codeQueryPattern.MatchString(CompactCode(query))
}

// SearchParams builds the query parameters for one lookup. Structured
// lookups send code-like text as code= and anything else as
// description_normalized=.
func SearchParams(query string, limit int, structured bool) (Params, core.LookupMode) {
	text := strings.TrimSpace(query)
	params := Params{}
	if limit > 0 {
		params["limit"] = limit
	}

	switch {
	case !structured:
		params[string(core.LookupFreeText)] = text
		return params, core.LookupFreeText
	case IsCodeLike(text):
		params[string(core.LookupCode)] = CompactCode(text)
		return params, core.LookupCode
	default:
		params[string(core.LookupDescription)] = text
		return params, core.LookupDescription
	}
}
