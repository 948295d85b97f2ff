// Package catalog builds ICD-10 catalog request URLs from an explicitly
// resolved base address.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultSearchPath is the upstream search endpoint relative to the base.
const DefaultSearchPath = "clinical/icd10/search"

// ErrUnconfigured reports that no catalog base URL was resolved.
var ErrUnconfigured = errors.New("catalog base URL is not configured")

// Params are query parameters; nil values are skipped.
type Params map[string]any

// Builder joins a normalized base with request paths. An empty base means
// the catalog is unconfigured.
type Builder struct {
	base string
}

// NewBuilder normalizes base and returns a builder for it.
func NewBuilder(base string) *Builder {
	return &Builder{base: NormalizeBase(base)}
}

// Base returns the normalized base, empty when unconfigured.
func (b *Builder) Base() string {
	if b == nil {
		return ""
	}
	return b.base
}

// Configured reports whether a usable base is present.
func (b *Builder) Configured() bool {
	return b.Base() != ""
}

// Build returns base/path?params. It reports false, without an error, when
// the catalog is unconfigured or the joined address is not a valid URL.
func (b *Builder) Build(path string, params Params) (string, bool) {
	base := b.Base()
	if base == "" {
		return "", false
	}

	return AppendParams(base+"/"+strings.TrimLeft(path, "/"), params)
}

// AppendParams sets params on an absolute address, keeping any query it
// already carries.
func AppendParams(rawURL string, params Params) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || rawURL == "" {
		return "", false
	}

	if len(params) > 0 {
		query := parsed.Query()
		for key, value := range params {
			if value == nil {
				continue
			}
			query.Set(key, fmt.Sprint(value))
		}
		parsed.RawQuery = query.Encode()
	}

	return parsed.String(), true
}

// NormalizeBase trims whitespace, then one trailing "." and then one
// trailing "/". The result may be empty.
func NormalizeBase(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimSuffix(value, ".")
	value = strings.TrimSuffix(value, "/")
	return value
}
