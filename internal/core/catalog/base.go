package catalog

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// LegacyEnv holds the base URL variables understood by earlier web clients
// of the catalog, in precedence order.
type LegacyEnv struct {
	APIBaseURL     string `envconfig:"NEXT_PUBLIC_API_BASE_URL"`
	ViteAPIBaseURL string `envconfig:"VITE_API_BASE_URL"`
	APIURL         string `envconfig:"NEXT_PUBLIC_API_URL"`
}

// LoadLegacyEnv reads the legacy base URL variables from the environment.
func LoadLegacyEnv() (LegacyEnv, error) {
	var env LegacyEnv
	if err := envconfig.Process("", &env); err != nil {
		return LegacyEnv{}, err
	}
	return env, nil
}

// Candidates returns the legacy values in precedence order.
func (e LegacyEnv) Candidates() []string {
	return []string{e.APIBaseURL, e.ViteAPIBaseURL, e.APIURL}
}

// ResolveBase returns the first candidate that is non-empty after trimming,
// normalized. It reports false when no candidate yields a usable base.
func ResolveBase(candidates ...string) (string, bool) {
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		base := NormalizeBase(candidate)
		return base, base != ""
	}
	return "", false
}
