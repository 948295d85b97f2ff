// Package appid resolves the icdlens application identity, falling back to
// the identity embedded in the binary when no .fulmen/app.yaml is found.
package appid

import (
	"context"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/icdlens/icdlens/internal/assets/appidentity"
)

const (
	fallbackBinary    = "icdlens"
	fallbackEnvPrefix = "ICDLENS_"
)

func init() {
	// Explicit overrides (FULMEN_APP_IDENTITY_PATH) still win over the
	// embedded copy.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// BinaryName returns the identity binary name, or "icdlens" when the
// identity cannot be loaded.
func BinaryName(ctx context.Context) string {
	if identity, err := Get(ctx); err == nil && identity != nil && identity.BinaryName != "" {
		return identity.BinaryName
	}
	return fallbackBinary
}

// EnvPrefix returns the environment variable prefix, always ending in "_".
func EnvPrefix(ctx context.Context) string {
	prefix := fallbackEnvPrefix
	if identity, err := Get(ctx); err == nil && identity != nil && identity.EnvPrefix != "" {
		prefix = identity.EnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// UserAgent is the User-Agent sent on catalog requests.
func UserAgent(ctx context.Context, version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("%s/%s", BinaryName(ctx), version)
}
