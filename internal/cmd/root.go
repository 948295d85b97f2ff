package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/icdlens/icdlens/internal/appid"
	"github.com/icdlens/icdlens/internal/config"
	"github.com/icdlens/icdlens/internal/observability"
)

var (
	cfgFile  string
	verbose  bool
	logLevel string

	appIdentity *appidentity.Identity

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main with values injected at link time.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity loaded by initConfig.
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

var rootCmd = &cobra.Command{
	// initConfig overwrites these from the app identity.
	Use:   filepath.Base(os.Args[0]),
	Short: "ICD-10 (CIE-10) catalog search client",
	Long: `Search the ICD-10 (CIE-10) catalog from the terminal.

The catalog base URL comes from catalog.base_url, ICDLENS_CATALOG_BASE_URL,
or the NEXT_PUBLIC_API_BASE_URL / VITE_API_BASE_URL / NEXT_PUBLIC_API_URL
variables shared with the web client.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once by main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// One-shot commands never start an exporter; keep telemetry quiet until
	// serve installs the real system.
	observability.DisableTelemetry()

	if identity, err := appid.Get(context.Background()); err == nil && identity != nil {
		appIdentity = identity
		applyIdentity(identity)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/icdlens/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func applyIdentity(identity *appidentity.Identity) {
	if identity.BinaryName != "" {
		rootCmd.Use = identity.BinaryName
	}
	if identity.Description != "" {
		rootCmd.Short = identity.Description
	}
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}
}

func initConfig() {
	identity, err := appid.Get(context.Background())
	if err != nil {
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Failed to load app identity", err)
	}
	appIdentity = identity
	applyIdentity(identity)

	level := logLevel
	if level == "" {
		level = os.Getenv(appid.EnvPrefix(context.Background()) + "LOG_LEVEL")
	}
	observability.InitCLILogger(identity.BinaryName, level, verbose)

	config.SetConfigFile(cfgFile)
}

// loadConfig loads layered config with optional flag overrides and exits
// with ExitConfigInvalid when it cannot.
func loadConfig(ctx context.Context, overrides ...map[string]any) *config.Config {
	cfg, err := config.Load(ctx, overrides...)
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to load configuration", err)
	}
	return cfg
}
