package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/icdlens/icdlens/internal/config"
	"github.com/icdlens/icdlens/internal/core/catalog"
	errwrap "github.com/icdlens/icdlens/internal/errors"
	"github.com/icdlens/icdlens/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the binary can start: version metadata, logger, configuration and catalog settings.",
	Run: func(cmd *cobra.Command, args []string) {
		if observability.CLILogger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		log := observability.CLILogger
		log.Info("Running health check...")

		if versionInfo.Version == "" {
			log.Error("❌ FAIL: Version information missing")
			ExitWithCode(log, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		log.Info("✅ Version information available", zap.String("version", versionInfo.Version))
		log.Info("✅ Logger initialized")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Error("❌ FAIL: Configuration invalid")
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		log.Info("✅ Configuration loaded")

		if !catalog.NewBuilder(cfg.Catalog.BaseURL).Configured() {
			log.Warn("⚠️  Catalog base URL not configured; searches will fail until it is set")
		} else {
			log.Info("✅ Catalog base URL configured", zap.String("base_url", cfg.Catalog.BaseURL))
		}

		log.Info("")
		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
