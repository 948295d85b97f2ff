package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/icdlens/icdlens/internal/config"
	"github.com/icdlens/icdlens/internal/core/store"
	"github.com/icdlens/icdlens/internal/observability"
)

// openStore opens the configured database and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and maintain the search cache",
}

var storeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show search cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, cfg *config.Config, db *store.Store) error {
			stats, err := db.CacheStats(ctx)
			if err != nil {
				return err
			}
			writeCacheStats(cmd.OutOrStdout(), describeStore(cfg.Store), stats)
			return nil
		})
	},
}

var storePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, cfg *config.Config, db *store.Store) error {
			n, err := db.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			observability.CLILogger.Info("Expired cache entries removed", zap.Int64("removed", n))
			return nil
		})
	},
}

var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, cfg *config.Config, db *store.Store) error {
			n, err := db.ClearCache(ctx)
			if err != nil {
				return err
			}
			observability.CLILogger.Info("Cache cleared", zap.Int64("removed", n))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storePurgeCmd)
	storeCmd.AddCommand(storeClearCmd)
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, db *store.Store) error) error {
	ctx := cmd.Context()
	cfg := loadConfig(ctx)
	db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close() //nolint:errcheck
	return fn(ctx, cfg, db)
}

func writeCacheStats(w io.Writer, location string, stats store.CacheStats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Search cache")
	t.AppendRows([]table.Row{
		{"Database", location},
		{"Entries", stats.Entries},
		{"Expired", stats.Expired},
		{"Hits", stats.Hits},
		{"Oldest", formatTimeAgoPtr(stats.Oldest)},
		{"Newest", formatTimeAgoPtr(stats.Newest)},
	})
	t.Render()
}
