package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/icdlens/icdlens/internal/core"
	"github.com/icdlens/icdlens/internal/core/catalog"
	"github.com/icdlens/icdlens/internal/core/fetch"
	"github.com/icdlens/icdlens/internal/core/search"
	"github.com/icdlens/icdlens/internal/metrics"
	"github.com/icdlens/icdlens/internal/observability"
	"github.com/icdlens/icdlens/internal/output"
)

var (
	searchLimit      int
	searchStructured bool
	searchFormat     string
	searchNoCache    bool
	searchBaseURL    string
	searchProxyURL   string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the ICD-10 catalog once",
	Long: `Search the ICD-10 (CIE-10) catalog by code or description.

Queries shorter than two characters are not sent. When the catalog is
unreachable the configured proxy (catalog.proxy_url) is tried once.`,
	Example: `  icdlens search diabetes
  icdlens search E11 --structured
  icdlens search "insuficiencia cardiaca" --limit 40 --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, err := output.ParseFormat(searchFormat)
		if err != nil {
			return err
		}

		cfg := loadConfig(ctx, searchOverrides(cmd))
		p := newPipeline(ctx, cfg, observability.CLILogger)
		defer p.Close() //nolint:errcheck

		query := strings.Join(args, " ")
		page, searchErr := runSearch(ctx, p.Searcher, query, searchLimit)

		if err := render(cmd.OutOrStdout(), format, page); err != nil {
			return err
		}
		if searchErr != nil {
			ExitWithCode(observability.CLILogger, exitCodeFor(searchErr), page.Error, searchErr)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum results (default search.limit)")
	searchCmd.Flags().BoolVar(&searchStructured, "structured", false, "send code-like queries as code= and others as description_normalized=")
	searchCmd.Flags().StringVarP(&searchFormat, "format", "f", "table", "output format: table, json, markdown, yaml")
	searchCmd.Flags().BoolVar(&searchNoCache, "no-cache", false, "bypass the local response cache")
	searchCmd.Flags().StringVar(&searchBaseURL, "base-url", "", "catalog base URL (overrides catalog.base_url)")
	searchCmd.Flags().StringVar(&searchProxyURL, "proxy-url", "", "fallback proxy URL (overrides catalog.proxy_url)")
}

// searchOverrides turns explicitly set flags into config overrides.
func searchOverrides(cmd *cobra.Command) map[string]any {
	catalogOverrides := map[string]any{}
	if cmd.Flags().Changed("base-url") {
		catalogOverrides["base_url"] = searchBaseURL
	}
	if cmd.Flags().Changed("proxy-url") {
		catalogOverrides["proxy_url"] = searchProxyURL
	}

	overrides := map[string]any{}
	if len(catalogOverrides) > 0 {
		overrides["catalog"] = catalogOverrides
	}
	if cmd.Flags().Changed("structured") {
		overrides["search"] = map[string]any{"structured": searchStructured}
	}
	if searchNoCache {
		overrides["cache"] = map[string]any{"enabled": false}
	}
	return overrides
}

// runSearch performs one lookup and always returns a page to render; on
// failure the page carries the display message and err is non-nil.
func runSearch(ctx context.Context, s *search.Searcher, query string, limit int) (*core.SearchPage, error) {
	query = strings.TrimSpace(query)
	minLen := s.Config.MinQueryLength
	if minLen <= 0 {
		minLen = search.DefaultMinQueryLength
	}
	if len([]rune(query)) < minLen {
		err := fmt.Errorf("query must be at least %d characters", minLen)
		return &core.SearchPage{Query: query, Limit: limit, Error: err.Error()}, err
	}

	start := time.Now()
	page, err := s.Search(ctx, query, limit)
	if err != nil {
		metrics.RecordSearch("none", "", outcomeLabel(err), 0, time.Since(start))
		if observability.CLILogger != nil {
			observability.CLILogger.Debug("Search failed", zap.String("query", query), zap.Error(err))
		}
		if limit <= 0 {
			limit = s.Config.Limit
		}
		message := search.Message(err)
		if message == "" {
			message = fetch.MsgGeneric
		}
		return &core.SearchPage{Query: query, Limit: limit, Error: message}, err
	}

	mode, endpoint := "", ""
	if page.Provenance != nil {
		mode, endpoint = string(page.Provenance.Mode), string(page.Provenance.Endpoint)
	}
	metrics.RecordSearch(endpoint, mode, "ok", len(page.Results), time.Since(start))
	return page, nil
}

func render(w io.Writer, format output.Format, page *core.SearchPage) error {
	rendered, err := output.NewFormatter(format).FormatPage(page)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

func outcomeLabel(err error) string {
	var apiErr *fetch.APIError
	switch {
	case err == nil:
		return "ok"
	case stderrors.Is(err, catalog.ErrUnconfigured):
		return "unconfigured"
	case fetch.IsCanceled(err):
		return "canceled"
	case stderrors.As(err, &apiErr):
		return strings.ToLower(string(apiErr.Code))
	default:
		return "error"
	}
}

func exitCodeFor(err error) foundry.ExitCode {
	switch outcomeLabel(err) {
	case "unconfigured":
		return foundry.ExitConfigInvalid
	case "network", "timeout", "http":
		return foundry.ExitExternalServiceUnavailable
	default:
		return foundry.ExitFailure
	}
}
