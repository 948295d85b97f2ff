package cmd

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/icdlens/icdlens/internal/core/search"
	"github.com/icdlens/icdlens/internal/observability"
	"github.com/icdlens/icdlens/internal/output"
)

// loadMoreCommands are input lines that page the current query instead of
// replacing it.
var loadMoreCommands = map[string]bool{"+": true, ":more": true}

var watchFormat string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Search interactively, one query per line",
	Long: `Read queries from standard input, one per line, and print each settled
result. Lines are debounced the same way keystrokes are in the web client,
so a burst of lines only searches the last one. Enter "+" to load more
results for the current query.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, err := output.ParseFormat(watchFormat)
		if err != nil {
			return err
		}

		cfg := loadConfig(ctx)
		p := newPipeline(ctx, cfg, observability.CLILogger)
		defer p.Close() //nolint:errcheck

		o, err := search.New(p.Searcher, search.WithLogger(observability.CLILogger))
		if err != nil {
			return err
		}
		defer o.Close()

		return runWatch(ctx, o, cmd.InOrStdin(), cmd.OutOrStdout(), format)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", "table", "output format: table, json, markdown, yaml")
}

// runWatch feeds lines from in to o and renders every settled state with a
// non-empty query. It returns once input ends and the last query settles.
func runWatch(ctx context.Context, o *search.Orchestrator, in io.Reader, out io.Writer, format output.Format) error {
	settled := make(chan search.State, 16)
	unsubscribe := o.Subscribe(func(s search.State) {
		if s.Phase != search.PhaseSettled {
			return
		}
		select {
		case settled <- s:
		default:
			// renderer is behind; the next settled state supersedes this one
		}
	})
	defer unsubscribe()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		current  string
		awaiting bool
		inputEOF bool
	)
	for {
		if inputEOF && !awaiting {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				inputEOF = true
				lines = nil
				continue
			}
			if loadMoreCommands[strings.TrimSpace(line)] {
				if current != "" && o.Snapshot().CanLoadMore() {
					o.LoadMore()
					awaiting = true
				}
				continue
			}
			current = strings.TrimSpace(line)
			o.SetQuery(line)
			awaiting = true

		case s := <-settled:
			if strings.TrimSpace(s.Query) == current {
				awaiting = false
			}
			if strings.TrimSpace(s.Query) == "" {
				continue
			}
			if err := render(out, format, s.Page()); err != nil {
				observability.CLILogger.Warn("Failed to render result", zap.Error(err))
			}
		}
	}
}
