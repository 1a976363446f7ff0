package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/nrtindex/internal/output"
)

type searchOptions struct {
	entities     bool
	jsonOutput   bool
	atGeneration uint64
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search the index and print matching ids, best match first (or by
insertion time when search.sort_by_insertion is set).

The query is interpreted according to search.query_type.

Examples:
  nrtindex search "+red +truck"
  nrtindex search "fire truck" --entities
  nrtindex search truck --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, a, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.entities, "entities", "e", false, "Print the entity text next to each id")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().Uint64Var(&opts.atGeneration, "at-generation", 0, "Wait for this generation before searching")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, a *app, text string, opts searchOptions) error {
	s, err := openSession(ctx, a.cfg, a.metrics, a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	start := time.Now()
	hits, err := s.Search(ctx, text, opts.entities, opts.atGeneration)
	if err != nil {
		return err
	}
	a.logger.Info("search_complete",
		slog.String("query", text),
		slog.Int("results", len(hits)),
		slog.Duration("duration", time.Since(start)))

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(hits) == 0 {
		output.New(cmd.ErrOrStderr()).Warningf("no results for %q", text)
		return nil
	}

	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		if opts.entities {
			lines = append(lines, h.ID+"\t"+h.Text)
		} else {
			lines = append(lines, h.ID)
		}
	}
	output.New(cmd.OutOrStdout()).Lines(lines)
	return nil
}
