package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/nrtindex/internal/async"
	"github.com/Aman-CERP/nrtindex/internal/output"
)

const progressInterval = 250 * time.Millisecond

func newRebuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Recreate the index from the entity table",
		Long: `Recreate the index from every row of the configured entity table.
Documents indexed for rows that no longer exist are dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRebuild(cmd.Context(), cmd, a)
		},
	}
}

func runRebuild(ctx context.Context, cmd *cobra.Command, a *app) error {
	s, err := openSession(ctx, a.cfg, a.metrics, a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	out := output.New(cmd.OutOrStdout())
	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- s.Rebuild(ctx) }()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				out.Errorf("rebuild failed after %s", time.Since(start).Round(time.Millisecond))
				return err
			}
			st := s.Stats(ctx)
			out.Successf("rebuilt index with %d documents in %s",
				st.Documents, time.Since(start).Round(time.Millisecond))
			return nil
		case <-ticker.C:
			p := s.Stats(ctx).Rebuild
			if p.Stage == string(async.StageIndexing) {
				out.Progress(p.Done, p.Total, "indexing")
			}
		}
	}
}
