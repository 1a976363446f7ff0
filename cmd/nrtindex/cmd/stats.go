package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/nrtindex/internal/output"
)

func newStatsCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long:  `Show the document count, generations, writer and searcher state, and rebuild progress.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, a.cfg, a.metrics, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			st := s.Stats(ctx)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			output.New(cmd.OutOrStdout()).Table([]output.KV{
				{Key: "path", Value: st.Path},
				{Key: "strategy", Value: st.Strategy},
				{Key: "documents", Value: st.Documents},
				{Key: "generation issued", Value: st.Issued},
				{Key: "generation committed", Value: st.Committed},
				{Key: "generation searching", Value: st.Searching},
				{Key: "rebuild status", Value: st.Rebuild.Status},
				{Key: "rebuild runs", Value: st.Rebuild.Runs},
				{Key: "recovery breaker", Value: st.RecoveryBreaker},
			})
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
