package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/nrtindex/internal/output"
)

func newIDsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ids",
		Short: "List every indexed id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, a.cfg, a.metrics, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			ids, err := s.IDs(ctx)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Lines(ids)
			return nil
		},
	}
}
