package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/nrtindex/internal/output"
)

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <text>",
		Short: "Store an entity and index it",
		Long: `Insert or replace a row of the entity table and index its text.
Prints the generation of the write, usable with search --at-generation.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, a.cfg, a.metrics, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			gen, err := s.Add(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("indexed %s (generation %d)", args[0], gen)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an entity and remove it from the index",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, a.cfg, a.metrics, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			gen, err := s.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("deleted %s (generation %d)", args[0], gen)
			return nil
		},
	}
}
