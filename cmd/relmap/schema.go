package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/relmap/relmap/internal/app"
)

func newDDLCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ddl",
		Short: "Print the CREATE TABLE statements of the unpartitioned entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				stmts, err := a.DDL()
				if err != nil {
					return err
				}
				for _, s := range stmts {
					fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", s)
				}
				return nil
			})
		},
	}
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and record partition templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Migrate(cmd.Context()); err != nil {
					return err
				}
				green := color.New(color.FgGreen, color.Bold)
				green.Fprintf(cmd.OutOrStdout(), "migrated %d entities (%d partitioned)\n",
					len(a.Schema().Registry.Ordered()), len(a.Schema().Partitions))
				return nil
			})
		},
	}
}
