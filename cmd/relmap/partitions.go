package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/relmap/relmap/internal/app"
	"github.com/relmap/relmap/internal/table"
)

func newPartitionsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "partitions ENTITY",
		Short: "List the partitions created for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				svc, err := a.Service(cmd.Context())
				if err != nil {
					return err
				}
				parts, err := svc.Partitions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tKEY\tCREATED")
				for _, p := range parts {
					fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Key, p.CreatedAt.UTC().Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export ENTITY [PARTITION...]",
		Short: "Archive partitions (all by default) to the configured storage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entity, names := args[0], args[1:]
			return opts.withApp(ctx, func(a *app.App) error {
				svc, err := a.Service(ctx)
				if err != nil {
					return err
				}
				if len(names) == 0 {
					if _, ok := svc.Router(entity); !ok {
						names = []string{entity}
					} else {
						parts, err := svc.Partitions(ctx, entity)
						if err != nil {
							return err
						}
						for _, p := range parts {
							names = append(names, p.Name)
						}
					}
				}
				exp, err := a.Exporter(ctx)
				if err != nil {
					return err
				}

				green := color.New(color.FgGreen)
				for _, name := range names {
					var t *table.Table
					if t, err = a.Partition(ctx, entity, name); err != nil {
						return err
					}
					archive, err := exp.Export(ctx, t)
					if err != nil {
						return err
					}
					green.Fprintf(cmd.OutOrStdout(), "%s\t%d rows\t%s\n", archive.Table, archive.Rows, archive.Path)
				}
				return nil
			})
		},
	}
}

func newRestoreCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore ENTITY [OBJECT...]",
		Short: "Insert archived rows (all archives of the entity by default) back through the entity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entity, paths := args[0], args[1:]
			return opts.withApp(ctx, func(a *app.App) error {
				svc, err := a.Service(ctx)
				if err != nil {
					return err
				}
				rel, err := svc.Relation(entity)
				if err != nil {
					return err
				}
				exp, err := a.Exporter(ctx)
				if err != nil {
					return err
				}
				if len(paths) == 0 {
					if paths, err = exp.Archives(ctx, entity); err != nil {
						return err
					}
				}
				if len(paths) == 0 {
					color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "no archives for %s\n", entity)
					return nil
				}
				for _, p := range paths {
					n, err := exp.Restore(ctx, p, rel)
					if err != nil {
						return err
					}
					color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "%s\t%d rows\n", p, n)
				}
				return nil
			})
		},
	}
}
