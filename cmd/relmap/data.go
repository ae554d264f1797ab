package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/relmap/relmap/internal/api"
	"github.com/relmap/relmap/internal/app"
	"github.com/relmap/relmap/internal/query/ast"
	"github.com/relmap/relmap/internal/table"
)

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var (
		req   api.QueryRequest
		count bool
	)
	cmd := &cobra.Command{
		Use:   "query ENTITY",
		Short: "Print the objects of an entity as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Entity = args[0]
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				svc, err := a.Service(cmd.Context())
				if err != nil {
					return err
				}
				if count {
					n, err := svc.Count(cmd.Context(), req)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), n)
					return nil
				}
				resp, err := svc.Query(cmd.Context(), req)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, obj := range resp.Objects {
					if err := enc.Encode(obj); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&req.Where, "where", "w", "", "condition, e.g. \"day IN ('20120101') AND count > 1\"")
	f.StringSliceVarP(&req.Joins, "join", "j", nil, "association path joined to restrict the result")
	f.StringSliceVarP(&req.Project, "project", "p", nil, "association path returned nested in each object")
	f.StringVarP(&req.OrderBy, "order-by", "o", "", "ordering, e.g. \"count DESC, day\"")
	f.Int64Var(&req.Limit, "limit", 0, "maximum number of objects")
	f.Int64Var(&req.Offset, "offset", 0, "number of objects skipped")
	f.BoolVar(&count, "count", false, "print the number of matching objects only")
	return cmd
}

func newInsertCmd(opts *globalOptions) *cobra.Command {
	var (
		upsert []string
		with   string
	)
	cmd := &cobra.Command{
		Use:   "insert ENTITY [JSON]",
		Short: "Insert, or upsert with --upsert, one object read from the argument or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if len(args) == 2 {
				src = strings.NewReader(args[1])
			}
			attrs, err := decodeObject(src)
			if err != nil {
				return err
			}
			req := api.WriteRequest{Entity: args[0], Attributes: attrs}
			if len(upsert) > 0 {
				req.Upsert = &table.UpsertOptions{Values: upsert, With: ast.UpsertStrategy(with)}
			}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				svc, err := a.Service(cmd.Context())
				if err != nil {
					return err
				}
				resp, err := svc.Write(cmd.Context(), req)
				if err != nil {
					return err
				}
				verb := "inserted"
				if req.Upsert != nil {
					verb = "upserted"
				}
				color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "%s %s\n", verb, req.Entity)
				return json.NewEncoder(cmd.OutOrStdout()).Encode(resp.Object)
			})
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&upsert, "upsert", nil, "attributes updated when the primary key exists")
	f.StringVar(&with, "with", string(table.Replace), "upsert strategy: replace or increment")
	return cmd
}

// decodeObject reads one JSON object keeping numbers exact.
func decodeObject(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("invalid object: %w", err)
	}
	return attrs, nil
}
