package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/relmap/relmap/internal/app"
	"github.com/relmap/relmap/internal/config"
)

// globalOptions are the flags shared by every command. Set flags override
// the configuration file and the RELMAP_ environment.
type globalOptions struct {
	configFile string
	schemaFile string
	dataDir    string
	driver     string
	dsn        string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "relmap",
		Short: "Map entities, associations and partitions onto relational tables",
		Long: `relmap maps a declared schema onto SQLite or Postgres tables.

Examples:

  relmap ddl --schema schema.yaml
  relmap migrate --schema schema.yaml
  relmap insert hit '{"day":"20120101","thing":"a","count":1}'
  relmap query hit --where "day IN ('20120101')" --order-by "count DESC"
  relmap serve --config relmap.yaml
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVarP(&opts.configFile, "config", "c", "", "configuration file (YAML or JSON)")
	f.StringVarP(&opts.schemaFile, "schema", "s", "", "schema file (YAML or JSON)")
	f.StringVar(&opts.dataDir, "data-dir", "", "base directory for local files")
	f.StringVar(&opts.driver, "driver", "", "database driver: sqlite or postgres")
	f.StringVar(&opts.dsn, "dsn", "", "SQLite path or Postgres connection string")

	root.AddCommand(
		newDDLCmd(opts),
		newMigrateCmd(opts),
		newQueryCmd(opts),
		newInsertCmd(opts),
		newPartitionsCmd(opts),
		newExportCmd(opts),
		newRestoreCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *globalOptions) load() (*config.Config, error) {
	return config.Load(o.configFile, func(c *config.Config) {
		if o.schemaFile != "" {
			c.SchemaFile = o.schemaFile
		}
		if o.dataDir != "" {
			c.DataDir = o.dataDir
		}
		if o.driver != "" {
			c.Database.Driver = o.driver
		}
		if o.dsn != "" {
			c.Database.DSN = o.dsn
		}
	})
}

// withApp opens the app, runs fn and closes the app.
func (o *globalOptions) withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
