// Package cli implements the dbkit command line.
package cli

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/koustreak/dbkit/internal/config"
	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
)

// RootOptions holds the global flags shared by every command.
type RootOptions struct {
	ConfigPath string
	Driver     string
	DSN        string
	LogLevel   string
	Format     string // "text" | "json"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the dbkit root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dbkit",
		Short: "Inspect database schemas and render SQL conditions",
		Long: `dbkit reads table metadata from PostgreSQL, MySQL and SQLite through a
cached schema layer, and renders condition trees into parameterized SQL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return errs.Newf(errs.ErrKindInvalidArgument,
					"invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "database driver (postgres|mysql|sqlite), overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "data source name, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSchemasCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewViewsCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewSelectCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// readConfig loads the config file, if any, and applies flag overrides.
func (o *RootOptions) readConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.Driver != "" {
		cfg.Database.Driver = database.Driver(o.Driver)
	}
	if o.DSN != "" {
		cfg.Database.DSN = o.DSN
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	return cfg, nil
}

// loadConfig is readConfig plus validation, for commands that connect.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := o.readConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
