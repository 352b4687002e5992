package cli

import (
	"github.com/spf13/cobra"
)

// NewSchemasCommand creates the schemas command.
func NewSchemasCommand(opts *RootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "List the schemas of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			names, err := s.schema.SchemaNames(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			return newOutput(opts, cmd).names(names)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the schema cache")
	return cmd
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(opts *RootOptions) *cobra.Command {
	return newNamesCommand(opts, "tables", "List the tables of a schema", false)
}

// NewViewsCommand creates the views command.
func NewViewsCommand(opts *RootOptions) *cobra.Command {
	return newNamesCommand(opts, "views", "List the views of a schema", true)
}

func newNamesCommand(opts *RootOptions, use, short string, views bool) *cobra.Command {
	var schemaName string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			find := s.schema.TableNames
			if views {
				find = s.schema.ViewNames
			}
			names, err := find(cmd.Context(), schemaName, false)
			if err != nil {
				return err
			}
			return newOutput(opts, cmd).names(names)
		},
	}
	cmd.Flags().StringVarP(&schemaName, "schema", "s", "", "schema to list (default schema when empty)")
	return cmd
}
