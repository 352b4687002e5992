package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/koustreak/dbkit/internal/condition"
	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/querybuilder"
)

// NewRenderCommand creates the render command.
func NewRenderCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <condition-json|->",
		Short: "Render a JSON condition into parameterized SQL",
		Long: `Render a condition tree written as JSON into a SQL fragment and its
bindings, using the placeholder and quoting rules of the configured driver.
No connection is opened. Pass - to read the condition from stdin.

Example:

  dbkit render --driver mysql '["AND", {"status": "active"}, [">", "age", 18]]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dialect, err := opts.dialect()
			if err != nil {
				return err
			}
			data, err := readArg(cmd, args[0])
			if err != nil {
				return err
			}
			cond, err := condition.DecodeJSON(data)
			if err != nil {
				return err
			}
			frag, err := querybuilder.New(dialect).Build(cond)
			if err != nil {
				return err
			}

			out := newOutput(opts, cmd)
			if out.isJSON() {
				return out.json(frag)
			}
			return printStatement(out, frag.SQL, frag.Args())
		},
	}
	return cmd
}

// dialect resolves the driver from flags and the config file without
// connecting.
func (o *RootOptions) dialect() (database.Dialect, error) {
	cfg, err := o.readConfig()
	if err != nil {
		return 0, err
	}
	return database.DialectFor(cfg.Database.Driver)
}

// readArg returns arg, or stdin when arg is "-".
func readArg(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	return io.ReadAll(cmd.InOrStdin())
}

func printStatement(out *output, sql string, args []any) error {
	if _, err := fmt.Fprintln(out.w, sql); err != nil {
		return err
	}
	for i, a := range args {
		if _, err := fmt.Fprintf(out.w, "  %d: %s\n", i+1, cell(a)); err != nil {
			return err
		}
	}
	return nil
}
