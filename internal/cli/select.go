package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koustreak/dbkit/internal/condition"
	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/querybuilder"
)

// SelectOptions holds the flags of the select command.
type SelectOptions struct {
	Columns []string
	Where   string
	OrderBy []string // "column" or "column:desc"
	Limit   int
	Offset  int
	DryRun  bool
}

// NewSelectCommand creates the select command.
func NewSelectCommand(opts *RootOptions) *cobra.Command {
	sel := &SelectOptions{}

	cmd := &cobra.Command{
		Use:   "select <table>",
		Short: "Run a SELECT built from a JSON condition",
		Long: `Build a SELECT over one table with a WHERE clause rendered from a JSON
condition, run it and print the rows. With --dry-run the statement is only
printed and no connection is opened.

Example:

  dbkit select users --columns id,email --where '{"status": "active"}' --order-by id:desc --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd, opts, sel, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&sel.Columns, "columns", nil, "columns to select (default *)")
	cmd.Flags().StringVarP(&sel.Where, "where", "w", "", "condition as JSON")
	cmd.Flags().StringSliceVar(&sel.OrderBy, "order-by", nil, "sort columns, column[:asc|:desc]")
	cmd.Flags().IntVar(&sel.Limit, "limit", 0, "maximum rows (0 for no limit)")
	cmd.Flags().IntVar(&sel.Offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&sel.DryRun, "dry-run", false, "print the statement without running it")
	return cmd
}

func runSelect(cmd *cobra.Command, opts *RootOptions, sel *SelectOptions, table string) error {
	out := newOutput(opts, cmd)

	if sel.DryRun {
		dialect, err := opts.dialect()
		if err != nil {
			return err
		}
		sql, args, err := sel.build(table, dialect)
		if err != nil {
			return err
		}
		if out.isJSON() {
			return out.json(map[string]any{"sql": sql, "args": args})
		}
		return printStatement(out, sql, args)
	}

	s, err := openSession(cmd.Context(), opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	sql, args, err := sel.build(s.schema.RawTableName(table), s.db.Dialect())
	if err != nil {
		return err
	}
	s.log.DebugWith("running select", map[string]any{"sql": sql, "args": len(args)})

	ctx := cmd.Context()
	if t := s.cfg.Database.QueryTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}
	result, err := database.ScanRows(rows)
	if err != nil {
		return err
	}

	if out.isJSON() {
		return out.json(result)
	}
	lines := make([][]string, len(result))
	for i, r := range result {
		line := make([]string, len(columns))
		for j, c := range columns {
			line[j] = cell(r[c])
		}
		lines[i] = line
	}
	return out.table(columns, lines)
}

func (sel *SelectOptions) build(table string, d database.Dialect) (string, []any, error) {
	where, err := condition.DecodeJSON([]byte(sel.Where))
	if err != nil {
		return "", nil, err
	}

	q := querybuilder.Select(table, d).Columns(sel.Columns...).Where(where)
	for _, o := range sel.OrderBy {
		col, dir, err := parseOrder(o)
		if err != nil {
			return "", nil, err
		}
		q.OrderBy(col, dir)
	}
	if sel.Limit > 0 {
		q.Limit(sel.Limit)
	}
	if sel.Offset > 0 {
		q.Offset(sel.Offset)
	}
	return q.Build()
}

func parseOrder(s string) (string, querybuilder.SortDirection, error) {
	col, dir, _ := strings.Cut(s, ":")
	switch strings.ToLower(dir) {
	case "", "asc":
		return col, querybuilder.Asc, nil
	case "desc":
		return col, querybuilder.Desc, nil
	}
	return "", querybuilder.Asc, errs.Newf(errs.ErrKindInvalidArgument, "invalid sort direction in %q", s)
}
