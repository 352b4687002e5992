package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/schema"
)

// MetadataKinds are the values accepted by describe --only.
var MetadataKinds = []string{"primary-key", "foreign-keys", "indexes", "uniques", "checks", "default-values"}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(opts *RootOptions) *cobra.Command {
	var only string

	cmd := &cobra.Command{
		Use:   "describe <table>",
		Short: "Show the metadata of a table",
		Long: `Show the columns, primary key and foreign keys of a table.

With --only, print a single kind of constraint metadata instead:
` + strings.Join(MetadataKinds, ", ") + `.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			out := newOutput(opts, cmd)
			if only != "" {
				v, err := tableMetadata(cmd.Context(), s.schema, args[0], only)
				if err != nil {
					return err
				}
				return out.json(v)
			}

			ts, err := s.schema.TableSchema(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			if ts == nil {
				return errs.Newf(errs.ErrKindNotFound, "table %q not found", args[0])
			}
			if out.isJSON() {
				return out.json(ts)
			}
			return describeText(out, ts)
		},
	}
	cmd.Flags().StringVar(&only, "only", "", "print one kind of metadata ("+strings.Join(MetadataKinds, "|")+")")
	return cmd
}

func tableMetadata(ctx context.Context, s *schema.Schema, table, kind string) (any, error) {
	switch kind {
	case "primary-key":
		return s.TablePrimaryKey(ctx, table, false)
	case "foreign-keys":
		return s.TableForeignKeys(ctx, table, false)
	case "indexes":
		return s.TableIndexes(ctx, table, false)
	case "uniques":
		return s.TableUniques(ctx, table, false)
	case "checks":
		return s.TableChecks(ctx, table, false)
	case "default-values":
		return s.TableDefaultValues(ctx, table, false)
	}
	return nil, errs.Newf(errs.ErrKindInvalidArgument,
		"unknown metadata %q: must be one of %v", kind, MetadataKinds)
}

func describeText(out *output, ts *schema.TableSchema) error {
	name := ts.FullName()
	if name == "" {
		name = ts.Name()
	}
	fmt.Fprintf(out.w, "Table: %s\n", name)
	if ts.Comment() != "" {
		fmt.Fprintf(out.w, "Comment: %s\n", ts.Comment())
	}
	if ts.SequenceName() != "" {
		fmt.Fprintf(out.w, "Sequence: %s\n", ts.SequenceName())
	}
	fmt.Fprintln(out.w)

	rows := make([][]string, 0, len(ts.Columns()))
	for _, c := range ts.Columns() {
		def := ""
		if c.DefaultValue != nil {
			def = cell(c.DefaultValue)
		}
		rows = append(rows, []string{
			c.Name, c.Type, c.DBType,
			strconv.FormatBool(c.AllowNull), flag(c.IsPrimaryKey), flag(c.Unique), def,
		})
	}
	if err := out.table([]string{"name", "type", "db type", "null", "pk", "unique", "default"}, rows); err != nil {
		return err
	}

	if pk := ts.PrimaryKey(); len(pk) > 0 {
		fmt.Fprintf(out.w, "\nPrimary key: %s\n", strings.Join(pk, ", "))
	}
	if fks := ts.ForeignKeys(); len(fks) > 0 {
		fmt.Fprintln(out.w, "\nForeign keys:")
		for _, fk := range fks {
			name := fk.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Fprintf(out.w, "  %s: (%s) -> %s(%s)\n", name,
				strings.Join(fk.Columns, ", "), fk.ForeignTable, strings.Join(fk.ForeignColumns, ", "))
		}
	}
	return nil
}

func flag(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
