package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/schema"
)

const defaultSchema = "public"

// Introspector loads table metadata from PostgreSQL system catalogs. It
// implements schema.Loader and every optional hook except default values,
// which PostgreSQL does not model as named constraints.
type Introspector struct {
	db database.DB
}

// NewIntrospector returns an Introspector reading through db.
func NewIntrospector(db database.DB) *Introspector {
	return &Introspector{db: db}
}

// FindSchemaNames returns every user schema.
func (p *Introspector) FindSchemaNames(ctx context.Context) ([]string, error) {
	const q = `
		SELECT nspname
		FROM pg_namespace
		WHERE nspname NOT LIKE 'pg\_%'
		  AND nspname <> 'information_schema'
		ORDER BY nspname`

	names, err := database.QueryStrings(ctx, p.db, q)
	if err != nil {
		return nil, fmt.Errorf("find schema names: %w", err)
	}
	return names, nil
}

// FindTableNames returns the base tables of schemaName ("" means public).
func (p *Introspector) FindTableNames(ctx context.Context, schemaName string) ([]string, error) {
	return p.findNames(ctx, schemaName, "BASE TABLE")
}

// FindViewNames returns the views of schemaName ("" means public).
func (p *Introspector) FindViewNames(ctx context.Context, schemaName string) ([]string, error) {
	return p.findNames(ctx, schemaName, "VIEW")
}

func (p *Introspector) findNames(ctx context.Context, schemaName, tableType string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type   = $2
		ORDER BY table_name`

	if schemaName == "" {
		schemaName = defaultSchema
	}
	names, err := database.QueryStrings(ctx, p.db, q, schemaName, tableType)
	if err != nil {
		return nil, fmt.Errorf("list %s names in %s: %w", strings.ToLower(tableType), schemaName, err)
	}
	return names, nil
}

// ResolveTableName splits "schema.table" (or "table") into its parts.
func (p *Introspector) ResolveTableName(_ context.Context, name string) (*schema.TableSchema, error) {
	return resolve(name), nil
}

func resolve(name string) *schema.TableSchema {
	t := schema.NewTableSchema()
	parts := strings.Split(unquote(name), ".")
	switch len(parts) {
	case 1:
		t.SetSchemaName(defaultSchema).SetName(parts[0])
	case 2:
		t.SetSchemaName(parts[0]).SetName(parts[1])
	default:
		t.SetCatalogName(parts[0]).SetSchemaName(parts[1]).SetName(strings.Join(parts[2:], "."))
	}
	if t.SchemaName() == defaultSchema {
		t.SetFullName(t.Name())
	} else {
		t.SetFullName(t.SchemaName() + "." + t.Name())
	}
	return t
}

func unquote(name string) string {
	return strings.ReplaceAll(name, `"`, "")
}

// LoadTableSchema returns the table's columns, keys and comment, or nil if
// the table does not exist.
func (p *Introspector) LoadTableSchema(ctx context.Context, name string) (*schema.TableSchema, error) {
	t := resolve(name)

	found, err := p.loadColumns(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", t.FullName(), err)
	}
	if !found {
		return nil, nil
	}

	cons, err := p.loadConstraints(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", t.FullName(), err)
	}
	for _, c := range cons {
		switch c.kind {
		case "p":
			t.AddPrimaryKey(c.columns...)
			for _, col := range c.columns {
				if column := t.Column(col); column != nil {
					column.IsPrimaryKey = true
				}
			}
		case "u":
			if len(c.columns) == 1 {
				if column := t.Column(c.columns[0]); column != nil {
					column.Unique = true
				}
			}
		case "f":
			foreign := c.foreignTable
			if c.foreignSchema != "" && c.foreignSchema != defaultSchema {
				foreign = c.foreignSchema + "." + foreign
			}
			t.SetForeignKey(c.name, schema.ForeignKeyRef{
				ForeignTable:   foreign,
				Columns:        c.columns,
				ForeignColumns: c.foreignColumns,
			})
		}
	}

	comment, err := p.tableComment(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", t.FullName(), err)
	}
	t.SetComment(comment)

	return t, nil
}

var nextval = regexp.MustCompile(`^nextval\('"?([^'"]+)"?'::regclass\)`)

func (p *Introspector) loadColumns(ctx context.Context, t *schema.TableSchema) (bool, error) {
	const q = `
		SELECT c.column_name,
		       c.data_type,
		       c.udt_name,
		       c.is_nullable = 'YES',
		       c.column_default,
		       COALESCE(c.character_maximum_length, 0),
		       COALESCE(c.numeric_precision, 0),
		       COALESCE(c.numeric_scale, 0),
		       c.is_identity = 'YES',
		       COALESCE(pgd.description, '')
		FROM information_schema.columns c
		LEFT JOIN pg_catalog.pg_statio_all_tables st
		       ON st.schemaname = c.table_schema AND st.relname = c.table_name
		LEFT JOIN pg_catalog.pg_description pgd
		       ON pgd.objoid = st.relid AND pgd.objsubid = c.ordinal_position
		WHERE c.table_schema = $1
		  AND c.table_name   = $2
		ORDER BY c.ordinal_position`

	rows, err := p.db.Query(ctx, q, t.SchemaName(), t.Name())
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var enumTypes []string
	found := false
	for rows.Next() {
		var (
			col        schema.Column
			dataType   string
			udtName    string
			defaultVal *string
			identity   bool
		)
		if err := rows.Scan(
			&col.Name,
			&dataType,
			&udtName,
			&col.AllowNull,
			&defaultVal,
			&col.Size,
			&col.Precision,
			&col.Scale,
			&identity,
			&col.Comment,
		); err != nil {
			return false, err
		}
		found = true

		col.DBType = udtName
		col.Type = abstractType(udtName)
		col.AutoIncrement = identity
		if defaultVal != nil {
			if m := nextval.FindStringSubmatch(*defaultVal); m != nil {
				col.AutoIncrement = true
				if t.SequenceName() == "" {
					t.SetSequenceName(m[1])
				}
			} else {
				col.DefaultValue = parseDefault(*defaultVal)
			}
		}
		if dataType == "USER-DEFINED" {
			enumTypes = append(enumTypes, udtName)
		}
		t.SetColumn(col.Name, &col)
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	if len(enumTypes) > 0 {
		enums, err := p.enumValues(ctx, t.SchemaName())
		if err != nil {
			return false, err
		}
		for _, col := range t.Columns() {
			if values, ok := enums[col.DBType]; ok {
				col.EnumValues = values
			}
		}
	}
	return found, nil
}

// enumValues returns the labels of every enum type in schemaName.
func (p *Introspector) enumValues(ctx context.Context, schemaName string) (map[string][]string, error) {
	const q = `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		JOIN pg_namespace n ON t.typnamespace = n.oid
		WHERE n.nspname = $1
		ORDER BY t.typname, e.enumsortorder`

	rows, err := p.db.Query(ctx, q, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var typName, label string
		if err := rows.Scan(&typName, &label); err != nil {
			return nil, err
		}
		result[typName] = append(result[typName], label)
	}
	return result, rows.Err()
}

func (p *Introspector) tableComment(ctx context.Context, t *schema.TableSchema) (string, error) {
	const q = `
		SELECT COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2`

	row, err := p.db.QueryRow(ctx, q, t.SchemaName(), t.Name())
	if err != nil {
		return "", err
	}
	var comment string
	if err := row.Scan(&comment); err != nil {
		return "", err
	}
	return comment, nil
}

// pgConstraint is one row group of pg_constraint: a constraint with its
// columns in key order.
type pgConstraint struct {
	name           string
	kind           string // p, u, f, c
	columns        []string
	foreignSchema  string
	foreignTable   string
	foreignColumns []string
	onUpdate       string
	onDelete       string
	definition     string
}

func (p *Introspector) loadConstraints(ctx context.Context, t *schema.TableSchema) ([]*pgConstraint, error) {
	const q = `
		SELECT con.conname,
		       con.contype::text,
		       COALESCE(a.attname, ''),
		       COALESCE(fns.nspname, ''),
		       COALESCE(fc.relname, ''),
		       COALESCE(fa.attname, ''),
		       con.confupdtype::text,
		       con.confdeltype::text,
		       pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace ns ON ns.oid = c.relnamespace
		LEFT JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord) ON true
		LEFT JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		LEFT JOIN pg_class fc ON fc.oid = con.confrelid
		LEFT JOIN pg_namespace fns ON fns.oid = fc.relnamespace
		LEFT JOIN pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = con.confkey[k.ord]
		WHERE ns.nspname = $1
		  AND c.relname  = $2
		  AND con.contype IN ('p', 'u', 'f', 'c')
		ORDER BY con.conname, k.ord`

	rows, err := p.db.Query(ctx, q, t.SchemaName(), t.Name())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out    []*pgConstraint
		byName = make(map[string]*pgConstraint)
	)
	for rows.Next() {
		var (
			name, kind, column, fSchema, fTable, fColumn string
			onUpdate, onDelete, definition               string
		)
		if err := rows.Scan(&name, &kind, &column, &fSchema, &fTable, &fColumn,
			&onUpdate, &onDelete, &definition); err != nil {
			return nil, err
		}
		c, ok := byName[name]
		if !ok {
			c = &pgConstraint{
				name:          name,
				kind:          kind,
				foreignSchema: fSchema,
				foreignTable:  fTable,
				onUpdate:      referentialAction(onUpdate),
				onDelete:      referentialAction(onDelete),
				definition:    definition,
			}
			byName[name] = c
			out = append(out, c)
		}
		if column != "" {
			c.columns = append(c.columns, column)
		}
		if fColumn != "" {
			c.foreignColumns = append(c.foreignColumns, fColumn)
		}
	}
	return out, rows.Err()
}

func (p *Introspector) constraintsOf(ctx context.Context, table, kind string) ([]*pgConstraint, error) {
	all, err := p.loadConstraints(ctx, resolve(table))
	if err != nil {
		return nil, fmt.Errorf("load constraints of %s: %w", table, err)
	}
	var out []*pgConstraint
	for _, c := range all {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out, nil
}

// LoadTablePrimaryKey returns the primary key, or nil if the table has none.
func (p *Introspector) LoadTablePrimaryKey(ctx context.Context, table string) (*schema.Constraint, error) {
	cons, err := p.constraintsOf(ctx, table, "p")
	if err != nil || len(cons) == 0 {
		return nil, err
	}
	return &schema.Constraint{Name: cons[0].name, ColumnNames: cons[0].columns}, nil
}

// LoadTableUniques returns the UNIQUE constraints.
func (p *Introspector) LoadTableUniques(ctx context.Context, table string) ([]*schema.Constraint, error) {
	cons, err := p.constraintsOf(ctx, table, "u")
	if err != nil {
		return nil, err
	}
	out := make([]*schema.Constraint, 0, len(cons))
	for _, c := range cons {
		out = append(out, &schema.Constraint{Name: c.name, ColumnNames: c.columns})
	}
	return out, nil
}

// LoadTableForeignKeys returns the FOREIGN KEY constraints.
func (p *Introspector) LoadTableForeignKeys(ctx context.Context, table string) ([]*schema.ForeignKeyConstraint, error) {
	cons, err := p.constraintsOf(ctx, table, "f")
	if err != nil {
		return nil, err
	}
	out := make([]*schema.ForeignKeyConstraint, 0, len(cons))
	for _, c := range cons {
		out = append(out, &schema.ForeignKeyConstraint{
			Constraint:         schema.Constraint{Name: c.name, ColumnNames: c.columns},
			ForeignSchemaName:  c.foreignSchema,
			ForeignTableName:   c.foreignTable,
			ForeignColumnNames: c.foreignColumns,
			OnUpdate:           c.onUpdate,
			OnDelete:           c.onDelete,
		})
	}
	return out, nil
}

// LoadTableChecks returns the CHECK constraints.
func (p *Introspector) LoadTableChecks(ctx context.Context, table string) ([]*schema.CheckConstraint, error) {
	cons, err := p.constraintsOf(ctx, table, "c")
	if err != nil {
		return nil, err
	}
	out := make([]*schema.CheckConstraint, 0, len(cons))
	for _, c := range cons {
		out = append(out, &schema.CheckConstraint{
			Constraint: schema.Constraint{Name: c.name, ColumnNames: c.columns},
			Expression: strings.TrimPrefix(c.definition, "CHECK "),
		})
	}
	return out, nil
}

// LoadTableIndexes returns every index with its columns in key order.
func (p *Introspector) LoadTableIndexes(ctx context.Context, table string) ([]*schema.IndexConstraint, error) {
	const q = `
		SELECT ic.relname,
		       i.indisunique,
		       i.indisprimary,
		       a.attname
		FROM pg_index i
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_namespace ns ON ns.oid = c.relnamespace
		JOIN pg_class ic ON ic.oid = i.indexrelid
		CROSS JOIN LATERAL unnest(i.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = k.attnum
		WHERE ns.nspname = $1
		  AND c.relname  = $2
		ORDER BY ic.relname, k.ord`

	t := resolve(table)
	rows, err := p.db.Query(ctx, q, t.SchemaName(), t.Name())
	if err != nil {
		return nil, fmt.Errorf("load indexes of %s: %w", table, err)
	}
	defer rows.Close()

	var (
		out    = make([]*schema.IndexConstraint, 0)
		byName = make(map[string]*schema.IndexConstraint)
	)
	for rows.Next() {
		var (
			name, column      string
			unique, isPrimary bool
		)
		if err := rows.Scan(&name, &unique, &isPrimary, &column); err != nil {
			return nil, fmt.Errorf("scan index of %s: %w", table, err)
		}
		idx, ok := byName[name]
		if !ok {
			idx = &schema.IndexConstraint{
				Constraint: schema.Constraint{Name: name},
				IsUnique:   unique,
				IsPrimary:  isPrimary,
			}
			byName[name] = idx
			out = append(out, idx)
		}
		idx.ColumnNames = append(idx.ColumnNames, column)
	}
	return out, rows.Err()
}

func referentialAction(code string) string {
	switch code {
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	case "d":
		return "SET DEFAULT"
	case "a":
		return "NO ACTION"
	}
	return ""
}

var typeMap = map[string]string{
	"bit":         "integer",
	"bool":        "boolean",
	"boolean":     "boolean",
	"box":         "string",
	"bpchar":      "char",
	"bytea":       "binary",
	"char":        "char",
	"cidr":        "string",
	"date":        "date",
	"float4":      "float",
	"float8":      "double",
	"inet":        "string",
	"int2":        "smallint",
	"int4":        "integer",
	"int8":        "bigint",
	"interval":    "string",
	"json":        "json",
	"jsonb":       "json",
	"macaddr":     "string",
	"money":       "money",
	"numeric":     "decimal",
	"text":        "text",
	"time":        "time",
	"timetz":      "time",
	"timestamp":   "timestamp",
	"timestamptz": "timestamp",
	"uuid":        "uuid",
	"varchar":     "string",
	"xml":         "string",
}

// abstractType maps a udt name to the portable type name. Arrays keep their
// element mapping with a [] suffix; unknown types (enums, domains) are
// reported as string.
func abstractType(udt string) string {
	if elem, ok := strings.CutPrefix(udt, "_"); ok {
		return abstractType(elem) + "[]"
	}
	if t, ok := typeMap[udt]; ok {
		return t
	}
	return "string"
}

var (
	castSuffix    = regexp.MustCompile(`::[\w\s."\[\]]+$`)
	quotedLiteral = regexp.MustCompile(`^'(.*)'$`)
)

// parseDefault turns a column_default expression into a Go value: quoted
// literals lose their cast and quotes, numbers and booleans are parsed, NULL
// becomes nil and anything else (function calls) is kept as the expression.
func parseDefault(def string) any {
	v := strings.TrimSpace(def)
	stripped := castSuffix.ReplaceAllString(v, "")
	if strings.EqualFold(stripped, "NULL") {
		return nil
	}
	if m := quotedLiteral.FindStringSubmatch(stripped); m != nil {
		return strings.ReplaceAll(m[1], "''", "'")
	}
	switch stripped {
	case "true":
		return true
	case "false":
		return false
	}
	trimmed := strings.Trim(stripped, "()")
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return v
}
