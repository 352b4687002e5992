package mysql

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/schema"
)

// schemaFilter selects the named schema, or the connection's current
// database when the argument is empty.
const schemaFilter = "COALESCE(NULLIF(?, ''), DATABASE())"

// Introspector loads table metadata from MySQL's information_schema. It
// implements schema.Loader and every optional hook except default value
// constraints, which MySQL does not have.
type Introspector struct {
	db database.DB
}

// NewIntrospector returns an Introspector reading through db.
func NewIntrospector(db database.DB) *Introspector {
	return &Introspector{db: db}
}

// FindSchemaNames returns every database except the server's own.
func (m *Introspector) FindSchemaNames(ctx context.Context) ([]string, error) {
	const q = `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')
		ORDER BY schema_name`

	names, err := database.QueryStrings(ctx, m.db, q)
	if err != nil {
		return nil, fmt.Errorf("find schema names: %w", err)
	}
	return names, nil
}

// FindTableNames returns the base tables of schemaName ("" means the
// current database).
func (m *Introspector) FindTableNames(ctx context.Context, schemaName string) ([]string, error) {
	return m.findNames(ctx, schemaName, "BASE TABLE")
}

// FindViewNames returns the views of schemaName ("" means the current
// database).
func (m *Introspector) FindViewNames(ctx context.Context, schemaName string) ([]string, error) {
	return m.findNames(ctx, schemaName, "VIEW")
}

func (m *Introspector) findNames(ctx context.Context, schemaName, tableType string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ` + schemaFilter + `
		  AND table_type   = ?
		ORDER BY table_name`

	names, err := database.QueryStrings(ctx, m.db, q, schemaName, tableType)
	if err != nil {
		return nil, fmt.Errorf("list %s names: %w", strings.ToLower(tableType), err)
	}
	return names, nil
}

// ResolveTableName splits "db.table" (or "table") into its parts.
func (m *Introspector) ResolveTableName(_ context.Context, name string) (*schema.TableSchema, error) {
	return resolve(name), nil
}

func resolve(name string) *schema.TableSchema {
	t := schema.NewTableSchema()
	parts := strings.SplitN(strings.ReplaceAll(name, "`", ""), ".", 2)
	if len(parts) == 2 {
		t.SetSchemaName(parts[0]).SetName(parts[1]).SetFullName(parts[0] + "." + parts[1])
	} else {
		t.SetName(parts[0]).SetFullName(parts[0])
	}
	return t
}

// LoadTableSchema returns the table's columns, keys, comment and CREATE
// statement, or nil if the table does not exist.
func (m *Introspector) LoadTableSchema(ctx context.Context, name string) (*schema.TableSchema, error) {
	t := resolve(name)

	found, err := m.loadColumns(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", t.FullName(), err)
	}
	if !found {
		return nil, nil
	}

	dbName, err := m.loadTableInfo(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", t.FullName(), err)
	}

	keys, err := m.loadKeys(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", t.FullName(), err)
	}
	for _, k := range keys {
		switch k.kind {
		case "PRIMARY KEY":
			t.AddPrimaryKey(k.columns...)
			for _, col := range k.columns {
				if column := t.Column(col); column != nil {
					column.IsPrimaryKey = true
				}
			}
		case "UNIQUE":
			if len(k.columns) == 1 {
				if column := t.Column(k.columns[0]); column != nil {
					column.Unique = true
				}
			}
		case "FOREIGN KEY":
			foreign := k.foreignTable
			if k.foreignSchema != "" && k.foreignSchema != dbName {
				foreign = k.foreignSchema + "." + foreign
			}
			t.SetForeignKey(k.name, schema.ForeignKeyRef{
				ForeignTable:   foreign,
				Columns:        k.columns,
				ForeignColumns: k.foreignColumns,
			})
		}
	}

	return t, nil
}

func (m *Introspector) loadColumns(ctx context.Context, t *schema.TableSchema) (bool, error) {
	const q = `
		SELECT column_name,
		       data_type,
		       column_type,
		       is_nullable = 'YES',
		       column_default,
		       COALESCE(character_maximum_length, 0),
		       COALESCE(numeric_precision, 0),
		       COALESCE(numeric_scale, 0),
		       column_key,
		       extra,
		       column_comment
		FROM information_schema.columns
		WHERE table_schema = ` + schemaFilter + `
		  AND table_name   = ?
		ORDER BY ordinal_position`

	rows, err := m.db.Query(ctx, q, t.SchemaName(), t.Name())
	if err != nil {
		return false, err
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var (
			col        schema.Column
			dataType   string
			defaultVal *string
			columnKey  string
			extra      string
		)
		if err := rows.Scan(
			&col.Name,
			&dataType,
			&col.DBType,
			&col.AllowNull,
			&defaultVal,
			&col.Size,
			&col.Precision,
			&col.Scale,
			&columnKey,
			&extra,
			&col.Comment,
		); err != nil {
			return false, err
		}
		found = true

		col.Type = abstractType(dataType, col.DBType)
		col.Unsigned = strings.Contains(col.DBType, "unsigned")
		col.AutoIncrement = strings.Contains(extra, "auto_increment")
		col.Unique = columnKey == "UNI"
		if dataType == "enum" || dataType == "set" {
			col.EnumValues = enumValues(col.DBType)
		}
		if defaultVal != nil {
			col.DefaultValue = parseDefault(*defaultVal, col.Type, extra)
		}
		t.SetColumn(col.Name, &col)
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return found, nil
}

// loadTableInfo fills the table comment and, for base tables, the CREATE
// TABLE statement. It returns the database the table lives in.
func (m *Introspector) loadTableInfo(ctx context.Context, t *schema.TableSchema) (string, error) {
	const q = `
		SELECT table_schema, table_type, table_comment
		FROM information_schema.tables
		WHERE table_schema = ` + schemaFilter + `
		  AND table_name   = ?`

	row, err := m.db.QueryRow(ctx, q, t.SchemaName(), t.Name())
	if err != nil {
		return "", err
	}
	var schemaName, tableType, comment string
	if err := row.Scan(&schemaName, &tableType, &comment); err != nil {
		return "", err
	}
	t.SetComment(comment)
	if tableType != "BASE TABLE" {
		return schemaName, nil
	}

	show := "SHOW CREATE TABLE " + database.DialectMySQL.QuoteTable(schemaName+"."+t.Name())
	row, err = m.db.QueryRow(ctx, show)
	if err != nil {
		return "", err
	}
	var table, createSQL string
	if err := row.Scan(&table, &createSQL); err != nil {
		return "", err
	}
	t.SetCreateSQL(createSQL)
	return schemaName, nil
}

// keyConstraint is one constraint from key_column_usage with its columns
// in key order.
type keyConstraint struct {
	name           string
	kind           string // PRIMARY KEY, UNIQUE, FOREIGN KEY
	columns        []string
	foreignSchema  string
	foreignTable   string
	foreignColumns []string
	onUpdate       string
	onDelete       string
}

func (m *Introspector) loadKeys(ctx context.Context, t *schema.TableSchema) ([]*keyConstraint, error) {
	const q = `
		SELECT kcu.constraint_name,
		       tc.constraint_type,
		       kcu.column_name,
		       COALESCE(kcu.referenced_table_schema, ''),
		       COALESCE(kcu.referenced_table_name, ''),
		       COALESCE(kcu.referenced_column_name, ''),
		       COALESCE(rc.update_rule, ''),
		       COALESCE(rc.delete_rule, '')
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.table_constraints tc
		     ON tc.constraint_schema = kcu.constraint_schema
		    AND tc.table_name        = kcu.table_name
		    AND tc.constraint_name   = kcu.constraint_name
		LEFT JOIN information_schema.referential_constraints rc
		     ON rc.constraint_schema = kcu.constraint_schema
		    AND rc.table_name        = kcu.table_name
		    AND rc.constraint_name   = kcu.constraint_name
		WHERE kcu.table_schema = ` + schemaFilter + `
		  AND kcu.table_name   = ?
		ORDER BY kcu.constraint_name, kcu.ordinal_position`

	rows, err := m.db.Query(ctx, q, t.SchemaName(), t.Name())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out    []*keyConstraint
		byName = make(map[string]*keyConstraint)
	)
	for rows.Next() {
		var name, kind, column, fSchema, fTable, fColumn, onUpdate, onDelete string
		if err := rows.Scan(&name, &kind, &column, &fSchema, &fTable, &fColumn, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		k, ok := byName[name]
		if !ok {
			k = &keyConstraint{
				name:          name,
				kind:          kind,
				foreignSchema: fSchema,
				foreignTable:  fTable,
				onUpdate:      onUpdate,
				onDelete:      onDelete,
			}
			byName[name] = k
			out = append(out, k)
		}
		k.columns = append(k.columns, column)
		if fColumn != "" {
			k.foreignColumns = append(k.foreignColumns, fColumn)
		}
	}
	return out, rows.Err()
}

func (m *Introspector) keysOf(ctx context.Context, table, kind string) ([]*keyConstraint, error) {
	all, err := m.loadKeys(ctx, resolve(table))
	if err != nil {
		return nil, fmt.Errorf("load constraints of %s: %w", table, err)
	}
	var out []*keyConstraint
	for _, k := range all {
		if k.kind == kind {
			out = append(out, k)
		}
	}
	return out, nil
}

// LoadTablePrimaryKey returns the primary key, or nil if the table has none.
func (m *Introspector) LoadTablePrimaryKey(ctx context.Context, table string) (*schema.Constraint, error) {
	keys, err := m.keysOf(ctx, table, "PRIMARY KEY")
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	return &schema.Constraint{Name: keys[0].name, ColumnNames: keys[0].columns}, nil
}

// LoadTableUniques returns the UNIQUE constraints.
func (m *Introspector) LoadTableUniques(ctx context.Context, table string) ([]*schema.Constraint, error) {
	keys, err := m.keysOf(ctx, table, "UNIQUE")
	if err != nil {
		return nil, err
	}
	out := make([]*schema.Constraint, 0, len(keys))
	for _, k := range keys {
		out = append(out, &schema.Constraint{Name: k.name, ColumnNames: k.columns})
	}
	return out, nil
}

// LoadTableForeignKeys returns the FOREIGN KEY constraints.
func (m *Introspector) LoadTableForeignKeys(ctx context.Context, table string) ([]*schema.ForeignKeyConstraint, error) {
	keys, err := m.keysOf(ctx, table, "FOREIGN KEY")
	if err != nil {
		return nil, err
	}
	out := make([]*schema.ForeignKeyConstraint, 0, len(keys))
	for _, k := range keys {
		out = append(out, &schema.ForeignKeyConstraint{
			Constraint:         schema.Constraint{Name: k.name, ColumnNames: k.columns},
			ForeignSchemaName:  k.foreignSchema,
			ForeignTableName:   k.foreignTable,
			ForeignColumnNames: k.foreignColumns,
			OnUpdate:           k.onUpdate,
			OnDelete:           k.onDelete,
		})
	}
	return out, nil
}

// LoadTableChecks returns the CHECK constraints (MySQL 8.0.16 and later).
// MySQL does not record which columns a check refers to.
func (m *Introspector) LoadTableChecks(ctx context.Context, table string) ([]*schema.CheckConstraint, error) {
	const q = `
		SELECT cc.constraint_name, cc.check_clause
		FROM information_schema.check_constraints cc
		JOIN information_schema.table_constraints tc
		     ON tc.constraint_schema = cc.constraint_schema
		    AND tc.constraint_name   = cc.constraint_name
		WHERE tc.table_schema    = ` + schemaFilter + `
		  AND tc.table_name      = ?
		  AND tc.constraint_type = 'CHECK'
		ORDER BY cc.constraint_name`

	t := resolve(table)
	rows, err := m.db.Query(ctx, q, t.SchemaName(), t.Name())
	if err != nil {
		return nil, fmt.Errorf("load checks of %s: %w", table, err)
	}
	defer rows.Close()

	out := make([]*schema.CheckConstraint, 0)
	for rows.Next() {
		c := &schema.CheckConstraint{Constraint: schema.Constraint{ColumnNames: []string{}}}
		if err := rows.Scan(&c.Name, &c.Expression); err != nil {
			return nil, fmt.Errorf("scan check of %s: %w", table, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadTableIndexes returns every index with its columns in key order.
func (m *Introspector) LoadTableIndexes(ctx context.Context, table string) ([]*schema.IndexConstraint, error) {
	const q = `
		SELECT index_name, non_unique, column_name
		FROM information_schema.statistics
		WHERE table_schema = ` + schemaFilter + `
		  AND table_name   = ?
		ORDER BY index_name, seq_in_index`

	t := resolve(table)
	rows, err := m.db.Query(ctx, q, t.SchemaName(), t.Name())
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
			name, column string
			nonUnique    int
		)
		if err := rows.Scan(&name, &nonUnique, &column); err != nil {
			return nil, fmt.Errorf("scan index of %s: %w", table, err)
		}
		idx, ok := byName[name]
		if !ok {
			idx = &schema.IndexConstraint{
				Constraint: schema.Constraint{Name: name},
				IsUnique:   nonUnique == 0,
				IsPrimary:  name == "PRIMARY",
			}
			byName[name] = idx
			out = append(out, idx)
		}
		idx.ColumnNames = append(idx.ColumnNames, column)
	}
	return out, rows.Err()
}

var typeMap = map[string]string{
	"tinyint":    "tinyint",
	"bit":        "integer",
	"smallint":   "smallint",
	"mediumint":  "integer",
	"int":        "integer",
	"integer":    "integer",
	"bigint":     "bigint",
	"float":      "float",
	"double":     "double",
	"real":       "float",
	"decimal":    "decimal",
	"numeric":    "decimal",
	"tinytext":   "text",
	"mediumtext": "text",
	"longtext":   "text",
	"text":       "text",
	"varchar":    "string",
	"char":       "char",
	"datetime":   "datetime",
	"year":       "date",
	"date":       "date",
	"time":       "time",
	"timestamp":  "timestamp",
	"enum":       "string",
	"set":        "string",
	"binary":     "binary",
	"varbinary":  "binary",
	"tinyblob":   "binary",
	"blob":       "binary",
	"mediumblob": "binary",
	"longblob":   "binary",
	"json":       "json",
}

// abstractType maps a data_type to the portable type name. tinyint(1) is
// reported as boolean.
func abstractType(dataType, columnType string) string {
	if dataType == "tinyint" && strings.HasPrefix(columnType, "tinyint(1)") {
		return "boolean"
	}
	if t, ok := typeMap[dataType]; ok {
		return t
	}
	return "string"
}

var enumLiteral = regexp.MustCompile(`'((?:[^']|'')*)'`)

// enumValues extracts the labels of an enum(...) or set(...) column type.
func enumValues(columnType string) []string {
	matches := enumLiteral.FindAllStringSubmatch(columnType, -1)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		values = append(values, strings.ReplaceAll(m[1], "''", "'"))
	}
	return values
}

// parseDefault converts a column_default to a Go value of the column's
// abstract type. Generated defaults such as CURRENT_TIMESTAMP are kept as
// expressions.
func parseDefault(def, typ, extra string) any {
	if strings.Contains(extra, "DEFAULT_GENERATED") || strings.HasPrefix(strings.ToUpper(def), "CURRENT_TIMESTAMP") {
		return def
	}
	// MariaDB quotes literal defaults and spells NULL out.
	if def == "NULL" {
		return nil
	}
	if len(def) >= 2 && def[0] == '\'' && def[len(def)-1] == '\'' {
		def = strings.ReplaceAll(def[1:len(def)-1], "''", "'")
	}

	switch typ {
	case "tinyint", "smallint", "integer", "bigint":
		if i, err := strconv.ParseInt(def, 10, 64); err == nil {
			return i
		}
	case "boolean":
		if i, err := strconv.ParseInt(def, 10, 64); err == nil {
			return i != 0
		}
	case "float", "double":
		if f, err := strconv.ParseFloat(def, 64); err == nil {
			return f
		}
	}
	return def
}
