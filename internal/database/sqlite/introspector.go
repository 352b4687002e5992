package sqlite

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/schema"
)

const defaultSchema = "main"

// Introspector loads table metadata through SQLite's pragma table-valued
// functions. SQLite has no schema catalogue or named default constraints,
// so FindSchemaNames and LoadTableDefaultValues are not implemented.
type Introspector struct {
	db database.DB
}

// NewIntrospector returns an Introspector reading through db.
func NewIntrospector(db database.DB) *Introspector {
	return &Introspector{db: db}
}

// FindTableNames returns the tables of schemaName ("" means main), excluding
// SQLite's internal tables.
func (s *Introspector) FindTableNames(ctx context.Context, schemaName string) ([]string, error) {
	return s.findNames(ctx, schemaName, "table")
}

// FindViewNames returns the views of schemaName ("" means main).
func (s *Introspector) FindViewNames(ctx context.Context, schemaName string) ([]string, error) {
	return s.findNames(ctx, schemaName, "view")
}

func (s *Introspector) findNames(ctx context.Context, schemaName, kind string) ([]string, error) {
	q := `
		SELECT name
		FROM ` + master(schemaName) + `
		WHERE type = ?
		  AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name`

	names, err := database.QueryStrings(ctx, s.db, q, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s names: %w", kind, err)
	}
	return names, nil
}

func master(schemaName string) string {
	if schemaName == "" || schemaName == defaultSchema {
		return "sqlite_master"
	}
	return database.DialectSQLite.QuoteTable(schemaName) + ".sqlite_master"
}

// ResolveTableName splits "schema.table" (or "table") into its parts.
func (s *Introspector) ResolveTableName(_ context.Context, name string) (*schema.TableSchema, error) {
	return resolve(name), nil
}

func resolve(name string) *schema.TableSchema {
	t := schema.NewTableSchema()
	parts := strings.SplitN(strings.ReplaceAll(name, `"`, ""), ".", 2)
	if len(parts) == 2 && parts[0] != defaultSchema {
		t.SetSchemaName(parts[0]).SetName(parts[1]).SetFullName(parts[0] + "." + parts[1])
	} else {
		t.SetName(parts[len(parts)-1]).SetFullName(parts[len(parts)-1])
	}
	return t
}

func schemaArg(t *schema.TableSchema) string {
	if t.SchemaName() == "" {
		return defaultSchema
	}
	return t.SchemaName()
}

// LoadTableSchema returns the table's columns, keys and CREATE statement, or
// nil if the table does not exist.
func (s *Introspector) LoadTableSchema(ctx context.Context, name string) (*schema.TableSchema, error) {
	t := resolve(name)

	found, err := s.loadColumns(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", t.FullName(), err)
	}
	if !found {
		return nil, nil
	}

	fks, err := s.loadForeignKeys(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", t.FullName(), err)
	}
	for _, fk := range fks {
		t.SetForeignKey(fk.Name, schema.ForeignKeyRef{
			ForeignTable:   fk.ForeignTableName,
			Columns:        fk.ColumnNames,
			ForeignColumns: fk.ForeignColumnNames,
		})
	}

	indexes, err := s.loadIndexes(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", t.FullName(), err)
	}
	for _, idx := range indexes {
		if idx.IsUnique && !idx.IsPrimary && len(idx.ColumnNames) == 1 {
			if column := t.Column(idx.ColumnNames[0]); column != nil {
				column.Unique = true
			}
		}
	}

	createSQL, err := s.createSQL(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", t.FullName(), err)
	}
	t.SetCreateSQL(createSQL)

	return t, nil
}

func (s *Introspector) loadColumns(ctx context.Context, t *schema.TableSchema) (bool, error) {
	const q = `
		SELECT name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?, ?)
		ORDER BY cid`

	rows, err := s.db.Query(ctx, q, t.Name(), schemaArg(t))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	type pkColumn struct {
		name string
		pos  int
	}
	var (
		pk    []pkColumn
		found bool
	)
	for rows.Next() {
		var (
			col        schema.Column
			notNull    int
			defaultVal *string
			pkPos      int
		)
		if err := rows.Scan(&col.Name, &col.DBType, &notNull, &defaultVal, &pkPos); err != nil {
			return false, err
		}
		found = true

		col.AllowNull = notNull == 0
		col.DBType = strings.ToLower(col.DBType)
		parseDBType(&col)
		if defaultVal != nil {
			col.DefaultValue = parseDefault(*defaultVal)
		}
		if pkPos > 0 {
			col.IsPrimaryKey = true
			pk = append(pk, pkColumn{name: col.Name, pos: pkPos})
		}
		t.SetColumn(col.Name, &col)
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	sort.Slice(pk, func(i, j int) bool { return pk[i].pos < pk[j].pos })
	for _, c := range pk {
		t.AddPrimaryKey(c.name)
	}
	// A single INTEGER PRIMARY KEY aliases the rowid.
	if len(pk) == 1 {
		if col := t.Column(pk[0].name); strings.HasPrefix(col.DBType, "int") {
			col.AutoIncrement = true
		}
	}
	return found, nil
}

func (s *Introspector) createSQL(ctx context.Context, t *schema.TableSchema) (string, error) {
	q := `SELECT COALESCE(sql, '') FROM ` + master(t.SchemaName()) + ` WHERE type IN ('table', 'view') AND name = ?`

	row, err := s.db.QueryRow(ctx, q, t.Name())
	if err != nil {
		return "", err
	}
	var sql string
	if err := row.Scan(&sql); err != nil {
		return "", err
	}
	return sql, nil
}

func (s *Introspector) loadForeignKeys(ctx context.Context, t *schema.TableSchema) ([]*schema.ForeignKeyConstraint, error) {
	const q = `
		SELECT id, "table", "from", "to", on_update, on_delete
		FROM pragma_foreign_key_list(?, ?)
		ORDER BY id, seq`

	rows, err := s.db.Query(ctx, q, t.Name(), schemaArg(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out  = make([]*schema.ForeignKeyConstraint, 0)
		byID = make(map[int]*schema.ForeignKeyConstraint)
	)
	for rows.Next() {
		var (
			id                 int
			table, from        string
			to                 *string
			onUpdate, onDelete string
		)
		if err := rows.Scan(&id, &table, &from, &to, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		fk, ok := byID[id]
		if !ok {
			fk = &schema.ForeignKeyConstraint{
				ForeignSchemaName: t.SchemaName(),
				ForeignTableName:  table,
				OnUpdate:          onUpdate,
				OnDelete:          onDelete,
			}
			byID[id] = fk
			out = append(out, fk)
		}
		fk.ColumnNames = append(fk.ColumnNames, from)
		// A NULL target refers to the parent's primary key.
		if to != nil {
			fk.ForeignColumnNames = append(fk.ForeignColumnNames, *to)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, fk := range out {
		if len(fk.ForeignColumnNames) > 0 {
			continue
		}
		parent := fk.ForeignTableName
		if fk.ForeignSchemaName != "" {
			parent = fk.ForeignSchemaName + "." + parent
		}
		pk, err := s.primaryKeyColumns(ctx, resolve(parent))
		if err != nil {
			return nil, err
		}
		fk.ForeignColumnNames = pk
	}
	return out, nil
}

func (s *Introspector) primaryKeyColumns(ctx context.Context, t *schema.TableSchema) ([]string, error) {
	const q = `
		SELECT name
		FROM pragma_table_info(?, ?)
		WHERE pk > 0
		ORDER BY pk`

	return database.QueryStrings(ctx, s.db, q, t.Name(), schemaArg(t))
}

func (s *Introspector) loadIndexes(ctx context.Context, t *schema.TableSchema) ([]*schema.IndexConstraint, error) {
	const listQ = `
		SELECT name, "unique", origin
		FROM pragma_index_list(?, ?)
		ORDER BY seq`
	const infoQ = `
		SELECT name
		FROM pragma_index_info(?, ?)
		WHERE name IS NOT NULL
		ORDER BY seqno`

	rows, err := s.db.Query(ctx, listQ, t.Name(), schemaArg(t))
	if err != nil {
		return nil, err
	}
	out := make([]*schema.IndexConstraint, 0)
	for rows.Next() {
		var (
			name, origin string
			unique       int
		)
		if err := rows.Scan(&name, &unique, &origin); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, &schema.IndexConstraint{
			Constraint: schema.Constraint{Name: name},
			IsUnique:   unique != 0,
			IsPrimary:  origin == "pk",
		})
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Columns are fetched after the list is drained; an in-memory database
	// has a single connection.
	hasPrimary := false
	for _, idx := range out {
		cols, err := database.QueryStrings(ctx, s.db, infoQ, idx.Name, schemaArg(t))
		if err != nil {
			return nil, err
		}
		idx.ColumnNames = cols
		hasPrimary = hasPrimary || idx.IsPrimary
	}

	// A rowid alias primary key has no index of its own.
	if !hasPrimary {
		pk, err := s.primaryKeyColumns(ctx, t)
		if err != nil {
			return nil, err
		}
		if len(pk) > 0 {
			out = append(out, &schema.IndexConstraint{
				Constraint: schema.Constraint{ColumnNames: pk},
				IsUnique:   true,
				IsPrimary:  true,
			})
		}
	}
	return out, nil
}

// LoadTablePrimaryKey returns the primary key, or nil if the table has none.
// SQLite does not keep primary key names.
func (s *Introspector) LoadTablePrimaryKey(ctx context.Context, table string) (*schema.Constraint, error) {
	pk, err := s.primaryKeyColumns(ctx, resolve(table))
	if err != nil {
		return nil, fmt.Errorf("load primary key of %s: %w", table, err)
	}
	if len(pk) == 0 {
		return nil, nil
	}
	return &schema.Constraint{ColumnNames: pk}, nil
}

// LoadTableForeignKeys returns the FOREIGN KEY constraints. SQLite does not
// keep their names.
func (s *Introspector) LoadTableForeignKeys(ctx context.Context, table string) ([]*schema.ForeignKeyConstraint, error) {
	fks, err := s.loadForeignKeys(ctx, resolve(table))
	if err != nil {
		return nil, fmt.Errorf("load foreign keys of %s: %w", table, err)
	}
	return fks, nil
}

// LoadTableIndexes returns every index, including the implicit one behind
// a rowid primary key.
func (s *Introspector) LoadTableIndexes(ctx context.Context, table string) ([]*schema.IndexConstraint, error) {
	indexes, err := s.loadIndexes(ctx, resolve(table))
	if err != nil {
		return nil, fmt.Errorf("load indexes of %s: %w", table, err)
	}
	return indexes, nil
}

// LoadTableUniques returns the unique indexes that are not the primary key.
func (s *Introspector) LoadTableUniques(ctx context.Context, table string) ([]*schema.Constraint, error) {
	indexes, err := s.LoadTableIndexes(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make([]*schema.Constraint, 0)
	for _, idx := range indexes {
		if idx.IsUnique && !idx.IsPrimary {
			out = append(out, &schema.Constraint{Name: idx.Name, ColumnNames: idx.ColumnNames})
		}
	}
	return out, nil
}

// LoadTableChecks parses the CHECK constraints out of the CREATE TABLE
// statement.
func (s *Introspector) LoadTableChecks(ctx context.Context, table string) ([]*schema.CheckConstraint, error) {
	createSQL, err := s.createSQL(ctx, resolve(table))
	if err != nil {
		return nil, fmt.Errorf("load checks of %s: %w", table, err)
	}
	return parseChecks(createSQL), nil
}

var (
	checkKeyword   = regexp.MustCompile(`(?i)\bCHECK\s*\(`)
	constraintName = regexp.MustCompile(`(?i)\bCONSTRAINT\s+("(?:[^"]|"")+"|` + "`[^`]+`" + `|\[[^\]]+\]|\w+)\s*$`)
)

// parseChecks extracts every CHECK (...) clause of a CREATE TABLE
// statement, with its CONSTRAINT name when one precedes it.
func parseChecks(createSQL string) []*schema.CheckConstraint {
	out := make([]*schema.CheckConstraint, 0)
	rest := createSQL
	for {
		loc := checkKeyword.FindStringIndex(rest)
		if loc == nil {
			return out
		}
		open := loc[1] - 1
		end := matchParen(rest, open)
		if end < 0 {
			return out
		}

		c := &schema.CheckConstraint{
			Constraint: schema.Constraint{ColumnNames: []string{}},
			Expression: strings.TrimSpace(rest[open+1 : end]),
		}
		if m := constraintName.FindStringSubmatch(rest[:loc[0]]); m != nil {
			c.Name = strings.Trim(m[1], "\"`[]")
		}
		out = append(out, c)
		rest = rest[end+1:]
	}
}

// matchParen returns the index of the parenthesis closing the one at open,
// skipping quoted strings and identifiers, or -1.
func matchParen(sql string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(sql); i++ {
		ch := sql[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var typeMap = map[string]string{
	"tinyint":    "tinyint",
	"bit":        "smallint",
	"boolean":    "boolean",
	"bool":       "boolean",
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
	"string":     "string",
	"char":       "char",
	"blob":       "binary",
	"datetime":   "datetime",
	"year":       "date",
	"date":       "date",
	"time":       "time",
	"timestamp":  "timestamp",
	"json":       "json",
}

var declaredType = regexp.MustCompile(`^([a-z ]+?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?(\s+unsigned)?$`)

// parseDBType fills Type, Size, Precision, Scale and Unsigned from the
// declared column type, e.g. "decimal(10,2)" or "varchar(255)".
func parseDBType(col *schema.Column) {
	col.Type = "string"
	m := declaredType.FindStringSubmatch(col.DBType)
	if m == nil {
		return
	}
	base := strings.TrimSpace(m[1])
	if t, ok := typeMap[base]; ok {
		col.Type = t
	} else if t, ok := typeMap[strings.Fields(base)[0]]; ok {
		col.Type = t
	}
	col.Unsigned = m[4] != ""

	if m[2] == "" {
		return
	}
	n, _ := strconv.Atoi(m[2])
	if m[3] != "" {
		col.Precision = n
		col.Scale, _ = strconv.Atoi(m[3])
		return
	}
	col.Size = n
	if col.Type == "decimal" {
		col.Precision = n
	}
}

var quotedLiteral = regexp.MustCompile(`^'(.*)'$`)

// parseDefault turns a dflt_value expression into a Go value: quoted
// literals lose their quotes, numbers are parsed, NULL becomes nil and
// anything else (CURRENT_TIMESTAMP, expressions) is kept as written.
func parseDefault(def string) any {
	v := strings.TrimSpace(def)
	if strings.EqualFold(v, "NULL") {
		return nil
	}
	if m := quotedLiteral.FindStringSubmatch(v); m != nil {
		return strings.ReplaceAll(m[1], "''", "'")
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
