package schema

import "context"

// Loader is the dialect introspection hook the Schema cache loads through.
// LoadTableSchema returns nil, nil for a table that does not exist.
//
// The remaining capabilities are optional interfaces; a Loader that does not
// implement one makes the matching Schema operation fail with
// errs.ErrKindNotSupported (view names excepted, which default to empty).
type Loader interface {
	LoadTableSchema(ctx context.Context, name string) (*TableSchema, error)
}

// TableNameFinder lists the tables of a schema ("" is the default schema).
type TableNameFinder interface {
	FindTableNames(ctx context.Context, schema string) ([]string, error)
}

// ViewNameFinder lists the views of a schema.
type ViewNameFinder interface {
	FindViewNames(ctx context.Context, schema string) ([]string, error)
}

// SchemaNameFinder lists every schema of the database.
type SchemaNameFinder interface {
	FindSchemaNames(ctx context.Context) ([]string, error)
}

type ChecksLoader interface {
	LoadTableChecks(ctx context.Context, table string) ([]*CheckConstraint, error)
}

type DefaultValuesLoader interface {
	LoadTableDefaultValues(ctx context.Context, table string) ([]*DefaultValueConstraint, error)
}

type ForeignKeysLoader interface {
	LoadTableForeignKeys(ctx context.Context, table string) ([]*ForeignKeyConstraint, error)
}

type IndexesLoader interface {
	LoadTableIndexes(ctx context.Context, table string) ([]*IndexConstraint, error)
}

type UniquesLoader interface {
	LoadTableUniques(ctx context.Context, table string) ([]*Constraint, error)
}

// PrimaryKeyLoader returns nil, nil for a table without a primary key.
type PrimaryKeyLoader interface {
	LoadTablePrimaryKey(ctx context.Context, table string) (*Constraint, error)
}

// TableNameResolver splits a possibly qualified name into its parts. The
// returned TableSchema carries names only.
type TableNameResolver interface {
	ResolveTableName(ctx context.Context, name string) (*TableSchema, error)
}
