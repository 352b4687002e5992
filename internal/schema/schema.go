// Package schema holds the table metadata model and the per-connection
// cache that loads it lazily through a dialect Loader.
//
// Usage:
//
//	s := schema.New(postgres.NewIntrospector(db), schema.WithLogger(log))
//	users, err := s.TableSchema(ctx, "users", false) // loads once, then cached
//	s.RefreshTableSchema("users")                     // next lookup reloads
//
// A table that does not exist yields nil, nil. A capability the loader does
// not implement yields an errs.ErrKindNotSupported error.
package schema

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/logger"
)

// CacheConfig controls what the Schema cache keeps.
type CacheConfig struct {
	// Enabled turns result reuse on. Disabling it never changes results.
	Enabled bool `yaml:"enabled"`

	// Exclude lists raw table names that are always loaded fresh.
	Exclude []string `yaml:"exclude"`

	// DefaultSchema is the schema assumed for unqualified table names.
	DefaultSchema string `yaml:"default_schema"`

	// TablePrefix replaces "%" in {{%name}} table references.
	TablePrefix string `yaml:"table_prefix"`
}

// DefaultCacheConfig returns a config with caching enabled.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Enabled: true}
}

// Option configures a Schema.
type Option func(*Schema)

// WithLogger sets the logger used for load and invalidation events.
func WithLogger(l *logger.Logger) Option {
	return func(s *Schema) { s.log = l }
}

// WithCacheConfig replaces the default cache configuration.
func WithCacheConfig(cfg CacheConfig) Option {
	return func(s *Schema) {
		s.cfg = cfg
		s.enabled = cfg.Enabled
	}
}

type metaKind string

const (
	kindSchema        metaKind = "schema"
	kindChecks        metaKind = "checks"
	kindDefaultValues metaKind = "defaultValues"
	kindForeignKeys   metaKind = "foreignKeys"
	kindIndexes       metaKind = "indexes"
	kindUniques       metaKind = "uniques"
	kindPrimaryKey    metaKind = "primaryKey"
)

// Schema is the per-connection metadata cache. It is safe for concurrent
// use. Concurrent misses for the same table and kind share one load.
type Schema struct {
	loader Loader
	log    *logger.Logger
	cfg    CacheConfig

	mu          sync.Mutex
	enabled     bool
	tables      map[string]map[metaKind]any // raw table name → kind → value
	schemaNames []string
	tableNames  map[string][]string // schema → table names
	viewNames   map[string][]string // schema → view names

	// epoch advances on Refresh and gens[name] on RefreshTableSchema, so a
	// load that raced an invalidation does not store its result.
	epoch uint64
	gens  map[string]uint64

	group singleflight.Group
}

// New returns a Schema loading through loader.
func New(loader Loader, opts ...Option) *Schema {
	s := &Schema{
		loader:     loader,
		log:        logger.Nop(),
		cfg:        DefaultCacheConfig(),
		enabled:    true,
		tables:     make(map[string]map[metaKind]any),
		tableNames: make(map[string][]string),
		viewNames:  make(map[string][]string),
		gens:       make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Loader returns the introspection hook the cache loads through.
func (s *Schema) Loader() Loader { return s.loader }

// EnableCache turns result reuse on or off. It never clears cached entries.
func (s *Schema) EnableCache(on bool) {
	s.mu.Lock()
	s.enabled = on
	s.mu.Unlock()
}

// IsCacheEnabled reports whether results are reused.
func (s *Schema) IsCacheEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

var prefixedName = regexp.MustCompile(`\{\{(%?)([^}]+?)\}\}`)

// RawTableName expands {{%name}} to the table prefix plus name and strips the
// braces from {{name}}. Other names are returned unchanged.
func (s *Schema) RawTableName(name string) string {
	if !strings.Contains(name, "{{") {
		return name
	}
	return prefixedName.ReplaceAllStringFunc(name, func(m string) string {
		parts := prefixedName.FindStringSubmatch(m)
		if parts[1] == "%" {
			return s.cfg.TablePrefix + parts[2]
		}
		return parts[2]
	})
}

// TableSchema returns the metadata of the named table, or nil when the table
// does not exist. refresh forces a reload even when a cached value exists.
func (s *Schema) TableSchema(ctx context.Context, name string, refresh bool) (*TableSchema, error) {
	return tableMetadata(ctx, s, name, kindSchema, refresh, s.loader.LoadTableSchema)
}

// TableSchemas returns the metadata of every table in schemaName ("" for the
// default schema). Tables that vanish between listing and loading are skipped.
func (s *Schema) TableSchemas(ctx context.Context, schemaName string, refresh bool) ([]*TableSchema, error) {
	names, err := s.TableNames(ctx, schemaName, refresh)
	if err != nil {
		return nil, err
	}
	tables := make([]*TableSchema, 0, len(names))
	for _, name := range names {
		t, err := s.TableSchema(ctx, qualify(schemaName, name), refresh)
		if err != nil {
			return nil, err
		}
		if t != nil {
			tables = append(tables, t)
		}
	}
	return tables, nil
}

// RefreshTableSchema drops the cached schema and metadata of one table.
func (s *Schema) RefreshTableSchema(name string) {
	raw := s.RawTableName(name)
	s.mu.Lock()
	delete(s.tables, raw)
	s.gens[raw]++
	s.mu.Unlock()
	s.log.With().Str("table", raw).Logger().Debug("table schema invalidated")
}

// Refresh drops everything the cache holds.
func (s *Schema) Refresh() {
	s.mu.Lock()
	s.tables = make(map[string]map[metaKind]any)
	s.schemaNames = nil
	s.tableNames = make(map[string][]string)
	s.viewNames = make(map[string][]string)
	s.epoch++
	s.mu.Unlock()
	s.log.Debug("schema cache cleared")
}

// TableChecks returns the CHECK constraints of a table.
func (s *Schema) TableChecks(ctx context.Context, name string, refresh bool) ([]*CheckConstraint, error) {
	l, ok := s.loader.(ChecksLoader)
	if !ok {
		return nil, errs.NotSupported(s.loader, "check constraints")
	}
	return tableMetadata(ctx, s, name, kindChecks, refresh, l.LoadTableChecks)
}

// TableDefaultValues returns the named DEFAULT constraints of a table.
func (s *Schema) TableDefaultValues(ctx context.Context, name string, refresh bool) ([]*DefaultValueConstraint, error) {
	l, ok := s.loader.(DefaultValuesLoader)
	if !ok {
		return nil, errs.NotSupported(s.loader, "default value constraints")
	}
	return tableMetadata(ctx, s, name, kindDefaultValues, refresh, l.LoadTableDefaultValues)
}

// TableForeignKeys returns the FOREIGN KEY constraints of a table.
func (s *Schema) TableForeignKeys(ctx context.Context, name string, refresh bool) ([]*ForeignKeyConstraint, error) {
	l, ok := s.loader.(ForeignKeysLoader)
	if !ok {
		return nil, errs.NotSupported(s.loader, "foreign key constraints")
	}
	return tableMetadata(ctx, s, name, kindForeignKeys, refresh, l.LoadTableForeignKeys)
}

// TableIndexes returns the indexes of a table.
func (s *Schema) TableIndexes(ctx context.Context, name string, refresh bool) ([]*IndexConstraint, error) {
	l, ok := s.loader.(IndexesLoader)
	if !ok {
		return nil, errs.NotSupported(s.loader, "index constraints")
	}
	return tableMetadata(ctx, s, name, kindIndexes, refresh, l.LoadTableIndexes)
}

// TableUniques returns the UNIQUE constraints of a table.
func (s *Schema) TableUniques(ctx context.Context, name string, refresh bool) ([]*Constraint, error) {
	l, ok := s.loader.(UniquesLoader)
	if !ok {
		return nil, errs.NotSupported(s.loader, "unique constraints")
	}
	return tableMetadata(ctx, s, name, kindUniques, refresh, l.LoadTableUniques)
}

// TablePrimaryKey returns the primary key of a table, or nil.
func (s *Schema) TablePrimaryKey(ctx context.Context, name string, refresh bool) (*Constraint, error) {
	l, ok := s.loader.(PrimaryKeyLoader)
	if !ok {
		return nil, errs.NotSupported(s.loader, "primary key constraints")
	}
	return tableMetadata(ctx, s, name, kindPrimaryKey, refresh, l.LoadTablePrimaryKey)
}

// SchemaChecks returns the CHECK constraints of every table, keyed by table.
func (s *Schema) SchemaChecks(ctx context.Context, schemaName string, refresh bool) (map[string][]*CheckConstraint, error) {
	return schemaMetadata(ctx, s, schemaName, refresh, s.TableChecks)
}

// SchemaDefaultValues returns the DEFAULT constraints of every table.
func (s *Schema) SchemaDefaultValues(ctx context.Context, schemaName string, refresh bool) (map[string][]*DefaultValueConstraint, error) {
	return schemaMetadata(ctx, s, schemaName, refresh, s.TableDefaultValues)
}

// SchemaForeignKeys returns the FOREIGN KEY constraints of every table.
func (s *Schema) SchemaForeignKeys(ctx context.Context, schemaName string, refresh bool) (map[string][]*ForeignKeyConstraint, error) {
	return schemaMetadata(ctx, s, schemaName, refresh, s.TableForeignKeys)
}

// SchemaIndexes returns the indexes of every table.
func (s *Schema) SchemaIndexes(ctx context.Context, schemaName string, refresh bool) (map[string][]*IndexConstraint, error) {
	return schemaMetadata(ctx, s, schemaName, refresh, s.TableIndexes)
}

// SchemaUniques returns the UNIQUE constraints of every table.
func (s *Schema) SchemaUniques(ctx context.Context, schemaName string, refresh bool) (map[string][]*Constraint, error) {
	return schemaMetadata(ctx, s, schemaName, refresh, s.TableUniques)
}

// SchemaPrimaryKeys returns the primary key of every table that has one.
func (s *Schema) SchemaPrimaryKeys(ctx context.Context, schemaName string, refresh bool) (map[string]*Constraint, error) {
	pks, err := schemaMetadata(ctx, s, schemaName, refresh, s.TablePrimaryKey)
	if err != nil {
		return nil, err
	}
	for table, pk := range pks {
		if pk == nil {
			delete(pks, table)
		}
	}
	return pks, nil
}

// SchemaNames returns the names of all schemas in the database.
func (s *Schema) SchemaNames(ctx context.Context, refresh bool) ([]string, error) {
	f, ok := s.loader.(SchemaNameFinder)
	if !ok {
		return nil, errs.NotSupported(s.loader, "fetching all schema names")
	}

	s.mu.Lock()
	if s.enabled && !refresh && s.schemaNames != nil {
		names := slices.Clone(s.schemaNames)
		s.mu.Unlock()
		return names, nil
	}
	s.mu.Unlock()

	names, err := f.FindSchemaNames(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	s.mu.Lock()
	if s.enabled {
		s.schemaNames = slices.Clone(names)
	}
	s.mu.Unlock()
	return names, nil
}

// HasSchema reports whether the database has a schema with this name.
func (s *Schema) HasSchema(ctx context.Context, name string, refresh bool) (bool, error) {
	names, err := s.SchemaNames(ctx, refresh)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

// TableNames returns the table names of schemaName ("" for the default).
func (s *Schema) TableNames(ctx context.Context, schemaName string, refresh bool) ([]string, error) {
	f, ok := s.loader.(TableNameFinder)
	if !ok {
		return nil, errs.NotSupported(s.loader, "fetching all table names")
	}
	return s.cachedNames(ctx, s.tableNames, schemaName, refresh, f.FindTableNames)
}

// ViewNames returns the view names of schemaName. A loader that cannot list
// views reports none.
func (s *Schema) ViewNames(ctx context.Context, schemaName string, refresh bool) ([]string, error) {
	f, ok := s.loader.(ViewNameFinder)
	if !ok {
		return []string{}, nil
	}
	return s.cachedNames(ctx, s.viewNames, schemaName, refresh, f.FindViewNames)
}

// ResolveTableName splits name into catalog, schema and table parts.
func (s *Schema) ResolveTableName(ctx context.Context, name string) (*TableSchema, error) {
	r, ok := s.loader.(TableNameResolver)
	if !ok {
		return nil, errs.NotSupported(s.loader, "resolving table names")
	}
	return r.ResolveTableName(ctx, s.RawTableName(name))
}

func (s *Schema) cachedNames(
	ctx context.Context,
	store map[string][]string,
	schemaName string,
	refresh bool,
	find func(context.Context, string) ([]string, error),
) ([]string, error) {
	s.mu.Lock()
	if s.enabled && !refresh {
		if names, ok := store[schemaName]; ok {
			s.mu.Unlock()
			return slices.Clone(names), nil
		}
	}
	epoch := s.epoch
	s.mu.Unlock()

	names, err := find(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}

	s.mu.Lock()
	// Refresh swaps the maps, so look the store up again through the epoch.
	if s.enabled && s.epoch == epoch {
		store[schemaName] = slices.Clone(names)
	}
	s.mu.Unlock()
	return names, nil
}

// tableMetadata serves one kind of per-table metadata from the cache or
// loads it. With caching off (or the table excluded) every call loads.
func tableMetadata[T any](
	ctx context.Context,
	s *Schema,
	name string,
	kind metaKind,
	refresh bool,
	load func(context.Context, string) (T, error),
) (T, error) {
	raw := s.RawTableName(name)

	s.mu.Lock()
	useCache := s.enabled && !slices.Contains(s.cfg.Exclude, raw)
	if useCache && !refresh {
		if v, ok := s.tables[raw][kind]; ok {
			s.mu.Unlock()
			return v.(T), nil
		}
	}
	epoch, gen := s.epoch, s.gens[raw]
	s.mu.Unlock()

	if !useCache {
		return load(ctx, raw)
	}

	key := fmt.Sprintf("%s\x00%s\x00%d\x00%d", kind, raw, epoch, gen)
	v, err, _ := s.group.Do(key, func() (any, error) {
		s.log.With().Str("table", raw).Str("kind", string(kind)).Bool("refresh", refresh).Logger().Debug("loading table metadata")
		v, err := load(ctx, raw)
		if err != nil {
			return v, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch || s.gens[raw] != gen {
			return v, nil
		}
		if ts, ok := any(v).(*TableSchema); ok && ts == nil {
			// unknown table: drop whatever was cached for it
			delete(s.tables, raw)
			return v, nil
		}
		if s.tables[raw] == nil {
			s.tables[raw] = make(map[metaKind]any)
		}
		s.tables[raw][kind] = v
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func schemaMetadata[T any](
	ctx context.Context,
	s *Schema,
	schemaName string,
	refresh bool,
	load func(context.Context, string, bool) (T, error),
) (map[string]T, error) {
	names, err := s.TableNames(ctx, schemaName, refresh)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(names))
	for _, name := range names {
		v, err := load(ctx, qualify(schemaName, name), refresh)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func qualify(schemaName, table string) string {
	if schemaName == "" {
		return table
	}
	return schemaName + "." + table
}
