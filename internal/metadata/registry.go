package metadata

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/koustreak/tabula/internal/cache"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/logger"
	"github.com/koustreak/tabula/internal/query"
)

// SharedStore is a byte store shared between processes, such as
// cache.RedisStore. Get reports a miss with an errs.ErrKindNotFound error.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Source names where a schema came from, for logs.
type Source string

const (
	SourceCache    Source = "cache"
	SourceShared   Source = "shared"
	SourceStatic   Source = "static"
	SourceInferred Source = "inferred"
)

// Registry resolves and normalizes table schemas. Lookups go cache first,
// then the shared store, then the static source, and finally inference.
// Every schema it returns is a private copy.
type Registry struct {
	engine      *Engine
	cache       *cache.Cache[*TableSchema]
	static      StaticSource
	shared      SharedStore
	sharedTTL   time.Duration
	namespacePK bool
	refresh     func(ctx context.Context) error
	log         *logger.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithStatic sets the static schema source.
func WithStatic(s StaticSource) RegistryOption {
	return func(r *Registry) { r.static = s }
}

// WithShared sets the cross-process schema store.
func WithShared(s SharedStore, ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.shared = s
		r.sharedTTL = ttl
	}
}

// WithPrimaryKeyNamespacing toggles rewriting a generic "id" primary key
// to "{table}_id". On by default.
func WithPrimaryKeyNamespacing(on bool) RegistryOption {
	return func(r *Registry) { r.namespacePK = on }
}

// WithTableRefresh sets a function ClearAll calls to re-list the backend's
// tables, so tables created since startup become relation targets.
func WithTableRefresh(fn func(ctx context.Context) error) RegistryOption {
	return func(r *Registry) { r.refresh = fn }
}

// WithRegistryLogger sets the registry's logger.
func WithRegistryLogger(l *logger.Logger) RegistryOption {
	return func(r *Registry) { r.log = l.Component("registry") }
}

// NewRegistry returns a Registry inferring through engine and caching in c.
func NewRegistry(engine *Engine, c *cache.Cache[*TableSchema], opts ...RegistryOption) *Registry {
	r := &Registry{
		engine:      engine,
		cache:       c,
		namespacePK: true,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetSchema returns the normalized schema of table.
//
// Concurrent misses for the same table each resolve independently and the
// last one stored wins.
func (r *Registry) GetSchema(ctx context.Context, table string) (*TableSchema, error) {
	if table == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "table name is required")
	}

	key := cache.SchemaKey(table)
	if s, ok := r.cache.Get(key); ok {
		return s.Clone(), nil
	}

	schema, source := r.resolve(ctx, table)
	r.cache.Set(key, schema)
	if source != SourceShared {
		r.publish(ctx, key, schema)
	}

	r.log.DebugWith("schema resolved", map[string]any{
		"table":       table,
		"source":      string(source),
		"primary_key": schema.PrimaryKey,
	})
	return schema.Clone(), nil
}

func (r *Registry) resolve(ctx context.Context, table string) (*TableSchema, Source) {
	if s, ok := r.fromShared(ctx, table); ok {
		return s, SourceShared
	}
	if r.static != nil {
		if s, ok := r.static.Schema(table); ok {
			return r.Normalize(table, s), SourceStatic
		}
	}
	return r.Normalize(table, r.engine.Infer(ctx, table)), SourceInferred
}

func (r *Registry) fromShared(ctx context.Context, table string) (*TableSchema, bool) {
	if r.shared == nil {
		return nil, false
	}
	data, err := r.shared.Get(ctx, cache.SchemaKey(table))
	if err != nil {
		if !errs.IsNotFound(err) {
			r.log.WarnWith("shared schema read failed", err, map[string]any{"table": table})
		}
		return nil, false
	}
	var s TableSchema
	if err := json.Unmarshal(data, &s); err != nil {
		r.log.WarnWith("discarding corrupt shared schema", err, map[string]any{"table": table})
		return nil, false
	}
	return &s, true
}

func (r *Registry) publish(ctx context.Context, key string, s *TableSchema) {
	if r.shared == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		r.log.WarnWith("cannot encode schema", err, map[string]any{"key": key})
		return
	}
	if err := r.shared.Set(ctx, key, data, r.sharedTTL); err != nil {
		r.log.WarnWith("shared schema write failed", err, map[string]any{"key": key})
	}
}

// Normalize fills in labels and defaults and applies the primary key
// naming convention: a primary key literally called "id" becomes
// "{table}_id" labelled "{Table} ID". The renamed column remembers its
// backend name in Source.
func (r *Registry) Normalize(table string, in *TableSchema) *TableSchema {
	s := in.Clone()
	s.Table = table

	for i := range s.Columns {
		c := &s.Columns[i]
		if c.Type == "" {
			c.Type = TypeString
		}
		if c.Label == "" {
			c.Label = Humanize(c.Name)
		}
	}
	if s.TitleField == "" {
		s.TitleField = s.PrimaryKey
	}

	if r.namespacePK && s.PrimaryKey == "id" {
		r.namespacePrimaryKey(s)
	}
	return s
}

func (r *Registry) namespacePrimaryKey(s *TableSchema) {
	namespaced := s.Table + "_id"
	if _, clash := s.Column(namespaced); clash {
		r.log.DebugWith("primary key left as id, namespaced column exists", map[string]any{"table": s.Table})
		return
	}

	s.PrimaryKey = namespaced
	for i := range s.Columns {
		c := &s.Columns[i]
		if c.Name != "id" {
			continue
		}
		c.Source = c.StorageName()
		c.Name = namespaced
		c.Label = Humanize(s.Table) + " ID"
	}
	if s.TitleField == "id" {
		s.TitleField = namespaced
	}
	if s.SubtitleField == "id" {
		s.SubtitleField = namespaced
	}
}

// BuildPrimaryKeyFilter adds an equality filter on table's primary key to
// b. If the schema has no primary key, "{table}_id" is assumed.
func (r *Registry) BuildPrimaryKeyFilter(ctx context.Context, b query.Builder, table string, id any) (query.Builder, error) {
	column := table + "_id"
	schema, err := r.GetSchema(ctx, table)
	if err == nil && schema.PrimaryKey != "" {
		column = schema.StorageName(schema.PrimaryKey)
	}
	if err != nil && errs.IsInvalidInput(err) {
		return nil, err
	}
	return b.Eq(column, id), nil
}

// ResolvePrimaryKeyValue finds rec's primary key value. It tries the
// schema's primary key, "{table}_{primaryKey}", "ID", "key" and "uuid",
// then falls back to the first field of rec in schema column order (or
// sorted order for fields the schema does not know). The second result is
// false only when rec has no non-nil value at all.
func (r *Registry) ResolvePrimaryKeyValue(ctx context.Context, table string, rec query.Record) (any, bool) {
	var (
		pk      string
		columns []string
	)
	if schema, err := r.GetSchema(ctx, table); err == nil {
		pk = schema.PrimaryKey
		columns = schema.ColumnNames()
		rec = schema.FromStorage(rec)
	}

	var chain []string
	if pk != "" {
		chain = append(chain, pk, table+"_"+pk)
	}
	chain = append(chain, "ID", "key", "uuid")
	for _, k := range chain {
		if v, ok := rec[k]; ok && v != nil {
			return v, true
		}
	}

	for _, k := range columns {
		if v, ok := rec[k]; ok && v != nil {
			return v, true
		}
	}
	for _, k := range rec.Keys() {
		if v := rec[k]; v != nil {
			return v, true
		}
	}
	return nil, false
}

// ClearCache drops everything cached about table, including the inference
// memo and the shared copy.
func (r *Registry) ClearCache(ctx context.Context, table string) {
	key := cache.SchemaKey(table)
	r.cache.Invalidate(key)
	r.engine.Clear(table)
	if r.shared != nil {
		if err := r.shared.Delete(ctx, key); err != nil {
			r.log.WarnWith("shared schema delete failed", err, map[string]any{"table": table})
		}
	}
}

// ClearAll drops every cached schema and re-lists the known tables.
func (r *Registry) ClearAll(ctx context.Context) {
	if r.refresh != nil {
		if err := r.refresh(ctx); err != nil {
			r.log.WarnWith("table refresh failed", err, nil)
		}
	}
	r.cache.Clear()
	r.engine.ClearAll()
	if r.shared != nil {
		if err := r.shared.Clear(ctx); err != nil {
			r.log.WarnWith("shared schema clear failed", err, nil)
		}
	}
}

// Tables lists the statically declared tables together with any the
// engine knows about, sorted and without duplicates.
func (r *Registry) Tables() []string {
	set := make(map[string]bool)
	if r.static != nil {
		for _, t := range r.static.Tables() {
			set[t] = true
		}
	}
	if r.engine.knownTables != nil {
		for _, t := range r.engine.knownTables() {
			set[t] = true
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// CacheStats reports the schema cache counters.
func (r *Registry) CacheStats() cache.Stats {
	return r.cache.Stats()
}
