// Package entity reads and writes table rows through the query client,
// caching reads and invalidating them when a write succeeds.
package entity

import (
	"context"
	"sort"
	"sync"

	"github.com/koustreak/tabula/internal/cache"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/logger"
	"github.com/koustreak/tabula/internal/metadata"
	"github.com/koustreak/tabula/internal/query"
	"github.com/koustreak/tabula/internal/validation"
)

// SchemaSource is the part of metadata.Registry the service needs.
type SchemaSource interface {
	GetSchema(ctx context.Context, table string) (*metadata.TableSchema, error)
	BuildPrimaryKeyFilter(ctx context.Context, b query.Builder, table string, id any) (query.Builder, error)
	ResolvePrimaryKeyValue(ctx context.Context, table string, rec query.Record) (any, bool)
}

// WriteHook runs after every successful write to table.
type WriteHook func(ctx context.Context, table string)

// Service is the data-access layer in front of the query client. Rows are
// exchanged under schema column names; the translation to backend names
// happens here.
type Service struct {
	schemas SchemaSource
	client  query.Client
	rows    *cache.Cache[query.Record]
	lists   *cache.Cache[*query.ResultSet]
	log     *logger.Logger

	mu    sync.RWMutex
	hooks []WriteHook
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l.Component("entity") }
}

// NewService returns a Service. rows caches single rows and lists caches
// list results.
func NewService(schemas SchemaSource, client query.Client, rows *cache.Cache[query.Record], lists *cache.Cache[*query.ResultSet], opts ...Option) *Service {
	s := &Service{
		schemas: schemas,
		client:  client,
		rows:    rows,
		lists:   lists,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnWrite registers fn to run after each successful Create, Update or
// Delete, once the caches have been invalidated.
func (s *Service) OnWrite(fn WriteHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Get returns the row of table whose primary key is id.
func (s *Service) Get(ctx context.Context, table string, id any) (query.Record, error) {
	key := cache.EntityKey(table, id)
	if rec, ok := s.rows.Get(key); ok {
		return rec.Clone(), nil
	}

	schema, err := s.schemas.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	b, err := s.schemas.BuildPrimaryKeyFilter(ctx, s.client.From(table), table, id)
	if err != nil {
		return nil, err
	}
	row, err := b.Single(ctx)
	if err != nil {
		return nil, err
	}

	rec := schema.FromStorage(row)
	s.rows.Set(key, rec)
	return rec.Clone(), nil
}

// List returns the rows of table matching q. Filter and order columns are
// schema names.
func (s *Service) List(ctx context.Context, table string, q cache.ListQuery) (*query.ResultSet, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "limit and offset must not be negative")
	}

	key := cache.ListKey(table, q)
	if rs, ok := s.lists.Get(key); ok {
		return cloneResult(rs), nil
	}

	schema, err := s.schemas.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}

	b := s.client.From(table)
	cols := make([]string, 0, len(q.Filters))
	for c := range q.Filters {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		b = b.Eq(schema.StorageName(c), q.Filters[c])
	}
	if q.OrderBy != "" {
		b = b.OrderBy(schema.StorageName(q.OrderBy), q.Desc)
	}
	if q.Limit > 0 {
		b = b.Limit(q.Limit)
	}
	if q.Offset > 0 {
		b = b.Offset(q.Offset)
	}

	raw, err := b.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	rs := &query.ResultSet{
		Columns: make([]string, len(raw.Columns)),
		Records: make([]query.Record, len(raw.Records)),
	}
	names := schemaNames(schema)
	for i, c := range raw.Columns {
		if n, ok := names[c]; ok {
			c = n
		}
		rs.Columns[i] = c
	}
	for i, r := range raw.Records {
		rs.Records[i] = schema.FromStorage(r)
	}

	s.lists.Set(key, rs)
	return cloneResult(rs), nil
}

// Create validates rec and inserts it. A non-empty ErrorMap means nothing
// was written. An empty primary key value is dropped so the backend can
// assign one.
func (s *Service) Create(ctx context.Context, table string, rec query.Record) (query.Record, validation.ErrorMap, error) {
	schema, err := s.schemas.GetSchema(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	if problems := validation.Validate(schema, rec); !problems.Valid() {
		return nil, problems, nil
	}

	in := rec.Clone()
	if v, ok := in[schema.PrimaryKey]; ok && validation.IsEmpty(v) {
		delete(in, schema.PrimaryKey)
	}

	row, err := s.client.From(table).Insert(ctx, schema.ToStorage(in))
	if err != nil {
		s.log.WarnWith("insert failed", err, map[string]any{"table": table})
		return nil, nil, err
	}
	out := schema.FromStorage(row)

	var id any
	if v, ok := s.schemas.ResolvePrimaryKeyValue(ctx, table, row); ok {
		id = v
	}
	s.written(ctx, table, id)
	return out, nil, nil
}

// Update validates the fields present in rec and writes them to the row
// whose primary key is id. Fields absent from rec are left as they are, so
// only supplied fields can fail validation. The primary key itself is
// never rewritten.
func (s *Service) Update(ctx context.Context, table string, id any, rec query.Record) (int64, validation.ErrorMap, error) {
	schema, err := s.schemas.GetSchema(ctx, table)
	if err != nil {
		return 0, nil, err
	}

	problems := validation.Validate(schema, rec)
	for field := range problems {
		if _, supplied := rec[field]; !supplied {
			delete(problems, field)
		}
	}
	if !problems.Valid() {
		return 0, problems, nil
	}

	in := rec.Clone()
	delete(in, schema.PrimaryKey)
	if len(in) == 0 {
		return 0, nil, errs.New(errs.ErrKindInvalidInput, "nothing to update")
	}

	b, err := s.schemas.BuildPrimaryKeyFilter(ctx, s.client.From(table), table, id)
	if err != nil {
		return 0, nil, err
	}
	n, err := b.Update(ctx, schema.ToStorage(in))
	if err != nil {
		s.log.WarnWith("update failed", err, map[string]any{"table": table, "id": id})
		return 0, nil, err
	}
	if n == 0 {
		return 0, nil, errs.Newf(errs.ErrKindNotFound, "%s row %v not found", table, id)
	}

	s.written(ctx, table, id)
	return n, nil, nil
}

// Delete removes the row of table whose primary key is id.
func (s *Service) Delete(ctx context.Context, table string, id any) (int64, error) {
	b, err := s.schemas.BuildPrimaryKeyFilter(ctx, s.client.From(table), table, id)
	if err != nil {
		return 0, err
	}
	n, err := b.Delete(ctx)
	if err != nil {
		s.log.WarnWith("delete failed", err, map[string]any{"table": table, "id": id})
		return 0, err
	}
	if n == 0 {
		return 0, errs.Newf(errs.ErrKindNotFound, "%s row %v not found", table, id)
	}

	s.written(ctx, table, id)
	return n, nil
}

// Invalidate drops every cached row and list of table.
func (s *Service) Invalidate(table string) {
	s.rows.InvalidatePrefix(cache.EntityPrefix(table))
	s.lists.InvalidatePrefix(cache.ListPrefix(table))
}

// Clear drops every cached row and list.
func (s *Service) Clear() {
	s.rows.Clear()
	s.lists.Clear()
}

// CacheStats reports the row and list cache counters.
func (s *Service) CacheStats() (rows, lists cache.Stats) {
	return s.rows.Stats(), s.lists.Stats()
}

// written runs after a successful write: the row's entry and every list of
// table go first, then the hooks.
func (s *Service) written(ctx context.Context, table string, id any) {
	if id != nil {
		s.rows.Invalidate(cache.EntityKey(table, id))
	}
	dropped := s.lists.InvalidatePrefix(cache.ListPrefix(table))

	s.log.DebugWith("caches invalidated", map[string]any{
		"table":         table,
		"id":            id,
		"lists_dropped": dropped,
	})

	s.mu.RLock()
	hooks := append([]WriteHook(nil), s.hooks...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, table)
	}
}

func schemaNames(schema *metadata.TableSchema) map[string]string {
	names := make(map[string]string)
	for _, c := range schema.Columns {
		if c.Source != "" && c.Source != c.Name {
			names[c.Source] = c.Name
		}
	}
	return names
}

func cloneResult(rs *query.ResultSet) *query.ResultSet {
	out := &query.ResultSet{
		Columns: append([]string(nil), rs.Columns...),
		Records: make([]query.Record, len(rs.Records)),
	}
	for i, r := range rs.Records {
		out.Records[i] = r.Clone()
	}
	return out
}
