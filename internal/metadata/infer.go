package metadata

import (
	"context"
	"strings"
	"sync"

	"github.com/koustreak/tabula/internal/logger"
	"github.com/koustreak/tabula/internal/query"
)

// DefaultSampleSize is how many rows Infer reads when not configured.
const DefaultSampleSize = 10

var (
	primaryKeyCandidates = []string{"id", "{table}_id", "uuid", "key", "code"}
	titleCandidates      = []string{"name", "title", "label", "description", "summary"}
	subtitleCandidates   = []string{"subtitle", "email", "description", "summary", "status", "type", "category"}
)

// Engine infers table schemas from sample rows. Results are memoized per
// table until Clear or ClearAll.
//
// Concurrent Infer calls for the same table are not coalesced: each one
// samples the backend and the last to finish wins the memo.
type Engine struct {
	client      query.Client
	sampleSize  int
	strict      bool
	knownTables func() []string
	log         *logger.Logger

	mu   sync.Mutex
	memo map[string]*TableSchema
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSampleSize sets how many rows are sampled per table.
func WithSampleSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.sampleSize = n
		}
	}
}

// WithStrictRelationNames limits relation detection to foreign-key-shaped
// names, ignoring what the sampled values look like.
func WithStrictRelationNames(strict bool) EngineOption {
	return func(e *Engine) { e.strict = strict }
}

// WithKnownTables supplies the table names a value-based relation may
// point at. Without it only foreign-key-shaped names become relations.
func WithKnownTables(fn func() []string) EngineOption {
	return func(e *Engine) { e.knownTables = fn }
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(l *logger.Logger) EngineOption {
	return func(e *Engine) { e.log = l.Component("inference") }
}

// NewEngine returns an Engine sampling through client.
func NewEngine(client query.Client, opts ...EngineOption) *Engine {
	e := &Engine{
		client:     client,
		sampleSize: DefaultSampleSize,
		log:        logger.Nop(),
		memo:       make(map[string]*TableSchema),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Infer returns the schema of table. It never fails: a table without rows
// gets DefaultSchema, and so does one whose sample cannot be read. Only
// successful samples are memoized, so a backend outage does not pin the
// default schema.
func (e *Engine) Infer(ctx context.Context, table string) *TableSchema {
	e.mu.Lock()
	if s, ok := e.memo[table]; ok {
		e.mu.Unlock()
		return s.Clone()
	}
	e.mu.Unlock()

	rs, err := e.client.From(table).Select("*").Limit(e.sampleSize).Fetch(ctx)
	if err != nil {
		e.log.WarnWith("sample fetch failed, using default schema", err, map[string]any{"table": table})
		return DefaultSchema(table)
	}

	schema := e.fromSample(table, rs)

	e.mu.Lock()
	e.memo[table] = schema
	e.mu.Unlock()

	e.log.DebugWith("schema inferred", map[string]any{
		"table":       table,
		"rows":        rs.Len(),
		"primary_key": schema.PrimaryKey,
		"relations":   len(schema.Relations),
	})
	return schema.Clone()
}

// Clear forgets the memoized schema of table.
func (e *Engine) Clear(table string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.memo, table)
}

// ClearAll forgets every memoized schema.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memo = make(map[string]*TableSchema)
}

func (e *Engine) fromSample(table string, rs *query.ResultSet) *TableSchema {
	if rs.Len() == 0 {
		return DefaultSchema(table)
	}
	fields := rs.FieldNames()
	if len(fields) == 0 {
		return DefaultSchema(table)
	}

	pk := pickField(fields, table, primaryKeyCandidates, "")
	if pk == "" {
		pk = fields[0]
	}
	title := pickField(fields, table, titleCandidates, "")
	if title == "" {
		title = pk
	}

	schema := &TableSchema{
		Table:         table,
		PrimaryKey:    pk,
		TitleField:    title,
		SubtitleField: pickField(fields, table, subtitleCandidates, title),
		Columns:       make([]ColumnDescriptor, 0, len(fields)),
		Relations:     []Relation{},
	}

	known := e.known()
	for _, f := range fields {
		samples := columnSamples(rs.Records, f)
		col, hinted := describeColumn(f, samples)

		if f == pk {
			col.Editable = false
			col.Required = false
		} else if target := e.relationTarget(f, hinted, col.Type, samples, known); target != "" && target != table {
			col.Type = TypeRelation
			col.Relation = target
			schema.Relations = append(schema.Relations, Relation{Table: target, ForeignKey: f})
		}
		schema.Columns = append(schema.Columns, col)
	}
	return schema
}

// describeColumn builds a column from its name, refining a plain string
// classification with the first non-nil sample value.
func describeColumn(field string, samples []any) (ColumnDescriptor, bool) {
	col := ColumnDescriptor{
		Name:     field,
		Label:    Humanize(field),
		Type:     TypeString,
		Visible:  true,
		Editable: true,
	}
	hint, hinted := ClassifyByName(field)
	if hinted {
		col.Type = hint.Type
		col.Visible = hint.Visible
		col.Editable = hint.Editable
		col.Required = hint.Required
	}
	if col.Type == TypeString {
		if v := firstNonNil(samples); v != nil {
			col.Type = ClassifyByValue(v)
		}
	}
	return col, hinted
}

// relationTarget returns the table field references, or "" if it is not
// a relation. A foreign-key-shaped name counts whatever type its words
// suggest ("comment_id", "tax_id"), except for secrets such as "api_key".
// Its target is the known table it names, singular or plural, or the bare
// stripped name when no table matches. The value rule only applies to
// unhinted string or integer columns whose name matches a known table.
func (e *Engine) relationTarget(field string, hinted bool, t ColumnType, samples []any, known map[string]bool) string {
	if t == TypePassword {
		return ""
	}
	if NameSuggestsRelation(field) {
		base := RelatedTableFromName(field)
		if t := knownTable(base, known); t != "" {
			return t
		}
		return base
	}
	if t != TypeString && t != TypeInteger {
		return ""
	}
	if e.strict || hinted || len(known) == 0 || !ValuesSuggestRelation(samples) {
		return ""
	}
	return knownTable(RelatedTableFromName(field), known)
}

// knownTable matches base, or its plural, against the known tables.
func knownTable(base string, known map[string]bool) string {
	for _, candidate := range []string{base, base + "s", base + "es"} {
		if known[candidate] {
			return candidate
		}
	}
	return ""
}

func (e *Engine) known() map[string]bool {
	if e.knownTables == nil {
		return nil
	}
	names := e.knownTables()
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// pickField returns the first candidate present in fields, skipping
// exclude. "{table}" in a candidate is replaced by table.
func pickField(fields []string, table string, candidates []string, exclude string) string {
	present := make(map[string]bool, len(fields))
	for _, f := range fields {
		present[f] = true
	}
	for _, c := range candidates {
		c = strings.ReplaceAll(c, "{table}", table)
		if c != exclude && present[c] {
			return c
		}
	}
	return ""
}

func columnSamples(rows []query.Record, field string) []any {
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, r[field])
	}
	return out
}

func firstNonNil(vs []any) any {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}
