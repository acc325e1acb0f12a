package fieldspec

import (
	"context"
	"fmt"

	"github.com/koustreak/tabula/internal/cache"
	"github.com/koustreak/tabula/internal/logger"
	"github.com/koustreak/tabula/internal/metadata"
	"github.com/koustreak/tabula/internal/query"
)

// DefaultOptionLimit caps how many rows a relation option list reads.
const DefaultOptionLimit = 500

// SchemaSource resolves schemas and primary key values; *metadata.Registry
// implements it.
type SchemaSource interface {
	GetSchema(ctx context.Context, table string) (*metadata.TableSchema, error)
	ResolvePrimaryKeyValue(ctx context.Context, table string, rec query.Record) (any, bool)
}

// Builder builds field specs and loads relation options.
type Builder struct {
	schemas SchemaSource
	client  query.Client
	options *cache.Cache[[]Option]
	limit   int
	log     *logger.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithOptionLimit caps the rows read per relation option list.
func WithOptionLimit(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.limit = n
		}
	}
}

// WithLogger sets the builder's logger.
func WithLogger(l *logger.Logger) BuilderOption {
	return func(b *Builder) { b.log = l.Component("fieldspec") }
}

// NewBuilder returns a Builder. Option lists are cached in options.
func NewBuilder(schemas SchemaSource, client query.Client, options *cache.Cache[[]Option], opts ...BuilderOption) *Builder {
	b := &Builder{
		schemas: schemas,
		client:  client,
		options: options,
		limit:   DefaultOptionLimit,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildFieldSpec maps column to a field spec bound at binding.
//
// A relation column named by opts.ParentForeignKey becomes a read-only
// descriptive field. Any other relation column becomes a selector whose
// options start loading in the background; the load runs to completion
// and fills the option cache even if ctx is cancelled.
func (b *Builder) BuildFieldSpec(ctx context.Context, column metadata.ColumnDescriptor, binding string, opts BuildOptions) FieldSpec {
	trait := metadata.TraitOf(column.Type)
	display := opts.Mode == ModeDisplay

	spec := FieldSpec{
		Name:     column.Name,
		Label:    column.Label,
		Binding:  binding,
		Kind:     Kind(trait.Control),
		Type:     column.Type,
		Visible:  column.Visible,
		ReadOnly: display || !column.Editable,
		Relation: column.Relation,
		Constraints: Constraints{
			Required:     !display && (opts.Required || column.Required),
			Pattern:      trait.Format,
			LiveValidate: !display && trait.LiveValidate,
			Message:      trait.Message,
		},
	}
	if trait.Precision >= 0 {
		p := trait.Precision
		spec.Constraints.Precision = &p
	}

	if column.Type != metadata.TypeRelation {
		return spec
	}

	if opts.ParentForeignKey != "" && column.Name == opts.ParentForeignKey {
		spec.Kind = KindDescriptive
		spec.ReadOnly = true
		spec.Constraints.Required = false
		return spec
	}

	spec.Options = b.loadAsync(ctx, column.Relation)
	return spec
}

// BuildAll builds a spec for every column of schema, bound under prefix.
func (b *Builder) BuildAll(ctx context.Context, schema *metadata.TableSchema, prefix string, opts BuildOptions) []FieldSpec {
	specs := make([]FieldSpec, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		specs = append(specs, b.BuildFieldSpec(ctx, c, BindingPath(prefix, c.Name), opts))
	}
	return specs
}

func (b *Builder) loadAsync(ctx context.Context, table string) *OptionSet {
	if cached, ok := b.options.Get(cache.OptionsKey(table)); ok {
		return ResolvedOptions(cached, nil)
	}

	set := newOptionSet()
	detached := context.WithoutCancel(ctx)
	go func() {
		options, err := b.Options(detached, table)
		if err != nil {
			b.log.WarnWith("relation options failed to load", err, map[string]any{"table": table})
		}
		set.resolve(options, err)
	}()
	return set
}

// Options returns the {key, text} pairs of table, keyed by its primary key
// and labelled by its title field. Rows without a title fall back to their
// "name" and then to "ID: <key>".
func (b *Builder) Options(ctx context.Context, table string) ([]Option, error) {
	key := cache.OptionsKey(table)
	if cached, ok := b.options.Get(key); ok {
		return cached, nil
	}

	schema, err := b.schemas.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}

	rs, err := b.client.From(table).Limit(b.limit).Fetch(ctx)
	if err != nil {
		return nil, err
	}

	options := make([]Option, 0, rs.Len())
	for _, raw := range rs.Records {
		rec := schema.FromStorage(raw)
		k, ok := b.schemas.ResolvePrimaryKeyValue(ctx, table, rec)
		if !ok {
			continue
		}
		options = append(options, Option{Key: k, Text: optionText(rec, schema.TitleField, k)})
	}

	b.options.Set(key, options)
	return options, nil
}

// InvalidateOptions drops the cached option list of table.
func (b *Builder) InvalidateOptions(table string) {
	b.options.Invalidate(cache.OptionsKey(table))
}

func optionText(rec query.Record, titleField string, key any) string {
	for _, f := range []string{titleField, "name"} {
		if f == "" {
			continue
		}
		if v, ok := rec[f]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("ID: %v", key)
}

// ClearOptions drops every cached option list.
func (b *Builder) ClearOptions() {
	b.options.Clear()
}

// CacheStats reports the option cache counters.
func (b *Builder) CacheStats() cache.Stats {
	return b.options.Stats()
}
