// Package sqlclient implements query.Client on top of a database.DB,
// rendering statements with the dialect-aware builders in package database.
package sqlclient

import (
	"context"
	"time"

	"github.com/koustreak/tabula/internal/database"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/logger"
	"github.com/koustreak/tabula/internal/query"
)

// Client is a query.Client backed by a SQL database.
type Client struct {
	db      database.DB
	timeout time.Duration
	log     *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithQueryTimeout bounds every statement the client issues. Zero disables
// the bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger used for statement tracing at debug level.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l.Component("sqlclient") }
}

// New returns a Client issuing statements on db.
func New(db database.DB, opts ...Option) *Client {
	c := &Client{db: db, log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// From starts a builder against table.
func (c *Client) From(table string) query.Builder {
	return &builder{client: c, table: table}
}

type order struct {
	column string
	desc   bool
}

type builder struct {
	client  *Client
	table   string
	columns []string
	preds   []query.Predicate
	orders  []order
	limit   int
	offset  int
}

func (b *builder) Select(columns ...string) query.Builder {
	b.columns = columns
	return b
}

func (b *builder) Eq(column string, value any) query.Builder {
	b.preds = append(b.preds, query.Predicate{Column: column, Value: value})
	return b
}

func (b *builder) OrderBy(column string, desc bool) query.Builder {
	b.orders = append(b.orders, order{column, desc})
	return b
}

func (b *builder) Limit(n int) query.Builder {
	b.limit = n
	return b
}

func (b *builder) Offset(n int) query.Builder {
	b.offset = n
	return b
}

func (b *builder) Fetch(ctx context.Context) (*query.ResultSet, error) {
	sel := database.Select(b.table, b.client.db.Dialect()).Columns(b.columns...)
	for _, p := range b.preds {
		sel.Where(p.Column, "=", p.Value)
	}
	for _, o := range b.orders {
		dir := database.Asc
		if o.desc {
			dir = database.Desc
		}
		sel.OrderBy(o.column, dir)
	}
	if b.limit > 0 {
		sel.Limit(b.limit)
	}
	if b.offset > 0 {
		sel.Offset(b.offset)
	}

	sqlText, args, err := sel.Build()
	if err != nil {
		return nil, err
	}
	return b.query(ctx, sqlText, args)
}

func (b *builder) Single(ctx context.Context) (query.Record, error) {
	b.limit = 1
	rs, err := b.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if rs.Len() == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "no matching row in %s", b.table)
	}
	return rs.Records[0], nil
}

func (b *builder) Insert(ctx context.Context, rec query.Record) (query.Record, error) {
	dialect := b.client.db.Dialect()
	sqlText, args, err := database.Insert(b.table, dialect).
		Values(rec).
		Returning().
		Build()
	if err != nil {
		return nil, err
	}

	if !dialect.SupportsReturning() {
		if _, err := b.exec(ctx, sqlText, args); err != nil {
			return nil, err
		}
		return rec.Clone(), nil
	}

	rs, err := b.query(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	if rs.Len() == 0 {
		return rec.Clone(), nil
	}
	return rs.Records[0], nil
}

func (b *builder) Update(ctx context.Context, rec query.Record) (int64, error) {
	upd := database.Update(b.table, b.client.db.Dialect()).Set(rec)
	for _, p := range b.preds {
		upd.Where(p.Column, "=", p.Value)
	}
	sqlText, args, err := upd.Build()
	if err != nil {
		return 0, err
	}
	return b.exec(ctx, sqlText, args)
}

func (b *builder) Delete(ctx context.Context) (int64, error) {
	del := database.Delete(b.table, b.client.db.Dialect())
	for _, p := range b.preds {
		del.Where(p.Column, "=", p.Value)
	}
	sqlText, args, err := del.Build()
	if err != nil {
		return 0, err
	}
	return b.exec(ctx, sqlText, args)
}

func (b *builder) query(ctx context.Context, sqlText string, args []any) (*query.ResultSet, error) {
	ctx, cancel := b.client.bound(ctx)
	defer cancel()

	b.client.log.DebugWith("query", map[string]any{"table": b.table, "sql": sqlText})
	rows, err := b.client.db.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	cols, raw, err := database.ScanRows(rows)
	if err != nil {
		return nil, err
	}

	records := make([]query.Record, len(raw))
	for i, r := range raw {
		records[i] = r
	}
	return &query.ResultSet{Columns: cols, Records: records}, nil
}

func (b *builder) exec(ctx context.Context, sqlText string, args []any) (int64, error) {
	ctx, cancel := b.client.bound(ctx)
	defer cancel()

	b.client.log.DebugWith("exec", map[string]any{"table": b.table, "sql": sqlText})
	return b.client.db.Exec(ctx, sqlText, args...)
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
