package memory

import (
	"context"
	"sort"

	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/query"
)

type order struct {
	column string
	desc   bool
}

type builder struct {
	store   *Store
	table   string
	columns []string
	preds   []query.Predicate
	orders  []order
	limit   int
	offset  int
}

func (b *builder) Select(columns ...string) query.Builder {
	if len(columns) == 1 && columns[0] == "*" {
		columns = nil
	}
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
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "fetch cancelled", err)
	}

	s := b.store
	s.mu.Lock()
	s.fetches[b.table]++
	t, err := s.lookup(b.table)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var hits []query.Record
	for _, r := range t.rows {
		if t.matches(r, b.preds) {
			hits = append(hits, r)
		}
	}
	columns := t.columns
	s.mu.Unlock()

	if len(b.orders) > 0 {
		sort.SliceStable(hits, func(i, j int) bool {
			for _, o := range b.orders {
				a, c := hits[i][o.column], hits[j][o.column]
				if equal(a, c) {
					continue
				}
				if o.desc {
					return less(c, a)
				}
				return less(a, c)
			}
			return false
		})
	}

	if b.offset > 0 {
		if b.offset >= len(hits) {
			hits = nil
		} else {
			hits = hits[b.offset:]
		}
	}
	if b.limit > 0 && len(hits) > b.limit {
		hits = hits[:b.limit]
	}

	if len(b.columns) > 0 {
		columns = b.columns
	}
	out := &query.ResultSet{
		Columns: append([]string(nil), columns...),
		Records: make([]query.Record, len(hits)),
	}
	for i, r := range hits {
		out.Records[i] = project(r, b.columns)
	}
	return out, nil
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
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "insert cancelled", err)
	}
	if len(rec) == 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "insert requires at least one value")
	}

	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(b.table)
	if err != nil {
		return nil, err
	}

	row := rec.Clone()
	if pk := t.primaryKey; pk != "" {
		if row[pk] == nil {
			row[pk] = t.nextID
		}
		for _, existing := range t.rows {
			if equal(existing[pk], row[pk]) {
				return nil, errs.Newf(errs.ErrKindConflict, "duplicate key %v in %s", row[pk], b.table)
			}
		}
	}
	t.add(row)
	return row.Clone(), nil
}

func (b *builder) Update(ctx context.Context, rec query.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.Wrap(errs.ErrKindTimeout, "update cancelled", err)
	}
	if len(rec) == 0 {
		return 0, errs.New(errs.ErrKindInvalidInput, "update requires at least one value")
	}
	if len(b.preds) == 0 {
		return 0, errs.New(errs.ErrKindInvalidInput, "refusing to update without a filter")
	}

	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(b.table)
	if err != nil {
		return 0, err
	}

	var n int64
	for i, r := range t.rows {
		if !t.matches(r, b.preds) {
			continue
		}
		// Rows are replaced, never mutated, so records handed out earlier
		// keep their values.
		next := r.Clone()
		for k, v := range rec {
			next[k] = v
		}
		t.rows[i] = next
		n++
	}
	return n, nil
}

func (b *builder) Delete(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.Wrap(errs.ErrKindTimeout, "delete cancelled", err)
	}
	if len(b.preds) == 0 {
		return 0, errs.New(errs.ErrKindInvalidInput, "refusing to delete without a filter")
	}

	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(b.table)
	if err != nil {
		return 0, err
	}

	kept := t.rows[:0:0]
	for _, r := range t.rows {
		if !t.matches(r, b.preds) {
			kept = append(kept, r)
		}
	}
	n := int64(len(t.rows) - len(kept))
	t.rows = kept
	return n, nil
}

func project(r query.Record, columns []string) query.Record {
	if len(columns) == 0 {
		return r.Clone()
	}
	out := make(query.Record, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}
