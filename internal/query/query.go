// Package query defines the backend-neutral query client the metadata
// engine and the entity service talk to.
//
// A Client hands out a fresh Builder per table. Builders are single-use:
// chain filters, then call exactly one terminal method (Fetch, Single,
// Insert, Update or Delete).
//
//	rs, err := client.From("orders").
//	    Select("orders_id", "reference").
//	    Eq("status", "open").
//	    Limit(10).
//	    Fetch(ctx)
package query

import (
	"context"
	"sort"
)

// Record is one row keyed by column name.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns r's keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResultSet is the result of Fetch. Columns keeps the backend's column
// order, which Go maps cannot carry.
type ResultSet struct {
	Columns []string
	Records []Record
}

// Len returns the number of records.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Records)
}

// FieldNames returns the column set of the first record, in column order.
// Falls back to the first record's sorted keys when Columns is empty.
func (rs *ResultSet) FieldNames() []string {
	if rs.Len() == 0 {
		return nil
	}
	first := rs.Records[0]
	if len(rs.Columns) == 0 {
		return first.Keys()
	}
	names := make([]string, 0, len(rs.Columns))
	for _, c := range rs.Columns {
		if _, ok := first[c]; ok {
			names = append(names, c)
		}
	}
	return names
}

// Predicate is an equality filter collected by Builder.Eq.
type Predicate struct {
	Column string
	Value  any
}

// Client opens builders against a backend.
type Client interface {
	From(table string) Builder
}

// Builder accumulates a query against one table.
type Builder interface {
	Select(columns ...string) Builder
	Eq(column string, value any) Builder
	OrderBy(column string, desc bool) Builder
	Limit(n int) Builder
	Offset(n int) Builder

	// Fetch returns every matching row.
	Fetch(ctx context.Context) (*ResultSet, error)

	// Single returns exactly one matching row, or an errs.ErrKindNotFound
	// error when none matches.
	Single(ctx context.Context) (Record, error)

	// Insert writes rec and returns the stored row as the backend sees it.
	Insert(ctx context.Context, rec Record) (Record, error)

	// Update writes rec to every matching row and reports how many changed.
	Update(ctx context.Context, rec Record) (int64, error)

	// Delete removes every matching row and reports how many were removed.
	Delete(ctx context.Context) (int64, error)
}
