// Package memory implements query.Client as an in-process table store.
//
// It backs the "memory" database driver for demos and local runs, and
// gives tests a query client whose fetch counts and failures they control.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/query"
)

type table struct {
	columns    []string
	primaryKey string
	rows       []query.Record
	nextID     int64
}

// Store is a concurrency-safe set of in-memory tables.
type Store struct {
	mu      sync.RWMutex
	tables  map[string]*table
	failing map[string]error
	fetches map[string]int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tables:  make(map[string]*table),
		failing: make(map[string]error),
		fetches: make(map[string]int),
	}
}

// CreateTable registers a table with the given column order. When
// primaryKey is set, inserts that omit it are assigned the next integer.
// Re-creating a table drops its rows.
func (s *Store) CreateTable(name, primaryKey string, columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = &table{
		columns:    append([]string(nil), columns...),
		primaryKey: primaryKey,
		nextID:     1,
	}
}

// Put appends rows to an existing table, bypassing primary key assignment.
// Columns not yet known are appended to the column order.
func (s *Store) Put(name string, rows ...query.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.ensure(name)
	for _, r := range rows {
		t.add(r.Clone())
	}
}

// Tables lists the table names in sorted order.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fail makes every subsequent operation on table return err until Heal.
func (s *Store) Fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[name] = err
}

// Heal clears a failure installed by Fail.
func (s *Store) Heal(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failing, name)
}

// Fetches reports how many reads (Fetch or Single) reached table.
func (s *Store) Fetches(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetches[name]
}

// From starts a builder against table.
func (s *Store) From(name string) query.Builder {
	return &builder{store: s, table: name}
}

func (s *Store) ensure(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{nextID: 1}
		s.tables[name] = t
	}
	return t
}

func (t *table) add(r query.Record) {
	known := make(map[string]bool, len(t.columns))
	for _, c := range t.columns {
		known[c] = true
	}
	for _, k := range r.Keys() {
		if !known[k] {
			t.columns = append(t.columns, k)
		}
	}
	if t.primaryKey != "" {
		if n, ok := toFloat(r[t.primaryKey]); ok && int64(n) >= t.nextID {
			t.nextID = int64(n) + 1
		}
	}
	t.rows = append(t.rows, r)
}

func (t *table) matches(r query.Record, preds []query.Predicate) bool {
	for _, p := range preds {
		if !equal(r[p.Column], p.Value) {
			return false
		}
	}
	return true
}

// equal compares loosely: numbers by value, everything else by its
// printed form, so a path parameter "7" matches a stored int64 7.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func less(a, b any) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa < fb
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		var f float64
		if _, err := fmt.Sscan(n, &f); err == nil && fmt.Sprint(f) == n {
			return f, true
		}
	}
	return 0, false
}

func (s *Store) lookup(name string) (*table, error) {
	if err := s.failing[name]; err != nil {
		return nil, err
	}
	t, ok := s.tables[name]
	if !ok {
		return nil, errs.Newf(errs.ErrKindQueryFailed, "relation %q does not exist", name)
	}
	return t, nil
}
