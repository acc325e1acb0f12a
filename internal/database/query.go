package database

import (
	"fmt"
	"sort"
	"strings"

	"github.com/koustreak/tabula/internal/errs"
)

// Dialect controls which SQL placeholder and identifier quoting style the
// statement builders emit.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders and "double" quotes.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders and `backtick` quotes.
	DialectMySQL

	// DialectSQLite uses ? placeholders and "double" quotes.
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

// SupportsReturning reports whether INSERT … RETURNING * is available.
func (d Dialect) SupportsReturning() bool {
	return d != DialectMySQL
}

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected to prevent SQL injection
// through the operator position (which cannot be parameterized).
var validOps = map[string]bool{
	"=":     true,
	"!=":    true,
	"<>":    true,
	"<":     true,
	">":     true,
	"<=":    true,
	">=":    true,
	"LIKE":  true,
	"ILIKE": true,
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type whereClause struct {
	column string
	op     string
	value  any
}

type orderClause struct {
	column string
	dir    SortDirection
}

// statement carries what every builder shares: target table, dialect and
// the running placeholder index.
type statement struct {
	table   string
	dialect Dialect
	args    []any
}

func (s *statement) bind(v any) string {
	s.args = append(s.args, v)
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", len(s.args))
	}
	return "?"
}

func (s *statement) quote(name string) string {
	if s.dialect == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *statement) writeWhere(sb *strings.Builder, where []whereClause) error {
	if len(where) == 0 {
		return nil
	}
	parts := make([]string, 0, len(where))
	for _, w := range where {
		op := strings.ToUpper(w.op)
		if !validOps[op] {
			return errs.Newf(errs.ErrKindInvalidInput, "unsupported WHERE operator: %q", w.op)
		}
		if w.value == nil && op == "=" {
			parts = append(parts, fmt.Sprintf("%s IS NULL", s.quote(w.column)))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", s.quote(w.column), op, s.bind(w.value)))
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(parts, " AND "))
	return nil
}

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are never interpolated into the SQL string; they are always passed as args.
//
// Usage (Postgres):
//
//	sql, args, err := Select("orders", DialectPostgres).
//	    Columns("orders_id", "reference").
//	    Where("status", "=", "open").
//	    OrderBy("created_at", Desc).
//	    Limit(10).
//	    Build()
type SelectBuilder struct {
	table   string
	dialect Dialect
	columns []string
	where   []whereClause
	orderBy []orderClause
	limit   *int
	offset  *int
}

// Select starts a new SelectBuilder for the given table and dialect.
func Select(table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns restricts the SELECT to the specified columns.
// If not called (or called with "*"), SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	if len(cols) == 1 && cols[0] == "*" {
		cols = nil
	}
	b.columns = cols
	return b
}

// Where adds a WHERE condition. Multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip (for pagination).
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice.
// Returns an error if any WHERE operator is not in the allowlist.
func (b *SelectBuilder) Build() (string, []any, error) {
	st := &statement{table: b.table, dialect: b.dialect}

	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = st.quote(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(st.quote(b.table))

	if err := st.writeWhere(&sb, b.where); err != nil {
		return "", nil, err
	}

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", st.quote(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(st.bind(*b.limit))
	}

	if b.offset != nil {
		// MySQL and SQLite reject OFFSET without LIMIT.
		if b.limit == nil {
			switch b.dialect {
			case DialectMySQL:
				return "", nil, errs.New(errs.ErrKindInvalidInput, "offset requires a limit on mysql")
			case DialectSQLite:
				sb.WriteString(" LIMIT -1")
			}
		}
		sb.WriteString(" OFFSET ")
		sb.WriteString(st.bind(*b.offset))
	}

	return sb.String(), st.args, nil
}

// InsertBuilder constructs a parameterized single-row INSERT.
type InsertBuilder struct {
	table     string
	dialect   Dialect
	values    map[string]any
	returning bool
}

// Insert starts a new InsertBuilder for the given table and dialect.
func Insert(table string, d Dialect) *InsertBuilder {
	return &InsertBuilder{table: table, dialect: d}
}

// Values sets the column → value pairs to insert.
func (b *InsertBuilder) Values(values map[string]any) *InsertBuilder {
	b.values = values
	return b
}

// Returning asks for the inserted row back. Ignored on dialects without
// RETURNING support.
func (b *InsertBuilder) Returning() *InsertBuilder {
	b.returning = b.dialect.SupportsReturning()
	return b
}

// Build produces the INSERT statement. Columns are emitted in sorted order
// so the same record always renders the same SQL.
func (b *InsertBuilder) Build() (string, []any, error) {
	if len(b.values) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "insert requires at least one value")
	}
	st := &statement{table: b.table, dialect: b.dialect}

	cols := sortedKeys(b.values)
	quoted := make([]string, len(cols))
	holders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = st.quote(c)
		holders[i] = st.bind(b.values[c])
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(st.quote(b.table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(holders, ", "))
	sb.WriteString(")")
	if b.returning {
		sb.WriteString(" RETURNING *")
	}
	return sb.String(), st.args, nil
}

// UpdateBuilder constructs a parameterized UPDATE.
type UpdateBuilder struct {
	table   string
	dialect Dialect
	values  map[string]any
	where   []whereClause
}

// Update starts a new UpdateBuilder for the given table and dialect.
func Update(table string, d Dialect) *UpdateBuilder {
	return &UpdateBuilder{table: table, dialect: d}
}

// Set sets the column → value pairs to write.
func (b *UpdateBuilder) Set(values map[string]any) *UpdateBuilder {
	b.values = values
	return b
}

// Where adds a WHERE condition. Multiple calls are combined with AND.
func (b *UpdateBuilder) Where(column, op string, value any) *UpdateBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

// Build produces the UPDATE statement. An UPDATE without a WHERE clause is
// rejected.
func (b *UpdateBuilder) Build() (string, []any, error) {
	if len(b.values) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "update requires at least one value")
	}
	if len(b.where) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "refusing to update without a filter")
	}
	st := &statement{table: b.table, dialect: b.dialect}

	cols := sortedKeys(b.values)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = %s", st.quote(c), st.bind(b.values[c]))
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(st.quote(b.table))
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(sets, ", "))
	if err := st.writeWhere(&sb, b.where); err != nil {
		return "", nil, err
	}
	return sb.String(), st.args, nil
}

// DeleteBuilder constructs a parameterized DELETE.
type DeleteBuilder struct {
	table   string
	dialect Dialect
	where   []whereClause
}

// Delete starts a new DeleteBuilder for the given table and dialect.
func Delete(table string, d Dialect) *DeleteBuilder {
	return &DeleteBuilder{table: table, dialect: d}
}

// Where adds a WHERE condition. Multiple calls are combined with AND.
func (b *DeleteBuilder) Where(column, op string, value any) *DeleteBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

// Build produces the DELETE statement. A DELETE without a WHERE clause is
// rejected.
func (b *DeleteBuilder) Build() (string, []any, error) {
	if len(b.where) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "refusing to delete without a filter")
	}
	st := &statement{table: b.table, dialect: b.dialect}

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(st.quote(b.table))
	if err := st.writeWhere(&sb, b.where); err != nil {
		return "", nil, err
	}
	return sb.String(), st.args, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
