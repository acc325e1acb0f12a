// Package catalog lists the table names a SQL database holds.
//
// Only names are read. Column shapes still come from sampling and static
// metadata; the catalog tells the inference engine which tables exist so
// that relation targets can be matched against real tables.
package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/koustreak/tabula/internal/database"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/logger"
)

// Lister reads the table names of one database namespace.
type Lister interface {
	ListTables(ctx context.Context) ([]string, error)
}

// ForDB returns the Lister matching db's dialect. namespace is the
// Postgres schema or MySQL database to list; empty means the connection's
// current one. SQLite ignores it.
func ForDB(db database.DB, namespace string) Lister {
	switch db.Dialect() {
	case database.DialectMySQL:
		return &mysqlLister{db: db, database: namespace}
	case database.DialectSQLite:
		return &sqliteLister{db: db}
	default:
		return &pgLister{db: db, schema: namespace}
	}
}

// Catalog keeps the last successfully listed table names.
type Catalog struct {
	lister Lister
	log    *logger.Logger

	mu     sync.RWMutex
	tables []string
}

// New returns a Catalog reading through lister. It is empty until the
// first Refresh.
func New(lister Lister, log *logger.Logger) *Catalog {
	if log == nil {
		log = logger.Nop()
	}
	return &Catalog{lister: lister, log: log.Component("catalog")}
}

// Refresh re-reads the table names. On failure the previous list is kept.
func (c *Catalog) Refresh(ctx context.Context) error {
	names, err := c.lister.ListTables(ctx)
	if err != nil {
		c.log.WarnWith("table listing failed", err, nil)
		return err
	}
	sort.Strings(names)

	c.mu.Lock()
	c.tables = names
	c.mu.Unlock()

	c.log.DebugWith("tables listed", map[string]any{"count": len(names)})
	return nil
}

// Tables returns the known table names, sorted.
func (c *Catalog) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.tables...)
}

// scanNames reads a single-column result of names.
func scanNames(rows database.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan table name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during table listing", err)
	}
	return names, nil
}
