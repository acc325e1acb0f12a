package catalog

import (
	"context"

	"github.com/koustreak/tabula/internal/database"
)

type pgLister struct {
	db     database.DB
	schema string
}

func (p *pgLister) ListTables(ctx context.Context) ([]string, error) {
	if p.schema == "" {
		const q = `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_schema = current_schema()
			  AND table_type = 'BASE TABLE'
			ORDER BY table_name`
		return scanNames(p.db.Query(ctx, q))
	}

	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`
	return scanNames(p.db.Query(ctx, q, p.schema))
}

// mysqlLister lists a MySQL database; MySQL calls databases schemas.
type mysqlLister struct {
	db       database.DB
	database string
}

func (m *mysqlLister) ListTables(ctx context.Context) ([]string, error) {
	if m.database == "" {
		const q = `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_schema = DATABASE()
			  AND table_type = 'BASE TABLE'
			ORDER BY table_name`
		return scanNames(m.db.Query(ctx, q))
	}

	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`
	return scanNames(m.db.Query(ctx, q, m.database))
}

type sqliteLister struct {
	db database.DB
}

func (s *sqliteLister) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`
	return scanNames(s.db.Query(ctx, q))
}
