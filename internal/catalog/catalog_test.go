package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/koustreak/tabula/internal/database"
	"github.com/koustreak/tabula/internal/database/mysql"
	"github.com/koustreak/tabula/internal/database/sqlite"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteLister(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.OpenMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		`CREATE TABLE orders (id INTEGER PRIMARY KEY AUTOINCREMENT, reference TEXT)`,
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT)`,
	} {
		_, err := db.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	names, err := ForDB(db, "").ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, names, "sqlite_sequence is skipped")
}

func TestMySQLLister(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := mysql.Wrap(sqlDB)

	mock.ExpectQuery(`WHERE table_schema = DATABASE\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders").AddRow("customers"))
	names, err := ForDB(db, "").ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "customers"}, names)

	mock.ExpectQuery(`WHERE table_schema = \?`).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders"))
	names, err = ForDB(db, "shop").ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, names)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// recordingDB captures the statement a lister sends.
type recordingDB struct {
	database.DB
	sql  string
	args []any
}

func (r *recordingDB) Dialect() database.Dialect { return database.DialectPostgres }

func (r *recordingDB) Query(_ context.Context, sql string, args ...any) (database.Rows, error) {
	r.sql = sql
	r.args = args
	return nil, errs.New(errs.ErrKindConnectionFailed, "offline")
}

func TestPostgresLister(t *testing.T) {
	db := &recordingDB{}

	_, err := ForDB(db, "").ListTables(context.Background())
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Contains(t, db.sql, "current_schema()")
	assert.Empty(t, db.args)

	_, err = ForDB(db, "public").ListTables(context.Background())
	require.Error(t, err)
	assert.Contains(t, db.sql, "table_schema = $1")
	assert.Equal(t, []any{"public"}, db.args)
}

type stubLister struct {
	names []string
	err   error
}

func (s *stubLister) ListTables(context.Context) ([]string, error) {
	return append([]string(nil), s.names...), s.err
}

func TestCatalog_RefreshKeepsLastGoodList(t *testing.T) {
	stub := &stubLister{names: []string{"orders", "customers"}}
	c := New(stub, nil)
	assert.Empty(t, c.Tables())

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, []string{"customers", "orders"}, c.Tables())

	stub.err = errors.New("offline")
	stub.names = nil
	assert.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, []string{"customers", "orders"}, c.Tables())

	got := c.Tables()
	got[0] = "mutated"
	assert.Equal(t, "customers", c.Tables()[0])
}
