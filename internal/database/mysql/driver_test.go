package mysql

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/tabula/internal/database"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return Wrap(db), mock
}

func TestDriver_QueryScansRows(t *testing.T) {
	d, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM `orders` LIMIT \\?").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"orders_id", "reference"}).
			AddRow(1, []byte("A-1")).
			AddRow(2, []byte("A-2")))

	sqlText, args, err := database.Select("orders", d.Dialect()).Limit(10).Build()
	require.NoError(t, err)

	rows, err := d.Query(ctx, sqlText, args...)
	require.NoError(t, err)

	cols, records, err := database.ScanRows(rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders_id", "reference"}, cols)
	require.Len(t, records, 2)
	assert.Equal(t, "A-2", records[1]["reference"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriver_ExecReportsRowsAffected(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectExec("DELETE FROM `orders` WHERE `orders_id` = \\?").
		WithArgs(4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sqlText, args, err := database.Delete("orders", d.Dialect()).Where("orders_id", "=", 4).Build()
	require.NoError(t, err)

	n, err := d.Exec(context.Background(), sqlText, args...)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriver_ExecMapsDuplicateToConflict(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectExec("INSERT INTO `orders`").
		WillReturnError(&gomysql.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry"})

	_, err := d.Exec(context.Background(), "INSERT INTO `orders` (`reference`) VALUES (?)", "A-1")
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
}

func TestDriver_QueryRowNotFound(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"orders_id"}))

	row, err := d.QueryRow(context.Background(), "SELECT `orders_id` FROM `orders`")
	require.NoError(t, err)

	var id int
	err = row.Scan(&id)
	assert.True(t, errs.IsNotFound(err))
}

func TestClassifyMySQLCode(t *testing.T) {
	tests := map[uint16]errs.ErrKind{
		errDuplicateEntry:  errs.ErrKindConflict,
		errRowIsReferenced: errs.ErrKindConflict,
		errTableAccess:     errs.ErrKindPermissionDenied,
		errAccessDenied:    errs.ErrKindConnectionFailed,
		errBadValue:        errs.ErrKindInvalidInput,
		1064:               errs.ErrKindQueryFailed,
	}
	for code, want := range tests {
		assert.Equal(t, want, classifyMySQLCode(code), "code %d", code)
	}
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil, "op"))
	assert.True(t, errs.IsNotFound(mapError(sql.ErrNoRows, "op")))
	assert.True(t, errs.IsTimeout(mapError(context.DeadlineExceeded, "op")))
	assert.True(t, errs.IsConnectionFailed(mapError(sql.ErrConnDone, "op")))
}
