package sqlite

import (
	"context"
	"testing"

	"github.com/koustreak/tabula/internal/database"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_RoundTrip(t *testing.T) {
	ctx := context.Background()
	d, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Exec(ctx, `CREATE TABLE customers (customers_id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)

	sqlText, args, err := database.Insert("customers", d.Dialect()).
		Values(map[string]any{"name": "Ada"}).
		Returning().
		Build()
	require.NoError(t, err)

	rows, err := d.Query(ctx, sqlText, args...)
	require.NoError(t, err)
	cols, records, err := database.ScanRows(rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers_id", "name"}, cols)
	require.Len(t, records, 1)
	assert.Equal(t, "Ada", records[0]["name"])
}

func TestDriver_ConstraintIsConflict(t *testing.T) {
	ctx := context.Background()
	d, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Exec(ctx, `CREATE TABLE tags (name TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = d.Exec(ctx, `INSERT INTO tags (name) VALUES (?)`, "go")
	require.NoError(t, err)

	_, err = d.Exec(ctx, `INSERT INTO tags (name) VALUES (?)`, "go")
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
}

func TestDriver_UnknownTable(t *testing.T) {
	ctx := context.Background()
	d, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Query(ctx, `SELECT * FROM missing`)
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
}

func TestDriver_QueryRowNotFound(t *testing.T) {
	ctx := context.Background()
	d, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer d.Close()

	row, err := d.QueryRow(ctx, `SELECT 1 WHERE 1 = 0`)
	require.NoError(t, err)
	var one int
	assert.True(t, errs.IsNotFound(row.Scan(&one)))
}
