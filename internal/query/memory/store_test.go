package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `
tables:
  customers:
    primary_key: id
    rows:
      - {id: 1, name: Ada, email: ada@example.com}
      - {id: 2, name: Grace, email: grace@example.com}
  orders:
    primary_key: id
    rows:
      - {id: 10, reference: A-1, customer_id: 1, total: 12.5}
      - {id: 11, reference: A-2, customer_id: 2, total: 3}
      - {id: 12, reference: A-3, customer_id: 1, total: 7}
`

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.LoadSeed(strings.NewReader(seed)))
	return s
}

func TestLoadSeed_KeepsKeyOrder(t *testing.T) {
	s := seeded(t)

	rs, err := s.From("orders").Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "reference", "customer_id", "total"}, rs.Columns)
	assert.Equal(t, []string{"customers", "orders"}, s.Tables())
}

func TestLoadSeed_Invalid(t *testing.T) {
	err := New().LoadSeed(strings.NewReader("tables:\n  x:\n    rows:\n      - just a string\n"))
	assert.True(t, errs.IsInvalidInput(err))
}

func TestFetch_EqOrderLimit(t *testing.T) {
	s := seeded(t)

	rs, err := s.From("orders").
		Select("reference", "total").
		Eq("customer_id", 1).
		OrderBy("total", false).
		Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, query.Record{"reference": "A-3", "total": 7}, rs.Records[0])
	assert.Equal(t, []string{"reference", "total"}, rs.Columns)

	rs, err = s.From("orders").OrderBy("id", true).Offset(1).Limit(1).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, "A-2", rs.Records[0]["reference"])
}

func TestEq_MatchesStringForm(t *testing.T) {
	s := seeded(t)

	rec, err := s.From("customers").Eq("id", "2").Single(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Grace", rec["name"])
}

func TestSingle_NotFound(t *testing.T) {
	s := seeded(t)

	_, err := s.From("customers").Eq("id", 99).Single(context.Background())
	assert.True(t, errs.IsNotFound(err))
}

func TestInsert_AssignsNextID(t *testing.T) {
	s := seeded(t)

	rec, err := s.From("orders").Insert(context.Background(), query.Record{"reference": "B-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(13), rec["id"])

	_, err = s.From("orders").Insert(context.Background(), query.Record{"id": 10, "reference": "dup"})
	assert.True(t, errs.IsConflict(err))
}

func TestUpdate_ReplacesRows(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	before, err := s.From("customers").Eq("id", 1).Single(ctx)
	require.NoError(t, err)

	n, err := s.From("customers").Eq("id", 1).Update(ctx, query.Record{"name": "Ada L."})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "Ada", before["name"])

	after, err := s.From("customers").Eq("id", 1).Single(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", after["name"])
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	n, err := s.From("orders").Eq("customer_id", 1).Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.From("orders").Delete(ctx)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestFail_AndFetchCount(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	boom := errors.New("backend down")

	s.Fail("orders", boom)
	_, err := s.From("orders").Fetch(ctx)
	assert.ErrorIs(t, err, boom)

	s.Heal("orders")
	_, err = s.From("orders").Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Fetches("orders"))
}

func TestUnknownTable(t *testing.T) {
	_, err := New().From("nope").Fetch(context.Background())
	assert.True(t, errs.IsQueryFailed(err))
}
