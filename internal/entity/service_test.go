package entity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/koustreak/tabula/internal/cache"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/metadata"
	"github.com/koustreak/tabula/internal/query"
	"github.com/koustreak/tabula/internal/query/memory"
	"github.com/koustreak/tabula/internal/validation"
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
`

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.LoadSeed(strings.NewReader(seed)))
	registry := metadata.NewRegistry(metadata.NewEngine(store), cache.New[*metadata.TableSchema]())
	svc := NewService(registry, store, cache.New[query.Record](), cache.New[*query.ResultSet]())
	return svc, store
}

func TestGet_UsesSchemaNamesAndCaches(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	rec, err := svc.Get(ctx, "customers", 1)
	require.NoError(t, err)
	assert.Equal(t, query.Record{"customers_id": 1, "name": "Ada", "email": "ada@example.com"}, rec)

	reads := store.Fetches("customers")
	again, err := svc.Get(ctx, "customers", "1")
	require.NoError(t, err)
	assert.Equal(t, rec, again)
	assert.Equal(t, reads, store.Fetches("customers"), "second read is served from cache")

	again["name"] = "changed"
	third, err := svc.Get(ctx, "customers", 1)
	require.NoError(t, err)
	assert.Equal(t, "Ada", third["name"], "callers get copies")
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Get(context.Background(), "customers", 99)
	assert.True(t, errs.IsNotFound(err))
}

func TestList_TranslatesFiltersAndCaches(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	rs, err := svc.List(ctx, "customers", cache.ListQuery{Filters: map[string]any{"customers_id": 2}})
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, "Grace", rs.Records[0]["name"])
	assert.Equal(t, []string{"customers_id", "name", "email"}, rs.Columns)

	reads := store.Fetches("customers")
	_, err = svc.List(ctx, "customers", cache.ListQuery{Filters: map[string]any{"customers_id": 2}})
	require.NoError(t, err)
	assert.Equal(t, reads, store.Fetches("customers"))

	all, err := svc.List(ctx, "customers", cache.ListQuery{OrderBy: "customers_id", Desc: true, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 1, all.Len())
	assert.Equal(t, 2, all.Records[0]["customers_id"])
}

func TestList_RejectsNegativePaging(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.List(context.Background(), "customers", cache.ListQuery{Limit: -1})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestCreate_ValidationStopsTheWrite(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	out, problems, err := svc.Create(ctx, "customers", query.Record{"name": "", "email": "nope"})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, validation.ErrorMap{
		"name":  validation.RequiredMessage,
		"email": "Please enter a valid email address",
	}, problems)

	rs, err := svc.List(ctx, "customers", cache.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())
}

func TestCreate_InvalidatesLists(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	before, err := svc.List(ctx, "customers", cache.ListQuery{})
	require.NoError(t, err)
	require.Equal(t, 2, before.Len())

	out, problems, err := svc.Create(ctx, "customers", query.Record{"customers_id": "", "name": "Linus", "email": "linus@example.com"})
	require.NoError(t, err)
	require.Empty(t, problems)
	assert.Equal(t, int64(3), out["customers_id"])
	assert.Equal(t, "Linus", out["name"])

	after, err := svc.List(ctx, "customers", cache.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, after.Len())
}

func TestUpdate_InvalidatesEntityAndLists(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "customers", 1)
	require.NoError(t, err)
	_, err = svc.List(ctx, "customers", cache.ListQuery{})
	require.NoError(t, err)

	n, problems, err := svc.Update(ctx, "customers", "1", query.Record{"name": "Ada L."})
	require.NoError(t, err)
	require.Empty(t, problems)
	assert.Equal(t, int64(1), n)

	rec, err := svc.Get(ctx, "customers", 1)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", rec["name"])

	rs, err := svc.List(ctx, "customers", cache.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", rs.Records[0]["name"])
}

func TestUpdate_OnlySuppliedFieldsAreValidated(t *testing.T) {
	svc, _ := newService(t)

	_, problems, err := svc.Update(context.Background(), "customers", 1, query.Record{"email": "bad"})
	require.NoError(t, err)
	assert.Equal(t, validation.ErrorMap{"email": "Please enter a valid email address"}, problems)
}

func TestUpdate_MissingRowAndEmptyPatch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, _, err := svc.Update(ctx, "customers", 99, query.Record{"name": "x"})
	assert.True(t, errs.IsNotFound(err))

	_, _, err = svc.Update(ctx, "customers", 1, query.Record{"customers_id": 5})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestDelete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "customers", 2)
	require.NoError(t, err)

	n, err := svc.Delete(ctx, "customers", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.Get(ctx, "customers", 2)
	assert.True(t, errs.IsNotFound(err))

	_, err = svc.Delete(ctx, "customers", 2)
	assert.True(t, errs.IsNotFound(err))
}

func TestFailedWriteLeavesCacheAlone(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, "customers", cache.ListQuery{})
	require.NoError(t, err)
	_, err = svc.Get(ctx, "customers", 1)
	require.NoError(t, err)

	var calls int
	svc.OnWrite(func(context.Context, string) { calls++ })

	boom := errs.New(errs.ErrKindConnectionFailed, "backend down")
	store.Fail("customers", boom)
	_, _, err = svc.Update(ctx, "customers", 1, query.Record{"name": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	_, err = svc.Delete(ctx, "customers", 1)
	require.Error(t, err)

	// Reads still succeed from cache while the backend is failing.
	rs, err := svc.List(ctx, "customers", cache.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())
	rec, err := svc.Get(ctx, "customers", 1)
	require.NoError(t, err)
	assert.Equal(t, "Ada", rec["name"])
	assert.Zero(t, calls)
}

func TestOnWriteHooks(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		tables []string
	)
	svc.OnWrite(func(_ context.Context, table string) {
		mu.Lock()
		tables = append(tables, table)
		mu.Unlock()
	})

	_, _, err := svc.Create(ctx, "customers", query.Record{"name": "Linus"})
	require.NoError(t, err)
	_, _, err = svc.Update(ctx, "customers", 1, query.Record{"name": "Ada"})
	require.NoError(t, err)
	_, err = svc.Delete(ctx, "customers", 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"customers", "customers", "customers"}, tables)
}

func TestInvalidate(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "customers", 1)
	require.NoError(t, err)
	reads := store.Fetches("customers")

	svc.Invalidate("customers")
	_, err = svc.Get(ctx, "customers", 1)
	require.NoError(t, err)
	assert.Equal(t, reads+1, store.Fetches("customers"))
}

func TestClearAndStats(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "customers", 1)
	require.NoError(t, err)
	_, err = svc.Get(ctx, "customers", 1)
	require.NoError(t, err)
	_, err = svc.List(ctx, "customers", cache.ListQuery{})
	require.NoError(t, err)

	rows, lists := svc.CacheStats()
	assert.Equal(t, 1, rows.Entries)
	assert.Equal(t, uint64(1), rows.Hits)
	assert.Equal(t, 1, lists.Entries)

	svc.Clear()
	rows, lists = svc.CacheStats()
	assert.Zero(t, rows.Entries)
	assert.Zero(t, lists.Entries)
}
