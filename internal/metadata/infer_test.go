package metadata

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/koustreak/tabula/internal/query"
	"github.com/koustreak/tabula/internal/query/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersSeed = `
tables:
  orders:
    primary_key: id
    rows:
      - {id: 1, reference: A-1, customer_id: 1, total: 12.5, status: open, created_at: "2024-01-05 10:00:00"}
      - {id: 2, reference: A-2, customer_id: 2, total: 3, status: closed, created_at: "2024-01-06 11:00:00"}
  customers:
    primary_key: id
    rows:
      - {id: 1, name: Ada, email: ada@example.com}
      - {id: 2, name: Grace, email: grace@example.com}
  statuses:
    rows:
      - {code: open, label: Open}
      - {code: closed, label: Closed}
  empty:
    columns: [id, name]
`

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.LoadSeed(strings.NewReader(ordersSeed)))
	return s
}

func TestInfer_Orders(t *testing.T) {
	e := NewEngine(seededStore(t))

	s := e.Infer(context.Background(), "orders")
	assert.Equal(t, "orders", s.Table)
	assert.Equal(t, "id", s.PrimaryKey)
	assert.Equal(t, "id", s.TitleField)
	assert.Equal(t, "status", s.SubtitleField)
	assert.Equal(t, []string{"id", "reference", "customer_id", "total", "status", "created_at"}, s.ColumnNames())

	id, _ := s.Column("id")
	assert.Equal(t, TypeInteger, id.Type)
	assert.False(t, id.Editable)

	customer, _ := s.Column("customer_id")
	assert.Equal(t, TypeRelation, customer.Type)
	assert.Equal(t, "customer", customer.Relation)
	assert.Equal(t, "Customer ID", customer.Label)

	total, _ := s.Column("total")
	assert.Equal(t, TypeNumber, total.Type)

	status, _ := s.Column("status")
	assert.Equal(t, TypeString, status.Type)

	created, _ := s.Column("created_at")
	assert.Equal(t, TypeDate, created.Type)
	assert.False(t, created.Editable)

	assert.Equal(t, []Relation{{Table: "customer", ForeignKey: "customer_id"}}, s.Relations)
}

func TestInfer_TitleAndFallbacks(t *testing.T) {
	store := memory.New()
	store.Put("customers", query.Record{"id": 1, "name": "Ada", "email": "ada@example.com"})
	store.Put("widgets", query.Record{"widgets_id": 1, "title": "W"})
	store.Put("codes", query.Record{"code": "X", "label": "Ex"})
	store.Put("pairs", query.Record{"alpha": 1, "beta": 2})

	e := NewEngine(store)
	ctx := context.Background()

	c := e.Infer(ctx, "customers")
	assert.Equal(t, "id", c.PrimaryKey)
	assert.Equal(t, "name", c.TitleField)
	assert.Equal(t, "email", c.SubtitleField)

	w := e.Infer(ctx, "widgets")
	assert.Equal(t, "widgets_id", w.PrimaryKey)
	assert.Equal(t, "title", w.TitleField)
	assert.Empty(t, w.Relations, "own key is not a relation")

	k := e.Infer(ctx, "codes")
	assert.Equal(t, "code", k.PrimaryKey)
	assert.Equal(t, "label", k.TitleField)

	p := e.Infer(ctx, "pairs")
	assert.Equal(t, "alpha", p.PrimaryKey)
	assert.Equal(t, "alpha", p.TitleField)
	assert.Equal(t, "", p.SubtitleField)
}

func TestInfer_SubtitleNeverRepeatsTitle(t *testing.T) {
	store := memory.New()
	store.CreateTable("notes", "", "id", "description", "summary")
	store.Put("notes", query.Record{"id": 1, "description": "d", "summary": "s"})

	s := NewEngine(store).Infer(context.Background(), "notes")
	assert.Equal(t, "description", s.TitleField)
	assert.Equal(t, "summary", s.SubtitleField)
}

func TestInfer_PrimaryKeyIsAlwaysAField(t *testing.T) {
	samples := []query.Record{
		{"id": 1},
		{"things_id": 1, "x": 2},
		{"uuid": "u", "name": "n"},
		{"key": "k"},
		{"code": "c"},
		{"zzz": 1, "yyy": 2},
	}
	for _, rec := range samples {
		store := memory.New()
		store.Put("things", rec)

		s := NewEngine(store).Infer(context.Background(), "things")
		_, ok := rec[s.PrimaryKey]
		assert.True(t, ok, "%v -> %s", rec, s.PrimaryKey)
	}
}

func TestInfer_EmptyTableGivesDefault(t *testing.T) {
	store := seededStore(t)
	e := NewEngine(store)

	s := e.Infer(context.Background(), "empty")
	assert.Equal(t, DefaultSchema("empty"), s)

	e.Infer(context.Background(), "empty")
	assert.Equal(t, 1, store.Fetches("empty"), "empty result is memoized")
}

func TestInfer_FetchErrorDegradesToDefault(t *testing.T) {
	store := seededStore(t)
	store.Fail("orders", errors.New("connection reset"))
	e := NewEngine(store)

	s := e.Infer(context.Background(), "orders")
	assert.Equal(t, DefaultSchema("orders"), s)

	store.Heal("orders")
	s = e.Infer(context.Background(), "orders")
	assert.Equal(t, "customer", s.Relations[0].Table)
	assert.Equal(t, 2, store.Fetches("orders"))
}

func TestInfer_UnknownTableDegradesToDefault(t *testing.T) {
	s := NewEngine(memory.New()).Infer(context.Background(), "ghost")
	assert.Equal(t, "id", s.PrimaryKey)
	assert.Equal(t, "name", s.TitleField)
	assert.Empty(t, s.Relations)
}

func TestInfer_MemoizesUntilCleared(t *testing.T) {
	store := seededStore(t)
	e := NewEngine(store)
	ctx := context.Background()

	first := e.Infer(ctx, "orders")
	first.Columns[0].Label = "mutated"

	second := e.Infer(ctx, "orders")
	assert.Equal(t, "ID", second.Columns[0].Label)
	assert.Equal(t, 1, store.Fetches("orders"))

	e.Clear("orders")
	e.Infer(ctx, "orders")
	assert.Equal(t, 2, store.Fetches("orders"))

	e.ClearAll()
	e.Infer(ctx, "orders")
	assert.Equal(t, 3, store.Fetches("orders"))
}

func TestInfer_SampleSize(t *testing.T) {
	newStore := func() *memory.Store {
		store := memory.New()
		for i := 0; i < 5; i++ {
			store.Put("events", query.Record{"id": i, "when": nil})
		}
		store.Put("events", query.Record{"id": 5, "when": "2024-01-05"})
		return store
	}

	narrow := NewEngine(newStore(), WithSampleSize(3)).Infer(context.Background(), "events")
	col, _ := narrow.Column("when")
	assert.Equal(t, TypeString, col.Type)

	wide := NewEngine(newStore()).Infer(context.Background(), "events")
	col, _ = wide.Column("when")
	assert.Equal(t, TypeDate, col.Type)
}

func TestInfer_ValueRelationNeedsKnownTable(t *testing.T) {
	store := seededStore(t)

	plain := NewEngine(store).Infer(context.Background(), "orders")
	status, _ := plain.Column("status")
	assert.Equal(t, TypeString, status.Type)

	known := NewEngine(store, WithKnownTables(store.Tables)).Infer(context.Background(), "orders")
	status, _ = known.Column("status")
	assert.Equal(t, TypeRelation, status.Type)
	assert.Equal(t, "statuses", status.Relation)

	strict := NewEngine(store, WithKnownTables(store.Tables), WithStrictRelationNames(true)).Infer(context.Background(), "orders")
	status, _ = strict.Column("status")
	assert.Equal(t, TypeString, status.Type)
}

func TestInfer_ForeignKeyNameResolvesToKnownTable(t *testing.T) {
	store := seededStore(t)

	s := NewEngine(store, WithKnownTables(store.Tables)).Infer(context.Background(), "orders")
	customer, ok := s.Column("customer_id")
	require.True(t, ok)
	assert.Equal(t, "customers", customer.Relation)
	assert.Contains(t, s.Relations, Relation{Table: "customers", ForeignKey: "customer_id"})
}

func TestInfer_SecretNamedKeyIsNotARelation(t *testing.T) {
	store := memory.New()
	store.Put("accounts", query.Record{"id": 1, "api_key": "abc123"})

	s := NewEngine(store).Infer(context.Background(), "accounts")
	col, _ := s.Column("api_key")
	assert.Equal(t, TypePassword, col.Type)
	assert.False(t, col.Visible)
	assert.Empty(t, s.Relations)
}

func TestInfer_ConcurrentCallsAllResolve(t *testing.T) {
	store := seededStore(t)
	e := NewEngine(store)

	var wg sync.WaitGroup
	results := make([]*TableSchema, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Infer(context.Background(), "orders")
		}(i)
	}
	wg.Wait()

	for _, s := range results {
		require.NotNil(t, s)
		assert.Equal(t, "id", s.PrimaryKey)
	}
}

func TestInfer_ForeignKeyNameWinsOverWordHints(t *testing.T) {
	store := memory.New()
	store.Put("replies", query.Record{"id": 1, "body_text": "hi", "comment_id": 7, "tax_id": 3, "link_id": 4})
	store.Put("comments", query.Record{"id": 7, "body": "first"})

	s := NewEngine(store, WithKnownTables(store.Tables)).Infer(context.Background(), "replies")

	tests := []struct {
		field string
		want  string
	}{
		{"comment_id", "comments"},
		{"tax_id", "tax"},
		{"link_id", "link"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			col, ok := s.Column(tt.field)
			require.True(t, ok)
			assert.Equal(t, TypeRelation, col.Type)
			assert.Equal(t, tt.want, col.Relation)
			assert.Contains(t, s.Relations, Relation{Table: tt.want, ForeignKey: tt.field})
		})
	}

	body, _ := s.Column("body_text")
	assert.Equal(t, TypeText, body.Type)
}
