package metadata

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const staticDocYAML = `
tables:
  orders:
    primary_key: id
    title_field: reference
    subtitle_field: status
    columns:
      - {name: id, label: ID, type: integer, editable: false}
      - {name: reference, required: true}
      - {name: customer_id, type: relation, relation: customers, required: true}
      - {name: status, visible: false}
      - {name: owner_id, type: integer}
    relations:
      - {table: users, foreign_key: owner_id}
  customers:
    primary_key: id
    title_field: name
    columns:
      - {name: id, type: integer, editable: false}
      - {name: name}
      - {name: email, type: email}
`

func TestParseStatic(t *testing.T) {
	s, err := ParseStatic(strings.NewReader(staticDocYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, s.Tables())

	orders, ok := s.Schema("orders")
	require.True(t, ok)
	assert.Equal(t, "id", orders.PrimaryKey)
	assert.Equal(t, "reference", orders.TitleField)
	assert.Equal(t, "status", orders.SubtitleField)

	ref, _ := orders.Column("reference")
	assert.Equal(t, "Reference", ref.Label)
	assert.Equal(t, TypeString, ref.Type)
	assert.True(t, ref.Visible)
	assert.True(t, ref.Editable)
	assert.True(t, ref.Required)

	id, _ := orders.Column("id")
	assert.False(t, id.Editable)
	assert.True(t, id.Visible)

	status, _ := orders.Column("status")
	assert.False(t, status.Visible)
	assert.True(t, status.Editable)

	owner, _ := orders.Column("owner_id")
	assert.Equal(t, TypeRelation, owner.Type)
	assert.Equal(t, "users", owner.Relation)

	assert.ElementsMatch(t, []Relation{
		{Table: "users", ForeignKey: "owner_id"},
		{Table: "customers", ForeignKey: "customer_id"},
	}, orders.Relations)

	_, ok = s.Schema("missing")
	assert.False(t, ok)
}

func TestParseStatic_SchemaIsCopied(t *testing.T) {
	s, err := ParseStatic(strings.NewReader(staticDocYAML))
	require.NoError(t, err)

	a, _ := s.Schema("customers")
	a.Columns[0].Name = "changed"
	b, _ := s.Schema("customers")
	assert.Equal(t, "id", b.Columns[0].Name)
}

func TestParseStatic_Errors(t *testing.T) {
	docs := map[string]string{
		"bad yaml":       "tables: [",
		"unknown type":   "tables:\n  t:\n    columns:\n      - {name: a, type: money}\n",
		"unnamed column": "tables:\n  t:\n    columns:\n      - {type: string}\n",
		"duplicate":      "tables:\n  t:\n    columns:\n      - {name: a}\n      - {name: a}\n",
		"bad relation":   "tables:\n  t:\n    relations:\n      - {table: x}\n",
		"undeclared pk":  "tables:\n  t:\n    primary_key: nope\n    columns:\n      - {name: a}\n",
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStatic(strings.NewReader(doc))
			assert.True(t, errs.IsInvalidInput(err), "%v", err)
		})
	}
}

func TestParseStatic_Empty(t *testing.T) {
	s, err := ParseStatic(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, s.Tables())
}

func TestLoadStaticFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(staticDocYAML), 0o600))

	s, err := LoadStaticFile(path)
	require.NoError(t, err)
	assert.Len(t, s.Tables(), 2)

	_, err = LoadStaticFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errs.IsNotFound(err))
}

type objectStub struct {
	io.Reader
	info *filestore.ObjectInfo
}

func (o *objectStub) Close() error                  { return nil }
func (o *objectStub) Info() *filestore.ObjectInfo { return o.info }

type storeStub struct {
	objects map[string]string
}

func (s *storeStub) Ping(context.Context) error { return nil }
func (s *storeStub) Close() error               { return nil }

func (s *storeStub) GetObject(_ context.Context, bucket, key string) (filestore.Object, error) {
	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "NoSuchKey")
	}
	return &objectStub{Reader: bytes.NewBufferString(body), info: &filestore.ObjectInfo{Key: key, Size: int64(len(body))}}, nil
}

func (s *storeStub) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "NoSuchKey")
	}
	return &filestore.ObjectInfo{Key: key, Size: int64(len(body))}, nil
}

func TestLoadStaticObject(t *testing.T) {
	store := &storeStub{objects: map[string]string{"config/metadata.yaml": staticDocYAML}}

	s, err := LoadStaticObject(context.Background(), store, "config", "metadata.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, s.Tables())

	_, err = LoadStaticObject(context.Background(), store, "config", "other.yaml")
	assert.True(t, errs.IsNotFound(err))
}
