package metadata

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"

	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/filestore"
	"go.yaml.in/yaml/v3"
)

// StaticSource supplies schemas declared by the deployment. A declared
// schema is preferred over inference.
type StaticSource interface {
	Schema(table string) (*TableSchema, bool)
	Tables() []string
}

// StaticSchemas is a StaticSource read from a YAML document:
//
//	tables:
//	  orders:
//	    primary_key: id
//	    title_field: reference
//	    columns:
//	      - {name: id, type: integer, editable: false}
//	      - {name: customer_id, type: relation, relation: customers}
//
// Omitted visible and editable flags default to true and omitted labels
// are derived from the column name.
type StaticSchemas struct {
	tables map[string]*TableSchema
}

type staticDoc struct {
	Tables map[string]staticTable `yaml:"tables"`
}

type staticTable struct {
	PrimaryKey    string           `yaml:"primary_key"`
	TitleField    string           `yaml:"title_field"`
	SubtitleField string           `yaml:"subtitle_field"`
	Columns       []staticColumn   `yaml:"columns"`
	Relations     []staticRelation `yaml:"relations"`
}

type staticColumn struct {
	Name     string `yaml:"name"`
	Label    string `yaml:"label"`
	Type     string `yaml:"type"`
	Visible  *bool  `yaml:"visible"`
	Editable *bool  `yaml:"editable"`
	Required bool   `yaml:"required"`
	Relation string `yaml:"relation"`
}

type staticRelation struct {
	Table      string `yaml:"table"`
	ForeignKey string `yaml:"foreign_key"`
}

// NewStaticSchemas builds a StaticSource from ready-made schemas.
func NewStaticSchemas(schemas ...*TableSchema) *StaticSchemas {
	s := &StaticSchemas{tables: make(map[string]*TableSchema, len(schemas))}
	for _, schema := range schemas {
		s.tables[schema.Table] = schema.Clone()
	}
	return s
}

// ParseStatic reads a static schema document from r.
func ParseStatic(r io.Reader) (*StaticSchemas, error) {
	var doc staticDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid static metadata document", err)
	}

	s := &StaticSchemas{tables: make(map[string]*TableSchema, len(doc.Tables))}
	for name, t := range doc.Tables {
		schema, err := t.toSchema(name)
		if err != nil {
			return nil, err
		}
		s.tables[name] = schema
	}
	return s, nil
}

// LoadStaticFile reads a static schema document from path.
func LoadStaticFile(path string) (*StaticSchemas, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.ErrKindNotFound, "static metadata file not found", err)
		}
		return nil, errs.Wrap(errs.ErrKindPermissionDenied, "cannot open static metadata file", err)
	}
	defer f.Close()
	return ParseStatic(f)
}

// LoadStaticObject reads a static schema document from object storage.
func LoadStaticObject(ctx context.Context, store filestore.Store, bucket, key string) (*StaticSchemas, error) {
	data, err := filestore.ReadAll(ctx, store, bucket, key)
	if err != nil {
		return nil, err
	}
	return ParseStatic(bytes.NewReader(data))
}

// Schema returns a copy of the declared schema of table.
func (s *StaticSchemas) Schema(table string) (*TableSchema, bool) {
	schema, ok := s.tables[table]
	if !ok {
		return nil, false
	}
	return schema.Clone(), true
}

// Tables lists the declared tables in sorted order.
func (s *StaticSchemas) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (t staticTable) toSchema(table string) (*TableSchema, error) {
	schema := &TableSchema{
		Table:         table,
		PrimaryKey:    t.PrimaryKey,
		TitleField:    t.TitleField,
		SubtitleField: t.SubtitleField,
		Columns:       make([]ColumnDescriptor, 0, len(t.Columns)),
		Relations:     make([]Relation, 0, len(t.Relations)),
	}

	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "table %s: column without a name", table)
		}
		if seen[c.Name] {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "table %s: duplicate column %s", table, c.Name)
		}
		seen[c.Name] = true

		typ, err := ParseColumnType(c.Type)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "table "+table+", column "+c.Name, err)
		}
		col := ColumnDescriptor{
			Name:     c.Name,
			Label:    c.Label,
			Type:     typ,
			Visible:  c.Visible == nil || *c.Visible,
			Editable: c.Editable == nil || *c.Editable,
			Required: c.Required,
			Relation: c.Relation,
		}
		if col.Label == "" {
			col.Label = Humanize(c.Name)
		}
		if col.Type == TypeRelation && col.Relation == "" {
			col.Relation = RelatedTableFromName(c.Name)
		}
		schema.Columns = append(schema.Columns, col)
	}

	for _, r := range t.Relations {
		if r.Table == "" || r.ForeignKey == "" {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "table %s: relation needs table and foreign_key", table)
		}
		schema.Relations = append(schema.Relations, Relation{Table: r.Table, ForeignKey: r.ForeignKey})
		for i := range schema.Columns {
			if schema.Columns[i].Name == r.ForeignKey {
				schema.Columns[i].Type = TypeRelation
				schema.Columns[i].Relation = r.Table
			}
		}
	}

	// Relation columns without a declared relation entry get one.
	for _, c := range schema.Columns {
		if c.Type != TypeRelation {
			continue
		}
		if _, ok := schema.RelationFor(c.Name); !ok {
			schema.Relations = append(schema.Relations, Relation{Table: c.Relation, ForeignKey: c.Name})
		}
	}

	for _, f := range []string{schema.PrimaryKey, schema.TitleField, schema.SubtitleField} {
		if f != "" && len(schema.Columns) > 0 && !seen[f] {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "table %s: %s is not a declared column", table, f)
		}
	}
	return schema, nil
}
