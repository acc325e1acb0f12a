// Package metadata describes tables: it classifies columns, infers schemas
// from sample rows, and serves normalized schemas through the Registry.
package metadata

import (
	"strings"

	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/query"
)

// ColumnType is the closed set of semantic column types.
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeText     ColumnType = "text"
	TypeNumber   ColumnType = "number"
	TypeInteger  ColumnType = "integer"
	TypeBoolean  ColumnType = "boolean"
	TypeDate     ColumnType = "date"
	TypeTime     ColumnType = "time"
	TypeDateTime ColumnType = "datetime"
	TypeEmail    ColumnType = "email"
	TypeURL      ColumnType = "url"
	TypePhone    ColumnType = "phone"
	TypePassword ColumnType = "password"
	TypeColor    ColumnType = "color"
	TypeTags     ColumnType = "tags"
	TypeRelation ColumnType = "relation"
)

// ColumnTypes lists every ColumnType.
var ColumnTypes = []ColumnType{
	TypeString, TypeText, TypeNumber, TypeInteger, TypeBoolean,
	TypeDate, TypeTime, TypeDateTime, TypeEmail, TypeURL,
	TypePhone, TypePassword, TypeColor, TypeTags, TypeRelation,
}

// Valid reports whether t is one of ColumnTypes.
func (t ColumnType) Valid() bool {
	_, ok := traits[t]
	return ok
}

// ParseColumnType accepts a type name case-insensitively. An empty name
// parses as TypeString.
func ParseColumnType(s string) (ColumnType, error) {
	if s == "" {
		return TypeString, nil
	}
	t := ColumnType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", errs.Newf(errs.ErrKindInvalidInput, "unknown column type %q", s)
	}
	return t, nil
}

// ColumnDescriptor describes one column of a table.
type ColumnDescriptor struct {
	Name     string     `json:"name"`
	Label    string     `json:"label"`
	Type     ColumnType `json:"type"`
	Visible  bool       `json:"visible"`
	Editable bool       `json:"editable"`
	Required bool       `json:"required"`
	// Relation names the related table when Type is TypeRelation.
	Relation string `json:"relation,omitempty"`
	// Source is the backing column name when it differs from Name, as
	// after primary key namespacing.
	Source string `json:"source,omitempty"`
}

// StorageName is the column name the backend knows this column by.
func (c ColumnDescriptor) StorageName() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Name
}

// Relation links a foreign key column to the table it references.
type Relation struct {
	Table      string `json:"table"`
	ForeignKey string `json:"foreign_key"`
}

// TableSchema is the shape of one table.
type TableSchema struct {
	Table         string             `json:"table"`
	PrimaryKey    string             `json:"primary_key"`
	TitleField    string             `json:"title_field"`
	SubtitleField string             `json:"subtitle_field,omitempty"`
	Columns       []ColumnDescriptor `json:"columns"`
	Relations     []Relation         `json:"relations"`
}

// Clone returns a deep copy of s. Schemas handed out by the Registry are
// always clones, so callers may modify them freely.
func (s *TableSchema) Clone() *TableSchema {
	if s == nil {
		return nil
	}
	out := *s
	out.Columns = append([]ColumnDescriptor(nil), s.Columns...)
	out.Relations = append([]Relation(nil), s.Relations...)
	if out.Columns == nil {
		out.Columns = []ColumnDescriptor{}
	}
	if out.Relations == nil {
		out.Relations = []Relation{}
	}
	return &out
}

// Column returns the column called name.
func (s *TableSchema) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

// ColumnNames returns the column names in schema order.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// StorageName maps a schema column name to its backend column name.
// Names the schema does not know are returned unchanged.
func (s *TableSchema) StorageName(name string) string {
	if c, ok := s.Column(name); ok {
		return c.StorageName()
	}
	return name
}

// FromStorage renames the keys of a backend row to schema column names.
// The input is not modified.
func (s *TableSchema) FromStorage(rec query.Record) query.Record {
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	for _, c := range s.Columns {
		if c.Source == "" || c.Source == c.Name {
			continue
		}
		if v, ok := out[c.Source]; ok {
			delete(out, c.Source)
			out[c.Name] = v
		}
	}
	return out
}

// ToStorage renames the keys of a schema-shaped record to backend column
// names. The input is not modified.
func (s *TableSchema) ToStorage(rec query.Record) query.Record {
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	for _, c := range s.Columns {
		if c.Source == "" || c.Source == c.Name {
			continue
		}
		if v, ok := out[c.Name]; ok {
			delete(out, c.Name)
			out[c.Source] = v
		}
	}
	return out
}

// RelationFor returns the relation whose foreign key is column.
func (s *TableSchema) RelationFor(column string) (Relation, bool) {
	for _, r := range s.Relations {
		if r.ForeignKey == column {
			return r, true
		}
	}
	return Relation{}, false
}

// DefaultSchema is the schema of a table nothing is known about.
func DefaultSchema(table string) *TableSchema {
	return &TableSchema{
		Table:      table,
		PrimaryKey: "id",
		TitleField: "name",
		Columns: []ColumnDescriptor{
			{Name: "id", Label: "ID", Type: TypeInteger, Visible: true},
			{Name: "name", Label: "Name", Type: TypeString, Visible: true, Editable: true, Required: true},
			{Name: "created_at", Label: "Created At", Type: TypeDate, Visible: true},
			{Name: "updated_at", Label: "Updated At", Type: TypeDate, Visible: true},
		},
		Relations: []Relation{},
	}
}
