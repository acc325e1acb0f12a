// Package validation checks records against a table schema.
//
// Validate returns one message per failing field. Emptiness is checked
// before type, so a required empty field reports only that it is required.
// Each call builds a fresh ErrorMap; nothing carries over between calls.
package validation

import (
	"reflect"
	"sort"
	"strings"

	"github.com/koustreak/tabula/internal/metadata"
)

// RequiredMessage is reported for a required field with no value.
const RequiredMessage = "This field is required"

// ErrorMap maps a field name to its error message.
type ErrorMap map[string]string

// Valid reports whether m holds no errors.
func (m ErrorMap) Valid() bool {
	return len(m) == 0
}

// Fields returns the failing field names in sorted order.
func (m ErrorMap) Fields() []string {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Error renders m as "field: message; ..." so it can travel as an error.
func (m ErrorMap) Error() string {
	parts := make([]string, 0, len(m))
	for _, f := range m.Fields() {
		parts = append(parts, f+": "+m[f])
	}
	return strings.Join(parts, "; ")
}

// skipped are never validated: they are maintained by the backend.
var skipped = map[string]bool{
	"created_at": true,
	"updated_at": true,
}

// Validate checks record against every editable column of schema except
// the primary key and the created_at/updated_at timestamps.
func Validate(schema *metadata.TableSchema, record map[string]any) ErrorMap {
	result := make(ErrorMap)
	if schema == nil {
		return result
	}

	for _, col := range schema.Columns {
		if !col.Editable || col.Name == schema.PrimaryKey || skipped[col.Name] {
			continue
		}

		v, present := record[col.Name]
		if !present || IsEmpty(v) {
			if col.Required {
				result[col.Name] = RequiredMessage
			}
			continue
		}

		trait := metadata.TraitOf(col.Type)
		if trait.Check != nil && !trait.Check(v) {
			result[col.Name] = trait.Message
		}
	}
	return result
}

// IsEmpty reports whether v counts as no value: nil, a nil pointer, or an
// empty or whitespace-only string.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
