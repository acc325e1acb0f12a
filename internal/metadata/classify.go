package metadata

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// TypeHint is what a column's name alone says about it.
type TypeHint struct {
	Type     ColumnType
	Editable bool
	Visible  bool
	Required bool
}

// matcher tests a normalized (snake_case, lower) field name. words match
// whole underscore-separated segments, so "count" hits "item_count" but
// not "country".
type matcher struct {
	exact    []string
	prefix   []string
	suffix   []string
	contains []string
	words    []string
}

func (m matcher) match(name string) bool {
	for _, s := range m.exact {
		if name == s {
			return true
		}
	}
	for _, s := range m.prefix {
		if strings.HasPrefix(name, s) {
			return true
		}
	}
	for _, s := range m.suffix {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	for _, s := range m.contains {
		if strings.Contains(name, s) {
			return true
		}
	}
	if len(m.words) > 0 {
		for _, seg := range strings.Split(name, "_") {
			for _, w := range m.words {
				if seg == w {
					return true
				}
			}
		}
	}
	return false
}

type nameGroup struct {
	name string
	m    matcher
	hint TypeHint
}

// nameGroups is checked top to bottom and the first match wins. The order
// matters: "updated_at" must hit the timestamp group before the generic
// date and datetime groups see it.
var nameGroups = []nameGroup{
	{
		name: "identifier",
		m:    matcher{exact: []string{"id", "uuid", "guid", "pk"}},
		hint: TypeHint{Type: TypeString, Visible: true},
	},
	{
		name: "timestamp",
		m: matcher{exact: []string{
			"created_at", "updated_at", "deleted_at", "modified_at", "inserted_at",
			"created_on", "updated_on", "modified_on",
			"created", "updated", "modified", "timestamp",
		}},
		hint: TypeHint{Type: TypeDate, Visible: true},
	},
	{
		name: "title",
		m:    matcher{exact: []string{"name", "title", "label", "display_name", "full_name"}},
		hint: TypeHint{Type: TypeString, Visible: true, Editable: true, Required: true},
	},
	{
		name: "description",
		m:    matcher{contains: []string{"description", "notes", "comment", "summary", "content", "remarks", "body", "bio"}},
		hint: TypeHint{Type: TypeText, Visible: true, Editable: true},
	},
	{
		name: "email",
		m:    matcher{contains: []string{"email", "e_mail"}},
		hint: TypeHint{Type: TypeEmail, Visible: true, Editable: true},
	},
	{
		name: "url",
		m:    matcher{contains: []string{"url", "website", "homepage", "link"}, suffix: []string{"_uri"}},
		hint: TypeHint{Type: TypeURL, Visible: true, Editable: true},
	},
	{
		name: "phone",
		m: matcher{
			contains: []string{"phone", "mobile", "fax"},
			exact:    []string{"tel", "telephone"},
			prefix:   []string{"tel_"},
			suffix:   []string{"_tel"},
		},
		hint: TypeHint{Type: TypePhone, Visible: true, Editable: true},
	},
	{
		name: "secret",
		m:    matcher{contains: []string{"password", "passwd", "secret", "token", "api_key"}},
		hint: TypeHint{Type: TypePassword, Editable: true},
	},
	{
		name: "color",
		m:    matcher{contains: []string{"color", "colour"}},
		hint: TypeHint{Type: TypeColor, Visible: true, Editable: true},
	},
	{
		name: "date",
		m: matcher{
			exact:  []string{"date", "birthday", "dob"},
			prefix: []string{"date_"},
			suffix: []string{"_date", "_on"},
		},
		hint: TypeHint{Type: TypeDate, Visible: true, Editable: true},
	},
	{
		name: "time",
		m: matcher{
			exact:  []string{"time"},
			prefix: []string{"time_"},
			suffix: []string{"_time"},
		},
		hint: TypeHint{Type: TypeTime, Visible: true, Editable: true},
	},
	{
		name: "datetime",
		m: matcher{
			contains: []string{"datetime", "timestamp"},
			suffix:   []string{"_at"},
		},
		hint: TypeHint{Type: TypeDateTime, Visible: true, Editable: true},
	},
	{
		name: "flag",
		m: matcher{
			prefix: []string{"is_", "has_", "can_", "should_", "allow_", "allows_"},
			suffix: []string{"_flag", "_enabled"},
			exact:  []string{"active", "enabled", "disabled", "archived", "published", "verified", "deleted", "visible"},
		},
		hint: TypeHint{Type: TypeBoolean, Visible: true, Editable: true},
	},
	{
		name: "monetary",
		m: matcher{words: []string{
			"price", "prices", "cost", "costs", "amount", "amounts", "total", "subtotal", "balance",
			"salary", "discount", "fee", "fees", "tax", "taxes", "revenue", "budget",
		}},
		hint: TypeHint{Type: TypeNumber, Visible: true, Editable: true},
	},
	{
		name: "countable",
		m: matcher{
			words:  []string{"count", "quantity", "qty"},
			prefix: []string{"num_", "number_of_"},
			suffix: []string{"_age", "_rank", "_position", "_order"},
			exact:  []string{"age", "rank", "position", "stock", "sort_order"},
		},
		hint: TypeHint{Type: TypeInteger, Visible: true, Editable: true},
	},
	{
		name: "tags",
		m: matcher{
			exact:  []string{"tags", "labels", "keywords", "categories", "topics"},
			suffix: []string{"_tags"},
		},
		hint: TypeHint{Type: TypeTags, Visible: true, Editable: true},
	},
}

func normalizeName(field string) string {
	return strings.ToLower(toSnakeCase(strings.TrimSpace(field)))
}

// ClassifyByName returns the hint of the first name group field matches.
// Matching is case-insensitive and treats camelCase like snake_case.
func ClassifyByName(field string) (TypeHint, bool) {
	name := normalizeName(field)
	if name == "" {
		return TypeHint{}, false
	}
	for _, g := range nameGroups {
		if g.m.match(name) {
			return g.hint, true
		}
	}
	return TypeHint{}, false
}

var (
	isoDatePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	usDatePattern    = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	euDatePattern    = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)
	slashDatePattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)
	timePattern      = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?$`)
	datetimePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?$`)
	urlPattern       = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://\S+$`)
	colorPattern     = regexp.MustCompile(`^#([0-9A-Fa-f]{3}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})$`)
	identPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// longTextThreshold is the length above which a string is treated as text.
const longTextThreshold = 100

// ClassifyByValue classifies a single sample value. Nil classifies as
// TypeString.
func ClassifyByValue(v any) ColumnType {
	switch x := v.(type) {
	case nil:
		return TypeString
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32:
		return classifyFloat(float64(x))
	case float64:
		return classifyFloat(x)
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return TypeInteger
		}
		return TypeNumber
	case time.Time, *time.Time:
		return TypeDateTime
	case []any, []string:
		return TypeTags
	case map[string]any:
		if isDateObject(x) {
			return TypeDateTime
		}
		return TypeString
	case []byte:
		return classifyString(string(x))
	case string:
		return classifyString(x)
	}
	return TypeString
}

func classifyFloat(f float64) ColumnType {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return TypeInteger
	}
	return TypeNumber
}

// isDateObject recognises serialized timestamps such as {"$date": ...} or
// {"seconds": ..., "nanoseconds": ...}.
func isDateObject(m map[string]any) bool {
	if _, ok := m["$date"]; ok {
		return true
	}
	_, s := m["seconds"]
	_, ns := m["nanoseconds"]
	return s && ns
}

func classifyString(s string) ColumnType {
	switch {
	case isoDatePattern.MatchString(s), usDatePattern.MatchString(s),
		euDatePattern.MatchString(s), slashDatePattern.MatchString(s):
		return TypeDate
	case timePattern.MatchString(s):
		return TypeTime
	case datetimePattern.MatchString(s):
		return TypeDateTime
	case emailPattern.MatchString(s):
		return TypeEmail
	case urlPattern.MatchString(s):
		return TypeURL
	case colorPattern.MatchString(s):
		return TypeColor
	case utf8.RuneCountInString(s) > longTextThreshold:
		return TypeText
	}
	return TypeString
}

// NameSuggestsRelation reports whether field is named like a foreign key:
// it ends in "_id", "Id" or "_key", or starts with "fk_".
func NameSuggestsRelation(field string) bool {
	switch {
	case len(field) > 3 && strings.HasSuffix(field, "_id"):
		return true
	case len(field) > 2 && strings.HasSuffix(field, "Id"):
		return true
	case len(field) > 4 && strings.HasSuffix(field, "_key"):
		return true
	case len(field) > 3 && strings.HasPrefix(strings.ToLower(field), "fk_"):
		return true
	}
	return false
}

// ValuesSuggestRelation reports whether every non-nil sample is a number
// or an identifier-like string. At least one non-nil sample is required.
func ValuesSuggestRelation(samples []any) bool {
	seen := false
	for _, v := range samples {
		if v == nil {
			continue
		}
		seen = true
		switch x := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
			continue
		case string:
			if identPattern.MatchString(x) {
				continue
			}
		}
		return false
	}
	return seen
}

// IsRelationLike reports whether field looks like a reference to another
// table, by its name or by its sampled values.
func IsRelationLike(field string, samples []any) bool {
	return NameSuggestsRelation(field) || ValuesSuggestRelation(samples)
}

// RelatedTableFromName derives the referenced table from a foreign key
// name. A trailing "_id" is stripped verbatim; other names are converted
// to snake_case first and lose their "fk_" prefix and "_id"/"_key" suffix.
func RelatedTableFromName(field string) string {
	if len(field) > 3 && strings.HasSuffix(field, "_id") {
		return strings.TrimSuffix(field, "_id")
	}

	name := toSnakeCase(field)
	if len(name) > 3 && strings.HasPrefix(strings.ToLower(name), "fk_") {
		name = name[3:]
	}
	for _, suffix := range []string{"_id", "_key"} {
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	return name
}
