package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key namespaces. Every key is "<namespace>:<escaped table>:..." so two
// tables can never share a prefix.
const (
	nsSchema  = "schema"
	nsEntity  = "entity"
	nsList    = "list"
	nsOptions = "options"
)

// ListQuery is the part of a list request that changes its result.
type ListQuery struct {
	Filters map[string]any `json:"filters,omitempty"`
	OrderBy string         `json:"order_by,omitempty"`
	Desc    bool           `json:"desc,omitempty"`
	Limit   int            `json:"limit,omitempty"`
	Offset  int            `json:"offset,omitempty"`
}

// SchemaKey is the key of a table's normalized schema.
func SchemaKey(table string) string {
	return join(nsSchema, table)
}

// EntityKey is the key of a single row of table.
func EntityKey(table string, id any) string {
	return join(nsEntity, table, fmt.Sprint(id))
}

// EntityPrefix matches every cached row of table.
func EntityPrefix(table string) string {
	return join(nsEntity, table) + ":"
}

// ListKey is the key of one list result of table. Filters are hashed in
// sorted order so equivalent queries share a key.
func ListKey(table string, q ListQuery) string {
	return ListPrefix(table) + FilterHash(q)
}

// ListPrefix matches every cached list of table.
func ListPrefix(table string) string {
	return join(nsList, table) + ":"
}

// OptionsKey is the key of the relation option list for table.
func OptionsKey(table string) string {
	return join(nsOptions, table)
}

// FilterHash returns a short stable hash of q.
func FilterHash(q ListQuery) string {
	var sb strings.Builder

	cols := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	for _, c := range cols {
		v, err := json.Marshal(q.Filters[c])
		if err != nil {
			v = []byte(fmt.Sprintf("%#v", q.Filters[c]))
		}
		fmt.Fprintf(&sb, "%s=%s&", url.QueryEscape(c), v)
	}
	fmt.Fprintf(&sb, "order=%s:%t&limit=%d&offset=%d", url.QueryEscape(q.OrderBy), q.Desc, q.Limit, q.Offset)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}

func join(ns string, parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, ns)
	for _, p := range parts {
		escaped = append(escaped, url.QueryEscape(p))
	}
	return strings.Join(escaped, ":")
}
