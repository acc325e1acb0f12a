package memory

import (
	"io"

	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/query"
	"go.yaml.in/yaml/v3"
)

// seedFile is the YAML shape accepted by LoadSeed:
//
//	tables:
//	  customers:
//	    primary_key: id
//	    rows:
//	      - {id: 1, name: Ada, email: ada@example.com}
//
// Column order follows the key order of the first row.
type seedFile struct {
	Tables map[string]seedTable `yaml:"tables"`
}

type seedTable struct {
	PrimaryKey string      `yaml:"primary_key"`
	Columns    []string    `yaml:"columns"`
	Rows       []yaml.Node `yaml:"rows"`
}

// LoadSeed creates the tables described by the YAML document in r and
// fills them with its rows.
func (s *Store) LoadSeed(r io.Reader) error {
	var doc seedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid seed document", err)
	}

	for name, st := range doc.Tables {
		rows := make([]query.Record, 0, len(st.Rows))
		columns := st.Columns
		for i := range st.Rows {
			keys, rec, err := decodeRow(&st.Rows[i])
			if err != nil {
				return errs.Wrap(errs.ErrKindInvalidInput, "invalid row in table "+name, err)
			}
			if len(columns) == 0 {
				columns = keys
			}
			rows = append(rows, rec)
		}
		s.CreateTable(name, st.PrimaryKey, columns...)
		s.Put(name, rows...)
	}
	return nil
}

// decodeRow reads a mapping node, keeping its key order.
func decodeRow(n *yaml.Node) ([]string, query.Record, error) {
	if n.Kind != yaml.MappingNode {
		return nil, nil, errs.Newf(errs.ErrKindInvalidInput, "line %d: row must be a mapping", n.Line)
	}
	keys := make([]string, 0, len(n.Content)/2)
	rec := make(query.Record, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		var v any
		if err := n.Content[i+1].Decode(&v); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		rec[key] = v
	}
	return keys, rec, nil
}
