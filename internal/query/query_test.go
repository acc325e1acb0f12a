package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultSet_FieldNames(t *testing.T) {
	rs := &ResultSet{
		Columns: []string{"orders_id", "reference", "status"},
		Records: []Record{{"status": "open", "orders_id": 1, "reference": "A-1"}},
	}
	assert.Equal(t, []string{"orders_id", "reference", "status"}, rs.FieldNames())
}

func TestResultSet_FieldNamesWithoutColumns(t *testing.T) {
	rs := &ResultSet{Records: []Record{{"b": 1, "a": 2}}}
	assert.Equal(t, []string{"a", "b"}, rs.FieldNames())
}

func TestResultSet_FieldNamesUsesFirstRecordOnly(t *testing.T) {
	rs := &ResultSet{
		Columns: []string{"id", "name", "extra"},
		Records: []Record{{"id": 1, "name": "x"}, {"id": 2, "name": "y", "extra": true}},
	}
	assert.Equal(t, []string{"id", "name"}, rs.FieldNames())
}

func TestResultSet_Empty(t *testing.T) {
	var rs *ResultSet
	assert.Equal(t, 0, rs.Len())
	assert.Nil(t, (&ResultSet{}).FieldNames())
}

func TestRecord_Clone(t *testing.T) {
	r := Record{"a": 1}
	c := r.Clone()
	c["a"] = 2
	assert.Equal(t, 1, r["a"])
	assert.Nil(t, Record(nil).Clone())
}
