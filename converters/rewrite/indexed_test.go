package rewrite

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordsSchema() *converters.SchemaDescriptor {
	s := converters.NewSchemaDescriptor("1-10015132-11")
	s.TableNames = []string{"records"}
	s.TableNamesOriginal = []string{"records"}
	s.ColumnNamesOriginal = []converters.ColumnRef{{Table: 0, Name: "player"}, {Table: 0, Name: "no"}, {Table: 0, Name: "year_2006_07"}}
	s.ColumnNames = []converters.ColumnRef{{Table: 0, Name: "player"}, {Table: 0, Name: "no"}, {Table: 0, Name: "2006 07"}}
	s.ColumnTypes = []converters.ColumnType{converters.TypeText, converters.TypeNumber, converters.TypeText}
	return s
}

func decodeQuery(t *testing.T, data string) IndexedQuery {
	t.Helper()
	var q IndexedQuery
	require.NoError(t, json.Unmarshal([]byte(data), &q))
	return q
}

func TestIndexed(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{
			name:     "CountWithStringCondition",
			query:    `{"sel":1,"agg":3,"conds":[[0,0,"Duke"]]}`,
			expected: `SELECT COUNT(no) FROM records WHERE player = "Duke"`,
		},
		{
			name:     "NoAggregateNoConditions",
			query:    `{"sel":0,"agg":0,"conds":[]}`,
			expected: `SELECT player FROM records`,
		},
		{
			name:     "NumericAndStringConditions",
			query:    `{"sel":2,"agg":1,"conds":[[1,1,21],[0,0,"'Antonio Lang'"]]}`,
			expected: `SELECT MAX(year_2006_07) FROM records WHERE no > 21 AND player = "Antonio Lang"`,
		},
		{
			name:     "NumericString",
			query:    `{"sel":0,"agg":0,"conds":[[1,2,"3.5"]]}`,
			expected: `SELECT player FROM records WHERE no < 3.5`,
		},
		{
			name:     "WrappedInDoubleQuotes",
			query:    `{"sel":0,"agg":0,"conds":[[2,0,"\"Duke\""]]}`,
			expected: `SELECT player FROM records WHERE year_2006_07 = "Duke"`,
		},
		{
			name:     "SingleInnerQuoteKept",
			query:    `{"sel":0,"agg":0,"conds":[[2,0,"6\" tall"]]}`,
			expected: `SELECT player FROM records WHERE year_2006_07 = "6" tall"`,
		},
		{
			name:     "OpOperator",
			query:    `{"sel":0,"agg":5,"conds":[[1,3,"x"]]}`,
			expected: `SELECT AVG(player) FROM records WHERE no OP "x"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Indexed(decodeQuery(t, tt.query), recordsSchema())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIndexedErrors(t *testing.T) {
	_, err := Indexed(decodeQuery(t, `{"sel":7,"agg":0,"conds":[]}`), recordsSchema())
	assert.True(t, errors.Is(err, ErrBadIndex))

	_, err = Indexed(decodeQuery(t, `{"sel":0,"agg":9,"conds":[]}`), recordsSchema())
	assert.True(t, errors.Is(err, ErrBadIndex))

	_, err = Indexed(decodeQuery(t, `{"sel":0,"agg":0,"conds":[[0,4,"x"]]}`), recordsSchema())
	assert.True(t, errors.Is(err, ErrBadOperator))

	_, err = Indexed(decodeQuery(t, `{"sel":0,"agg":0,"conds":[[-1,0,"x"]]}`), recordsSchema())
	assert.True(t, errors.Is(err, ErrBadIndex))

	_, err = Indexed(IndexedQuery{}, converters.NewSchemaDescriptor("empty"))
	assert.True(t, errors.Is(err, ErrBadIndex))
}

func TestConditionRejectsShortTriple(t *testing.T) {
	var c Condition
	assert.Error(t, json.Unmarshal([]byte(`[0, 0]`), &c))
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		value    string
		numeric  bool
		expected string
	}{
		{"21", true, "21"},
		{"21", false, "21"},
		{"Duke", false, `"Duke"`},
		{"'Duke'", false, `"Duke"`},
		{`"Duke"`, false, `"Duke"`},
		{`"a" "b"`, false, `""a" "b""`},
		{`He said "hi"`, false, `"He said "hi""`},
		{"", false, `""`},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.expected, Literal(tt.value, tt.numeric))
		})
	}
}
