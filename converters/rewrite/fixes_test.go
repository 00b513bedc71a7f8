package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixSpacedOperators(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a != 1 AND b >= 2 AND c <= 3",
		FixSpacedOperators("SELECT * FROM t WHERE a ! = 1 AND b > = 2 AND c < = 3"))
}

func TestFetchFirstToLimit(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"SELECT name FROM corp ORDER BY revenue DESC FETCH FIRST 5 ROWS ONLY", "SELECT name FROM corp ORDER BY revenue DESC LIMIT 5"},
		{"SELECT name FROM corp", "SELECT name FROM corp"},
		{"SELECT FETCHED FROM corp", "SELECT FETCHED FROM corp"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FetchFirstToLimit(tt.in))
	}
}

func TestStripSchemaPrefix(t *testing.T) {
	assert.Equal(t, "SELECT a.name FROM corp a", StripSchemaPrefix("SELECT a.name FROM FIBEN.corp a", "FIBEN"))
}

func TestSubstituteVariables(t *testing.T) {
	q, sql := SubstituteVariables(
		"flights from city_name0 to city_name1",
		`SELECT f.id FROM flight f WHERE f.from = "city_name0" AND f.to = "city_name1" AND f.day = "day_name0"`,
		map[string]string{"city_name0": "boston", "city_name1": "denver", "day_name0": ""},
	)
	assert.Equal(t, "flights from boston to denver", q)
	assert.Equal(t, `SELECT f.id FROM flight f WHERE f.from = "boston" AND f.to = "denver" AND f.day LIKE "%"`, sql)
}

func TestSubstituteVariablesLongestFirst(t *testing.T) {
	_, sql := SubstituteVariables("", "year0 year01", map[string]string{"year0": "A", "year01": "B"})
	assert.Equal(t, "A B", sql)
}

func TestAnonymizeAliases(t *testing.T) {
	got := AnonymizeAliases(`SELECT CITYalias0.CITY_NAME FROM CITY AS CITYalias0 WHERE CITYalias0.STATE_NAME = "texas" AND CITYalias0.POPULATION > 1.5`)
	assert.Equal(t, "SELECT T1.CITY_NAME FROM CITY AS T1 WHERE T1.STATE_NAME = 'texas' AND T1.POPULATION > 1.5", got)

	got = AnonymizeAliases("SELECT COUNT(*) FROM A AS Aalias0 JOIN B AS Balias0 ON Aalias0.x <= Balias0.y")
	assert.Equal(t, "SELECT COUNT ( * ) FROM A AS T1 JOIN B AS T2 ON T1.x <= T2.y", got)
}

func TestCaseInsensitive(t *testing.T) {
	assert.Equal(t, `SELECT a FROM t WHERE b = "x" COLLATE NOCASE AND c = 'y"' COLLATE NOCASE`,
		CaseInsensitive(`SELECT a FROM t WHERE b = "x" AND c = 'y"'`))
}
