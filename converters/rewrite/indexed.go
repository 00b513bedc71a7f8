// Package rewrite turns structured, schema-relative query forms into SQL
// text that runs against the unified databases.
package rewrite

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
)

var (
	// ErrBadIndex means a column, aggregate or table index is out of range.
	ErrBadIndex = errors.New("index out of range")
	// ErrBadOperator means a comparator code is out of range.
	ErrBadOperator = errors.New("unknown comparison operator")
)

// AggOps maps the WikiSQL aggregate code to its SQL function.
var AggOps = []string{"", "MAX", "MIN", "COUNT", "SUM", "AVG"}

// CondOps maps the WikiSQL comparator code to its SQL operator.
var CondOps = []string{"=", ">", "<", "OP"}

// Condition is one [column, operator, value] triple of a WikiSQL query.
type Condition struct {
	Column   int
	Operator int
	Value    string
	Numeric  bool // the value was a JSON number
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var triple []json.RawMessage
	if err := json.Unmarshal(data, &triple); err != nil {
		return err
	}
	if len(triple) != 3 {
		return fmt.Errorf("condition must have 3 elements, got %d", len(triple))
	}
	if err := json.Unmarshal(triple[0], &c.Column); err != nil {
		return fmt.Errorf("bad condition column: %w", err)
	}
	if err := json.Unmarshal(triple[1], &c.Operator); err != nil {
		return fmt.Errorf("bad condition operator: %w", err)
	}
	raw := bytes.TrimSpace(triple[2])
	if len(raw) > 0 && raw[0] == '"' {
		return json.Unmarshal(raw, &c.Value)
	}
	c.Value = string(raw)
	c.Numeric = true
	return nil
}

// IndexedQuery is the WikiSQL structured query: a selected column, an
// aggregate code and a list of conditions.
type IndexedQuery struct {
	Sel   int         `json:"sel"`
	Agg   int         `json:"agg"`
	Conds []Condition `json:"conds"`
}

// Indexed renders q against the single-table schema it was written for.
// Column indices resolve through column_names_original without the
// wildcard entry.
func Indexed(q IndexedQuery, schema *converters.SchemaDescriptor) (string, error) {
	if len(schema.TableNamesOriginal) == 0 {
		return "", fmt.Errorf("%s has no table: %w", schema.DBID, ErrBadIndex)
	}
	column := func(i int) (string, error) {
		if i < 0 || i >= len(schema.ColumnNamesOriginal) {
			return "", fmt.Errorf("column %d of %s: %w", i, schema.DBID, ErrBadIndex)
		}
		return schema.ColumnNamesOriginal[i].Name, nil
	}

	sel, err := column(q.Sel)
	if err != nil {
		return "", err
	}
	if q.Agg < 0 || q.Agg >= len(AggOps) {
		return "", fmt.Errorf("aggregate %d: %w", q.Agg, ErrBadIndex)
	}

	parts := []string{"SELECT"}
	if agg := AggOps[q.Agg]; agg == "" {
		parts = append(parts, sel)
	} else {
		parts = append(parts, agg+"("+sel+")")
	}
	parts = append(parts, "FROM", schema.TableNamesOriginal[0])

	for i, cond := range q.Conds {
		if i == 0 {
			parts = append(parts, "WHERE")
		} else {
			parts = append(parts, "AND")
		}
		col, err := column(cond.Column)
		if err != nil {
			return "", err
		}
		if cond.Operator < 0 || cond.Operator >= len(CondOps) {
			return "", fmt.Errorf("operator %d: %w", cond.Operator, ErrBadOperator)
		}
		parts = append(parts, col, CondOps[cond.Operator], Literal(cond.Value, cond.Numeric))
	}
	return strings.Join(parts, " "), nil
}

// Literal renders a condition value. Anything that parses as a float is
// written as is. Other values lose one layer of wrapping quotes and are
// double-quoted, unless they hold exactly one or more than two double
// quotes, in which case only the outer quotes are added.
func Literal(value string, numeric bool) string {
	if numeric || isFloat(value) {
		return value
	}
	if n := strings.Count(value, `"`); n != 1 && n <= 2 {
		if len(value) >= 1 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
			value = strings.Trim(value, `"`)
		}
		if len(value) >= 1 && strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'") {
			value = strings.Trim(value, "'")
		}
	}
	return `"` + value + `"`
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}
