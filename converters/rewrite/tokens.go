package rewrite

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
)

// RootTable is the main table of every SQUALL database.
const RootTable = "w"

// Token is one element of a SQUALL query: its kind ("Keyword", "Column",
// "Literal.String", ...) and its text.
type Token struct {
	Type  string
	Value string
}

// UnmarshalJSON reads the [type, value, ...] array SQUALL stores tokens as.
// Elements after the value are ignored.
func (t *Token) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) < 2 {
		return fmt.Errorf("token must have at least 2 elements, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &t.Type); err != nil {
		return fmt.Errorf("bad token type: %w", err)
	}
	if err := json.Unmarshal(parts[1], &t.Value); err != nil {
		return fmt.Errorf("bad token value: %w", err)
	}
	return nil
}

// ColumnMapping resolves SQUALL placeholder columns c1..cN to the header
// identifiers of one database. It is built once and only read afterwards.
type ColumnMapping map[string]string

// NewColumnMapping maps c1 to headers[0], c2 to headers[1] and so on.
func NewColumnMapping(headers []string) ColumnMapping {
	m := make(ColumnMapping, len(headers))
	for i, h := range headers {
		m["c"+strconv.Itoa(i+1)] = h
	}
	return m
}

var placeholder = regexp.MustCompile(`c\d+`)

// Identifier renames a table or column of an original SQUALL database:
// a leading "t_" is dropped and the first cN placeholder is replaced by its
// header. Placeholders past the header count or with more than two digits
// are cell values, not columns, and stay.
func (m ColumnMapping) Identifier(name string) string {
	name = strings.TrimPrefix(name, "t_")
	token := placeholder.FindString(name)
	if token == "" || len(token) >= 4 {
		return name
	}
	n, err := strconv.Atoi(token[1:])
	if err != nil || n <= 0 || n > len(m) {
		return name
	}
	return strings.ReplaceAll(name, token, m[token])
}

// Token maps the part of a query token before its first underscore, so
// "c3_number" becomes "<header3>_number". Other tokens pass through.
func (m ColumnMapping) Token(token string) string {
	prefix, _, _ := strings.Cut(token, "_")
	if header, ok := m[prefix]; ok {
		return header + token[len(prefix):]
	}
	return token
}

// JoinTables lists the tables besides the root whose columns include one of
// the mentioned columns. Only derived "t_" tables are returned, without
// their prefix.
func JoinTables(mentioned map[string]struct{}, catalog []converters.CatalogTable) []string {
	var joins []string
	for _, t := range catalog {
		if t.Name == RootTable {
			continue
		}
		hit := false
		for _, c := range t.Columns {
			if _, ok := mentioned[c.Name]; ok {
				hit = true
				break
			}
		}
		if hit && strings.HasPrefix(t.Name, "t_") {
			joins = append(joins, strings.TrimPrefix(t.Name, "t_"))
		}
	}
	return joins
}

// Tokens renders a SQUALL token list as SQL against the unified database.
// catalog describes the original database. Every "from w" gains a JOIN on
// w.id = <t>.m_id for each derived table the query mentions a column of,
// then placeholder columns are mapped to header identifiers.
func Tokens(tokens []Token, mapping ColumnMapping, catalog []converters.CatalogTable) string {
	values := make([]string, len(tokens))
	mentioned := make(map[string]struct{})
	for i, t := range tokens {
		values[i] = t.Value
		if t.Type == "Column" {
			mentioned[t.Value] = struct{}{}
		}
	}
	sql := strings.Join(values, " ")

	if joins := JoinTables(mentioned, catalog); len(joins) > 0 {
		from := "from " + RootTable
		for _, jt := range joins {
			from += fmt.Sprintf(" JOIN %s ON %s.id = %s.m_id", jt, RootTable, jt)
		}
		sql = strings.ReplaceAll(sql, "from "+RootTable, from)
	}

	fields := strings.Fields(sql)
	for i, f := range fields {
		fields[i] = mapping.Token(f)
	}
	return strings.Join(fields, " ")
}
