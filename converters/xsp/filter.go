package xsp

import (
	"strings"
)

// copiable reports whether every quoted value and every number compared in
// query appears verbatim in question. LIKE wildcards are ignored and the
// numbers 0 and 1 may always be generated.
func copiable(question, query string) bool {
	var (
		quote      byte
		value      strings.Builder
		number     strings.Builder
		inEquality bool
	)
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0 && c == quote:
			quote = 0
			if !strings.Contains(question, strings.ReplaceAll(value.String(), "%", "")) {
				return false
			}
			value.Reset()
		case quote != 0:
			value.WriteByte(c)
		case c == '"' || c == '\'':
			quote = c
		}

		if c == '=' || c == '>' || c == '<' {
			inEquality = true
		}
		if !inEquality {
			continue
		}
		if (c >= '0' && c <= '9') || c == '.' {
			if number.Len() > 0 || (value.Len() == 0 && i > 0 && query[i-1] == ' ') {
				number.WriteByte(c)
			}
		}
		if c == ' ' && number.Len() > 0 {
			inEquality = false
			n := number.String()
			if n != "0" && n != "1" && !strings.Contains(question, n) {
				return false
			}
			number.Reset()
		}
	}
	return true
}

// singleSelect reports whether the query selects one column at the top,
// judged by the absence of a comma before its first FROM.
func singleSelect(query string) bool {
	i := strings.Index(strings.ToLower(query), "from")
	if i < 0 {
		return true
	}
	return !strings.Contains(query[:i], ",")
}

// isCount reports whether query starts by selecting a count.
func isCount(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	return strings.HasPrefix(q, "select count") || strings.HasPrefix(q, "select distinct count")
}

// zeroResult reports whether rows is exactly one row holding the value 0.
func zeroResult(rows [][]any) bool {
	if len(rows) != 1 || len(rows[0]) != 1 {
		return false
	}
	switch v := rows[0][0].(type) {
	case int64:
		return v == 0
	case float64:
		return v == 0
	case string:
		return v == "0"
	case []byte:
		return string(v) == "0"
	}
	return false
}
