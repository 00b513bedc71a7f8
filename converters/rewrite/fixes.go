package rewrite

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var spacedOperators = strings.NewReplacer("! =", "!=", "> =", ">=", "< =", "<=")

// FixSpacedOperators joins comparison operators that were tokenized apart,
// which SQLite rejects.
func FixSpacedOperators(query string) string {
	return spacedOperators.Replace(query)
}

// StripSchemaPrefix removes every "<schema>." qualifier.
func StripSchemaPrefix(query, schema string) string {
	return strings.ReplaceAll(query, schema+".", "")
}

// FetchFirstToLimit replaces a trailing "FETCH FIRST n ROWS ONLY" clause
// with "LIMIT n". Everything from FETCH on is dropped.
func FetchFirstToLimit(query string) string {
	idx := strings.Index(query, "FETCH")
	if idx < 0 {
		return query
	}
	_, after, ok := strings.Cut(query, "FETCH FIRST")
	if !ok {
		return query
	}
	n, _, _ := strings.Cut(after, "ROWS ONLY")
	return query[:idx] + "LIMIT " + strings.TrimSpace(n)
}

// SubstituteVariables fills anonymized variables into a question and its
// query, longest name first so no name clobbers a longer one containing it.
// An empty value becomes the "%" wildcard and equality against it turns into
// LIKE.
func SubstituteVariables(question, query string, vars map[string]string) (string, string) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.SortStableFunc(names, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	for _, name := range names {
		value := vars[name]
		if value == "" {
			value = "%"
		}
		question = strings.ReplaceAll(question, name, value)
		query = strings.ReplaceAll(query, name, value)
	}
	query = strings.ReplaceAll(query, `= "%"`, `LIKE "%"`)
	query = strings.ReplaceAll(query, "= %", `LIKE "%"`)
	return question, query
}

var sqlToken = regexp.MustCompile(`'(?:[^']|'')*'|"(?:[^"]|"")*"|[\p{L}\p{N}_]+|<=|>=|<>|!=|\S`)

// TokenizeSQL splits a query into string literals, words, two-character
// comparison operators and single punctuation characters.
func TokenizeSQL(query string) []string {
	return sqlToken.FindAllString(query, -1)
}

// AnonymizeAliases renames every token containing "alias" to T1, T2, ... in
// order of first appearance. Double quotes become single quotes and the
// result is re-joined with single spaces, without spaces around dots.
func AnonymizeAliases(query string) string {
	tokens := TokenizeSQL(query)
	aliases := make(map[string]string)
	for i, tok := range tokens {
		tok = strings.ReplaceAll(tok, `"`, "'")
		tokens[i] = tok
		if strings.Contains(tok, "alias") {
			if _, ok := aliases[tok]; !ok {
				aliases[tok] = "T" + strconv.Itoa(len(aliases)+1)
			}
		}
	}
	for i, tok := range tokens {
		if alias, ok := aliases[tok]; ok {
			tokens[i] = alias
		}
	}
	return strings.ReplaceAll(strings.Join(tokens, " "), " . ", ".")
}

// CaseInsensitive appends COLLATE NOCASE after every quoted literal, for
// databases whose stored values differ in case from the questions.
func CaseInsensitive(query string) string {
	var b strings.Builder
	var open rune
	for _, r := range query {
		b.WriteRune(r)
		switch {
		case (r == '"' || r == '\'') && open == 0:
			open = r
		case r == open:
			open = 0
			b.WriteString(" COLLATE NOCASE")
		}
	}
	return b.String()
}
