package common

// SQLiteKeywords is the full keyword list recognized by SQLite, lowercased.
// https://sqlite.org/lang_keywords.html
var SQLiteKeywords = []string{
	"abort", "action", "add", "after", "all", "alter", "always", "analyze", "and", "as",
	"asc", "attach", "autoincrement", "before", "begin", "between", "by", "cascade", "case", "cast",
	"check", "collate", "column", "commit", "conflict", "constraint", "create", "cross", "current", "current_date",
	"current_time", "current_timestamp", "database", "default", "deferrable", "deferred", "delete", "desc", "detach", "distinct",
	"do", "drop", "each", "else", "end", "escape", "except", "exclude", "exclusive", "exists",
	"explain", "fail", "filter", "first", "following", "for", "foreign", "from", "full", "generated",
	"glob", "group", "groups", "having", "if", "ignore", "immediate", "in", "index", "indexed",
	"initially", "inner", "insert", "instead", "intersect", "into", "is", "isnull", "join", "key",
	"last", "left", "like", "limit", "match", "materialized", "natural", "no", "not", "nothing",
	"notnull", "null", "nulls", "of", "offset", "on", "or", "order", "others", "outer",
	"over", "partition", "plan", "pragma", "preceding", "primary", "query", "raise", "range", "recursive",
	"references", "regexp", "reindex", "release", "rename", "replace", "restrict", "returning", "right", "rollback",
	"row", "rows", "savepoint", "select", "set", "table", "temp", "temporary", "then", "ties",
	"to", "transaction", "trigger", "unbounded", "union", "unique", "update", "using", "vacuum", "values",
	"view", "virtual", "when", "where", "window", "with", "without",
}

// reservedWords is the short list of words that break a generated
// identifier when it appears bare in a WikiSQL-style query.
var reservedWords = []string{
	"order", "view", "select", "from", "group", "exists", "index", "drop",
	"top", "set", "values", "union", "unique", "or", "limit", "like",
	"where", "not", "join", "desc", "default", "database", "delete",
	"distinct", "check", "case", "alter", "any", "all", "add", "asc", "as",
	"in", "table", "returning", "return",
}

// KeywordSet is a lookup set over lowercased keywords.
type KeywordSet map[string]struct{}

// NewKeywordSet builds a set from words, adding extra on top.
func NewKeywordSet(words []string, extra ...string) KeywordSet {
	set := make(KeywordSet, len(words)+len(extra))
	for _, w := range words {
		set[w] = struct{}{}
	}
	for _, w := range extra {
		set[w] = struct{}{}
	}
	return set
}

// Contains reports whether word is in the set.
func (s KeywordSet) Contains(word string) bool {
	_, ok := s[word]
	return ok
}

var (
	reservedSet = NewKeywordSet(reservedWords)

	// squallReserved adds the two column names every SQUALL table carries.
	squallReserved = NewKeywordSet(SQLiteKeywords, "id", "agg")
)

// IsReserved reports whether the lowercased name collides with a word that
// must be prefixed before use as an identifier.
func IsReserved(name string) bool {
	return reservedSet.Contains(name)
}
