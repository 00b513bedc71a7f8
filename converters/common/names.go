package common

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// TablePrefix is prepended to table names that cannot stand alone.
	TablePrefix = "table"
	// ColumnPrefix is prepended to column names that cannot stand alone.
	ColumnPrefix = "col"
	// SQUALLPrefix is prepended to SQUALL headers that cannot stand alone.
	SQUALLPrefix = "c"

	emptyName = "none"
)

// ErrOrdinalOverflow is returned when a name repeats more often than there
// are ordinal prefixes to tell the copies apart.
var ErrOrdinalOverflow = errors.New("too many duplicate names to disambiguate")

// NormalizedName holds the identifier form and the display form of a raw name.
type NormalizedName struct {
	Original   string // underscore-joined lowercase identifier
	Normalized string // space-separated token form for display
}

// substitution is one literal replacement step. Steps run in order, so an
// earlier step can change what a later one sees: "(s)" must go before "(".
type substitution struct {
	from, to string
}

var identifierSubstitutions = []substitution{
	{"\n", "_"},
	{"\t", "_"},
	{" ", "_"},
	{"!", ""},
	{"*", ""},
	{"®", ""},
	{"-", "_"},
	{"<", "less_than"},
	{"?", "_question_"},
	{"(s)", "s"},
	{"(", ""},
	{")", ""},
	{"$", "_dollar_"},
	{".", "_"},
	{"/", "_"},
	{",", "_"},
	{"%", "_percent_"},
	{"'", ""},
	{"[", ""},
	{"]", ""},
	{":", ""},
	{"=", "_equal_"},
	{"&", "_and_"},
	{"{", ""},
	{"}", ""},
	{"+", "_plus_"},
	{"#", "number"},
}

// squallSubstitutions differs only in the registered-sign entry: SQUALL
// headers carry it double-encoded.
var squallSubstitutions = func() []substitution {
	subs := make([]substitution, len(identifierSubstitutions))
	copy(subs, identifierSubstitutions)
	for i := range subs {
		if subs[i].from == "®" {
			subs[i].from = "Â®"
		}
	}
	return subs
}()

var ordinals = map[int]string{
	2:  "second_",
	3:  "third_",
	4:  "fourth_",
	5:  "fifth_",
	6:  "sixth_",
	7:  "seventh_",
	8:  "eighth_",
	9:  "ninth_",
	10: "tenth_",
	11: "eleventh_",
}

// MaxOccurrences is the number of identical names one table can hold.
const MaxOccurrences = 11

var (
	yearPattern      = regexp.MustCompile(`^\p{Nd}{4}_`)
	clauseWord       = regexp.MustCompile(`^(to|table|returning|return|in|where|from)(?:[^\p{L}\p{N}_]|$)`)
	leadingSpecial   = regexp.MustCompile(`^\p{Nd}|@|#|\$`)
	wordTokens       = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]`)
	repeatedUnderbar = regexp.MustCompile(`_+`)
)

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// NormalizeString turns a raw header or title into its identifier and
// display forms. A non-empty prefix is joined to the identifier form with
// an underscore. Neither form is ever empty.
func NormalizeString(name, prefix string) NormalizedName {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(asciiPunctuation, r) {
			return ' '
		}
		return r
	}, name)

	original := cases.Lower(language.Und).String(strings.Join(strings.Fields(name), "_"))
	normalized := strings.Join(wordTokens.FindAllString(strings.ReplaceAll(original, "_", " "), -1), " ")

	if prefix != "" {
		original = prefix + "_" + original
	}
	if original == "" {
		original = emptyName
	}
	if normalized == "" {
		normalized = emptyName
	}
	return NormalizedName{Original: original, Normalized: normalized}
}

func substitute(name string, subs []substitution) string {
	for _, s := range subs {
		name = strings.ReplaceAll(name, s.from, s.to)
	}
	return name
}

// EscapeForSQL rewrites name into a bare SQL identifier. Names that start
// with a four digit year get a "year_" prefix; reserved words, clause words
// and names starting with a digit or carrying @, # or $ get categoryPrefix.
func EscapeForSQL(name, categoryPrefix string) string {
	escaped := substitute(name, identifierSubstitutions)
	if escaped == "" {
		escaped = emptyName
	}

	switch {
	case yearPattern.MatchString(escaped):
		return "year_" + escaped
	case IsReserved(strings.ToLower(name)),
		clauseWord.MatchString(name),
		leadingSpecial.MatchString(name):
		return categoryPrefix + "_" + escaped
	}
	return escaped
}

// SQUALLHeader rewrites a SQUALL table header into a column identifier.
func SQUALLHeader(header string) string {
	h := substitute(header, squallSubstitutions)
	first, _ := utf8.DecodeRuneInString(h)
	if squallReserved.Contains(h) || h == "" || !unicode.IsLetter(first) {
		h = SQUALLPrefix + "_" + h
	}
	return repeatedUnderbar.ReplaceAllString(h, "_")
}

// Occurrences tracks the names already handed out for one table. A fresh
// value is needed per table.
type Occurrences struct {
	seen    map[string]int
	emitted map[string]struct{}
}

// NewOccurrences returns an empty tracker.
func NewOccurrences() *Occurrences {
	return &Occurrences{
		seen:    make(map[string]int),
		emitted: make(map[string]struct{}),
	}
}

// Disambiguate returns name on its first use and an ordinal-prefixed copy
// ("second_", "third_", ...) on later uses. The result never equals a name
// this tracker has returned before.
func (o *Occurrences) Disambiguate(name string) (string, error) {
	n := o.seen[name] + 1
	candidate := name
	for {
		if n > 1 {
			ord, ok := ordinals[n]
			if !ok {
				return "", fmt.Errorf("%w: %q seen %d times", ErrOrdinalOverflow, name, n)
			}
			candidate = ord + name
		}
		if _, taken := o.emitted[candidate]; !taken {
			break
		}
		n++
	}
	o.seen[name] = n
	o.emitted[candidate] = struct{}{}
	return candidate, nil
}

// Deduplicate disambiguates a whole list against a fresh tracker.
func Deduplicate(names []string) ([]string, error) {
	occ := NewOccurrences()
	out := make([]string, len(names))
	for i, name := range names {
		unique, err := occ.Disambiguate(name)
		if err != nil {
			return nil, err
		}
		out[i] = unique
	}
	return out, nil
}
