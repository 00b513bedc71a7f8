package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeString(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		prefix     string
		original   string
		normalized string
	}{
		{"Simple", "Player", "", "player", "player"},
		{"TrailingPunct", "No.", "", "no", "no"},
		{"YearRange", "2006-07", "", "2006_07", "2006 07"},
		{"Spaces", "  Years in   Toronto ", "", "years_in_toronto", "years in toronto"},
		{"Slash", "School/Club Team", "", "school_club_team", "school club team"},
		{"Underscore", "first_name", "", "first_name", "first name"},
		{"Prefix", "Name", "t", "t_name", "name"},
		{"Unicode", "Élan Vital", "", "élan_vital", "élan vital"},
		{"NonASCIISymbol", "Brand®", "", "brand®", "brand ®"},
		{"Empty", "", "", "none", "none"},
		{"OnlyPunct", "?!.", "", "none", "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeString(tt.in, tt.prefix)
			assert.Equal(t, tt.original, got.Original)
			assert.Equal(t, tt.normalized, got.Normalized)
		})
	}
}

func TestNormalizeStringNeverEmpty(t *testing.T) {
	inputs := []string{"", " ", "\t\n", "---", "()", "'\"", "_"}
	for _, in := range inputs {
		got := NormalizeString(in, "")
		assert.NotEmpty(t, got.Original, "input %q", in)
		assert.NotEmpty(t, got.Normalized, "input %q", in)
	}
}

func TestEscapeForSQL(t *testing.T) {
	tests := []struct {
		in       string
		prefix   string
		expected string
	}{
		{"player", ColumnPrefix, "player"},
		{"2006_07", ColumnPrefix, "year_2006_07"},
		{"2006_07_season", TablePrefix, "year_2006_07_season"},
		{"select", ColumnPrefix, "col_select"},
		{"table", ColumnPrefix, "col_table"},
		{"order", ColumnPrefix, "col_order"},
		{"ORDER", ColumnPrefix, "col_ORDER"},
		{"in", TablePrefix, "table_in"},
		{"1953", ColumnPrefix, "col_1953"},
		{"rank#", ColumnPrefix, "col_ranknumber"},
		{"price($)", ColumnPrefix, "col_price_dollar_"},
		{"from_date", ColumnPrefix, "from_date"},
		{"inédit", ColumnPrefix, "inédit"},
		{"in_état", ColumnPrefix, "in_état"},
		{"١٢٣abc", ColumnPrefix, "col_١٢٣abc"},
		{"a<b", ColumnPrefix, "aless_thanb"},
		{"team(s)", ColumnPrefix, "teams"},
		{"w/l", ColumnPrefix, "w_l"},
		{"pct%", ColumnPrefix, "pct_percent_"},
		{"", ColumnPrefix, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, EscapeForSQL(tt.in, tt.prefix))
		})
	}
}

func TestNormalizeThenEscape(t *testing.T) {
	headers := []string{"Player", "No.", "2006-07"}
	want := []string{"player", "no", "year_2006_07"}
	for i, h := range headers {
		n := NormalizeString(h, "")
		assert.Equal(t, want[i], EscapeForSQL(n.Original, ColumnPrefix))
	}
}

func TestSQUALLHeader(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Player", "Player"},
		{"id", "c_id"},
		{"agg", "c_agg"},
		{"select", "c_select"},
		{"2006-07", "c_2006_07"},
		{"No.", "No_"},
		{"Pos. / Team", "Pos_Team"},
		{"Score (s)", "Score_s"},
		{"BrandÂ®", "Brand"},
		{"", "c_"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, SQUALLHeader(tt.in))
		})
	}
}

func TestDeduplicate(t *testing.T) {
	got, err := Deduplicate([]string{"a", "a", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "second_a", "b", "third_a"}, got)
}

func TestDeduplicateAvoidsEmittedNames(t *testing.T) {
	got, err := Deduplicate([]string{"second_a", "a", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"second_a", "a", "third_a"}, got)
}

func TestDeduplicateLimit(t *testing.T) {
	names := make([]string, MaxOccurrences)
	for i := range names {
		names[i] = "goals"
	}
	got, err := Deduplicate(names)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, n := range got {
		assert.False(t, seen[n], "duplicate output %q", n)
		seen[n] = true
	}
	assert.Equal(t, "eleventh_goals", got[MaxOccurrences-1])

	_, err = Deduplicate(append(names, "goals"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOrdinalOverflow))
}

func TestOccurrencesArePerTracker(t *testing.T) {
	first := NewOccurrences()
	second := NewOccurrences()

	a, err := first.Disambiguate("name")
	require.NoError(t, err)
	b, err := second.Disambiguate("name")
	require.NoError(t, err)

	assert.Equal(t, "name", a)
	assert.Equal(t, "name", b)
}

func BenchmarkNormalizeAndEscape(b *testing.B) {
	raw := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		raw = append(raw, fmt.Sprintf("Column %d (s) / Total %%", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, r := range raw {
			EscapeForSQL(NormalizeString(r, "").Original, ColumnPrefix)
		}
	}
}
