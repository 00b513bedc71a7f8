package xsp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const questions = `[
  {
    "sql": ["SELECT CITYalias0.CITY_NAME FROM CITY AS CITYalias0 WHERE CITYalias0.STATE_NAME = \"state_name0\""],
    "variables": [{"name": "state_name0", "location": "both", "example": "texas", "type": "state_name"}],
    "sentences": [
      {"text": "cities in state_name0", "variables": {"state_name0": "texas"}, "question-split": "train"},
      {"text": "cities in state_name0", "variables": {"state_name0": "ohio"}, "question-split": "dev"},
      {"text": "towns in state_name0", "variables": {"state_name0": "texas"}, "question-split": "test"}
    ]
  },
  {
    "sql": ["SELECT nope FROM nowhere"],
    "variables": [],
    "sentences": [{"text": "broken", "variables": {}, "question-split": "dev"}]
  },
  {
    "sql": ["SELECT CITYalias0.CITY_NAME FROM CITY AS CITYalias0 WHERE CITYalias0.POPULATION = \"population0\"", "unused variant"],
    "variables": [{"name": "population0", "location": "sql-only"}],
    "sentences": [{"text": "all cities", "variables": {}, "question-split": "train"}]
  }
]`

func setup(t *testing.T, name, cityState string) *converters.Env {
	t.Helper()
	ctx := context.Background()
	env := &converters.Env{Name: name, OriginalDir: t.TempDir(), OutDir: filepath.Join(t.TempDir(), name), QueryTimeout: 5 * time.Second}
	require.NoError(t, os.WriteFile(filepath.Join(env.OriginalDir, name+".json"), []byte(questions), 0644))

	db, err := converters.OpenStore(ctx, filepath.Join(env.OriginalDir, name+".sqlite"))
	require.NoError(t, err)
	require.NoError(t, converters.ExecScript(ctx, db, `
		CREATE TABLE CITY (CITY_NAME TEXT, STATE_NAME TEXT, POPULATION INTEGER);
		INSERT INTO CITY VALUES ('austin', '`+cityState+`', 790000), ('dallas', '`+cityState+`', 1200000);
	`))
	require.NoError(t, db.Close())
	return env
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestConvert(t *testing.T) {
	env := setup(t, "geoquery", "texas")
	r := &Run{Name: "geoquery", Splits: []string{"train", "dev"}}

	report, err := r.Convert(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ExamplesWritten)
	assert.Equal(t, 2, report.ExamplesDropped)

	lines := readLines(t, filepath.Join(env.OutDir, "test.jsonl"))
	require.Len(t, lines, 2)
	assert.Equal(t, `{"db_id":"geoquery","question":"cities in texas","query":"SELECT T1.CITY_NAME FROM CITY AS T1 WHERE T1.STATE_NAME = 'texas'"}`, lines[0])
	assert.Equal(t, `{"db_id":"geoquery","question":"all cities","query":"SELECT T1.CITY_NAME FROM CITY AS T1 WHERE T1.POPULATION LIKE '%'"}`, lines[1])

	schemas, err := converters.ReadTables(filepath.Join(env.OutDir, "tables.json"))
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "geoquery", schemas[0].DBID)
	assert.FileExists(t, converters.StorePath(env.OutDir, "geoquery"))
}

func TestConvertCaseInsensitive(t *testing.T) {
	env := setup(t, "scholar", "TEXAS")

	sensitive := &Run{Name: "scholar", Splits: []string{"train"}}
	report, err := sensitive.Convert(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ExamplesWritten)

	insensitive := &Run{Name: "scholar", Splits: []string{"train"}, CaseInsensitive: true}
	report, err = insensitive.Convert(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ExamplesWritten)
	lines := readLines(t, filepath.Join(env.OutDir, "test.jsonl"))
	assert.NotContains(t, lines[0], "COLLATE")
}

func TestConvertLeavesSourceUntouched(t *testing.T) {
	ctx := context.Background()
	env := setup(t, "scholar", "texas")
	r := &Run{Name: "scholar", Splits: []string{"train"}, KeepFraction: 0.5}
	_, err := r.Convert(ctx, env)
	require.NoError(t, err)

	for path, want := range map[string]int{
		filepath.Join(env.OriginalDir, "scholar.sqlite"): 2,
		converters.StorePath(env.OutDir, "scholar"):      1,
	} {
		db, err := converters.OpenExisting(ctx, path)
		require.NoError(t, err)
		var n int
		require.NoError(t, db.QueryRow("SELECT count(*) FROM CITY").Scan(&n))
		db.Close()
		assert.Equal(t, want, n, path)
	}
}

func TestReduce(t *testing.T) {
	ctx := context.Background()
	db, err := converters.OpenStore(ctx, filepath.Join(t.TempDir(), "big.sqlite"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, converters.ExecScript(ctx, db, `
		CREATE TABLE paper (id INTEGER PRIMARY KEY, title TEXT);
		WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 250)
		INSERT INTO paper SELECT i, 'paper ' || i FROM n;
	`))

	require.NoError(t, Reduce(ctx, db, 0.01, false))
	var n, first int
	require.NoError(t, db.QueryRow("SELECT count(*), min(id) FROM paper").Scan(&n, &first))
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, first)
}

func TestRunsAreRegistered(t *testing.T) {
	for _, r := range Runs {
		_, err := converters.Lookup(r.Name)
		assert.NoError(t, err, r.Name)
	}
}

func TestMissingQuestions(t *testing.T) {
	r := &Run{Name: "atis", Splits: []string{"dev"}}
	_, err := r.Convert(context.Background(), &converters.Env{Name: "atis", OriginalDir: t.TempDir(), OutDir: t.TempDir()})
	assert.ErrorIs(t, err, converters.ErrMissingInput)
}

func TestCopiable(t *testing.T) {
	tests := []struct {
		name     string
		question string
		query    string
		want     bool
	}{
		{"quoted value present", "cities in texas", "SELECT c FROM city WHERE s = 'texas'", true},
		{"quoted value missing", "cities in the south", "SELECT c FROM city WHERE s = 'texas'", false},
		{"double quotes", "papers by smith", `SELECT p FROM paper WHERE a = "smith"`, true},
		{"like wildcards", "names with ann", "SELECT n FROM person WHERE n LIKE '%ann%'", true},
		{"number present", "cities over 5000 people", "SELECT c FROM city WHERE p > 5000 ORDER BY c", true},
		{"number missing", "big cities", "SELECT c FROM city WHERE p > 5000 ORDER BY c", false},
		{"zero and one allowed", "cities", "SELECT c FROM city WHERE p > 1 AND q = 0 ORDER BY c", true},
		{"numbers outside comparisons", "top cities", "SELECT c FROM city ORDER BY p DESC LIMIT 5", true},
		{"column qualifiers", "cities", "SELECT T1.c FROM city AS T1 JOIN state AS T2 ON T1.s = T2.s", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, copiable(tt.question, tt.query))
		})
	}
}

func TestSingleSelect(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT c FROM city", true},
		{"SELECT count(*) FROM city WHERE a IN (1, 2)", true},
		{"SELECT c, p FROM city", false},
		{"select distinct c , p from city", false},
		{"SELECT 1", true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, singleSelect(tt.query))
		})
	}
}

func TestZeroCount(t *testing.T) {
	tests := []struct {
		name  string
		query string
		rows  [][]any
		want  bool
	}{
		{"zero count", "SELECT count(*) FROM city", [][]any{{int64(0)}}, true},
		{"distinct count", "select distinct count(c) from city", [][]any{{int64(0)}}, true},
		{"nonzero count", "SELECT count(*) FROM city", [][]any{{int64(3)}}, false},
		{"zero value not a count", "SELECT p FROM city", [][]any{{int64(0)}}, false},
		{"several rows", "SELECT count(*) FROM city GROUP BY s", [][]any{{int64(0)}, {int64(2)}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isCount(tt.query) && zeroResult(tt.rows))
		})
	}
}

func TestSplitMatching(t *testing.T) {
	tests := []struct {
		split    string
		question string
		want     bool
	}{
		{"dev", "dev", true},
		{"train", "dev", false},
		{"dev", "", false},
		{"1", "1", true},
		{"0", "1", false},
		{"train_full", "train", true},
	}
	for _, tt := range tests {
		t.Run(tt.split+"/"+tt.question, func(t *testing.T) {
			r := &Run{Name: "geoquery", Splits: []string{tt.split}}
			sets := []querySet{{SQL: []string{"SELECT 1"}, Sentences: []sentence{{Text: "q", Split: tt.question}}}}
			var got int
			require.NoError(t, r.writeExamples(context.Background(), sets, func(question, query string) error {
				got++
				return nil
			}))
			assert.Equal(t, tt.want, got == 1)
		})
	}
}

const filtered = `[
  {"sql": ["SELECT count(*) FROM CITY WHERE STATE_NAME = 'ohio'"], "variables": [],
   "sentences": [{"text": "how many cities in ohio", "variables": {}, "question-split": "dev"}]},
  {"sql": ["SELECT count(*) FROM CITY WHERE STATE_NAME = 'texas'"], "variables": [],
   "sentences": [{"text": "how many cities in texas", "variables": {}, "question-split": "dev"}]},
  {"sql": ["SELECT CITY_NAME, POPULATION FROM CITY"], "variables": [],
   "sentences": [{"text": "cities and their size", "variables": {}, "question-split": "dev"}]},
  {"sql": ["SELECT CITY_NAME FROM CITY WHERE POPULATION > 800000 ORDER BY CITY_NAME"], "variables": [],
   "sentences": [
     {"text": "big cities", "variables": {}, "question-split": "dev"},
     {"text": "cities with more than 800000 people", "variables": {}, "question-split": "dev"}
   ]},
  {"sql": ["SELECT CITY_NAME FROM CITY WHERE POPULATION > 1 ORDER BY CITY_NAME"], "variables": [],
   "sentences": [{"text": "populated cities", "variables": {}, "question-split": "dev"}]}
]`

func TestConvertFilters(t *testing.T) {
	env := setup(t, "atis", "texas")
	require.NoError(t, os.WriteFile(filepath.Join(env.OriginalDir, "atis.json"), []byte(filtered), 0644))
	r := &Run{Name: "atis", Splits: []string{"dev"}}

	report, err := r.Convert(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 3, report.ExamplesWritten)
	assert.Equal(t, 3, report.ExamplesDropped)

	lines := readLines(t, filepath.Join(env.OutDir, "test.jsonl"))
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "how many cities in texas")
	assert.Contains(t, lines[1], "more than 800000 people")
	assert.Contains(t, lines[2], "populated cities")
}
