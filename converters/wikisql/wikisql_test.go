package wikisql

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	var data []byte
	for _, l := range lines {
		data = append(data, l...)
		data = append(data, '\n')
	}
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func readExamples(t *testing.T, path string) []converters.UnifiedExample {
	t.Helper()
	var out []converters.UnifiedExample
	require.NoError(t, converters.ReadJSONLines(path, func(line []byte) error {
		var ex converters.UnifiedExample
		if err := json.Unmarshal(line, &ex); err != nil {
			return err
		}
		out = append(out, ex)
		return nil
	}))
	return out
}

func newEnv(t *testing.T, name string) *converters.Env {
	return &converters.Env{
		Name:        name,
		RunID:       "test-run",
		OriginalDir: t.TempDir(),
		OutDir:      filepath.Join(t.TempDir(), name),
		BatchSize:   100,
	}
}

func TestConvertWikiSQL(t *testing.T) {
	env := newEnv(t, "wikisql")
	writeLines(t, filepath.Join(env.OriginalDir, "dev.tables.jsonl"),
		`{"id":"1-10015132-11","header":["Player","No.","2006-07"],"rows":[["Antonio Lang",21,"Duke"],["Voshon Lenard","2","Minnesota"]],"types":["text","text","text"],"page_title":"Toronto Raptors all-time roster","section_title":"L"}`,
		`{"id":"1-bad","header":["A","B"],"rows":[["only one"]],"types":["text","text"]}`)
	writeLines(t, filepath.Join(env.OriginalDir, "dev.jsonl"),
		`{"table_id":"1-10015132-11","question":"How many players went to Duke?","sql":{"sel":1,"agg":3,"conds":[[2,0,"Duke"]]}}`,
		`{"table_id":"1-10015132-11","question":"Bad column","sql":{"sel":9,"agg":0,"conds":[]}}`,
		`{"table_id":"1-bad","question":"Skipped table","sql":{"sel":0,"agg":0,"conds":[]}}`)
	writeLines(t, filepath.Join(env.OriginalDir, "test.tables.jsonl"))
	writeLines(t, filepath.Join(env.OriginalDir, "test.jsonl"))
	writeLines(t, filepath.Join(env.OriginalDir, "train.tables.jsonl"))
	writeLines(t, filepath.Join(env.OriginalDir, "train.jsonl"))

	report, err := (&Dataset{}).Convert(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TablesSynthesized)
	assert.Equal(t, 1, report.TablesSkipped)
	assert.Equal(t, 2, report.RowsInserted)
	assert.Equal(t, 1, report.ExamplesWritten)
	assert.Equal(t, 2, report.ExamplesDropped)

	tables, err := converters.ReadTables(filepath.Join(env.OutDir, "tables.json"))
	require.NoError(t, err)
	require.Len(t, tables, 1)
	s := tables[0]
	require.NoError(t, s.Validate())
	assert.Equal(t, converters.Wildcard, s.ColumnNamesOriginal[0])
	assert.Equal(t, []string{"toronto_raptors_all_time_roster_l"}, s.TableNamesOriginal)
	assert.Equal(t, []converters.ColumnType{converters.TypeText, converters.TypeText, converters.TypeNumber, converters.TypeText}, s.ColumnTypes)

	examples := readExamples(t, filepath.Join(env.OutDir, "dev.jsonl"))
	require.Len(t, examples, 1)
	assert.Equal(t, "1-10015132-11", examples[0].DBID)
	assert.Equal(t, `SELECT COUNT(no) FROM toronto_raptors_all_time_roster_l WHERE year_2006_07 = "Duke"`, examples[0].Query)

	db, err := converters.OpenExisting(context.Background(), converters.StorePath(env.OutDir, "1-10015132-11"))
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.QueryRow(examples[0].Query).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestConvertCriteriaSQL(t *testing.T) {
	env := newEnv(t, "criteriasql")
	for _, split := range Splits {
		writeLines(t, filepath.Join(env.OriginalDir, split+".tables.jsonl"),
			`{"id":"7","header":["criteria","NOUSE","age"],"rows":[["adult","x","18"]],"types":["text","text","real"]}`,
			`{"id":"8","header":["NOUSE"],"rows":[],"types":["text"]}`)
		writeLines(t, filepath.Join(env.OriginalDir, split+".jsonl"),
			`{"table_id":"7","question":"adults","query":"SELECT * FROM records WHERE age >= 18","sql":{"sel":0,"agg":0,"conds":[]}}`)
	}

	adapter, err := converters.Lookup("criteriasql")
	require.NoError(t, err)
	report, err := adapter.Convert(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TablesSynthesized)
	assert.Equal(t, 3, report.TablesSkipped)

	tables, err := converters.ReadTables(filepath.Join(env.OutDir, "tables.json"))
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, "test-7", tables[0].DBID)
	assert.Equal(t, []string{"records"}, tables[0].TableNamesOriginal)

	examples := readExamples(t, filepath.Join(env.OutDir, "train.jsonl"))
	require.Len(t, examples, 1)
	assert.Equal(t, converters.UnifiedExample{
		DBID:     "train-7",
		Question: "adults",
		Query:    "SELECT * FROM records WHERE age >= 18",
	}, examples[0])
}

func TestConvertMissingInput(t *testing.T) {
	env := newEnv(t, "wikisql")
	_, err := (&Dataset{}).Convert(context.Background(), env)
	assert.ErrorIs(t, err, converters.ErrMissingInput)
}

func TestRegistered(t *testing.T) {
	for _, name := range []string{"wikisql", "criteriasql"} {
		_, err := converters.Lookup(name)
		assert.NoError(t, err, name)
	}
}
