package aclsql

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

func TestParsePair(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want Pair
		ok   bool
	}{
		{"two cells", []string{"how many cars", "SELECT count(*) FROM cars"}, Pair{"how many cars", "SELECT count(*) FROM cars"}, true},
		{"with id", []string{"7", "how many cars", "SELECT count(*) FROM cars"}, Pair{"how many cars", "SELECT count(*) FROM cars"}, true},
		{"too short", []string{"lonely"}, Pair{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePair(tt.row)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvert(t *testing.T) {
	ctx := context.Background()
	orig := t.TempDir()
	out := filepath.Join(t.TempDir(), "acl_sql")
	write := func(rel, content string) {
		path := filepath.Join(orig, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	write("Dataset/cars.csv", ";make;year\n0;ford;1999\n1;kia;2010\n")
	write("Dataset/broken.csv", "a,a\n1,2\n")
	write("Dataset/empty.csv", "")
	write("Final_Processed/pairs.csv", "question,query\n"+
		"how many cars,SELECT count(*) FROM cars\n"+
		"bad,SELECT nope FROM nowhere\n"+
		"lonely\n")
	write("Final_Processed/ids.csv", "id,question,query\n3,list makes,SELECT make FROM cars\n")

	report, err := Convert(ctx, &converters.Env{Name: "acl_sql", OriginalDir: orig, OutDir: out, QueryTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TablesSynthesized)
	assert.Equal(t, 2, report.TablesSkipped)
	assert.Equal(t, 2, report.RowsInserted)
	assert.Equal(t, 2, report.ExamplesWritten)
	assert.Equal(t, 2, report.ExamplesDropped)

	data, err := os.ReadFile(filepath.Join(out, "test.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"db_id":"schema","question":"list makes","query":"SELECT make FROM cars"}`, lines[0])
	assert.Equal(t, `{"db_id":"schema","question":"how many cars","query":"SELECT count(*) FROM cars"}`, lines[1])

	schemas, err := converters.ReadTables(filepath.Join(out, "tables.json"))
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, []string{"cars"}, schemas[0].TableNamesOriginal)
	assert.Equal(t, "idx", schemas[0].ColumnNamesOriginal[1].Name)
}

func TestConvertMissingDataset(t *testing.T) {
	_, err := Convert(context.Background(), &converters.Env{Name: "acl_sql", OriginalDir: t.TempDir(), OutDir: t.TempDir()})
	assert.ErrorIs(t, err, converters.ErrMissingInput)
}
