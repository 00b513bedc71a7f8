package csv

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRowsPads(t *testing.T) {
	c, err := NewReader(strings.NewReader("a,b,c\n1,2\n4,5,6,7\n"), nil)
	require.NoError(t, err)

	var rows [][]string
	err = c.ScanRows(context.Background(), func(row []string, err error) error {
		require.NoError(t, err)
		rows = append(rows, row)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2", ""}, {"4", "5", "6"}}, rows)
}

func TestRecordsKeepsArity(t *testing.T) {
	c, err := NewReader(strings.NewReader("question,query\nq1,SELECT 1\n7,q2,SELECT 2\n"), &Options{Delimiter: ','})
	require.NoError(t, err)

	var widths []int
	require.NoError(t, c.Records(context.Background(), func(row []string, err error) error {
		widths = append(widths, len(row))
		return err
	}))
	assert.Equal(t, []int{2, 3}, widths)
}

func TestHeaderlessColumns(t *testing.T) {
	c, err := NewReader(strings.NewReader("1,Acme\n2,Globex\n"), &Options{Columns: []string{"id", "name"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, c.Headers())

	n := 0
	require.NoError(t, c.ScanRows(context.Background(), func([]string, error) error { n++; return nil }))
	assert.Equal(t, 2, n)
}

func TestEmptyFile(t *testing.T) {
	_, err := NewReader(strings.NewReader(""), nil)
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestStopsOnYieldError(t *testing.T) {
	c, err := NewReader(strings.NewReader("a\n1\n2\n3\n"), nil)
	require.NoError(t, err)

	stop := errors.New("stop")
	n := 0
	err = c.ScanRows(context.Background(), func([]string, error) error {
		n++
		return stop
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 1, n)
}

func TestReplaceTableAndLoad(t *testing.T) {
	ctx := context.Background()
	db, err := converters.OpenStore(ctx, filepath.Join(t.TempDir(), "schema.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 2; i++ {
		c, err := NewReader(strings.NewReader(",name,year\n0,ACL,2019\n1,EMNLP,2020\n2,NAACL,2021\n"), nil)
		require.NoError(t, err)
		require.NoError(t, ReplaceTable(ctx, db, "venues", c))

		res, err := Load(ctx, db, "venues", c, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, res.RowsInserted)
		assert.Equal(t, 0, res.RowsDropped)
	}

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM venues`).Scan(&count))
	assert.Equal(t, 3, count)

	var name string
	require.NoError(t, db.QueryRow(`SELECT name FROM venues WHERE idx = '2'`).Scan(&name))
	assert.Equal(t, "NAACL", name)
}

func TestLoadDropsFailingBatch(t *testing.T) {
	ctx := context.Background()
	db, err := converters.OpenStore(ctx, filepath.Join(t.TempDir(), "fiben.sqlite"))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE corp (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	c, err := NewReader(strings.NewReader("1,Acme\n1,Dup\n3,Initech\n"), &Options{Columns: []string{"id", "name"}})
	require.NoError(t, err)

	res, err := Load(ctx, db, "corp", c, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsInserted)
	assert.Equal(t, 1, res.RowsDropped)
}
