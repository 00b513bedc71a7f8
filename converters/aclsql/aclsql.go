// Package aclsql converts the ACL sql-nlp dataset: a directory of CSV tables
// that become one database, and CSV files of question and query pairs.
package aclsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/converters/csv"
)

// DBID is the id of the single database.
const DBID = "schema"

func init() {
	converters.Register("acl_sql", converters.AdapterFunc(Convert))
}

// Pair is one question and query read from a processed file. Three column
// rows carry a leading id, which is ignored.
type Pair struct {
	Question string
	Query    string
}

// ParsePair reads a processed row of two or three cells.
func ParsePair(row []string) (Pair, bool) {
	switch {
	case len(row) == 2:
		return Pair{Question: row[0], Query: row[1]}, true
	case len(row) >= 3:
		return Pair{Question: row[1], Query: row[2]}, true
	}
	return Pair{}, false
}

// Convert implements converters.AdapterFunc for ACL-SQL.
func Convert(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}

	tables, err := csvFiles(filepath.Join(env.OriginalDir, "Dataset"))
	if err != nil {
		return nil, err
	}
	storePath := converters.StorePath(env.OutDir, DBID)
	db, err := converters.OpenStore(ctx, storePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	for _, path := range tables {
		err := loadTable(ctx, db, path, env.BatchSize, report)
		switch {
		case err == nil:
			report.TablesSynthesized++
		case errors.Is(err, converters.ErrTableSkipped), errors.Is(err, csv.ErrEmpty):
			report.TablesSkipped++
			log.Printf("[ACLSQL] could not create table from %s: %v", filepath.Base(path), err)
		default:
			return report, err
		}
	}

	schema, err := converters.DumpSchema(ctx, storePath, DBID)
	if err != nil {
		return report, err
	}
	if err := converters.WriteTables(filepath.Join(env.OutDir, "tables.json"), []*converters.SchemaDescriptor{schema}); err != nil {
		return report, err
	}

	processed, err := csvFiles(filepath.Join(env.OriginalDir, "Final_Processed"))
	if err != nil {
		return report, err
	}
	w, err := converters.CreateExampleWriter(filepath.Join(env.OutDir, "test.jsonl"))
	if err != nil {
		return report, err
	}
	for _, path := range processed {
		if err = writePairs(ctx, env, db, path, w, report); err != nil {
			break
		}
	}
	report.ExamplesWritten += w.Count()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return report, err
}

func csvFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", converters.ErrMissingInput, dir)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// loadTable replaces the table named after the file with its contents. The
// delimiter is sniffed from the header line.
func loadTable(ctx context.Context, db *sql.DB, path string, batchSize int, report *converters.Report) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r, err := csv.NewReader(f, nil)
	if err != nil {
		return err
	}
	table := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := csv.ReplaceTable(ctx, db, table, r); err != nil {
		return err
	}
	res, err := csv.Load(ctx, db, table, r, batchSize)
	if res != nil {
		report.RowsInserted += res.RowsInserted
		report.RowsDropped += res.RowsDropped
	}
	return err
}

// writePairs keeps the pairs of one processed file whose query runs against
// the database.
func writePairs(ctx context.Context, env *converters.Env, db *sql.DB, path string, w *converters.ExampleWriter, report *converters.Report) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r, err := csv.NewReader(f, &csv.Options{Delimiter: ','})
	if errors.Is(err, csv.ErrEmpty) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.Records(ctx, func(row []string, err error) error {
		if err != nil {
			report.ExamplesDropped++
			return nil
		}
		pair, ok := ParsePair(row)
		if !ok {
			report.ExamplesDropped++
			return nil
		}
		if _, err := converters.ProbeQuery(ctx, db, pair.Query, env.QueryTimeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.ExamplesDropped++
			log.Printf("[ACLSQL] failed query: %s", pair.Query)
			return nil
		}
		return w.Write(converters.UnifiedExample{DBID: DBID, Question: pair.Question, Query: pair.Query})
	})
}
