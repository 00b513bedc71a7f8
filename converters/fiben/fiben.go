// Package fiben converts the FIBEN financial benchmark. Its DDL declares
// foreign keys with ALTER TABLE, which SQLite does not support, and its
// cell values come as headerless CSV files named after their tables.
package fiben

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/converters/csv"
	"github.com/darianmavgo/unifysql/converters/rewrite"
)

// DBID is the id of the single FIBEN database.
const DBID = "fiben"

// SchemaName qualifies every table in the shipped queries.
const SchemaName = "FIBEN"

func init() {
	converters.Register("fiben", converters.AdapterFunc(Convert))
}

type query struct {
	Question string `json:"question"`
	SQL      string `json:"SQL"`
}

// Convert implements converters.AdapterFunc for FIBEN.
func Convert(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}
	if err := os.RemoveAll(env.OutDir); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", env.OutDir, err)
	}

	ddl, err := os.ReadFile(filepath.Join(env.OriginalDir, "FIBEN.sql"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", converters.ErrMissingInput, err)
	}
	script := MergeForeignKeys(string(ddl))
	if err := os.MkdirAll(env.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(env.OutDir, "sqlite_fiben.sql"), []byte(script), 0644); err != nil {
		return nil, fmt.Errorf("failed to write sqlite script: %w", err)
	}

	storePath := converters.StorePath(env.OutDir, DBID)
	db, err := converters.OpenStore(ctx, storePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if err := converters.ExecScript(ctx, db, script); err != nil {
		return nil, err
	}

	schema, err := converters.DumpSchema(ctx, storePath, DBID)
	if err != nil {
		return nil, err
	}
	if err := converters.WriteTables(filepath.Join(env.OutDir, "tables.json"), []*converters.SchemaDescriptor{schema}); err != nil {
		return report, err
	}
	report.TablesSynthesized = len(schema.TableNamesOriginal)

	columns := make(map[string][]string, len(schema.TableNamesOriginal))
	for _, c := range schema.ColumnNamesOriginal {
		if c.Table < 0 {
			continue
		}
		t := schema.TableNamesOriginal[c.Table]
		columns[t] = append(columns[t], c.Name)
	}

	dataDir := filepath.Join(env.OriginalDir, "data")
	files, err := os.ReadDir(dataDir)
	if err != nil {
		return report, fmt.Errorf("%w: %s", converters.ErrMissingInput, dataDir)
	}
	for _, f := range files {
		table, ok := strings.CutSuffix(f.Name(), ".csv")
		if f.IsDir() || !ok {
			continue
		}
		cols, ok := columns[table]
		if !ok {
			return report, fmt.Errorf("out of schema cell value file found: %s", f.Name())
		}
		res, err := loadValues(ctx, db, filepath.Join(dataDir, f.Name()), table, cols, env.BatchSize)
		if res != nil {
			report.RowsInserted += res.RowsInserted
			report.RowsDropped += res.RowsDropped
		}
		if err != nil {
			return report, err
		}
		if env.Verbose {
			log.Printf("[FIBEN] loaded %d rows into %s", res.RowsInserted, table)
		}
	}

	return report, writeQueries(ctx, env, report)
}

func loadValues(ctx context.Context, db *sql.DB, path, table string, cols []string, batchSize int) (*csv.LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r, err := csv.NewReader(f, &csv.Options{Delimiter: ',', Columns: cols})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return csv.Load(ctx, db, table, r, batchSize)
}

func writeQueries(ctx context.Context, env *converters.Env, report *converters.Report) error {
	var queries []query
	if err := converters.ReadJSON(filepath.Join(env.OriginalDir, "FIBEN_Queries.json"), &queries); err != nil {
		return err
	}
	w, err := converters.CreateExampleWriter(filepath.Join(env.OutDir, "dev.jsonl"))
	if err != nil {
		return err
	}
	for _, q := range queries {
		if err = ctx.Err(); err != nil {
			break
		}
		ex := converters.UnifiedExample{
			DBID:     DBID,
			Question: q.Question,
			Query:    rewrite.FetchFirstToLimit(rewrite.StripSchemaPrefix(q.SQL, SchemaName)),
		}
		if err = w.Write(ex); err != nil {
			break
		}
	}
	report.ExamplesWritten += w.Count()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

// MergeForeignKeys rewrites a DDL script so that the FOREIGN KEY clause of
// every "ALTER TABLE <t> ADD ... FOREIGN KEY ...;" line becomes part of the
// single line CREATE TABLE statement of <t>. Only CREATE TABLE lines are kept.
func MergeForeignKeys(script string) string {
	lines := strings.SplitAfter(script, "\n")
	clauses := make(map[string][]string)
	for _, line := range lines {
		if !strings.HasPrefix(line, "ALTER") {
			continue
		}
		table := tableName(line, "ALTER TABLE ")
		idx := strings.Index(line, "FOREIGN KEY ")
		if table == "" || idx < 0 {
			continue
		}
		fk := strings.TrimRight(strings.TrimSpace(line[idx:]), ";")
		clauses[table] = append(clauses[table], strings.TrimSpace(fk))
	}

	var b strings.Builder
	for _, line := range lines {
		if !strings.HasPrefix(line, "CREATE") {
			continue
		}
		if fks := clauses[tableName(line, "CREATE TABLE ")]; len(fks) > 0 {
			if end := strings.LastIndex(line, ")"); end >= 0 {
				line = line[:end] + ", " + strings.Join(fks, ", ") + line[end:]
			}
		}
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func tableName(line, prefix string) string {
	_, rest, ok := strings.Cut(line, prefix)
	if !ok {
		return ""
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "(")
	return name
}
