// Package sede converts SEDE, Stack Exchange Data Explorer queries over a
// database rebuilt from the public XML data dump.
package sede

import (
	"context"
	"database/sql"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/converters/common"
)

// DBID is the single database all SEDE examples run against.
const DBID = "sede"

// Splits are the example files converted, in order.
var Splits = []string{"train", "val", "test"}

func init() {
	converters.Register("sede", converters.AdapterFunc(Convert))
}

type example struct {
	Title       string          `json:"Title"`
	Description converters.Cell `json:"Description"`
	QueryBody   string          `json:"QueryBody"`
}

// Convert implements converters.AdapterFunc for SEDE.
func Convert(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}

	var full []*converters.SchemaDescriptor
	if err := converters.ReadJSON(filepath.Join(env.OriginalDir, "stackexchange_schema", "tables_so.json"), &full); err != nil {
		return nil, err
	}
	if len(full) == 0 {
		return nil, fmt.Errorf("%w: tables_so.json holds no schema", converters.ErrMissingInput)
	}
	schema := FilterSchema(full[0])
	if err := converters.WriteTables(filepath.Join(env.OutDir, "tables.json"), []*converters.SchemaDescriptor{schema}); err != nil {
		return report, err
	}

	for _, split := range Splits {
		if err := convertSplit(ctx, env, split, report); err != nil {
			return report, err
		}
	}

	if err := buildDatabase(ctx, env, report); err != nil {
		return report, err
	}
	return report, nil
}

// FilterSchema keeps the wildcard and the columns of tables present in the
// data dump, renumbering tables in order of appearance. Keys between kept
// columns survive with their indices remapped.
func FilterSchema(full *converters.SchemaDescriptor) *converters.SchemaDescriptor {
	out := converters.NewSchemaDescriptor(DBID)
	tableIndex := make(map[int]int)
	columnIndex := make(map[int]int)

	for i, col := range full.ColumnNamesOriginal {
		if col.Table == -1 {
			columnIndex[i] = len(out.ColumnNamesOriginal)
			out.ColumnNames = append(out.ColumnNames, full.ColumnNames[i])
			out.ColumnNamesOriginal = append(out.ColumnNamesOriginal, col)
			out.ColumnTypes = append(out.ColumnTypes, full.ColumnTypes[i])
			continue
		}
		if col.Table < 0 || col.Table >= len(full.TableNamesOriginal) || !inDump(full, col.Table) {
			continue
		}
		idx, seen := tableIndex[col.Table]
		if !seen {
			idx = len(out.TableNamesOriginal)
			tableIndex[col.Table] = idx
			out.TableNames = append(out.TableNames, full.TableNames[col.Table])
			out.TableNamesOriginal = append(out.TableNamesOriginal, full.TableNamesOriginal[col.Table])
		}
		columnIndex[i] = len(out.ColumnNamesOriginal)
		out.ColumnNames = append(out.ColumnNames, converters.ColumnRef{Table: idx, Name: full.ColumnNames[i].Name})
		out.ColumnNamesOriginal = append(out.ColumnNamesOriginal, converters.ColumnRef{Table: idx, Name: col.Name})
		out.ColumnTypes = append(out.ColumnTypes, full.ColumnTypes[i])
	}

	for _, pk := range full.PrimaryKeys {
		if i, ok := columnIndex[pk]; ok {
			out.PrimaryKeys = append(out.PrimaryKeys, i)
		}
	}
	for _, fk := range full.ForeignKeys {
		from, okFrom := columnIndex[fk[0]]
		to, okTo := columnIndex[fk[1]]
		if okFrom && okTo {
			out.ForeignKeys = append(out.ForeignKeys, [2]int{from, to})
		}
	}
	return out
}

func inDump(s *converters.SchemaDescriptor, table int) bool {
	for _, t := range Anatomy {
		if strings.EqualFold(s.TableNamesOriginal[table], t.Name) ||
			(table < len(s.TableNames) && strings.EqualFold(s.TableNames[table], t.Name)) {
			return true
		}
	}
	return false
}

// MentionsExcluded reports whether query names a table missing from the dump.
func MentionsExcluded(query string) bool {
	q := strings.ToLower(query)
	return slices.ContainsFunc(ExcludedTables, func(t string) bool {
		return strings.Contains(q, strings.ToLower(t))
	})
}

func convertSplit(ctx context.Context, env *converters.Env, split string, report *converters.Report) error {
	w, err := converters.CreateExampleWriter(filepath.Join(env.OutDir, split+".jsonl"))
	if err != nil {
		return err
	}
	dropped := 0
	path := filepath.Join(env.OriginalDir, "data", "sede", split+".jsonl")
	err = converters.ReadJSONLines(path, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var ex example
		if err := json.Unmarshal(line, &ex); err != nil {
			return fmt.Errorf("failed to decode example in %s: %w", path, err)
		}
		if MentionsExcluded(ex.QueryBody) {
			dropped++
			return nil
		}
		question := ex.Title
		if ex.Description != "" {
			question += " " + string(ex.Description)
		}
		return w.Write(converters.UnifiedExample{DBID: DBID, Question: question, Query: ex.QueryBody})
	})
	log.Printf("[SEDE] %s: wrote %d examples, dropped %d", split, w.Count(), dropped)
	report.ExamplesWritten += w.Count()
	report.ExamplesDropped += dropped
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

func buildDatabase(ctx context.Context, env *converters.Env, report *converters.Report) error {
	db, err := converters.OpenStore(ctx, converters.StorePath(env.OutDir, DBID))
	if err != nil {
		return err
	}
	defer db.Close()

	for _, table := range Anatomy {
		f, err := os.Open(filepath.Join(env.OriginalDir, "data", "dump", table.Name+".xml"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Printf("[SEDE] no dump for %s, table left out", table.Name)
				report.TablesSkipped++
				continue
			}
			return fmt.Errorf("failed to open dump of %s: %w", table.Name, err)
		}
		res, err := LoadDump(ctx, db, table, f, env.BatchSize, env.Verbose)
		f.Close()
		if err != nil {
			return err
		}
		report.TablesSynthesized++
		report.RowsInserted += res.RowsInserted
		report.RowsDropped += res.RowsDropped
	}
	return nil
}

// CreateTable creates t if it does not exist yet.
func CreateTable(ctx context.Context, db *sql.DB, t Table) error {
	columns := make([]string, len(t.Columns))
	types := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		columns[i] = c.Name
		types[i] = c.Type
	}
	createSQL := strings.Replace(common.GenCreateTableSQL(t.Name, columns, types), "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1)
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.Name, err)
	}
	return nil
}

// LoadResult counts the rows of one dump file.
type LoadResult struct {
	RowsInserted int
	RowsDropped  int
}

// LoadDump streams the <row .../> elements of a dump file into table t,
// committing every batchSize rows. A row that cannot be converted or
// inserted is logged and dropped.
func LoadDump(ctx context.Context, db *sql.DB, t Table, r io.Reader, batchSize int, verbose bool) (*LoadResult, error) {
	if err := CreateTable(ctx, db, t); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = converters.DefaultBatchSize
	}

	// Statements are prepared on the open transaction; the store has a
	// single connection.
	stmts := make(map[string]*sql.Stmt)
	closeStmts := func() {
		for k, s := range stmts {
			s.Close()
			delete(stmts, k)
		}
	}
	defer closeStmts()

	res := &LoadResult{}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	pending := 0

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			tx.Rollback()
			return res, fmt.Errorf("failed to read dump of %s: %w", t.Name, err)
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "row" || len(el.Attr) == 0 {
			continue
		}

		columns, values, err := rowValues(t, el.Attr)
		if err == nil {
			err = insertRow(ctx, tx, stmts, t.Name, columns, values)
		}
		if err != nil {
			log.Printf("[SEDE] %s: dropping row: %v", t.Name, err)
			res.RowsDropped++
			continue
		}
		res.RowsInserted++
		pending++
		if verbose && res.RowsInserted%1000 == 0 {
			log.Printf("[SEDE] %s: %d rows", t.Name, res.RowsInserted)
		}

		if pending >= batchSize {
			closeStmts()
			if err := tx.Commit(); err != nil {
				return res, fmt.Errorf("failed to commit transaction: %w", err)
			}
			if tx, err = db.BeginTx(ctx, nil); err != nil {
				return res, fmt.Errorf("failed to begin transaction: %w", err)
			}
			pending = 0
		}
	}
	closeStmts()
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

func rowValues(t Table, attrs []xml.Attr) ([]string, []any, error) {
	columns := make([]string, 0, len(attrs))
	values := make([]any, 0, len(attrs))
	for _, a := range attrs {
		col, ok := t.column(a.Name.Local)
		if !ok {
			return nil, nil, fmt.Errorf("unknown attribute %s", a.Name.Local)
		}
		var v any = a.Value
		switch col.Type {
		case "INTEGER":
			n, err := strconv.ParseInt(a.Value, 10, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("attribute %s: %w", col.Name, err)
			}
			v = n
		case "BOOLEAN":
			v = 0
			if strings.EqualFold(a.Value, "true") {
				v = 1
			}
		}
		columns = append(columns, col.Name)
		values = append(values, v)
	}
	return columns, values, nil
}

func insertRow(ctx context.Context, tx *sql.Tx, stmts map[string]*sql.Stmt, table string, columns []string, values []any) error {
	key := strings.Join(columns, ",")
	stmt, ok := stmts[key]
	if !ok {
		q, err := common.GenPreparedStmt(table, columns, common.InsertStmt)
		if err != nil {
			return err
		}
		if stmt, err = tx.PrepareContext(ctx, q); err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		stmts[key] = stmt
	}
	_, err := stmt.ExecContext(ctx, values...)
	return err
}
