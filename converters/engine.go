package converters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"

	"github.com/darianmavgo/unifysql/converters/common"
)

var (
	// ErrTableSkipped means the table could not be created; none of its rows were written.
	ErrTableSkipped = errors.New("table skipped")
	// ErrRowArity means a row does not have one cell per header.
	ErrRowArity = errors.New("row arity does not match header")
	// ErrNoColumns means every header was filtered out.
	ErrNoColumns = errors.New("table has no usable columns")
)

// DefaultBatchSize is the number of rows inserted per transaction.
const DefaultBatchSize = 1000

const errorLogTable = "_unifysql_errors"

// SynthesisOptions tunes how a RawTable becomes a table.
type SynthesisOptions struct {
	DefaultTableName string   // used instead of page/section titles when set
	SkipHeaders      []string // headers dropped together with their cells
	BatchSize        int
	LogErrors        bool // record failed batches in the error log table
	RunID            string
	Verbose          bool
}

// SynthesisResult is the outcome of one Synthesize call.
type SynthesisResult struct {
	Schema       *SchemaDescriptor // no wildcard column, no keys
	RowsInserted int
	RowsDropped  int
}

// TableName picks the raw name of a table: the default when set, otherwise
// page title and section title joined by a space.
func TableName(raw *RawTable, defaultName string) string {
	if defaultName != "" {
		return defaultName
	}
	page, section := "page_title", "section_title"
	if raw.PageTitle != nil {
		page = *raw.PageTitle
	}
	if raw.SectionTitle != nil {
		section = *raw.SectionTitle
	}
	return page + " " + section
}

// InferColumnTypes returns number for a column whose every cell parses as a
// float and text otherwise. Without rows the hints are kept; a missing hint
// is text.
func InferColumnTypes(rows [][]Cell, hints []ColumnType, width int) []ColumnType {
	types := make([]ColumnType, width)
	for i := range types {
		types[i] = TypeText
		if i < len(hints) && hints[i] != "" {
			types[i] = hints[i]
		}
	}
	if len(rows) == 0 {
		return types
	}
	for i := range types {
		types[i] = TypeNumber
		for _, row := range rows {
			if i >= len(row) || !isFloat(string(row[i])) {
				types[i] = TypeText
				break
			}
		}
	}
	return types
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// Synthesize normalizes raw into a table of db, fills it and describes it.
//
// Row arity is checked before anything is created. If CREATE TABLE fails the
// error wraps ErrTableSkipped. A batch whose insert fails is rolled back and
// counted in RowsDropped; the remaining batches still run.
func Synthesize(ctx context.Context, db *sql.DB, raw *RawTable, opts SynthesisOptions) (*SynthesisResult, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	keep := make([]int, 0, len(raw.Header))
	for i, h := range raw.Header {
		if !slices.Contains(opts.SkipHeaders, h) {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("%s: %w", raw.ID, ErrNoColumns)
	}
	for i, row := range raw.Rows {
		if len(row) != len(raw.Header) {
			return nil, fmt.Errorf("%s: row %d has %d cells for %d headers: %w",
				raw.ID, i, len(row), len(raw.Header), ErrRowArity)
		}
	}

	rows := make([][]Cell, len(raw.Rows))
	for r, row := range raw.Rows {
		rows[r] = make([]Cell, len(keep))
		for j, i := range keep {
			rows[r][j] = row[i]
		}
	}
	hints := make([]ColumnType, len(keep))
	for j, i := range keep {
		if i < len(raw.Types) {
			hints[j] = raw.Types[i]
		}
	}
	types := InferColumnTypes(rows, hints, len(keep))

	schema := NewSchemaDescriptor(raw.ID)
	tableName := common.NormalizeString(TableName(raw, opts.DefaultTableName), "")
	table := common.EscapeForSQL(tableName.Original, common.TablePrefix)
	schema.TableNames = append(schema.TableNames, tableName.Normalized)
	schema.TableNamesOriginal = append(schema.TableNamesOriginal, table)

	occ := common.NewOccurrences()
	columns := make([]string, len(keep))
	declared := make([]string, len(keep))
	for j, i := range keep {
		n := common.NormalizeString(raw.Header[i], "")
		col, err := occ.Disambiguate(common.EscapeForSQL(n.Original, common.ColumnPrefix))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		columns[j] = col
		declared[j] = types[j].DeclaredType()
		schema.ColumnNames = append(schema.ColumnNames, ColumnRef{Table: 0, Name: n.Normalized})
		schema.ColumnNamesOriginal = append(schema.ColumnNamesOriginal, ColumnRef{Table: 0, Name: col})
		schema.ColumnTypes = append(schema.ColumnTypes, types[j])
	}

	result := &SynthesisResult{Schema: schema}

	createSQL := common.GenCreateTableSQL(table, columns, declared)
	if opts.Verbose {
		log.Printf("[UNIFYSQL] %s: %s", raw.ID, createSQL)
	}
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		result.RowsDropped = len(rows)
		return result, fmt.Errorf("%s: %w: %s: %v", raw.ID, ErrTableSkipped, createSQL, err)
	}
	if len(rows) == 0 {
		return result, nil
	}

	insertSQL, err := common.GenPreparedStmt(table, columns, common.InsertStmt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate insert statement for table %s: %w", table, err)
	}
	stmt, err := db.PrepareContext(ctx, insertSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert statement for table %s: %w", table, err)
	}
	defer stmt.Close()

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := rows[start:end]
		if err := insertBatch(ctx, db, stmt, batch); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.RowsDropped += len(batch)
			log.Printf("[UNIFYSQL] %s: dropped rows %d-%d of %s: %v", raw.ID, start, end-1, table, err)
			if opts.LogErrors {
				logFailure(ctx, db, opts.RunID, table, err.Error(), fmt.Sprint(batch))
			}
			continue
		}
		result.RowsInserted += len(batch)
	}

	if opts.Verbose {
		log.Printf("[UNIFYSQL] Finished table %s, total rows: %d", table, result.RowsInserted)
	}
	return result, nil
}

func insertBatch(ctx context.Context, db *sql.DB, stmt *sql.Stmt, batch [][]Cell) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStmt := tx.StmtContext(ctx, stmt)
	defer txStmt.Close()

	args := make([]any, 0, 16)
	for _, row := range batch {
		args = args[:0]
		for _, c := range row {
			args = append(args, string(c))
		}
		if _, err := txStmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// EnsureErrorLog creates the table that failed inserts are recorded in.
func EnsureErrorLog(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+errorLogTable+` (
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		run_id TEXT,
		message TEXT,
		table_name TEXT,
		row_data TEXT
	)`)
	if err != nil {
		return fmt.Errorf("failed to create error log table: %w", err)
	}
	return nil
}

func logFailure(ctx context.Context, db *sql.DB, runID, table, message, rowData string) {
	if err := EnsureErrorLog(ctx, db); err != nil {
		log.Printf("[UNIFYSQL] %v", err)
		return
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO `+errorLogTable+` (run_id, message, table_name, row_data) VALUES (?, ?, ?, ?)`,
		runID, message, table, rowData)
	if err != nil {
		log.Printf("[UNIFYSQL] failed to log error: %v", err)
	}
}
