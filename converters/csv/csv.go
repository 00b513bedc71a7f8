// Package csv reads delimited text files and loads them into SQLite tables.
package csv

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/converters/common"
)

// ErrEmpty is returned for a file without a header line.
var ErrEmpty = errors.New("CSV file is empty")

// Options controls how a delimited file is read.
type Options struct {
	Delimiter rune     // detected from the first line when zero
	Columns   []string // column names for headerless files; the first line is data
}

var emptyPadding = make([]string, 1024)

// Reader streams the records of one delimited file.
type Reader struct {
	headers   []string
	csvReader *csv.Reader
	Options   Options
}

// NewReader wraps r. Without Options.Columns the first record is the header.
func NewReader(r io.Reader, opts *Options) (*Reader, error) {
	var o Options
	if opts != nil {
		o = *opts
	}

	br := bufio.NewReaderSize(r, 65536)

	if o.Delimiter == 0 {
		peekBytes, _ := br.Peek(2048)
		sample := string(peekBytes)
		if idx := strings.IndexAny(sample, "\r\n"); idx != -1 {
			sample = sample[:idx]
		}
		o.Delimiter = common.DetectDelimiter(sample)
	}

	reader := csv.NewReader(br)
	reader.Comma = o.Delimiter
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	headers := o.Columns
	if len(headers) == 0 {
		h, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, ErrEmpty
			}
			return nil, fmt.Errorf("failed to read CSV headers: %w", err)
		}
		headers = h
	}

	return &Reader{headers: headers, csvReader: reader, Options: o}, nil
}

// Headers returns the column names.
func (c *Reader) Headers() []string {
	return c.headers
}

// padRow pads or truncates the row to match the target length.
func padRow(row []string, targetLen int) []string {
	if len(row) < targetLen {
		needed := targetLen - len(row)
		if needed <= len(emptyPadding) {
			row = append(row, emptyPadding[:needed]...)
		} else {
			row = append(row, make([]string, needed)...)
		}
	} else if len(row) > targetLen {
		row = row[:targetLen]
	}
	return row
}

// Records calls yield with every remaining record as read, without padding.
// A malformed record is passed as an error and reading goes on.
func (c *Reader) Records(ctx context.Context, yield func([]string, error) error) error {
	type rowOrError struct {
		row []string
		err error
	}

	// Channel to pipeline reading and processing
	rowsCh := make(chan rowOrError, 100)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(rowsCh)
		for {
			row, err := c.csvReader.Read()
			if err == io.EOF {
				return
			}
			item := rowOrError{row: row}
			if err != nil {
				item = rowOrError{err: fmt.Errorf("failed to read CSV row: %w", err)}
			}
			select {
			case rowsCh <- item:
			case <-done:
				return
			}
		}
	}()

	for item := range rowsCh {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(item.row, item.err); err != nil {
			return err
		}
	}
	return nil
}

// ScanRows is Records with every row padded or truncated to the header width.
func (c *Reader) ScanRows(ctx context.Context, yield func([]string, error) error) error {
	return c.Records(ctx, func(row []string, err error) error {
		if err != nil {
			return yield(nil, err)
		}
		return yield(padRow(row, len(c.headers)), nil)
	})
}

// LoadResult counts the rows a Load call wrote and dropped.
type LoadResult struct {
	RowsInserted int
	RowsDropped  int
}

// Load inserts every row of c into the existing table, one transaction per
// batchSize rows. A batch that fails is rolled back and counted as dropped.
func Load(ctx context.Context, db *sql.DB, table string, c *Reader, batchSize int) (*LoadResult, error) {
	if batchSize <= 0 {
		batchSize = converters.DefaultBatchSize
	}
	insertSQL, err := common.GenPreparedStmt(table, c.headers, common.InsertStmt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate insert statement for table %s: %w", table, err)
	}
	stmt, err := db.PrepareContext(ctx, insertSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert statement for table %s: %w", table, err)
	}
	defer stmt.Close()

	res := &LoadResult{}
	batch := make([][]string, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := insertBatch(ctx, db, stmt, batch); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[CSV] dropped %d rows of %s: %v", len(batch), table, err)
			res.RowsDropped += len(batch)
		} else {
			res.RowsInserted += len(batch)
		}
		batch = batch[:0]
		return nil
	}

	err = c.ScanRows(ctx, func(row []string, err error) error {
		if err != nil {
			log.Printf("[CSV] %s: %v", table, err)
			res.RowsDropped++
			return nil
		}
		batch = append(batch, append([]string(nil), row...))
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	return res, flush()
}

func insertBatch(ctx context.Context, db *sql.DB, stmt *sql.Stmt, batch [][]string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStmt := tx.StmtContext(ctx, stmt)
	defer txStmt.Close()

	args := make([]any, 0, 16)
	for _, row := range batch {
		args = args[:0]
		for _, v := range row {
			args = append(args, v)
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

// ReplaceTable drops table if it exists and creates it with c's headers as
// untyped columns. An empty first header is named "idx".
func ReplaceTable(ctx context.Context, db *sql.DB, table string, c *Reader) error {
	if len(c.headers) > 0 && c.headers[0] == "" {
		c.headers[0] = "idx"
	}
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+common.QuoteIdent(table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	createSQL := common.GenCreateTableSQL(table, c.headers, nil)
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("%w: %s: %v", converters.ErrTableSkipped, createSQL, err)
	}
	return nil
}
