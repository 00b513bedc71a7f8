package xsp

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/converters/common"
)

// Reduce keeps the first fraction of the rows of every user table of db and
// vacuums the file. Each table is rewritten in its own transaction.
func Reduce(ctx context.Context, db *sql.DB, fraction float64, verbose bool) error {
	tables, err := converters.ReadCatalog(ctx, db)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if strings.HasPrefix(t.Name, "sqlite_") {
			continue
		}
		if err := reduceTable(ctx, db, t.Name, fraction, verbose); err != nil {
			return err
		}
	}
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

func reduceTable(ctx context.Context, db *sql.DB, table string, fraction float64, verbose bool) error {
	q := common.QuoteIdent(table)
	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q).Scan(&total); err != nil {
		return fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	keep := int(float64(total) * fraction)
	if verbose {
		log.Printf("[XSP] reducing %s from %d to %d rows", table, total, keep)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	temp := common.QuoteIdent("temp_" + table)
	stmts := []string{
		fmt.Sprintf("CREATE TEMPORARY TABLE %s AS SELECT * FROM %s LIMIT %d", temp, q, keep),
		"DELETE FROM " + q,
		fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", q, temp),
		"DROP TABLE " + temp,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("failed to reduce %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reduction of %s: %w", table, err)
	}
	return nil
}
