package converters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/darianmavgo/unifysql/converters/common"

	_ "modernc.org/sqlite"
)

// ErrMissingInput is returned when a file an adapter cannot do without is absent.
var ErrMissingInput = errors.New("required input not found")

// StorePath returns the unified location of a database: <outDir>/database/<id>/<id>.sqlite.
func StorePath(outDir, dbID string) string {
	return filepath.Join(outDir, "database", dbID, dbID+".sqlite")
}

// OpenStore opens the SQLite file at path, creating it and its parent
// directories when needed.
func OpenStore(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit to 1 connection to avoid locking issues and improve tx.Stmt performance
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA page_size = 65536; PRAGMA cache_size = -2000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMAs: %w", err)
	}
	return db, nil
}

// OpenExisting opens a database file that must already exist.
func OpenExisting(ctx context.Context, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
	}
	return OpenStore(ctx, path)
}

// ExecScript runs a multi-statement SQL script in one call.
func ExecScript(ctx context.Context, db *sql.DB, script string) error {
	if _, err := db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("failed to execute script: %w", err)
	}
	return nil
}

// CatalogColumn represents a table column (from PRAGMA table_info)
type CatalogColumn struct {
	Name       string
	Type       string
	PrimaryKey int // 0 = not PK, 1+ = PK position
}

// CatalogForeignKey is one row of PRAGMA foreign_key_list.
type CatalogForeignKey struct {
	From  string
	Table string
	To    string // empty when the key targets the referenced primary key
}

// CatalogTable is a table as the store describes it.
type CatalogTable struct {
	Name        string
	Columns     []CatalogColumn
	ForeignKeys []CatalogForeignKey
}

// ColumnNames lists the column names in declaration order.
func (t CatalogTable) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the table declares a column called name.
func (t CatalogTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ReadCatalog lists every table of db in catalog order with its columns and
// foreign keys. The conversion error log table is left out.
func ReadCatalog(ctx context.Context, db *sql.DB) ([]CatalogTable, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if name == errorLogTable {
			continue
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]CatalogTable, 0, len(names))
	for _, name := range names {
		t := CatalogTable{Name: name}
		if t.Columns, err = readColumns(ctx, db, "", name); err != nil {
			return nil, err
		}
		if t.ForeignKeys, err = readForeignKeys(ctx, db, name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func readColumns(ctx context.Context, db *sql.DB, schema, table string) ([]CatalogColumn, error) {
	pragma := "PRAGMA "
	if schema != "" {
		pragma += common.QuoteIdent(schema) + "."
	}
	rows, err := db.QueryContext(ctx, pragma+"table_info("+common.QuoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []CatalogColumn
	for rows.Next() {
		var (
			cid, notNull int
			col          CatalogColumn
			dflt         sql.NullString
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dflt, &col.PrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func readForeignKeys(ctx context.Context, db *sql.DB, table string) ([]CatalogForeignKey, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA foreign_key_list("+common.QuoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys of %s: %w", table, err)
	}
	defer rows.Close()

	var fks []CatalogForeignKey
	for rows.Next() {
		var (
			id, seq                   int
			fk                        CatalogForeignKey
			to                        sql.NullString
			onUpdate, onDelete, match string
		)
		if err := rows.Scan(&id, &seq, &fk.Table, &fk.From, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", table, err)
		}
		fk.To = to.String
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// DumpSchema reads the catalog of the database at dbPath and describes it
// as a tables.json entry. An empty dbID defaults to the file name without
// its extension.
func DumpSchema(ctx context.Context, dbPath, dbID string) (*SchemaDescriptor, error) {
	if dbID == "" {
		base := filepath.Base(dbPath)
		dbID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	db, err := OpenExisting(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tables, err := ReadCatalog(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to dump schema of %s: %w", dbPath, err)
	}
	return DescribeCatalog(dbID, tables), nil
}

// DescribeCatalog builds the descriptor for an already read catalog.
func DescribeCatalog(dbID string, tables []CatalogTable) *SchemaDescriptor {
	s := NewSchemaDescriptor(dbID)
	s.ColumnNames = append(s.ColumnNames, Wildcard)
	s.ColumnNamesOriginal = append(s.ColumnNamesOriginal, Wildcard)
	s.ColumnTypes = append(s.ColumnTypes, TypeText)

	for i, t := range tables {
		s.TableNamesOriginal = append(s.TableNamesOriginal, t.Name)
		s.TableNames = append(s.TableNames, displayName(t.Name))
		for _, c := range t.Columns {
			s.ColumnNamesOriginal = append(s.ColumnNamesOriginal, ColumnRef{Table: i, Name: c.Name})
			s.ColumnNames = append(s.ColumnNames, ColumnRef{Table: i, Name: displayName(c.Name)})
			s.ColumnTypes = append(s.ColumnTypes, ClassifyDeclaredType(c.Type))
			if c.PrimaryKey == 1 {
				s.PrimaryKeys = append(s.PrimaryKeys, len(s.ColumnNames)-1)
			}
		}
	}

	for i, t := range tables {
		for _, fk := range t.ForeignKeys {
			from := s.columnIndex(i, fk.From)
			refTable := s.tableIndex(fk.Table)
			to := s.columnIndex(refTable, fk.To)
			if fk.To == "" {
				to = s.primaryKeyOf(refTable)
			}
			if from > 0 && to > 0 {
				s.ForeignKeys = append(s.ForeignKeys, [2]int{from, to})
			}
		}
	}
	return s
}

func displayName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", " ")
}

func (s *SchemaDescriptor) tableIndex(name string) int {
	for i, t := range s.TableNamesOriginal {
		if strings.EqualFold(t, name) {
			return i
		}
	}
	return -2
}

func (s *SchemaDescriptor) columnIndex(table int, name string) int {
	if name == "" {
		return -1
	}
	for i, c := range s.ColumnNamesOriginal {
		if c.Table == table && strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func (s *SchemaDescriptor) primaryKeyOf(table int) int {
	for _, pk := range s.PrimaryKeys {
		if s.ColumnNamesOriginal[pk].Table == table {
			return pk
		}
	}
	return -1
}

// ClassifyDeclaredType maps a SQLite declared type onto a ColumnType.
func ClassifyDeclaredType(declared string) ColumnType {
	t := strings.ToLower(declared)
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(t, s) {
				return true
			}
		}
		return false
	}
	switch {
	case t == "" || has("char", "text", "var"):
		return TypeText
	case has("int", "numeric", "decimal", "number", "id", "real", "double", "float"):
		return TypeNumber
	case has("date", "time", "year"):
		return TypeTime
	case has("boolean"):
		return TypeBoolean
	}
	return TypeOthers
}

// Attach makes the database file at path visible to db under alias. The
// returned function detaches it again.
func Attach(ctx context.Context, db *sql.DB, path, alias string) (func() error, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
	}
	if _, err := db.ExecContext(ctx, "ATTACH DATABASE ? AS "+common.QuoteIdent(alias), path); err != nil {
		return nil, fmt.Errorf("failed to attach %s: %w", path, err)
	}
	return func() error {
		if _, err := db.ExecContext(context.Background(), "DETACH DATABASE "+common.QuoteIdent(alias)); err != nil {
			return fmt.Errorf("failed to detach %s: %w", alias, err)
		}
		return nil
	}, nil
}

// ReadAttachedCatalog is ReadCatalog for a database attached under alias.
func ReadAttachedCatalog(ctx context.Context, db *sql.DB, alias string) ([]CatalogTable, error) {
	q := common.QuoteIdent(alias)
	rows, err := db.QueryContext(ctx, "SELECT name FROM "+q+".sqlite_master WHERE type='table'")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables of %s: %w", alias, err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]CatalogTable, 0, len(names))
	for _, name := range names {
		t := CatalogTable{Name: name}
		if t.Columns, err = readColumns(ctx, db, alias, name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// CopyRows appends every row of alias.src to dst. Both tables must have the
// same column count and order.
func CopyRows(ctx context.Context, db *sql.DB, alias, src, dst string) (int64, error) {
	res, err := db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s.%s",
		common.QuoteIdent(dst), common.QuoteIdent(alias), common.QuoteIdent(src)))
	if err != nil {
		return 0, fmt.Errorf("failed to copy rows of %s into %s: %w", src, dst, err)
	}
	return res.RowsAffected()
}

// ProbeQuery runs query inside a transaction that is always rolled back and
// reports whether it produced at least one row. A positive timeout bounds
// the run; a query still running when it expires fails with
// context.DeadlineExceeded.
func ProbeQuery(ctx context.Context, db *sql.DB, query string, timeout time.Duration) (bool, error) {
	rows, err := ProbeResult(ctx, db, query, timeout, 1)
	return len(rows) > 0, err
}

// ProbeResult runs query like ProbeQuery and returns at most limit rows.
func ProbeResult(ctx context.Context, db *sql.DB, query string, timeout time.Duration, limit int) ([][]any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for len(out) < limit && rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
