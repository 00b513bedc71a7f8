package common

import (
	"fmt"
	"strings"
)

// SQLStmtType defines the type of SQL statement to generate
type SQLStmtType string

const (
	InsertStmt SQLStmtType = "INSERT"
	SelectStmt SQLStmtType = "SELECT"
)

// QuoteIdent wraps an identifier in double quotes so that any generated
// name can be used in DDL, even ones SQLite would reject bare.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(names []string) []string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return quoted
}

// GenPreparedStmt generates a prepared statement for the specified operation
func GenPreparedStmt(table string, fields []string, stmtType SQLStmtType) (string, error) {
	if table == "" || len(fields) == 0 {
		return "", fmt.Errorf("table name and fields are required")
	}

	switch stmtType {
	case InsertStmt:
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			QuoteIdent(table),
			strings.Join(quoteAll(fields), ", "),
			strings.Repeat("?, ", len(fields)-1)+"?",
		), nil
	case SelectStmt:
		return fmt.Sprintf("SELECT %s FROM %s",
			strings.Join(quoteAll(fields), ", "),
			QuoteIdent(table),
		), nil
	default:
		return "", fmt.Errorf("unsupported statement type: %s", stmtType)
	}
}

// GenCreateTableSQL generates a CREATE TABLE statement. colTypes holds the
// declared type per column; a shorter slice or an empty entry leaves the
// column untyped. Extra table constraints are appended after the columns.
func GenCreateTableSQL(tableName string, columnNames, colTypes []string, constraints ...string) string {
	var builder strings.Builder
	builder.Grow(len(tableName) + len(columnNames)*20)

	builder.WriteString("CREATE TABLE ")
	builder.WriteString(QuoteIdent(tableName))
	builder.WriteString(" (")
	for i, name := range columnNames {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(QuoteIdent(name))
		if i < len(colTypes) && colTypes[i] != "" {
			builder.WriteByte(' ')
			builder.WriteString(colTypes[i])
		}
	}
	for _, c := range constraints {
		builder.WriteString(", ")
		builder.WriteString(c)
	}
	builder.WriteByte(')')
	return builder.String()
}
