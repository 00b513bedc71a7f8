package converters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ColumnType is the coarse column type recorded in tables.json.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeNumber  ColumnType = "number"
	TypeTime    ColumnType = "time"
	TypeBoolean ColumnType = "boolean"
	TypeOthers  ColumnType = "others"
)

// DeclaredType returns the SQLite declared type used when a synthesized
// table is created.
func (t ColumnType) DeclaredType() string {
	if t == TypeNumber {
		return "NUMERIC"
	}
	return "TEXT"
}

// Cell is one table cell. Source tables mix JSON strings and numbers in the
// same row, so both decode into their literal text.
type Cell string

func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Cell(s)
	default:
		*c = Cell(data)
	}
	return nil
}

// RawTable is a table as shipped by WikiSQL-style datasets.
type RawTable struct {
	ID           string       `json:"id"`
	Header       []string     `json:"header"`
	Rows         [][]Cell     `json:"rows"`
	Types        []ColumnType `json:"types"`
	PageTitle    *string      `json:"page_title,omitempty"`
	SectionTitle *string      `json:"section_title,omitempty"`
}

// ColumnRef points at a column by table index; -1 is the "*" wildcard.
// It encodes as the two element array [table_index, name].
type ColumnRef struct {
	Table int
	Name  string
}

func (r ColumnRef) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Table, r.Name})
}

func (r *ColumnRef) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("column reference must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &r.Table); err != nil {
		return fmt.Errorf("bad table index: %w", err)
	}
	if err := json.Unmarshal(pair[1], &r.Name); err != nil {
		return fmt.Errorf("bad column name: %w", err)
	}
	return nil
}

// Wildcard is the column every Spider-style descriptor starts with.
var Wildcard = ColumnRef{Table: -1, Name: "*"}

// SchemaDescriptor is one database entry of tables.json.
type SchemaDescriptor struct {
	DBID                string       `json:"db_id"`
	TableNames          []string     `json:"table_names"`
	TableNamesOriginal  []string     `json:"table_names_original"`
	ColumnNames         []ColumnRef  `json:"column_names"`
	ColumnNamesOriginal []ColumnRef  `json:"column_names_original"`
	ColumnTypes         []ColumnType `json:"column_types"`
	PrimaryKeys         []int        `json:"primary_keys"`
	ForeignKeys         [][2]int     `json:"foreign_keys"`
}

// NewSchemaDescriptor returns an empty descriptor whose list fields encode
// as [] rather than null.
func NewSchemaDescriptor(dbID string) *SchemaDescriptor {
	return &SchemaDescriptor{
		DBID:                dbID,
		TableNames:          []string{},
		TableNamesOriginal:  []string{},
		ColumnNames:         []ColumnRef{},
		ColumnNamesOriginal: []ColumnRef{},
		ColumnTypes:         []ColumnType{},
		PrimaryKeys:         []int{},
		ForeignKeys:         [][2]int{},
	}
}

// WithWildcard returns a copy with the "*" column prepended. Column indices
// in keys shift by one to stay aligned.
func (s *SchemaDescriptor) WithWildcard() *SchemaDescriptor {
	out := NewSchemaDescriptor(s.DBID)
	out.TableNames = append(out.TableNames, s.TableNames...)
	out.TableNamesOriginal = append(out.TableNamesOriginal, s.TableNamesOriginal...)
	out.ColumnNames = append(append(out.ColumnNames, Wildcard), s.ColumnNames...)
	out.ColumnNamesOriginal = append(append(out.ColumnNamesOriginal, Wildcard), s.ColumnNamesOriginal...)
	out.ColumnTypes = append(append(out.ColumnTypes, TypeText), s.ColumnTypes...)
	for _, pk := range s.PrimaryKeys {
		out.PrimaryKeys = append(out.PrimaryKeys, pk+1)
	}
	for _, fk := range s.ForeignKeys {
		out.ForeignKeys = append(out.ForeignKeys, [2]int{fk[0] + 1, fk[1] + 1})
	}
	return out
}

// Validate checks that the parallel column lists line up and that every
// column points at an existing table.
func (s *SchemaDescriptor) Validate() error {
	if len(s.TableNames) != len(s.TableNamesOriginal) {
		return fmt.Errorf("%s: %d table names but %d original table names",
			s.DBID, len(s.TableNames), len(s.TableNamesOriginal))
	}
	n := len(s.ColumnNamesOriginal)
	if len(s.ColumnNames) != n || len(s.ColumnTypes) != n {
		return fmt.Errorf("%s: column lists differ in length (%d names, %d original, %d types)",
			s.DBID, len(s.ColumnNames), n, len(s.ColumnTypes))
	}
	for i, col := range s.ColumnNamesOriginal {
		if col.Table != s.ColumnNames[i].Table {
			return fmt.Errorf("%s: column %d table index mismatch", s.DBID, i)
		}
		if col.Table < -1 || col.Table >= len(s.TableNamesOriginal) {
			return fmt.Errorf("%s: column %d points at missing table %d", s.DBID, i, col.Table)
		}
	}
	for _, pk := range s.PrimaryKeys {
		if pk < 0 || pk >= n {
			return fmt.Errorf("%s: primary key %d out of range", s.DBID, pk)
		}
	}
	for _, fk := range s.ForeignKeys {
		if fk[0] < 0 || fk[0] >= n || fk[1] < 0 || fk[1] >= n {
			return fmt.Errorf("%s: foreign key %v out of range", s.DBID, fk)
		}
	}
	return nil
}

// UnifiedExample is one line of a unified train/dev/test file.
type UnifiedExample struct {
	DBID        string   `json:"db_id"`
	Question    string   `json:"question"`
	Query       string   `json:"query"`
	HistoryText []string `json:"history_text,omitzero"`
	Target      string   `json:"target,omitempty"`
}

// Report counts what a dataset conversion produced and what it dropped.
type Report struct {
	Dataset           string
	TablesSynthesized int
	TablesSkipped     int
	RowsInserted      int
	RowsDropped       int
	ExamplesWritten   int
	ExamplesDropped   int
}

// AddSynthesis folds the outcome of one Synthesize call into the report.
func (r *Report) AddSynthesis(res *SynthesisResult, err error) {
	if res != nil {
		r.RowsInserted += res.RowsInserted
		r.RowsDropped += res.RowsDropped
	}
	if err != nil {
		r.TablesSkipped++
		return
	}
	r.TablesSynthesized++
}

func (r *Report) String() string {
	return fmt.Sprintf("%s: tables %d ok / %d skipped, rows %d inserted / %d dropped, examples %d written / %d dropped",
		r.Dataset, r.TablesSynthesized, r.TablesSkipped, r.RowsInserted, r.RowsDropped,
		r.ExamplesWritten, r.ExamplesDropped)
}

// Env is what an adapter needs to know about one conversion run.
type Env struct {
	Name         string        // registered dataset name
	RunID        string        // identifies the run in logs and the error table
	OriginalDir  string        // where the dataset's native files live
	OutDir       string        // unified/<dataset>
	BatchSize    int           // rows per insert transaction
	QueryTimeout time.Duration // per-query limit for execution checks
	LogErrors    bool          // record failed inserts in the store
	Verbose      bool
}

// SynthesisOptions returns the engine options for this run.
func (e *Env) SynthesisOptions(defaultTable string, skipHeaders ...string) SynthesisOptions {
	return SynthesisOptions{
		DefaultTableName: defaultTable,
		SkipHeaders:      skipHeaders,
		BatchSize:        e.BatchSize,
		LogErrors:        e.LogErrors,
		RunID:            e.RunID,
		Verbose:          e.Verbose,
	}
}
