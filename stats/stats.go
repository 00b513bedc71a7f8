// Package stats reports structural statistics over the unified datasets:
// schema sizes, query complexity and how many distinct SQL patterns the
// questions of each split boil down to.
package stats

import (
	"math"
	"strconv"

	"github.com/darianmavgo/unifysql/converters"
)

// field is one named, already formatted value of a statistics row.
type field struct {
	Name  string
	Value string
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return round2(float64(n) / float64(d))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// NLQ summarizes the queries of one split.
type NLQ struct {
	TotalNLQs     int
	ParsingErrors int
	JoinCounts    float64
	SelectCounts  float64
	NestLevels    float64
}

// NLQStats averages the shapes of the parsed queries. Queries that failed
// to parse are only counted.
func NLQStats(analyses []Analysis) NLQ {
	var s NLQ
	var joins, selects, nests int
	for _, a := range analyses {
		if a.Err != nil {
			s.ParsingErrors++
			continue
		}
		s.TotalNLQs++
		joins += a.Shape.Joins
		selects += a.Shape.Selects
		nests += a.Shape.NestLevel()
	}
	s.JoinCounts = ratio(joins, s.TotalNLQs)
	s.SelectCounts = ratio(selects, s.TotalNLQs)
	s.NestLevels = ratio(nests, s.TotalNLQs)
	return s
}

func (s NLQ) fields() []field {
	return []field{
		{"total_nlqs", strconv.Itoa(s.TotalNLQs)},
		{"parsing_errors", strconv.Itoa(s.ParsingErrors)},
		{"join_counts", formatFloat(s.JoinCounts)},
		{"select_counts", formatFloat(s.SelectCounts)},
		{"nest_levels", formatFloat(s.NestLevels)},
	}
}

// Schema summarizes a tables.json file.
type Schema struct {
	DBCount            int
	AvgTablesPerDB     float64
	AvgColumnsPerTable float64
	AvgPKPerTable      float64
	AvgFKPerTable      float64
}

// SchemaStats averages table, column and key counts over the databases.
// Column counts include the "*" entry where a descriptor carries one.
func SchemaStats(schemas []*converters.SchemaDescriptor) Schema {
	var tables, columns, pks, fks int
	for _, s := range schemas {
		tables += len(s.TableNamesOriginal)
		columns += len(s.ColumnNamesOriginal)
		pks += len(s.PrimaryKeys)
		fks += len(s.ForeignKeys)
	}
	return Schema{
		DBCount:            len(schemas),
		AvgTablesPerDB:     ratio(tables, len(schemas)),
		AvgColumnsPerTable: ratio(columns, tables),
		AvgPKPerTable:      ratio(pks, tables),
		AvgFKPerTable:      ratio(fks, tables),
	}
}

func (s Schema) fields() []field {
	return []field{
		{"db_count", strconv.Itoa(s.DBCount)},
		{"avg_tables_per_db", formatFloat(s.AvgTablesPerDB)},
		{"avg_columns_per_table", formatFloat(s.AvgColumnsPerTable)},
		{"avg_pk_per_table", formatFloat(s.AvgPKPerTable)},
		{"avg_fk_per_table", formatFloat(s.AvgFKPerTable)},
	}
}

// Redundancy describes how many questions share a normalized SQL pattern.
type Redundancy struct {
	NLQs                    int
	UniqueSQLPatterns       int
	NLQsPerPattern          float64
	MaxQueriesPerPattern    int
	StdDevQueriesPerPattern float64
}

// RedundancyStats groups the parsed queries by pattern. The deviation is
// the population standard deviation of the group sizes.
func RedundancyStats(analyses []Analysis) Redundancy {
	var r Redundancy
	groups := make(map[string]int)
	for _, a := range analyses {
		if a.Err != nil {
			continue
		}
		r.NLQs++
		groups[a.Pattern]++
	}
	r.UniqueSQLPatterns = len(groups)
	r.NLQsPerPattern = ratio(r.NLQs, len(groups))
	if len(groups) == 0 {
		return r
	}

	mean := float64(r.NLQs) / float64(len(groups))
	var sq float64
	for _, n := range groups {
		r.MaxQueriesPerPattern = max(r.MaxQueriesPerPattern, n)
		d := float64(n) - mean
		sq += d * d
	}
	r.StdDevQueriesPerPattern = round2(math.Sqrt(sq / float64(len(groups))))
	return r
}

func (r Redundancy) fields() []field {
	return []field{
		{"nlqs", strconv.Itoa(r.NLQs)},
		{"unique_sql_patterns", strconv.Itoa(r.UniqueSQLPatterns)},
		{"total_nlqs_by_unique_patterns", formatFloat(r.NLQsPerPattern)},
		{"max_queries_per_pattern", strconv.Itoa(r.MaxQueriesPerPattern)},
		{"std_dev_queries_per_pattern", formatFloat(r.StdDevQueriesPerPattern)},
	}
}
