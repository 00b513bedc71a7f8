package stats

import (
	"bufio"
	"cmp"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
)

// Output file names under the statistics directory.
const (
	SchemaStatsFile     = "schema_stats.csv"
	NLQStatsFile        = "nlq_stats.csv"
	RedundancyStatsFile = "redundancy_stats.csv"
	PatternsFile        = "unified_sql_patterns.json"
	ParsingErrorsDir    = "parsing_errors"
)

// missing fills cells of columns a row does not have.
const missing = "-"

// patternSplits are the files whose queries feed the cross-dataset pattern
// count.
var patternSplits = []string{"test.jsonl", "train.jsonl", "dev.jsonl"}

// Summary is what Collect looked at.
type Summary struct {
	Datasets      int
	Queries       int
	ParsingErrors int
	Patterns      int
}

// row is one line of a statistics table, keyed by flattened column name.
type row struct {
	columns []string
	values  map[string]string
}

func newRow(dataset string) *row {
	r := &row{values: make(map[string]string)}
	r.set("db_id", dataset)
	return r
}

func (r *row) set(name, value string) {
	if _, ok := r.values[name]; !ok {
		r.columns = append(r.columns, name)
	}
	r.values[name] = value
}

func (r *row) add(prefix string, fields []field) {
	for _, f := range fields {
		name := f.Name
		if prefix != "" {
			name = prefix + "." + f.Name
		}
		r.set(name, f.Value)
	}
}

// patternCounter keeps counts in first-seen order so ties stay stable.
type patternCounter struct {
	order  []string
	counts map[string]int
}

func (p *patternCounter) add(pattern string) {
	if p.counts == nil {
		p.counts = make(map[string]int)
	}
	if _, ok := p.counts[pattern]; !ok {
		p.order = append(p.order, pattern)
	}
	p.counts[pattern]++
}

// sorted returns the patterns by descending count.
func (p *patternCounter) sorted() []string {
	out := slices.Clone(p.order)
	slices.SortStableFunc(out, func(a, b string) int {
		return cmp.Compare(p.counts[b], p.counts[a])
	})
	return out
}

// Collect computes the statistics of every dataset directory under
// unifiedDir and writes the tables and the pattern counts to outDir. Queries
// that fail to parse are listed per dataset under outDir/parsing_errors.
func Collect(ctx context.Context, unifiedDir, outDir string, verbose bool) (*Summary, error) {
	entries, err := os.ReadDir(unifiedDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", converters.ErrMissingInput, unifiedDir)
		}
		return nil, fmt.Errorf("failed to list %s: %w", unifiedDir, err)
	}
	errorsDir := filepath.Join(outDir, ParsingErrorsDir)
	if err := os.MkdirAll(errorsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	summary := &Summary{}
	var schemaRows, nlqRows, redundancyRows []*row
	var patterns patternCounter
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		dataset := e.Name()
		dir := filepath.Join(unifiedDir, dataset)
		log.Printf("[STATS] Getting stats for %s", dataset)
		summary.Datasets++

		schemaPath := filepath.Join(dir, "tables.json")
		if _, err := os.Stat(schemaPath); err == nil {
			schemas, err := converters.ReadTables(schemaPath)
			if err != nil {
				return summary, err
			}
			r := newRow(dataset)
			r.add("", SchemaStats(schemas).fields())
			schemaRows = append(schemaRows, r)
		}

		splits, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
		if err != nil {
			return summary, fmt.Errorf("failed to list splits of %s: %w", dataset, err)
		}
		nlqRow, redundancyRow := newRow(dataset), newRow(dataset)
		var failures []Analysis
		for _, path := range splits {
			analyses, err := analyzeFile(path)
			if err != nil {
				return summary, err
			}
			split := strings.TrimSuffix(filepath.Base(path), ".jsonl")
			nlqRow.add(split, NLQStats(analyses).fields())
			redundancyRow.add(split, RedundancyStats(analyses).fields())

			counted := slices.Contains(patternSplits, filepath.Base(path))
			for _, a := range analyses {
				summary.Queries++
				if a.Err != nil {
					failures = append(failures, a)
					continue
				}
				if counted {
					patterns.add(UnifyEqualities(a.Pattern))
				}
			}
		}
		nlqRows = append(nlqRows, nlqRow)
		redundancyRows = append(redundancyRows, redundancyRow)

		summary.ParsingErrors += len(failures)
		if err := writeFailures(filepath.Join(errorsDir, dataset), failures); err != nil {
			return summary, err
		}
		if verbose && len(failures) > 0 {
			log.Printf("[STATS] %s: %d queries could not be parsed", dataset, len(failures))
		}
	}

	for name, rows := range map[string][]*row{
		SchemaStatsFile:     schemaRows,
		NLQStatsFile:        nlqRows,
		RedundancyStatsFile: redundancyRows,
	} {
		if err := writeRows(filepath.Join(outDir, name), rows); err != nil {
			return summary, err
		}
	}
	summary.Patterns = len(patterns.order)
	if err := writePatterns(filepath.Join(outDir, PatternsFile), &patterns); err != nil {
		return summary, err
	}
	return summary, nil
}

// analyzeFile parses the query of every example in a unified split file.
func analyzeFile(path string) ([]Analysis, error) {
	var analyses []Analysis
	err := converters.ReadJSONLines(path, func(line []byte) error {
		var ex converters.UnifiedExample
		if err := json.Unmarshal(line, &ex); err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
		analyses = append(analyses, Analyze(ex.Query))
		return nil
	})
	return analyses, err
}

// writeFailures replaces the parse error list of one dataset. Nothing is
// written when every query parsed.
func writeFailures(path string, failures []Analysis) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	if len(failures) == 0 {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, a := range failures {
		fmt.Fprintf(w, "%s \n %v \n\n", a.Query, a.Err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// writeRows writes rows as CSV. The header is the union of the row columns
// in first-seen order; absent cells hold "-".
func writeRows(path string, rows []*row) error {
	var header []string
	seen := make(map[string]bool)
	for _, r := range rows {
		for _, c := range r.columns {
			if !seen[c] {
				seen[c] = true
				header = append(header, c)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	record := make([]string, len(header))
	for _, r := range rows {
		for i, c := range header {
			v, ok := r.values[c]
			if !ok {
				v = missing
			}
			record[i] = v
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// writePatterns writes a JSON object from pattern to count, most frequent
// first.
func writePatterns(path string, p *patternCounter) error {
	var b strings.Builder
	b.WriteString("{")
	for i, pattern := range p.sorted() {
		key, err := json.Marshal(pattern)
		if err != nil {
			return fmt.Errorf("failed to encode pattern: %w", err)
		}
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "\n    %s: %d", key, p.counts[pattern])
	}
	if len(p.order) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
