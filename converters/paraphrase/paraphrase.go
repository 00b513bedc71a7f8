// Package paraphrase converts ParaphraseBench. All six flavors ask the same
// gold queries against one patients table; each flavor becomes its own
// dataset with a copy of the database.
package paraphrase

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
)

// DBID is the id of the patients database.
const DBID = "patients"

// Flavors are the question variants shipped by ParaphraseBench.
var Flavors = []string{"naive", "syntactic", "morphological", "lexical", "semantic", "missing"}

// PatientsDump creates and fills the patients table in SQLite syntax.
//
//go:embed patients.sql
var PatientsDump string

func init() {
	for _, flavor := range Flavors {
		converters.Register(DatasetName(flavor), &Flavor{Name: flavor})
	}
}

// DatasetName is the registered name of one flavor.
func DatasetName(flavor string) string {
	return flavor + "_paraphrase_bench"
}

// Flavor converts the questions of one ParaphraseBench flavor.
type Flavor struct {
	Name string
}

// Convert implements converters.Adapter.
func (f *Flavor) Convert(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}

	storePath := converters.StorePath(env.OutDir, DBID)
	if err := os.Remove(storePath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove old database: %w", err)
	}
	db, err := converters.OpenStore(ctx, storePath)
	if err != nil {
		return nil, err
	}
	err = converters.ExecScript(ctx, db, PatientsDump)
	db.Close()
	if err != nil {
		return nil, err
	}
	report.TablesSynthesized++

	schema, err := converters.DumpSchema(ctx, storePath, DBID)
	if err != nil {
		return report, err
	}
	if err := converters.WriteTables(filepath.Join(env.OutDir, "tables.json"), []*converters.SchemaDescriptor{schema}); err != nil {
		return report, err
	}

	questions, err := readLines(filepath.Join(env.OriginalDir, f.Name+"_source.txt"))
	if err != nil {
		return report, err
	}
	queries, err := readLines(filepath.Join(env.OriginalDir, "patients_test.sql"))
	if err != nil {
		return report, err
	}
	n := min(len(questions), len(queries))
	report.ExamplesDropped = max(len(questions), len(queries)) - n

	w, err := converters.CreateExampleWriter(filepath.Join(env.OutDir, "dev.jsonl"))
	if err != nil {
		return report, err
	}
	for i := range n {
		if err = w.Write(converters.UnifiedExample{DBID: DBID, Question: questions[i], Query: queries[i]}); err != nil {
			break
		}
	}
	report.ExamplesWritten += w.Count()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return report, err
}

// readLines returns the trimmed lines of a text file. A final newline does
// not start another line.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", converters.ErrMissingInput, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return lines, nil
}
