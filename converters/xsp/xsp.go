// Package xsp converts the Michigan text-to-SQL collections as packaged for
// cross-database semantic parsing: ATIS, GeoQuery, Scholar, Advising,
// Restaurants, Academic, IMDB and Yelp. Questions come with anonymized
// variables that are filled in before the gold query is checked against the
// database. Questions are dropped when their query fails, returns nothing or
// only a zero count, compares values the question does not contain, or
// selects more than one column.
package xsp

import (
	"context"
	"log"
	"path/filepath"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/converters/rewrite"
)

// Run is one Michigan collection.
type Run struct {
	Name   string
	Splits []string // question-split values to keep, in output order
	// CaseInsensitive compares quoted values with COLLATE NOCASE when checking.
	CaseInsensitive bool
	// KeepFraction shrinks every table of the copied database to this share
	// of its rows before queries are checked. Zero keeps everything.
	KeepFraction float64
}

var tenFolds = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}

// Runs are registered under their own names.
var Runs = []*Run{
	{Name: "atis", Splits: []string{"dev"}},
	{Name: "geoquery", Splits: []string{"train", "dev"}},
	{Name: "scholar", Splits: []string{"train", "dev"}, CaseInsensitive: true, KeepFraction: 0.01},
	{Name: "advising", Splits: []string{"train", "dev"}},
	{Name: "restaurants", Splits: tenFolds},
	{Name: "academic", Splits: tenFolds},
	{Name: "imdb", Splits: tenFolds},
	{Name: "yelp", Splits: tenFolds},
}

func init() {
	for _, r := range Runs {
		converters.Register(r.Name, r)
	}
}

type variable struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type sentence struct {
	Text      string            `json:"text"`
	Variables map[string]string `json:"variables"`
	Split     string            `json:"question-split"`
}

type querySet struct {
	SQL       []string   `json:"sql"`
	Variables []variable `json:"variables"`
	Sentences []sentence `json:"sentences"`
}

// blankSQLOnly empties every variable that only appears in the SQL, so the
// substitution turns its comparison into a wildcard match.
func blankSQLOnly(sets []querySet) {
	for _, qs := range sets {
		for _, v := range qs.Variables {
			if v.Location != "sql-only" {
				continue
			}
			for i := range qs.Sentences {
				if qs.Sentences[i].Variables == nil {
					qs.Sentences[i].Variables = make(map[string]string)
				}
				qs.Sentences[i].Variables[v.Name] = ""
			}
		}
	}
}

// Convert implements converters.Adapter.
func (r *Run) Convert(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}

	var sets []querySet
	if err := converters.ReadJSON(filepath.Join(env.OriginalDir, r.Name+".json"), &sets); err != nil {
		return nil, err
	}
	blankSQLOnly(sets)

	storePath := converters.StorePath(env.OutDir, r.Name)
	if err := converters.CopyFile(filepath.Join(env.OriginalDir, r.Name+".sqlite"), storePath); err != nil {
		return nil, err
	}
	db, err := converters.OpenExisting(ctx, storePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if r.KeepFraction > 0 {
		if err := Reduce(ctx, db, r.KeepFraction, env.Verbose); err != nil {
			return report, err
		}
	}

	schema, err := converters.DumpSchema(ctx, storePath, r.Name)
	if err != nil {
		return report, err
	}
	if err := converters.WriteTables(filepath.Join(env.OutDir, "tables.json"), []*converters.SchemaDescriptor{schema}); err != nil {
		return report, err
	}

	w, err := converters.CreateExampleWriter(filepath.Join(env.OutDir, "test.jsonl"))
	if err != nil {
		return report, err
	}
	checked := make(map[string]bool)
	err = r.writeExamples(ctx, sets, func(question, query string) error {
		if !copiable(question, query) || !singleSelect(query) {
			report.ExamplesDropped++
			return nil
		}
		probe := query
		if r.CaseInsensitive {
			probe = rewrite.CaseInsensitive(query)
		}
		ok, seen := checked[probe]
		if !seen {
			rows, perr := converters.ProbeResult(ctx, db, probe, env.QueryTimeout, 2)
			if perr != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			if perr != nil && env.Verbose {
				log.Printf("[XSP] %s: %v: %s", r.Name, perr, probe)
			}
			ok = perr == nil && len(rows) > 0 && !(isCount(query) && zeroResult(rows))
			checked[probe] = ok
		}
		if !ok {
			report.ExamplesDropped++
			return nil
		}
		return w.Write(converters.UnifiedExample{DBID: r.Name, Question: question, Query: rewrite.AnonymizeAliases(query)})
	})
	report.ExamplesWritten += w.Count()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		log.Printf("[XSP] %s: kept %d of %d questions", r.Name, report.ExamplesWritten, report.ExamplesWritten+report.ExamplesDropped)
	}
	return report, err
}

// writeExamples walks the questions split by split, filling in variables. A
// question belongs to a split when its split value is part of the split
// name. Only the first SQL variant of each set is used.
func (r *Run) writeExamples(ctx context.Context, sets []querySet, emit func(question, query string) error) error {
	for _, split := range r.Splits {
		for _, qs := range sets {
			if len(qs.SQL) == 0 {
				continue
			}
			for _, s := range qs.Sentences {
				if s.Split == "" || !strings.Contains(split, s.Split) {
					continue
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				question, query := rewrite.SubstituteVariables(s.Text, qs.SQL[0], s.Variables)
				if err := emit(question, query); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
