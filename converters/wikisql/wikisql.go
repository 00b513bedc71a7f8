// Package wikisql converts WikiSQL and CriteriaSQL, which ship one table per
// question set as JSON lines, into one SQLite store per table.
package wikisql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/converters/common"
	"github.com/darianmavgo/unifysql/converters/rewrite"
)

// Splits are converted in this order.
var Splits = []string{"test", "dev", "train"}

func init() {
	converters.Register("wikisql", &Dataset{})
	converters.Register("criteriasql", &Dataset{
		DefaultTable: "records",
		SkipHeaders:  []string{"NOUSE"},
		PrefixSplit:  true,
		CopyQuery:    true,
	})
}

// Dataset converts a WikiSQL-shaped dataset.
type Dataset struct {
	DefaultTable string   // table name instead of page and section titles
	SkipHeaders  []string // header cells dropped with their column
	PrefixSplit  bool     // db ids become "<split>-<table id>"
	CopyQuery    bool     // use the shipped SQL instead of rendering the indexed form
}

type question struct {
	TableID  string          `json:"table_id"`
	Question string          `json:"question"`
	SQL      json.RawMessage `json:"sql"`
	Query    string          `json:"query"`
}

// Convert implements converters.Adapter.
func (d *Dataset) Convert(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}

	if err := os.RemoveAll(filepath.Join(env.OutDir, "database")); err != nil {
		return nil, fmt.Errorf("failed to clear database directory: %w", err)
	}

	schemas := make(map[string]*converters.SchemaDescriptor)
	var ordered []*converters.SchemaDescriptor
	for _, split := range Splits {
		path := filepath.Join(env.OriginalDir, split+".tables.jsonl")
		err := converters.ReadJSONLines(path, func(line []byte) error {
			var raw converters.RawTable
			if err := json.Unmarshal(line, &raw); err != nil {
				return fmt.Errorf("failed to decode table in %s: %w", path, err)
			}
			if d.PrefixSplit {
				raw.ID = split + "-" + raw.ID
			}
			schema, err := d.synthesize(ctx, env, &raw, report)
			if err != nil {
				return err
			}
			if schema != nil {
				schemas[raw.ID] = schema
				ordered = append(ordered, schema)
			}
			return nil
		})
		if err != nil {
			return report, err
		}
	}

	withWildcard := make([]*converters.SchemaDescriptor, len(ordered))
	for i, s := range ordered {
		withWildcard[i] = s.WithWildcard()
	}
	if err := converters.WriteTables(filepath.Join(env.OutDir, "tables.json"), withWildcard); err != nil {
		return report, err
	}

	for _, split := range Splits {
		if err := d.convertQuestions(ctx, env, split, schemas, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// synthesize builds the store of one table. A nil schema with a nil error
// means the table was skipped and logged.
func (d *Dataset) synthesize(ctx context.Context, env *converters.Env, raw *converters.RawTable, report *converters.Report) (*converters.SchemaDescriptor, error) {
	db, err := converters.OpenStore(ctx, converters.StorePath(env.OutDir, raw.ID))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	res, err := converters.Synthesize(ctx, db, raw, env.SynthesisOptions(d.DefaultTable, d.SkipHeaders...))
	report.AddSynthesis(res, err)
	switch {
	case err == nil:
		return res.Schema, nil
	case errors.Is(err, common.ErrOrdinalOverflow), ctx.Err() != nil:
		return nil, err
	}
	log.Printf("[WIKISQL] skipping table %s: %v", raw.ID, err)
	return nil, nil
}

func (d *Dataset) convertQuestions(ctx context.Context, env *converters.Env, split string, schemas map[string]*converters.SchemaDescriptor, report *converters.Report) error {
	w, err := converters.CreateExampleWriter(filepath.Join(env.OutDir, split+".jsonl"))
	if err != nil {
		return err
	}

	path := filepath.Join(env.OriginalDir, split+".jsonl")
	err = converters.ReadJSONLines(path, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var q question
		if err := json.Unmarshal(line, &q); err != nil {
			return fmt.Errorf("failed to decode question in %s: %w", path, err)
		}
		ex, err := d.example(split, q, schemas)
		if err != nil {
			report.ExamplesDropped++
			if env.Verbose {
				log.Printf("[WIKISQL] dropping question %q: %v", q.Question, err)
			}
			return nil
		}
		return w.Write(ex)
	})
	report.ExamplesWritten += w.Count()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

func (d *Dataset) example(split string, q question, schemas map[string]*converters.SchemaDescriptor) (converters.UnifiedExample, error) {
	dbID := q.TableID
	if d.PrefixSplit {
		dbID = split + "-" + dbID
	}
	ex := converters.UnifiedExample{DBID: dbID, Question: q.Question}

	if d.CopyQuery {
		ex.Query = q.Query
		return ex, nil
	}

	schema, ok := schemas[dbID]
	if !ok {
		return ex, fmt.Errorf("no table %s", dbID)
	}
	var iq rewrite.IndexedQuery
	if err := json.Unmarshal(q.SQL, &iq); err != nil {
		return ex, fmt.Errorf("failed to decode sql: %w", err)
	}
	query, err := rewrite.Indexed(iq, schema)
	if err != nil {
		return ex, err
	}
	ex.Query = strings.TrimSpace(query)
	return ex, nil
}
