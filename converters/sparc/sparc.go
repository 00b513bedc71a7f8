// Package sparc converts the conversational datasets SParC and CoSQL. Every
// turn of an interaction becomes one example that carries the questions
// asked before it.
package sparc

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/converters/rewrite"
)

func init() {
	converters.Register("sparc", &Dataset{DevSuffix: "dev.json", TrainSuffix: "train.json"})
	converters.Register("cosql", &Dataset{
		InputDir:    "sql_state_tracking",
		DevSuffix:   "_dev.json",
		TrainSuffix: "_train.json",
		DumpSchemas: true,
		ClearOutDir: true,
	})
}

// Dataset converts one interaction dataset.
type Dataset struct {
	InputDir    string // directory under the original dir holding the interaction files
	DevSuffix   string
	TrainSuffix string
	DumpSchemas bool // regenerate tables.json from the databases instead of copying it
	ClearOutDir bool
}

type interaction struct {
	DatabaseID  string `json:"database_id"`
	Interaction []turn `json:"interaction"`
}

type turn struct {
	Utterance string `json:"utterance"`
	Query     string `json:"query"`
}

// Convert implements converters.Adapter.
func (d *Dataset) Convert(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}
	if d.ClearOutDir {
		if err := os.RemoveAll(env.OutDir); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", env.OutDir, err)
		}
	}

	inputDir := filepath.Join(env.OriginalDir, d.InputDir)
	dev, err := findFile(inputDir, d.DevSuffix)
	if err != nil {
		return nil, err
	}
	train, err := findFile(inputDir, d.TrainSuffix)
	if err != nil {
		return nil, err
	}
	if err := convertFile(ctx, dev, filepath.Join(env.OutDir, "dev.jsonl"), report); err != nil {
		return report, err
	}
	if err := convertFile(ctx, train, filepath.Join(env.OutDir, "train.jsonl"), report); err != nil {
		return report, err
	}

	dbDir := filepath.Join(env.OutDir, "database")
	if err := converters.CopyDir(filepath.Join(env.OriginalDir, "database"), dbDir); err != nil {
		return report, err
	}
	if !d.DumpSchemas {
		return report, converters.CopyFile(filepath.Join(env.OriginalDir, "tables.json"), filepath.Join(env.OutDir, "tables.json"))
	}

	schemas, err := DumpDatabases(ctx, dbDir, env.Verbose)
	if err != nil {
		return report, err
	}
	return report, converters.WriteTables(filepath.Join(env.OutDir, "tables.json"), schemas)
}

// DumpDatabases describes every <dir>/<id>/<id>.sqlite in directory order.
func DumpDatabases(ctx context.Context, dbDir string, verbose bool) ([]*converters.SchemaDescriptor, error) {
	entries, err := os.ReadDir(dbDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	var schemas []*converters.SchemaDescriptor
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		if verbose {
			log.Printf("[SPARC] dumping schema of %s", id)
		}
		s, err := converters.DumpSchema(ctx, filepath.Join(dbDir, id, id+".sqlite"), id)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	return schemas, nil
}

// findFile returns the first file in dir whose name ends with suffix.
func findFile(dir, suffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", converters.ErrMissingInput, dir)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: no *%s in %s", converters.ErrMissingInput, suffix, dir)
}

func convertFile(ctx context.Context, src, dst string, report *converters.Report) error {
	var interactions []interaction
	if err := converters.ReadJSON(src, &interactions); err != nil {
		return err
	}
	w, err := converters.CreateExampleWriter(dst)
	if err != nil {
		return err
	}
	for _, ia := range interactions {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = writeInteraction(w, ia); err != nil {
			break
		}
	}
	report.ExamplesWritten += w.Count()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

// examples expands one interaction into its turns.
func examples(ia interaction) []converters.UnifiedExample {
	out := make([]converters.UnifiedExample, len(ia.Interaction))
	history := []string{}
	for i, t := range ia.Interaction {
		out[i] = converters.UnifiedExample{
			DBID:        ia.DatabaseID,
			Question:    t.Utterance,
			Query:       rewrite.FixSpacedOperators(t.Query),
			HistoryText: history,
		}
		history = append(history[:len(history):len(history)], t.Utterance)
	}
	return out
}

func writeInteraction(w *converters.ExampleWriter, ia interaction) error {
	for _, ex := range examples(ia) {
		if err := w.Write(ex); err != nil {
			return err
		}
	}
	return nil
}
