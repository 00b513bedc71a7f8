// Package seoss converts SEOSS-Queries, a set of question and query pairs
// over the apache-pig issue tracker database.
package seoss

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
)

// DBID is the id of the copied database.
const DBID = "seoss_data"

// Locations under the original dataset directory.
var (
	QueriesFile = filepath.Join("SEOSS_Queries_orchestrated", "seoss_queries_orchestrated.csv")
	SourceDB    = filepath.Join("SEOSS_Queries_orchestrated", "Database and DB schema", "apache-pig", "apache-pig.sqlite")
)

func init() {
	converters.Register("seoss", converters.AdapterFunc(Convert))
}

// ParseLine splits one ";" separated line into question and query. Lines
// with a trailing domain cell are accepted; anything shorter is not.
func ParseLine(line string) (question, query string, ok bool) {
	fields := strings.Split(strings.TrimSpace(line), ";")
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// Convert implements converters.AdapterFunc for SEOSS.
func Convert(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}

	if err := writeExamples(ctx, filepath.Join(env.OriginalDir, QueriesFile), filepath.Join(env.OutDir, "test.jsonl"), report); err != nil {
		return report, err
	}

	storePath := converters.StorePath(env.OutDir, DBID)
	if err := converters.CopyFile(filepath.Join(env.OriginalDir, SourceDB), storePath); err != nil {
		return report, err
	}
	schema, err := converters.DumpSchema(ctx, storePath, DBID)
	if err != nil {
		return report, err
	}
	return report, converters.WriteTables(filepath.Join(env.OutDir, "tables.json"), []*converters.SchemaDescriptor{schema})
}

func writeExamples(ctx context.Context, src, dst string, report *converters.Report) error {
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", converters.ErrMissingInput, src)
		}
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()

	w, err := converters.CreateExampleWriter(dst)
	if err != nil {
		return err
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		if err = ctx.Err(); err != nil {
			break
		}
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		question, query, ok := ParseLine(sc.Text())
		if !ok {
			report.ExamplesDropped++
			continue
		}
		if err = w.Write(converters.UnifiedExample{DBID: DBID, Question: question, Query: query}); err != nil {
			break
		}
	}
	if err == nil {
		err = sc.Err()
	}
	report.ExamplesWritten += w.Count()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}
