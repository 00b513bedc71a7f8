// Package squall converts SQUALL, whose WikiTableQuestions databases use
// placeholder column names, into stores named after the table headers.
package squall

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/converters/common"
	"github.com/darianmavgo/unifysql/converters/rewrite"
)

// DevFold is the cross-validation fold whose ids make up the dev split.
const DevFold = 4

const sourceAlias = "squall_src"

// foreignKey ties every derived table to the root table.
var foreignKey = "FOREIGN KEY(m_id) REFERENCES " + rewrite.RootTable + "(id)"

func init() {
	converters.Register("squall", converters.AdapterFunc(Convert))
}

type entry struct {
	Table  string          `json:"tbl"`
	NL     []string        `json:"nl"`
	SQL    []rewrite.Token `json:"sql"`
	Target converters.Cell `json:"tgt"`
}

type tableHeaders struct {
	Headers []string `json:"headers"`
}

type database struct {
	id      string
	mapping rewrite.ColumnMapping
	catalog []converters.CatalogTable // of the original database
}

// Convert implements converters.AdapterFunc for SQUALL.
func Convert(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}

	var entries []entry
	if err := converters.ReadJSON(filepath.Join(env.OriginalDir, "data", "squall.json"), &entries); err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !slices.Contains(ids, e.Table) {
			ids = append(ids, e.Table)
		}
	}
	slices.Sort(ids)

	if err := os.RemoveAll(filepath.Join(env.OutDir, "database")); err != nil {
		return nil, fmt.Errorf("failed to clear database directory: %w", err)
	}

	databases := make(map[string]*database, len(ids))
	schemas := make([]*converters.SchemaDescriptor, 0, len(ids))
	for _, id := range ids {
		dbID, _, _ := strings.Cut(id, ".")
		d, err := convertDatabase(ctx, env, dbID, report)
		if err != nil {
			return report, err
		}
		databases[id] = d

		schema, err := converters.DumpSchema(ctx, converters.StorePath(env.OutDir, dbID), dbID)
		if err != nil {
			return report, err
		}
		schemas = append(schemas, schema)
	}
	if err := converters.WriteTables(filepath.Join(env.OutDir, "tables.json"), schemas); err != nil {
		return report, err
	}

	var devIDs []string
	if err := converters.ReadJSON(filepath.Join(env.OriginalDir, "data", fmt.Sprintf("dev-%d.ids", DevFold)), &devIDs); err != nil {
		return report, err
	}

	var dev, train []entry
	for _, e := range entries {
		if slices.Contains(devIDs, e.Table) {
			dev = append(dev, e)
		} else {
			train = append(train, e)
		}
	}
	if err := writeExamples(filepath.Join(env.OutDir, "dev.jsonl"), dev, databases, report); err != nil {
		return report, err
	}
	if err := writeExamples(filepath.Join(env.OutDir, "train.jsonl"), train, databases, report); err != nil {
		return report, err
	}
	return report, nil
}

// Headers reads the header list of one SQUALL table and turns the user
// facing columns into unique identifiers. The first two headers are the
// id and agg bookkeeping columns and are left out.
func Headers(path string) ([]string, error) {
	var th tableHeaders
	if err := converters.ReadJSON(path, &th); err != nil {
		return nil, err
	}
	if len(th.Headers) < 2 {
		return nil, fmt.Errorf("%s: expected id and agg headers, got %d headers", path, len(th.Headers))
	}
	headers := make([]string, 0, len(th.Headers)-2)
	for _, h := range th.Headers[2:] {
		headers = append(headers, common.SQUALLHeader(h))
	}
	return common.Deduplicate(headers)
}

func convertDatabase(ctx context.Context, env *converters.Env, dbID string, report *converters.Report) (*database, error) {
	headers, err := Headers(filepath.Join(env.OriginalDir, "tables", "json", dbID+".json"))
	if err != nil {
		return nil, err
	}
	d := &database{id: dbID, mapping: rewrite.NewColumnMapping(headers)}

	db, err := converters.OpenStore(ctx, converters.StorePath(env.OutDir, dbID))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	detach, err := converters.Attach(ctx, db, filepath.Join(env.OriginalDir, "tables", "db", dbID+".db"), sourceAlias)
	if err != nil {
		return nil, err
	}
	defer detach()

	d.catalog, err = converters.ReadAttachedCatalog(ctx, db, sourceAlias)
	if err != nil {
		return nil, err
	}
	for _, t := range d.catalog {
		n, err := copyTable(ctx, db, t, d.mapping, env.Verbose)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[SQUALL] %s: skipping table %s: %v", dbID, t.Name, err)
			report.TablesSkipped++
			continue
		}
		report.TablesSynthesized++
		report.RowsInserted += int(n)
	}
	return d, nil
}

// copyTable recreates t under its header-based name, with a foreign key to
// the root table unless t is the root, and copies its rows.
func copyTable(ctx context.Context, db *sql.DB, t converters.CatalogTable, mapping rewrite.ColumnMapping, verbose bool) (int64, error) {
	name := mapping.Identifier(t.Name)
	columns := make([]string, len(t.Columns))
	declared := make([]string, len(t.Columns))
	pks := 0
	for _, c := range t.Columns {
		if c.PrimaryKey > 0 {
			pks++
		}
	}
	for i, c := range t.Columns {
		columns[i] = mapping.Identifier(c.Name)
		declared[i] = c.Type
		if pks == 1 && c.PrimaryKey == 1 {
			declared[i] = strings.TrimSpace(c.Type + " PRIMARY KEY")
		}
	}
	var constraints []string
	if t.Name != rewrite.RootTable {
		constraints = append(constraints, foreignKey)
	}

	createSQL := common.GenCreateTableSQL(name, columns, declared, constraints...)
	if verbose {
		log.Printf("[SQUALL] %s", createSQL)
	}
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", converters.ErrTableSkipped, createSQL, err)
	}
	return converters.CopyRows(ctx, db, sourceAlias, t.Name, name)
}

func writeExamples(path string, entries []entry, databases map[string]*database, report *converters.Report) error {
	w, err := converters.CreateExampleWriter(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		d, ok := databases[e.Table]
		if !ok {
			report.ExamplesDropped++
			continue
		}
		err = w.Write(converters.UnifiedExample{
			DBID:     e.Table,
			Question: strings.Join(e.NL, " "),
			Query:    rewrite.Tokens(e.SQL, d.mapping, d.catalog),
			Target:   string(e.Target),
		})
		if err != nil {
			break
		}
	}
	report.ExamplesWritten += w.Count()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}
