// Package spider converts the datasets that already ship in the Spider
// layout: Spider itself, Spider-Syn, Spider-DK and KaggleDBQA. Their
// databases and tables.json are reused; only the example files change shape.
package spider

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/darianmavgo/unifysql/converters"
)

// SpiderFiles are the Spider example files, written under the same names.
var SpiderFiles = []string{"train_spider", "train_others", "dev"}

// SynFiles are the Spider-Syn example files.
var SynFiles = []string{"train_spider", "dev"}

func init() {
	converters.Register("spider", converters.AdapterFunc(ConvertSpider))
	converters.Register("spider_syn", converters.AdapterFunc(ConvertSyn))
	converters.Register("spider_dk", converters.AdapterFunc(ConvertDK))
	converters.Register("dbqa", converters.AdapterFunc(ConvertDBQA))
}

type record struct {
	DBID        string `json:"db_id"`
	Query       string `json:"query"`
	Question    string `json:"question"`
	SynQuestion string `json:"SpiderSynQuestion"`
}

func plainQuestion(r record) string   { return r.Question }
func synonymQuestion(r record) string { return r.SynQuestion }

// ConvertSpider writes one jsonl file per Spider example file and copies the
// databases along with the descriptors.
func ConvertSpider(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}
	for _, name := range SpiderFiles {
		err := convertFile(ctx, filepath.Join(env.OriginalDir, name+".json"),
			filepath.Join(env.OutDir, name+".jsonl"), plainQuestion, report)
		if err != nil {
			return report, err
		}
	}
	if err := copyTables(filepath.Join(env.OriginalDir, "tables.json"), env.OutDir); err != nil {
		return report, err
	}
	if err := converters.CopyDir(filepath.Join(env.OriginalDir, "database"), filepath.Join(env.OutDir, "database")); err != nil {
		return report, err
	}
	return report, nil
}

// ConvertSyn uses the synonym substituted questions of Spider-Syn. The
// databases are taken from the unified Spider output, which must exist.
func ConvertSyn(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}
	spiderOut := filepath.Join(filepath.Dir(env.OutDir), "spider")
	if err := converters.CopyDir(filepath.Join(spiderOut, "database"), filepath.Join(env.OutDir, "database")); err != nil {
		return report, fmt.Errorf("spider_syn needs the converted spider dataset: %w", err)
	}
	if err := copyTables(filepath.Join(spiderOut, "tables.json"), env.OutDir); err != nil {
		return report, err
	}
	for _, name := range SynFiles {
		err := convertFile(ctx, filepath.Join(env.OriginalDir, name+".json"),
			filepath.Join(env.OutDir, name+".jsonl"), synonymQuestion, report)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

// ConvertDK writes the Spider-DK test split. Its own databases are merged
// with the original Spider ones, which live next to the Spider-DK directory.
func ConvertDK(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}
	err := convertFile(ctx, filepath.Join(env.OriginalDir, "Spider-DK.json"),
		filepath.Join(env.OutDir, "test.jsonl"), plainQuestion, report)
	if err != nil {
		return report, err
	}
	if err := copyTables(filepath.Join(env.OriginalDir, "tables.json"), env.OutDir); err != nil {
		return report, err
	}
	dst := filepath.Join(env.OutDir, "database")
	if err := converters.CopyDir(filepath.Join(env.OriginalDir, "database"), dst); err != nil {
		return report, err
	}
	spiderDBs := filepath.Join(filepath.Dir(env.OriginalDir), "spider", "database")
	if err := converters.CopyDir(spiderDBs, dst); err != nil {
		return report, err
	}
	return report, nil
}

// ConvertDBQA merges every KaggleDBQA example file except the test and
// few-shot ones into a single dev split.
func ConvertDBQA(ctx context.Context, env *converters.Env) (*converters.Report, error) {
	report := &converters.Report{Dataset: env.Name}
	examplesDir := filepath.Join(env.OriginalDir, "examples")
	entries, err := os.ReadDir(examplesDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", converters.ErrMissingInput, examplesDir)
	}

	w, err := converters.CreateExampleWriter(filepath.Join(env.OutDir, "dev.jsonl"))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") ||
			strings.Contains(name, "_test") || strings.Contains(name, "_fewshot") {
			continue
		}
		if env.Verbose {
			log.Printf("[DBQA] reading %s", name)
		}
		if err = appendExamples(ctx, w, filepath.Join(examplesDir, name), plainQuestion); err != nil {
			break
		}
	}
	report.ExamplesWritten += w.Count()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return report, err
	}

	if err := copyTables(filepath.Join(env.OriginalDir, "KaggleDBQA_tables.json"), env.OutDir); err != nil {
		return report, err
	}
	if err := converters.CopyDir(filepath.Join(env.OriginalDir, "databases"), filepath.Join(env.OutDir, "database")); err != nil {
		return report, err
	}
	return report, nil
}

func convertFile(ctx context.Context, src, dst string, question func(record) string, report *converters.Report) error {
	w, err := converters.CreateExampleWriter(dst)
	if err != nil {
		return err
	}
	err = appendExamples(ctx, w, src, question)
	report.ExamplesWritten += w.Count()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

func appendExamples(ctx context.Context, w *converters.ExampleWriter, src string, question func(record) string) error {
	var records []record
	if err := converters.ReadJSON(src, &records); err != nil {
		return err
	}
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		ex := converters.UnifiedExample{DBID: r.DBID, Question: question(r), Query: r.Query}
		if err := w.Write(ex); err != nil {
			return err
		}
	}
	return nil
}

// copyTables rewrites a Spider tables.json into outDir keeping only the
// unified descriptor fields. Every entry must be well formed.
func copyTables(src, outDir string) error {
	schemas, err := converters.ReadTables(src)
	if err != nil {
		return err
	}
	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid descriptor in %s: %w", src, err)
		}
	}
	return converters.WriteTables(filepath.Join(outDir, "tables.json"), schemas)
}
