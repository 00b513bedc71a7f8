package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/darianmavgo/unifysql/config"
	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	seenMu sync.Mutex
	seen   = make(map[string]converters.Env)
)

func init() {
	converters.Register("zz_test_ok", converters.AdapterFunc(func(ctx context.Context, env *converters.Env) (*converters.Report, error) {
		seenMu.Lock()
		seen[env.Name] = *env
		seenMu.Unlock()
		return &converters.Report{Dataset: env.Name, ExamplesWritten: 3}, nil
	}))
	converters.Register("zz_test_fail", converters.AdapterFunc(func(ctx context.Context, env *converters.Env) (*converters.Report, error) {
		return &converters.Report{Dataset: env.Name, ExamplesDropped: 1}, errors.New("broken input")
	}))
}

func TestSelectDatasets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Datasets = []*config.DatasetConfig{{Name: "zz_test_fail", Skip: true}}

	names, err := selectDatasets(cfg, nil)
	require.NoError(t, err)
	assert.Contains(t, names, "spider")
	assert.Contains(t, names, "zz_test_ok")
	assert.NotContains(t, names, "zz_test_fail")

	names, err = selectDatasets(cfg, []string{"zz_test_fail"})
	require.NoError(t, err)
	assert.Equal(t, []string{"zz_test_fail"}, names)

	_, err = selectDatasets(cfg, []string{"nope"})
	assert.Error(t, err)
}

func TestRunnerRun(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.UnifiedDir = t.TempDir()
			cfg.BatchSize = 10
			m := metrics.New()
			r, err := newRunner(cfg, m)
			require.NoError(t, err)

			results := r.run(context.Background(), []string{"zz_test_ok", "zz_test_fail"}, parallel)
			require.Len(t, results, 2)
			assert.Equal(t, "zz_test_ok", results[0].Name)
			assert.NoError(t, results[0].Err)
			assert.Equal(t, 3, results[0].Report.ExamplesWritten)
			assert.EqualError(t, results[1].Err, "broken input")
			assert.EqualError(t, summarize(results), "1 of 2 datasets failed")

			assert.Equal(t, 3.0, testutil.ToFloat64(m.ExamplesWritten.WithLabelValues("zz_test_ok")))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ConversionFailures.WithLabelValues("zz_test_fail")))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ExamplesDropped.WithLabelValues("zz_test_fail")))

			seenMu.Lock()
			env := seen["zz_test_ok"]
			seenMu.Unlock()
			assert.Equal(t, filepath.Join(cfg.UnifiedDir, "zz_test_ok"), env.OutDir)
			assert.Equal(t, filepath.Join("original", "zz_test_ok"), env.OriginalDir)
			assert.Equal(t, 10, env.BatchSize)
			assert.Equal(t, time.Minute, env.QueryTimeout)
			assert.Equal(t, r.runID, env.RunID)
			assert.NotEmpty(t, env.RunID)
		})
	}
}

func TestRunnerCancelled(t *testing.T) {
	r, err := newRunner(config.DefaultConfig(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := r.run(ctx, []string{"zz_test_ok"}, false)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestSummarizeSuccess(t *testing.T) {
	assert.NoError(t, summarize([]result{{Name: "zz_test_ok", Report: &converters.Report{Dataset: "zz_test_ok"}}}))
}

func TestListDatasets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Datasets = []*config.DatasetConfig{{Name: "zz_test_fail", Skip: true}}
	var buf bytes.Buffer
	require.NoError(t, listDatasets(&buf, cfg))
	assert.Contains(t, buf.String(), filepath.Join("original", "Spider-DK"))
	assert.Contains(t, buf.String(), "(skip)")
}

func TestDumpSchema(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "concert.sqlite")
	db, err := converters.OpenStore(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, converters.ExecScript(ctx, db, "CREATE TABLE singer (id INTEGER PRIMARY KEY, name TEXT);"))
	require.NoError(t, db.Close())

	var buf bytes.Buffer
	require.NoError(t, dumpSchema(ctx, &buf, dbPath, "concert", ""))
	var schema converters.SchemaDescriptor
	require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))
	assert.Equal(t, "concert", schema.DBID)
	assert.Equal(t, []string{"singer"}, schema.TableNamesOriginal)

	out := filepath.Join(dir, "tables.json")
	require.NoError(t, dumpSchema(ctx, &buf, dbPath, "concert", out))
	schemas, err := converters.ReadTables(out)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
}

func TestRootCommand(t *testing.T) {
	t.Setenv("UNIFYSQL_UNIFIED_DIR", t.TempDir())
	ctx := context.Background()

	assert.NoError(t, rootCommand().Run(ctx, []string{"unifysql", "--verbose", "convert", "zz_test_ok"}))
	assert.Error(t, rootCommand().Run(ctx, []string{"unifysql", "--verbose", "convert", "zz_test_fail"}))

	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, rootCommand().Run(ctx, []string{"unifysql", "config", "export", path}))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.NotEqual(t, "unified", cfg.UnifiedDir)
}
