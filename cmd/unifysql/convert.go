package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/darianmavgo/unifysql/config"
	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/metrics"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// readsConvertedOutput lists datasets built from another dataset's unified
// output. With --parallel they run after everything else.
var readsConvertedOutput = []string{"spider_syn"}

type result struct {
	Name    string
	Report  *converters.Report
	Err     error
	Elapsed time.Duration
}

// runner converts datasets with one shared configuration and run id.
type runner struct {
	cfg     *config.Config
	runID   string
	timeout time.Duration
	metrics *metrics.Metrics
	onStart func(name string)
}

func newRunner(cfg *config.Config, m *metrics.Metrics) (*runner, error) {
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	return &runner{cfg: cfg, runID: uuid.NewString(), timeout: timeout, metrics: m}, nil
}

func (r *runner) env(name string) *converters.Env {
	d := r.cfg.Dataset(name)
	return &converters.Env{
		Name:         name,
		RunID:        r.runID,
		OriginalDir:  d.OriginalDir,
		OutDir:       d.OutDir,
		BatchSize:    r.cfg.BatchSize,
		QueryTimeout: r.timeout,
		LogErrors:    r.cfg.LogErrors,
		Verbose:      r.cfg.Verbose,
	}
}

func (r *runner) convert(ctx context.Context, name string) result {
	if r.onStart != nil {
		r.onStart(name)
	}
	start := time.Now()
	var report *converters.Report
	adapter, err := converters.Lookup(name)
	if err == nil {
		report, err = adapter.Convert(ctx, r.env(name))
	}
	res := result{Name: name, Report: report, Err: err, Elapsed: time.Since(start)}
	if r.metrics != nil {
		r.metrics.Observe(name, report, res.Elapsed, err)
	}
	return res
}

// run converts names in order, or concurrently when parallel is set. A
// failed dataset never stops the others.
func (r *runner) run(ctx context.Context, names []string, parallel bool) []result {
	results := make([]result, len(names))
	if !parallel {
		for i, name := range names {
			if err := ctx.Err(); err != nil {
				results[i] = result{Name: name, Err: err}
				continue
			}
			results[i] = r.convert(ctx, name)
		}
		return results
	}

	var later []int
	var wg sync.WaitGroup
	for i, name := range names {
		if slices.Contains(readsConvertedOutput, name) {
			later = append(later, i)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.convert(ctx, name)
		}()
	}
	wg.Wait()
	for _, i := range later {
		results[i] = r.convert(ctx, names[i])
	}
	return results
}

// selectDatasets returns the named datasets, or every registered one not
// marked skip when no name is given.
func selectDatasets(cfg *config.Config, args []string) ([]string, error) {
	if len(args) > 0 {
		for _, name := range args {
			if _, err := converters.Lookup(name); err != nil {
				return nil, err
			}
		}
		return args, nil
	}
	var names []string
	for _, name := range converters.Adapters() {
		if cfg.Dataset(name).Skip {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// summarize logs every result and returns an error if any dataset failed.
func summarize(results []result) error {
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			log.Printf("[UNIFYSQL] %s failed after %s: %v", res.Name, res.Elapsed.Round(time.Millisecond), res.Err)
			continue
		}
		log.Printf("[UNIFYSQL] %s (%s)", res.Report, res.Elapsed.Round(time.Millisecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d datasets failed", failed, len(results))
	}
	return nil
}

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert datasets into the unified format",
		ArgsUsage: " [dataset...]",
		Description: `Convert the named datasets, or every registered dataset not marked skip in the
configuration. A failing dataset is logged and the next one runs; the command exits
non-zero if any dataset failed.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "parallel",
				Usage: "convert datasets concurrently",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			names, err := selectDatasets(cfg, cmd.Args().Slice())
			if err != nil {
				return err
			}
			m := metrics.New()
			r, err := newRunner(cfg, m)
			if err != nil {
				return err
			}
			log.Printf("[UNIFYSQL] run %s: converting %d datasets", r.runID, len(names))

			stopSpinner := func() {}
			if !cfg.Verbose {
				s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
				r.onStart = func(name string) {
					s.Lock()
					s.Suffix = " converting " + name
					s.Unlock()
				}
				s.Start()
				stopSpinner = s.Stop
			}

			results := r.run(ctx, names, cmd.Bool("parallel"))
			stopSpinner()
			if cfg.MetricsFile != "" {
				if err := m.WriteFile(cfg.MetricsFile); err != nil {
					log.Printf("[UNIFYSQL] %v", err)
				}
			}
			return summarize(results)
		},
	}
}
