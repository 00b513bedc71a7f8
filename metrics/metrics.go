// Package metrics records conversion counters on a private Prometheus
// registry. A batch run writes them once at the end in the node exporter
// textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/darianmavgo/unifysql/converters"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the conversion collectors, all labelled by dataset.
type Metrics struct {
	registry *prometheus.Registry

	TablesSynthesized  *prometheus.CounterVec
	TablesSkipped      *prometheus.CounterVec
	RowsInserted       *prometheus.CounterVec
	RowsDropped        *prometheus.CounterVec
	ExamplesWritten    *prometheus.CounterVec
	ExamplesDropped    *prometheus.CounterVec
	ConversionFailures *prometheus.CounterVec
	ConversionDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	counter := func(name, help string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Name: "unifysql_" + name,
			Help: help,
		}, []string{"dataset"})
	}
	return &Metrics{
		registry:           reg,
		TablesSynthesized:  counter("tables_synthesized_total", "Tables created in the unified stores"),
		TablesSkipped:      counter("tables_skipped_total", "Tables that could not be created"),
		RowsInserted:       counter("rows_inserted_total", "Rows inserted into synthesized tables"),
		RowsDropped:        counter("rows_dropped_total", "Rows rejected during insertion"),
		ExamplesWritten:    counter("examples_written_total", "Unified examples written"),
		ExamplesDropped:    counter("examples_dropped_total", "Examples dropped during conversion"),
		ConversionFailures: counter("conversion_failures_total", "Dataset conversions that returned an error"),
		ConversionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "unifysql_conversion_duration_seconds",
			Help:    "Wall time of one dataset conversion",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}, []string{"dataset"}),
	}
}

// Observe adds one finished conversion. report may be nil when the adapter
// failed before producing anything.
func (m *Metrics) Observe(dataset string, report *converters.Report, elapsed time.Duration, err error) {
	m.ConversionDuration.WithLabelValues(dataset).Observe(elapsed.Seconds())
	if err != nil {
		m.ConversionFailures.WithLabelValues(dataset).Inc()
	}
	if report == nil {
		return
	}
	m.TablesSynthesized.WithLabelValues(dataset).Add(float64(report.TablesSynthesized))
	m.TablesSkipped.WithLabelValues(dataset).Add(float64(report.TablesSkipped))
	m.RowsInserted.WithLabelValues(dataset).Add(float64(report.RowsInserted))
	m.RowsDropped.WithLabelValues(dataset).Add(float64(report.RowsDropped))
	m.ExamplesWritten.WithLabelValues(dataset).Add(float64(report.ExamplesWritten))
	m.ExamplesDropped.WithLabelValues(dataset).Add(float64(report.ExamplesDropped))
}

// Gatherer exposes the private registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteFile writes every collector to path in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
