package runner

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/polisai/huntgen/pkg/engine/runtime"
)

// Metrics holds the Prometheus counters of one scenario run. They are
// written to metrics.prom next to the dataset.
type Metrics struct {
	stagesTotal   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageRows     *prometheus.CounterVec
	tableRows     *prometheus.GaugeVec
	qaRecords     prometheus.Gauge
	qaDuplicates  prometheus.Gauge
	victims       prometheus.Gauge
	runDuration   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the metrics for one scenario on a private registry.
func NewMetrics(scenario string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"scenario": scenario}

	m := &Metrics{
		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "huntgen_stages_total",
				Help:        "Attack stages by variant and outcome",
				ConstLabels: labels,
			},
			[]string{"stage", "variant", "outcome"},
		),

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "huntgen_stage_duration_seconds",
				Help:        "Wall time spent in each stage generator",
				Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
				ConstLabels: labels,
			},
			[]string{"stage"},
		),

		stageRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "huntgen_stage_rows_total",
				Help:        "Rows emitted by each completed stage",
				ConstLabels: labels,
			},
			[]string{"stage"},
		),

		tableRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "huntgen_table_rows",
				Help:        "Rows in each combined table",
				ConstLabels: labels,
			},
			[]string{"table"},
		),

		qaRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "huntgen_qa_records",
			Help:        "Unique QA records written",
			ConstLabels: labels,
		}),

		qaDuplicates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "huntgen_qa_duplicates",
			Help:        "QA records dropped as duplicates",
			ConstLabels: labels,
		}),

		victims: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "huntgen_final_victims",
			Help:        "Victims in the cohort after the last stage",
			ConstLabels: labels,
		}),

		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "huntgen_run_duration_seconds",
			Help:        "Wall time of the whole scenario",
			ConstLabels: labels,
		}),

		registry: registry,
	}

	registry.MustRegister(
		m.stagesTotal,
		m.stageDuration,
		m.stageRows,
		m.tableRows,
		m.qaRecords,
		m.qaDuplicates,
		m.victims,
		m.runDuration,
	)
	return m
}

// ObserveStage records one stage result.
func (m *Metrics) ObserveStage(res runtime.StageResult) {
	m.stagesTotal.WithLabelValues(string(res.Stage), string(res.Variant), string(res.Outcome)).Inc()
	if res.Outcome == runtime.OutcomeSkipped {
		return
	}
	m.stageDuration.WithLabelValues(string(res.Stage)).Observe(res.Duration.Seconds())
	m.stageRows.WithLabelValues(string(res.Stage)).Add(float64(res.Rows()))
}

// ObserveTables records the row count of every combined table.
func (m *Metrics) ObserveTables(rows map[string]int) {
	for name, n := range rows {
		m.tableRows.WithLabelValues(name).Set(float64(n))
	}
}

// ObserveQA records the aggregator totals.
func (m *Metrics) ObserveQA(records, duplicates int) {
	m.qaRecords.Set(float64(records))
	m.qaDuplicates.Set(float64(duplicates))
}

// ObserveRun records the final cohort size and the scenario wall time.
func (m *Metrics) ObserveRun(victims int, seconds float64) {
	m.victims.Set(float64(victims))
	m.runDuration.Set(seconds)
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteToTextfile writes the metrics in the Prometheus text format.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
