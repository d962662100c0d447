// Package metrics records batch counters and run durations in a Prometheus
// registry that can be written out as a node-exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/banshee-data/cavesweep/internal/version"
)

const namespace = "cavesweep"

// Batch holds the metrics of one process. Each Batch owns its registry so
// tests and repeated batches do not collide.
type Batch struct {
	registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	Matches       prometheus.Counter
	PairsCompared prometheus.Counter
	RowsWritten   *prometheus.CounterVec
	LastBatchTime prometheus.Gauge
}

// NewBatch creates and registers the batch metrics.
func NewBatch() *Batch {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	b := &Batch{
		registry: reg,
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Solver runs by status (ok, failed, skipped).",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one solver run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Matches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Stage and measured-row pairs within tolerance.",
		}),
		PairsCompared: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_compared_total",
			Help:      "Stage and measured-row pairs compared.",
		}),
		RowsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows appended to output tables.",
		}, []string{"table"}),
		LastBatchTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_completed_timestamp_seconds",
			Help:      "Unix time the last batch completed.",
		}),
	}

	f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build metadata.",
	}, []string{"version", "git_sha"}).WithLabelValues(version.Version, version.GitSHA).Set(1)

	return b
}

// Registry returns the registry holding the batch metrics.
func (b *Batch) Registry() *prometheus.Registry { return b.registry }

// RunFinished records a completed solver run.
func (b *Batch) RunFinished(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	b.Runs.WithLabelValues(status).Inc()
	b.RunDuration.Observe(d.Seconds())
}

// RunSkipped records a configuration reused from an earlier batch.
func (b *Batch) RunSkipped() {
	b.Runs.WithLabelValues("skipped").Inc()
}

// Compared records the result of one comparison pass.
func (b *Batch) Compared(pairs, matches int) {
	b.PairsCompared.Add(float64(pairs))
	b.Matches.Add(float64(matches))
}

// Wrote records rows appended to a table.
func (b *Batch) Wrote(table string, rows int) {
	b.RowsWritten.WithLabelValues(table).Add(float64(rows))
}

// Completed marks the end of a batch.
func (b *Batch) Completed(t time.Time) {
	b.LastBatchTime.Set(float64(t.Unix()))
}

// WriteTextfile writes the registry in the Prometheus text format. The file
// is written atomically.
func (b *Batch) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, b.registry)
}
