// Package metrics records one generation run's outcome as Prometheus
// gauges and renders them to a node_exporter textfile-collector path
// (spec §3 domain stack). Grounded on the teacher's metrics.go
// Register/collector shape, adapted from per-process counters tracked
// across a long-lived daemon to per-run gauges tracked across a single
// one-shot invocation — nothing would scrape a generator's /metrics
// endpoint in time, so this renders text instead of serving it live.
package metrics

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Run holds the gauge set for a single generation pass. A fresh Run (and
// registry) is created per invocation, unlike the teacher's package-level
// singleton collectors, since this process never sees a second run.
type Run struct {
	registry *prometheus.Registry

	tablesProcessed prometheus.Gauge
	jobsTruncated   prometheus.Gauge
	jobsSkipped     prometheus.Gauge
	jobsMasked      prometheus.Gauge
	unitsWritten    prometheus.Gauge
	lastRunSeconds  prometheus.Gauge
}

// NewRun builds and registers the gauge set.
func NewRun() *Run {
	r := &Run{registry: prometheus.NewRegistry()}

	mk := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "systemd_cron_generator",
			Name:      name,
			Help:      help,
		})
	}
	r.tablesProcessed = mk("tables_processed", "Number of crontab-syntax tables parsed in the last run.")
	r.jobsTruncated = mk("jobs_truncated", "Number of job lines dropped for having too few fields.")
	r.jobsSkipped = mk("jobs_skipped", "Number of jobs dropped by normalisation or schedule compilation.")
	r.jobsMasked = mk("jobs_masked", "Number of /etc/cron.d or legacy entries skipped because a native timer already covers them.")
	r.unitsWritten = mk("units_written", "Number of .timer/.service unit pairs written in the last run.")
	r.lastRunSeconds = mk("last_run_timestamp_seconds", "Unix timestamp of the last completed run.")

	r.registry.MustRegister(r.tablesProcessed, r.jobsTruncated, r.jobsSkipped, r.jobsMasked, r.unitsWritten, r.lastRunSeconds)
	return r
}

// Summary is the subset of generator.Summary this package depends on,
// expressed locally so internal/metrics doesn't import internal/generator
// (the dependency runs the other way: cmd/systemd-cron-generator wires
// both together).
type Summary struct {
	TablesProcessed int
	JobsTruncated   int
	JobsSkipped     int
	JobsMasked      int
	UnitsWritten    int
}

// Observe loads a completed run's summary into the gauge set and stamps
// the run timestamp. unixNow is passed in rather than read from time.Now
// so the caller controls it (and so this package stays trivially
// testable without wall-clock flakiness).
func (r *Run) Observe(s Summary, unixNow int64) {
	r.tablesProcessed.Set(float64(s.TablesProcessed))
	r.jobsTruncated.Set(float64(s.JobsTruncated))
	r.jobsSkipped.Set(float64(s.JobsSkipped))
	r.jobsMasked.Set(float64(s.JobsMasked))
	r.unitsWritten.Set(float64(s.UnitsWritten))
	r.lastRunSeconds.Set(float64(unixNow))
}

// WriteTextfile renders the registry in the Prometheus text exposition
// format to path, following the node_exporter textfile-collector
// convention (atomic rename via a .tmp sibling so the collector never
// reads a partial file).
func (r *Run) WriteTextfile(path string) error {
	mfs, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("encode metric family %s: %w", mf.GetName(), err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
