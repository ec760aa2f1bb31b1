// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the mapping engine.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete metric systems live in subpackages (prompush, datadog) so the
//     registry, mapper and storage layers depend only on this package.
package metrics

import "time"

// Metric names emitted by the engine.
const (
	DescribeTotal           = "entitymap_describe_total"
	DescribeDurationSeconds = "entitymap_describe_duration_seconds"
	EnsureTotal             = "entitymap_ensure_table_total"
	EnsureDurationSeconds   = "entitymap_ensure_table_duration_seconds"
	MappingTotal            = "entitymap_mapping_total"
	RowsTotal               = "entitymap_rows_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
// It is meant to be called once during start-up.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordDescribe counts one descriptor build for entity and its latency.
// Cache hits are not recorded; only real builds are.
func RecordDescribe(entity string, err error, d time.Duration) {
	lbls := Labels{
		"entity": entity,
		"status": status(err),
	}
	backend.IncCounter(DescribeTotal, 1, lbls)
	backend.ObserveHistogram(DescribeDurationSeconds, d.Seconds(), lbls)
}

// RecordEnsure counts one create-table attempt against a storage kind.
func RecordEnsure(kind, table string, err error, d time.Duration) {
	lbls := Labels{
		"kind":   kind,
		"table":  table,
		"status": status(err),
	}
	backend.IncCounter(EnsureTotal, 1, lbls)
	backend.ObserveHistogram(EnsureDurationSeconds, d.Seconds(), lbls)
}

// RecordMapping counts one entity/row conversion. Direction is "to_row" or
// "from_row".
func RecordMapping(table, direction string, err error) {
	backend.IncCounter(MappingTotal, 1, Labels{
		"table":     table,
		"direction": direction,
		"status":    status(err),
	})
}

// RecordRows increments a row-level counter for the given table and op
// (e.g. "inserted", "updated", "selected", "deleted").
func RecordRows(table, op string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"table": table,
		"op":    op,
	})
}
