// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Collected counters and summaries live in a private registry which is
// pushed to a Pushgateway on Flush. Short-lived processes such as the CLI
// have no scrape endpoint, so pushing is the only delivery path.
package prompush

import (
	"fmt"

	"entitymap/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	describeCounter  *prometheus.CounterVec // entitymap_describe_total
	describeDuration *prometheus.SummaryVec // entitymap_describe_duration_seconds
	ensureCounter    *prometheus.CounterVec // entitymap_ensure_table_total
	ensureDuration   *prometheus.SummaryVec // entitymap_ensure_table_duration_seconds
	mappingCounter   *prometheus.CounterVec // entitymap_mapping_total
	rowCounter       *prometheus.CounterVec // entitymap_rows_total
}

var objectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name.
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "entitymap"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		describeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.DescribeTotal,
			Help: "Entity descriptor builds, partitioned by entity and status.",
		}, []string{"entity", "status"}),
		describeDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.DescribeDurationSeconds,
			Help:       "Duration of entity descriptor builds in seconds.",
			Objectives: objectives,
		}, []string{"status"}),
		ensureCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.EnsureTotal,
			Help: "Create-table attempts, partitioned by storage kind, table and status.",
		}, []string{"kind", "table", "status"}),
		ensureDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.EnsureDurationSeconds,
			Help:       "Duration of create-table statements in seconds.",
			Objectives: objectives,
		}, []string{"kind", "status"}),
		mappingCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.MappingTotal,
			Help: "Entity/row conversions, partitioned by table, direction and status.",
		}, []string{"table", "direction", "status"}),
		rowCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows touched in storage, partitioned by table and op.",
		}, []string{"table", "op"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"describe counter": b.describeCounter,
		"describe summary": b.describeDuration,
		"ensure counter":   b.ensureCounter,
		"ensure summary":   b.ensureDuration,
		"mapping counter":  b.mappingCounter,
		"row counter":      b.rowCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.DescribeTotal:
		if b.describeCounter == nil {
			return
		}
		b.describeCounter.WithLabelValues(labels["entity"], labels["status"]).Add(delta)

	case metrics.EnsureTotal:
		if b.ensureCounter == nil {
			return
		}
		b.ensureCounter.WithLabelValues(labels["kind"], labels["table"], labels["status"]).Add(delta)

	case metrics.MappingTotal:
		if b.mappingCounter == nil {
			return
		}
		b.mappingCounter.WithLabelValues(labels["table"], labels["direction"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["table"], labels["op"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.DescribeDurationSeconds:
		if b.describeDuration == nil {
			return
		}
		b.describeDuration.WithLabelValues(labels["status"]).Observe(value)

	case metrics.EnsureDurationSeconds:
		if b.ensureDuration == nil {
			return
		}
		b.ensureDuration.WithLabelValues(labels["kind"], labels["status"]).Observe(value)
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
