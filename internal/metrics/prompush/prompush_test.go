package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"entitymap/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	if m.GetSummary() == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	sum := m.GetSummary()
	return sum.GetSampleCount(), sum.GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{name: "missing gateway URL returns error", jobName: "job", wantErr: true},
		{name: "empty job name uses default", gatewayURL: "http://pushgateway:9091", wantJobName: "entitymap"},
		{name: "explicit job name is preserved", jobName: "orm-cli", gatewayURL: "http://pushgateway:9091", wantJobName: "orm-cli"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewBackend(%q, %q) error = nil, want non-nil", tt.jobName, tt.gatewayURL)
				}
				if b != nil {
					t.Fatalf("NewBackend(%q, %q) backend = %v, want nil", tt.jobName, tt.gatewayURL, b)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend(%q, %q) error = %v", tt.jobName, tt.gatewayURL, err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("backend.jobName = %q, want %q", b.jobName, tt.wantJobName)
			}
			if b.describeCounter == nil || b.describeDuration == nil || b.ensureCounter == nil ||
				b.ensureDuration == nil || b.mappingCounter == nil || b.rowCounter == nil {
				t.Fatalf("collectors not initialized: %+v", b)
			}
		})
	}
}

func TestIncCounter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		metric string
		delta  float64
		labels metrics.Labels
		read   func(b *Backend) prometheus.Counter
		want   float64
	}{
		{
			name:   "describe counter",
			metric: metrics.DescribeTotal,
			delta:  1,
			labels: metrics.Labels{"entity": "app.User", "status": "success"},
			read:   func(b *Backend) prometheus.Counter { return b.describeCounter.WithLabelValues("app.User", "success") },
			want:   1,
		},
		{
			name:   "ensure counter",
			metric: metrics.EnsureTotal,
			delta:  2,
			labels: metrics.Labels{"kind": "sqlite", "table": "users", "status": "failure"},
			read: func(b *Backend) prometheus.Counter {
				return b.ensureCounter.WithLabelValues("sqlite", "users", "failure")
			},
			want: 2,
		},
		{
			name:   "mapping counter",
			metric: metrics.MappingTotal,
			delta:  1,
			labels: metrics.Labels{"table": "users", "direction": "to_row", "status": "success"},
			read: func(b *Backend) prometheus.Counter {
				return b.mappingCounter.WithLabelValues("users", "to_row", "success")
			},
			want: 1,
		},
		{
			name:   "row counter",
			metric: metrics.RowsTotal,
			delta:  5,
			labels: metrics.Labels{"table": "users", "op": "inserted"},
			read:   func(b *Backend) prometheus.Counter { return b.rowCounter.WithLabelValues("users", "inserted") },
			want:   5,
		},
		{
			name:   "unknown metric name is ignored",
			metric: "unknown_metric",
			delta:  10,
			labels: metrics.Labels{"table": "users", "op": "inserted"},
			read:   func(b *Backend) prometheus.Counter { return b.rowCounter.WithLabelValues("users", "inserted") },
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend("entitymap", "http://example.com")
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			b.IncCounter(tt.metric, tt.delta, tt.labels)

			if got := readCounterValue(t, tt.read(b)); got != tt.want {
				t.Fatalf("counter value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIncCounterNilMetrics(t *testing.T) {
	t.Parallel()

	b := &Backend{}

	b.IncCounter(metrics.DescribeTotal, 1, metrics.Labels{})
	b.IncCounter(metrics.EnsureTotal, 1, metrics.Labels{})
	b.IncCounter(metrics.MappingTotal, 1, metrics.Labels{})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{})
	b.ObserveHistogram(metrics.DescribeDurationSeconds, 1, metrics.Labels{})
	b.ObserveHistogram(metrics.EnsureDurationSeconds, 1, metrics.Labels{})
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("entitymap", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.ObserveHistogram(metrics.DescribeDurationSeconds, 0.25, metrics.Labels{"entity": "app.User", "status": "success"})
	b.ObserveHistogram(metrics.EnsureDurationSeconds, 1.5, metrics.Labels{"kind": "postgres", "status": "success"})
	b.ObserveHistogram("other_metric", 9, metrics.Labels{"status": "success"})

	if n, sum := readSummaryCountSum(t, b.describeDuration, "success"); n != 1 || sum != 0.25 {
		t.Fatalf("describe summary = (%d, %v), want (1, 0.25)", n, sum)
	}
	if n, sum := readSummaryCountSum(t, b.ensureDuration, "postgres", "success"); n != 1 || sum != 1.5 {
		t.Fatalf("ensure summary = (%d, %v), want (1, 1.5)", n, sum)
	}
}

func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequestInfo struct {
		method  string
		path    string
		bodyLen int
	}

	reqCh := make(chan pushRequestInfo, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushRequestInfo{method: r.Method, path: r.URL.Path, bodyLen: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("entitymap-cli", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"table": "users", "op": "inserted"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushRequestInfo
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not result in any HTTP request to the Pushgateway")
	}
	if got.method == "" || got.path == "" {
		t.Fatalf("push request = %+v, want method and path", got)
	}
	if got.bodyLen == 0 {
		t.Fatalf("Push request body length = 0, want > 0")
	}
}

func BenchmarkIncCounterRows(b *testing.B) {
	backend, err := NewBackend("entitymap", "http://example.com")
	if err != nil {
		b.Fatalf("NewBackend() error = %v", err)
	}
	labels := metrics.Labels{"table": "users", "op": "inserted"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.RowsTotal, 1, labels)
	}
}
