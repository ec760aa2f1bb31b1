package datadog

import (
	"errors"
	"reflect"
	"testing"

	"entitymap/internal/metrics"
)

type fakeClient struct {
	counts   []string
	hists    []string
	tags     [][]string
	closed   int
	closeErr error
}

func (f *fakeClient) Count(name string, value int64, tags []string, rate float64) error {
	f.counts = append(f.counts, name)
	f.tags = append(f.tags, tags)
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, rate float64) error {
	f.hists = append(f.hists, name)
	f.tags = append(f.tags, tags)
	return nil
}

func (f *fakeClient) Close() error {
	f.closed++
	return f.closeErr
}

func TestNewBackendBuildsClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"default address", Config{}},
		{"namespace and tags", Config{Addr: "127.0.0.1:8125", Namespace: "orm.", GlobalTags: []string{"env:test"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.cfg)
			if err != nil {
				t.Fatalf("NewBackend(%+v) error = %v", tt.cfg, err)
			}
			// UDP sends need no listener.
			b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"table": "users"})
			b.ObserveHistogram(metrics.EnsureDurationSeconds, 0.01, nil)
			if err := b.Flush(); err != nil {
				t.Fatalf("Flush() = %v", err)
			}
		})
	}
}

func TestBackendForwardsToClient(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	b := &Backend{client: fc}

	b.IncCounter(metrics.RowsTotal, 3, metrics.Labels{"table": "users", "op": "inserted"})
	b.ObserveHistogram(metrics.EnsureDurationSeconds, 0.5, metrics.Labels{"kind": "sqlite"})

	if !reflect.DeepEqual(fc.counts, []string{metrics.RowsTotal}) {
		t.Fatalf("counts = %v", fc.counts)
	}
	if !reflect.DeepEqual(fc.hists, []string{metrics.EnsureDurationSeconds}) {
		t.Fatalf("hists = %v", fc.hists)
	}
	if want := []string{"op:inserted", "table:users"}; !reflect.DeepEqual(fc.tags[0], want) {
		t.Fatalf("tags = %v, want %v", fc.tags[0], want)
	}
}

func TestFlushClosesClient(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{closeErr: errors.New("closed twice")}
	b := &Backend{client: fc}

	if err := b.Flush(); err == nil {
		t.Fatal("Flush() error = nil, want client error")
	}
	if fc.closed != 1 {
		t.Fatalf("closed = %d, want 1", fc.closed)
	}

	var zero Backend
	zero.IncCounter("x", 1, nil)
	if err := zero.Flush(); err != nil {
		t.Fatalf("zero Backend Flush() = %v", err)
	}
}

func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	if got := labelsToTags(nil); got != nil {
		t.Fatalf("labelsToTags(nil) = %v, want nil", got)
	}
	got := labelsToTags(metrics.Labels{"status": "success", "entity": "app.User"})
	if want := []string{"entity:app.User", "status:success"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("labelsToTags = %v, want %v", got, want)
	}
}
