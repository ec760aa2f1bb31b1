package meta

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	emerrors "entitymap/errors"
	"entitymap/internal/metrics"
)

// Registry resolves and caches entity descriptors. A descriptor for a given
// type is built at most once per Registry, even under concurrent first use;
// every caller then shares the same *EntityDescriptor. Failed builds are not
// cached, so a later call retries and reports the same error.
//
// Table names are unique within a Registry: a type whose table is already
// owned by another type fails with a ConfigurationError.
//
// The zero value is ready to use.
type Registry struct {
	mu      sync.RWMutex
	cache   map[reflect.Type]*EntityDescriptor
	tables  map[string]reflect.Type
	flights singleflight.Group
	builds  atomic.Int64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Describe resolves the descriptor of t on the default registry.
func Describe(t reflect.Type) (*EntityDescriptor, error) {
	return defaultRegistry.Describe(t)
}

// DescribeOf resolves the descriptor of T on the default registry.
func DescribeOf[T any]() (*EntityDescriptor, error) {
	return defaultRegistry.Describe(reflect.TypeFor[T]())
}

var errNilType = emerrors.NewConfigurationError("<nil>", "", "entity type is nil")

type flight struct {
	typ  reflect.Type
	desc *EntityDescriptor
	err  error
}

// Describe returns the descriptor of t. Pointer types resolve to their
// element type.
func (r *Registry) Describe(t reflect.Type) (*EntityDescriptor, error) {
	if t == nil {
		return nil, errNilType
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if d, ok := r.lookup(t); ok {
		return d, nil
	}

	// Distinct types can share a printed name (types local to functions), so
	// a follower checks the flight was for its own type and retries if not.
	key := t.PkgPath() + "." + t.String()
	for {
		v, _, _ := r.flights.Do(key, func() (any, error) {
			if d, ok := r.lookup(t); ok {
				return flight{typ: t, desc: d}, nil
			}
			start := time.Now()
			d, err := build(t)
			if err == nil {
				err = r.store(t, d)
			}
			r.builds.Add(1)
			metrics.RecordDescribe(t.String(), err, time.Since(start))
			if err != nil {
				return flight{typ: t, err: err}, nil
			}
			return flight{typ: t, desc: d}, nil
		})
		f := v.(flight)
		if f.typ == t {
			return f.desc, f.err
		}
		if d, ok := r.lookup(t); ok {
			return d, nil
		}
	}
}

// Len reports how many descriptors are cached.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Builds reports how many descriptor builds have run, failed ones included.
func (r *Registry) Builds() int64 { return r.builds.Load() }

func (r *Registry) lookup(t reflect.Type) (*EntityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.cache[t]
	return d, ok
}

// store publishes d unless its table is already owned by another type.
func (r *Registry) store(t reflect.Type, d *EntityDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.tables[d.Table()]; ok && owner != t {
		return emerrors.NewConfigurationError(t.String(), "",
			fmt.Sprintf("table %q is already mapped by %s", d.Table(), owner))
	}
	if r.cache == nil {
		r.cache = make(map[reflect.Type]*EntityDescriptor)
		r.tables = make(map[string]reflect.Type)
	}
	r.cache[t] = d
	r.tables[d.Table()] = t
	return nil
}
