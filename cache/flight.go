package cache

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Key identifies a Flight entry. FlightKey must be unique per distinct key
// value since it names the singleflight group slot for concurrent builders.
type Key interface {
	comparable
	FlightKey() string
}

// Hooks observe cache traffic. Nil hooks are skipped.
type Hooks struct {
	OnHit  func()
	OnMiss func()
}

// Flight is a process-lifetime store whose values are built at most once per
// key under concurrent first use. Values are never evicted or replaced, and
// failed builds are never stored.
type Flight[K Key, V any] struct {
	entries sync.Map // map[K]V
	pending sync.Map // map[K]struct{}
	group   singleflight.Group
	size    atomic.Int64
	hooks   Hooks
}

func NewFlight[K Key, V any](hooks Hooks) *Flight[K, V] {
	return &Flight[K, V]{hooks: hooks}
}

// Load returns the published value for key, if any.
func (f *Flight[K, V]) Load(key K) (V, bool) {
	if v, ok := f.entries.Load(key); ok {
		return v.(V), true
	}
	var zero V
	return zero, false
}

// Publish stores v for key unless another value was published first, and
// returns the value that all readers will observe.
func (f *Flight[K, V]) Publish(key K, v V) V {
	actual, loaded := f.entries.LoadOrStore(key, v)
	if !loaded {
		f.size.Add(1)
	}
	return actual.(V)
}

// GetOrCreate returns the value for key, running build if no value has been
// published yet. Concurrent callers for the same key share one build.
func (f *Flight[K, V]) GetOrCreate(key K, build func() (V, error)) (V, error) {
	if v, ok := f.Load(key); ok {
		if f.hooks.OnHit != nil {
			f.hooks.OnHit()
		}
		return v, nil
	}

	res, err, _ := f.group.Do(key.FlightKey(), func() (any, error) {
		// A racing flight may have published between Load and Do.
		if v, ok := f.Load(key); ok {
			return v, nil
		}
		if f.hooks.OnMiss != nil {
			f.hooks.OnMiss()
		}

		f.pending.Store(key, struct{}{})
		defer f.pending.Delete(key)

		v, err := build()
		if err != nil {
			return nil, err
		}
		return f.Publish(key, v), nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Pending reports whether a build for key is in progress.
func (f *Flight[K, V]) Pending(key K) bool {
	_, ok := f.pending.Load(key)
	return ok
}

// Len returns the number of published entries.
func (f *Flight[K, V]) Len() int {
	return int(f.size.Load())
}
