package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Memo is a bounded memoisation table for pure computations. Entries may be
// evicted at any time; callers must be able to recompute them.
type Memo[K comparable, V any] struct {
	cache *lru.Cache[K, V]
}

// NewMemo creates a memo holding up to size entries. A size of zero or less
// disables memoisation.
func NewMemo[K comparable, V any](size int) (*Memo[K, V], error) {
	if size <= 0 {
		return &Memo[K, V]{}, nil
	}
	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &Memo[K, V]{cache: c}, nil
}

func (m *Memo[K, V]) Get(key K) (V, bool) {
	if m.cache == nil {
		var zero V
		return zero, false
	}
	return m.cache.Get(key)
}

func (m *Memo[K, V]) Add(key K, v V) {
	if m.cache == nil {
		return
	}
	m.cache.Add(key, v)
}

func (m *Memo[K, V]) Len() int {
	if m.cache == nil {
		return 0
	}
	return m.cache.Len()
}

