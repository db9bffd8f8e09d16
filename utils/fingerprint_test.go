package utils

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type first struct{ A int }
type second struct{ A int }

func TestTypeID(t *testing.T) {
	a := TypeID(reflect.TypeOf(first{}))
	b := TypeID(reflect.TypeOf(second{}))
	p := TypeID(reflect.TypeOf(&first{}))

	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, p)
	assert.Equal(t, a, TypeID(reflect.TypeOf(first{})))
	assert.Zero(t, TypeID(nil))
}

func TestTypeIDConcurrentFirstUse(t *testing.T) {
	type fresh struct{ X, Y string }
	typ := reflect.TypeOf(fresh{})

	const workers = 32
	ids := make([]uint64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = TypeID(typ)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}

func TestTypeListKey(t *testing.T) {
	s := reflect.TypeOf("")
	i := reflect.TypeOf(0)

	assert.Equal(t, "", TypeListKey(nil))
	assert.Equal(t, TypeListKey([]reflect.Type{s, i}), TypeListKey([]reflect.Type{s, i}))
	assert.NotEqual(t, TypeListKey([]reflect.Type{s, i}), TypeListKey([]reflect.Type{i, s}))
	assert.NotEqual(t, TypeListKey([]reflect.Type{s}), TypeListKey([]reflect.Type{s, nil}))
	assert.Len(t, TypeListKey([]reflect.Type{s, i, nil}), 24)
}

func TestFingerprintTypes(t *testing.T) {
	s := reflect.TypeOf("")
	i := reflect.TypeOf(0)

	assert.Equal(t, FingerprintTypes(s, i), FingerprintTypes(s, i))
	assert.NotEqual(t, FingerprintTypes(s, i), FingerprintTypes(i, s))
	assert.Contains(t, FingerprintTypes(s, nil), ":0")
}

func TestMix64(t *testing.T) {
	assert.Equal(t, Mix64(1, 2), Mix64(1, 2))
	assert.NotEqual(t, Mix64(1, 2), Mix64(2, 1))
	assert.Equal(t, Shard(0xFFFFFFFF00000000), uint32(0xFFFFFFFF))
}
