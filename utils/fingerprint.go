package utils

import (
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	typeIDs    sync.Map // map[reflect.Type]uint64
	nextTypeID atomic.Uint64
)

func U64ToBytes(u uint64) []byte {
	return []byte{
		byte(u >> 56), byte(u >> 48), byte(u >> 40), byte(u >> 32),
		byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u),
	}
}

// TypeID returns a process-unique identifier for t. The same type always maps
// to the same identifier; nil maps to 0.
//
// Type strings are not unique (two packages may both declare "model.User"), so
// cache keys are built from these identifiers instead.
func TypeID(t reflect.Type) uint64 {
	if t == nil {
		return 0
	}
	if id, ok := typeIDs.Load(t); ok {
		return id.(uint64)
	}
	id, _ := typeIDs.LoadOrStore(t, nextTypeID.Add(1))
	return id.(uint64)
}

// TypeListKey encodes an ordered list of types into a comparable string.
// Two lists produce the same key only if they hold the same types in the
// same order.
func TypeListKey(types []reflect.Type) string {
	if len(types) == 0 {
		return ""
	}
	buf := make([]byte, 0, len(types)*8)
	for _, t := range types {
		buf = append(buf, U64ToBytes(TypeID(t))...)
	}
	return string(buf)
}

// FingerprintTypes returns a short printable key for a set of types,
// suitable for singleflight group keys.
func FingerprintTypes(types ...reflect.Type) string {
	var b strings.Builder
	for i, t := range types {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strconv.FormatUint(TypeID(t), 36))
	}
	return b.String()
}
