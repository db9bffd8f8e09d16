package schema

import (
	"reflect"
	"unsafe"
)

// Value returns the field reached from v, following embedded pointers.
// Unexported fields are reached through their address, as the field setters
// in this package have always done, so v must be addressable for those.
// The second result is false when an embedded pointer on the path is nil.
func (f *FieldInfo) Value(v reflect.Value) (reflect.Value, bool) {
	v, ok := deref(v)
	if !ok {
		return reflect.Value{}, false
	}
	for i, x := range f.Index {
		if i > 0 {
			if v, ok = deref(v); !ok {
				return reflect.Value{}, false
			}
		}
		v = v.Field(x)
	}

	if !v.CanInterface() {
		if !v.CanAddr() {
			return reflect.Value{}, false
		}
		v = reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
	}
	return v, true
}

// Set assigns x to the field reached from v. It reports false when the field
// cannot be reached or is not settable.
func (f *FieldInfo) Set(v reflect.Value, x reflect.Value) bool {
	target, ok := f.Value(v)
	if !ok || !target.CanSet() {
		return false
	}
	target.Set(x)
	return true
}

func deref(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}
