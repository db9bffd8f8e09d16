package duck

import (
	"reflect"

	"github.com/Konsultn-Engineering/ducktype/schema"
)

// instancer is implemented by every adapter.
type instancer interface {
	Instance() any
}

// coerce returns v as a value of exactly type target. Adapters are unwrapped
// to their instance unless target is the adapter type itself.
func coerce(v reflect.Value, target reflect.Type) (reflect.Value, bool) {
	if !v.IsValid() {
		return reflect.Zero(target), true
	}
	if v.Type() == target {
		return v, true
	}

	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(target), true
		}
		return coerce(v.Elem(), target)
	}

	if schema.ShapeOf(v.Type()) != nil {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return reflect.Zero(target), isNilable(target)
		}
		if i, ok := v.Interface().(instancer); ok {
			inst := i.Instance()
			if inst == nil {
				return reflect.Zero(target), isNilable(target)
			}
			return coerce(reflect.ValueOf(inst), target)
		}
	}

	switch {
	case v.Type().AssignableTo(target):
		out := reflect.New(target).Elem()
		out.Set(v)
		return out, true
	case schema.Convertible(v.Type(), target):
		return v.Convert(target), true
	default:
		return reflect.Value{}, false
	}
}

func isNilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return true
	default:
		return false
	}
}
