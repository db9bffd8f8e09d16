package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

type staticKey struct {
	owner reflect.Type
	name  string
}

var statics sync.Map // map[staticKey]reflect.Value

// RegisterStatic associates a package-level member with type T so that
// shape members tagged `duck:"static"` can reach it. member must be a
// non-nil pointer to a variable (field-like access) or a func (property or
// method access).
//
// Example:
//
//	var defaultTimeout = 5 * time.Second
//	schema.RegisterStatic[http.Client]("DefaultTimeout", &defaultTimeout)
func RegisterStatic[T any](name string, member any) error {
	return RegisterStaticType(reflect.TypeOf((*T)(nil)).Elem(), name, member)
}

// RegisterStaticType is RegisterStatic for a type known only at run time.
func RegisterStaticType(owner reflect.Type, name string, member any) error {
	owner = indirectType(owner)
	if owner == nil {
		return fmt.Errorf("static member %q: nil owner type", name)
	}
	if name == "" {
		return fmt.Errorf("static member on %s: empty name", owner)
	}

	v := reflect.ValueOf(member)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func:
		if v.IsNil() {
			return fmt.Errorf("static member %s.%s: nil %s", owner, name, v.Kind())
		}
	default:
		return fmt.Errorf("static member %s.%s: expected pointer or func, got %T", owner, name, member)
	}

	statics.Store(staticKey{owner: owner, name: name}, v)
	return nil
}

type staticMember struct {
	name  string
	value reflect.Value
}

// lookupStatics returns the statics of owner named name. With fold set every
// case-insensitive match is returned, sorted by name.
func lookupStatics(owner reflect.Type, name string, fold bool) []staticMember {
	owner = indirectType(owner)
	if !fold {
		v, ok := statics.Load(staticKey{owner: owner, name: name})
		if !ok {
			return nil
		}
		return []staticMember{{name: name, value: v.(reflect.Value)}}
	}

	var found []staticMember
	statics.Range(func(k, v any) bool {
		key := k.(staticKey)
		if key.owner == owner && strings.EqualFold(key.name, name) {
			found = append(found, staticMember{name: key.name, value: v.(reflect.Value)})
		}
		return true
	})
	sort.Slice(found, func(i, j int) bool { return found[i].name < found[j].name })
	return found
}
