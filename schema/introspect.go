package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// FieldInfo describes one struct field reachable from a source type,
// including fields promoted from embedded structs.
type FieldInfo struct {
	Name     string
	Type     reflect.Type
	Index    []int // path from the source struct, as for reflect.Value.FieldByIndex
	Depth    int   // embedding depth, 0 for fields declared on the source
	Exported bool
	Embedded bool
}

// TypeMeta is the structural surface of a struct type.
type TypeMeta struct {
	Type   reflect.Type
	Fields []*FieldInfo
	byName map[string][]*FieldInfo
	byFold map[string][]*FieldInfo
}

// FieldsNamed returns every field named name, shallowest first. With fold set
// names are compared case-insensitively.
func (m *TypeMeta) FieldsNamed(name string, fold bool) []*FieldInfo {
	if fold {
		return m.byFold[strings.ToLower(name)]
	}
	return m.byName[name]
}

var metaCache sync.Map // map[reflect.Type]*TypeMeta

// Introspect retrieves or builds the field metadata of a struct type.
// Pointer types are dereferenced.
func Introspect(t reflect.Type) (*TypeMeta, error) {
	t = indirectType(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("invalid source type: %v (expected struct)", t)
	}

	if meta, ok := metaCache.Load(t); ok {
		return meta.(*TypeMeta), nil
	}

	meta := buildMeta(t)
	actual, _ := metaCache.LoadOrStore(t, meta)
	return actual.(*TypeMeta), nil
}

// buildMeta walks t and every struct embedded in it. A struct embedding a
// pointer to itself is walked once per path.
func buildMeta(t reflect.Type) *TypeMeta {
	meta := &TypeMeta{
		Type:   t,
		Fields: make([]*FieldInfo, 0, t.NumField()),
		byName: make(map[string][]*FieldInfo, t.NumField()),
		byFold: make(map[string][]*FieldInfo, t.NumField()),
	}
	collectFields(meta, t, nil, 0, map[reflect.Type]bool{})

	// Keep the shallowest candidates first so lookups see Go's own
	// promotion order.
	for _, list := range meta.byName {
		sortByDepth(list)
	}
	for _, list := range meta.byFold {
		sortByDepth(list)
	}
	return meta
}

func collectFields(meta *TypeMeta, t reflect.Type, prefix []int, depth int, visiting map[reflect.Type]bool) {
	visiting[t] = true
	defer delete(visiting, t)

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)

		index := make([]int, len(prefix)+1)
		copy(index, prefix)
		index[len(prefix)] = i

		fi := &FieldInfo{
			Name:     f.Name,
			Type:     f.Type,
			Index:    index,
			Depth:    depth,
			Exported: f.IsExported(),
			Embedded: f.Anonymous,
		}
		meta.Fields = append(meta.Fields, fi)
		meta.byName[f.Name] = append(meta.byName[f.Name], fi)
		fold := strings.ToLower(f.Name)
		meta.byFold[fold] = append(meta.byFold[fold], fi)

		if !f.Anonymous {
			continue
		}
		et := indirectType(f.Type)
		if et.Kind() == reflect.Struct && !visiting[et] {
			collectFields(meta, et, index, depth+1, visiting)
		}
	}
}

func sortByDepth(list []*FieldInfo) {
	// Insertion sort: lists are tiny and already nearly ordered.
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j].Depth < list[j-1].Depth; j-- {
			list[j], list[j-1] = list[j-1], list[j]
		}
	}
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

