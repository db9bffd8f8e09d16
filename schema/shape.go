package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Shape marks a struct as a structural interface. A shape embeds Shape and
// declares one exported func field per member it needs:
//
//	type Named struct {
//		schema.Shape
//		Name    func() string `duck:"name:name;field;nonpublic"`
//		SetName func(string)
//	}
//
// Adapters are *Named values whose func fields forward to the adapted
// instance.
type Shape struct {
	instance any
}

// Instance returns the value the adapter forwards to.
func (s Shape) Instance() any {
	return s.instance
}

var shapeMarkerType = reflect.TypeOf(Shape{})

// ShapeInfo is the parsed member list of a shape.
type ShapeInfo struct {
	Type    reflect.Type
	Marker  int
	Members []MemberDescriptor
}

var shapeCache sync.Map // map[reflect.Type]*ShapeInfo

// IsShape reports whether t is a shape struct.
func IsShape(t reflect.Type) bool {
	return markerIndex(t) >= 0
}

// ShapeOf returns the shape struct type behind t, accepting both S and *S,
// or nil if t is not a shape.
func ShapeOf(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if IsShape(t) {
		return t
	}
	return nil
}

func markerIndex(t reflect.Type) int {
	if t == nil || t.Kind() != reflect.Struct {
		return -1
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type == shapeMarkerType {
			return i
		}
	}
	return -1
}

// BindInstance records the adapted instance in the marker of the shape
// pointed to by ptr.
func BindInstance(ptr reflect.Value, marker int, instance any) {
	m := ptr.Elem().Field(marker).Addr().Interface().(*Shape)
	m.instance = instance
}

// ParseShape returns the member descriptors of shape t (S or *S). Results are
// cached per type.
func ParseShape(t reflect.Type) (*ShapeInfo, error) {
	st := ShapeOf(t)
	if st == nil {
		return nil, &Error{Code: CodeInvalidShape, Message: "type does not embed schema.Shape", Type: t}
	}
	if info, ok := shapeCache.Load(st); ok {
		return info.(*ShapeInfo), nil
	}

	info, err := buildShape(st, defaultTagParser)
	if err != nil {
		return nil, err
	}
	actual, _ := shapeCache.LoadOrStore(st, info)
	return actual.(*ShapeInfo), nil
}

func buildShape(t reflect.Type, parser *TagParser) (*ShapeInfo, error) {
	info := &ShapeInfo{
		Type:    t,
		Marker:  markerIndex(t),
		Members: make([]MemberDescriptor, 0, t.NumField()-1),
	}

	for i := 0; i < t.NumField(); i++ {
		if i == info.Marker {
			continue
		}
		f := t.Field(i)
		tag := parser.ParseTag(f.Tag)
		if tag.Skip {
			continue
		}
		if !f.IsExported() {
			return nil, &Error{Code: CodeInvalidShape, Message: "shape members must be exported", Member: f.Name, Type: t}
		}
		if f.Type.Kind() != reflect.Func {
			return nil, &Error{Code: CodeInvalidShape, Message: fmt.Sprintf("shape member must be a func, got %s", f.Type), Member: f.Name, Type: t}
		}

		d, err := describeField(f, tag)
		if err != nil {
			return nil, &Error{Code: CodeInvalidShape, Message: err.Error(), Member: f.Name, Type: t}
		}
		d.Index = i
		info.Members = append(info.Members, d)
	}
	return info, nil
}

func describeField(f reflect.StructField, tag *ParsedTag) (MemberDescriptor, error) {
	ft := f.Type
	getter := ft.NumIn() == 0 && ft.NumOut() == 1
	setter := ft.NumIn() == 1 && ft.NumOut() == 0 && !ft.IsVariadic()

	d := MemberDescriptor{
		DeclaredName: f.Name,
		OverrideName: tag.Name,
		Visibility:   tag.Visibility,
		Static:       tag.Static,
		Func:         ft,
	}
	if d.Visibility == 0 {
		d.Visibility = Public
	}

	switch {
	case tag.HasKind && tag.Kind == KindMethod:
		d.Kind, d.Access = KindMethod, AccessCall
		return d, nil
	case tag.HasKind:
		d.Kind = tag.Kind
	case getter && !tag.Set:
		d.Kind = KindProperty
	case setter && (tag.Set || isSetterName(f.Name)):
		d.Kind = KindProperty
	default:
		d.Kind, d.Access = KindMethod, AccessCall
		return d, nil
	}

	switch {
	case tag.Set || (!tag.Get && setter && !getter):
		if !setter {
			return d, fmt.Errorf("%s setter must have signature func(T)", d.Kind)
		}
		d.Access = AccessSet
		d.ValueType = ft.In(0)
		if isSetterName(f.Name) {
			d.DeclaredName = f.Name[len("Set"):]
		}
	case getter:
		d.Access = AccessGet
		d.ValueType = ft.Out(0)
	default:
		return d, fmt.Errorf("%s getter must have signature func() T", d.Kind)
	}
	return d, nil
}

// isSetterName reports whether name looks like SetX, where X starts with an
// upper-case letter or underscore ("Settle" is not a setter).
func isSetterName(name string) bool {
	if len(name) <= len("Set") || !strings.HasPrefix(name, "Set") {
		return false
	}
	r, _ := utf8.DecodeRuneInString(name[len("Set"):])
	return unicode.IsUpper(r) || r == '_'
}
