package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Resolve finds the member of source described by d using the default
// context.
func Resolve(source reflect.Type, d MemberDescriptor) (*ResolvedMember, error) {
	return defaultContext.Resolve(source, d)
}

// Resolve finds the member of source described by d.
//
// The declared kind is searched first, then the other storage kind (field
// for property, property for field), so a shape can read a field through a
// property declaration and the other way round. Among several candidates an
// exact value-type match wins, then the shallowest embedding depth; anything
// still tied is an AmbiguousMemberError.
//
// Returns:
//   - *ResolvedMember describing the physical access to use
//   - MemberNotFoundError when nothing matches
//   - AmbiguousMemberError when several members match equally well
func (ctx *Context) Resolve(source reflect.Type, d MemberDescriptor) (*ResolvedMember, error) {
	if source == nil {
		return nil, &Error{Code: CodeMemberNotFound, Message: "nil source type", Member: d.LookupName()}
	}

	key := memoKey{source: source, desc: d}
	if rm, ok := ctx.memo.Get(key); ok {
		return rm, nil
	}

	ctx.resolutions.Add(1)
	rm, err := ctx.resolve(source, d)
	if err != nil {
		return nil, err
	}
	ctx.memo.Add(key, rm)
	return rm, nil
}

type candidateSet struct {
	found   []*ResolvedMember
	rejects []string
}

func (c *candidateSet) reject(format string, args ...any) {
	c.rejects = append(c.rejects, fmt.Sprintf(format, args...))
}

func (ctx *Context) resolve(source reflect.Type, d MemberDescriptor) (*ResolvedMember, error) {
	var kinds []MemberKind
	switch d.Kind {
	case KindField:
		kinds = []MemberKind{KindField, KindProperty}
	case KindProperty:
		kinds = []MemberKind{KindProperty, KindField}
	default:
		kinds = []MemberKind{KindMethod}
	}

	var rejects []string
	for _, fold := range []bool{false, true} {
		if fold && ctx.caseSensitive {
			break
		}
		for _, kind := range kinds {
			var set candidateSet
			switch {
			case d.Static:
				ctx.staticCandidates(&set, source, d, fold)
			case kind == KindField:
				ctx.fieldCandidates(&set, source, d, fold)
			default:
				ctx.methodCandidates(&set, source, d, kind, fold)
			}
			if len(set.found) > 0 {
				return pick(source, d, set.found)
			}
			rejects = append(rejects, set.rejects...)
			if d.Static {
				break
			}
		}
	}

	msg := "no matching member"
	if len(rejects) > 0 {
		msg += ": " + strings.Join(rejects, "; ")
	}
	return nil, &Error{Code: CodeMemberNotFound, Message: msg, Member: d.LookupName(), Type: source}
}

func (ctx *Context) fieldCandidates(set *candidateSet, source reflect.Type, d MemberDescriptor, fold bool) {
	if d.Access == AccessCall {
		return
	}
	meta, err := Introspect(source)
	if err != nil {
		return
	}

	for _, f := range meta.FieldsNamed(d.LookupName(), fold) {
		if !ctx.embedded && f.Depth > 0 {
			continue
		}
		if f.Exported && !d.Visibility.Has(Public) {
			set.reject("field %s is exported", f.Name)
			continue
		}
		if !f.Exported && !d.Visibility.Has(NonPublic) {
			set.reject("field %s is unexported", f.Name)
			continue
		}
		if d.Access == AccessSet && source.Kind() != reflect.Pointer {
			set.reject("field %s is not settable on non-pointer %s", f.Name, source)
			continue
		}
		if !accessCompatible(d, f.Type) {
			set.reject("field %s has type %s", f.Name, f.Type)
			continue
		}
		set.found = append(set.found, &ResolvedMember{
			Descriptor: d,
			Physical:   PhysicalField,
			Name:       f.Name,
			Type:       f.Type,
			Depth:      f.Depth,
			Field:      f,
		})
	}
}

func (ctx *Context) methodCandidates(set *candidateSet, source reflect.Type, d MemberDescriptor, kind MemberKind, fold bool) {
	if !d.Visibility.Has(Public) {
		// reflect cannot call unexported methods.
		return
	}

	name := d.LookupName()
	if kind == KindProperty && d.Access == AccessSet {
		name = "Set" + name
	}

	for _, m := range methodsNamed(source, name, fold) {
		sig := methodSignature(source, m)

		var typ reflect.Type
		switch d.Access {
		case AccessGet:
			if sig.NumIn() != 0 || sig.NumOut() != 1 {
				set.reject("method %s is not a getter", m.Name)
				continue
			}
			typ = sig.Out(0)
		case AccessSet:
			if sig.NumIn() != 1 || sig.NumOut() != 0 || sig.IsVariadic() {
				set.reject("method %s is not a setter", m.Name)
				continue
			}
			if source.Kind() != reflect.Pointer && source.Kind() != reflect.Interface {
				set.reject("setter %s on non-pointer %s", m.Name, source)
				continue
			}
			typ = sig.In(0)
		default:
			typ = sig
		}

		if !accessCompatible(d, typ) {
			set.reject("method %s has incompatible type %s", m.Name, typ)
			continue
		}
		set.found = append(set.found, &ResolvedMember{
			Descriptor: d,
			Physical:   PhysicalMethod,
			Name:       m.Name,
			Type:       typ,
			Method:     m,
		})
	}
}

func (ctx *Context) staticCandidates(set *candidateSet, source reflect.Type, d MemberDescriptor, fold bool) {
	for _, sm := range lookupStatics(source, d.LookupName(), fold) {
		name, v := sm.name, sm.value

		var typ reflect.Type
		vt := v.Type()
		switch {
		case d.Access == AccessCall && vt.Kind() == reflect.Func:
			typ = vt
		case d.Access != AccessCall && vt.Kind() == reflect.Pointer:
			typ = vt.Elem()
		case d.Access == AccessGet && vt.Kind() == reflect.Func && vt.NumIn() == 0 && vt.NumOut() == 1:
			typ = vt.Out(0)
		case d.Access == AccessSet && vt.Kind() == reflect.Func && vt.NumIn() == 1 && vt.NumOut() == 0:
			typ = vt.In(0)
		default:
			set.reject("static %s (%s) does not support %s access", name, vt, d.Access)
			continue
		}

		if !accessCompatible(d, typ) {
			set.reject("static %s has incompatible type %s", name, typ)
			continue
		}
		set.found = append(set.found, &ResolvedMember{
			Descriptor: d,
			Physical:   PhysicalStatic,
			Name:       name,
			Type:       typ,
			Static:     v,
		})
	}
}

func pick(source reflect.Type, d MemberDescriptor, found []*ResolvedMember) (*ResolvedMember, error) {
	if len(found) == 1 {
		return found[0], nil
	}

	want := d.ValueType
	if d.Access == AccessCall {
		want = d.Func
	}
	var exact []*ResolvedMember
	for _, rm := range found {
		if rm.Type == want {
			exact = append(exact, rm)
		}
	}
	if len(exact) > 0 {
		found = exact
	}
	if len(found) == 1 {
		return found[0], nil
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Depth < found[j].Depth })
	if found[0].Depth < found[1].Depth {
		return found[0], nil
	}

	names := make([]string, 0, len(found))
	for _, rm := range found {
		if rm.Depth != found[0].Depth {
			break
		}
		names = append(names, fmt.Sprintf("%s %s (%s)", rm.Physical, rm.Name, rm.Type))
	}
	return nil, &Error{
		Code:    CodeAmbiguousMember,
		Message: "candidates " + strings.Join(names, ", "),
		Member:  d.LookupName(),
		Type:    source,
	}
}

func methodsNamed(source reflect.Type, name string, fold bool) []reflect.Method {
	if !fold {
		if m, ok := source.MethodByName(name); ok {
			return []reflect.Method{m}
		}
		return nil
	}
	var out []reflect.Method
	for i := 0; i < source.NumMethod(); i++ {
		if m := source.Method(i); strings.EqualFold(m.Name, name) {
			out = append(out, m)
		}
	}
	return out
}

// methodSignature returns the method's func type without its receiver.
func methodSignature(source reflect.Type, m reflect.Method) reflect.Type {
	if source.Kind() == reflect.Interface {
		return m.Type
	}
	in := make([]reflect.Type, 0, m.Type.NumIn()-1)
	for i := 1; i < m.Type.NumIn(); i++ {
		in = append(in, m.Type.In(i))
	}
	out := make([]reflect.Type, 0, m.Type.NumOut())
	for i := 0; i < m.Type.NumOut(); i++ {
		out = append(out, m.Type.Out(i))
	}
	return reflect.FuncOf(in, out, m.Type.IsVariadic())
}

// accessCompatible reports whether a member of type typ can serve d.
func accessCompatible(d MemberDescriptor, typ reflect.Type) bool {
	switch d.Access {
	case AccessGet:
		return ValueCompatible(typ, d.ValueType)
	case AccessSet:
		return ValueCompatible(d.ValueType, typ)
	default:
		return SignatureCompatible(d.Func, typ)
	}
}

// ValueCompatible reports whether a value of type from can be delivered as
// type to: directly, by conversion between like kinds, by adapting it to a
// shape, or by unwrapping an adapter back to its instance.
func ValueCompatible(from, to reflect.Type) bool {
	switch {
	case from == to:
		return true
	case ShapeOf(to) != nil || ShapeOf(from) != nil:
		return true
	case from.AssignableTo(to):
		return true
	case from.Kind() == reflect.Interface:
		// Checked against the dynamic type at call time.
		return true
	default:
		return Convertible(from, to)
	}
}

// SignatureCompatible reports whether calls through a shape func of type
// shape can be forwarded to a func of type target.
func SignatureCompatible(shape, target reflect.Type) bool {
	if shape.NumIn() != target.NumIn() || shape.NumOut() != target.NumOut() || shape.IsVariadic() != target.IsVariadic() {
		return false
	}
	for i := 0; i < shape.NumIn(); i++ {
		if !ValueCompatible(shape.In(i), target.In(i)) {
			return false
		}
	}
	for i := 0; i < shape.NumOut(); i++ {
		if !ValueCompatible(target.Out(i), shape.Out(i)) {
			return false
		}
	}
	return true
}

// Convertible limits reflect conversions to like kinds, so an int is never
// turned into a one-rune string.
func Convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	if isNumeric(from.Kind()) && isNumeric(to.Kind()) {
		return true
	}
	return from.Kind() == to.Kind()
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
