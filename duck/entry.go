package duck

import (
	"reflect"

	"github.com/Konsultn-Engineering/ducktype/schema"
)

// Entry is the synthesized adapter of one (source type, shape) pair.
type Entry struct {
	Source reflect.Type
	Shape  reflect.Type
	// Type is the adapter type, a pointer to Shape.
	Type reflect.Type
	Plan []Step

	marker int
	synth  *Synthesizer
}

// Step forwards one shape member.
type Step struct {
	Field  int
	Member *schema.ResolvedMember

	// Value adapts getter results, Results adapts call results.
	Value   nested
	Results []nested
}

// nested tells how a value crossing the adapter is delivered as a shape.
// With entry set the adapter is fixed at synthesis time; with only shape set
// it is looked up against the value's dynamic type.
type nested struct {
	entry *Entry
	shape reflect.Type
}

func (n nested) adapts() bool {
	return n.entry != nil || n.shape != nil
}

// New returns an adapter around instance. instance must be of type Source.
func (e *Entry) New(instance any) any {
	if instance == nil {
		return reflect.Zero(e.Type).Interface()
	}
	return e.NewValue(reflect.ValueOf(instance)).Interface()
}

// NewValue is New for a reflect.Value. Nil pointers yield a nil adapter.
// Non-addressable struct values are copied so unexported fields stay
// reachable; setters on such a copy do not affect the caller's value.
func (e *Entry) NewValue(v reflect.Value) reflect.Value {
	return e.newValue(v, false)
}

// NewContained is NewValue for adapters handed to bound callbacks. When a
// deferred member of such an adapter (or of any adapter reached through it)
// holds a value that cannot be adapted, the read panics with a failure that
// ContainedFailure recognises instead of returning a nil adapter.
func (e *Entry) NewContained(v reflect.Value) reflect.Value {
	return e.newValue(v, true)
}

func (e *Entry) newValue(v reflect.Value, contain bool) reflect.Value {
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if !v.IsValid() || isNil(v) {
		return reflect.Zero(e.Type)
	}
	if v.Type() != e.Source {
		panic("duck: adapter for " + e.Source.String() + " used with " + v.Type().String())
	}
	if v.Kind() != reflect.Pointer && !v.CanAddr() {
		c := reflect.New(v.Type()).Elem()
		c.Set(v)
		v = c
	}

	ptr := reflect.New(e.Shape)
	schema.BindInstance(ptr, e.marker, v.Interface())
	s := ptr.Elem()
	for i := range e.Plan {
		step := &e.Plan[i]
		s.Field(step.Field).Set(e.synth.forwarder(step, v, contain))
	}
	return ptr
}

func (s *Synthesizer) forwarder(step *Step, inst reflect.Value, contain bool) reflect.Value {
	rm := step.Member
	ft := rm.Descriptor.Func

	switch rm.Descriptor.Access {
	case schema.AccessGet:
		out := ft.Out(0)
		return reflect.MakeFunc(ft, func([]reflect.Value) []reflect.Value {
			v, ok := read(rm, inst)
			if !ok {
				return []reflect.Value{reflect.Zero(out)}
			}
			return []reflect.Value{s.deliver(v, out, step.Value, contain)}
		})
	case schema.AccessSet:
		return reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
			if x, ok := coerce(args[0], rm.Type); ok {
				write(rm, inst, x)
			}
			return nil
		})
	default:
		return reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
			return s.call(step, inst, args, contain)
		})
	}
}

func read(rm *schema.ResolvedMember, inst reflect.Value) (reflect.Value, bool) {
	switch rm.Physical {
	case schema.PhysicalField:
		return rm.Field.Value(inst)
	case schema.PhysicalMethod:
		return inst.Method(rm.Method.Index).Call(nil)[0], true
	default:
		if rm.Static.Kind() == reflect.Pointer {
			return rm.Static.Elem(), true
		}
		return rm.Static.Call(nil)[0], true
	}
}

func write(rm *schema.ResolvedMember, inst reflect.Value, x reflect.Value) {
	switch rm.Physical {
	case schema.PhysicalField:
		rm.Field.Set(inst, x)
	case schema.PhysicalMethod:
		inst.Method(rm.Method.Index).Call([]reflect.Value{x})
	default:
		if rm.Static.Kind() == reflect.Pointer {
			rm.Static.Elem().Set(x)
			return
		}
		rm.Static.Call([]reflect.Value{x})
	}
}

// call forwards a method invocation. Arguments that cannot be delivered to
// the target signature make the call a no-op returning zero values.
func (s *Synthesizer) call(step *Step, inst reflect.Value, args []reflect.Value, contain bool) []reflect.Value {
	rm := step.Member
	ft := rm.Descriptor.Func
	sig := rm.Type

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		x, ok := coerce(a, sig.In(i))
		if !ok {
			return zeroResults(ft)
		}
		in[i] = x
	}

	var fn reflect.Value
	if rm.Physical == schema.PhysicalMethod {
		fn = inst.Method(rm.Method.Index)
	} else {
		fn = rm.Static
	}

	var outs []reflect.Value
	if sig.IsVariadic() {
		outs = fn.CallSlice(in)
	} else {
		outs = fn.Call(in)
	}

	res := make([]reflect.Value, len(outs))
	for i, o := range outs {
		res[i] = s.deliver(o, ft.Out(i), step.Results[i], contain)
	}
	return res
}

// deliver converts a member value to the type the shape declares.
func (s *Synthesizer) deliver(v reflect.Value, target reflect.Type, n nested, contain bool) reflect.Value {
	if n.adapts() {
		return s.adaptNested(v, target, n, contain)
	}
	if out, ok := coerce(v, target); ok {
		return out
	}
	return reflect.Zero(target)
}

func (s *Synthesizer) adaptNested(v reflect.Value, target reflect.Type, n nested, contain bool) reflect.Value {
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if !v.IsValid() || isNil(v) {
		return reflect.Zero(target)
	}
	if v.Type() == target {
		return v
	}

	entry := n.entry
	if entry == nil {
		var err error
		if entry, err = s.deferred(v.Type(), n.shape); err != nil {
			if contain {
				panic(containedPanic{err: err})
			}
			return reflect.Zero(target)
		}
	}

	adapter := entry.newValue(v, contain)
	if target.Kind() != reflect.Pointer {
		return adapter.Elem()
	}
	return adapter
}

// deferred returns the adapter of a value read from an interface-typed
// member. Pairs that failed once are remembered and never synthesized again.
func (s *Synthesizer) deferred(source, shape reflect.Type) (*Entry, error) {
	key := adapterKey{source: source, shape: shape}
	if err, ok := s.failed.Load(key); ok {
		return nil, err.(error)
	}
	entry, err := s.GetOrCreate(source, shape)
	if err == nil {
		return entry, nil
	}
	if _, loaded := s.failed.LoadOrStore(key, err); !loaded && s.hooks.OnDeferredFailure != nil {
		s.hooks.OnDeferredFailure(source, shape, err)
	}
	return nil, err
}

type containedPanic struct {
	err error
}

// ContainedFailure reports whether r, a value returned by recover, was
// raised by a contained adapter whose deferred member could not be adapted,
// and returns that adaptation error.
func ContainedFailure(r any) (error, bool) {
	p, ok := r.(containedPanic)
	if !ok {
		return nil, false
	}
	return p.err, true
}

func zeroResults(ft reflect.Type) []reflect.Value {
	out := make([]reflect.Value, ft.NumOut())
	for i := range out {
		out[i] = reflect.Zero(ft.Out(i))
	}
	return out
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}
