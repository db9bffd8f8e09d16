package calltarget

import (
	"fmt"
	"reflect"

	"github.com/Konsultn-Engineering/ducktype/circuit"
	"github.com/Konsultn-Engineering/ducktype/duck"
	"github.com/Konsultn-Engineering/ducktype/schema"
)

// Invocable is what interception points call.
type Invocable interface {
	Invoke(instance any, args ...any) (any, error)
}

// EntryPoint is a callback bound to one instance type and argument type
// list. It is immutable and safe for concurrent use.
type EntryPoint struct {
	Descriptor *Descriptor
	Instance   reflect.Type
	Args       []reflect.Type
	// Slots are the types each callback parameter receives: the adapter
	// type for shape-constrained slots, the bound type otherwise.
	Slots []reflect.Type
	// Target is what generic slot 0 resolved to for the instance type. In
	// instance mode it equals Slots[0]; otherwise the instance is checked
	// against it but not passed.
	Target reflect.Type

	instanceMode bool
	instance     conv
	args         []conv
	latch        *circuit.Latch
	trip         func(error)
}

// InstanceMode reports whether the instance is passed as parameter 0.
func (ep *EntryPoint) InstanceMode() bool {
	return ep.instanceMode
}

// Tripped reports whether the key this entry point belongs to has tripped.
func (ep *EntryPoint) Tripped() bool {
	return ep.latch.Tripped()
}

// Invoke calls the callback. instance and args must have the types the entry
// point was bound to. Once the entry point's key trips, Invoke returns the
// zero result without calling anything. Errors and panics of the callback
// are passed through unchanged, except when an adapter handed to the
// callback reads a member whose value cannot be adapted: that trips the key
// and Invoke returns the zero result. Entry points built outside a Binder
// have no key and return the adaptation error instead.
func (ep *EntryPoint) Invoke(instance any, args ...any) (result any, err error) {
	d := ep.Descriptor
	if ep.latch.Tripped() {
		return d.zero(), nil
	}
	if len(args) != len(ep.args) {
		return d.zero(), schema.NewError(schema.CodeParameterCountMismatch,
			"entry point for %s bound to %d arguments, got %d", d.Name, len(ep.args), len(args))
	}

	in := make([]reflect.Value, 0, len(d.Params))
	if ep.instanceMode {
		v, err := ep.instance.value(instance)
		if err != nil {
			return d.zero(), err
		}
		in = append(in, v)
	}
	for i, a := range args {
		v, err := ep.args[i].value(a)
		if err != nil {
			return d.zero(), err
		}
		in = append(in, v)
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause, ok := duck.ContainedFailure(r)
		if !ok {
			panic(r)
		}
		result, err = d.zero(), nil
		if ep.trip == nil {
			err = cause
			return
		}
		ep.trip(cause)
	}()

	outs := d.fn.Call(in)

	if d.Result != nil {
		result = outs[0].Interface()
	}
	if d.returnsErr {
		if e := outs[len(outs)-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
	}
	return result, err
}

func (ep *EntryPoint) slots() []reflect.Type {
	slots := make([]reflect.Type, 0, len(ep.args)+1)
	if ep.instanceMode {
		slots = append(slots, ep.instance.slot())
	}
	for _, c := range ep.args {
		slots = append(slots, c.slot())
	}
	return slots
}

// conv delivers a raw call-site value to one callback parameter.
type conv struct {
	param reflect.Type
	bound reflect.Type
	entry *duck.Entry
}

func (c conv) slot() reflect.Type {
	switch {
	case c.entry != nil:
		return c.entry.Type
	case c.bound != nil:
		return c.bound
	default:
		return c.param
	}
}

func (c conv) value(x any) (reflect.Value, error) {
	if x == nil {
		return reflect.Zero(c.param), nil
	}

	v := reflect.ValueOf(x)
	if v.Type() != c.bound {
		return reflect.Value{}, &schema.Error{
			Code:    schema.CodeTypeConstraintUnsatisfied,
			Message: fmt.Sprintf("bound to %v, got %s", c.bound, v.Type()),
			Type:    v.Type(),
		}
	}
	if c.entry != nil {
		v = c.entry.NewContained(v)
	}
	if v.Type() == c.param {
		return v, nil
	}
	out := reflect.New(c.param).Elem()
	out.Set(v)
	return out, nil
}

// noop is the invocable of a tripped key.
type noop struct {
	d *Descriptor
}

func (n noop) Invoke(any, ...any) (any, error) {
	if n.d == nil {
		return nil, nil
	}
	return n.d.zero(), nil
}

// IsNoop reports whether inv is the no-op returned for tripped keys.
func IsNoop(inv Invocable) bool {
	_, ok := inv.(noop)
	return ok
}

// Call invokes inv and converts its result to R. A nil result or one of
// another type yields the zero R.
func Call[R any](inv Invocable, instance any, args ...any) (R, error) {
	v, err := inv.Invoke(instance, args...)
	r, _ := v.(R)
	return r, err
}
