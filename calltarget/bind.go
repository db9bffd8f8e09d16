package calltarget

import (
	"fmt"
	"reflect"

	"github.com/Konsultn-Engineering/ducktype/duck"
	"github.com/Konsultn-Engineering/ducktype/schema"
)

// Bind resolves d against the instance and argument types seen at a call
// site, using the default synthesizer. The result is not cached; use a
// Binder for that.
//
// Preconditions are checked in order and none synthesizes anything before
// the earlier ones pass:
//  1. d has len(argTypes) or len(argTypes)+1 parameters
//  2. one more parameter than arguments means parameter 0 is the instance
//  3. generic slot 0 accepts instanceType
//  4. every remaining parameter accepts its argument type
func Bind(d *Descriptor, instanceType reflect.Type, argTypes []reflect.Type) (*EntryPoint, error) {
	return bind(duck.Default(), d, instanceType, argTypes)
}

func bind(synth *duck.Synthesizer, d *Descriptor, instanceType reflect.Type, argTypes []reflect.Type) (*EntryPoint, error) {
	if d == nil {
		return nil, &schema.Error{Code: schema.CodeBindingFailed, Message: "nil descriptor", Type: instanceType}
	}

	n, a := len(d.Params), len(argTypes)
	if n != a && n != a+1 {
		err := schema.NewError(schema.CodeParameterCountMismatch,
			"callback %s takes %d parameters, call site supplies %d arguments", d.Name, n, a)
		err.Type = instanceType
		return nil, err
	}

	ep := &EntryPoint{
		Descriptor:   d,
		Instance:     instanceType,
		Args:         argTypes,
		instanceMode: n == a+1,
		args:         make([]conv, a),
	}

	target := d.Target
	switch {
	case ep.instanceMode && d.hasTarget:
		target = narrow(d.Params[0], d.Target)
	case ep.instanceMode:
		target = d.Params[0]
	case !d.hasTarget:
		target = Param{Generic: true}
	}
	c, err := resolve(synth, d, target, instanceType, "instance")
	if err != nil {
		return nil, err
	}
	ep.Target = c.slot()
	if ep.instanceMode {
		ep.instance = c
	}

	offset := n - a
	for i, t := range argTypes {
		c, err := resolve(synth, d, d.Params[offset+i], t, fmt.Sprintf("argument %d", i))
		if err != nil {
			return nil, err
		}
		ep.args[i] = c
	}

	ep.Slots = ep.slots()
	return ep, nil
}

// narrow applies the descriptor's target constraint to the instance
// parameter when the parameter itself leaves it open.
func narrow(p, target Param) Param {
	if !p.Generic || p.Constraint != nil || target.Constraint == nil {
		return p
	}
	p.Constraint = target.Constraint
	return p
}

// resolve decides how values of type t reach parameter p. t is nil for an
// untyped nil at the call site.
func resolve(synth *duck.Synthesizer, d *Descriptor, p Param, t reflect.Type, what string) (conv, error) {
	c := conv{param: p.Type, bound: t}

	unsatisfied := func(format string, args ...any) (conv, error) {
		return conv{}, &schema.Error{
			Code:    schema.CodeTypeConstraintUnsatisfied,
			Message: fmt.Sprintf("callback %s %s: ", d.Name, what) + fmt.Sprintf(format, args...),
			Type:    t,
			Shape:   p.Constraint,
		}
	}

	if t == nil {
		if p.Type != nil && !nilable(p.Type) {
			return unsatisfied("nil is not a valid %s", p.Type)
		}
		return c, nil
	}

	switch {
	case p.Constraint != nil && schema.IsShape(p.Constraint):
		if t == p.Type {
			return c, nil
		}
		e, err := synth.GetOrCreate(t, p.Constraint)
		if err != nil {
			return conv{}, err
		}
		c.entry = e
	case p.Constraint != nil:
		if !t.Implements(p.Constraint) {
			return unsatisfied("%s does not implement %s", t, p.Constraint)
		}
	case p.Generic:
	default:
		if !t.AssignableTo(p.Type) {
			return unsatisfied("%s is not assignable to %s", t, p.Type)
		}
	}
	return c, nil
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}
