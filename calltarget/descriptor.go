package calltarget

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/Konsultn-Engineering/ducktype/schema"
)

// Phase is the interception point a callback runs at.
type Phase int

const (
	PhaseBegin Phase = iota
	PhaseEnd
	PhaseAsyncEnd
)

// String returns the method name integrations use for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseBegin:
		return "OnMethodBegin"
	case PhaseEnd:
		return "OnMethodEnd"
	case PhaseAsyncEnd:
		return "OnAsyncMethodEnd"
	default:
		return "Unknown"
	}
}

// Param is one callback parameter. Generic parameters take the type observed
// at the call site; a Constraint narrows what that type may be. A shape
// constraint (a struct embedding duck.Shape) is satisfied through an adapter,
// an interface constraint by implementation.
type Param struct {
	Type       reflect.Type
	Generic    bool
	Constraint reflect.Type
}

func (p Param) String() string {
	switch {
	case p.Constraint != nil:
		return fmt.Sprintf("%s constrained to %s", p.Type, p.Constraint)
	case p.Generic:
		return fmt.Sprintf("%s (generic)", p.Type)
	default:
		return p.Type.String()
	}
}

// Descriptor describes an instrumentation callback. It is immutable once
// built.
type Descriptor struct {
	ID    uuid.UUID
	Name  string
	Phase Phase

	// Target is generic slot 0, the instance type. It is consulted even when
	// the instance is not passed to the callback.
	Target    Param
	hasTarget bool

	Params []Param
	// Result is the callback's non-error result type, nil if it has none.
	Result     reflect.Type
	returnsErr bool

	fn reflect.Value
}

type DescribeOption func(*Descriptor)

// WithTarget constrains generic slot 0. constraint is a shape (S or *S), an
// interface type, or nil for unconstrained.
func WithTarget(constraint reflect.Type) DescribeOption {
	return func(d *Descriptor) {
		d.Target = Param{Type: constraint, Generic: true}
		if st := schema.ShapeOf(constraint); st != nil {
			d.Target = Param{Type: reflect.PointerTo(st), Generic: true, Constraint: st}
		} else if constraint != nil && constraint.Kind() == reflect.Interface && constraint.NumMethod() > 0 {
			d.Target.Constraint = constraint
		}
		d.hasTarget = true
	}
}

// WithPhase sets the interception phase.
func WithPhase(p Phase) DescribeOption {
	return func(d *Descriptor) { d.Phase = p }
}

// WithID sets a fixed identity instead of a random one.
func WithID(id uuid.UUID) DescribeOption {
	return func(d *Descriptor) { d.ID = id }
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Describe builds a descriptor for fn. Parameters of type any are
// unconstrained generic slots, *S for a shape S is a shape-constrained slot,
// other interfaces are interface-constrained slots, and everything else is
// fixed. fn may return nothing, a value, an error, or a value and an error.
func Describe(name string, fn any, opts ...DescribeOption) (*Descriptor, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("callback %s: expected a non-nil func, got %T", name, fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("callback %s: variadic callbacks are not supported", name)
	}

	d := &Descriptor{
		ID:     uuid.New(),
		Name:   name,
		Params: make([]Param, t.NumIn()),
		fn:     v,
	}
	for i := range d.Params {
		d.Params[i] = classify(t.In(i))
	}

	switch n := t.NumOut(); {
	case n == 0:
	case n == 1 && t.Out(0) == errorType:
		d.returnsErr = true
	case n == 1:
		d.Result = t.Out(0)
	case n == 2 && t.Out(1) == errorType:
		d.Result, d.returnsErr = t.Out(0), true
	default:
		return nil, fmt.Errorf("callback %s: results must be (), (T), (error) or (T, error), got %s", name, t)
	}

	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DescribeMethod describes the phase method of integration, found by its
// conventional name (OnMethodBegin, OnMethodEnd or OnAsyncMethodEnd).
func DescribeMethod(integration any, phase Phase, opts ...DescribeOption) (*Descriptor, error) {
	v := reflect.ValueOf(integration)
	if !v.IsValid() {
		return nil, fmt.Errorf("describe %s: nil integration", phase)
	}
	m := v.MethodByName(phase.String())
	if !m.IsValid() {
		return nil, &schema.Error{Code: schema.CodeMemberNotFound, Message: "integration has no phase method", Member: phase.String(), Type: v.Type()}
	}
	name := fmt.Sprintf("%s.%s", v.Type(), phase)
	return Describe(name, m.Interface(), append([]DescribeOption{WithPhase(phase)}, opts...)...)
}

func classify(t reflect.Type) Param {
	switch {
	case t.Kind() == reflect.Interface && t.NumMethod() == 0:
		return Param{Type: t, Generic: true}
	case t.Kind() == reflect.Pointer && schema.IsShape(t.Elem()):
		return Param{Type: t, Generic: true, Constraint: t.Elem()}
	case t.Kind() == reflect.Interface:
		return Param{Type: t, Generic: true, Constraint: t}
	default:
		return Param{Type: t}
	}
}

// zero is the neutral result of a no-op invocation.
func (d *Descriptor) zero() any {
	if d.Result == nil {
		return nil
	}
	return reflect.Zero(d.Result).Interface()
}
