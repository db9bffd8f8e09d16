package calltarget

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/ducktype/circuit"
	"github.com/Konsultn-Engineering/ducktype/duck"
	"github.com/Konsultn-Engineering/ducktype/schema"
)

// =========================================================================
// Test Data Structures
// =========================================================================

type counter struct {
	Value int
}

type nameless struct {
	ID int
}

type valueView struct {
	duck.Shape
	Value func() int
}

type parcel struct {
	Payload any
}

type parcelView struct {
	duck.Shape
	Payload func() *valueView
}

type integration struct{}

func (integration) OnMethodBegin(instance *valueView, delta int) State {
	return NewState(instance.Value() + delta)
}

func (integration) OnMethodEnd(instance any, ret Return[int], err error, state State) Return[int] {
	if err != nil {
		return ret
	}
	return NewReturn(ret.GetReturnValue() * state.Value.(int))
}

var (
	stringT  = reflect.TypeOf("")
	intT     = reflect.TypeOf(0)
	counterT = reflect.TypeOf(&counter{})
)

type fixture struct {
	binder   *Binder
	synth    *duck.Synthesizer
	resolver *schema.Context
	events   []circuit.Event
}

func newFixture() *fixture {
	f := &fixture{resolver: schema.New()}
	f.synth = duck.New(duck.WithResolver(f.resolver))
	breaker := circuit.NewBreaker(circuit.Config{OnTrip: func(e circuit.Event) { f.events = append(f.events, e) }})
	f.binder = NewBinder(WithSynthesizer(f.synth), WithBreaker(breaker))
	return f
}

// =========================================================================
// Descriptor Tests
// =========================================================================

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseBegin, "OnMethodBegin"},
		{PhaseEnd, "OnMethodEnd"},
		{PhaseAsyncEnd, "OnAsyncMethodEnd"},
		{Phase(42), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.phase.String())
		})
	}
}

func TestDescribeClassifiesParams(t *testing.T) {
	d, err := Describe("cb", func(instance any, v *valueView, s fmt.Stringer, n int) (string, error) {
		return "", nil
	})
	require.NoError(t, err)
	require.Len(t, d.Params, 4)

	assert.True(t, d.Params[0].Generic)
	assert.Nil(t, d.Params[0].Constraint)
	assert.True(t, d.Params[1].Generic)
	assert.Equal(t, reflect.TypeOf(valueView{}), d.Params[1].Constraint)
	assert.True(t, d.Params[2].Generic)
	assert.Equal(t, reflect.TypeOf((*fmt.Stringer)(nil)).Elem(), d.Params[2].Constraint)
	assert.False(t, d.Params[3].Generic)

	assert.Equal(t, stringT, d.Result)
	assert.True(t, d.returnsErr)

	other, err := Describe("cb", func() {})
	require.NoError(t, err)
	assert.NotEqual(t, d.ID, other.ID)
	assert.Nil(t, other.Result)
}

func TestDescribeErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   any
	}{
		{"NotAFunc", 42},
		{"NilFunc", (func())(nil)},
		{"Variadic", func(xs ...int) {}},
		{"TooManyResults", func() (int, int, error) { return 0, 0, nil }},
		{"SecondResultNotError", func() (int, string) { return 0, "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Describe(tt.name, tt.fn)
			assert.Error(t, err)
		})
	}
}

func TestDescribeMethod(t *testing.T) {
	d, err := DescribeMethod(integration{}, PhaseBegin)
	require.NoError(t, err)
	assert.Equal(t, PhaseBegin, d.Phase)
	assert.Equal(t, "calltarget.integration.OnMethodBegin", d.Name)

	_, err = DescribeMethod(integration{}, PhaseAsyncEnd)
	require.Error(t, err)
	assert.Equal(t, schema.CodeMemberNotFound, schema.CodeOf(err))

	_, err = DescribeMethod(nil, PhaseBegin)
	assert.Error(t, err)
}

// =========================================================================
// Binding Tests
// =========================================================================

func TestBindInstanceModeUnconstrained(t *testing.T) {
	f := newFixture()
	d, err := Describe("OnBegin", func(instance any, arg1 string) string {
		return fmt.Sprintf("%T:%s", instance, arg1)
	})
	require.NoError(t, err)

	ep, err := f.binder.Bind(d, counterT, []reflect.Type{stringT})
	require.NoError(t, err)
	assert.True(t, ep.InstanceMode())
	assert.Equal(t, []reflect.Type{counterT, stringT}, ep.Slots)
	assert.Equal(t, counterT, ep.Target)

	got, err := Call[string](ep, &counter{}, "x")
	require.NoError(t, err)
	assert.Equal(t, "*calltarget.counter:x", got)
	assert.Zero(t, f.synth.Syntheses())
}

func TestBindInstanceLessMode(t *testing.T) {
	f := newFixture()
	d, err := Describe("OnBegin", func(first any, arg string) string {
		return fmt.Sprintf("%v:%s", first, arg)
	}, WithTarget(reflect.TypeOf(valueView{})))
	require.NoError(t, err)

	ep, err := f.binder.Bind(d, counterT, []reflect.Type{intT, stringT})
	require.NoError(t, err)
	assert.False(t, ep.InstanceMode())
	assert.Equal(t, []reflect.Type{intT, stringT}, ep.Slots)
	assert.Equal(t, reflect.TypeOf(&valueView{}), ep.Target)
	assert.Equal(t, int64(1), f.synth.Syntheses(), "slot 0 is resolved even when not passed")

	got, err := Call[string](ep, &counter{}, 5, "y")
	require.NoError(t, err)
	assert.Equal(t, "5:y", got)

	_, err = f.binder.Bind(d, reflect.TypeOf(&nameless{}), []reflect.Type{intT, stringT})
	assert.Equal(t, schema.CodeGeneration, schema.CodeOf(err))
}

func TestBindShapeConstrainedInstance(t *testing.T) {
	f := newFixture()
	d, err := Describe("OnBegin", func(instance *valueView, delta int) int {
		return instance.Value() + delta
	})
	require.NoError(t, err)

	ep, err := f.binder.Bind(d, counterT, []reflect.Type{intT})
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(&valueView{}), ep.Slots[0])

	got, err := Call[int](ep, &counter{Value: 40}, 2)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = ep.Invoke(&nameless{}, 2)
	assert.ErrorIs(t, err, schema.ErrTypeConstraintUnsatisfied)

	_, err = ep.Invoke(&counter{})
	assert.ErrorIs(t, err, schema.ErrParameterCountMismatch)
}

func TestBindPreconditions(t *testing.T) {
	tests := []struct {
		name     string
		fn       any
		instance reflect.Type
		args     []reflect.Type
		code     schema.Code
	}{
		{
			name:     "TooFewArguments",
			fn:       func(v *valueView, a, b int) {},
			instance: reflect.TypeOf(&nameless{}),
			args:     []reflect.Type{intT},
			code:     schema.CodeParameterCountMismatch,
		},
		{
			name:     "TooManyArguments",
			fn:       func(v *valueView) {},
			instance: reflect.TypeOf(&nameless{}),
			args:     []reflect.Type{intT, intT},
			code:     schema.CodeParameterCountMismatch,
		},
		{
			name:     "FixedInstance",
			fn:       func(c *counter, n int) {},
			instance: reflect.TypeOf(&nameless{}),
			args:     []reflect.Type{intT},
			code:     schema.CodeTypeConstraintUnsatisfied,
		},
		{
			name:     "InterfaceConstraint",
			fn:       func(s fmt.Stringer) {},
			instance: counterT,
			args:     nil,
			code:     schema.CodeTypeConstraintUnsatisfied,
		},
		{
			name:     "FixedArgument",
			fn:       func(instance any, n int) {},
			instance: counterT,
			args:     []reflect.Type{stringT},
			code:     schema.CodeTypeConstraintUnsatisfied,
		},
		{
			name:     "NilForValueParam",
			fn:       func(instance any, n int) {},
			instance: counterT,
			args:     []reflect.Type{nil},
			code:     schema.CodeTypeConstraintUnsatisfied,
		},
		{
			name:     "ShapeConstraint",
			fn:       func(v *valueView) {},
			instance: reflect.TypeOf(&nameless{}),
			args:     nil,
			code:     schema.CodeGeneration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			d, err := Describe(tt.name, tt.fn)
			require.NoError(t, err)

			_, err = f.binder.Bind(d, tt.instance, tt.args)
			require.Error(t, err)
			assert.Equal(t, tt.code, schema.CodeOf(err))
			if tt.code != schema.CodeGeneration {
				assert.Zero(t, f.synth.Syntheses())
			}
			assert.Equal(t, circuit.StateUnbound, f.binder.State(d, tt.instance, tt.args...))
		})
	}
}

func TestBindInterfaceConstraintSatisfied(t *testing.T) {
	d, err := Describe("cb", func(s fmt.Stringer) string { return s.String() })
	require.NoError(t, err)

	ep, err := Bind(d, reflect.TypeOf(time.Duration(0)), nil)
	require.NoError(t, err)
	got, err := Call[string](ep, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "2s", got)
}

func TestBindNilArgument(t *testing.T) {
	f := newFixture()
	d, err := Describe("cb", func(instance any, c *counter, v *valueView) bool {
		return c == nil && v == nil
	})
	require.NoError(t, err)

	inv := f.binder.TryGetOrBind(d, &counter{}, nil, nil)
	require.False(t, IsNoop(inv))
	got, err := Call[bool](inv, &counter{}, nil, nil)
	require.NoError(t, err)
	assert.True(t, got)
	assert.Zero(t, f.synth.Syntheses())
}

func TestBindAdaptsArguments(t *testing.T) {
	f := newFixture()
	d, err := Describe("cb", func(instance any, v *valueView) int { return v.Value() })
	require.NoError(t, err)

	got, err := Call[int](f.binder.TryGetOrBind(d, "anything", &counter{Value: 3}), "anything", &counter{Value: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

// =========================================================================
// Failure Containment Tests
// =========================================================================

func TestTryGetOrBindTripsOnce(t *testing.T) {
	f := newFixture()
	calls := 0
	d, err := Describe("OnBegin", func(instance *valueView) int {
		calls++
		return instance.Value()
	})
	require.NoError(t, err)

	inv := f.binder.TryGetOrBind(d, &nameless{ID: 1})
	assert.True(t, IsNoop(inv))
	got, err := Call[int](inv, &nameless{ID: 1})
	require.NoError(t, err)
	assert.Zero(t, got)

	syntheses, resolutions := f.synth.Syntheses(), f.resolver.Resolutions()
	assert.Equal(t, int64(1), syntheses)

	inv = f.binder.TryGetOrBind(d, &nameless{ID: 2})
	assert.True(t, IsNoop(inv))
	assert.Equal(t, syntheses, f.synth.Syntheses())
	assert.Equal(t, resolutions, f.resolver.Resolutions())
	assert.Zero(t, calls)

	assert.Equal(t, circuit.StateTripped, f.binder.State(d, reflect.TypeOf(&nameless{})))
	require.Len(t, f.events, 1)
	assert.Equal(t, schema.CodeGeneration, f.events[0].Kind)
	assert.Equal(t, schema.CodeMemberNotFound, schema.RootCode(f.events[0].Err))

	got, err = Call[int](f.binder.TryGetOrBind(d, &counter{Value: 9}), &counter{Value: 9})
	require.NoError(t, err)
	assert.Equal(t, 9, got, "other instance types are unaffected")
	assert.Equal(t, 1, calls)
}

func TestTripDisablesBoundEntryPoints(t *testing.T) {
	f := newFixture()
	d, err := Describe("cb", func(instance any, v *valueView) int { return v.Value() })
	require.NoError(t, err)

	inst := &counter{}
	ep, ok := f.binder.TryGetOrBind(d, inst, &counter{Value: 1}).(*EntryPoint)
	require.True(t, ok)
	assert.Equal(t, circuit.StateBound, f.binder.State(d, counterT, counterT))

	assert.True(t, IsNoop(f.binder.TryGetOrBind(d, inst, &nameless{})))
	assert.True(t, ep.Tripped())

	got, err := Call[int](ep, inst, &counter{Value: 1})
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.Equal(t, circuit.StateTripped, f.binder.State(d, counterT, counterT))
}

func TestBindAfterTripDoesNoWork(t *testing.T) {
	f := newFixture()
	d, err := Describe("OnBegin", func(instance *valueView) int { return instance.Value() })
	require.NoError(t, err)

	namelessT := reflect.TypeOf(&nameless{})
	require.True(t, IsNoop(f.binder.TryGetOrBind(d, &nameless{})))
	syntheses, resolutions := f.synth.Syntheses(), f.resolver.Resolutions()

	for i := 0; i < 3; i++ {
		_, err = f.binder.Bind(d, namelessT, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, schema.ErrBindingFailed)
	}
	assert.Equal(t, syntheses, f.synth.Syntheses())
	assert.Equal(t, resolutions, f.resolver.Resolutions())
	assert.Equal(t, circuit.StateTripped, f.binder.State(d, namelessT))
	assert.Len(t, f.events, 1)
}

func TestDeferredAdaptFailureTripsKey(t *testing.T) {
	f := newFixture()
	calls := 0
	d, err := Describe("OnBegin", func(instance *parcelView) int {
		calls++
		return instance.Payload().Value()
	})
	require.NoError(t, err)

	good := &parcel{Payload: &counter{Value: 4}}
	got, err := Call[int](f.binder.TryGetOrBind(d, good), good)
	require.NoError(t, err)
	assert.Equal(t, 4, got)

	bad := &parcel{Payload: &nameless{}}
	ep, ok := f.binder.TryGetOrBind(d, bad).(*EntryPoint)
	require.True(t, ok, "the instance type binds; the payload is only checked on read")

	for i := 0; i < 5; i++ {
		assert.NotPanics(t, func() {
			got, err = Call[int](f.binder.TryGetOrBind(d, bad), bad)
		})
		require.NoError(t, err)
		assert.Zero(t, got)
	}
	assert.True(t, ep.Tripped())
	assert.Equal(t, 2, calls, "only the first call with the bad payload reaches the callback")

	syntheses := f.synth.Syntheses()
	got, err = Call[int](ep, bad)
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.Equal(t, syntheses, f.synth.Syntheses())

	assert.Equal(t, circuit.StateTripped, f.binder.State(d, reflect.TypeOf(bad)))
	require.Len(t, f.events, 1)
	assert.Equal(t, schema.CodeGeneration, f.events[0].Kind)
	assert.Equal(t, schema.CodeMemberNotFound, schema.RootCode(f.events[0].Err))
}

func TestDeferredAdaptFailureWithoutBinder(t *testing.T) {
	d, err := Describe("OnBegin", func(instance *parcelView) int { return instance.Payload().Value() })
	require.NoError(t, err)

	ep, err := Bind(d, reflect.TypeOf(&parcel{}), nil)
	require.NoError(t, err)

	got, err := ep.Invoke(&parcel{Payload: "text"})
	assert.ErrorIs(t, err, schema.ErrGeneration)
	assert.Equal(t, 0, got)
}

func TestCallbackFailuresPropagate(t *testing.T) {
	f := newFixture()
	sentinel := errors.New("application failure")

	failing, err := Describe("failing", func(instance any) (int, error) { return 7, sentinel })
	require.NoError(t, err)
	got, err := Call[int](f.binder.TryGetOrBind(failing, inst()), inst())
	assert.Same(t, sentinel, err)
	assert.Equal(t, 7, got)

	panicking, err := Describe("panicking", func(instance any) { panic("boom") })
	require.NoError(t, err)
	inv := f.binder.TryGetOrBind(panicking, inst())
	assert.PanicsWithValue(t, "boom", func() { _, _ = inv.Invoke(inst()) })

	assert.Equal(t, circuit.StateBound, f.binder.State(failing, counterT))
	assert.Equal(t, circuit.StateBound, f.binder.State(panicking, counterT))
	assert.Empty(t, f.events)
}

func inst() *counter { return &counter{} }

func TestPhaseCallbacks(t *testing.T) {
	f := newFixture()
	begin, err := DescribeMethod(integration{}, PhaseBegin)
	require.NoError(t, err)
	end, err := DescribeMethod(integration{}, PhaseEnd)
	require.NoError(t, err)

	target := &counter{Value: 2}
	state, err := Call[State](f.binder.TryGetOrBind(begin, target, 3), target, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, state.Value)
	assert.GreaterOrEqual(t, state.Elapsed(), time.Duration(0))

	var appErr error
	ret, err := Call[Return[int]](f.binder.TryGetOrBind(end, target, NewReturn(4), appErr, state), target, NewReturn(4), appErr, state)
	require.NoError(t, err)
	assert.Equal(t, 20, ret.GetReturnValue())
}

func TestTryGetOrBindConcurrent(t *testing.T) {
	f := newFixture()
	d, err := Describe("cb", func(v *valueView) int { return v.Value() })
	require.NoError(t, err)

	const workers = 32
	results := make([]Invocable, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.binder.TryGetOrBind(d, &counter{Value: i})
		}(i)
	}
	wg.Wait()

	for _, inv := range results {
		assert.Same(t, results[0], inv)
	}
	assert.Equal(t, int64(1), f.binder.Bindings())
	assert.Equal(t, int64(1), f.synth.Syntheses())
}

func TestNilDescriptor(t *testing.T) {
	b := NewBinder()
	assert.True(t, IsNoop(b.TryGetOrBind(nil, 1)))
	_, err := b.Bind(nil, intT, nil)
	assert.ErrorIs(t, err, schema.ErrBindingFailed)
	assert.Equal(t, circuit.StateUnbound, b.State(nil, intT))
}
