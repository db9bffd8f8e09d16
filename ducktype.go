// Package ducktype lets instrumentation callbacks written against structural
// shapes run on values whose concrete types are only known at run time.
//
// A shape is a struct embedding Shape with one func field per member:
//
//	type Request struct {
//		ducktype.Shape
//		Method func() string `duck:"name:method;nonpublic"`
//		URL    func() *url.URL
//	}
//
// Callbacks taking *Request are bound to whatever instance type shows up at
// the call site. When a type does not fit, the callback is disabled for that
// type and the call becomes a no-op:
//
//	begin, _ := ducktype.Describe("http.OnBegin", func(r *Request) ducktype.State {
//		return ducktype.NewState(r.Method())
//	})
//	state, err := ducktype.Invoke(begin, req)
package ducktype

import (
	"log/slog"
	"os"
	"reflect"
	"sync"

	"github.com/Konsultn-Engineering/ducktype/calltarget"
	"github.com/Konsultn-Engineering/ducktype/circuit"
	"github.com/Konsultn-Engineering/ducktype/duck"
	"github.com/Konsultn-Engineering/ducktype/engine"
	"github.com/Konsultn-Engineering/ducktype/schema"
)

type (
	Shape      = duck.Shape
	Engine     = engine.Engine
	Option     = engine.Option
	Descriptor = calltarget.Descriptor
	Invocable  = calltarget.Invocable
	EntryPoint = calltarget.EntryPoint
	Phase      = calltarget.Phase
	State      = calltarget.State
	TripEvent  = circuit.Event
	Error      = schema.Error
)

type Return[T any] = calltarget.Return[T]

const (
	PhaseBegin    = calltarget.PhaseBegin
	PhaseEnd      = calltarget.PhaseEnd
	PhaseAsyncEnd = calltarget.PhaseAsyncEnd
)

var (
	ErrMemberNotFound            = schema.ErrMemberNotFound
	ErrAmbiguousMember           = schema.ErrAmbiguousMember
	ErrGeneration                = schema.ErrGeneration
	ErrParameterCountMismatch    = schema.ErrParameterCountMismatch
	ErrTypeConstraintUnsatisfied = schema.ErrTypeConstraintUnsatisfied
	ErrBindingFailed             = schema.ErrBindingFailed
)

// Options of New. The default engine reads DUCKTYPE_* environment variables
// and, when DUCKTYPE_CONFIG_FILE is set, that YAML file first.
var (
	WithConfig     = engine.WithConfig
	WithConfigFile = engine.WithConfigFile
	WithEnv        = engine.WithEnv
	WithLogger     = engine.WithLogger
	WithOnTrip     = engine.WithOnTrip
)

// New creates an engine independent of the default one.
func New(opts ...Option) (*Engine, error) {
	return engine.New(opts...)
}

var defaultEngine = sync.OnceValue(func() *Engine {
	opts := []Option{engine.WithEnv()}
	if path := os.Getenv("DUCKTYPE_CONFIG_FILE"); path != "" {
		opts = append(opts, engine.WithConfigFile(path))
	}
	e, err := engine.New(opts...)
	if err == nil {
		return e
	}

	fallback, ferr := engine.New()
	if ferr != nil {
		panic("ducktype: default engine: " + ferr.Error())
	}
	fallback.Logger().Error("ignoring invalid configuration", slog.Any("error", err))
	return fallback
})

// Default returns the process-wide engine.
func Default() *Engine {
	return defaultEngine()
}

func Describe(name string, fn any, opts ...calltarget.DescribeOption) (*Descriptor, error) {
	return Default().Describe(name, fn, opts...)
}

func DescribeMethod(integration any, phase Phase, opts ...calltarget.DescribeOption) (*Descriptor, error) {
	return Default().DescribeMethod(integration, phase, opts...)
}

// TryGetOrBind returns the invocable of d for the dynamic types of instance
// and args on the default engine. It never fails.
func TryGetOrBind(d *Descriptor, instance any, args ...any) Invocable {
	return Default().TryGetOrBind(d, instance, args...)
}

// Invoke binds and calls d on the default engine.
func Invoke(d *Descriptor, instance any, args ...any) (any, error) {
	return Default().Invoke(d, instance, args...)
}

// Adapt returns a *S adapter around instance using the default engine.
func Adapt[S any](instance any) (*S, error) {
	return engine.Adapt[S](Default(), instance)
}

// AdaptValue is Adapt for a shape known only at run time.
func AdaptValue(instance any, shape reflect.Type) (any, error) {
	return Default().Adapt(instance, shape)
}

func NewState(v any) State {
	return calltarget.NewState(v)
}

func NewReturn[T any](v T) Return[T] {
	return calltarget.NewReturn(v)
}

// Call invokes inv and converts its result to R.
func Call[R any](inv Invocable, instance any, args ...any) (R, error) {
	return calltarget.Call[R](inv, instance, args...)
}
