package calltarget

import (
	"errors"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Konsultn-Engineering/ducktype/cache"
	"github.com/Konsultn-Engineering/ducktype/circuit"
	"github.com/Konsultn-Engineering/ducktype/duck"
	"github.com/Konsultn-Engineering/ducktype/schema"
	"github.com/Konsultn-Engineering/ducktype/utils"
)

type bindKey struct {
	callback uuid.UUID
	instance reflect.Type
	args     string
}

func (k bindKey) FlightKey() string {
	return k.callback.String() + ":" + utils.FingerprintTypes(k.instance) + ":" + k.args
}

// Hooks observe a Binder. Nil hooks are skipped.
type Hooks struct {
	// OnBind runs each time an entry point is built and published.
	OnBind func(ep *EntryPoint)
	// OnHit runs on every binding cache hit.
	OnHit func()
	// OnMiss runs on every binding cache miss.
	OnMiss func()
}

// Binder caches entry points and contains binding failures: the first
// failure for a (callback, instance type) key trips its latch and every
// later call for that key gets a no-op.
type Binder struct {
	synth    *duck.Synthesizer
	breaker  *circuit.Breaker
	bindings *cache.Flight[bindKey, *EntryPoint]
	hooks    Hooks
	bound    atomic.Int64
}

type Option func(*Binder)

func WithSynthesizer(s *duck.Synthesizer) Option {
	return func(b *Binder) { b.synth = s }
}

func WithBreaker(br *circuit.Breaker) Option {
	return func(b *Binder) { b.breaker = br }
}

func WithHooks(h Hooks) Option {
	return func(b *Binder) { b.hooks = h }
}

// NewBinder creates a binder. Without options it uses the default
// synthesizer and a breaker of its own.
func NewBinder(opts ...Option) *Binder {
	b := &Binder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.synth == nil {
		b.synth = duck.Default()
	}
	if b.breaker == nil {
		b.breaker = circuit.NewBreaker(circuit.Config{})
	}
	b.bindings = cache.NewFlight[bindKey, *EntryPoint](cache.Hooks{OnHit: b.hooks.OnHit, OnMiss: b.hooks.OnMiss})
	return b
}

// Synthesizer returns the synthesizer adapters are built with.
func (b *Binder) Synthesizer() *duck.Synthesizer {
	return b.synth
}

// Breaker returns the binder's breaker.
func (b *Binder) Breaker() *circuit.Breaker {
	return b.breaker
}

// Bindings returns how many entry points were built.
func (b *Binder) Bindings() int64 {
	return b.bound.Load()
}

// Bind returns the cached entry point for the given types, building it on
// first use. Failures are returned and not cached; the breaker is left
// alone. A key that has already tripped fails with BINDING_FAILED without
// any binding work.
func (b *Binder) Bind(d *Descriptor, instanceType reflect.Type, argTypes []reflect.Type) (*EntryPoint, error) {
	if d == nil {
		return bind(b.synth, d, instanceType, argTypes)
	}
	latchKey := circuit.Key{Callback: d.ID, Instance: instanceType}
	if b.breaker.Tripped(latchKey) {
		err := schema.Wrap(schema.CodeBindingFailed, errTripped, "callback %s disabled for %v", d.Name, instanceType)
		err.Type = instanceType
		return nil, err
	}

	key := bindKey{callback: d.ID, instance: instanceType, args: utils.TypeListKey(argTypes)}
	return b.bindings.GetOrCreate(key, func() (*EntryPoint, error) {
		ep, err := bind(b.synth, d, instanceType, argTypes)
		if err != nil {
			return nil, err
		}
		ep.latch = b.breaker.Latch(latchKey)
		ep.trip = func(cause error) { b.breaker.Trip(latchKey, cause) }
		b.bound.Add(1)
		if b.hooks.OnBind != nil {
			b.hooks.OnBind(ep)
		}
		return ep, nil
	})
}

var errTripped = errors.New("tripped")

// TryGetOrBind returns an invocable for the dynamic types of instance and
// args. It never fails: a binding error trips the key and yields a no-op,
// and a tripped key yields the no-op without any binding work.
func (b *Binder) TryGetOrBind(d *Descriptor, instance any, args ...any) Invocable {
	if d == nil {
		return noop{}
	}
	instanceType := reflect.TypeOf(instance)
	key := circuit.Key{Callback: d.ID, Instance: instanceType}
	if b.breaker.Tripped(key) {
		return noop{d: d}
	}

	argTypes := make([]reflect.Type, len(args))
	for i, a := range args {
		argTypes[i] = reflect.TypeOf(a)
	}
	ep, err := b.Bind(d, instanceType, argTypes)
	if err != nil {
		b.breaker.Trip(key, err)
		return noop{d: d}
	}
	return ep
}

// State reports the binding state for the given types.
func (b *Binder) State(d *Descriptor, instanceType reflect.Type, argTypes ...reflect.Type) circuit.State {
	if d == nil {
		return circuit.StateUnbound
	}
	if b.breaker.Tripped(circuit.Key{Callback: d.ID, Instance: instanceType}) {
		return circuit.StateTripped
	}
	key := bindKey{callback: d.ID, instance: instanceType, args: utils.TypeListKey(argTypes)}
	if _, ok := b.bindings.Load(key); ok {
		return circuit.StateBound
	}
	if b.bindings.Pending(key) {
		return circuit.StateBinding
	}
	return circuit.StateUnbound
}
