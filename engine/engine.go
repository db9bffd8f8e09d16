// Package engine ties adapter synthesis, callback binding and failure
// containment together with logging, metrics and configuration.
package engine

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Konsultn-Engineering/ducktype/calltarget"
	"github.com/Konsultn-Engineering/ducktype/circuit"
	"github.com/Konsultn-Engineering/ducktype/config"
	"github.com/Konsultn-Engineering/ducktype/duck"
	"github.com/Konsultn-Engineering/ducktype/metrics"
	"github.com/Konsultn-Engineering/ducktype/schema"
)

type Engine struct {
	config   config.Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	resolver *schema.Context
	synth    *duck.Synthesizer
	breaker  *circuit.Breaker
	binder   *calltarget.Binder
	onTrip   func(circuit.Event)

	names sync.Map // map[uuid.UUID]string
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Resolutions int64
	Syntheses   int64
	Adapters    int
	Bindings    int64
	Keys        int
	Trips       int64
	// Tripped lists the disabled (callback, instance type) keys.
	Tripped []circuit.Key
}

func New(opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := o.resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := o.logger
	if logger == nil {
		if logger, err = newLogger(cfg.Logging, nil); err != nil {
			return nil, err
		}
	}

	collector, err := metrics.NewCollector(cfg.Metrics, o.registerer)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:  cfg,
		logger:  logger,
		metrics: collector,
		onTrip:  o.onTrip,
	}

	e.resolver = schema.New(
		schema.WithCacheSize(cfg.Resolver.CacheSize),
		schema.WithCaseSensitive(cfg.Resolver.CaseSensitive),
		schema.WithEmbedded(cfg.Resolver.Embedded),
	)
	e.synth = duck.New(
		duck.WithResolver(e.resolver),
		duck.WithHooks(duck.Hooks{
			OnSynthesize:      e.synthesized,
			OnHit:             func() { collector.RecordCacheHit(metrics.CacheAdapter) },
			OnMiss:            func() { collector.RecordCacheMiss(metrics.CacheAdapter) },
			OnDeferredFailure: e.deferredFailure,
		}),
	)
	e.breaker = circuit.NewBreaker(circuit.Config{OnTrip: e.tripped})
	e.binder = calltarget.NewBinder(
		calltarget.WithSynthesizer(e.synth),
		calltarget.WithBreaker(e.breaker),
		calltarget.WithHooks(calltarget.Hooks{
			OnBind: e.bound,
			OnHit:  func() { collector.RecordCacheHit(metrics.CacheBinding) },
			OnMiss: func() { collector.RecordCacheMiss(metrics.CacheBinding) },
		}),
	)
	return e, nil
}

// Describe builds a callback descriptor and remembers its name for logs.
func (e *Engine) Describe(name string, fn any, opts ...calltarget.DescribeOption) (*calltarget.Descriptor, error) {
	d, err := calltarget.Describe(name, fn, opts...)
	if err != nil {
		return nil, err
	}
	e.names.Store(d.ID, d.Name)
	return d, nil
}

// DescribeMethod describes the phase method of an integration.
func (e *Engine) DescribeMethod(integration any, phase calltarget.Phase, opts ...calltarget.DescribeOption) (*calltarget.Descriptor, error) {
	d, err := calltarget.DescribeMethod(integration, phase, opts...)
	if err != nil {
		return nil, err
	}
	e.names.Store(d.ID, d.Name)
	return d, nil
}

// TryGetOrBind returns the invocable for the dynamic types of instance and
// args. Binding failures are logged once and turn into a no-op.
func (e *Engine) TryGetOrBind(d *calltarget.Descriptor, instance any, args ...any) calltarget.Invocable {
	if d != nil {
		e.names.LoadOrStore(d.ID, d.Name)
	}
	return e.binder.TryGetOrBind(d, instance, args...)
}

// Invoke binds and calls d in one step.
func (e *Engine) Invoke(d *calltarget.Descriptor, instance any, args ...any) (any, error) {
	return e.TryGetOrBind(d, instance, args...).Invoke(instance, args...)
}

// Bind returns the cached entry point for the given types. Unlike
// TryGetOrBind, errors are returned and nothing trips. Keys that already
// tripped fail with BINDING_FAILED.
func (e *Engine) Bind(d *calltarget.Descriptor, instanceType reflect.Type, argTypes ...reflect.Type) (*calltarget.EntryPoint, error) {
	return e.binder.Bind(d, instanceType, argTypes)
}

// Adapt returns an adapter around instance for shape (S or *S). Failures
// are returned to the caller and never trip anything.
func (e *Engine) Adapt(instance any, shape reflect.Type) (any, error) {
	return e.synth.AdaptValue(instance, shape)
}

// Adapt returns a *S adapter around instance.
func Adapt[S any](e *Engine, instance any) (*S, error) {
	return duck.Adapt[S](e.synth, instance)
}

// State reports the binding state of d for the given types.
func (e *Engine) State(d *calltarget.Descriptor, instanceType reflect.Type, argTypes ...reflect.Type) circuit.State {
	return e.binder.State(d, instanceType, argTypes...)
}

func (e *Engine) Stats() Stats {
	return Stats{
		Resolutions: e.resolver.Resolutions(),
		Syntheses:   e.synth.Syntheses(),
		Adapters:    e.synth.Len(),
		Bindings:    e.binder.Bindings(),
		Keys:        e.breaker.Count(),
		Trips:       e.breaker.Trips(),
		Tripped:     e.breaker.TrippedKeys(),
	}
}

func (e *Engine) Config() config.Config {
	return e.config
}

func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Gatherer returns the registry the engine's metrics can be read from.
func (e *Engine) Gatherer() prometheus.Gatherer {
	return e.metrics.Gatherer()
}

func (e *Engine) callbackName(key circuit.Key) string {
	if name, ok := e.names.Load(key.Callback); ok {
		return name.(string)
	}
	return key.Callback.String()
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func (e *Engine) synthesized(source, shape reflect.Type) {
	e.metrics.RecordSynthesis(metrics.CacheAdapter)
	e.logger.Debug("adapter synthesized",
		slog.String("source", typeName(source)),
		slog.String("shape", typeName(shape)),
	)
}

func (e *Engine) deferredFailure(source, shape reflect.Type, err error) {
	e.logger.Debug("nested value not adaptable",
		slog.String("source", typeName(source)),
		slog.String("shape", typeName(shape)),
		slog.Any("error", err),
	)
}

func (e *Engine) bound(ep *calltarget.EntryPoint) {
	e.metrics.RecordBinding()
	e.logger.Debug("callback bound",
		slog.String("callback", ep.Descriptor.Name),
		slog.String("instance_type", typeName(ep.Instance)),
		slog.Bool("instance_mode", ep.InstanceMode()),
	)
}

func (e *Engine) tripped(ev circuit.Event) {
	e.metrics.RecordTrip(string(ev.Kind))
	e.logger.Warn("callback disabled after binding failure",
		slog.String("callback", e.callbackName(ev.Key)),
		slog.String("instance_type", typeName(ev.Key.Instance)),
		slog.String("kind", string(ev.Kind)),
		slog.Any("error", ev.Err),
		slog.String("event_id", ev.ID.String()),
	)
	if e.onTrip != nil {
		e.onTrip(ev)
	}
}
