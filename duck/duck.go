package duck

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/Konsultn-Engineering/ducktype/cache"
	"github.com/Konsultn-Engineering/ducktype/schema"
	"github.com/Konsultn-Engineering/ducktype/utils"
)

// Shape is the marker embedded by every shape struct.
type Shape = schema.Shape

type adapterKey struct {
	source reflect.Type
	shape  reflect.Type
}

func (k adapterKey) FlightKey() string {
	return utils.FingerprintTypes(k.source, k.shape)
}

// Hooks observe the synthesizer. Nil hooks are skipped.
type Hooks struct {
	// OnSynthesize runs each time a forwarding plan is actually built.
	OnSynthesize func(source, shape reflect.Type)
	// OnHit runs on every adapter cache hit.
	OnHit func()
	// OnMiss runs on every adapter cache miss.
	OnMiss func()
	// OnDeferredFailure runs once per (dynamic type, shape) pair when an
	// interface-typed member holds a value that cannot be adapted to the
	// nested shape. Later reads of such values fail without synthesizing.
	OnDeferredFailure func(source, shape reflect.Type, err error)
}

// Synthesizer builds and caches adapters.
type Synthesizer struct {
	resolver  *schema.Context
	entries   *cache.Flight[adapterKey, *Entry]
	hooks     Hooks
	syntheses atomic.Int64
	failed    sync.Map // map[adapterKey]error, deferred pairs only
}

type Option func(*Synthesizer)

// WithResolver sets the member resolution context.
func WithResolver(ctx *schema.Context) Option {
	return func(s *Synthesizer) { s.resolver = ctx }
}

// WithHooks installs observation hooks.
func WithHooks(h Hooks) Option {
	return func(s *Synthesizer) { s.hooks = h }
}

// New creates a synthesizer with its own adapter cache.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{resolver: schema.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.entries = cache.NewFlight[adapterKey, *Entry](cache.Hooks{OnHit: s.hooks.OnHit, OnMiss: s.hooks.OnMiss})
	return s
}

var defaultSynthesizer = New()

// Default returns the process-wide synthesizer.
func Default() *Synthesizer {
	return defaultSynthesizer
}

// Syntheses returns how many forwarding plans were built.
func (s *Synthesizer) Syntheses() int64 {
	return s.syntheses.Load()
}

// Len returns the number of cached adapters.
func (s *Synthesizer) Len() int {
	return s.entries.Len()
}

// Resolver returns the member resolution context.
func (s *Synthesizer) Resolver() *schema.Context {
	return s.resolver
}

// GetOrCreate returns the adapter of source to shape (S or *S), building it
// on first use. Every call for a pair that adapts returns the same *Entry.
// A pair that does not adapt fails with a GENERATION_FAILED error wrapping
// the resolution error, and nothing is cached for it.
func (s *Synthesizer) GetOrCreate(source, shape reflect.Type) (*Entry, error) {
	st := schema.ShapeOf(shape)
	if st == nil {
		_, err := schema.ParseShape(shape)
		return nil, &schema.Error{Code: schema.CodeGeneration, Message: "not a shape", Type: source, Shape: shape, Cause: err}
	}
	if source == nil {
		return nil, &schema.Error{Code: schema.CodeGeneration, Message: "nil source type", Shape: st}
	}

	key := adapterKey{source: source, shape: st}
	return s.entries.GetOrCreate(key, func() (*Entry, error) {
		building := make(map[adapterKey]*Entry)
		entry, err := s.synthesize(key, building)
		if err != nil {
			return nil, err
		}
		for k, nested := range building {
			if k != key {
				s.entries.Publish(k, nested)
			}
		}
		return entry, nil
	})
}

// synthesize builds the entry for key. Entries under construction are kept
// in building so that shapes reachable from themselves terminate.
func (s *Synthesizer) synthesize(key adapterKey, building map[adapterKey]*Entry) (*Entry, error) {
	if e, ok := s.entries.Load(key); ok {
		return e, nil
	}
	if e, ok := building[key]; ok {
		return e, nil
	}

	info, err := schema.ParseShape(key.shape)
	if err != nil {
		return nil, s.generationError(key, "", err)
	}

	s.syntheses.Add(1)
	if s.hooks.OnSynthesize != nil {
		s.hooks.OnSynthesize(key.source, key.shape)
	}

	entry := &Entry{
		Source: key.source,
		Shape:  key.shape,
		Type:   reflect.PointerTo(key.shape),
		Plan:   make([]Step, 0, len(info.Members)),
		marker: info.Marker,
		synth:  s,
	}
	building[key] = entry

	for _, d := range info.Members {
		rm, err := s.resolver.Resolve(key.source, d)
		if err != nil {
			return nil, s.generationError(key, d.DeclaredName, err)
		}

		step := Step{Field: d.Index, Member: rm}
		switch d.Access {
		case schema.AccessGet:
			step.Value, err = s.nestedFor(rm.Type, d.ValueType, building)
		case schema.AccessCall:
			step.Results = make([]nested, d.Func.NumOut())
			for i := range step.Results {
				if step.Results[i], err = s.nestedFor(rm.Type.Out(i), d.Func.Out(i), building); err != nil {
					break
				}
			}
		}
		if err != nil {
			return nil, s.generationError(key, d.DeclaredName, err)
		}
		entry.Plan = append(entry.Plan, step)
	}
	return entry, nil
}

// nestedFor decides how values of memberType are delivered as target. Only
// shape targets need an adapter; interface-typed members are adapted against
// their dynamic type when read.
func (s *Synthesizer) nestedFor(memberType, target reflect.Type, building map[adapterKey]*Entry) (nested, error) {
	shape := schema.ShapeOf(target)
	if shape == nil || memberType == target {
		return nested{}, nil
	}
	if memberType.Kind() == reflect.Interface {
		return nested{shape: shape}, nil
	}
	e, err := s.synthesize(adapterKey{source: memberType, shape: shape}, building)
	if err != nil {
		return nested{}, err
	}
	return nested{entry: e}, nil
}

func (s *Synthesizer) generationError(key adapterKey, member string, cause error) error {
	return &schema.Error{
		Code:    schema.CodeGeneration,
		Message: fmt.Sprintf("cannot adapt %s to %s", key.source, key.shape),
		Member:  member,
		Type:    key.source,
		Shape:   key.shape,
		Cause:   cause,
	}
}

// AdaptValue returns a *S adapter around instance for shape S (given as S or
// *S). A nil instance yields a nil adapter. An instance that already is a *S
// adapter is returned unchanged.
func (s *Synthesizer) AdaptValue(instance any, shape reflect.Type) (any, error) {
	st := schema.ShapeOf(shape)
	if st == nil {
		_, err := s.GetOrCreate(reflect.TypeOf(instance), shape)
		return nil, err
	}
	ptrType := reflect.PointerTo(st)
	if instance == nil {
		return reflect.Zero(ptrType).Interface(), nil
	}

	v := reflect.ValueOf(instance)
	if v.Type() == ptrType {
		return instance, nil
	}
	e, err := s.GetOrCreate(v.Type(), st)
	if err != nil {
		return nil, err
	}
	return e.NewValue(v).Interface(), nil
}

// Adapt returns a *S adapter around instance.
func Adapt[S any](s *Synthesizer, instance any) (*S, error) {
	v, err := s.AdaptValue(instance, reflect.TypeOf((*S)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	return v.(*S), nil
}
