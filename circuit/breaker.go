package circuit

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/Konsultn-Engineering/ducktype/schema"
	"github.com/Konsultn-Engineering/ducktype/utils"
)

// State represents the binding state of one (callback, instance type) key
type State int

const (
	// StateUnbound - nothing has been attempted for the key yet
	StateUnbound State = iota
	// StateBinding - a bind is in progress
	StateBinding
	// StateBound - an entry point was published and is reused forever
	StateBound
	// StateTripped - binding failed; calls for the key are no-ops forever
	StateTripped
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "UNBOUND"
	case StateBinding:
		return "BINDING"
	case StateBound:
		return "BOUND"
	case StateTripped:
		return "TRIPPED"
	default:
		return "UNKNOWN"
	}
}

// Key identifies a breaker latch.
type Key struct {
	Callback uuid.UUID
	Instance reflect.Type
}

func (k Key) String() string {
	name := "<nil>"
	if k.Instance != nil {
		name = k.Instance.String()
	}
	return k.Callback.String() + "/" + name
}

func (k Key) hash() uint32 {
	id := binary.BigEndian.Uint64(k.Callback[:8]) ^ binary.BigEndian.Uint64(k.Callback[8:])
	return utils.Shard(utils.Mix64(id, utils.TypeID(k.Instance)))
}

// Latch is a one-way switch. Once tripped it never resets.
type Latch struct {
	tripped atomic.Bool
}

// Tripped reports whether the latch has been tripped.
func (l *Latch) Tripped() bool {
	return l != nil && l.tripped.Load()
}

// Event is emitted once per key when it trips.
type Event struct {
	ID   ulid.ULID
	Key  Key
	Kind schema.Code
	Err  error
	At   time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("trip %s %s: %s", e.Key, e.Kind, e.Err)
}

// Config contains breaker configuration
type Config struct {
	// Function called once for every key that trips
	OnTrip func(Event)
}

// Breaker holds the latches of all keys. Keys are never removed.
type Breaker struct {
	latches cmap.ConcurrentMap[Key, *Latch]
	onTrip  func(Event)
	trips   atomic.Int64
}

// NewBreaker creates a new breaker
func NewBreaker(config Config) *Breaker {
	return &Breaker{
		latches: cmap.NewWithCustomShardingFunction[Key, *Latch](Key.hash),
		onTrip:  config.OnTrip,
	}
}

// Latch returns the latch of key, creating it untripped.
func (b *Breaker) Latch(key Key) *Latch {
	if l, ok := b.latches.Get(key); ok {
		return l
	}
	l := &Latch{}
	if b.latches.SetIfAbsent(key, l) {
		return l
	}
	l, _ = b.latches.Get(key)
	return l
}

// Trip trips the latch of key. Only the first caller for a key gets true
// and fires OnTrip; later calls are ignored.
func (b *Breaker) Trip(key Key, err error) bool {
	if !b.Latch(key).tripped.CompareAndSwap(false, true) {
		return false
	}
	b.trips.Add(1)

	if b.onTrip != nil {
		kind := schema.CodeOf(err)
		if kind == "" {
			kind = schema.CodeBindingFailed
		}
		b.onTrip(Event{
			ID:   ulid.Make(),
			Key:  key,
			Kind: kind,
			Err:  err,
			At:   time.Now(),
		})
	}
	return true
}

// Tripped reports whether key has tripped.
func (b *Breaker) Tripped(key Key) bool {
	l, ok := b.latches.Get(key)
	return ok && l.Tripped()
}

// Count returns the number of known keys.
func (b *Breaker) Count() int {
	return b.latches.Count()
}

// Trips returns the number of keys that tripped.
func (b *Breaker) Trips() int64 {
	return b.trips.Load()
}

// TrippedKeys returns all tripped keys in no particular order.
func (b *Breaker) TrippedKeys() []Key {
	var keys []Key
	for item := range b.latches.IterBuffered() {
		if item.Val.Tripped() {
			keys = append(keys, item.Key)
		}
	}
	return keys
}
