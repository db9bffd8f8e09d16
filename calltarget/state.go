package calltarget

import "time"

// State is handed from a begin callback to the matching end callback.
type State struct {
	Value     any
	StartedAt time.Time
}

// NewState returns a State carrying v, stamped with the current time.
func NewState(v any) State {
	return State{Value: v, StartedAt: time.Now()}
}

// Elapsed returns the time since the begin callback created the state.
func (s State) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return time.Since(s.StartedAt)
}

// Return wraps the intercepted method's return value for end callbacks,
// which may replace it.
type Return[T any] struct {
	value T
}

func NewReturn[T any](v T) Return[T] {
	return Return[T]{value: v}
}

func (r Return[T]) GetReturnValue() T {
	return r.value
}
