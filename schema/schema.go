package schema

import (
	"reflect"
	"sync/atomic"

	"github.com/Konsultn-Engineering/ducktype/cache"
)

// DefaultCacheSize is the default number of memoised resolutions.
const DefaultCacheSize = 1024

type memoKey struct {
	source reflect.Type
	desc   MemberDescriptor
}

// Context holds the member resolution policy and its memo table.
type Context struct {
	// Configuration
	caseSensitive bool
	embedded      bool
	cacheSize     int

	memo        *cache.Memo[memoKey, *ResolvedMember]
	resolutions atomic.Int64
}

type Option func(*Context)

// WithCaseSensitive disables the case-insensitive fallback used when no
// member matches the exact name.
func WithCaseSensitive(sensitive bool) Option {
	return func(ctx *Context) { ctx.caseSensitive = sensitive }
}

// WithEmbedded enables or disables searching fields promoted from embedded
// structs.
func WithEmbedded(enabled bool) Option {
	return func(ctx *Context) { ctx.embedded = enabled }
}

// WithCacheSize sets the LRU size for memoised resolutions. Zero disables
// memoisation.
func WithCacheSize(size int) Option {
	return func(ctx *Context) { ctx.cacheSize = size }
}

// New creates a resolution context.
func New(options ...Option) *Context {
	ctx := &Context{
		caseSensitive: false,
		embedded:      true,
		cacheSize:     DefaultCacheSize,
	}

	for _, opt := range options {
		opt(ctx)
	}

	memo, err := cache.NewMemo[memoKey, *ResolvedMember](ctx.cacheSize)
	if err != nil {
		// Sizes the LRU rejects run without a memo.
		memo, _ = cache.NewMemo[memoKey, *ResolvedMember](0)
	}
	ctx.memo = memo
	return ctx
}

var defaultContext = New()

// Default returns the process-wide resolution context.
func Default() *Context {
	return defaultContext
}

// Resolutions returns how many resolutions were computed rather than served
// from the memo.
func (ctx *Context) Resolutions() int64 {
	return ctx.resolutions.Load()
}

// CaseSensitive reports whether the case-insensitive fallback is disabled.
func (ctx *Context) CaseSensitive() bool {
	return ctx.caseSensitive
}

// Embedded reports whether promoted fields are searched.
func (ctx *Context) Embedded() bool {
	return ctx.embedded
}
