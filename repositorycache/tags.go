package repositorycache

import (
	"context"
)

// CacheMode controls how a single call interacts with the second-level cache.
type CacheMode int

const (
	// CacheModeUse reads from the cache and stores what the store returns.
	CacheModeUse CacheMode = iota
	// CacheModeBypass neither reads from nor writes to the cache.
	CacheModeBypass
	// CacheModeRefresh skips the cache read but stores the loaded entity,
	// replacing whatever was cached.
	CacheModeRefresh
)

func (m CacheMode) String() string {
	switch m {
	case CacheModeBypass:
		return "bypass"
	case CacheModeRefresh:
		return "refresh"
	default:
		return "use"
	}
}

type cacheModeContextKey struct{}

// WithCacheMode attaches a cache mode to the context for the reads made with it.
func WithCacheMode(ctx context.Context, mode CacheMode) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, cacheModeContextKey{}, mode)
}

// CacheModeFromContext returns the mode attached to ctx, CacheModeUse by default.
func CacheModeFromContext(ctx context.Context) CacheMode {
	if ctx == nil {
		return CacheModeUse
	}
	if mode, ok := ctx.Value(cacheModeContextKey{}).(CacheMode); ok {
		return mode
	}
	return CacheModeUse
}

func (m CacheMode) reads() bool  { return m == CacheModeUse }
func (m CacheMode) stores() bool { return m != CacheModeBypass }
