package session

import (
	"context"
	"log/slog"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-entity-session/cache"
	"github.com/goliatone/go-entity-session/registry"
	"github.com/goliatone/go-entity-session/repositorycache"
	"github.com/goliatone/go-entity-session/store"
)

// Factory is the process-wide context sessions are created from. It owns
// nothing but references: the store, the registry and the shared cache are
// passed in and outlive it.
type Factory struct {
	store    *store.Store
	registry *registry.Registry
	cache    cache.SecondLevelCache
	logger   *slog.Logger
	repos    *xsync.MapOf[registry.EntityType, *repositorycache.CachedRepository]
}

// Option customizes a Factory.
type Option func(*Factory)

// WithLogger sets the logger sessions log transaction outcomes to.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactory creates a factory. A nil cache disables second-level caching.
func NewFactory(s *store.Store, r *registry.Registry, c cache.SecondLevelCache, opts ...Option) (*Factory, error) {
	if s == nil || r == nil {
		return nil, goerrors.New("session factory requires a store and a registry", goerrors.CategoryBadInput)
	}
	if c == nil {
		var err error
		if c, err = cache.New(cache.Config{Enabled: false}); err != nil {
			return nil, err
		}
	}

	f := &Factory{
		store:    s,
		registry: r,
		cache:    c,
		logger:   slog.Default(),
		repos:    xsync.NewMapOf[registry.EntityType, *repositorycache.CachedRepository](),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// NewSession opens a session. Sessions are cheap and serve a single caller.
func (f *Factory) NewSession() *Session {
	id := uuid.New()
	return &Session{
		id:      id,
		factory: f,
		logger:  f.logger.With("session", id.String()),
		managed: make(map[cache.EntityKey]*entry),
		tracked: make(map[any]*entry),
	}
}

// Store returns the store sessions read from and write to.
func (f *Factory) Store() *store.Store { return f.store }

// Registry returns the entity registry.
func (f *Factory) Registry() *registry.Registry { return f.registry }

// Cache returns the shared second-level cache.
func (f *Factory) Cache() cache.SecondLevelCache { return f.cache }

// Close evicts the whole shared cache. The store is left open for its owner
// to close.
func (f *Factory) Close(ctx context.Context) error {
	f.repos.Clear()
	return f.cache.EvictAll(ctx)
}

func (f *Factory) repository(m registry.Mapping) (*repositorycache.CachedRepository, error) {
	if repo, ok := f.repos.Load(m.Type); ok {
		return repo, nil
	}
	base, err := store.NewRepository(f.store, m)
	if err != nil {
		return nil, err
	}
	repo, _ := f.repos.LoadOrStore(m.Type, repositorycache.New(base, f.cache, f.logger))
	return repo, nil
}
