package di

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-entity-session/cache"
	"github.com/goliatone/go-entity-session/registry"
	"github.com/goliatone/go-entity-session/session"
	"github.com/goliatone/go-entity-session/store"
)

// Config groups the options of every component the container builds.
type Config struct {
	Store    store.Config `json:"store" yaml:"store"`
	Cache    cache.Config `json:"cache" yaml:"cache"`
	LogLevel slog.Level   `env:"ENTITY_LOG_LEVEL" envDefault:"INFO" json:"log_level" yaml:"log_level"`
}

// DefaultConfig returns an in-memory sqlite store with an enabled map cache.
func DefaultConfig() Config {
	return Config{
		Store:    store.DefaultConfig(),
		Cache:    cache.DefaultConfig(),
		LogLevel: slog.LevelInfo,
	}
}

// Validate checks the store and cache configuration.
func (c Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Cache.Enabled {
		return c.Cache.Validate()
	}
	return nil
}

// LoadConfig reads the configuration from ENTITY_* environment variables,
// falling back to the envDefault values.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryValidation, "load config from environment")
	}
	return cfg, nil
}

// Container owns the process-wide collaborators: the store, the entity
// registry, the second-level cache and the session factory built on them.
type Container struct {
	config    Config
	logger    *slog.Logger
	store     *store.Store
	ownsStore bool
	registry  *registry.Registry
	cache     cache.SecondLevelCache
	factory   *session.Factory
}

// Option customizes NewContainer.
type Option func(*Container)

// WithLogger sets the logger shared by every component. Without it the
// container logs text to stderr at Config.LogLevel.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStore uses an already open store instead of opening Config.Store.
// The container does not close it.
func WithStore(s *store.Store) Option {
	return func(c *Container) {
		c.store = s
	}
}

// WithRegistry uses r instead of an empty registry.
func WithRegistry(r *registry.Registry) Option {
	return func(c *Container) {
		c.registry = r
	}
}

// NewContainer validates cfg and wires the store, registry, cache and
// session factory. Entities are registered afterwards with RegisterModel.
func NewContainer(ctx context.Context, cfg Config, opts ...Option) (*Container, error) {
	c := &Container{config: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	}

	if c.store == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		s, err := store.Open(ctx, cfg.Store, store.WithLogger(c.logger))
		if err != nil {
			return nil, err
		}
		c.store = s
		c.ownsStore = true
	} else if cfg.Cache.Enabled {
		if err := cfg.Cache.Validate(); err != nil {
			return nil, err
		}
	}

	if c.registry == nil {
		c.registry = registry.New()
	}

	lc, err := cache.New(cfg.Cache)
	if err != nil {
		c.closeStore()
		return nil, err
	}
	c.cache = lc

	f, err := session.NewFactory(c.store, c.registry, c.cache, session.WithLogger(c.logger))
	if err != nil {
		c.closeStore()
		return nil, err
	}
	c.factory = f

	c.logger.DebugContext(ctx, "container ready",
		"store", cfg.Store.URI,
		"cache_enabled", cfg.Cache.Enabled,
		"cache_provider", cfg.Cache.Provider,
	)
	return c, nil
}

// NewContainerWithDefaults builds a container from DefaultConfig.
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	return NewContainer(ctx, DefaultConfig(), opts...)
}

// RegisterModel registers a bun model with the container's registry.
func (c *Container) RegisterModel(model any, opts ...registry.ModelOption) (registry.Mapping, error) {
	return c.registry.RegisterModel(c.store.DB(), model, opts...)
}

// NewSession opens a session on the container's factory.
func (c *Container) NewSession() *session.Session {
	return c.factory.NewSession()
}

// Config returns the configuration the container was built with.
func (c *Container) Config() Config { return c.config }

func (c *Container) Logger() *slog.Logger { return c.logger }

func (c *Container) Store() *store.Store { return c.store }

func (c *Container) Registry() *registry.Registry { return c.registry }

func (c *Container) Cache() cache.SecondLevelCache { return c.cache }

func (c *Container) Factory() *session.Factory { return c.factory }

// Close evicts the whole cache and closes the store if the container opened it.
func (c *Container) Close(ctx context.Context) error {
	err := c.factory.Close(ctx)
	if c.ownsStore {
		err = errors.Join(err, c.store.Close())
	}
	return err
}

func (c *Container) closeStore() {
	if c.ownsStore {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("close store", "error", err)
		}
	}
}
