package repositorycache

import (
	"context"
	"log/slog"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity-session/cache"
	"github.com/goliatone/go-entity-session/registry"
	"github.com/goliatone/go-entity-session/store"
)

// CachedRepository decorates a store repository with the shared second-level
// cache. Lookups by identity are read-through; writes pass through to the
// store and invalidate the written key.
type CachedRepository struct {
	base   *store.Repository
	cache  cache.SecondLevelCache
	logger *slog.Logger
}

// New wraps base with c.
func New(base *store.Repository, c cache.SecondLevelCache, logger *slog.Logger) *CachedRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRepository{base: base, cache: c, logger: logger}
}

// Mapping returns the mapping of the wrapped repository.
func (c *CachedRepository) Mapping() registry.Mapping {
	return c.base.Mapping()
}

// Key returns the cache key of the entity with identity id.
func (c *CachedRepository) Key(id any) cache.EntityKey {
	return cache.NewEntityKey(string(c.base.Mapping().Type), id)
}

// KeyOf returns the cache key of entity.
func (c *CachedRepository) KeyOf(entity any) (cache.EntityKey, error) {
	id, err := c.base.Mapping().IDValue(entity)
	if err != nil {
		return cache.EntityKey{}, err
	}
	return c.Key(id), nil
}

// FindByID loads the entity with identity id into dest, consulting the cache
// first. It reports whether the entity was served from the cache. Entities
// loaded from the store are cached unless the context asks to bypass it.
func (c *CachedRepository) FindByID(ctx context.Context, id any, dest any) (bool, error) {
	return c.find(ctx, nil, id, dest, true)
}

// FindByIDTx is FindByID on tx. The cache is read but never populated, since
// rows seen inside an open transaction may not be committed.
func (c *CachedRepository) FindByIDTx(ctx context.Context, tx bun.IDB, id any, dest any) (bool, error) {
	return c.find(ctx, tx, id, dest, false)
}

func (c *CachedRepository) find(ctx context.Context, idb bun.IDB, id any, dest any, populate bool) (bool, error) {
	key := c.Key(id)
	mode := CacheModeFromContext(ctx)

	if mode.reads() {
		found, err := c.cache.Get(ctx, key, dest)
		if err != nil {
			c.logger.WarnContext(ctx, "dropped undecodable cache entry", "key", key.String(), "error", err)
		} else if found {
			return true, nil
		}
	}

	if err := c.base.FindByID(ctx, idb, id, dest); err != nil {
		return false, err
	}

	if populate && mode.stores() {
		if err := c.cache.Put(ctx, key, dest); err != nil {
			c.logger.WarnContext(ctx, "cache put failed", "key", key.String(), "error", err)
		}
	}
	return false, nil
}

// Put stores entity in the cache unless the context bypasses it. It is used
// for entities hydrated from queries.
func (c *CachedRepository) Put(ctx context.Context, entity any) error {
	if !CacheModeFromContext(ctx).stores() {
		return nil
	}
	key, err := c.KeyOf(entity)
	if err != nil {
		return err
	}
	return c.cache.Put(ctx, key, entity)
}

// Evict drops entity from the cache.
func (c *CachedRepository) Evict(ctx context.Context, entity any) error {
	key, err := c.KeyOf(entity)
	if err != nil {
		return err
	}
	return c.cache.Evict(ctx, key)
}

// EvictKey drops key from the cache.
func (c *CachedRepository) EvictKey(ctx context.Context, key cache.EntityKey) error {
	return c.cache.Evict(ctx, key)
}

// Select runs criteria against the model table. Query results are never
// served from the cache.
func (c *CachedRepository) Select(ctx context.Context, dest any, criteria ...repository.SelectCriteria) error {
	return c.base.Select(ctx, nil, dest, criteria...)
}

// SelectTx runs criteria on tx.
func (c *CachedRepository) SelectTx(ctx context.Context, tx bun.IDB, dest any, criteria ...repository.SelectCriteria) error {
	return c.base.Select(ctx, tx, dest, criteria...)
}

// Raw executes a native SQL query.
func (c *CachedRepository) Raw(ctx context.Context, dest any, sql string, args ...any) error {
	return c.base.Raw(ctx, nil, dest, sql, args...)
}

// RawTx executes a native SQL query on tx.
func (c *CachedRepository) RawTx(ctx context.Context, tx bun.IDB, dest any, sql string, args ...any) error {
	return c.base.Raw(ctx, tx, dest, sql, args...)
}

// Insert writes entity outside a transaction. A stale cache entry under the
// assigned identity is dropped.
func (c *CachedRepository) Insert(ctx context.Context, entity any) error {
	if err := c.base.Insert(ctx, nil, entity); err != nil {
		return err
	}
	c.invalidate(ctx, entity)
	return nil
}

// InsertTx writes entity on tx. Invalidation is left to the caller once tx
// commits.
func (c *CachedRepository) InsertTx(ctx context.Context, tx bun.IDB, entity any) error {
	return c.base.Insert(ctx, tx, entity)
}

// Update writes entity outside a transaction and evicts its cache entry.
func (c *CachedRepository) Update(ctx context.Context, entity any) error {
	if err := c.base.Update(ctx, nil, entity); err != nil {
		return err
	}
	c.invalidate(ctx, entity)
	return nil
}

// UpdateTx writes entity on tx. Invalidation is left to the caller once tx
// commits.
func (c *CachedRepository) UpdateTx(ctx context.Context, tx bun.IDB, entity any) error {
	return c.base.Update(ctx, tx, entity)
}

// Delete removes entity outside a transaction and evicts its cache entry.
func (c *CachedRepository) Delete(ctx context.Context, entity any) error {
	if err := c.base.Delete(ctx, nil, entity); err != nil {
		return err
	}
	c.invalidate(ctx, entity)
	return nil
}

// DeleteTx removes entity on tx. Invalidation is left to the caller once tx
// commits.
func (c *CachedRepository) DeleteTx(ctx context.Context, tx bun.IDB, entity any) error {
	return c.base.Delete(ctx, tx, entity)
}

func (c *CachedRepository) invalidate(ctx context.Context, entity any) {
	if err := c.Evict(ctx, entity); err != nil {
		c.logger.WarnContext(ctx, "cache invalidation failed", "type", c.base.Mapping().Type, "error", err)
	}
}
