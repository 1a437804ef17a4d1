package cache

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-entity-session/internal/cacheinfra"
)

// EntityKey identifies one entity across the cache and session identity maps.
// ID holds the serialized identity so keys stay comparable.
type EntityKey struct {
	Type string
	ID   string
}

var (
	entityKeys                  = defaultKeySerializer{}
	keySerializer KeySerializer = NewDefaultKeySerializer()
)

// NewEntityKey builds the key of entityType with identity id. Integer ids of
// any width and pointers to them produce the same key.
func NewEntityKey(entityType string, id any) EntityKey {
	return EntityKey{Type: entityType, ID: entityKeys.serializeValue(id)}
}

// String renders the key as "type::id".
func (k EntityKey) String() string {
	return keySerializer.SerializeKey(k.Type, k.ID)
}

// TypePrefix is the key prefix shared by every entity of entityType.
func TypePrefix(entityType string) string {
	return entityType + KeySeparator
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Puts      int64
	Evictions int64
	Entries   int
}

// SecondLevelCache is shared by every session of a process. It stores entity
// snapshots, so callers never share mutable instances through it.
//
// Entries move from absent to loaded on Put and back to absent on Evict,
// EvictType or EvictAll. Concurrent Put calls on one key are last-writer-wins.
type SecondLevelCache interface {
	// Get decodes the snapshot stored under key into dest, a pointer to the
	// entity struct. It reports whether the key was present.
	Get(ctx context.Context, key EntityKey, dest any) (bool, error)
	Put(ctx context.Context, key EntityKey, entity any) error
	Contains(key EntityKey) bool
	Evict(ctx context.Context, key EntityKey) error
	EvictType(ctx context.Context, entityType string) error
	EvictAll(ctx context.Context) error
	Stats() Stats
}

type entityCache struct {
	backend   cacheinfra.Backend
	hits      *xsync.Counter
	misses    *xsync.Counter
	puts      *xsync.Counter
	evictions *xsync.Counter
}

// New creates a second-level cache from cfg.
func New(cfg Config) (SecondLevelCache, error) {
	if cfg.Enabled {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	backend, err := cfg.backend()
	if err != nil {
		return nil, err
	}
	return newEntityCache(backend), nil
}

func newEntityCache(backend cacheinfra.Backend) *entityCache {
	return &entityCache{
		backend:   backend,
		hits:      xsync.NewCounter(),
		misses:    xsync.NewCounter(),
		puts:      xsync.NewCounter(),
		evictions: xsync.NewCounter(),
	}
}

func (c *entityCache) Get(ctx context.Context, key EntityKey, dest any) (bool, error) {
	data, ok := c.backend.Get(key.String())
	if !ok {
		c.misses.Inc()
		return false, nil
	}
	if err := msgpack.Unmarshal(data, dest); err != nil {
		// a snapshot that no longer decodes is treated as absent
		c.backend.Delete(key.String())
		c.misses.Inc()
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	c.hits.Inc()
	return true, nil
}

func (c *entityCache) Put(ctx context.Context, key EntityKey, entity any) error {
	data, err := msgpack.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode %s for cache: %w", key, err)
	}
	c.backend.Set(key.String(), data)
	c.puts.Inc()
	return nil
}

func (c *entityCache) Contains(key EntityKey) bool {
	_, ok := c.backend.Get(key.String())
	return ok
}

func (c *entityCache) Evict(ctx context.Context, key EntityKey) error {
	if c.backend.Delete(key.String()) {
		c.evictions.Inc()
	}
	return nil
}

func (c *entityCache) EvictType(ctx context.Context, entityType string) error {
	c.evictions.Add(int64(c.backend.DeleteByPrefix(TypePrefix(entityType))))
	return nil
}

func (c *entityCache) EvictAll(ctx context.Context) error {
	c.evictions.Add(int64(c.backend.Clear()))
	return nil
}

func (c *entityCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Value(),
		Misses:    c.misses.Value(),
		Puts:      c.puts.Value(),
		Evictions: c.evictions.Value(),
		Entries:   c.backend.Len(),
	}
}
