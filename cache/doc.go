// Package cache provides the second-level entity cache shared by sessions.
//
// # Overview
//
// A SecondLevelCache maps an EntityKey (entity type + identity) to a msgpack
// snapshot of the entity. Sessions consult it after their own identity map and
// before the store, and put every entity they load outside a transaction.
// Snapshots are decoded into fresh values on every Get, so two sessions never
// share a mutable instance through the cache.
//
// # Basic Usage
//
//	c, err := cache.New(cache.DefaultConfig())
//	key := cache.NewEntityKey("breed", 3)
//
//	_ = c.Put(ctx, key, breed)
//
//	var b Breed
//	found, err := c.Get(ctx, key, &b)
//
// # Eviction
//
// The default "map" provider has no TTL and no size bound: an entry stays
// until Evict, EvictType or EvictAll removes it. The "sturdyc" provider is
// available for deployments that want a bounded cache; its entries also expire
// after Config.TTL and are dropped when Capacity is reached.
//
// Setting Config.Enabled to false yields a cache on which every Get misses.
// It is the equivalent of switching the shared cache off; sessions keep
// working against the store.
//
// # Keys
//
// Keys render as "type::id" (see KeySeparator). Identities go through the
// default KeySerializer: integer ids of any width and pointers to them map to
// the same key, text marshalers (uuid.UUID, time.Time) use their text form and
// composite struct ids list their exported fields.
//
// # Concurrency
//
// All operations are safe for concurrent use. Writes to the same key are
// last-writer-wins; there is no versioning.
package cache
