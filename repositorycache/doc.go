// Package repositorycache puts the shared second-level cache in front of a
// store repository.
//
// # Overview
//
// CachedRepository decorates a store.Repository. Identity lookups follow a
// read-through pattern:
//
//  1. Check the cache for the entity key
//  2. On a hit, decode the snapshot into the destination
//  3. On a miss, load the row from the store
//  4. Store the snapshot in the cache
//
// Query results (Select, Raw) always reach the store. The session decides
// which of the returned rows to cache.
//
// # Transactions
//
// The *Tx variants run on a caller supplied bun.IDB. Lookups inside a
// transaction read the cache but never populate it, and writes inside a
// transaction do not invalidate anything: the session evicts the written keys
// after the transaction commits.
//
// # Cache modes
//
// A per-call mode can be attached to the context:
//
//	ctx = repositorycache.WithCacheMode(ctx, repositorycache.CacheModeBypass)
//
//   - CacheModeUse: read and populate (default)
//   - CacheModeBypass: ignore the cache entirely
//   - CacheModeRefresh: skip the read, overwrite the cached entry
//
// # Error handling
//
// Store errors are returned unchanged. Cache failures (undecodable
// snapshots, encode errors) are logged and the call falls back to the store.
package repositorycache
