// Package store opens the relational store behind the session layer and runs
// single-entity statements against it.
//
// The URI in Config selects both the database/sql driver and the bun dialect:
// "file:", "sqlite:" and ":memory:" open sqlite through mattn/go-sqlite3,
// "postgres://" opens postgres through lib/pq.
//
//	s, err := store.Open(ctx, store.Config{URI: "file:kennel.db"})
//	if err != nil {
//		return err // a failed ping is a StoreConnectionError
//	}
//	defer s.Close()
//
// Every statement passes through a QueryHook that counts reads and writes.
// The read counter is how callers observe whether a lookup was served from a
// cache or from the store.
package store
