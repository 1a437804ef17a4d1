package session

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-entity-session/cache"
	"github.com/goliatone/go-entity-session/registry"
	"github.com/goliatone/go-entity-session/repositorycache"
)

type entryState int

const (
	stateManaged entryState = iota
	// statePending is a staged insert that has not reached the store.
	statePending
	stateRemoved
)

// entry tracks one entity instance. snapshot and hash describe the last
// committed state; txSnapshot and txHash the state written by the current
// transaction attempt.
type entry struct {
	mapping registry.Mapping
	repo    *repositorycache.CachedRepository
	entity  any
	key     cache.EntityKey
	keyed   bool
	state   entryState

	snapshot []byte
	hash     uint64

	txWritten  bool
	txSnapshot []byte
	txHash     uint64

	// assigned is set when the store handed out the identity during the
	// current attempt.
	assigned bool
}

func fingerprint(entity any) ([]byte, uint64, error) {
	data, err := msgpack.Marshal(entity)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot %T: %w", entity, err)
	}
	return data, xxhash.Sum64(data), nil
}

// dirty compares the entity against the last state written for it.
func (e *entry) dirty() (bool, []byte, uint64, error) {
	data, h, err := fingerprint(e.entity)
	if err != nil {
		return false, nil, 0, err
	}
	base := e.hash
	if e.txWritten {
		base = e.txHash
	}
	return h != base, data, h, nil
}

func (e *entry) markWritten(data []byte, h uint64) {
	e.txWritten, e.txSnapshot, e.txHash = true, data, h
}

func (e *entry) commitWritten() {
	if e.txWritten {
		e.snapshot, e.hash = e.txSnapshot, e.txHash
	}
	e.resetAttempt()
}

func (e *entry) resetAttempt() {
	e.txWritten, e.txSnapshot, e.txHash = false, nil, 0
	e.assigned = false
}

// restore reverts the entity in place to its committed snapshot.
func (e *entry) restore() error {
	if e.snapshot == nil {
		return nil
	}
	rv := reflect.ValueOf(e.entity).Elem()
	rv.Set(reflect.Zero(rv.Type()))
	if err := msgpack.Unmarshal(e.snapshot, e.entity); err != nil {
		return fmt.Errorf("restore %s: %w", e.key, err)
	}
	return nil
}

type opKind int

const (
	opInsert opKind = iota
	opDelete
)

// operation is a staged write. Staged writes run in the order they were made.
type operation struct {
	kind    opKind
	entry   *entry
	flushed bool
}

// manage starts tracking entity, already loaded from the store, under its key.
func (s *Session) manage(repo *repositorycache.CachedRepository, entity any) (*entry, error) {
	key, err := repo.KeyOf(entity)
	if err != nil {
		return nil, err
	}
	data, h, err := fingerprint(entity)
	if err != nil {
		return nil, err
	}
	e := &entry{
		mapping:  repo.Mapping(),
		repo:     repo,
		entity:   entity,
		key:      key,
		keyed:    true,
		state:    stateManaged,
		snapshot: data,
		hash:     h,
	}
	s.managed[key] = e
	s.tracked[entity] = e
	return e, nil
}

func (s *Session) forget(e *entry) {
	if e.keyed {
		if cur, ok := s.managed[e.key]; ok && cur == e {
			delete(s.managed, e.key)
		}
	}
	delete(s.tracked, e.entity)
}

// unstage drops the unflushed operations of kind staged for e. It reports
// whether an already flushed one exists.
func (s *Session) unstage(e *entry, kind opKind) (flushed bool) {
	ops := s.ops[:0]
	for _, op := range s.ops {
		if op.entry == e && op.kind == kind {
			if !op.flushed {
				continue
			}
			flushed = true
		}
		ops = append(ops, op)
	}
	s.ops = ops
	return flushed
}

func (s *Session) sortedManaged() []*entry {
	out := make([]*entry, 0, len(s.managed))
	for _, e := range s.managed {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.String() < out[j].key.String() })
	return out
}
