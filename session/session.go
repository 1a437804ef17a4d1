package session

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity-session/cache"
	"github.com/goliatone/go-entity-session/errs"
)

// Session is a unit of work. It keeps an identity map of the entities it
// loaded, stages writes, and runs at most one transaction at a time. A
// session is not safe for concurrent use.
type Session struct {
	id      uuid.UUID
	factory *Factory
	logger  *slog.Logger

	managed map[cache.EntityKey]*entry
	tracked map[any]*entry
	ops     []*operation
	tx      *transaction
}

// transaction is the session side of a transaction. The store transaction is
// opened on the first statement that needs it.
type transaction struct {
	tx      bun.Tx
	open    bool
	updated map[cache.EntityKey]struct{}
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// InTransaction reports whether Begin was called without a matching Commit or
// Rollback.
func (s *Session) InTransaction() bool { return s.tx != nil }

// idb returns the handle reads and writes must use: the store transaction
// when one is active, nil otherwise.
func (s *Session) idb(ctx context.Context) (bun.IDB, error) {
	if s.tx == nil {
		return nil, nil
	}
	if !s.tx.open {
		tx, err := s.factory.store.BeginTx(ctx)
		if err != nil {
			return nil, err
		}
		s.tx.tx, s.tx.open = tx, true
	}
	return s.tx.tx, nil
}

// Begin starts a transaction.
func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return errs.TransactionState("begin", "a transaction is already active")
	}
	s.tx = &transaction{updated: map[cache.EntityKey]struct{}{}}
	s.logger.DebugContext(ctx, "transaction begun")
	return nil
}

// Persist stages entity, a pointer to a registered model, for insertion. Its
// identity is assigned when the insert is flushed. Persisting an entity the
// session already manages is a no-op; persisting a removed entity cancels
// the removal.
func (s *Session) Persist(entity any) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	if e, ok := s.tracked[entity]; ok {
		if e.state == stateRemoved {
			if s.unstage(e, opDelete) {
				return goerrors.New("entity removal was already flushed", goerrors.CategoryConflict).
					WithTextCode("REMOVAL_FLUSHED")
			}
			e.state = stateManaged
		}
		return nil
	}

	m, err := s.factory.registry.ResolveEntity(entity)
	if err != nil {
		return err
	}
	repo, err := s.factory.repository(m)
	if err != nil {
		return err
	}
	e := &entry{mapping: m, repo: repo, entity: entity, state: statePending}
	s.tracked[entity] = e
	s.ops = append(s.ops, &operation{kind: opInsert, entry: e})
	return nil
}

// Remove stages the deletion of a managed entity. Removing an entity whose
// insert has not been flushed simply drops the insert.
func (s *Session) Remove(entity any) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	e, ok := s.tracked[entity]
	if !ok {
		return goerrors.New(fmt.Sprintf("%T is not managed by this session", entity), goerrors.CategoryBadInput).
			WithTextCode("ENTITY_DETACHED")
	}

	switch e.state {
	case stateRemoved:
		return nil
	case statePending:
		s.unstage(e, opInsert)
		s.forget(e)
		return nil
	}
	e.state = stateRemoved
	s.ops = append(s.ops, &operation{kind: opDelete, entry: e})
	return nil
}

// Flush writes staged inserts and deletes in the order they were made, then
// updates every managed entity that changed since it was last written.
// Flush requires an active transaction. A failed flush leaves the session
// as a failed commit does.
func (s *Session) Flush(ctx context.Context) error {
	if s.tx == nil {
		return errs.TransactionState("flush", "no active transaction")
	}
	if err := s.flush(ctx); err != nil {
		s.abortAttempt()
		return err
	}
	return nil
}

func (s *Session) flush(ctx context.Context) error {
	idb, err := s.idb(ctx)
	if err != nil {
		return err
	}

	for _, op := range s.ops {
		if op.flushed {
			continue
		}
		e := op.entry
		switch op.kind {
		case opInsert:
			if err := s.flushInsert(ctx, idb, e); err != nil {
				return err
			}
		case opDelete:
			if err := e.repo.DeleteTx(ctx, idb, e.entity); err != nil {
				return err
			}
			if e.keyed {
				s.tx.updated[e.key] = struct{}{}
			}
		}
		op.flushed = true
	}

	for _, e := range s.sortedManaged() {
		if e.state != stateManaged {
			continue
		}
		dirty, data, h, err := e.dirty()
		if err != nil {
			return err
		}
		if !dirty {
			continue
		}
		if err := e.repo.UpdateTx(ctx, idb, e.entity); err != nil {
			return err
		}
		e.markWritten(data, h)
		s.tx.updated[e.key] = struct{}{}
	}
	return nil
}

func (s *Session) flushInsert(ctx context.Context, idb bun.IDB, e *entry) error {
	hadID, err := e.mapping.HasID(e.entity)
	if err != nil {
		return err
	}
	if err := e.repo.InsertTx(ctx, idb, e.entity); err != nil {
		return err
	}
	e.assigned = !hadID

	key, err := e.repo.KeyOf(e.entity)
	if err != nil {
		return err
	}
	data, h, err := fingerprint(e.entity)
	if err != nil {
		return err
	}
	e.key, e.keyed = key, true
	e.markWritten(data, h)
	if e.state == statePending {
		e.state = stateManaged
	}
	s.managed[key] = e
	return nil
}

// Commit flushes and commits the active transaction. On failure the store
// transaction is rolled back, identities assigned during the attempt are
// reset, and every staged write is kept so the commit can be retried or
// rolled back. The session transaction stays active in that case.
//
// After a successful commit the cache entries of updated and removed
// entities are evicted.
func (s *Session) Commit(ctx context.Context) error {
	if s.tx == nil {
		return errs.TransactionState("commit", "no active transaction")
	}

	if err := s.flush(ctx); err != nil {
		s.abortAttempt()
		s.logger.DebugContext(ctx, "commit failed", "stage", "flush", "error", err)
		return err
	}
	if s.tx.open {
		if err := s.factory.store.CommitTx(s.tx.tx); err != nil {
			s.abortAttempt()
			s.logger.DebugContext(ctx, "commit failed", "stage", "commit", "error", err)
			return err
		}
	}

	evict := s.tx.updated
	for _, op := range s.ops {
		if op.kind == opDelete {
			s.forget(op.entry)
		}
	}
	for _, e := range s.tracked {
		e.commitWritten()
	}
	s.ops = nil
	s.tx = nil

	for key := range evict {
		if err := s.factory.cache.Evict(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "cache eviction failed", "key", key.String(), "error", err)
		}
	}
	s.logger.DebugContext(ctx, "transaction committed", "evicted", len(evict))
	return nil
}

// abortAttempt undoes the effects of a failed commit on session state.
func (s *Session) abortAttempt() {
	if s.tx.open {
		_ = s.factory.store.RollbackTx(s.tx.tx)
		s.tx.tx, s.tx.open = bun.Tx{}, false
	}
	s.tx.updated = map[cache.EntityKey]struct{}{}

	for _, op := range s.ops {
		op.flushed = false
		if op.kind != opInsert {
			continue
		}
		e := op.entry
		if e.keyed {
			if cur, ok := s.managed[e.key]; ok && cur == e {
				delete(s.managed, e.key)
			}
			e.keyed = false
		}
		if e.assigned {
			_ = e.mapping.ResetID(e.entity)
		}
		if e.state == stateManaged {
			e.state = statePending
		}
	}
	for _, e := range s.tracked {
		e.resetAttempt()
	}
}

// Rollback discards the active transaction and every staged write. Entities
// pending insert are detached and managed entities are reverted to their
// last committed state.
func (s *Session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return errs.TransactionState("rollback", "no active transaction")
	}

	var err error
	if s.tx.open {
		err = s.factory.store.RollbackTx(s.tx.tx)
	}

	for _, op := range s.ops {
		e := op.entry
		switch op.kind {
		case opInsert:
			if e.assigned {
				_ = e.mapping.ResetID(e.entity)
			}
			s.forget(e)
		case opDelete:
			if e.state == stateRemoved {
				e.state = stateManaged
			}
		}
	}
	for _, e := range s.tracked {
		e.resetAttempt()
		if e.state != stateManaged {
			continue
		}
		if dirty, _, _, derr := e.dirty(); derr == nil && dirty {
			if rerr := e.restore(); rerr != nil && err == nil {
				err = rerr
			}
		}
	}
	s.ops = nil
	s.tx = nil

	s.logger.DebugContext(ctx, "transaction rolled back", "error", err)
	return err
}

// Clear detaches every entity and drops every staged write. The shared cache
// and an active transaction are left untouched.
func (s *Session) Clear() {
	s.managed = make(map[cache.EntityKey]*entry)
	s.tracked = make(map[any]*entry)
	s.ops = nil
}

// Detach stops tracking entity and drops its staged writes.
func (s *Session) Detach(entity any) {
	if checkEntity(entity) != nil {
		return
	}
	e, ok := s.tracked[entity]
	if !ok {
		return
	}
	ops := s.ops[:0]
	for _, op := range s.ops {
		if op.entry != e {
			ops = append(ops, op)
		}
	}
	s.ops = ops
	s.forget(e)
}

// Contains reports whether entity is tracked and not removed.
func (s *Session) Contains(entity any) bool {
	if checkEntity(entity) != nil {
		return false
	}
	e, ok := s.tracked[entity]
	return ok && e.state != stateRemoved
}

// Close rolls back an active transaction and clears the session.
func (s *Session) Close(ctx context.Context) error {
	var err error
	if s.tx != nil {
		err = s.Rollback(ctx)
	}
	s.Clear()
	return err
}

func checkEntity(entity any) error {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return goerrors.New(fmt.Sprintf("entity must be a non-nil struct pointer, got %T", entity), goerrors.CategoryBadInput)
	}
	return nil
}
