package session

import (
	"context"
	"fmt"
	"reflect"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-entity-session/cache"
	"github.com/goliatone/go-entity-session/errs"
	"github.com/goliatone/go-entity-session/registry"
)

func mappingFor[T any](s *Session) (registry.Mapping, error) {
	return s.factory.registry.ResolveModel(reflect.TypeFor[T]())
}

// Find returns the entity of type T with identity id. The identity map is
// consulted first, then the shared cache, then the store. A missing row
// yields nil and no error.
func Find[T any](ctx context.Context, s *Session, id any) (*T, error) {
	m, err := mappingFor[T](s)
	if err != nil {
		return nil, err
	}
	entity, err := s.find(ctx, m, id)
	if err != nil || entity == nil {
		return nil, err
	}
	return entity.(*T), nil
}

func (s *Session) find(ctx context.Context, m registry.Mapping, id any) (any, error) {
	if e, ok := s.managed[cache.NewEntityKey(string(m.Type), id)]; ok {
		if e.state == stateRemoved {
			return nil, nil
		}
		return e.entity, nil
	}

	repo, err := s.factory.repository(m)
	if err != nil {
		return nil, err
	}
	dest, err := m.New()
	if err != nil {
		return nil, err
	}
	idb, err := s.idb(ctx)
	if err != nil {
		return nil, err
	}

	if idb != nil {
		_, err = repo.FindByIDTx(ctx, idb, id, dest)
	} else {
		_, err = repo.FindByID(ctx, id, dest)
	}
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	e, err := s.manage(repo, dest)
	if err != nil {
		return nil, err
	}
	return e.entity, nil
}

// Reference is a lazy handle on an entity. Its identity is available without
// touching the store; the entity is loaded once, on the first Get.
type Reference[T any] struct {
	session *Session
	id      any
	loaded  bool
	entity  *T
	err     error
}

// GetReference returns a lazy reference to the entity of type T with
// identity id. If the session already manages that entity the reference is
// born resolved.
func GetReference[T any](s *Session, id any) (*Reference[T], error) {
	m, err := mappingFor[T](s)
	if err != nil {
		return nil, err
	}
	ref := &Reference[T]{session: s, id: id}
	if e, ok := s.managed[cache.NewEntityKey(string(m.Type), id)]; ok && e.state != stateRemoved {
		ref.entity, ref.loaded = e.entity.(*T), true
	}
	return ref, nil
}

// ID returns the identity the reference was created with.
func (r *Reference[T]) ID() any { return r.id }

// Loaded reports whether the reference has been resolved.
func (r *Reference[T]) Loaded() bool { return r.loaded }

// Get resolves the reference. The outcome, entity or error, is memoized and
// a failed load is not retried. A missing row is a NotFoundError.
func (r *Reference[T]) Get(ctx context.Context) (*T, error) {
	if r.loaded {
		return r.entity, r.err
	}
	r.loaded = true

	r.entity, r.err = Find[T](ctx, r.session, r.id)
	if r.err == nil && r.entity == nil {
		m, _ := mappingFor[T](r.session)
		r.err = errs.NotFound(string(m.Type), r.id)
	}
	return r.entity, r.err
}

// Related follows the foreign-key relation declared as relation on entity
// and returns its target, or nil when the key is null.
func Related[T any](ctx context.Context, s *Session, entity any, relation string) (*T, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	m, err := s.factory.registry.ResolveEntity(entity)
	if err != nil {
		return nil, err
	}
	rel, ok := m.Relation(relation)
	if !ok {
		return nil, goerrors.New(fmt.Sprintf("entity type %q has no relation %q", m.Type, relation), goerrors.CategoryBadInput)
	}
	target, err := mappingFor[T](s)
	if err != nil {
		return nil, err
	}
	if target.Type != rel.Target {
		return nil, goerrors.New(fmt.Sprintf("relation %s.%s targets %q, not %q", m.Type, rel.Field, rel.Target, target.Type), goerrors.CategoryBadInput)
	}

	fk, err := m.FieldValue(entity, rel.Column)
	if err != nil || fk == nil {
		return nil, err
	}
	return Find[T](ctx, s, fk)
}
