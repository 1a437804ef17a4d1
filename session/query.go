package session

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-entity-session/query"
	"github.com/goliatone/go-entity-session/repositorycache"
)

// Query compiles q against the registry and returns its rows as entities of
// type T, which must be q's root entity. Rows the session already manages
// come back as the managed instance.
func Query[T any](ctx context.Context, s *Session, q *query.Query) ([]*T, error) {
	m, err := mappingFor[T](s)
	if err != nil {
		return nil, err
	}
	compiled, err := q.Compile(s.factory.registry, query.WithDialect(s.factory.store.DB().Dialect().Name()))
	if err != nil {
		return nil, err
	}
	if compiled.Root.Type != m.Type {
		return nil, goerrors.New(fmt.Sprintf("query selects %q, not %q", compiled.Root.Type, m.Type), goerrors.CategoryBadInput)
	}
	return queryRaw[T](ctx, s, true, compiled.SQL, compiled.Args...)
}

// QueryRaw runs a native SQL statement whose columns match T's mapping and
// hydrates the rows like Query. The statement may select only some columns,
// so its rows are never put in the shared cache.
func QueryRaw[T any](ctx context.Context, s *Session, sql string, args ...any) ([]*T, error) {
	return queryRaw[T](ctx, s, false, sql, args...)
}

func queryRaw[T any](ctx context.Context, s *Session, cacheable bool, sql string, args ...any) ([]*T, error) {
	repo, err := repositoryFor[T](s)
	if err != nil {
		return nil, err
	}
	idb, err := s.idb(ctx)
	if err != nil {
		return nil, err
	}

	var rows []T
	if idb != nil {
		err = repo.RawTx(ctx, idb, &rows, sql, args...)
	} else {
		err = repo.Raw(ctx, &rows, sql, args...)
	}
	if err != nil {
		return nil, err
	}
	return hydrate(ctx, s, repo, rows, cacheable)
}

// Select applies criteria to a select over T's table and hydrates the rows
// like Query. Criteria may narrow the column list, so its rows are never put
// in the shared cache.
func Select[T any](ctx context.Context, s *Session, criteria ...repository.SelectCriteria) ([]*T, error) {
	repo, err := repositoryFor[T](s)
	if err != nil {
		return nil, err
	}
	idb, err := s.idb(ctx)
	if err != nil {
		return nil, err
	}

	var rows []T
	if idb != nil {
		err = repo.SelectTx(ctx, idb, &rows, criteria...)
	} else {
		err = repo.Select(ctx, &rows, criteria...)
	}
	if err != nil {
		return nil, err
	}
	return hydrate(ctx, s, repo, rows, false)
}

func repositoryFor[T any](s *Session) (*repositorycache.CachedRepository, error) {
	m, err := mappingFor[T](s)
	if err != nil {
		return nil, err
	}
	return s.factory.repository(m)
}

// hydrate resolves every row against the identity map. Fresh rows become
// managed and, when cacheable is set and no transaction is active, are
// cached. Only full-column rows may be cacheable. Rows removed in this
// session are left out.
func hydrate[T any](ctx context.Context, s *Session, repo *repositorycache.CachedRepository, rows []T, cacheable bool) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		key, err := repo.KeyOf(row)
		if err != nil {
			return nil, err
		}
		if e, ok := s.managed[key]; ok {
			if e.state != stateRemoved {
				out = append(out, e.entity.(*T))
			}
			continue
		}

		if _, err := s.manage(repo, row); err != nil {
			return nil, err
		}
		if cacheable && s.tx == nil {
			if err := repo.Put(ctx, row); err != nil {
				s.logger.WarnContext(ctx, "cache put failed", "key", key.String(), "error", err)
			}
		}
		out = append(out, row)
	}
	return out, nil
}
