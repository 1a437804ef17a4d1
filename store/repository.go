package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity-session/errs"
	"github.com/goliatone/go-entity-session/registry"
)

// Repository runs single-entity statements for one mapping. Entities are
// pointers to the mapping's model. Every method takes the bun.IDB to run on so
// the same repository serves both transactional and plain reads; a nil idb
// uses the store handle.
type Repository struct {
	store   *Store
	mapping registry.Mapping
}

// NewRepository creates a repository for m, which must carry a model.
func NewRepository(s *Store, m registry.Mapping) (*Repository, error) {
	if !m.HasModel() {
		return nil, goerrors.New(fmt.Sprintf("entity type %q has no model and cannot be loaded", m.Type), goerrors.CategoryBadInput)
	}
	return &Repository{store: s, mapping: m}, nil
}

// Mapping returns the mapping the repository serves.
func (r *Repository) Mapping() registry.Mapping { return r.mapping }

func (r *Repository) idb(idb bun.IDB) bun.IDB {
	if idb == nil {
		return r.store.db
	}
	return idb
}

func (r *Repository) op(verb string) string {
	return verb + " " + string(r.mapping.Type)
}

// FindByID loads the row with identity id into dest. A missing row is
// reported as NotFoundError.
func (r *Repository) FindByID(ctx context.Context, idb bun.IDB, id any, dest any) error {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	err := r.idb(idb).NewSelect().
		Model(dest).
		Where("?TableAlias.? = ?", bun.Ident(r.mapping.IDColumn()), id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound(string(r.mapping.Type), id)
	}
	return classify(r.op("find"), err)
}

// Select scans the rows matched by criteria into dest, a pointer to a slice of
// the model.
func (r *Repository) Select(ctx context.Context, idb bun.IDB, dest any, criteria ...repository.SelectCriteria) error {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	q := r.idb(idb).NewSelect().Model(dest)
	for _, c := range criteria {
		if c != nil {
			q = c(q)
		}
	}
	return classify(r.op("select"), q.Scan(ctx))
}

// Raw scans the result of a native SQL statement into dest. Columns are
// matched to the model by name.
func (r *Repository) Raw(ctx context.Context, idb bun.IDB, dest any, query string, args ...any) error {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	err := r.idb(idb).NewRaw(query, args...).Scan(ctx, dest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return classify(r.op("raw query"), err)
}

// Insert writes entity. Store assigned identities are written back into it.
func (r *Repository) Insert(ctx context.Context, idb bun.IDB, entity any) error {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	_, err := r.idb(idb).NewInsert().Model(entity).Exec(ctx)
	return classify(r.op("insert"), err)
}

// Update writes every mapped column of entity by primary key. Updating a row
// that no longer exists is reported as NotFoundError.
func (r *Repository) Update(ctx context.Context, idb bun.IDB, entity any) error {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	res, err := r.idb(idb).NewUpdate().Model(entity).WherePK().Exec(ctx)
	if err != nil {
		return classify(r.op("update"), err)
	}
	return r.checkAffected(res, entity)
}

// Delete removes entity by primary key.
func (r *Repository) Delete(ctx context.Context, idb bun.IDB, entity any) error {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	res, err := r.idb(idb).NewDelete().Model(entity).WherePK().Exec(ctx)
	if err != nil {
		return classify(r.op("delete"), err)
	}
	return r.checkAffected(res, entity)
}

func (r *Repository) checkAffected(res sql.Result, entity any) error {
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		// drivers that cannot report affected rows are trusted
		return nil
	}
	id, _ := r.mapping.IDValue(entity)
	return errs.NotFound(string(r.mapping.Type), id)
}
