package session

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-entity-session/cache"
	"github.com/goliatone/go-entity-session/errs"
	"github.com/goliatone/go-entity-session/pkg/testsupport"
	"github.com/goliatone/go-entity-session/registry"
	"github.com/goliatone/go-entity-session/store"
)

func TestTransaction_Sequencing(t *testing.T) {
	ctx := context.Background()
	f, _ := newKennelFactory(t, true)
	s := f.NewSession()

	if err := s.Commit(ctx); !errs.IsTransactionState(err) {
		t.Errorf("commit without begin: expected TransactionStateError, got %v", err)
	}
	if err := s.Rollback(ctx); !errs.IsTransactionState(err) {
		t.Errorf("rollback without begin: expected TransactionStateError, got %v", err)
	}
	if err := s.Flush(ctx); !errs.IsTransactionState(err) {
		t.Errorf("flush without begin: expected TransactionStateError, got %v", err)
	}

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Begin(ctx); !errs.IsTransactionState(err) {
		t.Errorf("nested begin: expected TransactionStateError, got %v", err)
	}
	if !s.InTransaction() {
		t.Error("expected active transaction")
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("empty commit: %v", err)
	}
	if s.InTransaction() {
		t.Error("expected transaction to end on commit")
	}
}

func TestPersist_ThenFindReturnsSameInstance(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	collie := k.Breeds["collie"]
	fido := &Dog{Name: "Fido", BreedID: &collie}

	// staging is allowed outside a transaction
	if err := s.Persist(fido); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := s.Persist(fido); err != nil {
		t.Fatalf("persisting twice must be a no-op: %v", err)
	}
	if !s.Contains(fido) {
		t.Error("expected persisted entity to be tracked")
	}

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if fido.ID == 0 {
		t.Fatal("expected identity to be assigned on commit")
	}
	if got := k.Store.Writes(); got != 1 {
		t.Errorf("expected a single insert, got %d writes", got)
	}

	k.Store.ResetCounters()
	found, err := Find[Dog](ctx, s, fido.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != fido {
		t.Error("expected the persisted instance")
	}
	if got := k.Store.Reads(); got != 0 {
		t.Errorf("expected identity map hit, got %d reads", got)
	}

	other, err := Find[Dog](ctx, f.NewSession(), fido.ID)
	if err != nil || other == nil {
		t.Fatalf("expected committed row to be visible, got %v %v", other, err)
	}
	if other.Name != "Fido" || other.BreedID == nil || *other.BreedID != collie {
		t.Errorf("unexpected row %+v", other)
	}
}

func TestFlush_AssignsIdentityBeforeCommit(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	dingo := &Breed{Name: "dingo"}
	if err := s.Persist(dingo); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if dingo.ID == 0 {
		t.Fatal("expected flush to assign the identity")
	}
	found, err := Find[Breed](ctx, s, dingo.ID)
	if err != nil || found != dingo {
		t.Fatalf("expected flushed entity from the identity map, got %v %v", found, err)
	}

	// a mutation after flush is written by the next flush
	dingo.Name = "australian dingo"
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := k.Store.Writes(); got != 2 {
		t.Errorf("expected insert and update, got %d writes", got)
	}

	other, _ := Find[Breed](ctx, f.NewSession(), dingo.ID)
	if other == nil || other.Name != "australian dingo" {
		t.Errorf("unexpected committed row %+v", other)
	}
}

func TestCommit_DirtyCheckingEvictsCache(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()
	id := k.Breeds["wolf"]

	wolf, err := Find[Breed](ctx, s, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	key := cache.NewEntityKey(string(testsupport.BreedType), id)
	if !f.Cache().Contains(key) {
		t.Fatal("expected wolf to be cached")
	}

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := k.Store.Writes(); got != 0 {
		t.Errorf("clean entities must not be written, got %d writes", got)
	}

	wolf.Name = "grey wolf"
	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := k.Store.Writes(); got != 1 {
		t.Errorf("expected one update, got %d writes", got)
	}
	if f.Cache().Contains(key) {
		t.Error("expected updated entity to be evicted after commit")
	}

	other, _ := Find[Breed](ctx, f.NewSession(), id)
	if other == nil || other.Name != "grey wolf" {
		t.Errorf("expected other sessions to see the update, got %+v", other)
	}

	// the committed state is the new baseline
	k.Store.ResetCounters()
	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := k.Store.Writes(); got != 0 {
		t.Errorf("expected no writes after commit, got %d", got)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()
	id := k.Dogs["Rexo"]

	rexo, err := Find[Dog](ctx, s, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Remove(rexo); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.Contains(rexo) {
		t.Error("removed entity must not be contained")
	}
	if found, _ := Find[Dog](ctx, s, id); found != nil {
		t.Error("removed entity must not be found in its session")
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if f.Cache().Contains(cache.NewEntityKey(string(testsupport.DogType), id)) {
		t.Error("expected removed entity to be evicted")
	}
	if found, _ := Find[Dog](ctx, f.NewSession(), id); found != nil {
		t.Errorf("expected row to be deleted, got %+v", found)
	}
}

func TestRemove_PendingInsertIsUnstaged(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	pup := &Dog{Name: "Pup"}
	if err := s.Persist(pup); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := s.Remove(pup); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.Contains(pup) {
		t.Error("unstaged entity must not be tracked")
	}
	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := k.Store.Writes(); got != 0 {
		t.Errorf("expected no writes, got %d", got)
	}

	if err := s.Remove(&Dog{Name: "stranger"}); err == nil {
		t.Error("expected error removing an unmanaged entity")
	}
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	wolf, _ := Find[Breed](ctx, s, k.Breeds["wolf"])
	collie, _ := Find[Breed](ctx, s, k.Breeds["collie"])

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	wolf.Name = "renamed"
	dingo := &Breed{Name: "dingo"}
	if err := s.Persist(dingo); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := s.Remove(collie); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if dingo.ID == 0 {
		t.Fatal("expected flush to assign an identity")
	}

	if err := s.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if s.InTransaction() {
		t.Error("expected transaction to end on rollback")
	}
	if dingo.ID != 0 {
		t.Errorf("expected assigned identity to be reset, got %d", dingo.ID)
	}
	if s.Contains(dingo) {
		t.Error("pending insert must be detached on rollback")
	}
	if !s.Contains(collie) {
		t.Error("removal must be discarded on rollback")
	}
	if wolf.Name != "wolf" {
		t.Errorf("expected managed entity to be reverted, got %q", wolf.Name)
	}

	other := f.NewSession()
	if found, _ := Find[Breed](ctx, other, k.Breeds["collie"]); found == nil {
		t.Error("collie must still exist")
	}
	var count int
	if err := k.Store.DB().NewSelect().Model((*Breed)(nil)).ColumnExpr("count(*)").Scan(ctx, &count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 breeds after rollback, got %d", count)
	}
}

func TestCommit_FailureKeepsStagedWrites(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	if _, err := k.Store.DB().NewDropTable().Model((*Dog)(nil)).Exec(ctx); err != nil {
		t.Fatalf("drop dogs: %v", err)
	}

	dingo := &Breed{Name: "dingo"}
	pup := &Dog{Name: "Pup"}
	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Persist(dingo); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := s.Persist(pup); err != nil {
		t.Fatalf("persist: %v", err)
	}

	if err := s.Commit(ctx); err == nil {
		t.Fatal("expected commit to fail without the dogs table")
	}
	if dingo.ID != 0 || pup.ID != 0 {
		t.Errorf("expected identities to be reset, got %d and %d", dingo.ID, pup.ID)
	}
	if !s.InTransaction() {
		t.Error("a failed commit must leave the transaction active")
	}
	if !s.Contains(dingo) || !s.Contains(pup) {
		t.Error("a failed commit must keep staged writes")
	}
	if found, _ := Find[Breed](ctx, f.NewSession(), 4); found != nil {
		t.Errorf("the failed attempt must be rolled back, found %+v", found)
	}

	if err := testsupport.CreateKennelSchema(ctx, k.Store.DB()); err != nil {
		t.Fatalf("recreate schema: %v", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("retry commit: %v", err)
	}
	if dingo.ID == 0 || pup.ID == 0 {
		t.Error("expected identities after the retried commit")
	}
	if found, _ := Find[Dog](ctx, f.NewSession(), pup.ID); found == nil || found.Name != "Pup" {
		t.Errorf("expected committed dog, got %+v", found)
	}
}

func TestCommit_StoreCommitFailure(t *testing.T) {
	ctx := context.Background()
	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	s, err := store.OpenDB(ctx, sqldb, sqlitedialect.New(), store.Config{URI: ":memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	r := registry.New()
	if err := testsupport.RegisterKennel(s.DB(), r); err != nil {
		t.Fatalf("register: %v", err)
	}
	f, err := NewFactory(s, r, nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	sess := f.NewSession()

	insert := regexp.QuoteMeta(`INSERT INTO "breeds"`)
	// bun returns the nullable column through RETURNING, so the insert is a query
	mock.ExpectBegin()
	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"derived_from_id"}).AddRow(nil))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))
	mock.ExpectBegin()
	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"derived_from_id"}).AddRow(nil))
	mock.ExpectCommit()

	// an explicit identity is not store assigned and survives a failed commit
	dingo := &Breed{ID: 42, Name: "dingo"}
	if err := sess.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := sess.Persist(dingo); err != nil {
		t.Fatalf("persist: %v", err)
	}

	if err := sess.Commit(ctx); err == nil {
		t.Fatal("expected commit failure")
	}
	if dingo.ID != 42 {
		t.Errorf("expected caller supplied identity to be kept, got %d", dingo.ID)
	}
	if !sess.InTransaction() {
		t.Fatal("expected transaction to stay active")
	}

	if err := sess.Commit(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPersist_InvalidEntities(t *testing.T) {
	f, _ := newKennelFactory(t, true)
	s := f.NewSession()

	if err := s.Persist(Dog{Name: "by value"}); !goerrors.IsCategory(err, goerrors.CategoryBadInput) {
		t.Errorf("expected bad input for a non-pointer, got %v", err)
	}
	if err := s.Persist((*Dog)(nil)); err == nil {
		t.Error("expected error for a nil pointer")
	}
	type cat struct{ ID int64 }
	if err := s.Persist(&cat{}); !errs.IsUnknownEntity(err) {
		t.Errorf("expected UnknownEntityError, got %v", err)
	}
}

func TestDetachAndClear(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	lassie, _ := Find[Dog](ctx, s, k.Dogs["Lassie"])
	rexo, _ := Find[Dog](ctx, s, k.Dogs["Rexo"])

	s.Detach(lassie)
	if s.Contains(lassie) {
		t.Error("detached entity must not be contained")
	}
	if !s.Contains(rexo) {
		t.Error("other entities must stay managed")
	}
	again, _ := Find[Dog](ctx, s, k.Dogs["Lassie"])
	if again == lassie {
		t.Error("finding a detached entity must yield a new instance")
	}

	pup := &Dog{Name: "Pup"}
	if err := s.Persist(pup); err != nil {
		t.Fatalf("persist: %v", err)
	}
	s.Clear()
	if s.Contains(rexo) || s.Contains(pup) {
		t.Error("clear must detach everything")
	}
	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	k.Store.ResetCounters()
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := k.Store.Writes(); got != 0 {
		t.Errorf("clear must drop staged writes, got %d writes", got)
	}
	if s.Contains(42) {
		t.Error("non-entities are never contained")
	}
}

func TestClose_RollsBack(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Persist(&Breed{Name: "dingo"}); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.InTransaction() {
		t.Error("close must end the transaction")
	}

	var count int
	if err := k.Store.DB().NewSelect().Model((*Breed)(nil)).ColumnExpr("count(*)").Scan(ctx, &count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected flushed insert to be rolled back, got %d breeds", count)
	}
}
