package session

import (
	"context"
	"testing"

	"github.com/goliatone/go-entity-session/cache"
	"github.com/goliatone/go-entity-session/errs"
	"github.com/goliatone/go-entity-session/pkg/testsupport"
)

type (
	Dog   = testsupport.Dog
	Breed = testsupport.Breed
)

func newKennelFactory(t *testing.T, cacheEnabled bool) (*Factory, *testsupport.Kennel) {
	t.Helper()
	k := testsupport.OpenKennel(t)

	cfg := cache.DefaultConfig()
	cfg.Enabled = cacheEnabled
	c, err := cache.New(cfg)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	f, err := NewFactory(k.Store, k.Registry, c)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	t.Cleanup(func() { f.Close(context.Background()) })
	return f, k
}

func TestFind_IdentityMap(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	first, err := Find[Dog](ctx, s, k.Dogs["Lassie"])
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if first == nil || first.Name != "Lassie" {
		t.Fatalf("expected Lassie, got %+v", first)
	}
	second, err := Find[Dog](ctx, s, k.Dogs["Lassie"])
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if first != second {
		t.Error("expected the same instance within a session")
	}
	if got := k.Store.Reads(); got != 1 {
		t.Errorf("expected 1 store read, got %d", got)
	}
	if !s.Contains(first) {
		t.Error("expected loaded entity to be managed")
	}
}

func TestFind_MissingIsNil(t *testing.T) {
	ctx := context.Background()
	f, _ := newKennelFactory(t, true)
	s := f.NewSession()

	dog, err := Find[Dog](ctx, s, 999)
	if err != nil {
		t.Fatalf("a miss must not be an error, got %v", err)
	}
	if dog != nil {
		t.Errorf("expected nil, got %+v", dog)
	}
}

func TestFind_UnregisteredType(t *testing.T) {
	type cat struct{ ID int64 }
	f, _ := newKennelFactory(t, true)

	_, err := Find[cat](context.Background(), f.NewSession(), 1)
	if !errs.IsUnknownEntity(err) {
		t.Errorf("expected UnknownEntityError, got %v", err)
	}
}

func TestFind_SecondLevelCacheAcrossSessions(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	id := k.Dogs["Rexo"]

	s1 := f.NewSession()
	a, err := Find[Dog](ctx, s1, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	s2 := f.NewSession()
	b, err := Find[Dog](ctx, s2, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if a == b {
		t.Error("sessions must not share instances")
	}
	if b.Name != "Rexo" {
		t.Errorf("expected Rexo, got %q", b.Name)
	}
	if got := k.Store.Reads(); got != 1 {
		t.Errorf("expected second session to be served from cache, got %d reads", got)
	}

	s2.Clear()
	if _, err := Find[Dog](ctx, s2, id); err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := k.Store.Reads(); got != 1 {
		t.Errorf("expected clear alone to keep using the cache, got %d reads", got)
	}

	if err := f.Cache().EvictAll(ctx); err != nil {
		t.Fatalf("evict: %v", err)
	}
	s2.Clear()
	if _, err := Find[Dog](ctx, s2, id); err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := k.Store.Reads(); got != 2 {
		t.Errorf("expected evictAll and clear to force a store read, got %d reads", got)
	}
}

func TestFind_CacheDisabled(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, false)
	s := f.NewSession()

	for i := 1; i <= 3; i++ {
		s.Clear()
		if _, err := Find[Dog](ctx, s, k.Dogs["Lassie"]); err != nil {
			t.Fatalf("find: %v", err)
		}
		if got := k.Store.Reads(); got != int64(i) {
			t.Errorf("expected %d reads without a cache, got %d", i, got)
		}
	}
}

func TestFactory_NilCacheDisablesCaching(t *testing.T) {
	ctx := context.Background()
	k := testsupport.OpenKennel(t)
	f, err := NewFactory(k.Store, k.Registry, nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	s := f.NewSession()
	if _, err := Find[Breed](ctx, s, k.Breeds["wolf"]); err != nil {
		t.Fatalf("find: %v", err)
	}
	if f.Cache().Stats().Entries != 0 {
		t.Error("expected nothing to be cached")
	}

	if _, err := NewFactory(nil, k.Registry, nil); err == nil {
		t.Error("expected error without a store")
	}
}

func TestGetReference_Lazy(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()
	id := k.Dogs["Lassie"]

	ref, err := GetReference[Dog](s, id)
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	if ref.ID() != id {
		t.Errorf("expected id %d, got %v", id, ref.ID())
	}
	if ref.Loaded() {
		t.Error("reference must start unresolved")
	}
	if got := k.Store.Reads(); got != 0 {
		t.Fatalf("ID must not touch the store, got %d reads", got)
	}

	dog, err := ref.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dog.Name != "Lassie" {
		t.Errorf("expected Lassie, got %q", dog.Name)
	}
	again, _ := ref.Get(ctx)
	if again != dog {
		t.Error("expected memoized instance")
	}
	if got := k.Store.Reads(); got != 1 {
		t.Errorf("expected exactly one load, got %d reads", got)
	}

	found, _ := Find[Dog](ctx, s, id)
	if found != dog {
		t.Error("reference must resolve to the managed instance")
	}
}

func TestGetReference_MissingIsNotFoundOnce(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	ref, err := GetReference[Dog](s, 404)
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	_, err = ref.Get(ctx)
	if !errs.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	_, again := ref.Get(ctx)
	if again != err {
		t.Error("expected memoized error")
	}
	if got := k.Store.Reads(); got != 1 {
		t.Errorf("a failed load must not be retried, got %d reads", got)
	}
}

func TestGetReference_BornResolved(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	dog, err := Find[Dog](ctx, s, k.Dogs["Rexo"])
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	ref, err := GetReference[Dog](s, k.Dogs["Rexo"])
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	if !ref.Loaded() {
		t.Error("reference to a managed entity must be resolved")
	}
	got, _ := ref.Get(ctx)
	if got != dog {
		t.Error("expected the managed instance")
	}
}

func TestRelated_DerivedFromChain(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	current, err := Find[Breed](ctx, s, k.Breeds["collie"])
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	var path []string
	hops := 0
	for {
		next, err := Related[Breed](ctx, s, current, "derivedFrom")
		if err != nil {
			t.Fatalf("related: %v", err)
		}
		if next == nil {
			break
		}
		hops++
		path = append(path, next.Name)
		current = next
	}

	if hops != 2 {
		t.Fatalf("expected 2 hops, got %d (%v)", hops, path)
	}
	if path[0] != "german shepherd" || path[1] != "wolf" {
		t.Errorf("unexpected chain %v", path)
	}
}

func TestRelated_Errors(t *testing.T) {
	ctx := context.Background()
	f, k := newKennelFactory(t, true)
	s := f.NewSession()

	dog, err := Find[Dog](ctx, s, k.Dogs["Lassie"])
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	// dog.breedID is an id-only column, not a declared relation
	if _, err := Related[Breed](ctx, s, dog, "breed"); err == nil {
		t.Error("expected error for undeclared relation")
	}

	breed, _ := Find[Breed](ctx, s, k.Breeds["collie"])
	if _, err := Related[Dog](ctx, s, breed, "derivedFrom"); err == nil {
		t.Error("expected error for mismatched relation target")
	}
}
