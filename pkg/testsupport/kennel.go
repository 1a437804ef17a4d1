package testsupport

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity-session/query"
	"github.com/goliatone/go-entity-session/registry"
	"github.com/goliatone/go-entity-session/store"
)

// Entity types of the kennel domain.
const (
	BreedType registry.EntityType = "breed"
	DogType   registry.EntityType = "dog"
)

// Breed may be derived from another breed.
type Breed struct {
	bun.BaseModel `bun:"table:breeds,alias:breed"`

	ID            int64  `bun:"id,pk,autoincrement" json:"id"`
	Name          string `bun:"name,notnull" json:"name"`
	DerivedFromID *int64 `bun:"derived_from_id" json:"derived_from_id,omitempty"`
}

// Dog references its breed by id only; there is no declared relation.
type Dog struct {
	bun.BaseModel `bun:"table:dogs,alias:dog"`

	ID      int64  `bun:"id,pk,autoincrement" json:"id"`
	Name    string `bun:"name,notnull" json:"name"`
	BreedID *int64 `bun:"breed_id" json:"breed_id,omitempty"`
}

// Typed field references for kennel queries.
var (
	DogID      = query.Int("dog.id")
	DogName    = query.String("dog.name")
	DogBreedID = query.Int("dog.breedID")

	BreedID            = query.Int("breed.id")
	BreedName          = query.String("breed.name")
	BreedDerivedFromID = query.Int("breed.derivedFromID")
)

//go:embed testdata/kennel.json
var kennelSeed []byte

type kennelSeedFile struct {
	Breeds []struct {
		Name        string `json:"name"`
		DerivedFrom string `json:"derived_from"`
	} `json:"breeds"`
	Dogs []struct {
		Name  string `json:"name"`
		Breed string `json:"breed"`
	} `json:"dogs"`
}

// Kennel is a seeded kennel store.
type Kennel struct {
	Store    *store.Store
	Registry *registry.Registry

	// Breeds and Dogs map seeded names to their identities.
	Breeds map[string]int64
	Dogs   map[string]int64
}

// RegisterKennel registers Breed and Dog with r.
func RegisterKennel(db *bun.DB, r *registry.Registry) error {
	if _, err := r.RegisterModel(db, (*Breed)(nil),
		registry.WithEntityType(BreedType),
		registry.WithRelation("derivedFrom", "derived_from_id", BreedType),
	); err != nil {
		return err
	}
	_, err := r.RegisterModel(db, (*Dog)(nil), registry.WithEntityType(DogType))
	return err
}

// CreateKennelSchema creates the kennel tables when they do not exist.
func CreateKennelSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range []any{(*Breed)(nil), (*Dog)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

// SeedKennel inserts the embedded seed and returns the assigned identities.
// Breeds are inserted in file order so derived_from can refer to earlier rows.
func SeedKennel(ctx context.Context, db bun.IDB) (breeds, dogs map[string]int64, err error) {
	var seed kennelSeedFile
	if err := json.Unmarshal(kennelSeed, &seed); err != nil {
		return nil, nil, fmt.Errorf("decode kennel seed: %w", err)
	}

	breeds = make(map[string]int64, len(seed.Breeds))
	for _, b := range seed.Breeds {
		breed := &Breed{Name: b.Name}
		if b.DerivedFrom != "" {
			id, ok := breeds[b.DerivedFrom]
			if !ok {
				return nil, nil, fmt.Errorf("breed %q derives from unknown breed %q", b.Name, b.DerivedFrom)
			}
			breed.DerivedFromID = &id
		}
		if _, err := db.NewInsert().Model(breed).Exec(ctx); err != nil {
			return nil, nil, fmt.Errorf("seed breed %q: %w", b.Name, err)
		}
		breeds[b.Name] = breed.ID
	}

	dogs = make(map[string]int64, len(seed.Dogs))
	for _, d := range seed.Dogs {
		dog := &Dog{Name: d.Name}
		if d.Breed != "" {
			id, ok := breeds[d.Breed]
			if !ok {
				return nil, nil, fmt.Errorf("dog %q has unknown breed %q", d.Name, d.Breed)
			}
			dog.BreedID = &id
		}
		if _, err := db.NewInsert().Model(dog).Exec(ctx); err != nil {
			return nil, nil, fmt.Errorf("seed dog %q: %w", d.Name, err)
		}
		dogs[d.Name] = dog.ID
	}
	return breeds, dogs, nil
}

// KennelURI returns a file backed sqlite URI under dir. LIKE is made case
// sensitive so results agree with query.Matches.
func KennelURI(dir string) string {
	return "file:" + filepath.Join(dir, "kennel.db") + "?_busy_timeout=5000&_journal_mode=WAL&_cslike=1"
}

// OpenKennel opens a seeded kennel store under t.TempDir. The store is closed
// when the test ends and its counters start at zero.
func OpenKennel(t testing.TB) *Kennel {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, store.Config{URI: KennelURI(t.TempDir())})
	if err != nil {
		t.Fatalf("open kennel store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	r := registry.New()
	if err := RegisterKennel(s.DB(), r); err != nil {
		t.Fatalf("register kennel: %v", err)
	}
	if err := CreateKennelSchema(ctx, s.DB()); err != nil {
		t.Fatalf("create kennel schema: %v", err)
	}
	breeds, dogs, err := SeedKennel(ctx, s.DB())
	if err != nil {
		t.Fatalf("seed kennel: %v", err)
	}

	s.ResetCounters()
	return &Kennel{Store: s, Registry: r, Breeds: breeds, Dogs: dogs}
}
