package registry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity-session/errs"
)

// DefaultIDField is the logical identity field assumed by Register.
const DefaultIDField = "id"

// EntityType is the logical name of a registered entity, e.g. "breed".
type EntityType string

func (t EntityType) String() string { return string(t) }

// Relation declares a foreign-key column that points at another entity.
// Self references are allowed.
type Relation struct {
	// Field is the logical relation name, e.g. "derivedFrom".
	Field string
	// Column is the foreign-key column holding the target identity.
	Column string
	// Target is the entity type the column references.
	Target EntityType
}

// Mapping describes how an entity type is stored.
type Mapping struct {
	Type      EntityType
	Table     string
	Alias     string
	IDField   string
	Fields    []string
	Columns   map[string]string
	Relations map[string]Relation

	// Model is the struct type hydrated for this entity. It is nil for
	// metadata-only registrations, which can be compiled against but not loaded.
	Model reflect.Type

	goIndex map[string][]int
}

// Column resolves a field reference to its column. The reference may be the
// logical field name, the column name, or a case-insensitive logical name.
func (m Mapping) Column(field string) (string, bool) {
	name, ok := m.FieldName(field)
	if !ok {
		return "", false
	}
	return m.Columns[name], true
}

// FieldName returns the canonical logical name for a field reference.
func (m Mapping) FieldName(field string) (string, bool) {
	if _, ok := m.Columns[field]; ok {
		return field, true
	}
	for _, name := range m.Fields {
		if m.Columns[name] == field {
			return name, true
		}
	}
	for _, name := range m.Fields {
		if strings.EqualFold(name, field) {
			return name, true
		}
	}
	return "", false
}

// IDColumn returns the identity column.
func (m Mapping) IDColumn() string {
	return m.Columns[m.IDField]
}

// SelectColumns returns the mapped columns in field order.
func (m Mapping) SelectColumns() []string {
	cols := make([]string, 0, len(m.Fields))
	for _, name := range m.Fields {
		cols = append(cols, m.Columns[name])
	}
	return cols
}

// Relation returns the relation declared under field.
func (m Mapping) Relation(field string) (Relation, bool) {
	if rel, ok := m.Relations[field]; ok {
		return rel, true
	}
	for name, rel := range m.Relations {
		if strings.EqualFold(name, field) {
			return rel, true
		}
	}
	return Relation{}, false
}

// HasModel reports whether entities of this type can be hydrated.
func (m Mapping) HasModel() bool {
	return m.Model != nil
}

// Registry maps entity types to their storage metadata. It is safe for
// concurrent use; registrations are expected at startup.
type Registry struct {
	mappings *xsync.MapOf[EntityType, Mapping]
	models   *xsync.MapOf[reflect.Type, EntityType]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		mappings: xsync.NewMapOf[EntityType, Mapping](),
		models:   xsync.NewMapOf[reflect.Type, EntityType](),
	}
}

// Register adds a metadata-only mapping. columns maps logical field names to
// column names and must contain DefaultIDField.
func (r *Registry) Register(t EntityType, table string, columns map[string]string, relations ...Relation) error {
	fields := make([]string, 0, len(columns))
	for name := range columns {
		if name != DefaultIDField {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	if _, ok := columns[DefaultIDField]; ok {
		fields = append([]string{DefaultIDField}, fields...)
	}

	rels := make(map[string]Relation, len(relations))
	for _, rel := range relations {
		rels[rel.Field] = rel
	}

	return r.RegisterMapping(Mapping{
		Type:      t,
		Table:     table,
		Alias:     string(t),
		IDField:   DefaultIDField,
		Fields:    fields,
		Columns:   columns,
		Relations: rels,
	})
}

// RegisterMapping adds a fully specified mapping.
func (r *Registry) RegisterMapping(m Mapping) error {
	if m.Alias == "" {
		m.Alias = string(m.Type)
	}
	if err := validateMapping(m); err != nil {
		return err
	}

	if _, loaded := r.mappings.LoadOrStore(m.Type, m); loaded {
		return goerrors.New(fmt.Sprintf("entity type %q already registered", m.Type), goerrors.CategoryConflict).
			WithTextCode("DUPLICATE_ENTITY")
	}
	if m.Model != nil {
		r.models.Store(m.Model, m.Type)
	}
	return nil
}

func validateMapping(m Mapping) error {
	err := validation.ValidateStruct(&m,
		validation.Field(&m.Type, validation.Required),
		validation.Field(&m.Table, validation.Required),
		validation.Field(&m.IDField, validation.Required),
		validation.Field(&m.Columns, validation.Required),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, fmt.Sprintf("invalid mapping for %q", m.Type))
	}

	if _, ok := m.Columns[m.IDField]; !ok {
		return goerrors.New(fmt.Sprintf("mapping %q has no column for id field %q", m.Type, m.IDField), goerrors.CategoryValidation)
	}
	for _, rel := range m.Relations {
		if rel.Field == "" || rel.Column == "" || rel.Target == "" {
			return goerrors.New(fmt.Sprintf("mapping %q has an incomplete relation %+v", m.Type, rel), goerrors.CategoryValidation)
		}
	}
	return nil
}

// Resolve returns the mapping for t or an UnknownEntityError.
func (r *Registry) Resolve(t EntityType) (Mapping, error) {
	m, ok := r.mappings.Load(t)
	if !ok {
		return Mapping{}, errs.UnknownEntity(string(t))
	}
	return m, nil
}

// ResolveModel returns the mapping registered for a Go struct type. Pointer
// types are dereferenced.
func (r *Registry) ResolveModel(typ reflect.Type) (Mapping, error) {
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil {
		return Mapping{}, errs.UnknownEntity("<nil>")
	}
	t, ok := r.models.Load(typ)
	if !ok {
		return Mapping{}, errs.UnknownEntity(typ.String())
	}
	return r.Resolve(t)
}

// ResolveEntity returns the mapping for the dynamic type of entity.
func (r *Registry) ResolveEntity(entity any) (Mapping, error) {
	return r.ResolveModel(reflect.TypeOf(entity))
}

// Types lists the registered entity types in sorted order.
func (r *Registry) Types() []EntityType {
	var out []EntityType
	r.mappings.Range(func(t EntityType, _ Mapping) bool {
		out = append(out, t)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ModelOption customizes RegisterModel.
type ModelOption func(*Mapping)

// WithEntityType overrides the entity type derived from the struct name.
func WithEntityType(t EntityType) ModelOption {
	return func(m *Mapping) { m.Type = t }
}

// WithRelation declares a foreign-key relation on the model.
func WithRelation(field, column string, target EntityType) ModelOption {
	return func(m *Mapping) {
		if m.Relations == nil {
			m.Relations = map[string]Relation{}
		}
		m.Relations[field] = Relation{Field: field, Column: column, Target: target}
	}
}

// RegisterModel derives a mapping from bun's schema for model, a struct or a
// pointer to one, and registers it. The entity type defaults to the
// snake_cased struct name.
func (r *Registry) RegisterModel(db *bun.DB, model any, opts ...ModelOption) (Mapping, error) {
	typ := reflect.TypeOf(model)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return Mapping{}, goerrors.New(fmt.Sprintf("model must be a struct, got %T", model), goerrors.CategoryBadInput)
	}

	table := db.Table(typ)
	if len(table.PKs) != 1 {
		return Mapping{}, goerrors.New(fmt.Sprintf("model %s must have exactly one primary key", typ), goerrors.CategoryValidation)
	}

	m := Mapping{
		Type:    EntityType(toSnake(typ.Name())),
		Table:   table.Name,
		Alias:   table.Alias,
		Columns: make(map[string]string, len(table.Fields)),
		Model:   typ,
		goIndex: make(map[string][]int, len(table.Fields)),
	}
	for _, f := range table.Fields {
		name := lowerCamel(f.GoName)
		m.Fields = append(m.Fields, name)
		m.Columns[name] = f.Name
		m.goIndex[name] = f.Index
		if f.IsPK {
			m.IDField = name
		}
	}
	for _, opt := range opts {
		opt(&m)
	}

	for _, rel := range m.Relations {
		if _, ok := m.FieldName(rel.Column); !ok {
			return Mapping{}, goerrors.New(fmt.Sprintf("relation %s.%s uses unmapped column %q", m.Type, rel.Field, rel.Column), goerrors.CategoryValidation)
		}
	}

	if err := r.RegisterMapping(m); err != nil {
		return Mapping{}, err
	}
	return m, nil
}
