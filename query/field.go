package query

// FieldRef is an untyped reference to "alias.field". A bare "field" refers to
// the root entity of the query.
type FieldRef struct {
	path string
}

// Field creates an untyped field reference.
func Field(path string) FieldRef {
	return FieldRef{path: path}
}

// Path returns the reference as written.
func (f FieldRef) Path() string { return f.path }

func (f FieldRef) Eq(v any) Predicate { return comparison{path: f.path, op: "=", value: v} }
func (f FieldRef) Ne(v any) Predicate { return comparison{path: f.path, op: "<>", value: v} }

// Ref is anything naming a field path; all field reference types satisfy it.
type Ref interface {
	Path() string
}

// EqField compares two columns, e.g. breed.id = dog.breedID.
func (f FieldRef) EqField(other Ref) Predicate {
	return fieldComparison{left: f.path, right: other.Path(), op: "="}
}

func (f FieldRef) IsNull() Predicate  { return nullPredicate{path: f.path} }
func (f FieldRef) NotNull() Predicate { return nullPredicate{path: f.path, not: true} }

// StringField is a typed reference to a text column.
type StringField struct {
	FieldRef
}

// String creates a typed text field reference.
func String(path string) StringField {
	return StringField{FieldRef{path: path}}
}

func (f StringField) Eq(v string) Predicate { return f.FieldRef.Eq(v) }
func (f StringField) Ne(v string) Predicate { return f.FieldRef.Ne(v) }

// Like matches pattern with SQL wildcard semantics: % is any run of
// characters and _ is exactly one. A backslash escapes the next character,
// as it does in Matches.
func (f StringField) Like(pattern string) Predicate {
	return likePredicate{path: f.path, pattern: pattern}
}

// Contains matches values containing s literally; wildcards in s are escaped.
func (f StringField) Contains(s string) Predicate {
	return likePredicate{path: f.path, pattern: "%" + EscapeLike(s) + "%"}
}

// StartsWith matches values beginning with s literally.
func (f StringField) StartsWith(s string) Predicate {
	return likePredicate{path: f.path, pattern: EscapeLike(s) + "%"}
}

// EndsWith matches values ending with s literally.
func (f StringField) EndsWith(s string) Predicate {
	return likePredicate{path: f.path, pattern: "%" + EscapeLike(s)}
}

func (f StringField) In(values ...string) Predicate {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return inPredicate{path: f.path, values: args}
}

// IntField is a typed reference to an integer column.
type IntField struct {
	FieldRef
}

// Int creates a typed integer field reference.
func Int(path string) IntField {
	return IntField{FieldRef{path: path}}
}

func (f IntField) Eq(v int64) Predicate  { return f.FieldRef.Eq(v) }
func (f IntField) Ne(v int64) Predicate  { return f.FieldRef.Ne(v) }
func (f IntField) Gt(v int64) Predicate  { return comparison{path: f.path, op: ">", value: v} }
func (f IntField) Gte(v int64) Predicate { return comparison{path: f.path, op: ">=", value: v} }
func (f IntField) Lt(v int64) Predicate  { return comparison{path: f.path, op: "<", value: v} }
func (f IntField) Lte(v int64) Predicate { return comparison{path: f.path, op: "<=", value: v} }

func (f IntField) In(values ...int64) Predicate {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return inPredicate{path: f.path, values: args}
}
