// Package query builds typed predicate trees over registered entities and
// compiles them to SQL.
//
// Field references are written as "alias.field", where field is the logical
// name from the registry (or its column name). Joins take an explicit column
// equality instead of a declared relation, so any two columns can be joined:
//
//	q := query.From("dog", "dog").
//		LeftJoin("breed", "breed", query.On("breed.id", "dog.breedID")).
//		Where(query.String("breed.name").Contains("ll"))
//
//	compiled, err := q.Compile(reg)
//
// Like follows SQL wildcard semantics (% any run, _ one character) and
// declares ESCAPE '\', so a backslash makes the next character literal.
// Contains, StartsWith and EndsWith escape their argument first.
//
// Compile returns a CompilationError for unknown entities, aliases or fields.
// Criteria renders the same query as go-repository-bun select criteria for a
// bun query on the root model.
package query
