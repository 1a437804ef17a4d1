package query

import (
	"github.com/goliatone/go-entity-session/registry"
)

// Resolver looks up entity mappings. *registry.Registry satisfies it.
type Resolver interface {
	Resolve(t registry.EntityType) (registry.Mapping, error)
}

// JoinType selects the SQL join keyword.
type JoinType string

const (
	InnerJoin JoinType = "JOIN"
	LeftJoin  JoinType = "LEFT JOIN"
)

// Condition is an explicit column equality used to join two aliases. It does
// not need a declared relation between the entities.
type Condition struct {
	Left  string
	Right string
}

// On builds the join condition left = right, both given as "alias.field".
func On(left, right string) Condition {
	return Condition{Left: left, Right: right}
}

type join struct {
	kind   JoinType
	entity registry.EntityType
	alias  string
	on     Condition
}

type order struct {
	path string
	desc bool
}

// Query is a typed select over one root entity with optional joins. Only the
// root entity's columns are selected; joins exist to filter and order.
type Query struct {
	root     registry.EntityType
	alias    string
	joins    []join
	where    []Predicate
	orders   []order
	limit    int
	offset   int
	distinct bool
}

// From starts a query over entity. An empty alias defaults to the alias of
// the entity's mapping.
func From(entity registry.EntityType, alias string) *Query {
	return &Query{root: entity, alias: alias}
}

// Root returns the queried entity type.
func (q *Query) Root() registry.EntityType { return q.root }

// Join adds an inner join.
func (q *Query) Join(entity registry.EntityType, alias string, on Condition) *Query {
	q.joins = append(q.joins, join{kind: InnerJoin, entity: entity, alias: alias, on: on})
	return q
}

// LeftJoin adds a left outer join.
func (q *Query) LeftJoin(entity registry.EntityType, alias string, on Condition) *Query {
	q.joins = append(q.joins, join{kind: LeftJoin, entity: entity, alias: alias, on: on})
	return q
}

// Where adds predicates; multiple calls are combined with AND.
func (q *Query) Where(preds ...Predicate) *Query {
	q.where = append(q.where, compact(preds)...)
	return q
}

func (q *Query) OrderBy(path string) *Query {
	q.orders = append(q.orders, order{path: path})
	return q
}

func (q *Query) OrderByDesc(path string) *Query {
	q.orders = append(q.orders, order{path: path, desc: true})
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

func (q *Query) Distinct() *Query {
	q.distinct = true
	return q
}
