package query

import (
	"fmt"
	"strconv"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/goliatone/go-entity-session/errs"
	"github.com/goliatone/go-entity-session/registry"
)

// Compiled is a query rendered to SQL with positional ? placeholders.
type Compiled struct {
	SQL  string
	Args []any
	// Root is the mapping of the selected entity.
	Root registry.Mapping
}

// CompileOption customizes Compile.
type CompileOption func(*compileOptions)

type compileOptions struct {
	dialectName dialect.Name
}

// WithDialect renders paging for the named bun dialect. Without it the SQL
// targets sqlite.
func WithDialect(name dialect.Name) CompileOption {
	return func(o *compileOptions) {
		o.dialectName = name
	}
}

type compiler struct {
	aliases   map[string]registry.Mapping
	rootAlias string
	args      []any
}

// column resolves "alias.field" (or a bare field on the root) to a quoted
// column reference.
func (c *compiler) column(path string) (string, error) {
	alias, field := c.rootAlias, path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		alias, field = path[:i], path[i+1:]
	}
	m, ok := c.aliases[alias]
	if !ok {
		return "", errs.Compilation(path, fmt.Sprintf("unknown alias %q", alias), nil)
	}
	col, ok := m.Column(field)
	if !ok {
		return "", errs.Compilation(path, fmt.Sprintf("unknown field %q on %s", field, m.Type), nil)
	}
	return quoteIdent(alias) + "." + quoteIdent(col), nil
}

type compiledParts struct {
	root      registry.Mapping
	rootAlias string
	columns   []string
	joins     []string
	where     string
	args      []any
	orders    []string
}

func (q *Query) compileParts(r Resolver) (*compiledParts, error) {
	root, err := r.Resolve(q.root)
	if err != nil {
		return nil, errs.Compilation(string(q.root), "unknown root entity", err)
	}

	c := &compiler{aliases: map[string]registry.Mapping{}, rootAlias: q.alias}
	if c.rootAlias == "" {
		c.rootAlias = root.Alias
	}
	c.aliases[c.rootAlias] = root

	for _, j := range q.joins {
		m, err := r.Resolve(j.entity)
		if err != nil {
			return nil, errs.Compilation(string(j.entity), "unknown joined entity", err)
		}
		alias := j.alias
		if alias == "" {
			alias = m.Alias
		}
		if _, dup := c.aliases[alias]; dup {
			return nil, errs.Compilation(alias, "duplicate alias", nil)
		}
		c.aliases[alias] = m
	}

	p := &compiledParts{root: root, rootAlias: c.rootAlias}
	for _, col := range root.SelectColumns() {
		p.columns = append(p.columns, quoteIdent(c.rootAlias)+"."+quoteIdent(col))
	}

	for _, j := range q.joins {
		m, _ := r.Resolve(j.entity)
		alias := j.alias
		if alias == "" {
			alias = m.Alias
		}
		left, err := c.column(j.on.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.column(j.on.Right)
		if err != nil {
			return nil, err
		}
		p.joins = append(p.joins, fmt.Sprintf("%s %s AS %s ON %s = %s",
			j.kind, quoteIdent(m.Table), quoteIdent(alias), left, right))
	}

	if len(q.where) > 0 {
		var b strings.Builder
		if err := And(q.where...).appendSQL(c, &b); err != nil {
			return nil, err
		}
		p.where = b.String()
		p.args = c.args
	}

	for _, o := range q.orders {
		col, err := c.column(o.path)
		if err != nil {
			return nil, err
		}
		if o.desc {
			p.orders = append(p.orders, col+" DESC")
		} else {
			p.orders = append(p.orders, col+" ASC")
		}
	}

	return p, nil
}

// Compile renders q against the mappings known to r. Unknown entities,
// aliases or fields yield a CompilationError.
func (q *Query) Compile(r Resolver, opts ...CompileOption) (Compiled, error) {
	o := compileOptions{dialectName: dialect.SQLite}
	for _, opt := range opts {
		opt(&o)
	}

	p, err := q.compileParts(r)
	if err != nil {
		return Compiled{}, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(strings.Join(p.columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(p.root.Table))
	b.WriteString(" AS ")
	b.WriteString(quoteIdent(p.rootAlias))
	for _, j := range p.joins {
		b.WriteByte(' ')
		b.WriteString(j)
	}
	if p.where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(p.where)
	}
	if len(p.orders) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(p.orders, ", "))
	}
	if q.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.limit))
	}
	if q.offset > 0 {
		if q.limit <= 0 && o.dialectName == dialect.SQLite {
			// sqlite requires LIMIT before OFFSET; postgres rejects a negative one
			b.WriteString(" LIMIT -1")
		}
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(q.offset))
	}

	return Compiled{SQL: b.String(), Args: p.args, Root: p.root}, nil
}

// Criteria renders q as select criteria for a bun query whose model is the
// root entity. The root alias must be the model's table alias.
func (q *Query) Criteria(r Resolver) (repository.SelectCriteria, error) {
	p, err := q.compileParts(r)
	if err != nil {
		return nil, err
	}
	if p.rootAlias != p.root.Alias {
		return nil, errs.Compilation(p.rootAlias, fmt.Sprintf("criteria must use the model alias %q", p.root.Alias), nil)
	}

	limit, offset, distinct := q.limit, q.offset, q.distinct
	return func(sq *bun.SelectQuery) *bun.SelectQuery {
		if distinct {
			sq = sq.Distinct()
		}
		for _, j := range p.joins {
			sq = sq.Join(j)
		}
		if p.where != "" {
			sq = sq.Where(p.where, p.args...)
		}
		for _, o := range p.orders {
			sq = sq.OrderExpr(o)
		}
		if limit > 0 {
			sq = sq.Limit(limit)
		}
		if offset > 0 {
			sq = sq.Offset(offset)
		}
		return sq
	}, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
