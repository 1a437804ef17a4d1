package query

import (
	"strings"
)

// Predicate is a node of a where-clause tree. Predicates are built from field
// references and the And/Or/Not combinators.
type Predicate interface {
	appendSQL(c *compiler, b *strings.Builder) error
}

type comparison struct {
	path  string
	op    string
	value any
}

func (p comparison) appendSQL(c *compiler, b *strings.Builder) error {
	col, err := c.column(p.path)
	if err != nil {
		return err
	}
	b.WriteString(col)
	b.WriteByte(' ')
	b.WriteString(p.op)
	b.WriteString(" ?")
	c.args = append(c.args, p.value)
	return nil
}

type fieldComparison struct {
	left, right string
	op          string
}

func (p fieldComparison) appendSQL(c *compiler, b *strings.Builder) error {
	left, err := c.column(p.left)
	if err != nil {
		return err
	}
	right, err := c.column(p.right)
	if err != nil {
		return err
	}
	b.WriteString(left)
	b.WriteByte(' ')
	b.WriteString(p.op)
	b.WriteByte(' ')
	b.WriteString(right)
	return nil
}

// likePredicate always declares EscapeChar so the store agrees with Matches.
type likePredicate struct {
	path    string
	pattern string
}

func (p likePredicate) appendSQL(c *compiler, b *strings.Builder) error {
	col, err := c.column(p.path)
	if err != nil {
		return err
	}
	b.WriteString(col)
	b.WriteString(" LIKE ? ESCAPE '")
	b.WriteRune(EscapeChar)
	b.WriteByte('\'')
	c.args = append(c.args, p.pattern)
	return nil
}

type nullPredicate struct {
	path string
	not  bool
}

func (p nullPredicate) appendSQL(c *compiler, b *strings.Builder) error {
	col, err := c.column(p.path)
	if err != nil {
		return err
	}
	b.WriteString(col)
	if p.not {
		b.WriteString(" IS NOT NULL")
	} else {
		b.WriteString(" IS NULL")
	}
	return nil
}

type inPredicate struct {
	path   string
	values []any
}

func (p inPredicate) appendSQL(c *compiler, b *strings.Builder) error {
	col, err := c.column(p.path)
	if err != nil {
		return err
	}
	if len(p.values) == 0 {
		// IN () is not valid SQL; an empty set matches nothing
		b.WriteString("1 = 0")
		return nil
	}
	b.WriteString(col)
	b.WriteString(" IN (")
	for i, v := range p.values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('?')
		c.args = append(c.args, v)
	}
	b.WriteByte(')')
	return nil
}

type group struct {
	op    string
	preds []Predicate
}

func (g group) appendSQL(c *compiler, b *strings.Builder) error {
	switch {
	case len(g.preds) == 0 && g.op == "OR":
		b.WriteString("1 = 0")
		return nil
	case len(g.preds) == 0:
		b.WriteString("1 = 1")
		return nil
	case len(g.preds) == 1:
		return g.preds[0].appendSQL(c, b)
	}
	b.WriteByte('(')
	for i, p := range g.preds {
		if i > 0 {
			b.WriteByte(' ')
			b.WriteString(g.op)
			b.WriteByte(' ')
		}
		if err := p.appendSQL(c, b); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

type negation struct {
	pred Predicate
}

func (n negation) appendSQL(c *compiler, b *strings.Builder) error {
	b.WriteString("NOT (")
	if err := n.pred.appendSQL(c, b); err != nil {
		return err
	}
	b.WriteByte(')')
	return nil
}

// And joins predicates with AND. Nil predicates are skipped.
func And(preds ...Predicate) Predicate {
	return group{op: "AND", preds: compact(preds)}
}

// Or joins predicates with OR. Nil predicates are skipped.
func Or(preds ...Predicate) Predicate {
	return group{op: "OR", preds: compact(preds)}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return negation{pred: p}
}

func compact(preds []Predicate) []Predicate {
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
