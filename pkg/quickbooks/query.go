package quickbooks

import (
	"fmt"
	"regexp"
	"strings"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*(\.[A-Za-z][A-Za-z0-9]*)*$`)

// Condition is a single comparison in a query's WHERE clause.
type Condition struct {
	Field string
	Op    string
	Value string
}

// Eq compares a field to a literal value.
func Eq(field, value string) Condition {
	return Condition{Field: field, Op: "=", Value: value}
}

// Query builds accounting query-language statements with escaped literals.
type Query struct {
	entity string
	groups [][]Condition
	err    error
}

// Select starts a query over the given entity.
func Select(entity string) *Query {
	q := &Query{entity: entity}
	if !fieldNamePattern.MatchString(entity) || strings.Contains(entity, ".") {
		q.err = fmt.Errorf("invalid query entity %q", entity)
	}
	return q
}

// Where adds a condition joined with AND to the current group.
func (q *Query) Where(c Condition) *Query {
	q.check(c)
	if len(q.groups) == 0 {
		q.groups = append(q.groups, nil)
	}
	last := len(q.groups) - 1
	q.groups[last] = append(q.groups[last], c)
	return q
}

// Or starts a new group joined with OR.
func (q *Query) Or(c Condition) *Query {
	q.check(c)
	q.groups = append(q.groups, []Condition{c})
	return q
}

func (q *Query) check(c Condition) {
	if q.err != nil {
		return
	}
	if !fieldNamePattern.MatchString(c.Field) {
		q.err = fmt.Errorf("invalid query field %q", c.Field)
	}
}

// Build renders the statement.
func (q *Query) Build() (string, error) {
	if q.err != nil {
		return "", q.err
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(q.entity)

	for i, group := range q.groups {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" OR ")
		}
		for j, c := range group {
			if j > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString(c.Field)
			b.WriteString(" ")
			b.WriteString(c.Op)
			b.WriteString(" ")
			b.WriteString(quote(c.Value))
		}
	}

	return b.String(), nil
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}
