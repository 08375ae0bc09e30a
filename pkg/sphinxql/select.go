package sphinxql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/techu/techu/pkg/constants"
)

// SelectQuery represents a SELECT statement builder.
type SelectQuery struct {
	fields      []string
	indexes     []string
	conditions  []condition
	match       *string
	groupBy     string
	withinGroup []orderByClause
	orderBy     []orderByClause
	limit       *limitClause
	options     []option
	err         error
}

type condition struct {
	field string
	op    string
	value any
}

// orderByClause represents one ORDER BY key
type orderByClause struct {
	field string
	desc  bool
}

type limitClause struct {
	offset int
	count  int
}

// Select creates a new SELECT query builder. Without fields it selects *.
func Select(fields ...string) *SelectQuery {
	q := &SelectQuery{}
	for _, f := range fields {
		q.Field(f)
	}
	return q
}

func (q *SelectQuery) fail(err error) *SelectQuery {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Field adds a select expression: *, a column, a function call such as
// weight(), optionally aliased with AS.
func (q *SelectQuery) Field(expr string) *SelectQuery {
	expr = strings.TrimSpace(expr)
	if !selectExprRe.MatchString(expr) {
		return q.fail(constants.BuildErrorf("SELECT", "invalid select expression %q", expr))
	}
	q.fields = append(q.fields, expr)
	return q
}

// From adds indexes to the FROM clause. Repeated names are kept once.
func (q *SelectQuery) From(indexes ...string) *SelectQuery {
	for _, index := range indexes {
		if err := checkIdent("FROM", index); err != nil {
			return q.fail(err)
		}
		dup := false
		for _, existing := range q.indexes {
			if existing == index {
				dup = true
				break
			}
		}
		if !dup {
			q.indexes = append(q.indexes, index)
		}
	}
	return q
}

// Where adds an ANDed attribute filter: field op ?.
//
// IN and NOT IN take a non-empty list and BETWEEN a two element list:
//
//	q.Where("price", ">=", 10).Where("brand_id", "IN", []int{1, 2})
//	// WHERE price >= ? AND brand_id IN (?, ?)
func (q *SelectQuery) Where(field, op string, value any) *SelectQuery {
	if err := checkIdent("WHERE", field); err != nil {
		return q.fail(err)
	}
	op = strings.ToUpper(strings.Join(strings.Fields(op), " "))
	if err := checkOperand("WHERE", op, value); err != nil {
		return q.fail(err)
	}
	q.conditions = append(q.conditions, condition{field: field, op: op, value: value})
	return q
}

// Match sets the full-text predicate. It is rendered after all filters.
func (q *SelectQuery) Match(text string) *SelectQuery {
	q.match = &text
	return q
}

// GroupBy sets the GROUP BY attribute.
func (q *SelectQuery) GroupBy(field string) *SelectQuery {
	if err := checkIdent("GROUP BY", field); err != nil {
		return q.fail(err)
	}
	q.groupBy = field
	return q
}

// WithinGroupOrderBy adds a WITHIN GROUP ORDER BY key.
func (q *SelectQuery) WithinGroupOrderBy(field, direction string) *SelectQuery {
	o, err := newOrderBy("WITHIN GROUP ORDER BY", field, direction)
	if err != nil {
		return q.fail(err)
	}
	q.withinGroup = append(q.withinGroup, o)
	return q
}

// OrderBy adds an ORDER BY key. direction is ASC, DESC, 1 or -1; empty
// means ASC.
func (q *SelectQuery) OrderBy(field, direction string) *SelectQuery {
	o, err := newOrderBy("ORDER BY", field, direction)
	if err != nil {
		return q.fail(err)
	}
	q.orderBy = append(q.orderBy, o)
	return q
}

// Limit sets LIMIT offset, count.
func (q *SelectQuery) Limit(offset, count int) *SelectQuery {
	if offset < 0 {
		return q.fail(constants.BuildErrorf("LIMIT", "offset must not be negative, got %d", offset))
	}
	if count <= 0 {
		return q.fail(constants.BuildErrorf("LIMIT", "count must be positive, got %d", count))
	}
	q.limit = &limitClause{offset: offset, count: count}
	return q
}

// Option adds an OPTION name = value pair. Only recognized options are
// accepted; see [OptionNames].
func (q *SelectQuery) Option(name string, value any) *SelectQuery {
	o, err := newOption(name, value)
	if err != nil {
		return q.fail(err)
	}
	q.options = append(q.options, o)
	return q
}

// Build returns the SphinxQL string and bound values for the query.
func (q *SelectQuery) Build() (string, []any, error) {
	return build(q)
}

func (q *SelectQuery) build(c *queryBuildContext, b *strings.Builder) error {
	if q.err != nil {
		return q.err
	}
	if len(q.indexes) == 0 {
		return constants.BuildErrorf("FROM", "at least one index is required")
	}

	b.WriteString("SELECT ")
	if len(q.fields) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(q.fields, ", "))
	}

	b.WriteString(" FROM ")
	b.WriteString(strings.Join(q.indexes, ", "))

	q.buildWhere(c, b)

	if q.groupBy != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(q.groupBy)
	}

	if len(q.withinGroup) > 0 {
		b.WriteString(" WITHIN GROUP ORDER BY ")
		writeOrderBy(b, q.withinGroup)
	}

	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		writeOrderBy(b, q.orderBy)
	}

	if q.limit != nil {
		fmt.Fprintf(b, " LIMIT %d, %d", q.limit.offset, q.limit.count)
	}

	if len(q.options) > 0 {
		b.WriteString(" OPTION ")
		for i, o := range q.options {
			if i > 0 {
				b.WriteString(", ")
			}
			o.build(c, b)
		}
	}

	return nil
}

func (q *SelectQuery) buildWhere(c *queryBuildContext, b *strings.Builder) {
	if len(q.conditions) == 0 && q.match == nil {
		return
	}

	preds := make([]string, 0, len(q.conditions)+1)
	for _, cond := range q.conditions {
		preds = append(preds, cond.build(c))
	}
	if q.match != nil {
		preds = append(preds, "MATCH("+c.bind(*q.match)+")")
	}

	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(preds, " AND "))
}

func (cond condition) build(c *queryBuildContext) string {
	switch cond.op {
	case "IN", "NOT IN":
		list, _ := asList(cond.value)
		return fmt.Sprintf("%s %s (%s)", cond.field, cond.op, c.bindList(list))
	case "BETWEEN":
		list, _ := asList(cond.value)
		return fmt.Sprintf("%s BETWEEN %s AND %s", cond.field, c.bind(list[0]), c.bind(list[1]))
	default:
		return fmt.Sprintf("%s %s %s", cond.field, cond.op, c.bind(cond.value))
	}
}

func checkOperand(clause, op string, value any) error {
	switch op {
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		if !isScalar(value) {
			return constants.BuildErrorf(clause, "operator %s needs a scalar value, got %T", op, value)
		}
	case "IN", "NOT IN":
		list, ok := asList(value)
		if !ok || len(list) == 0 {
			return constants.BuildErrorf(clause, "operator %s needs a non-empty list", op)
		}
		for _, el := range list {
			if !isScalar(el) {
				return constants.BuildErrorf(clause, "operator %s list element of type %T", op, el)
			}
		}
	case "BETWEEN":
		list, ok := asList(value)
		if !ok || len(list) != 2 || !isScalar(list[0]) || !isScalar(list[1]) {
			return constants.BuildErrorf(clause, "operator BETWEEN needs a [low, high] pair")
		}
	default:
		return constants.BuildErrorf(clause, "unsupported operator %q", op)
	}
	return nil
}

func newOrderBy(clause, field, direction string) (orderByClause, error) {
	if !sortExprRe.MatchString(field) {
		return orderByClause{}, constants.BuildErrorf(clause, "invalid sort key %q", field)
	}
	desc, err := parseDirection(direction)
	if err != nil {
		return orderByClause{}, constants.BuildErrorf(clause, "%v", err)
	}
	return orderByClause{field: field, desc: desc}, nil
}

func parseDirection(direction string) (desc bool, err error) {
	switch strings.ToUpper(strings.TrimSpace(direction)) {
	case "", "ASC", "1":
		return false, nil
	case "DESC", "-1":
		return true, nil
	default:
		return false, fmt.Errorf("invalid direction %s", strconv.Quote(direction))
	}
}

func writeOrderBy(b *strings.Builder, keys []orderByClause) {
	for i, o := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(o.field)
		if o.desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
}
