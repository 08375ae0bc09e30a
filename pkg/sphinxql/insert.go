package sphinxql

import (
	"strings"

	"github.com/techu/techu/pkg/constants"
)

// InsertQuery represents a multi-row INSERT statement builder.
type InsertQuery struct {
	index  string
	fields []string
	rows   [][]any
	err    error
}

// Insert creates a new INSERT query builder for index.
func Insert(index string) *InsertQuery {
	q := &InsertQuery{index: index}
	if err := checkIdent("INSERT", index); err != nil {
		q.err = err
	}
	return q
}

// Fields sets the column list.
func (q *InsertQuery) Fields(fields ...string) *InsertQuery {
	for _, f := range fields {
		if err := checkIdent("INSERT", f); err != nil {
			return q.fail(err)
		}
	}
	q.fields = append(q.fields, fields...)
	return q
}

// Values adds one row. Its length must match the column list.
func (q *InsertQuery) Values(values ...any) *InsertQuery {
	q.rows = append(q.rows, values)
	return q
}

func (q *InsertQuery) fail(err error) *InsertQuery {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Build returns the SphinxQL string and bound values for the query.
func (q *InsertQuery) Build() (string, []any, error) {
	return build(q)
}

func (q *InsertQuery) build(c *queryBuildContext, b *strings.Builder) error {
	if q.err != nil {
		return q.err
	}
	if len(q.fields) == 0 {
		return constants.BuildErrorf("INSERT", "no fields")
	}
	if len(q.rows) == 0 {
		return constants.BuildErrorf("VALUES", "no rows")
	}

	b.WriteString("INSERT INTO ")
	b.WriteString(q.index)
	b.WriteString(" (")
	b.WriteString(strings.Join(q.fields, ", "))
	b.WriteString(") VALUES ")

	for i, row := range q.rows {
		if len(row) != len(q.fields) {
			return constants.BuildErrorf("VALUES", "row %d has %d values, want %d", i, len(row), len(q.fields))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			ph, err := bindValue(c, "VALUES", v)
			if err != nil {
				return err
			}
			b.WriteString(ph)
		}
		b.WriteString(")")
	}
	return nil
}
