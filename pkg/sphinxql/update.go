package sphinxql

import (
	"strings"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
)

type assignment struct {
	field string
	value any
}

// UpdateQuery represents an UPDATE statement builder for one document.
type UpdateQuery struct {
	index string
	docID uint64
	sets  []assignment
	err   error
}

// Update creates a new UPDATE query builder for the document docID.
func Update(index string, docID uint64) *UpdateQuery {
	q := &UpdateQuery{index: index, docID: docID}
	if err := checkIdent("UPDATE", index); err != nil {
		q.err = err
	}
	return q
}

// Set adds an assignment. The document id is never settable.
func (q *UpdateQuery) Set(field string, value any) *UpdateQuery {
	if q.err != nil {
		return q
	}
	if err := checkIdent("SET", field); err != nil {
		q.err = err
		return q
	}
	if strings.EqualFold(field, models.IDField) {
		q.err = constants.BuildErrorf("SET", "field %q identifies the document and cannot be updated", field)
		return q
	}
	q.sets = append(q.sets, assignment{field: field, value: value})
	return q
}

// Build returns the SphinxQL string and bound values for the query.
func (q *UpdateQuery) Build() (string, []any, error) {
	return build(q)
}

func (q *UpdateQuery) build(c *queryBuildContext, b *strings.Builder) error {
	if q.err != nil {
		return q.err
	}
	if len(q.sets) == 0 {
		return constants.BuildErrorf("SET", "nothing to update")
	}

	b.WriteString("UPDATE ")
	b.WriteString(q.index)
	b.WriteString(" SET ")
	for i, a := range q.sets {
		if i > 0 {
			b.WriteString(", ")
		}
		ph, err := bindValue(c, "SET", a.value)
		if err != nil {
			return err
		}
		b.WriteString(a.field)
		b.WriteString(" = ")
		b.WriteString(ph)
	}
	b.WriteString(" WHERE id = ")
	b.WriteString(c.bind(q.docID))
	return nil
}
