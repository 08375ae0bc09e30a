package sphinxql

import (
	"strings"
)

// DeleteQuery represents a DELETE statement builder for one document.
type DeleteQuery struct {
	index string
	docID uint64
}

// Delete creates a new DELETE query builder for the document docID.
func Delete(index string, docID uint64) *DeleteQuery {
	return &DeleteQuery{index: index, docID: docID}
}

// Build returns the SphinxQL string and bound values for the query.
func (q *DeleteQuery) Build() (string, []any, error) {
	return build(q)
}

func (q *DeleteQuery) build(c *queryBuildContext, b *strings.Builder) error {
	if err := checkIdent("DELETE", q.index); err != nil {
		return err
	}
	b.WriteString("DELETE FROM ")
	b.WriteString(q.index)
	b.WriteString(" WHERE id = ")
	b.WriteString(c.bind(q.docID))
	return nil
}
