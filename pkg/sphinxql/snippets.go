package sphinxql

import (
	"sort"
	"strings"

	"github.com/techu/techu/pkg/constants"
)

// SnippetsQuery represents a CALL SNIPPETS statement builder.
type SnippetsQuery struct {
	index   string
	query   string
	docs    []string
	options map[string]any
	err     error
}

// Snippets creates a CALL SNIPPETS builder that highlights query in docs
// using the tokenizer settings of index.
func Snippets(index, query string, docs ...string) *SnippetsQuery {
	q := &SnippetsQuery{index: index, query: query, docs: docs, options: map[string]any{}}
	if err := checkIdent("SNIPPETS", index); err != nil {
		q.err = err
	}
	return q
}

// Option sets a snippet option. Options render sorted by name.
func (q *SnippetsQuery) Option(name string, value any) *SnippetsQuery {
	if q.err != nil {
		return q
	}
	spec, ok := snippetOptions[name]
	if !ok {
		q.err = constants.BuildErrorf("SNIPPETS", "unknown option %q", name)
		return q
	}
	v, err := scalarOption("SNIPPETS", name, spec, value)
	if err != nil {
		q.err = err
		return q
	}
	q.options[name] = v
	return q
}

// Build returns the SphinxQL string and bound values for the query.
func (q *SnippetsQuery) Build() (string, []any, error) {
	return build(q)
}

func (q *SnippetsQuery) build(c *queryBuildContext, b *strings.Builder) error {
	if q.err != nil {
		return q.err
	}
	if len(q.docs) == 0 {
		return constants.BuildErrorf("SNIPPETS", "no documents")
	}

	b.WriteString("CALL SNIPPETS(")
	if len(q.docs) == 1 {
		b.WriteString(c.bind(q.docs[0]))
	} else {
		docs := make([]any, len(q.docs))
		for i, d := range q.docs {
			docs[i] = d
		}
		b.WriteString("(")
		b.WriteString(c.bindList(docs))
		b.WriteString(")")
	}
	b.WriteString(", ")
	b.WriteString(c.bind(q.index))
	b.WriteString(", ")
	b.WriteString(c.bind(q.query))

	names := make([]string, 0, len(q.options))
	for name := range q.options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(", ")
		b.WriteString(c.bind(q.options[name]))
		b.WriteString(" AS ")
		b.WriteString(name)
	}
	b.WriteString(")")
	return nil
}
