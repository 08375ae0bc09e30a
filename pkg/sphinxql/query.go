package sphinxql

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
)

// Query is a SphinxQL statement that can be built.
type Query interface {
	// Build returns the SphinxQL template and its bound values, or the first
	// error recorded while the query was assembled.
	Build() (string, []any, error)

	// build renders the query into b, binding values through c.
	build(c *queryBuildContext, b *strings.Builder) error
}

// queryBuildContext collects bound values in placeholder order.
type queryBuildContext struct {
	args []any
}

func newQueryBuildContext() queryBuildContext {
	return queryBuildContext{args: []any{}}
}

// bind records value and returns its placeholder.
func (c *queryBuildContext) bind(value any) string {
	c.args = append(c.args, value)
	return "?"
}

// bindList binds each element and returns "?, ?, ...".
func (c *queryBuildContext) bindList(values []any) string {
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = c.bind(v)
	}
	return strings.Join(ph, ", ")
}

func build(q Query) (string, []any, error) {
	var b strings.Builder
	c := newQueryBuildContext()
	if err := q.build(&c, &b); err != nil {
		return "", nil, err
	}
	return b.String(), c.args, nil
}

// Compile builds q into a statement of the given kind.
func Compile(kind models.StatementKind, q Query) (models.Statement, error) {
	sql, args, err := q.Build()
	if err != nil {
		return models.Statement{}, err
	}
	return models.Statement{Kind: kind, Template: sql, Args: args}, nil
}

var (
	identRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	sortExprRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(?:\(\))?$`)
	selectExprRe = regexp.MustCompile(`^(?:\*|[A-Za-z_][A-Za-z0-9_]*(?:\(\*?\))?)(?:\s+(?i:AS)\s+[A-Za-z_][A-Za-z0-9_]*)?$`)
)

func checkIdent(clause, ident string) error {
	if !identRe.MatchString(ident) {
		return constants.BuildErrorf(clause, "invalid identifier %q", ident)
	}
	return nil
}

// isScalar reports whether v can be bound to a single placeholder.
func isScalar(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// asList returns the elements of a slice or array value.
func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// bindValue binds a scalar as ? and a list of scalars as (?, ?, ...), the
// multi-value attribute form.
func bindValue(c *queryBuildContext, clause string, v any) (string, error) {
	if isScalar(v) {
		return c.bind(v), nil
	}
	list, ok := asList(v)
	if !ok {
		return "", constants.BuildErrorf(clause, "unsupported value of type %T", v)
	}
	for _, el := range list {
		if !isScalar(el) {
			return "", constants.BuildErrorf(clause, "unsupported list element of type %T", el)
		}
	}
	return "(" + c.bindList(list) + ")", nil
}
