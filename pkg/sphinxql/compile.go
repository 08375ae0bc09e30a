package sphinxql

import (
	"sort"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
)

// CompileInsert compiles documents into one multi-row INSERT. The column
// list is taken from the first document; later documents must carry the
// same fields, in any order.
func CompileInsert(index string, docs []models.Document) (models.Statement, error) {
	if len(docs) == 0 {
		return models.Statement{}, constants.BuildErrorf("INSERT", "no documents")
	}
	fields := docs[0].Names()
	if len(fields) == 0 {
		return models.Statement{}, constants.BuildErrorf("INSERT", "document 0 has no fields")
	}

	q := Insert(index).Fields(fields...)
	for i, doc := range docs {
		if len(doc.Fields) != len(fields) {
			return models.Statement{}, constants.BuildErrorf("VALUES",
				"document %d has %d fields, want %d", i, len(doc.Fields), len(fields))
		}
		row := make([]any, len(fields))
		for j, f := range fields {
			v, ok := doc.Get(f)
			if !ok {
				return models.Statement{}, constants.BuildErrorf("VALUES", "document %d is missing field %q", i, f)
			}
			row[j] = v
		}
		q.Values(row...)
	}
	return Compile(models.KindInsert, q)
}

// CompileUpdate compiles one document into an UPDATE keyed by its id field.
func CompileUpdate(index string, doc models.Document) (models.Statement, error) {
	id, err := doc.ID()
	if err != nil {
		return models.Statement{}, constants.BuildErrorf("WHERE", "%v", err)
	}
	q := Update(index, id)
	for _, f := range doc.Without(models.IDField).Fields {
		q.Set(f.Name, f.Value)
	}
	return Compile(models.KindUpdate, q)
}

// CompileDelete compiles a DELETE of one document.
func CompileDelete(index string, docID uint64) (models.Statement, error) {
	return Compile(models.KindDelete, Delete(index, docID))
}

// FromSearchRequest assembles a SELECT for req against index plus any
// extra indexes the request names. Filters and options are visited in
// sorted order so equal requests give identical templates.
func FromSearchRequest(index string, req models.SearchRequest) *SelectQuery {
	q := Select(req.Fields...).From(index).From(req.Indexes...)

	fields := make([]string, 0, len(req.Filters))
	for f := range req.Filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		for _, cond := range req.Filters[f] {
			q.Where(f, cond.Operator, cond.Value)
		}
	}

	q.Match(req.Query)

	if req.GroupBy != "" {
		q.GroupBy(req.GroupBy)
	}
	for _, o := range req.WithinGroupOrderBy {
		q.WithinGroupOrderBy(o.Field, o.Direction)
	}
	for _, o := range req.OrderBy {
		q.OrderBy(o.Field, o.Direction)
	}
	if req.Limit != nil {
		q.Limit(req.Limit.Offset, req.Limit.Count)
	}

	names := make([]string, 0, len(req.Options))
	for name := range req.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		q.Option(name, req.Options[name])
	}
	return q
}

// CompileSearch compiles req into a search statement.
func CompileSearch(index string, req models.SearchRequest) (models.Statement, error) {
	return Compile(models.KindSearch, FromSearchRequest(index, req))
}

// CompileSnippets compiles an excerpt request. It returns the statement and
// the document ids in the order the engine will answer them.
func CompileSnippets(index string, req models.ExcerptRequest) (models.Statement, []string, error) {
	ids, texts := req.OrderedDocuments()
	q := Snippets(index, req.Query, texts...)
	for _, name := range sortedKeys(req.Options) {
		q.Option(name, req.Options[name])
	}
	stmt, err := Compile(models.KindSnippets, q)
	if err != nil {
		return models.Statement{}, nil, err
	}
	return stmt, ids, nil
}
