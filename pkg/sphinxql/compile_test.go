package sphinxql

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
)

func TestCompileInsert(t *testing.T) {
	docs, err := models.ParseDocuments([]byte(`{"title": "a", "body": "b"}`))
	require.NoError(t, err)

	stmt, err := CompileInsert("products", docs)
	require.NoError(t, err)
	assert.Equal(t, models.KindInsert, stmt.Kind)
	assert.Equal(t, "INSERT INTO products (title, body) VALUES (?, ?)", stmt.Template)
	assert.Equal(t, []any{"a", "b"}, stmt.Args)
}

func TestCompileInsert_batch(t *testing.T) {
	docs, err := models.ParseDocuments([]byte(`[
		{"id": 1, "title": "a", "price": 10},
		{"price": 12.5, "title": "b", "id": 2}
	]`))
	require.NoError(t, err)

	stmt, err := CompileInsert("products", docs)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO products (id, title, price) VALUES (?, ?, ?), (?, ?, ?)", stmt.Template)
	assert.Equal(t, []any{int64(1), "a", int64(10), int64(2), "b", 12.5}, stmt.Args)
}

func TestCompileInsert_mismatchedFields(t *testing.T) {
	docs, err := models.ParseDocuments([]byte(`[{"title": "a"}, {"body": "b"}]`))
	require.NoError(t, err)

	_, err = CompileInsert("products", docs)
	assert.ErrorIs(t, err, constants.ErrQueryBuild)

	_, err = CompileInsert("products", nil)
	assert.ErrorIs(t, err, constants.ErrQueryBuild)
}

func TestCompileUpdate(t *testing.T) {
	docs, err := models.ParseDocuments([]byte(`{"price": 99, "id": "42", "tags": [1, 2]}`))
	require.NoError(t, err)

	stmt, err := CompileUpdate("products", docs[0])
	require.NoError(t, err)
	assert.Equal(t, models.KindUpdate, stmt.Kind)
	assert.Equal(t, "UPDATE products SET price = ?, tags = (?, ?) WHERE id = ?", stmt.Template)
	assert.Equal(t, []any{int64(99), int64(1), int64(2), uint64(42)}, stmt.Args)
}

func TestCompileUpdate_withoutID(t *testing.T) {
	_, err := CompileUpdate("products", models.NewDocument(models.Field{Name: "price", Value: 1}))
	assert.ErrorIs(t, err, constants.ErrQueryBuild)
}

func TestCompileDelete(t *testing.T) {
	stmt, err := CompileDelete("products", 42)
	require.NoError(t, err)
	assert.Equal(t, models.KindDelete, stmt.Kind)
	assert.Equal(t, "DELETE FROM products WHERE id = ?", stmt.Template)
	assert.Equal(t, []any{uint64(42)}, stmt.Args)
}

const searchBody = `{
	"q": "phone",
	"indexes": ["products_delta", "products"],
	"fields": ["id", "title"],
	"where": {
		"price": [[">=", 10], ["<", 500]],
		"brand_id": [["IN", [3, 4]]]
	},
	"group_by": "brand_id",
	"order_within_group": [["price", "ASC"]],
	"order_by": [["weight()", -1], ["id", 1]],
	"limit": {"offset": 20, "count": 10},
	"option": {"ranker": "sph04", "max_matches": 500, "field_weights": {"title": 5, "body": 1}}
}`

func TestCompileSearch(t *testing.T) {
	var req models.SearchRequest
	require.NoError(t, json.Unmarshal([]byte(searchBody), &req))

	stmt, err := CompileSearch("products", req)
	require.NoError(t, err)
	assert.Equal(t, models.KindSearch, stmt.Kind)
	assert.Equal(t,
		"SELECT id, title FROM products, products_delta"+
			" WHERE brand_id IN (?, ?) AND price >= ? AND price < ? AND MATCH(?)"+
			" GROUP BY brand_id WITHIN GROUP ORDER BY price ASC"+
			" ORDER BY weight() DESC, id ASC LIMIT 20, 10"+
			" OPTION field_weights = (body = 1, title = 5), max_matches = 500, ranker = sph04",
		stmt.Template)
	assert.Equal(t, []any{int64(3), int64(4), int64(10), int64(500), "phone"}, stmt.Args)
}

func TestCompileSearch_deterministic(t *testing.T) {
	var first models.Statement
	for i := 0; i < 20; i++ {
		var req models.SearchRequest
		require.NoError(t, json.Unmarshal([]byte(searchBody), &req))

		stmt, err := CompileSearch("products", req)
		require.NoError(t, err)
		if i == 0 {
			first = stmt
			continue
		}
		require.Equal(t, first, stmt)
	}
}

func TestCompileSearch_minimal(t *testing.T) {
	stmt, err := CompileSearch("products", models.SearchRequest{Query: "phone"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM products WHERE MATCH(?)", stmt.Template)
	assert.Equal(t, []any{"phone"}, stmt.Args)
}

func TestCompileSearch_badOption(t *testing.T) {
	req := models.SearchRequest{Query: "phone", Options: map[string]any{"ranker": "magic"}}
	_, err := CompileSearch("products", req)
	assert.ErrorIs(t, err, constants.ErrQueryBuild)
}

func TestCompileSnippets(t *testing.T) {
	t.Run("object documents are sorted by id", func(t *testing.T) {
		req := models.ExcerptRequest{
			Documents: map[string]string{"20": "second", "10": "first"},
			Query:     "phone",
			Options:   map[string]any{"around": int64(3)},
		}
		stmt, ids, err := CompileSnippets("products", req)
		require.NoError(t, err)
		assert.Equal(t, []string{"10", "20"}, ids)
		assert.Equal(t, models.KindSnippets, stmt.Kind)
		assert.Equal(t, "CALL SNIPPETS((?, ?), ?, ?, ? AS around)", stmt.Template)
		assert.Equal(t, []any{"first", "second", "products", "phone", int64(3)}, stmt.Args)
	})

	t.Run("list documents are keyed by position", func(t *testing.T) {
		req := models.ExcerptRequest{DocumentList: []string{"only"}, Query: "phone"}
		stmt, ids, err := CompileSnippets("products", req)
		require.NoError(t, err)
		assert.Equal(t, []string{"0"}, ids)
		assert.Equal(t, "CALL SNIPPETS(?, ?, ?)", stmt.Template)
	})

	t.Run("unknown option", func(t *testing.T) {
		req := models.ExcerptRequest{DocumentList: []string{"a"}, Query: "q", Options: map[string]any{"x": 1}}
		_, _, err := CompileSnippets("products", req)
		assert.ErrorIs(t, err, constants.ErrQueryBuild)
	})
}
