package models

import (
	"reflect"
)

var mapStringAnyType = reflect.TypeOf(map[string]any(nil))

// IndexRef is the resolved handle of a search index. It is owned by the
// metadata store and read-only here.
type IndexRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// StatementKind is the kind of a compiled statement.
type StatementKind string

const (
	KindInsert   StatementKind = "insert"
	KindUpdate   StatementKind = "update"
	KindDelete   StatementKind = "delete"
	KindSearch   StatementKind = "search"
	KindSnippets StatementKind = "snippets"
)

// Mutation reports whether statements of this kind modify an index and may
// therefore be queued.
func (k StatementKind) Mutation() bool {
	switch k {
	case KindInsert, KindUpdate, KindDelete:
		return true
	default:
		return false
	}
}

// Statement is a parameterized SphinxQL statement. Args are in placeholder
// order.
type Statement struct {
	Kind     StatementKind
	Template string
	Args     []any
}

// QueuedStatement is the payload stored for every queue entry and decoded by
// the queue applier.
type QueuedStatement struct {
	Kind     StatementKind `cbor:"statement_kind"`
	Template string        `cbor:"sql_template"`
	Values   []any         `cbor:"bound_values"`
}

// EncodeStatement serializes a mutation statement into a queue payload.
func EncodeStatement(s Statement) ([]byte, error) {
	values := s.Args
	if values == nil {
		values = []any{}
	}
	return Marshal(QueuedStatement{Kind: s.Kind, Template: s.Template, Values: values})
}

// DecodeStatement is the inverse of EncodeStatement.
func DecodeStatement(payload []byte) (Statement, error) {
	var q QueuedStatement
	if err := Unmarshal(payload, &q); err != nil {
		return Statement{}, err
	}
	return Statement{Kind: q.Kind, Template: q.Template, Args: q.Values}, nil
}

// QueueEntry is a durable, ordered record of a mutation awaiting the applier.
type QueueEntry struct {
	QueueKey string
	EntryKey string
	Payload  []byte
}

// Statement decodes the entry payload.
func (e QueueEntry) Statement() (Statement, error) {
	return DecodeStatement(e.Payload)
}

// WritePath is the path a mutation took to become durable.
type WritePath string

const (
	PathDirect WritePath = "direct"
	PathQueued WritePath = "queued"
)

// WriteResult describes one applied mutation statement.
type WriteResult struct {
	Path     WritePath `json:"path"`
	EntryKey string    `json:"entry_key,omitempty"`
	Version  int64     `json:"version,omitempty"`
	Attempts int       `json:"attempts"`
}

// SearchResult is what gets cached for a search request.
type SearchResult struct {
	Results []map[string]any  `cbor:"results" json:"results"`
	Meta    map[string]string `cbor:"meta,omitempty" json:"meta,omitempty"`
}

// SearchResponse wraps a SearchResult with cache bookkeeping that is not part
// of the stored value.
type SearchResponse struct {
	SearchResult
	Cached   bool   `json:"cached"`
	CacheKey string `json:"cache_key,omitempty"`
}

// ExcerptResponse maps caller document ids to generated excerpts.
type ExcerptResponse struct {
	Excerpts map[string]string `json:"excerpts"`
	Cached   bool              `json:"cached"`
	CacheKey string            `json:"cache_key,omitempty"`
}
