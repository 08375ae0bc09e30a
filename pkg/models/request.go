package models

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

var (
	ErrNoQuery     = errors.New("query text is required")
	ErrNoIndex     = errors.New("index id is required")
	ErrBadDocsType = errors.New("documents are passed as a list or an object")
)

// InsertRequest adds documents to an index. All documents share the field
// set of the first one.
type InsertRequest struct {
	IndexID   int64
	Documents []Document
	Queue     bool
}

func (r InsertRequest) Validate() error {
	if r.IndexID <= 0 {
		return ErrNoIndex
	}
	if len(r.Documents) == 0 {
		return ErrNoDocuments
	}
	return nil
}

// UpdateRequest updates attributes of existing documents. Every document
// carries its id field.
type UpdateRequest struct {
	IndexID   int64
	Documents []Document
	Queue     bool
}

func (r UpdateRequest) Validate() error {
	if r.IndexID <= 0 {
		return ErrNoIndex
	}
	if len(r.Documents) == 0 {
		return ErrNoDocuments
	}
	for i, doc := range r.Documents {
		if _, err := doc.ID(); err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
	}
	return nil
}

// DeleteRequest removes documents by id.
type DeleteRequest struct {
	IndexID int64
	IDs     []uint64
	Queue   bool
}

func (r DeleteRequest) Validate() error {
	if r.IndexID <= 0 {
		return ErrNoIndex
	}
	if len(r.IDs) == 0 {
		return ErrNoDocuments
	}
	return nil
}

// Condition is one filter predicate: field Operator ?.
// In JSON it is a two-element array, e.g. [">", 1344545435].
type Condition struct {
	Operator string `cbor:"op"`
	Value    any    `cbor:"value"`
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var pair []any
	if err := DecodeJSON(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("condition must be [operator, value], got %d elements", len(pair))
	}
	op, ok := pair[0].(string)
	if !ok {
		return fmt.Errorf("condition operator must be a string, got %T", pair[0])
	}
	c.Operator = op
	c.Value = pair[1]
	return nil
}

func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Operator, c.Value})
}

// OrderBy is one sort key. In JSON it is ["field", "DESC"]; the direction
// also accepts 1 and -1.
type OrderBy struct {
	Field     string `cbor:"field"`
	Direction string `cbor:"dir"`
}

func (o *OrderBy) UnmarshalJSON(data []byte) error {
	var pair []any
	if err := DecodeJSON(data, &pair); err != nil {
		return err
	}
	if len(pair) == 0 || len(pair) > 2 {
		return fmt.Errorf("order must be [field, direction], got %d elements", len(pair))
	}
	field, ok := pair[0].(string)
	if !ok {
		return fmt.Errorf("order field must be a string, got %T", pair[0])
	}
	o.Field = field
	o.Direction = ""
	if len(pair) == 2 {
		switch d := pair[1].(type) {
		case string:
			o.Direction = d
		case int64:
			o.Direction = strconv.FormatInt(d, 10)
		default:
			return fmt.Errorf("order direction must be a string or 1/-1, got %T", pair[1])
		}
	}
	return nil
}

func (o OrderBy) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{o.Field, o.Direction})
}

// Limit is LIMIT offset, count.
type Limit struct {
	Offset int `json:"offset" cbor:"offset"`
	Count  int `json:"count" cbor:"count"`
}

// SearchRequest is a structured full-text search. Absent parts produce no
// clause.
type SearchRequest struct {
	Query              string                 `json:"q" cbor:"q"`
	Indexes            []string               `json:"indexes,omitempty" cbor:"indexes,omitempty"`
	Fields             []string               `json:"fields,omitempty" cbor:"fields,omitempty"`
	Filters            map[string][]Condition `json:"where,omitempty" cbor:"where,omitempty"`
	GroupBy            string                 `json:"group_by,omitempty" cbor:"group_by,omitempty"`
	WithinGroupOrderBy []OrderBy              `json:"order_within_group,omitempty" cbor:"order_within_group,omitempty"`
	OrderBy            []OrderBy              `json:"order_by,omitempty" cbor:"order_by,omitempty"`
	Limit              *Limit                 `json:"limit,omitempty" cbor:"limit,omitempty"`
	Options            map[string]any         `json:"option,omitempty" cbor:"option,omitempty"`
}

// UnmarshalJSON keeps integer option values as int64.
func (r *SearchRequest) UnmarshalJSON(data []byte) error {
	type plain SearchRequest
	var p plain

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	for k, v := range p.Options {
		p.Options[k] = NormalizeNumbers(v)
	}

	*r = SearchRequest(p)
	return nil
}

func (r SearchRequest) Validate() error {
	if r.Query == "" {
		return ErrNoQuery
	}
	return nil
}

// ExcerptRequest asks the engine for highlighted snippets of caller supplied
// documents. Either Documents (id -> text) or DocumentList is set.
type ExcerptRequest struct {
	Documents    map[string]string `cbor:"docs,omitempty"`
	DocumentList []string          `cbor:"doc_list,omitempty"`
	Query        string            `cbor:"q"`
	Options      map[string]any    `cbor:"options,omitempty"`
	TTL          time.Duration     `cbor:"-"`
}

type excerptRequestJSON struct {
	Docs    json.RawMessage `json:"docs"`
	Query   string          `json:"q"`
	Options json.RawMessage `json:"options"`
	TTL     *int64          `json:"ttl"`
}

// UnmarshalJSON accepts docs as an object or a list and ttl in seconds.
func (r *ExcerptRequest) UnmarshalJSON(data []byte) error {
	var raw excerptRequestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = ExcerptRequest{Query: raw.Query}

	if len(raw.Docs) > 0 {
		switch raw.Docs[0] {
		case '{':
			if err := json.Unmarshal(raw.Docs, &r.Documents); err != nil {
				return err
			}
		case '[':
			if err := json.Unmarshal(raw.Docs, &r.DocumentList); err != nil {
				return err
			}
		default:
			return ErrBadDocsType
		}
	}

	if len(raw.Options) > 0 {
		if err := DecodeJSON(raw.Options, &r.Options); err != nil {
			return err
		}
	}

	if raw.TTL != nil {
		r.TTL = time.Duration(*raw.TTL) * time.Second
	}

	return nil
}

func (r ExcerptRequest) Validate() error {
	if r.Query == "" {
		return ErrNoQuery
	}
	if len(r.Documents) == 0 && len(r.DocumentList) == 0 {
		return ErrNoDocuments
	}
	if len(r.Documents) > 0 && len(r.DocumentList) > 0 {
		return ErrBadDocsType
	}
	return nil
}

// OrderedDocuments returns document ids and texts in a stable order: sorted
// ids for the object form, positions for the list form.
func (r ExcerptRequest) OrderedDocuments() (ids []string, texts []string) {
	if len(r.DocumentList) > 0 {
		ids = make([]string, len(r.DocumentList))
		for i := range r.DocumentList {
			ids[i] = strconv.Itoa(i)
		}
		return ids, r.DocumentList
	}

	ids = make([]string, 0, len(r.Documents))
	for id := range r.Documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	texts = make([]string, len(ids))
	for i, id := range ids {
		texts[i] = r.Documents[id]
	}
	return ids, texts
}
