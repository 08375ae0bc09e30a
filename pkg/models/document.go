package models

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
)

// IDField is the document identifier. It is never a settable field.
const IDField = "id"

var (
	ErrNoDocuments   = errors.New("no documents")
	ErrNestedObject  = errors.New("nested objects are not supported as field values")
	ErrInvalidDocID  = errors.New("invalid document id")
	ErrMissingDocID  = errors.New("document has no id")
	ErrNotADocument  = errors.New("document must be a JSON object")
	ErrEmptyDocument = errors.New("document has no fields")
)

// Field is one named value of a document.
type Field struct {
	Name  string
	Value any
}

// Document is an ordered set of fields. The order is the order the fields
// appeared in the request, and it decides the order of bound values.
type Document struct {
	Fields []Field
}

// NewDocument creates a document from fields in the given order.
func NewDocument(fields ...Field) Document {
	return Document{Fields: fields}
}

// DocumentFromMap creates a document with fields sorted by name.
func DocumentFromMap(m map[string]any) Document {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := Document{Fields: make([]Field, 0, len(names))}
	for _, name := range names {
		doc.Fields = append(doc.Fields, Field{Name: name, Value: m[name]})
	}
	return doc
}

// Names returns field names in document order.
func (d Document) Names() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// Get returns the value of the named field.
func (d Document) Get(name string) (any, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Without returns a copy of the document minus the named field.
func (d Document) Without(name string) Document {
	out := Document{Fields: make([]Field, 0, len(d.Fields))}
	for _, f := range d.Fields {
		if f.Name != name {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

// ID returns the document identifier.
func (d Document) ID() (uint64, error) {
	v, ok := d.Get(IDField)
	if !ok {
		return 0, ErrMissingDocID
	}
	return ParseDocID(v)
}

// ParseDocID converts a decoded JSON value into a document id.
func ParseDocID(v any) (uint64, error) {
	switch id := v.(type) {
	case uint64:
		return id, nil
	case int64:
		if id >= 0 {
			return uint64(id), nil
		}
	case int:
		if id >= 0 {
			return uint64(id), nil
		}
	case float64:
		if id >= 0 && id == math.Trunc(id) && id <= math.MaxUint64 {
			return uint64(id), nil
		}
	case string:
		n, err := strconv.ParseUint(id, 10, 64)
		if err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrInvalidDocID, v)
}

// ParseDocuments decodes a JSON object or an array of objects into documents,
// keeping each object's field order.
func ParseDocuments(data []byte) ([]Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNoDocuments
	}

	switch data[0] {
	case '{':
		doc, err := parseDocument(data)
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	case '[':
		var (
			docs    []Document
			callErr error
		)
		_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
			if callErr != nil {
				return
			}
			if err != nil {
				callErr = err
				return
			}
			if dataType != jsonparser.Object {
				callErr = ErrNotADocument
				return
			}
			doc, err := parseDocument(value)
			if err != nil {
				callErr = err
				return
			}
			docs = append(docs, doc)
		})
		if err != nil {
			return nil, err
		}
		if callErr != nil {
			return nil, callErr
		}
		if len(docs) == 0 {
			return nil, ErrNoDocuments
		}
		return docs, nil
	default:
		return nil, ErrNotADocument
	}
}

func parseDocument(data []byte) (Document, error) {
	var doc Document
	err := jsonparser.ObjectEach(data, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		v, err := parseValue(value, dataType)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		doc.Fields = append(doc.Fields, Field{Name: name, Value: v})
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	if len(doc.Fields) == 0 {
		return Document{}, ErrEmptyDocument
	}
	return doc, nil
}

func parseValue(value []byte, dataType jsonparser.ValueType) (any, error) {
	switch dataType {
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Number:
		if i, err := jsonparser.ParseInt(value); err == nil {
			return i, nil
		}
		return jsonparser.ParseFloat(value)
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(value)
	case jsonparser.Null:
		return nil, nil
	case jsonparser.Array:
		// multi-value attributes
		var out []any
		if err := DecodeJSON(value, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, ErrNestedObject
	}
}

// DecodeJSON decodes JSON keeping integers as int64 instead of float64, so
// bound values keep the type the engine expects for integer attributes.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	normalizeInPlace(v)
	return nil
}

func normalizeInPlace(v any) {
	switch p := v.(type) {
	case *any:
		*p = NormalizeNumbers(*p)
	case *[]any:
		for i := range *p {
			(*p)[i] = NormalizeNumbers((*p)[i])
		}
	case *map[string]any:
		for k, val := range *p {
			(*p)[k] = NormalizeNumbers(val)
		}
	}
}

// NormalizeNumbers replaces json.Number values with int64 or float64.
func NormalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = NormalizeNumbers(t[i])
		}
		return t
	case map[string]any:
		for k, val := range t {
			t[k] = NormalizeNumbers(val)
		}
		return t
	default:
		return v
	}
}
