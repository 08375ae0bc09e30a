package sphinxql

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/techu/techu/pkg/constants"
)

type optionKind int

const (
	optInt optionKind = iota
	optFlag
	optString
	optEnum
	optWeights
)

type optionSpec struct {
	kind    optionKind
	allowed []string
}

// selectOptions are the OPTION names accepted on SELECT.
var selectOptions = map[string]optionSpec{
	"agent_query_timeout": {kind: optInt},
	"boolean_simplify":    {kind: optFlag},
	"comment":             {kind: optString},
	"cutoff":              {kind: optInt},
	"field_weights":       {kind: optWeights},
	"global_idf":          {kind: optFlag},
	"idf":                 {kind: optEnum, allowed: []string{"normalized", "plain"}},
	"index_weights":       {kind: optWeights},
	"max_matches":         {kind: optInt},
	"max_query_time":      {kind: optInt},
	"ranker": {kind: optEnum, allowed: []string{
		"proximity_bm25", "bm25", "none", "wordcount", "proximity",
		"matchany", "fieldmask", "sph04", "expr", "export",
	}},
	"retry_count":  {kind: optInt},
	"retry_delay":  {kind: optInt},
	"reverse_scan": {kind: optFlag},
	"sort_method":  {kind: optEnum, allowed: []string{"pq", "kbuffer"}},
}

// snippetOptions are the option names accepted by CALL SNIPPETS.
var snippetOptions = map[string]optionSpec{
	"before_match":     {kind: optString},
	"after_match":      {kind: optString},
	"chunk_separator":  {kind: optString},
	"limit":            {kind: optInt},
	"around":           {kind: optInt},
	"exact_phrase":     {kind: optFlag},
	"use_boundaries":   {kind: optFlag},
	"query_mode":       {kind: optFlag},
	"weight_order":     {kind: optFlag},
	"force_all_words":  {kind: optFlag},
	"limit_passages":   {kind: optInt},
	"limit_words":      {kind: optInt},
	"start_passage_id": {kind: optInt},
	"html_strip_mode":  {kind: optEnum, allowed: []string{"none", "strip", "index", "retain"}},
	"allow_empty":      {kind: optFlag},
	"passage_boundary": {kind: optEnum, allowed: []string{"sentence", "paragraph", "zone"}},
	"emit_zones":       {kind: optFlag},
}

// OptionNames returns the recognized SELECT option names, sorted.
func OptionNames() []string {
	return sortedKeys(selectOptions)
}

// SnippetOptionNames returns the recognized snippet option names, sorted.
func SnippetOptionNames() []string {
	return sortedKeys(snippetOptions)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// option is a validated OPTION name = value pair.
type option struct {
	name string
	kind optionKind
	// literal is set for every kind except optString, whose value is bound.
	literal string
	str     string
}

func (o option) build(c *queryBuildContext, b *strings.Builder) {
	b.WriteString(o.name)
	b.WriteString(" = ")
	if o.kind == optString {
		b.WriteString(c.bind(o.str))
		return
	}
	b.WriteString(o.literal)
}

func newOption(name string, value any) (option, error) {
	spec, ok := selectOptions[name]
	if !ok {
		return option{}, constants.BuildErrorf("OPTION", "unknown option %q", name)
	}
	o := option{name: name, kind: spec.kind}
	switch spec.kind {
	case optString:
		s, ok := value.(string)
		if !ok {
			return option{}, constants.BuildErrorf("OPTION", "%s needs a string, got %T", name, value)
		}
		o.str = s
	case optWeights:
		lit, err := weightsLiteral(name, value)
		if err != nil {
			return option{}, err
		}
		o.literal = lit
	default:
		v, err := scalarOption("OPTION", name, spec, value)
		if err != nil {
			return option{}, err
		}
		o.literal = fmt.Sprint(v)
	}
	return o, nil
}

// scalarOption validates an int, flag or enum option value and returns
// the value to render or bind: int64 for ints and flags, string for enums.
func scalarOption(clause, name string, spec optionSpec, value any) (any, error) {
	switch spec.kind {
	case optInt:
		n, ok := toInt(value)
		if !ok {
			return nil, constants.BuildErrorf(clause, "%s needs an integer, got %v", name, value)
		}
		return n, nil
	case optFlag:
		if b, ok := value.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
		n, ok := toInt(value)
		if !ok || (n != 0 && n != 1) {
			return nil, constants.BuildErrorf(clause, "%s needs a boolean, got %v", name, value)
		}
		return n, nil
	case optEnum:
		s, ok := value.(string)
		if ok {
			s = strings.ToLower(strings.TrimSpace(s))
			for _, a := range spec.allowed {
				if a == s {
					return s, nil
				}
			}
		}
		return nil, constants.BuildErrorf(clause, "%s must be one of %s, got %v",
			name, strings.Join(spec.allowed, ", "), value)
	case optString:
		s, ok := value.(string)
		if !ok {
			return nil, constants.BuildErrorf(clause, "%s needs a string, got %T", name, value)
		}
		return s, nil
	}
	return nil, constants.BuildErrorf(clause, "%s has an unsupported value", name)
}

// weightsLiteral renders a name to integer weight map as (a = 1, b = 2).
func weightsLiteral(name string, value any) (string, error) {
	rv := reflect.ValueOf(value)
	if value == nil || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return "", constants.BuildErrorf("OPTION", "%s needs a map of weights, got %T", name, value)
	}
	if rv.Len() == 0 {
		return "", constants.BuildErrorf("OPTION", "%s needs at least one weight", name)
	}

	keys := make([]string, 0, rv.Len())
	weights := make(map[string]int64, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		if err := checkIdent("OPTION", k); err != nil {
			return "", err
		}
		w, ok := toInt(iter.Value().Interface())
		if !ok {
			return "", constants.BuildErrorf("OPTION", "%s weight for %s must be an integer", name, k)
		}
		keys = append(keys, k)
		weights[k] = w
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " = " + strconv.FormatInt(weights[k], 10)
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

// toInt accepts any integer kind, integral floats and numeric strings.
func toInt(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return 0, false
		}
		return int64(f), true
	case reflect.String:
		n, err := strconv.ParseInt(strings.TrimSpace(rv.String()), 10, 64)
		return n, err == nil
	}
	return 0, false
}
