// Package query filters nstore documents with simple conditions on their
// fields.
//
// A query is written as a JSON object whose keys are "field" or
// "field op" and values are what the field is compared to:
//
//	{"age >": 18, "name": "Tim"}
//
// All conditions of an object must match. An array of objects matches if
// any of the objects match. Field "key" is the key of the document, other
// fields are dotted paths into the document, e.g. "address.city"
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kjk/nstore/nstore"
)

type Op string

const (
	Eq Op = "="
	Ne Op = "!="
	Lt Op = "<"
	Le Op = "<="
	Gt Op = ">"
	Ge Op = ">="
)

// KeyField compares against the key of the document
const KeyField = "key"

// Cond compares value of Field with Value
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Clause matches if all its conditions match
type Clause []Cond

// Query matches if any of its clauses match. Empty query matches everything
type Query []Clause

func parseOp(s string) (Op, error) {
	switch s {
	case "=", "==", "===":
		return Eq, nil
	case "!=", "!==", "<>":
		return Ne, nil
	case "<":
		return Lt, nil
	case "<=":
		return Le, nil
	case ">":
		return Gt, nil
	case ">=":
		return Ge, nil
	}
	return "", fmt.Errorf("query: unknown operator '%s'", s)
}

// normalize converts numbers to float64 so they compare like decoded JSON
func normalize(v any) (any, error) {
	switch v := v.(type) {
	case nil, bool, string, float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	}
	return nil, fmt.Errorf("query: unsupported value of type %T", v)
}

// NewCond parses "field" or "field op" and value into a condition
func NewCond(fieldOp string, value any) (Cond, error) {
	field, opStr, hasOp := strings.Cut(strings.TrimSpace(fieldOp), " ")
	op := Eq
	if hasOp {
		var err error
		op, err = parseOp(strings.TrimSpace(opStr))
		if err != nil {
			return Cond{}, err
		}
	}
	if field == "" {
		return Cond{}, fmt.Errorf("query: empty field in '%s'", fieldOp)
	}
	v, err := normalize(value)
	if err != nil {
		return Cond{}, fmt.Errorf("query: field '%s': %w", field, err)
	}
	return Cond{Field: field, Op: op, Value: v}, nil
}

func parseClause(m map[string]any) (Clause, error) {
	// sort so that a query always has the same form
	fields := make([]string, 0, len(m))
	for k := range m {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	res := make(Clause, 0, len(m))
	for _, k := range fields {
		c, err := NewCond(k, m[k])
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// Parse builds a query from an object (map[string]any) or an array of
// objects, as decoded by encoding/json. nil is an empty query
func Parse(v any) (Query, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		c, err := parseClause(v)
		if err != nil {
			return nil, err
		}
		return Query{c}, nil
	case []map[string]any:
		var res Query
		for _, m := range v {
			c, err := parseClause(m)
			if err != nil {
				return nil, err
			}
			res = append(res, c)
		}
		return res, nil
	case []any:
		var res Query
		for i, el := range v {
			m, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("query: element %d is %T, must be an object", i, el)
			}
			c, err := parseClause(m)
			if err != nil {
				return nil, err
			}
			res = append(res, c)
		}
		return res, nil
	}
	return nil, fmt.Errorf("query: must be an object or array of objects, is %T", v)
}

// ParseJSON parses a query written in JSON
func ParseJSON(d []byte) (Query, error) {
	var v any
	if err := json.Unmarshal(d, &v); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return Parse(v)
}

// MustParseJSON is like ParseJSON but panics on error
func MustParseJSON(s string) Query {
	q, err := ParseJSON([]byte(s))
	if err != nil {
		panic(err)
	}
	return q
}

func (q Query) needsDoc() bool {
	for _, c := range q {
		for _, cond := range c {
			if cond.Field != KeyField {
				return true
			}
		}
	}
	return false
}

// Match returns true if the document matches the query
func (q Query) Match(key string, doc json.RawMessage) bool {
	if len(q) == 0 {
		return true
	}
	var v any
	if q.needsDoc() {
		if err := json.Unmarshal(doc, &v); err != nil {
			return false
		}
	}
	for _, c := range q {
		if c.match(key, v) {
			return true
		}
	}
	return false
}

func (c Clause) match(key string, doc any) bool {
	for _, cond := range c {
		if !cond.match(key, doc) {
			return false
		}
	}
	return true
}

// lookup returns value at dotted path in doc
func lookup(doc any, path string) (any, bool) {
	v := doc
	for part := range strings.SplitSeq(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return v, true
}

func (c Cond) match(key string, doc any) bool {
	var v any = key
	if c.Field != KeyField {
		var ok bool
		v, ok = lookup(doc, c.Field)
		if !ok {
			// only "not equal" matches a missing field
			return c.Op == Ne
		}
	}
	return compare(v, c.Op, c.Value)
}

func compare(v any, op Op, val any) bool {
	switch a := v.(type) {
	case float64:
		if b, ok := val.(float64); ok {
			return compareOrdered(a, op, b)
		}
	case string:
		if b, ok := val.(string); ok {
			return compareOrdered(a, op, b)
		}
	case bool, nil:
		if isScalar(val) {
			switch op {
			case Eq:
				return v == val
			case Ne:
				return v != val
			}
			return false
		}
	}
	// different types or an object / array in document
	return op == Ne
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, float64:
		return true
	}
	return false
}

func compareOrdered[T float64 | string](a T, op Op, b T) bool {
	switch op {
	case Eq:
		return a == b
	case Ne:
		return a != b
	case Lt:
		return a < b
	case Le:
		return a <= b
	case Gt:
		return a > b
	case Ge:
		return a >= b
	}
	return false
}

// Filter returns q as a filter for nstore.Store.Stream and All
func (q Query) Filter() nstore.Filter {
	if len(q) == 0 {
		return nil
	}
	return q.Match
}

// items is the part of nstore.Stream used here
type items interface {
	Next() bool
	Item() nstore.Item
	Err() error
}

// each calls fn for every fetched document. Documents removed after the
// stream started are skipped, other fetch errors stop the iteration
func each(st items, fn func(it nstore.Item)) error {
	for st.Next() {
		it := st.Item()
		if nstore.IsNotFound(it.Err) {
			continue
		}
		if it.Err != nil {
			return it.Err
		}
		fn(it)
	}
	return st.Err()
}

// Find returns documents matching q. Documents removed while the search
// runs are not returned
func Find(ctx context.Context, s *nstore.Store, q Query) (map[string]json.RawMessage, error) {
	st := s.Stream(ctx, q.Filter())
	defer st.Close()
	res := map[string]json.RawMessage{}
	err := each(st, func(it nstore.Item) {
		res[it.Key] = it.Doc
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// All returns all documents
func All(ctx context.Context, s *nstore.Store) (map[string]json.RawMessage, error) {
	return Find(ctx, s, nil)
}

// Count returns number of documents matching q
func Count(ctx context.Context, s *nstore.Store, q Query) (int, error) {
	if len(q) == 0 {
		return s.Len(), nil
	}
	st := s.Stream(ctx, q.Filter())
	defer st.Close()
	n := 0
	err := each(st, func(nstore.Item) {
		n++
	})
	return n, err
}
