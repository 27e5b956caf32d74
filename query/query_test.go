package query

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/nstore/nstore"
)

type person struct {
	Name    string         `json:"name"`
	Age     int            `json:"age"`
	Admin   bool           `json:"admin"`
	Address map[string]any `json:"address,omitempty"`
}

var people = map[string]person{
	"creationix": {Name: "Tim Caswell", Age: 28, Admin: true, Address: map[string]any{"city": "Austin"}},
	"bob":        {Name: "Bob", Age: 17},
	"alice":      {Name: "Alice", Age: 45, Address: map[string]any{"city": "Seattle"}},
	"zed":        {Name: "Zed", Age: 28},
}

func openTestStore(t *testing.T) *nstore.Store {
	t.Helper()
	s, err := nstore.Open(filepath.Join(t.TempDir(), "people.db"))
	assert.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	for key, p := range people {
		_, err = s.Save(key, p)
		assert.NoError(t, err)
	}
	return s
}

func findKeys(t *testing.T, s *nstore.Store, q string) []string {
	t.Helper()
	res, err := Find(context.Background(), s, MustParseJSON(q))
	assert.NoError(t, err)
	var keys []string
	for k := range res {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestParse(t *testing.T) {
	q, err := ParseJSON([]byte(`{"age >=": 18, "name": "Tim", "key <>": "bob"}`))
	assert.NoError(t, err)
	exp := Query{Clause{
		{Field: "age", Op: Ge, Value: float64(18)},
		{Field: "key", Op: Ne, Value: "bob"},
		{Field: "name", Op: Eq, Value: "Tim"},
	}}
	assert.Equal(t, exp, q)

	q, err = Parse([]any{map[string]any{"age": 5}, map[string]any{"admin": true}})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(q))

	q, err = Parse(map[string]any{"age <": 30})
	assert.NoError(t, err)
	assert.Equal(t, float64(30), q[0][0].Value)

	q, err = Parse(nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(q))

	for _, s := range []string{`{"age ~": 1}`, `{"age": [1]}`, `{" ": 1}`, `[1]`, `"age"`, `{`} {
		_, err = ParseJSON([]byte(s))
		assert.Error(t, err, "%s", s)
	}
}

func TestMatch(t *testing.T) {
	doc := json.RawMessage(`{"name":"Tim","age":28,"admin":true,"nick":null,"address":{"city":"Austin"},"tags":["a"]}`)
	tests := []struct {
		q   string
		exp bool
	}{
		{`{}`, true},
		{`[]`, true},
		{`{"name": "Tim"}`, true},
		{`{"name": "Bob"}`, false},
		{`{"name <": "Z"}`, true},
		{`{"age": 28}`, true},
		{`{"age >": 28}`, false},
		{`{"age >=": 28}`, true},
		{`{"age <=": 27.5}`, false},
		{`{"age !=": 28}`, false},
		{`{"age": "28"}`, false},
		{`{"age !=": "28"}`, true},
		{`{"admin": true}`, true},
		{`{"admin <": true}`, false},
		{`{"nick": null}`, true},
		{`{"nick !=": null}`, false},
		{`{"missing": 1}`, false},
		{`{"missing !=": 1}`, true},
		{`{"address.city": "Austin"}`, true},
		{`{"address.zip.code": 1}`, false},
		{`{"tags": "a"}`, false},
		{`{"key": "tim"}`, true},
		{`{"key >": "tima"}`, false},
		{`{"name": "Tim", "age": 29}`, false},
		{`[{"name": "Bob"}, {"age": 28}]`, true},
		{`[{"name": "Bob"}, {"age": 29}]`, false},
	}
	for _, tc := range tests {
		q := MustParseJSON(tc.q)
		assert.Equal(t, tc.exp, q.Match("tim", doc), "%s", tc.q)
	}
	assert.False(t, MustParseJSON(`{"age": 1}`).Match("tim", json.RawMessage(`not json`)))
	// key only queries don't decode the document
	assert.True(t, MustParseJSON(`{"key": "tim"}`).Match("tim", json.RawMessage(`not json`)))
}

func TestFind(t *testing.T) {
	s := openTestStore(t)

	assert.Equal(t, []string{"alice", "bob", "creationix", "zed"}, findKeys(t, s, `{}`))
	assert.Equal(t, []string{"creationix", "zed"}, findKeys(t, s, `{"age": 28}`))
	assert.Equal(t, []string{"alice", "creationix", "zed"}, findKeys(t, s, `{"age >=": 18}`))
	assert.Equal(t, []string{"bob", "creationix"}, findKeys(t, s, `[{"age <": 18}, {"admin": true}]`))
	assert.Equal(t, []string{"alice"}, findKeys(t, s, `{"address.city": "Seattle"}`))
	assert.Equal(t, []string{"zed"}, findKeys(t, s, `{"key >": "creationix"}`))

	res, err := Find(context.Background(), s, MustParseJSON(`{"name": "Bob"}`))
	assert.NoError(t, err)
	var p person
	assert.NoError(t, json.Unmarshal(res["bob"], &p))
	assert.Equal(t, people["bob"], p)

	all, err := All(context.Background(), s)
	assert.NoError(t, err)
	assert.Equal(t, len(people), len(all))

	n, err := Count(context.Background(), s, MustParseJSON(`{"age": 28}`))
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = Count(context.Background(), s, nil)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
}

type fakeItems struct {
	items []nstore.Item
	i     int
}

func (f *fakeItems) Next() bool {
	if f.i >= len(f.items) {
		return false
	}
	f.i++
	return true
}

func (f *fakeItems) Item() nstore.Item {
	return f.items[f.i-1]
}

func (f *fakeItems) Err() error {
	return nil
}

func TestEachSkipsRemoved(t *testing.T) {
	removed := fmt.Errorf("%w: 'b'", nstore.ErrNotFound)
	st := &fakeItems{items: []nstore.Item{
		{Key: "a", Doc: json.RawMessage(`1`)},
		{Key: "b", Err: removed},
		{Key: "c", Doc: json.RawMessage(`3`)},
	}}
	var keys []string
	err := each(st, func(it nstore.Item) {
		keys = append(keys, it.Key)
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, keys)

	st = &fakeItems{items: []nstore.Item{
		{Key: "a", Doc: json.RawMessage(`1`)},
		{Key: "b", Err: nstore.ErrMalformedRecord},
		{Key: "c", Doc: json.RawMessage(`3`)},
	}}
	keys = nil
	err = each(st, func(it nstore.Item) {
		keys = append(keys, it.Key)
	})
	assert.Equal(t, nstore.ErrMalformedRecord, err)
	assert.Equal(t, []string{"a"}, keys)
}
