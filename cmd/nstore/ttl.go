package main

import (
	"encoding/json"
	"time"

	"github.com/kjk/nstore/nstore"
)

// docTime returns the time stored in field of doc
func docTime(doc json.RawMessage, field string) (time.Time, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(doc, &m); err != nil {
		return time.Time{}, false
	}
	v, ok := m[field]
	if !ok {
		return time.Time{}, false
	}
	var secs float64
	if err := json.Unmarshal(v, &secs); err == nil {
		return time.Unix(int64(secs), 0), true
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ttlFilter keeps documents without a time in field
func ttlFilter(c *TTLConfig, now func() time.Time) nstore.Filter {
	return func(key string, doc json.RawMessage) bool {
		t, ok := docTime(doc, c.Field)
		if !ok {
			return true
		}
		return now().Sub(t) <= c.MaxAge
	}
}
