package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"
)

func runCmd(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	args = append([]string{"-db", db}, args...)
	err := run(args, &buf)
	return buf.String(), err
}

func mustRun(t *testing.T, db string, args ...string) string {
	t.Helper()
	out, err := runCmd(t, db, args...)
	assert.NoError(t, err, "%v", args)
	return out
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")

	key := strings.TrimSpace(mustRun(t, db, "put", `{"name":"Tim","age":28}`))
	assert.Equal(t, 16, len(key))
	assert.Equal(t, "bob\n", mustRun(t, db, "put", "bob", `{"name": "Bob", "age": 17}`))

	out := mustRun(t, db, "get", "bob")
	var doc map[string]any
	assert.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "Bob", doc["name"])

	out = mustRun(t, db, "-toon", "get", "bob")
	assert.True(t, strings.Contains(out, "name: Bob"), "%s", out)

	keys := []string{"bob", key}
	sort.Strings(keys)
	assert.Equal(t, strings.Join(keys, "\n")+"\n", mustRun(t, db, "ls"))
	assert.Equal(t, "2\n", mustRun(t, db, "count"))
	assert.Equal(t, "1\n", mustRun(t, db, "count", `{"age >": 18}`))

	out = mustRun(t, db, "find", `{"age <": 18}`)
	var found map[string]map[string]any
	assert.NoError(t, json.Unmarshal([]byte(out), &found))
	assert.Equal(t, 1, len(found))
	assert.Equal(t, "Bob", found["bob"]["name"])

	dump := filepath.Join(dir, "dump.zst")
	assert.Equal(t, "export: 2 documents\n", mustRun(t, db, "export", dump))

	mustRun(t, db, "rm", "bob")
	_, err := runCmd(t, db, "get", "bob")
	assert.Error(t, err)
	out = mustRun(t, db, "compact")
	assert.True(t, strings.HasPrefix(out, "compact: 1 documents"), "%s", out)

	out = mustRun(t, db, "stats")
	var st map[string]any
	assert.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, float64(1), st["live"])
	assert.Equal(t, float64(0), st["stale"])
	assert.Equal(t, "idle", st["state"])

	assert.Equal(t, "import: 2 documents\n", mustRun(t, db, "import", dump))
	assert.Equal(t, "2\n", mustRun(t, db, "count"))

	out = mustRun(t, db, "clear")
	assert.True(t, strings.HasPrefix(out, "clear: 0 documents"), "%s", out)
	assert.Equal(t, "", mustRun(t, db, "ls"))
}

func TestCommandErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	for _, args := range [][]string{
		{},
		{"nope"},
		{"get"},
		{"get", "a", "b"},
		{"put", "a", "not json"},
		{"rm", "missing"},
		{"find", "{"},
		{"backup", "x.zst"},
	} {
		_, err := runCmd(t, db, args...)
		assert.Error(t, err, "%v", args)
	}

	err := run([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml"), "ls"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nstore.yaml")
	d := `
db: data/users.db
logDir: logs
verbose: true
compactConcurrency: 4
ttl:
  field: updatedAt
  maxAge: 720h
backup:
  endpoint: localhost:9000
  bucket: backups
  access: key
  secret: secret
  prefix: nstore/
  insecure: true
`
	assert.NoError(t, os.WriteFile(path, []byte(d), 0644))
	c, err := readConfig(path, true)
	assert.NoError(t, err)
	assert.Equal(t, "data/users.db", c.DB)
	assert.Equal(t, "logs", c.LogDir)
	assert.True(t, c.Verbose)
	assert.Equal(t, 4, c.CompactConcurrency)
	assert.Equal(t, "updatedAt", c.TTL.Field)
	assert.Equal(t, 720*time.Hour, c.TTL.MaxAge)
	assert.Equal(t, "backups", c.Backup.Bucket)
	assert.Equal(t, "nstore/", c.Backup.Prefix)
	assert.True(t, c.Backup.Insecure)

	c, err = readConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	assert.NoError(t, err)
	assert.Equal(t, "", c.DB)

	for _, s := range []string{"ttl:\n  maxAge: 1h\n", "ttl:\n  field: t\n", "db: [\n"} {
		_, err = parseConfig([]byte(s))
		assert.Error(t, err, "%s", s)
	}
}

func TestTTLFilter(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	f := ttlFilter(&TTLConfig{Field: "updatedAt", MaxAge: 24 * time.Hour}, func() time.Time {
		return now
	})
	fresh := now.Add(-time.Hour)
	old := now.Add(-48 * time.Hour)
	tests := []struct {
		doc  string
		keep bool
	}{
		{`{"updatedAt": ` + itoa(fresh.Unix()) + `}`, true},
		{`{"updatedAt": ` + itoa(old.Unix()) + `}`, false},
		{`{"updatedAt": "` + fresh.Format(time.RFC3339) + `"}`, true},
		{`{"updatedAt": "` + old.Format(time.RFC3339) + `"}`, false},
		{`{"updatedAt": "yesterday"}`, true},
		{`{"other": 1}`, true},
		{`[1, 2]`, true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.keep, f("k", json.RawMessage(tc.doc)), "%s", tc.doc)
	}
}

func itoa(n int64) string {
	d, _ := json.Marshal(n)
	return string(d)
}
