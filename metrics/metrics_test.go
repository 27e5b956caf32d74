package metrics

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/nstore/nstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector(t *testing.T) {
	s := &nstore.Store{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		NoAutoCompact: true,
	}
	assert.NoError(t, nstore.OpenStore(s))
	defer s.Close()

	_, err := s.Save("a", 1)
	assert.NoError(t, err)
	_, err = s.Save("a", 2)
	assert.NoError(t, err)
	_, err = s.Save("b", 3)
	assert.NoError(t, err)
	assert.NoError(t, s.Remove("b"))
	assert.Error(t, s.Remove("b"))

	c := NewCollector(s, "users")
	assert.Equal(t, 9, testutil.CollectAndCount(c))

	exp := `
# HELP nstore_live_documents Number of documents in the store
# TYPE nstore_live_documents gauge
nstore_live_documents{store="users"} 1
# HELP nstore_stale_records Number of records in the log that no longer back a document
# TYPE nstore_stale_records gauge
nstore_stale_records{store="users"} 2
# HELP nstore_log_bytes Size of the log file in bytes
# TYPE nstore_log_bytes gauge
nstore_log_bytes{store="users"} 15
# HELP nstore_writes_total Total number of saved documents
# TYPE nstore_writes_total counter
nstore_writes_total{store="users"} 3
# HELP nstore_removes_total Total number of removed documents
# TYPE nstore_removes_total counter
nstore_removes_total{store="users"} 1
# HELP nstore_write_errors_total Total number of failed saves and removes
# TYPE nstore_write_errors_total counter
nstore_write_errors_total{store="users"} 1
`
	err = testutil.CollectAndCompare(c, strings.NewReader(exp),
		"nstore_live_documents", "nstore_stale_records", "nstore_log_bytes",
		"nstore_writes_total", "nstore_removes_total", "nstore_write_errors_total")
	assert.NoError(t, err)

	assert.NoError(t, s.Compact())
	exp = `
# HELP nstore_compactions_total Total number of compactions
# TYPE nstore_compactions_total counter
nstore_compactions_total{store="users"} 1
# HELP nstore_log_bytes Size of the log file in bytes
# TYPE nstore_log_bytes gauge
nstore_log_bytes{store="users"} 4
`
	err = testutil.CollectAndCompare(c, strings.NewReader(exp), "nstore_compactions_total", "nstore_log_bytes")
	assert.NoError(t, err)
}

func TestRegister(t *testing.T) {
	s, err := nstore.Open(filepath.Join(t.TempDir(), "test.db"))
	assert.NoError(t, err)
	defer s.Close()

	reg := prometheus.NewPedanticRegistry()
	assert.NoError(t, reg.Register(NewCollector(s, "a")))
	assert.NoError(t, reg.Register(NewCollector(s, "b")))
	n, err := testutil.GatherAndCount(reg, "nstore_live_documents")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}
