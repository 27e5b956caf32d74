// Package metrics exposes nstore.Store counters to prometheus
package metrics

import (
	"github.com/kjk/nstore/nstore"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector reads counters of a store each time it's scraped
type Collector struct {
	store *nstore.Store

	live             *prometheus.Desc
	stale            *prometheus.Desc
	size             *prometheus.Desc
	pending          *prometheus.Desc
	writes           *prometheus.Desc
	removes          *prometheus.Desc
	writeErrors      *prometheus.Desc
	compactions      *prometheus.Desc
	compactionErrors *prometheus.Desc
}

var _ prometheus.Collector = &Collector{}

// NewCollector returns a collector for s. name is the value of the
// "store" label, so that many stores can be registered
func NewCollector(s *nstore.Store, name string) *Collector {
	labels := prometheus.Labels{"store": name}
	desc := func(name string, help string) *prometheus.Desc {
		return prometheus.NewDesc(name, help, nil, labels)
	}
	return &Collector{
		store:            s,
		live:             desc("nstore_live_documents", "Number of documents in the store"),
		stale:            desc("nstore_stale_records", "Number of records in the log that no longer back a document"),
		size:             desc("nstore_log_bytes", "Size of the log file in bytes"),
		pending:          desc("nstore_pending_operations", "Number of queued saves, removes and compactions"),
		writes:           desc("nstore_writes_total", "Total number of saved documents"),
		removes:          desc("nstore_removes_total", "Total number of removed documents"),
		writeErrors:      desc("nstore_write_errors_total", "Total number of failed saves and removes"),
		compactions:      desc("nstore_compactions_total", "Total number of compactions"),
		compactionErrors: desc("nstore_compaction_errors_total", "Total number of failed compactions"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.live
	ch <- c.stale
	ch <- c.size
	ch <- c.pending
	ch <- c.writes
	ch <- c.removes
	ch <- c.writeErrors
	ch <- c.compactions
	ch <- c.compactionErrors
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.store.Stats()
	gauge := func(desc *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v)
	}
	counter := func(desc *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
	gauge(c.live, float64(st.Live))
	gauge(c.stale, float64(st.Stale))
	gauge(c.size, float64(st.Size))
	gauge(c.pending, float64(st.Pending))
	counter(c.writes, st.Writes)
	counter(c.removes, st.Removes)
	counter(c.writeErrors, st.WriteErrors)
	counter(c.compactions, st.Compactions)
	counter(c.compactionErrors, st.CompactionErrors)
}

// Register registers a collector for s with the default prometheus registry
func Register(s *nstore.Store, name string) error {
	return prometheus.Register(NewCollector(s, name))
}
