package eventdb

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// storeMetrics holds the counters of one DB, labelled with its facet.
type storeMetrics struct {
	set    *metrics.Set
	facet  string
	writes *metrics.Counter
	reads  *metrics.Counter
	items  *metrics.Histogram
}

func newStoreMetrics(set *metrics.Set, facet string) *storeMetrics {
	return &storeMetrics{
		set:    set,
		facet:  facet,
		writes: set.GetOrCreateCounter(fmt.Sprintf(`facetdb_writes_total{facet=%q}`, facet)),
		reads:  set.GetOrCreateCounter(fmt.Sprintf(`facetdb_reads_total{facet=%q}`, facet)),
		items:  set.GetOrCreateHistogram(fmt.Sprintf(`facetdb_batch_items{facet=%q}`, facet)),
	}
}

func (m *storeMetrics) writeSucceeded(items int) {
	m.writes.Inc()
	m.items.Update(float64(items))
}

func (m *storeMetrics) writeFailed(kind Kind) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`facetdb_write_errors_total{facet=%q,kind=%q}`, m.facet, kind)).Inc()
}

func (m *storeMetrics) read() {
	m.reads.Inc()
}

// WriteMetrics writes the DB's metrics in Prometheus text format.
func (db *DB) WriteMetrics(w io.Writer) {
	db.metrics.set.WritePrometheus(w)
}
