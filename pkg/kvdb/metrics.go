package kvdb

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the storage layer.
type Metrics struct {
	dumpSeconds    prometheus.Gauge
	dumpsTotal     prometheus.Counter
	dumpFailures   prometheus.Counter
	objectsWritten prometheus.Counter
	objectsLoaded  prometheus.Gauge
	attrDefsLoaded prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the
// database layer.
func NewMetrics() *Metrics {
	m := &Metrics{
		dumpSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushdb_dump_seconds",
			Help: "Wall time of the most recent database dump.",
		}),
		dumpsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mushdb_dumps_total",
			Help: "Total database dumps since start.",
		}),
		dumpFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mushdb_dump_failures_total",
			Help: "Total object records that failed to write during dumps.",
		}),
		objectsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mushdb_objects_written_total",
			Help: "Total object records written across all dumps.",
		}),
		objectsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushdb_objects_loaded",
			Help: "Objects read by the most recent database load.",
		}),
		attrDefsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushdb_attr_definitions_loaded",
			Help: "User attribute definitions read by the most recent load.",
		}),
	}

	prometheus.MustRegister(
		m.dumpSeconds,
		m.dumpsTotal,
		m.dumpFailures,
		m.objectsWritten,
		m.objectsLoaded,
		m.attrDefsLoaded,
	)
	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) observeDump(took time.Duration, written, failed int) {
	if m == nil {
		return
	}
	m.dumpSeconds.Set(took.Seconds())
	m.dumpsTotal.Inc()
	m.objectsWritten.Add(float64(written))
	m.dumpFailures.Add(float64(failed))
}

func (m *Metrics) observeLoad(objects, attrDefs int) {
	if m == nil {
		return
	}
	m.objectsLoaded.Set(float64(objects))
	m.attrDefsLoaded.Set(float64(attrDefs))
}
