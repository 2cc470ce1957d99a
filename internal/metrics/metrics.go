// Package metrics holds the Prometheus collectors for the fetch/reshape pipeline.
//
// All recording methods are safe on a nil *Pipeline so that components can be
// built without a registry in tests and in the CLI.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cityscore"

// Pipeline groups every collector the pipeline records into.
type Pipeline struct {
	pagesFetched     prometheus.Counter
	recordsFetched   prometheus.Counter
	fetchDuration    prometheus.Histogram
	fetchErrors      *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	coercionWarnings *prometheus.CounterVec
	violations       *prometheus.GaugeVec
	snapshotRecords  prometheus.Gauge
	snapshotAge      prometheus.Gauge
}

// NewPipeline creates the collectors and registers them with reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	m := &Pipeline{
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "pages_total",
			Help:      "Total number of datastore_search pages fetched",
		}),
		recordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "records_total",
			Help:      "Total number of raw records fetched",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Wall time of a complete paginated fetch",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Failed fetches by error kind",
		}, []string{"kind"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Resource lookups served from the snapshot cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Resource lookups that required a fetch",
		}),
		coercionWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "coercion_warnings_total",
			Help:      "Fields that could not be coerced to their semantic type",
		}, []string{"field"}),
		violations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "violations",
			Help:      "Data-quality violations in the current snapshot by kind",
		}, []string{"kind"}),
		snapshotRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "records",
			Help:      "Rows in the current snapshot",
		}),
		snapshotAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "fetched_timestamp_seconds",
			Help:      "Unix time the current snapshot's data was fetched",
		}),
	}

	collectors := []prometheus.Collector{
		m.pagesFetched, m.recordsFetched, m.fetchDuration, m.fetchErrors,
		m.cacheHits, m.cacheMisses, m.coercionWarnings, m.violations,
		m.snapshotRecords, m.snapshotAge,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Pipeline) PageFetched(records int) {
	if m == nil {
		return
	}
	m.pagesFetched.Inc()
	m.recordsFetched.Add(float64(records))
}

func (m *Pipeline) FetchCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
}

func (m *Pipeline) FetchFailed(kind string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(kind).Inc()
}

func (m *Pipeline) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Pipeline) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Pipeline) CoercionWarning(field string) {
	if m == nil {
		return
	}
	m.coercionWarnings.WithLabelValues(field).Inc()
}

// SnapshotBuilt records the shape of a freshly built snapshot. counts maps a
// violation kind to the number of violations of that kind.
func (m *Pipeline) SnapshotBuilt(records int, fetchedAt time.Time, counts map[string]int) {
	if m == nil {
		return
	}
	m.snapshotRecords.Set(float64(records))
	m.snapshotAge.Set(float64(fetchedAt.Unix()))
	m.violations.Reset()
	for kind, n := range counts {
		m.violations.WithLabelValues(kind).Set(float64(n))
	}
}
