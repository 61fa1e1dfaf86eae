package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "storysync"
const metricsSubsystem = "storage"

// Collector exports Service statistics as Prometheus metrics
type Collector struct {
	svc *Service

	saves        *prometheus.Desc
	loads        *prometheus.Desc
	deletes      *prometheus.Desc
	cacheHits    *prometheus.Desc
	cacheMisses  *prometheus.Desc
	errors       *prometheus.Desc
	cacheEntries *prometheus.Desc
	cacheMax     *prometheus.Desc
	hitRatio     *prometheus.Desc
	backendBytes *prometheus.Desc

	durations *prometheus.HistogramVec
}

// NewCollector creates a collector for svc and starts timing its backend calls.
// Register it with prometheus.MustRegister or a custom registry.
func NewCollector(svc *Service) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, metricsSubsystem, name), help, nil, nil)
	}

	c := &Collector{
		svc:          svc,
		saves:        desc("saves_total", "Total successful document saves."),
		loads:        desc("loads_total", "Total successful document loads."),
		deletes:      desc("deletes_total", "Total successful document deletes."),
		cacheHits:    desc("cache_hits_total", "Total loads served from the cache."),
		cacheMisses:  desc("cache_misses_total", "Total loads that went to the backend."),
		errors:       desc("errors_total", "Total failed storage operations."),
		cacheEntries: desc("cache_entries", "Documents currently cached."),
		cacheMax:     desc("cache_capacity", "Maximum number of cached documents."),
		hitRatio:     desc("cache_hit_ratio", "Share of loads served from the cache."),
		backendBytes: desc("backend_bytes", "Backend usage in bytes at the last refresh."),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "operation_duration_seconds",
			Help:      "Duration of backend calls by operation.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
	}

	svc.setObserver(func(op string, d time.Duration) {
		c.durations.WithLabelValues(op).Observe(d.Seconds())
	})

	return c
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.saves, c.loads, c.deletes, c.cacheHits, c.cacheMisses, c.errors,
		c.cacheEntries, c.cacheMax, c.hitRatio, c.backendBytes,
	} {
		ch <- d
	}
	c.durations.Describe(ch)
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.svc.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.saves, prometheus.CounterValue, float64(st.Saves))
	ch <- prometheus.MustNewConstMetric(c.loads, prometheus.CounterValue, float64(st.Loads))
	ch <- prometheus.MustNewConstMetric(c.deletes, prometheus.CounterValue, float64(st.Deletes))
	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(st.CacheHits))
	ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(st.CacheMisses))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(st.Errors))
	ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(st.CacheSize))
	ch <- prometheus.MustNewConstMetric(c.cacheMax, prometheus.GaugeValue, float64(st.MaxCacheSize))
	ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, st.HitRate)
	ch <- prometheus.MustNewConstMetric(c.backendBytes, prometheus.GaugeValue, float64(st.BackendBytes))

	c.durations.Collect(ch)
}
