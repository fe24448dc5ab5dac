package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crs"

// CacheMetrics records the size and refresh history of the read cache.
type CacheMetrics struct {
	buyers         prometheus.Gauge
	challans       prometheus.Gauge
	reloadDuration prometheus.Histogram
	reloads        *prometheus.CounterVec
	mutations      *prometheus.CounterVec
}

// NewCacheMetrics registers the cache metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	buyers := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_buyers",
		Help:      "Buyers currently held in the read cache.",
	})
	challans := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_challans",
		Help:      "Challans currently held in the read cache.",
	})
	reloadDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cache_reload_duration_seconds",
		Help:      "Duration of full cache reloads in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
	reloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_reloads_total",
		Help:      "Full cache reloads by result.",
	}, []string{"result"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_mutations_total",
		Help:      "Incremental cache patches by operation.",
	}, []string{"op"})
	reg.MustRegister(buyers, challans, reloadDuration, reloads, mutations)
	return &CacheMetrics{
		buyers:         buyers,
		challans:       challans,
		reloadDuration: reloadDuration,
		reloads:        reloads,
		mutations:      mutations,
	}
}

// SetSizes publishes the current entry counts.
func (m *CacheMetrics) SetSizes(buyers, challans int) {
	if m == nil || m.buyers == nil {
		return
	}
	m.buyers.Set(float64(buyers))
	m.challans.Set(float64(challans))
}

// ObserveReload records one reload attempt.
func (m *CacheMetrics) ObserveReload(duration time.Duration, err error) {
	if m == nil || m.reloads == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.reloads.WithLabelValues(result).Inc()
	m.reloadDuration.Observe(duration.Seconds())
}

// IncMutation counts one applied patch.
func (m *CacheMetrics) IncMutation(op string) {
	if m == nil || m.mutations == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.mutations.WithLabelValues(op).Inc()
}
