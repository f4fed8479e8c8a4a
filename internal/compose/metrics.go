package compose

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adapterd",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Composition cache hits",
	})

	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adapterd",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Composition cache misses",
	})

	cacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adapterd",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Composition cache LRU evictions",
	})

	buildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adapterd",
		Subsystem: "compose",
		Name:      "builds_total",
		Help:      "Composition builds by outcome",
	}, []string{"outcome"})

	buildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "adapterd",
		Subsystem: "compose",
		Name:      "build_duration_seconds",
		Help:      "Duration of composition builds in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	queueLen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "adapterd",
		Subsystem: "compose",
		Name:      "queue_len",
		Help:      "Queued async composition requests",
	})
)

func init() {
	prometheus.MustRegister(cacheHitsTotal, cacheMissesTotal, cacheEvictionsTotal,
		buildsTotal, buildDuration, queueLen)
}
