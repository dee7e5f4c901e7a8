package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics shared by the cache layer.
// A nil *Collector is valid and records nothing.
type Collector struct {
	// Breaker metrics
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	BreakerFailures    *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec

	// Cache metrics
	CacheRequests    *prometheus.CounterVec
	CacheWriteErrors *prometheus.CounterVec

	// Query metrics
	QueryDuration *prometheus.HistogramVec
	SlowQueries   *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them on reg.
// When reg is nil a private registry is used so tests can build
// several collectors without duplicate registration panics.
func NewCollector(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"breaker"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"breaker", "from", "to"},
		),
		BreakerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_failures_total",
				Help:      "Total number of failed operations seen by the circuit breaker",
			},
			[]string{"breaker"},
		),
		BreakerRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_rejections_total",
				Help:      "Total number of calls rejected while the circuit was open",
			},
			[]string{"breaker"},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Total number of cache lookups by tier and result",
			},
			[]string{"cache", "tier", "result"},
		),
		CacheWriteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_write_errors_total",
				Help:      "Total number of swallowed remote cache write errors",
			},
			[]string{"operation"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Backing store query duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pattern"},
		),
		SlowQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slow_queries_total",
				Help:      "Total number of queries above the slow query threshold",
			},
			[]string{"pattern"},
		),
	}

	collectors := []prometheus.Collector{
		c.BreakerState,
		c.BreakerTransitions,
		c.BreakerFailures,
		c.BreakerRejections,
		c.CacheRequests,
		c.CacheWriteErrors,
		c.QueryDuration,
		c.SlowQueries,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// ObserveBreakerState records the numeric state of a named breaker.
func (c *Collector) ObserveBreakerState(name string, state int) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(name).Set(float64(state))
}

// ObserveBreakerTransition counts a state change.
func (c *Collector) ObserveBreakerTransition(name, from, to string) {
	if c == nil {
		return
	}
	c.BreakerTransitions.WithLabelValues(name, from, to).Inc()
}

func (c *Collector) ObserveBreakerFailure(name string) {
	if c == nil {
		return
	}
	c.BreakerFailures.WithLabelValues(name).Inc()
}

func (c *Collector) ObserveBreakerRejection(name string) {
	if c == nil {
		return
	}
	c.BreakerRejections.WithLabelValues(name).Inc()
}

// ObserveCacheLookup counts a lookup. result is "hit" or "miss".
func (c *Collector) ObserveCacheLookup(cache, tier, result string) {
	if c == nil {
		return
	}
	c.CacheRequests.WithLabelValues(cache, tier, result).Inc()
}

func (c *Collector) ObserveCacheWriteError(operation string) {
	if c == nil {
		return
	}
	c.CacheWriteErrors.WithLabelValues(operation).Inc()
}

// ObserveQuery records a backing store query and flags slow ones.
func (c *Collector) ObserveQuery(pattern string, seconds float64, slow bool) {
	if c == nil {
		return
	}
	c.QueryDuration.WithLabelValues(pattern).Observe(seconds)
	if slow {
		c.SlowQueries.WithLabelValues(pattern).Inc()
	}
}
