package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const namespace = "reelcache"

// Metrics holds the collectors of one proxy instance on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	lookups           *prometheus.CounterVec
	fetches           *prometheus.CounterVec
	writes            *prometheus.CounterVec
	synthetic         *prometheus.CounterVec
	partitionsDeleted prometheus.Counter
	preloads          *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Partition lookups by partition and result.",
		}, []string{"partition", "result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_fetches_total",
			Help:      "Network fetches by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Partition writes by partition and outcome.",
		}, []string{"partition", "outcome"}),
		synthetic: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthetic_responses_total",
			Help:      "Placeholder responses served when network and cache both failed.",
		}, []string{"status"}),
		partitionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partitions_deleted_total",
			Help:      "Partitions removed by activation sweeps or cache clears.",
		}),
		preloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preloads_total",
			Help:      "Preload fetches by event (started, completed, failed, cancelled).",
		}, []string{"event"}),
	}

	m.registry.MustRegister(m.lookups, m.fetches, m.writes, m.synthetic, m.partitionsDeleted, m.preloads)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Lookup(partition string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(partition, result).Inc()
}

func (m *Metrics) Fetch(strategy, outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) Write(partition string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.writes.WithLabelValues(partition, outcome).Inc()
}

func (m *Metrics) Synthetic(status string) {
	if m == nil {
		return
	}
	m.synthetic.WithLabelValues(status).Inc()
}

func (m *Metrics) PartitionDeleted() {
	if m == nil {
		return
	}
	m.partitionsDeleted.Inc()
}

func (m *Metrics) Preload(event string) {
	if m == nil {
		return
	}
	m.preloads.WithLabelValues(event).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
