package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kvgrid"

// Registry holds every metric kvgrid-server exposes, each registered
// once against its own prometheus.Registry (rather than the global
// DefaultRegisterer) so a process can run more than one Registry in
// tests without collector-already-registered panics.
type Registry struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	MigrationsActive    prometheus.Gauge
	MigrationsCompleted prometheus.Counter
	MigrationsFailed    prometheus.Counter

	PartitionsOwned prometheus.Gauge
	StorageBytes    prometheus.Gauge

	ClusterNodes prometheus.Gauge

	AuthFailures *prometheus.CounterVec
}

// NewRegistry builds a Registry and registers every metric plus the
// standard Go/process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests served by the node request handler, by operation and result status.",
		}, []string{"op", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request handling latency in seconds, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		MigrationsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "migrations_active",
			Help:      "Partition migrations currently in flight on this node's coordinator.",
		}),
		MigrationsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_completed_total",
			Help:      "Partition migrations that reached COMPLETED.",
		}),
		MigrationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_failed_total",
			Help:      "Partition migrations that reached ERRORED.",
		}),

		PartitionsOwned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partitions_owned",
			Help:      "Partitions whose owning group includes this node.",
		}),
		StorageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_bytes",
			Help:      "Total on-disk size reported by the embedded storage engine.",
		}),

		ClusterNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_nodes",
			Help:      "Nodes visible to this process through gossip membership.",
		}),

		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Request authentication failures, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		r.RequestsTotal,
		r.RequestDuration,
		r.MigrationsActive,
		r.MigrationsCompleted,
		r.MigrationsFailed,
		r.PartitionsOwned,
		r.StorageBytes,
		r.ClusterNodes,
		r.AuthFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// RecordRequest increments the request counter for op/status.
func (r *Registry) RecordRequest(op, status string) {
	r.RequestsTotal.WithLabelValues(op, status).Inc()
}

// ObserveRequestDuration records one request's latency in seconds.
func (r *Registry) ObserveRequestDuration(op string, seconds float64) {
	r.RequestDuration.WithLabelValues(op).Observe(seconds)
}

// IncMigrationsActive/DecMigrationsActive track in-flight migrations.
func (r *Registry) IncMigrationsActive() { r.MigrationsActive.Inc() }
func (r *Registry) DecMigrationsActive() { r.MigrationsActive.Dec() }

// RecordMigrationOutcome tallies a terminal migration state.
func (r *Registry) RecordMigrationOutcome(completed bool) {
	if completed {
		r.MigrationsCompleted.Inc()
		return
	}
	r.MigrationsFailed.Inc()
}

// SetPartitionsOwned reports the current owned-partition count.
func (r *Registry) SetPartitionsOwned(n float64) { r.PartitionsOwned.Set(n) }

// SetStorageBytes reports the engine's current on-disk size.
func (r *Registry) SetStorageBytes(n float64) { r.StorageBytes.Set(n) }

// SetClusterNodes reports the current gossip membership size.
func (r *Registry) SetClusterNodes(n float64) { r.ClusterNodes.Set(n) }

// RecordAuthFailure increments the auth-failure counter for reason.
func (r *Registry) RecordAuthFailure(reason string) {
	r.AuthFailures.WithLabelValues(reason).Inc()
}

// Register adds an additional prometheus.Collector (e.g. Collector from
// collector.go) to this registry's underlying prometheus.Registry.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.registry.Register(c)
}

// Handler returns the HTTP handler serving this registry's /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide Registry, creating it on first call.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler returns the HTTP handler for the global registry's /metrics.
func Handler() http.Handler {
	return Global().Handler()
}
