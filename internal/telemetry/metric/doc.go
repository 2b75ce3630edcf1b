// Package metric provides Prometheus metrics for kvgrid-server.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry and HTTP handler
//   - collector.go: a custom Collector for gauges sampled on scrape
//     (storage bytes, owned partitions, goroutine count) rather than
//     updated on every operation
//
// Metrics cover the request path, the migration coordinator, the storage
// engine, and cluster membership. Metrics are exposed at /metrics in
// Prometheus format.
package metric
