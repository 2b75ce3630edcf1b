package metric

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector samples a handful of gauges on every scrape instead of
// being updated eagerly on every operation, for values that are cheap
// to read but expensive to keep current otherwise (storage size,
// goroutine count).
type Collector struct {
	storageBytes    func() uint64
	partitionsOwned func() int

	goroutines    *prometheus.Desc
	storageBytesD *prometheus.Desc
	partitionsD   *prometheus.Desc
}

// NewCollector builds a Collector. Either callback may be nil, in which
// case its gauge is omitted from Collect.
func NewCollector(storageBytes func() uint64, partitionsOwned func() int) *Collector {
	return &Collector{
		storageBytes:    storageBytes,
		partitionsOwned: partitionsOwned,
		goroutines: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "goroutines"),
			"Current number of goroutines.", nil, nil),
		storageBytesD: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "storage_bytes_sampled"),
			"Storage engine size in bytes, sampled at scrape time.", nil, nil),
		partitionsD: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "partitions_owned_sampled"),
			"Owned partition count, sampled at scrape time.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.goroutines
	if c.storageBytes != nil {
		ch <- c.storageBytesD
	}
	if c.partitionsOwned != nil {
		ch <- c.partitionsD
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.goroutines, prometheus.GaugeValue, float64(runtime.NumGoroutine()))
	if c.storageBytes != nil {
		ch <- prometheus.MustNewConstMetric(c.storageBytesD, prometheus.GaugeValue, float64(c.storageBytes()))
	}
	if c.partitionsOwned != nil {
		ch <- prometheus.MustNewConstMetric(c.partitionsD, prometheus.GaugeValue, float64(c.partitionsOwned()))
	}
}
