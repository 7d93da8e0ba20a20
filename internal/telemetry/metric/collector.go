package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotStats reports the current region snapshot.
type SnapshotStats interface {
	Stats() (regions int, bytes uint64)
}

// Collector reports snapshot size on every scrape instead of tracking it
// with gauges that can go stale between refreshes.
type Collector struct {
	source SnapshotStats

	regionsDesc *prometheus.Desc
	bytesDesc   *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source SnapshotStats) *Collector {
	return &Collector{
		source: source,
		regionsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "snapshot", "regions"),
			"Regions in the current snapshot",
			nil, nil,
		),
		bytesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "snapshot", "bytes"),
			"Bytes held by the current snapshot",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.regionsDesc
	ch <- c.bytesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	regions, bytes := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.regionsDesc, prometheus.GaugeValue, float64(regions))
	ch <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.GaugeValue, float64(bytes))
}
