// Package metric provides Prometheus metrics for heapsight.
//
//   - prometheus.go: Registry of heapsight metrics and the HTTP handler
//   - collector.go: Collector reporting the live region snapshot on scrape
//
// Metrics include:
//
//   - Capture counters and snapshot size
//   - Scan duration histograms and candidate counters per scan kind
//   - Type-name cache hits and misses
//   - Locator phase
//
// Metrics are exposed at /metrics in Prometheus format by the watch command.
package metric
