package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "heapsight"

// Scan kinds used as the "kind" label.
const (
	ScanBuiltin       = "builtin"
	ScanRuntimeType   = "runtime_type"
	ScanRootType      = "root_type"
	ScanRootInstances = "root_instances"
	ScanQuery         = "query"
)

// Registry holds all application metrics.
//
// A nil *Registry is valid: every recording method is a no-op, so
// components can be built without metrics.
type Registry struct {
	registry *prometheus.Registry

	// Capture metrics
	RegionsCaptured prometheus.Counter
	RegionsDropped  prometheus.Counter
	CaptureDuration prometheus.Histogram

	// Scan metrics
	ScanDuration   *prometheus.HistogramVec
	ScanCandidates *prometheus.CounterVec

	// Runtime metrics
	TypeCacheHits    prometheus.Counter
	TypeCacheMisses  prometheus.Counter
	BuiltinAttempts  prometheus.Counter
	DictDecodes      *prometheus.CounterVec
	LocatorState     prometheus.Gauge
	TreeNodesVisited prometheus.Counter
}

var (
	globalRegistry *Registry
	globalOnce     sync.Once
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler returns an HTTP handler for the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// NewRegistry creates a registry with all heapsight metrics plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		RegionsCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "regions_total",
			Help:      "Regions copied into a snapshot",
		}),
		RegionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "regions_dropped_total",
			Help:      "Regions skipped because their read failed or was short",
		}),
		CaptureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "duration_seconds",
			Help:      "Time spent enumerating and copying regions",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Heuristic scan duration by kind",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"kind"}),
		ScanCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "candidates_total",
			Help:      "Addresses accepted by heuristic scans",
		}, []string{"kind"}),
		TypeCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "typecache",
			Name:      "hits_total",
			Help:      "Type-name lookups answered from the cache",
		}),
		TypeCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "typecache",
			Name:      "misses_total",
			Help:      "Type-name lookups that read the snapshot",
		}),
		BuiltinAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "builtin_attempts_total",
			Help:      "Passes made to resolve built-in type objects",
		}),
		DictDecodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "dict_decodes_total",
			Help:      "Dictionary decodes by result",
		}, []string{"result"}),
		LocatorState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "locator",
			Name:      "state",
			Help:      "Current locator phase (0 = uninitialized)",
		}),
		TreeNodesVisited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "nodes_visited_total",
			Help:      "UI tree nodes decoded",
		}),
	}

	reg.MustRegister(
		r.RegionsCaptured,
		r.RegionsDropped,
		r.CaptureDuration,
		r.ScanDuration,
		r.ScanCandidates,
		r.TypeCacheHits,
		r.TypeCacheMisses,
		r.BuiltinAttempts,
		r.DictDecodes,
		r.LocatorState,
		r.TreeNodesVisited,
	)

	return r
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Register adds an extra collector, such as a Collector bound to a session.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.registry.Register(c)
}

// Unregister removes a collector added with Register.
func (r *Registry) Unregister(c prometheus.Collector) bool {
	return r.registry.Unregister(c)
}

// RecordCapture records one capture pass.
func (r *Registry) RecordCapture(captured, dropped int, seconds float64) {
	if r == nil {
		return
	}
	r.RegionsCaptured.Add(float64(captured))
	r.RegionsDropped.Add(float64(dropped))
	r.CaptureDuration.Observe(seconds)
}

// ObserveScan records one scan of the given kind.
func (r *Registry) ObserveScan(kind string, seconds float64, candidates int) {
	if r == nil {
		return
	}
	r.ScanDuration.WithLabelValues(kind).Observe(seconds)
	r.ScanCandidates.WithLabelValues(kind).Add(float64(candidates))
}

// IncTypeCacheHit increments the type-name cache hit counter.
func (r *Registry) IncTypeCacheHit() {
	if r == nil {
		return
	}
	r.TypeCacheHits.Inc()
}

// IncTypeCacheMiss increments the type-name cache miss counter.
func (r *Registry) IncTypeCacheMiss() {
	if r == nil {
		return
	}
	r.TypeCacheMisses.Inc()
}

// IncBuiltinAttempt counts one built-in resolution pass.
func (r *Registry) IncBuiltinAttempt() {
	if r == nil {
		return
	}
	r.BuiltinAttempts.Inc()
}

// RecordDictDecode counts a dictionary decode ("ok" or "rejected").
func (r *Registry) RecordDictDecode(result string) {
	if r == nil {
		return
	}
	r.DictDecodes.WithLabelValues(result).Inc()
}

// SetLocatorState publishes the locator phase.
func (r *Registry) SetLocatorState(state int) {
	if r == nil {
		return
	}
	r.LocatorState.Set(float64(state))
}

// AddTreeNodes counts decoded UI tree nodes.
func (r *Registry) AddTreeNodes(n int) {
	if r == nil {
		return
	}
	r.TreeNodesVisited.Add(float64(n))
}
