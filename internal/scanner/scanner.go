// Package scanner runs heuristic match tests over captured regions in
// parallel and unions the hits.
package scanner

import (
	"log/slog"
	"time"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/infra/workpool"
	"github.com/yndnr/heapsight-go/internal/memory/regions"
	"github.com/yndnr/heapsight-go/internal/telemetry/metric"
)

// DefaultNameReadLen is the number of bytes read for a quick name check.
const DefaultNameReadLen = 16

// MatchTest reports the matching addresses of one region. It must only read
// and must not retain the region.
type MatchTest func(r domain.MemoryRegion) []domain.Addr

// Scanner runs match tests on a worker pool.
type Scanner struct {
	pool    *workpool.Pool
	layout  domain.Layout
	readLen uint64
	metrics *metric.Registry
	logger  *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLayout sets the object layout used by header matches.
func WithLayout(l domain.Layout) Option {
	return func(s *Scanner) {
		s.layout = l
	}
}

// WithNameReadLen sets how many bytes the name check reads.
func WithNameReadLen(n uint64) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.readLen = n
		}
	}
}

// WithMetrics records scan metrics.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// New creates a scanner running on pool.
func New(pool *workpool.Pool, opts ...Option) *Scanner {
	s := &Scanner{
		pool:    pool,
		layout:  domain.DefaultLayout(),
		readLen: DefaultNameReadLen,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Layout returns the layout used for header matches.
func (s *Scanner) Layout() domain.Layout {
	return s.layout
}

// Scan applies match to every region, one task per region. Each task fills
// only its own slot; the slots are unioned after the join, so the result
// does not depend on how tasks were spread over workers.
func (s *Scanner) Scan(rs []domain.MemoryRegion, match MatchTest) domain.CandidateSet {
	slots := make([][]domain.Addr, len(rs))
	err := s.pool.Run(len(rs), func(i int) error {
		slots[i] = match(rs[i])
		return nil
	})
	if err != nil {
		s.logger.Warn("scan task failed", "error", err)
	}

	out := make(domain.CandidateSet)
	for _, hits := range slots {
		for _, a := range hits {
			out.Add(a)
		}
	}
	return out
}

// Query describes a header scan.
type Query struct {
	// Type filters the type pointer. Required.
	Type TypeFilter
	// Name filters the type-name string. Nil skips the name read.
	Name NameFilter
	// Window restricts the scan to regions overlapping it. Nil scans all.
	Window *domain.AddressWindow
	// Kind labels the scan in metrics and logs.
	Kind string
}

// Find runs a header scan over the snapshot. Regions overlapping the window
// are scanned whole.
func (s *Scanner) Find(snap *regions.Snapshot, q Query) domain.CandidateSet {
	start := time.Now()

	rs := snap.Regions()
	if q.Window != nil {
		rs = snap.Overlapping(*q.Window)
	}
	kind := q.Kind
	if kind == "" {
		kind = metric.ScanQuery
	}

	hits := s.Scan(rs, HeaderMatch(snap, s.layout, q.Type, q.Name, s.readLen))

	elapsed := time.Since(start)
	s.metrics.ObserveScan(kind, elapsed.Seconds(), hits.Len())
	s.logger.Debug("scan finished",
		"kind", kind,
		"regions", len(rs),
		"candidates", hits.Len(),
		"elapsed", elapsed)
	return hits
}
