// Package regions captures the readable memory of a process into immutable
// snapshots and answers containment queries against them.
package regions

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/infra/workpool"
	"github.com/yndnr/heapsight-go/internal/memory/procmem"
	"github.com/yndnr/heapsight-go/internal/telemetry/metric"
)

// DefaultReadAttempts is the number of bulk reads tried per region.
const DefaultReadAttempts = 3

// Cache owns the current snapshot of one source.
type Cache struct {
	source        procmem.Source
	pool          *workpool.Pool
	attempts      int
	maxRegionSize uint64
	limiter       *rate.Limiter
	metrics       *metric.Registry
	logger        *slog.Logger

	current atomic.Pointer[Snapshot]
}

// Option configures a Cache.
type Option func(*Cache)

// WithReadAttempts sets how many times a region read is tried.
func WithReadAttempts(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithReadsPerSecond paces bulk reads. Zero disables pacing.
func WithReadsPerSecond(rps float64) Option {
	return func(c *Cache) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithMaxRegionSize skips regions larger than n bytes. Zero keeps all.
func WithMaxRegionSize(n uint64) Option {
	return func(c *Cache) {
		c.maxRegionSize = n
	}
}

// WithMetrics records capture metrics.
func WithMetrics(m *metric.Registry) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache over source. Reads run on pool.
func New(source procmem.Source, pool *workpool.Pool, opts ...Option) *Cache {
	c := &Cache{
		source:   source,
		pool:     pool,
		attempts: DefaultReadAttempts,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture enumerates the source's regions, reads every capturable one and
// publishes the result as the current snapshot. A region that never reads
// in full is left out. Only a failed enumeration is an error.
func (c *Cache) Capture() (*Snapshot, error) {
	start := time.Now()

	infos, err := c.source.Regions()
	if err != nil {
		return nil, fmt.Errorf("enumerate regions: %w", err)
	}

	targets := make([]domain.RegionInfo, 0, len(infos))
	for _, info := range infos {
		if !info.Capturable() {
			continue
		}
		if c.maxRegionSize > 0 && info.Size > c.maxRegionSize {
			c.logger.Debug("region too large, skipped", "region", info)
			continue
		}
		targets = append(targets, info)
	}

	slots := make([]*domain.MemoryRegion, len(targets))
	_ = c.pool.Run(len(targets), func(i int) error {
		slots[i] = c.read(targets[i])
		return nil
	})

	captured := make([]domain.MemoryRegion, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			captured = append(captured, *r)
		}
	}
	dropped := len(targets) - len(captured)

	snap, err := NewSnapshot(captured)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	c.current.Store(snap)

	elapsed := time.Since(start)
	c.metrics.RecordCapture(len(captured), dropped, elapsed.Seconds())
	c.logger.Info("memory captured",
		"snapshot", snap.ID().String(),
		"regions", snap.Len(),
		"dropped", dropped,
		"bytes", snap.Bytes(),
		"elapsed", elapsed)

	return snap, nil
}

// Refresh captures a new snapshot and replaces the current one. Holders of
// the previous snapshot keep using it unchanged.
func (c *Cache) Refresh() (*Snapshot, error) {
	return c.Capture()
}

// Drop releases the current snapshot.
func (c *Cache) Drop() {
	c.current.Store(nil)
}

// Snapshot returns the current snapshot, or nil before Capture and after Drop.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// Lookup reads from the current snapshot.
func (c *Cache) Lookup(addr domain.Addr, length uint64) ([]byte, bool) {
	return c.Snapshot().Lookup(addr, length)
}

// ReadCString reads a C string from the current snapshot.
func (c *Cache) ReadCString(addr domain.Addr, maxLength uint64) (string, bool) {
	return c.Snapshot().ReadCString(addr, maxLength)
}

// Stats implements metric.SnapshotStats over the current snapshot.
func (c *Cache) Stats() (int, uint64) {
	return c.Snapshot().Stats()
}

// read copies one region, retrying short reads.
func (c *Cache) read(info domain.RegionInfo) *domain.MemoryRegion {
	buf := make([]byte, info.Size)

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		c.pace()
		n, err := c.source.ReadAt(info.Base, buf)
		if err == nil && uint64(n) == info.Size {
			return &domain.MemoryRegion{Base: info.Base, Content: buf}
		}
		lastErr = err
		if lastErr == nil {
			lastErr = fmt.Errorf("short read: %d of %d bytes", n, info.Size)
		}
	}

	c.logger.Debug("region dropped",
		"region", info,
		"attempts", c.attempts,
		"error", domain.ErrRegionUnreadable.WithCause(lastErr))
	return nil
}

// pace blocks until the limiter admits one read. There is no cancellation
// while capturing, so the reservation delay is slept out.
func (c *Cache) pace() {
	if c.limiter == nil {
		return
	}
	if d := c.limiter.Reserve().Delay(); d > 0 {
		time.Sleep(d)
	}
}
