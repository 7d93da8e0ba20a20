// Package workpool runs phases of independent tasks on a bounded number of
// goroutines.
//
// A Pool is reused across phases but runs one phase at a time: Run holds the
// phase lock until every task of the phase has returned. Tasks are never
// cancelled; a failing task does not stop its siblings.
package workpool

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers is the pool size used when none is configured.
	DefaultWorkers = 4
	// MaxWorkers is the upper bound for the pool size.
	MaxWorkers = 16
)

// Pool is a fixed-size worker pool.
type Pool struct {
	workers int
	phase   sync.Mutex
	logger  *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used to report recovered task panics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// New creates a pool of the given size, clamped to [1, MaxWorkers].
// Zero selects DefaultWorkers.
func New(workers int, opts ...Option) *Pool {
	p := &Pool{
		workers: Clamp(workers),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Clamp normalizes a configured worker count.
func Clamp(workers int) int {
	switch {
	case workers == 0:
		return DefaultWorkers
	case workers < 1:
		return 1
	case workers > MaxWorkers:
		return MaxWorkers
	default:
		return workers
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.workers
}

// Run calls task(i) for every i in [0, n) with at most Size() calls in
// flight and returns once all of them have finished. The first non-nil task
// error is returned. A panicking task is recovered and reported as an error.
//
// Tasks must not call Run on the same pool.
func (p *Pool) Run(n int, task func(i int) error) error {
	if n <= 0 {
		return nil
	}

	p.phase.Lock()
	defer p.phase.Unlock()

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("worker task panicked", "task", i, "panic", r)
					err = fmt.Errorf("workpool: task %d panicked: %v", i, r)
				}
			}()
			return task(i)
		})
	}
	return g.Wait()
}
