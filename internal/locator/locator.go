// Package locator finds the application root type and its instances and
// tracks the attach state.
package locator

import (
	"log/slog"
	"sync"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/memory/regions"
	"github.com/yndnr/heapsight-go/internal/scanner"
	"github.com/yndnr/heapsight-go/internal/telemetry/metric"
)

// DefaultRootType is the type name of the UI root singleton.
const DefaultRootType = "UIRoot"

// Locator finds the application root for one attach.
type Locator struct {
	scanner    *scanner.Scanner
	machine    *Machine
	windowMask uint64
	logger     *slog.Logger

	window    domain.WindowLatch
	mu        sync.RWMutex
	rootType  domain.Addr
	instances domain.CandidateSet
}

// Option configures a Locator.
type Option func(*Locator)

// WithWindowMask sets the mask deriving the application window.
func WithWindowMask(mask uint64) Option {
	return func(l *Locator) {
		if mask != 0 {
			l.windowMask = mask
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locator) {
		l.logger = logger
	}
}

// New creates a locator scanning with sc. The machine is shared with the
// rest of the attach pipeline.
func New(sc *scanner.Scanner, machine *Machine, opts ...Option) *Locator {
	l := &Locator{
		scanner:    sc,
		machine:    machine,
		windowMask: domain.AppWindowMask,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Machine returns the attach state machine.
func (l *Locator) Machine() *Machine {
	return l.machine
}

// Window returns the application window once derived.
func (l *Locator) Window() (domain.AddressWindow, bool) {
	return l.window.Get()
}

// RootType returns the resolved root type.
func (l *Locator) RootType() (domain.Addr, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rootType, !l.rootType.IsNull()
}

// Instances returns the last located root instances.
func (l *Locator) Instances() domain.CandidateSet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.instances
}

// LocateRootType looks for a type object named name among the instances of
// the runtime types. Exactly one match derives the application window and
// advances the attach. Zero or several matches are logged and leave the
// attach degraded: the result is empty and no error is returned, any earlier
// root type and instances are forgotten and the machine falls back to
// BuiltinsResolved. The application window is a latch and stays.
func (l *Locator) LocateRootType(snap *regions.Snapshot, runtimeTypes domain.CandidateSet, name string) (domain.CandidateSet, error) {
	if err := l.machine.Require(BuiltinsResolved); err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultRootType
	}

	hits := l.scanner.Find(snap, scanner.Query{
		Type: scanner.TypeIn(runtimeTypes),
		Name: scanner.NameIs(name),
		Kind: metric.ScanRootType,
	})

	addr, ok := hits.Single()
	if !ok {
		l.logger.Warn("root type not identified",
			"name", name,
			"candidates", hits.Len(),
			"error", domain.ErrAmbiguousIdentification)
		l.mu.Lock()
		l.rootType = 0
		l.instances = nil
		l.mu.Unlock()
		l.machine.Retreat(BuiltinsResolved)
		return domain.NewCandidateSet(), nil
	}

	l.mu.Lock()
	l.rootType = addr
	l.mu.Unlock()

	if l.window.Set(domain.DeriveWindow(addr, l.windowMask)) {
		w, _ := l.window.Get()
		l.logger.Info("application window derived", "window", w.String())
	}
	if l.machine.State() == BuiltinsResolved {
		if err := l.machine.Advance(RootTypeResolved); err != nil {
			return nil, err
		}
	}

	l.logger.Info("root type found", "name", name, "addr", addr)
	return hits, nil
}

// LocateRootInstances finds every object whose type is rootType, restricted
// to the application window when one exists.
func (l *Locator) LocateRootInstances(snap *regions.Snapshot, rootType domain.Addr) (domain.CandidateSet, error) {
	if err := l.machine.Require(RootTypeResolved); err != nil {
		return nil, err
	}

	q := scanner.Query{
		Type: scanner.TypeIs(rootType),
		Kind: metric.ScanRootInstances,
	}
	if w, ok := l.window.Get(); ok {
		q.Window = &w
	}
	hits := l.scanner.Find(snap, q)

	l.mu.Lock()
	l.instances = hits
	l.mu.Unlock()

	if l.machine.State() == RootTypeResolved {
		if err := l.machine.Advance(RootInstancesResolved); err != nil {
			return nil, err
		}
	}

	l.logger.Info("root instances located", "root_type", rootType, "count", hits.Len())
	return hits, nil
}
