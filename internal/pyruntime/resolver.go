package pyruntime

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/memory/regions"
	"github.com/yndnr/heapsight-go/internal/scanner"
	"github.com/yndnr/heapsight-go/internal/telemetry/metric"
)

// MetaTypeName is the name of the type every type object is an instance of.
const MetaTypeName = "type"

// DefaultAttempts is the number of built-in resolution passes.
const DefaultAttempts = 3

// Resolver identifies the runtime's type objects for one attach.
type Resolver struct {
	scanner    *scanner.Scanner
	attempts   int
	retryDelay time.Duration
	windowMask uint64
	metrics    *metric.Registry
	logger     *slog.Logger

	mu           sync.RWMutex
	runtimeTypes domain.CandidateSet
	builtins     *Builtins
	window       domain.WindowLatch
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithAttempts sets the number of built-in resolution passes.
func WithAttempts(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithRetryDelay sets the pause between resolution passes.
func WithRetryDelay(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.retryDelay = d
	}
}

// WithWindowMask sets the mask deriving the built-in window.
func WithWindowMask(mask uint64) ResolverOption {
	return func(r *Resolver) {
		if mask != 0 {
			r.windowMask = mask
		}
	}
}

// WithResolverMetrics records resolution metrics.
func WithResolverMetrics(m *metric.Registry) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver scanning with sc.
func NewResolver(sc *scanner.Scanner, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		scanner:    sc,
		attempts:   DefaultAttempts,
		windowMask: domain.BuiltinWindowMask,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindRuntimeTypeSelf finds every self-typed object named "type" and keeps
// them all as the runtime-type set.
func (r *Resolver) FindRuntimeTypeSelf(snap *regions.Snapshot) domain.CandidateSet {
	hits := r.scanner.Find(snap, scanner.Query{
		Type: scanner.SelfTyped(),
		Name: scanner.NameIs(MetaTypeName),
		Kind: metric.ScanRuntimeType,
	})

	r.mu.Lock()
	r.runtimeTypes = hits
	r.mu.Unlock()

	if hits.Len() == 0 {
		r.logger.Warn("runtime type not found")
	} else {
		r.logger.Info("runtime type found", "candidates", hits.Len(), "addrs", hits.Sorted())
	}
	return hits
}

// RuntimeTypes returns the runtime-type set. The caller must not modify it.
func (r *Resolver) RuntimeTypes() domain.CandidateSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runtimeTypes
}

// Builtins returns the resolved built-ins, or nil before resolution.
func (r *Resolver) Builtins() *Builtins {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.builtins
}

// Window returns the built-in window once derived.
func (r *Resolver) Window() (domain.AddressWindow, bool) {
	return r.window.Get()
}

// IsTypeObject reports whether the object at typ is an instance of a
// runtime type.
func (r *Resolver) IsTypeObject(mem regions.Memory, typ domain.Addr, layout domain.Layout) bool {
	meta, ok := regions.ReadAddr(mem, typ+domain.Addr(layout.TypeOffset))
	return ok && r.RuntimeTypes().Contains(meta)
}

// ResolveBuiltinTypes resolves each name to exactly one type object whose
// type is in the runtime-type set. The first resolution derives the window
// every later scan is restricted to. Each pass re-scans only the names still
// unresolved; after the last pass any missing name fails the attach with
// ErrUnresolvableRuntime.
//
// Once all names resolve the result is published and never changes.
func (r *Resolver) ResolveBuiltinTypes(snap *regions.Snapshot, names []string) (*Builtins, error) {
	if b := r.Builtins(); b != nil {
		return b, nil
	}

	runtimeTypes := r.RuntimeTypes()
	if runtimeTypes.Len() == 0 {
		return nil, domain.ErrUnresolvableRuntime.WithDetails("runtime type not resolved")
	}

	found := make(map[string]domain.Addr, len(names))
	pending := append([]string(nil), names...)

	for attempt := 1; attempt <= r.attempts && len(pending) > 0; attempt++ {
		if attempt > 1 && r.retryDelay > 0 {
			time.Sleep(r.retryDelay)
		}
		r.metrics.IncBuiltinAttempt()

		var still []string
		for _, name := range pending {
			q := scanner.Query{
				Type: scanner.TypeIn(runtimeTypes),
				Name: scanner.NameIs(name),
				Kind: metric.ScanBuiltin,
			}
			if w, ok := r.window.Get(); ok {
				q.Window = &w
			}

			hits := r.scanner.Find(snap, q)
			addr, ok := hits.Single()
			if !ok {
				r.logger.Debug("built-in type not identified",
					"name", name,
					"candidates", hits.Len(),
					"attempt", attempt)
				still = append(still, name)
				continue
			}

			found[name] = addr
			if r.window.Set(domain.DeriveWindow(addr, r.windowMask)) {
				w, _ := r.window.Get()
				r.logger.Info("built-in window derived", "window", w.String())
			}
			r.logger.Debug("built-in type found", "name", name, "addr", addr)
		}
		pending = still
	}

	if len(pending) > 0 {
		sort.Strings(pending)
		r.logger.Error("built-in types unresolved", "missing", pending, "attempts", r.attempts)
		return nil, domain.ErrUnresolvableRuntime.WithDetails("missing built-ins: " + strings.Join(pending, ", "))
	}

	b := NewBuiltins(found)
	r.mu.Lock()
	if r.builtins == nil {
		r.builtins = b
	}
	b = r.builtins
	r.mu.Unlock()

	r.logger.Info("built-in types resolved", "count", b.Len())
	return b, nil
}
