// Package session binds the region cache, the type resolver and the
// application locator to one explicit attach.
//
// A Session owns every cache built during an attach. Capture fills them,
// Refresh replaces the memory snapshot while keeping the resolved types, and
// Drop releases everything. A dropped session rejects further calls with
// ErrSessionDropped.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/heapsight-go/internal/config"
	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/infra/workpool"
	"github.com/yndnr/heapsight-go/internal/locator"
	"github.com/yndnr/heapsight-go/internal/memory/procmem"
	"github.com/yndnr/heapsight-go/internal/memory/regions"
	"github.com/yndnr/heapsight-go/internal/pyruntime"
	"github.com/yndnr/heapsight-go/internal/scanner"
	"github.com/yndnr/heapsight-go/internal/telemetry/logger"
	"github.com/yndnr/heapsight-go/internal/telemetry/metric"
)

// Session is one attach to one memory source.
type Session struct {
	id      ulid.ULID
	cfg     *config.Config
	metrics *metric.Registry
	logger  *slog.Logger

	// log is logger tagged with the session id.
	log *slog.Logger

	capturePool *workpool.Pool
	scanPool    *workpool.Pool

	cache    *regions.Cache
	scanner  *scanner.Scanner
	resolver *pyruntime.Resolver
	types    *pyruntime.TypeCache
	machine  *locator.Machine
	locator  *locator.Locator

	// mu serializes phases.
	mu       sync.Mutex
	dropped  bool
	rootName string
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the configuration. Nil keeps the defaults.
func WithConfig(cfg *config.Config) Option {
	return func(s *Session) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithMetrics records session metrics to m.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithLogger sets the base logger. The session adds its id to every line.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates a session reading from source. Nothing is read until Capture.
func New(source procmem.Source, opts ...Option) *Session {
	s := &Session{
		id:     ulid.Make(),
		cfg:    config.Default(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.L(s.scope(context.Background()))

	cfg := s.cfg
	s.capturePool = workpool.New(cfg.Capture.Workers, workpool.WithLogger(s.log))
	s.scanPool = workpool.New(cfg.Scan.Workers, workpool.WithLogger(s.log))

	s.cache = regions.New(source, s.capturePool,
		regions.WithReadAttempts(cfg.Capture.Retries),
		regions.WithReadsPerSecond(cfg.Capture.ReadsPerSecond),
		regions.WithMaxRegionSize(cfg.Capture.MaxRegionSize),
		regions.WithMetrics(s.metrics),
		regions.WithLogger(s.log))
	s.scanner = scanner.New(s.scanPool,
		scanner.WithLayout(cfg.Layout),
		scanner.WithNameReadLen(cfg.Scan.NameReadLen),
		scanner.WithMetrics(s.metrics),
		scanner.WithLogger(s.log))
	s.resolver = pyruntime.NewResolver(s.scanner,
		pyruntime.WithAttempts(cfg.Runtime.BuiltinAttempts),
		pyruntime.WithRetryDelay(cfg.Runtime.RetryDelay),
		pyruntime.WithWindowMask(cfg.Runtime.BuiltinWindowMask),
		pyruntime.WithResolverMetrics(s.metrics),
		pyruntime.WithResolverLogger(s.log))
	s.types = pyruntime.NewTypeCache()
	s.machine = locator.NewMachine(s.metrics)
	s.locator = locator.New(s.scanner, s.machine,
		locator.WithWindowMask(cfg.App.WindowMask),
		locator.WithLogger(s.log))

	return s
}

// scope returns ctx carrying the session logger and id.
func (s *Session) scope(ctx context.Context) context.Context {
	return logger.WithSessionID(logger.WithLogger(ctx, s.logger), s.id.String())
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id.String()
}

// State returns the attach state.
func (s *Session) State() locator.State {
	return s.machine.State()
}

// Config returns the configuration the session was built with.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Snapshot returns the current memory snapshot, or nil before Capture.
func (s *Session) Snapshot() *regions.Snapshot {
	return s.cache.Snapshot()
}

// begin locks the session for one phase.
func (s *Session) begin(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.dropped {
		s.mu.Unlock()
		return nil, domain.ErrSessionDropped.WithDetails(s.ID())
	}
	return s.mu.Unlock, nil
}

// current returns the snapshot phases read from.
func (s *Session) current() (*regions.Snapshot, error) {
	if err := s.machine.Require(locator.RegionsCaptured); err != nil {
		return nil, err
	}
	snap := s.cache.Snapshot()
	if snap == nil {
		return nil, domain.ErrNoRegions
	}
	return snap, nil
}

// Capture takes the first memory snapshot. Calling it again behaves like
// Refresh.
func (s *Session) Capture(ctx context.Context) (*regions.Snapshot, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return s.capture()
}

func (s *Session) capture() (*regions.Snapshot, error) {
	snap, err := s.cache.Capture()
	if err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		return nil, domain.ErrNoRegions
	}
	if s.machine.State() == locator.Uninitialized {
		if err := s.machine.Advance(locator.RegionsCaptured); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// Refresh replaces the memory snapshot. Resolved types and windows are kept;
// root instances must be located again to reflect the new memory.
func (s *Session) Refresh(ctx context.Context) (*regions.Snapshot, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if err := s.machine.Require(locator.RegionsCaptured); err != nil {
		return nil, err
	}
	return s.capture()
}

// Drop releases the snapshot and every cache. The session cannot be used
// afterwards.
func (s *Session) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped {
		return
	}
	s.dropped = true
	s.cache.Drop()
	s.machine.Reset()
	s.log.Info("session dropped", "cached_types", s.types.Len())
	s.types.Clear()
}

// Scan runs a header scan over the current snapshot.
func (s *Session) Scan(ctx context.Context, q scanner.Query) (domain.CandidateSet, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	if q.Type == nil {
		return nil, domain.ErrInvalidArgument.WithDetails("scan needs a type filter")
	}
	return s.scanner.Find(snap, q), nil
}

// FindRuntimeType finds the self-typed runtime type objects. An empty result
// fails the attach with ErrUnresolvableRuntime.
func (s *Session) FindRuntimeType(ctx context.Context) (domain.CandidateSet, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return s.findRuntimeType()
}

func (s *Session) findRuntimeType() (domain.CandidateSet, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	hits := s.resolver.FindRuntimeTypeSelf(snap)
	if hits.Len() == 0 {
		return nil, domain.ErrUnresolvableRuntime.WithDetails("no self-typed " + pyruntime.MetaTypeName + " object")
	}
	if s.machine.State() == locator.RegionsCaptured {
		if err := s.machine.Advance(locator.RuntimeTypeResolved); err != nil {
			return nil, err
		}
	}
	return hits, nil
}

// ResolveBuiltinTypes resolves the built-in type objects.
func (s *Session) ResolveBuiltinTypes(ctx context.Context) (*pyruntime.Builtins, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return s.resolveBuiltins()
}

func (s *Session) resolveBuiltins() (*pyruntime.Builtins, error) {
	if err := s.machine.Require(locator.RuntimeTypeResolved); err != nil {
		return nil, err
	}
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	b, err := s.resolver.ResolveBuiltinTypes(snap, pyruntime.BuiltinNames)
	if err != nil {
		return nil, err
	}
	if s.machine.State() == locator.RuntimeTypeResolved {
		if err := s.machine.Advance(locator.BuiltinsResolved); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// LocateRootType looks for the application root type. An empty name uses the
// configured root type. Zero or several matches return an empty set and no
// error.
func (s *Session) LocateRootType(ctx context.Context, name string) (domain.CandidateSet, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return s.locateRootType(name)
}

func (s *Session) locateRootType(name string) (domain.CandidateSet, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = s.cfg.App.RootType
	}
	hits, err := s.locator.LocateRootType(snap, s.resolver.RuntimeTypes(), name)
	if err != nil {
		return nil, err
	}
	s.rootName = ""
	if hits.Len() == 1 {
		s.rootName = name
	}
	return hits, nil
}

// LocateRootInstances finds every instance of the resolved root type in the
// current snapshot.
func (s *Session) LocateRootInstances(ctx context.Context) (domain.CandidateSet, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return s.locateRootInstances()
}

func (s *Session) locateRootInstances() (domain.CandidateSet, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	if err := s.machine.Require(locator.RootTypeResolved); err != nil {
		return nil, err
	}
	rootType, _ := s.locator.RootType()
	return s.locator.LocateRootInstances(snap, rootType)
}

// Attach runs the whole pipeline: capture, runtime type, built-ins, root
// type and root instances. A root type that cannot be identified is not an
// error; the report then stops at BuiltinsResolved.
func (s *Session) Attach(ctx context.Context) (*Report, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	log := logger.L(s.scope(ctx))
	log.Info("attach started")

	if s.machine.State() == locator.Uninitialized {
		if _, err := s.capture(); err != nil {
			return nil, fmt.Errorf("capture: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.findRuntimeType(); err != nil {
		return nil, fmt.Errorf("runtime type: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.resolveBuiltins(); err != nil {
		return nil, fmt.Errorf("builtin types: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits, err := s.locateRootType("")
	if err != nil {
		return nil, fmt.Errorf("root type: %w", err)
	}
	if hits.Len() == 1 {
		if _, err := s.locateRootInstances(); err != nil {
			return nil, fmt.Errorf("root instances: %w", err)
		}
	}

	r := s.report()
	log.Info("attach finished",
		"state", r.State,
		"builtins", len(r.Builtins),
		"instances", len(r.Instances))
	return r, nil
}

// Stats reports the size of the current snapshot.
func (s *Session) Stats() (int, uint64) {
	return s.cache.Stats()
}

// UserTypes returns the user-defined types named so far, ordered by address.
func (s *Session) UserTypes() []domain.TypeName {
	return s.types.Names()
}
