package session

import (
	"time"

	"github.com/yndnr/heapsight-go/internal/core/domain"
)

// Report summarizes what an attach has resolved so far.
type Report struct {
	SessionID     string                `json:"session_id" yaml:"session_id"`
	State         string                `json:"state" yaml:"state"`
	SnapshotID    string                `json:"snapshot_id,omitempty" yaml:"snapshot_id,omitempty"`
	CapturedAt    time.Time             `json:"captured_at,omitempty" yaml:"captured_at,omitempty"`
	Regions       int                   `json:"regions" yaml:"regions"`
	Bytes         uint64                `json:"bytes" yaml:"bytes"`
	RuntimeTypes  []domain.Addr         `json:"runtime_types" yaml:"runtime_types"`
	Builtins      []domain.TypeName     `json:"builtins" yaml:"builtins"`
	BuiltinWindow *domain.AddressWindow `json:"builtin_window,omitempty" yaml:"builtin_window,omitempty"`
	RootType      *domain.TypeName      `json:"root_type,omitempty" yaml:"root_type,omitempty"`
	AppWindow     *domain.AddressWindow `json:"app_window,omitempty" yaml:"app_window,omitempty"`
	Instances     []domain.Addr         `json:"instances" yaml:"instances"`
}

// Report returns the current attach summary.
func (s *Session) Report() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report()
}

func (s *Session) report() *Report {
	r := &Report{
		SessionID:    s.ID(),
		State:        s.machine.State().String(),
		RuntimeTypes: s.resolver.RuntimeTypes().Sorted(),
		Builtins:     s.resolver.Builtins().Entries(),
		Instances:    s.locator.Instances().Sorted(),
	}
	if snap := s.cache.Snapshot(); snap != nil {
		r.SnapshotID = snap.ID().String()
		r.CapturedAt = snap.CapturedAt()
		r.Regions, r.Bytes = snap.Stats()
	}
	if w, ok := s.resolver.Window(); ok {
		r.BuiltinWindow = &w
	}
	if addr, ok := s.locator.RootType(); ok {
		r.RootType = &domain.TypeName{Addr: addr, Name: s.rootName}
	}
	if w, ok := s.locator.Window(); ok {
		r.AppWindow = &w
	}
	return r
}
