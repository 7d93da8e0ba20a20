package locator

import (
	"fmt"
	"sync"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/telemetry/metric"
)

// State is a step of the attach pipeline.
type State int

const (
	Uninitialized State = iota
	RegionsCaptured
	RuntimeTypeResolved
	BuiltinsResolved
	RootTypeResolved
	RootInstancesResolved
)

var stateNames = [...]string{
	Uninitialized:         "uninitialized",
	RegionsCaptured:       "regions_captured",
	RuntimeTypeResolved:   "runtime_type_resolved",
	BuiltinsResolved:      "builtins_resolved",
	RootTypeResolved:      "root_type_resolved",
	RootInstancesResolved: "root_instances_resolved",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Machine tracks the attach state. It only moves forward one step at a
// time; repeating the current step is allowed so a phase can be re-run
// after a refresh.
type Machine struct {
	mu      sync.RWMutex
	state   State
	metrics *metric.Registry
}

// NewMachine creates a machine in Uninitialized.
func NewMachine(m *metric.Registry) *Machine {
	mc := &Machine{metrics: m}
	m.SetLocatorState(int(Uninitialized))
	return mc
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Advance moves to the given state. Anything but the current state or the
// next one fails with ErrInvalidTransition.
func (m *Machine) Advance(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to != m.state && to != m.state+1 {
		return domain.ErrInvalidTransition.WithDetails(fmt.Sprintf("%s -> %s", m.state, to))
	}
	m.state = to
	m.metrics.SetLocatorState(int(to))
	return nil
}

// Require fails with ErrInvalidTransition unless the machine has reached min.
func (m *Machine) Require(min State) error {
	if s := m.State(); s < min {
		return domain.ErrInvalidTransition.WithDetails(fmt.Sprintf("%s requires %s", s, min))
	}
	return nil
}

// Retreat lowers the state to to. A machine already at or below to is left
// unchanged.
func (m *Machine) Retreat(to State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state > to {
		m.state = to
		m.metrics.SetLocatorState(int(to))
	}
}

// Reset returns the machine to Uninitialized.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Uninitialized
	m.metrics.SetLocatorState(int(Uninitialized))
}
