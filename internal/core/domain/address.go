// Package domain defines the core domain models for heapsight.
package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Addr is an address in the foreign process.
type Addr uint64

// String formats the address as 0x-prefixed upper-case hex.
func (a Addr) String() string {
	return fmt.Sprintf("0x%X", uint64(a))
}

// IsNull reports whether the address is zero.
func (a Addr) IsNull() bool {
	return a == 0
}

// Add returns a+off without wrapping; ok is false on overflow.
func (a Addr) Add(off uint64) (Addr, bool) {
	sum := uint64(a) + off
	if sum < uint64(a) {
		return 0, false
	}
	return Addr(sum), true
}

// ParseAddr parses a decimal or 0x-prefixed hexadecimal address.
func ParseAddr(s string) (Addr, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, ErrInvalidArgument.WithDetails("address " + strconv.Quote(s)).WithCause(err)
	}
	return Addr(v), nil
}

// MarshalText implements encoding.TextMarshaler so addresses render as hex in
// JSON and YAML output.
func (a Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Addr) UnmarshalText(b []byte) error {
	v, err := ParseAddr(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// CandidateSet is the deduplicated result of a heuristic scan.
// Iteration order carries no meaning.
type CandidateSet map[Addr]struct{}

// NewCandidateSet creates a set holding addrs.
func NewCandidateSet(addrs ...Addr) CandidateSet {
	s := make(CandidateSet, len(addrs))
	for _, a := range addrs {
		s[a] = struct{}{}
	}
	return s
}

// Add inserts an address.
func (s CandidateSet) Add(a Addr) {
	s[a] = struct{}{}
}

// Contains reports whether a is in the set. A nil set contains nothing.
func (s CandidateSet) Contains(a Addr) bool {
	_, ok := s[a]
	return ok
}

// Len returns the number of addresses.
func (s CandidateSet) Len() int {
	return len(s)
}

// Union adds every address of other to s.
func (s CandidateSet) Union(other CandidateSet) {
	for a := range other {
		s[a] = struct{}{}
	}
}

// Single returns the only member when the set has exactly one.
func (s CandidateSet) Single() (Addr, bool) {
	if len(s) != 1 {
		return 0, false
	}
	for a := range s {
		return a, true
	}
	return 0, false
}

// Sorted returns the members in ascending order.
func (s CandidateSet) Sorted() []Addr {
	out := make([]Addr, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Equal reports whether both sets hold the same addresses.
func (s CandidateSet) Equal(other CandidateSet) bool {
	if len(s) != len(other) {
		return false
	}
	for a := range s {
		if !other.Contains(a) {
			return false
		}
	}
	return true
}

// Window masks used to derive scan windows from a confirmed address.
const (
	// BuiltinWindowMask keeps built-in type objects within one 16 MiB block.
	BuiltinWindowMask uint64 = 0xFFFFFFFFFF000000

	// AppWindowMask spans a 16 GiB block around the application root type.
	AppWindowMask uint64 = 0xFFFFFFFC00000000
)

// AddressWindow is the half-open range [Min, Max).
type AddressWindow struct {
	Min Addr `json:"min"`
	Max Addr `json:"max"`
}

// DeriveWindow masks addr down to the block selected by mask. The window is
// [addr&mask, addr&mask + ^mask).
func DeriveWindow(addr Addr, mask uint64) AddressWindow {
	lo := uint64(addr) & mask
	return AddressWindow{Min: Addr(lo), Max: Addr(lo + ^mask)}
}

// Contains reports whether a lies inside the window.
func (w AddressWindow) Contains(a Addr) bool {
	return w.Min <= a && a < w.Max
}

// Overlaps reports whether [base, base+size) intersects the window.
func (w AddressWindow) Overlaps(base Addr, size uint64) bool {
	end := uint64(base) + size
	return base < w.Max && end > uint64(w.Min)
}

func (w AddressWindow) String() string {
	return w.Min.String() + " - " + w.Max.String()
}

// WindowLatch holds an AddressWindow that is set at most once.
// The first Set wins; later calls are ignored.
type WindowLatch struct {
	mu     sync.RWMutex
	window AddressWindow
	set    bool
}

// Set stores w if no window has been stored yet and reports whether it did.
func (l *WindowLatch) Set(w AddressWindow) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set {
		return false
	}
	l.window = w
	l.set = true
	return true
}

// Get returns the stored window.
func (l *WindowLatch) Get() (AddressWindow, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.window, l.set
}
