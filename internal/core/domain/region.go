// Package domain defines the core domain models for heapsight.
package domain

import "fmt"

// Protection describes the state of an enumerated region.
type Protection uint8

const (
	// ProtCommitted marks memory currently backed by storage.
	ProtCommitted Protection = 1 << iota
	// ProtRead marks memory readable by the owner.
	ProtRead
	// ProtWrite marks writable memory.
	ProtWrite
	// ProtExec marks executable memory.
	ProtExec
	// ProtGuard marks guard pages; touching them faults.
	ProtGuard
)

// Has reports whether all bits of flag are set.
func (p Protection) Has(flag Protection) bool {
	return p&flag == flag
}

func (p Protection) String() string {
	b := []byte("----")
	if p.Has(ProtRead) {
		b[0] = 'r'
	}
	if p.Has(ProtWrite) {
		b[1] = 'w'
	}
	if p.Has(ProtExec) {
		b[2] = 'x'
	}
	if p.Has(ProtGuard) {
		b[3] = 'g'
	}
	return string(b)
}

// RegionInfo is a region as reported by the OS, before its content is read.
type RegionInfo struct {
	Base       Addr
	Size       uint64
	Protection Protection
}

// Capturable reports whether the region is committed, readable and not a guard.
func (r RegionInfo) Capturable() bool {
	return r.Size > 0 &&
		r.Protection.Has(ProtCommitted|ProtRead) &&
		!r.Protection.Has(ProtGuard)
}

func (r RegionInfo) String() string {
	return fmt.Sprintf("region{base:%s, size:0x%x, prot:%s}", r.Base, r.Size, r.Protection)
}

// MemoryRegion is the captured content of one region. It is never modified
// after capture.
type MemoryRegion struct {
	Base    Addr
	Content []byte
}

// Size returns the captured length.
func (r MemoryRegion) Size() uint64 {
	return uint64(len(r.Content))
}

// End returns the first address past the region.
func (r MemoryRegion) End() Addr {
	return r.Base + Addr(len(r.Content))
}

// Contains reports whether addr lies inside the region.
func (r MemoryRegion) Contains(addr Addr) bool {
	return r.Base <= addr && uint64(addr-r.Base) < r.Size()
}

// Slice returns [addr, addr+length) when addr lies inside the region and the
// whole range fits. There are no partial results.
func (r MemoryRegion) Slice(addr Addr, length uint64) ([]byte, bool) {
	if !r.Contains(addr) {
		return nil, false
	}
	off := uint64(addr - r.Base)
	if length > r.Size()-off {
		return nil, false
	}
	return r.Content[off : off+length : off+length], true
}

func (r MemoryRegion) String() string {
	return fmt.Sprintf("region{base:%s, size:0x%x}", r.Base, r.Size())
}
