package regions

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/heapsight-go/internal/core/domain"
)

// Snapshot is an immutable, sorted set of captured regions.
// A nil *Snapshot behaves as an empty one.
type Snapshot struct {
	id         ulid.ULID
	capturedAt time.Time
	regions    []domain.MemoryRegion
	bytes      uint64
}

// NewSnapshot sorts regions by base and rejects overlaps. Empty regions are
// discarded. The slice is owned by the snapshot afterwards.
func NewSnapshot(regions []domain.MemoryRegion) (*Snapshot, error) {
	kept := regions[:0]
	for _, r := range regions {
		if len(r.Content) > 0 {
			kept = append(kept, r)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Base < kept[j].Base })

	var total uint64
	for i, r := range kept {
		if i > 0 && kept[i-1].End() > r.Base {
			return nil, fmt.Errorf("regions %s and %s overlap", kept[i-1], r)
		}
		total += r.Size()
	}

	return &Snapshot{
		id:         ulid.Make(),
		capturedAt: time.Now(),
		regions:    kept,
		bytes:      total,
	}, nil
}

// ID identifies the snapshot.
func (s *Snapshot) ID() ulid.ULID {
	if s == nil {
		return ulid.ULID{}
	}
	return s.id
}

// CapturedAt is the time the snapshot was built.
func (s *Snapshot) CapturedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.capturedAt
}

// Regions returns the regions in ascending base order. The result must not
// be modified.
func (s *Snapshot) Regions() []domain.MemoryRegion {
	if s == nil {
		return nil
	}
	return s.regions
}

// Len returns the number of regions.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.regions)
}

// Bytes returns the total captured size.
func (s *Snapshot) Bytes() uint64 {
	if s == nil {
		return 0
	}
	return s.bytes
}

// Stats implements metric.SnapshotStats.
func (s *Snapshot) Stats() (int, uint64) {
	return s.Len(), s.Bytes()
}

// Find returns the region containing addr.
func (s *Snapshot) Find(addr domain.Addr) (domain.MemoryRegion, bool) {
	if s == nil || len(s.regions) == 0 {
		return domain.MemoryRegion{}, false
	}
	// Greatest base <= addr.
	i := sort.Search(len(s.regions), func(i int) bool {
		return s.regions[i].Base > addr
	}) - 1
	if i < 0 || !s.regions[i].Contains(addr) {
		return domain.MemoryRegion{}, false
	}
	return s.regions[i], true
}

// Lookup returns the length bytes at addr. The range must lie entirely in
// one region; there are no partial results.
func (s *Snapshot) Lookup(addr domain.Addr, length uint64) ([]byte, bool) {
	r, ok := s.Find(addr)
	if !ok {
		return nil, false
	}
	return r.Slice(addr, length)
}

// ReadCString reads maxLength bytes at addr through Lookup and returns the
// bytes before the first NUL, or all of them when there is none.
func (s *Snapshot) ReadCString(addr domain.Addr, maxLength uint64) (string, bool) {
	b, ok := s.Lookup(addr, maxLength)
	if !ok {
		return "", false
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), true
		}
	}
	return string(b), true
}

// Memory is read access to captured memory. *Snapshot implements it;
// decoders accept it so tests can observe every access.
type Memory interface {
	Lookup(addr domain.Addr, length uint64) ([]byte, bool)
	ReadCString(addr domain.Addr, maxLength uint64) (string, bool)
}

// ReadWord reads the little-endian 64-bit word at addr.
func ReadWord(m Memory, addr domain.Addr) (uint64, bool) {
	b, ok := m.Lookup(addr, 8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// ReadAddr reads a pointer-sized word at addr.
func ReadAddr(m Memory, addr domain.Addr) (domain.Addr, bool) {
	v, ok := ReadWord(m, addr)
	return domain.Addr(v), ok
}

// Overlapping returns the regions that intersect w, whole.
func (s *Snapshot) Overlapping(w domain.AddressWindow) []domain.MemoryRegion {
	if s == nil {
		return nil
	}
	var out []domain.MemoryRegion
	for _, r := range s.regions {
		if w.Overlaps(r.Base, r.Size()) {
			out = append(out, r)
		}
	}
	return out
}
