// Package synthetic builds in-memory heap images laid out like a 64-bit
// CPython 2.7 process. An Image implements procmem.Source, so tests run the
// real capture, scan and decode paths against it.
package synthetic

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/yndnr/heapsight-go/internal/core/domain"
)

// Image is a set of synthetic regions.
type Image struct {
	mu      sync.Mutex
	regions []*Region
	flaky   map[domain.Addr]int
	reads   atomic.Int64
}

// NewImage creates an empty image.
func NewImage() *Image {
	return &Image{flaky: make(map[domain.Addr]int)}
}

// Region is one synthetic region with a bump allocator.
type Region struct {
	Base    domain.Addr
	Content []byte
	Prot    domain.Protection
	next    uint64
}

// AddRegion adds a committed, readable and writable region.
func (im *Image) AddRegion(base domain.Addr, size uint64) *Region {
	return im.AddRegionWithProt(base, size, domain.ProtCommitted|domain.ProtRead|domain.ProtWrite)
}

// AddRegionWithProt adds a region with the given protection.
func (im *Image) AddRegionWithProt(base domain.Addr, size uint64, prot domain.Protection) *Region {
	im.mu.Lock()
	defer im.mu.Unlock()

	r := &Region{Base: base, Content: make([]byte, size), Prot: prot}
	im.regions = append(im.regions, r)
	sort.Slice(im.regions, func(i, j int) bool { return im.regions[i].Base < im.regions[j].Base })
	return r
}

// FailReads makes the next n reads of the region at base return short.
func (im *Image) FailReads(base domain.Addr, n int) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.flaky[base] = n
}

// Reads returns the number of ReadAt calls served.
func (im *Image) Reads() int64 {
	return im.reads.Load()
}

// Regions implements procmem.Source.
func (im *Image) Regions() ([]domain.RegionInfo, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	out := make([]domain.RegionInfo, len(im.regions))
	for i, r := range im.regions {
		out[i] = domain.RegionInfo{Base: r.Base, Size: uint64(len(r.Content)), Protection: r.Prot}
	}
	return out, nil
}

// ReadAt implements procmem.Source.
func (im *Image) ReadAt(addr domain.Addr, buf []byte) (int, error) {
	im.reads.Add(1)

	im.mu.Lock()
	defer im.mu.Unlock()

	for _, r := range im.regions {
		if addr < r.Base || uint64(addr-r.Base) >= uint64(len(r.Content)) {
			continue
		}
		if n := im.flaky[r.Base]; n > 0 && addr == r.Base {
			im.flaky[r.Base] = n - 1
			half := copy(buf[:len(buf)/2], r.Content)
			return half, io.ErrUnexpectedEOF
		}
		n := copy(buf, r.Content[addr-r.Base:])
		if n < len(buf) {
			return n, io.ErrUnexpectedEOF
		}
		return n, nil
	}
	return 0, domain.ErrAddressNotMapped.WithDetails(addr.String())
}

// Addr returns the address at offset off.
func (r *Region) Addr(off uint64) domain.Addr {
	return r.Base + domain.Addr(off)
}

// End returns the first address past the region.
func (r *Region) End() domain.Addr {
	return r.Base + domain.Addr(len(r.Content))
}

func (r *Region) offset(addr domain.Addr, n int) uint64 {
	if addr < r.Base || uint64(addr-r.Base)+uint64(n) > uint64(len(r.Content)) {
		panic(fmt.Sprintf("synthetic: write of %d bytes at %s outside region %s-%s", n, addr, r.Base, r.End()))
	}
	return uint64(addr - r.Base)
}

// PutWord stores a little-endian word at addr.
func (r *Region) PutWord(addr domain.Addr, v uint64) {
	off := r.offset(addr, 8)
	binary.LittleEndian.PutUint64(r.Content[off:], v)
}

// PutAddr stores a pointer at addr.
func (r *Region) PutAddr(addr, v domain.Addr) {
	r.PutWord(addr, uint64(v))
}

// PutUint32 stores a little-endian 32-bit value at addr.
func (r *Region) PutUint32(addr domain.Addr, v uint32) {
	off := r.offset(addr, 4)
	binary.LittleEndian.PutUint32(r.Content[off:], v)
}

// PutBytes copies b to addr.
func (r *Region) PutBytes(addr domain.Addr, b []byte) {
	off := r.offset(addr, len(b))
	copy(r.Content[off:], b)
}

// Alloc reserves size bytes, 16-byte aligned, and returns their address.
func (r *Region) Alloc(size uint64) domain.Addr {
	start := (r.next + 15) &^ 15
	if start+size > uint64(len(r.Content)) {
		panic(fmt.Sprintf("synthetic: region %s full", r.Base))
	}
	r.next = start + size
	return r.Addr(start)
}

// CString allocates s followed by a NUL.
func (r *Region) CString(s string) domain.Addr {
	a := r.Alloc(uint64(len(s)) + 1)
	r.PutBytes(a, append([]byte(s), 0))
	return a
}
