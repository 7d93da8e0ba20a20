package scanner

import (
	"encoding/binary"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/memory/regions"
)

// TypeFilter tests the type pointer of a candidate header at self.
type TypeFilter func(self, typePtr domain.Addr) bool

// NameFilter tests the name read through the candidate's name pointer.
type NameFilter func(name string) bool

// SelfTyped accepts headers whose type pointer is their own address.
func SelfTyped() TypeFilter {
	return func(self, typePtr domain.Addr) bool {
		return self == typePtr
	}
}

// TypeIs accepts headers of exactly one type.
func TypeIs(typ domain.Addr) TypeFilter {
	return func(_, typePtr domain.Addr) bool {
		return typePtr == typ
	}
}

// TypeIn accepts headers whose type is in set.
func TypeIn(set domain.CandidateSet) TypeFilter {
	return func(_, typePtr domain.Addr) bool {
		return set.Contains(typePtr)
	}
}

// NameIs accepts an exact name.
func NameIs(name string) NameFilter {
	return func(got string) bool {
		return got == name
	}
}

// NameIn accepts any name in names.
func NameIn(names map[string]struct{}) NameFilter {
	return func(got string) bool {
		_, ok := names[got]
		return ok
	}
}

// HeaderMatch treats every word-aligned offset whose header window fits in
// the region as an object header. The type word goes to tf; when nf is set,
// the name word is dereferenced through mem (readLen bytes) and the string
// goes to nf.
func HeaderMatch(mem regions.Memory, layout domain.Layout, tf TypeFilter, nf NameFilter, readLen uint64) MatchTest {
	word := layout.WordSize
	span := layout.HeaderWords() * word

	return func(r domain.MemoryRegion) []domain.Addr {
		var hits []domain.Addr
		content := r.Content
		size := uint64(len(content))
		if size < span {
			return nil
		}

		for off := uint64(0); off+span <= size; off += word {
			self := r.Base + domain.Addr(off)
			typePtr := domain.Addr(binary.LittleEndian.Uint64(content[off+layout.TypeOffset:]))
			if !tf(self, typePtr) {
				continue
			}
			if nf != nil {
				namePtr := domain.Addr(binary.LittleEndian.Uint64(content[off+layout.TypeNameOffset:]))
				name, ok := mem.ReadCString(namePtr, readLen)
				if !ok || !nf(name) {
					continue
				}
			}
			hits = append(hits, self)
		}
		return hits
	}
}
