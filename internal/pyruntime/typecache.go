package pyruntime

import (
	"sort"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/pkg/cmap"
)

// TypeCache remembers the names of user-defined type objects. Entries are
// append-only: the first name stored for an address is kept.
type TypeCache struct {
	m *cmap.Map[domain.Addr, string]
}

// NewTypeCache creates an empty cache.
func NewTypeCache() *TypeCache {
	return &TypeCache{
		m: cmap.New[domain.Addr, string](cmap.Uint64Hasher[domain.Addr]()),
	}
}

// Get returns the cached name of typ.
func (c *TypeCache) Get(typ domain.Addr) (string, bool) {
	return c.m.Get(typ)
}

// Put stores name for typ unless a name is already cached and returns the
// name that is cached afterwards.
func (c *TypeCache) Put(typ domain.Addr, name string) string {
	v, _ := c.m.GetOrSet(typ, name)
	return v
}

// Len returns the number of cached names.
func (c *TypeCache) Len() int {
	return c.m.Count()
}

// Names returns the cached names ordered by type address.
func (c *TypeCache) Names() []domain.TypeName {
	snap := c.m.Snapshot()
	out := make([]domain.TypeName, 0, len(snap))
	for addr, name := range snap {
		out = append(out, domain.TypeName{Addr: addr, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Clear forgets every cached name.
func (c *TypeCache) Clear() {
	c.m.Clear()
}
