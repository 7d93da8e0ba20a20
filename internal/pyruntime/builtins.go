package pyruntime

import (
	"sort"

	"github.com/yndnr/heapsight-go/internal/core/domain"
)

// BuiltinNames are the built-in types an attach must resolve.
var BuiltinNames = []string{"str", "float", "dict", "int", "unicode", "long", "list", "tuple", "bool", "set", "NoneType"}

// Builtins maps built-in type objects to their names. It is immutable once
// returned by the resolver. A nil *Builtins is empty.
type Builtins struct {
	byAddr map[domain.Addr]string
	byName map[string]domain.Addr
}

// NewBuiltins builds the map from name to address.
func NewBuiltins(byName map[string]domain.Addr) *Builtins {
	b := &Builtins{
		byAddr: make(map[domain.Addr]string, len(byName)),
		byName: make(map[string]domain.Addr, len(byName)),
	}
	for name, addr := range byName {
		b.byAddr[addr] = name
		b.byName[name] = addr
	}
	return b
}

// Name returns the built-in name of a type object.
func (b *Builtins) Name(typ domain.Addr) (string, bool) {
	if b == nil {
		return "", false
	}
	name, ok := b.byAddr[typ]
	return name, ok
}

// Addr returns the type object of a built-in.
func (b *Builtins) Addr(name string) (domain.Addr, bool) {
	if b == nil {
		return 0, false
	}
	a, ok := b.byName[name]
	return a, ok
}

// Len returns the number of resolved built-ins.
func (b *Builtins) Len() int {
	if b == nil {
		return 0
	}
	return len(b.byName)
}

// Entries returns the built-ins sorted by name.
func (b *Builtins) Entries() []domain.TypeName {
	if b == nil {
		return nil
	}
	out := make([]domain.TypeName, 0, len(b.byName))
	for name, addr := range b.byName {
		out = append(out, domain.TypeName{Addr: addr, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
