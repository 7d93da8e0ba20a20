package synthetic

import (
	"math"
	"unicode/utf16"

	"github.com/yndnr/heapsight-go/internal/core/domain"
)

// BuiltinNames lists the built-in types a Runtime creates, in resolution order.
var BuiltinNames = []string{"str", "float", "dict", "int", "unicode", "long", "list", "tuple", "bool", "set", "NoneType"}

// Heap writes runtime objects into a region using a layout.
type Heap struct {
	*Region
	Layout domain.Layout
}

// NewHeap wraps r with the default layout.
func NewHeap(r *Region) *Heap {
	return &Heap{Region: r, Layout: domain.DefaultLayout()}
}

// header writes refcount 1 and the type pointer.
func (h *Heap) header(obj, typ domain.Addr) {
	h.PutWord(obj, 1)
	h.PutAddr(obj+domain.Addr(h.Layout.TypeOffset), typ)
}

// TypeObject allocates a type object named name whose type is meta. A zero
// meta makes the object its own type.
func (h *Heap) TypeObject(meta domain.Addr, name string) domain.Addr {
	obj := h.Alloc(h.Layout.TypeNameOffset + 8)
	if meta == 0 {
		meta = obj
	}
	h.header(obj, meta)
	h.PutAddr(obj+domain.Addr(h.Layout.TypeNameOffset), h.CString(name))
	return obj
}

// Object allocates a bare object of the given size with a header.
func (h *Heap) Object(typ domain.Addr, size uint64) domain.Addr {
	obj := h.Alloc(size)
	h.header(obj, typ)
	return obj
}

// Str allocates a str object with inline data.
func (h *Heap) Str(typ domain.Addr, s string) domain.Addr {
	obj := h.Object(typ, h.Layout.StrDataOffset+uint64(len(s))+1)
	h.PutWord(obj+domain.Addr(h.Layout.SizeOffset), uint64(len(s)))
	h.PutBytes(obj+domain.Addr(h.Layout.StrDataOffset), append([]byte(s), 0))
	return obj
}

// Unicode allocates a unicode object with a UCS-2 buffer.
func (h *Heap) Unicode(typ domain.Addr, s string) domain.Addr {
	units := utf16.Encode([]rune(s))
	buf := h.Alloc(uint64(len(units)+1) * 2)
	for i, u := range units {
		b := []byte{byte(u), byte(u >> 8)}
		h.PutBytes(buf+domain.Addr(i*2), b)
	}

	obj := h.Object(typ, h.Layout.UnicodeDataOffset+8)
	h.PutWord(obj+domain.Addr(h.Layout.SizeOffset), uint64(len(units)))
	h.PutAddr(obj+domain.Addr(h.Layout.UnicodeDataOffset), buf)
	return obj
}

// Int allocates an int object.
func (h *Heap) Int(typ domain.Addr, v int64) domain.Addr {
	obj := h.Object(typ, h.Layout.ValueOffset+8)
	h.PutWord(obj+domain.Addr(h.Layout.ValueOffset), uint64(v))
	return obj
}

// Bool allocates a bool object.
func (h *Heap) Bool(typ domain.Addr, v bool) domain.Addr {
	var n int64
	if v {
		n = 1
	}
	return h.Int(typ, n)
}

// Float allocates a float object.
func (h *Heap) Float(typ domain.Addr, v float64) domain.Addr {
	obj := h.Object(typ, h.Layout.ValueOffset+8)
	h.PutWord(obj+domain.Addr(h.Layout.ValueOffset), math.Float64bits(v))
	return obj
}

// Long allocates a long object using 30-bit digits.
func (h *Heap) Long(typ domain.Addr, v int64) domain.Addr {
	neg := v < 0
	mag := uint64(v)
	if neg {
		mag = uint64(-v)
	}
	var digits []uint32
	for mag > 0 {
		digits = append(digits, uint32(mag&(1<<30-1)))
		mag >>= 30
	}

	obj := h.Object(typ, h.Layout.LongDigitsOffset+uint64(len(digits))*4+4)
	size := int64(len(digits))
	if neg {
		size = -size
	}
	h.PutWord(obj+domain.Addr(h.Layout.SizeOffset), uint64(size))
	for i, d := range digits {
		h.PutUint32(obj+domain.Addr(h.Layout.LongDigitsOffset)+domain.Addr(i*4), d)
	}
	return obj
}

// List allocates a list object with a separate item array.
func (h *Heap) List(typ domain.Addr, items ...domain.Addr) domain.Addr {
	arr := h.Alloc(uint64(len(items)+1) * 8)
	for i, it := range items {
		h.PutAddr(arr+domain.Addr(i*8), it)
	}
	obj := h.Object(typ, h.Layout.ListItemsOffset+16)
	h.PutWord(obj+domain.Addr(h.Layout.SizeOffset), uint64(len(items)))
	h.PutAddr(obj+domain.Addr(h.Layout.ListItemsOffset), arr)
	return obj
}

// Tuple allocates a tuple object with inline items.
func (h *Heap) Tuple(typ domain.Addr, items ...domain.Addr) domain.Addr {
	obj := h.Object(typ, h.Layout.TupleItemsOffset+uint64(len(items)+1)*8)
	h.PutWord(obj+domain.Addr(h.Layout.SizeOffset), uint64(len(items)))
	for i, it := range items {
		h.PutAddr(obj+domain.Addr(h.Layout.TupleItemsOffset)+domain.Addr(i*8), it)
	}
	return obj
}

// Entry is one dict slot's key and value.
type Entry struct {
	Key, Value domain.Addr
}

// Dict allocates a dict with a table of slots entries (a power of two) and
// fills the first len(entries) slots. Remaining slots have a null key.
func (h *Heap) Dict(typ domain.Addr, slots int, entries ...Entry) domain.Addr {
	table := h.Alloc(uint64(slots) * h.Layout.DictSlotSize)
	for i, e := range entries {
		slot := table + domain.Addr(uint64(i)*h.Layout.DictSlotSize)
		h.PutWord(slot, uint64(i+1))
		h.PutAddr(slot+8, e.Key)
		h.PutAddr(slot+16, e.Value)
	}
	return h.DictHeader(typ, uint64(len(entries)), uint64(slots-1), table)
}

// DictHeader allocates a dict header with explicit fields, for corrupt-dict
// tests.
func (h *Heap) DictHeader(typ domain.Addr, used, mask uint64, table domain.Addr) domain.Addr {
	obj := h.Object(typ, h.Layout.DictTableOffset+8)
	h.PutWord(obj+domain.Addr(h.Layout.SizeOffset), used)
	h.PutWord(obj+domain.Addr(h.Layout.DictUsedOffset), used)
	h.PutWord(obj+domain.Addr(h.Layout.DictMaskOffset), mask)
	h.PutAddr(obj+domain.Addr(h.Layout.DictTableOffset), table)
	return obj
}

// Instance allocates a class instance whose __dict__ is dict.
func (h *Heap) Instance(typ, dict domain.Addr) domain.Addr {
	obj := h.Object(typ, h.Layout.InstanceDictOffset+16)
	h.PutAddr(obj+domain.Addr(h.Layout.InstanceDictOffset), dict)
	return obj
}

// Runtime is a synthetic interpreter: the self-typed meta type and one type
// object per built-in, all in one region.
type Runtime struct {
	*Heap
	Meta  domain.Addr
	Types map[string]domain.Addr
}

// NewRuntime creates the meta type and the built-ins in r.
func NewRuntime(r *Region) *Runtime {
	h := NewHeap(r)
	rt := &Runtime{Heap: h, Types: make(map[string]domain.Addr, len(BuiltinNames))}
	rt.Meta = h.TypeObject(0, "type")
	for _, name := range BuiltinNames {
		rt.Types[name] = h.TypeObject(rt.Meta, name)
	}
	return rt
}

// UserType creates a type object named name of the runtime's meta type.
func (rt *Runtime) UserType(h *Heap, name string) domain.Addr {
	return h.TypeObject(rt.Meta, name)
}

// S allocates a str in h.
func (rt *Runtime) S(h *Heap, s string) domain.Addr {
	return h.Str(rt.Types["str"], s)
}
