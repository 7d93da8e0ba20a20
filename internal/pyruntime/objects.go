package pyruntime

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/infra/workpool"
	"github.com/yndnr/heapsight-go/internal/memory/regions"
	"github.com/yndnr/heapsight-go/internal/telemetry/metric"
)

// Read limits.
const (
	// MaxTypeNameLen is the number of bytes read for a type name.
	MaxTypeNameLen = 255
	// MaxStringLen bounds str and unicode lengths.
	MaxStringLen = 1 << 20
	// MaxSequenceLen bounds list and tuple lengths.
	MaxSequenceLen = 100000
)

// Dict decode results used as the metric label.
const (
	dictOK       = "ok"
	dictCorrupt  = "corrupt"
	dictUnmapped = "unmapped"
)

// Reader decodes objects from captured memory.
type Reader struct {
	mem      regions.Memory
	layout   domain.Layout
	builtins *Builtins
	types    *TypeCache
	pool     *workpool.Pool
	metrics  *metric.Registry
	logger   *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderLayout sets the object layout.
func WithReaderLayout(l domain.Layout) ReaderOption {
	return func(r *Reader) {
		r.layout = l
	}
}

// WithPool sets the pool used by TypeNames.
func WithPool(p *workpool.Pool) ReaderOption {
	return func(r *Reader) {
		r.pool = p
	}
}

// WithReaderMetrics records decode metrics.
func WithReaderMetrics(m *metric.Registry) ReaderOption {
	return func(r *Reader) {
		r.metrics = m
	}
}

// WithReaderLogger sets the logger.
func WithReaderLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

// NewReader creates a reader over mem. builtins may be nil before
// resolution; types is the user-defined name cache shared across readers of
// the same attach and may be nil for a private cache.
func NewReader(mem regions.Memory, builtins *Builtins, types *TypeCache, opts ...ReaderOption) *Reader {
	if types == nil {
		types = NewTypeCache()
	}
	r := &Reader{
		mem:      mem,
		layout:   domain.DefaultLayout(),
		builtins: builtins,
		types:    types,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = workpool.New(workpool.DefaultWorkers)
	}
	return r
}

// Layout returns the reader's layout.
func (r *Reader) Layout() domain.Layout {
	return r.layout
}

func (r *Reader) at(addr domain.Addr, off uint64) domain.Addr {
	return addr + domain.Addr(off)
}

func (r *Reader) bytes(addr domain.Addr, n uint64) ([]byte, error) {
	b, ok := r.mem.Lookup(addr, n)
	if !ok {
		return nil, domain.ErrAddressNotMapped.WithDetails(fmt.Sprintf("%s+%d", addr, n))
	}
	return b, nil
}

func (r *Reader) word(addr domain.Addr) (uint64, error) {
	b, err := r.bytes(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) pointer(addr domain.Addr) (domain.Addr, error) {
	v, err := r.word(addr)
	return domain.Addr(v), err
}

// Header reads the object header at addr. Size is only meaningful for
// variable-length objects.
func (r *Reader) Header(addr domain.Addr) (domain.ObjectHeader, error) {
	b, err := r.bytes(addr, max(r.layout.TypeOffset, r.layout.SizeOffset)+8)
	if err != nil {
		return domain.ObjectHeader{}, err
	}
	return domain.ObjectHeader{
		Addr:     addr,
		RefCount: binary.LittleEndian.Uint64(b),
		Type:     domain.Addr(binary.LittleEndian.Uint64(b[r.layout.TypeOffset:])),
		Size:     int64(binary.LittleEndian.Uint64(b[r.layout.SizeOffset:])),
	}, nil
}

// TypeOf reads the type pointer of the object at addr.
func (r *Reader) TypeOf(addr domain.Addr) (domain.Addr, error) {
	return r.pointer(r.at(addr, r.layout.TypeOffset))
}

// ResolveTypeName returns the type name of the object at addr. Built-ins are
// answered from the resolved map; other types from the cache, or by reading
// the type object's name, which is then cached. The name must be printable
// ASCII; anything else is garbage and leaves the object unresolved.
func (r *Reader) ResolveTypeName(addr domain.Addr) (string, bool) {
	typ, err := r.TypeOf(addr)
	if err != nil || typ.IsNull() {
		return "", false
	}
	return r.TypeObjectName(typ)
}

// TypeObjectName returns the name of the type object at typ.
func (r *Reader) TypeObjectName(typ domain.Addr) (string, bool) {
	if name, ok := r.builtins.Name(typ); ok {
		return name, true
	}
	if name, ok := r.types.Get(typ); ok {
		r.metrics.IncTypeCacheHit()
		return name, true
	}
	r.metrics.IncTypeCacheMiss()

	namePtr, err := r.pointer(r.at(typ, r.layout.TypeNameOffset))
	if err != nil {
		return "", false
	}
	name, ok := r.mem.ReadCString(namePtr, MaxTypeNameLen)
	if !ok || !validTypeName(name) {
		return "", false
	}
	return r.types.Put(typ, name), true
}

func validTypeName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}

// TypeNames resolves the type names of many objects concurrently. Objects
// whose type cannot be resolved are left out.
func (r *Reader) TypeNames(addrs []domain.Addr) map[domain.Addr]string {
	slots := make([]string, len(addrs))
	_ = r.pool.Run(len(addrs), func(i int) error {
		slots[i], _ = r.ResolveTypeName(addrs[i])
		return nil
	})

	out := make(map[domain.Addr]string, len(addrs))
	for i, name := range slots {
		if name != "" {
			out[addrs[i]] = name
		}
	}
	return out
}

// DictHeader reads the dict fields of the object at addr.
func (r *Reader) DictHeader(addr domain.Addr) (domain.DictHeader, error) {
	used, err := r.word(r.at(addr, r.layout.DictUsedOffset))
	if err != nil {
		return domain.DictHeader{}, err
	}
	mask, err := r.word(r.at(addr, r.layout.DictMaskOffset))
	if err != nil {
		return domain.DictHeader{}, err
	}
	table, err := r.pointer(r.at(addr, r.layout.DictTableOffset))
	if err != nil {
		return domain.DictHeader{}, err
	}
	return domain.DictHeader{Addr: addr, Used: used, Mask: mask, Table: table}, nil
}

// DecodeDict returns the occupied slots of the dict at addr in table order.
// A slot count that wraps or exceeds the layout's ceiling is rejected as
// ErrCorruptStructure before the table is read. When a key occurs twice the
// first slot wins. Keys and values are not dereferenced.
func (r *Reader) DecodeDict(addr domain.Addr) ([]domain.DictEntry, error) {
	entries, err := r.decodeDict(addr)
	switch {
	case err == nil:
		r.metrics.RecordDictDecode(dictOK)
	case domain.IsDomainError(err, domain.ErrCorruptStructure.Code):
		r.metrics.RecordDictDecode(dictCorrupt)
	default:
		r.metrics.RecordDictDecode(dictUnmapped)
	}
	return entries, err
}

func (r *Reader) decodeDict(addr domain.Addr) ([]domain.DictEntry, error) {
	mask, err := r.word(r.at(addr, r.layout.DictMaskOffset))
	if err != nil {
		return nil, err
	}
	slots, ok := domain.DictHeader{Mask: mask}.SlotCount(r.layout.DictMaxSlots)
	if !ok {
		return nil, domain.ErrCorruptStructure.WithDetails(
			fmt.Sprintf("dict %s: mask 0x%X", addr, mask))
	}
	h, err := r.DictHeader(addr)
	if err != nil {
		return nil, err
	}

	slotSize := r.layout.DictSlotSize
	word := r.layout.WordSize
	table, err := r.bytes(h.Table, slots*slotSize)
	if err != nil {
		return nil, err
	}

	hint := min(h.Used, slots)
	seen := make(map[domain.Addr]struct{}, hint)
	entries := make([]domain.DictEntry, 0, hint)
	for i := uint64(0); i < slots; i++ {
		slot := table[i*slotSize:]
		key := domain.Addr(binary.LittleEndian.Uint64(slot[word:]))
		if key.IsNull() {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, domain.DictEntry{
			Key:   key,
			Value: domain.Addr(binary.LittleEndian.Uint64(slot[2*word:])),
		})
	}
	return entries, nil
}

// DecodeStrDict decodes a dict and reads its keys as strings. Entries whose
// key is not a str or unicode object are skipped. The first entry for a
// given string wins.
func (r *Reader) DecodeStrDict(addr domain.Addr) (map[string]domain.Addr, error) {
	entries, err := r.DecodeDict(addr)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Addr, len(entries))
	for _, e := range entries {
		key, err := r.ReadText(e.Key)
		if err != nil {
			continue
		}
		if _, ok := out[key]; !ok {
			out[key] = e.Value
		}
	}
	return out, nil
}

// expect fails with ErrUnexpectedType unless the object at addr is the named
// built-in. Before built-ins are resolved nothing is checked.
func (r *Reader) expect(addr domain.Addr, names ...string) (string, error) {
	if r.builtins.Len() == 0 {
		return "", nil
	}
	typ, err := r.TypeOf(addr)
	if err != nil {
		return "", err
	}
	got, ok := r.builtins.Name(typ)
	if ok {
		for _, n := range names {
			if got == n {
				return got, nil
			}
		}
	}
	return "", domain.ErrUnexpectedType.WithDetails(
		fmt.Sprintf("%s: want %v, type %s", addr, names, typ))
}

func (r *Reader) length(addr domain.Addr, limit int64) (uint64, error) {
	h, err := r.Header(addr)
	if err != nil {
		return 0, err
	}
	if h.Size < 0 || h.Size > limit {
		return 0, domain.ErrCorruptStructure.WithDetails(fmt.Sprintf("%s: length %d", addr, h.Size))
	}
	return uint64(h.Size), nil
}

// ReadStr reads a byte string. Bytes are returned as stored.
func (r *Reader) ReadStr(addr domain.Addr) (string, error) {
	if _, err := r.expect(addr, "str"); err != nil {
		return "", err
	}
	n, err := r.length(addr, MaxStringLen)
	if err != nil {
		return "", err
	}
	b, err := r.bytes(r.at(addr, r.layout.StrDataOffset), n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadUnicode reads a unicode object and returns it as UTF-8. Unpaired
// surrogates and invalid code points become U+FFFD.
func (r *Reader) ReadUnicode(addr domain.Addr) (string, error) {
	if _, err := r.expect(addr, "unicode"); err != nil {
		return "", err
	}
	n, err := r.length(addr, MaxStringLen)
	if err != nil {
		return "", err
	}
	buf, err := r.pointer(r.at(addr, r.layout.UnicodeDataOffset))
	if err != nil {
		return "", err
	}
	width := r.layout.UnicodeWidth
	b, err := r.bytes(buf, n*width)
	if err != nil {
		return "", err
	}

	if width == 2 {
		units := make([]uint16, n)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(b[i*2:])
		}
		return string(utf16.Decode(units)), nil
	}

	runes := make([]rune, n)
	for i := range runes {
		c := rune(binary.LittleEndian.Uint32(b[i*4:]))
		if !utf8.ValidRune(c) {
			c = utf8.RuneError
		}
		runes[i] = c
	}
	return string(runes), nil
}

// ReadText reads a str or unicode object.
func (r *Reader) ReadText(addr domain.Addr) (string, error) {
	name, ok := r.ResolveTypeName(addr)
	if !ok {
		return "", domain.ErrUnexpectedType.WithDetails(addr.String() + ": unresolved type")
	}
	switch name {
	case "str":
		return r.ReadStr(addr)
	case "unicode":
		return r.ReadUnicode(addr)
	default:
		return "", domain.ErrUnexpectedType.WithDetails(addr.String() + ": " + name)
	}
}

// ReadInt reads an int object.
func (r *Reader) ReadInt(addr domain.Addr) (int64, error) {
	if _, err := r.expect(addr, "int", "bool"); err != nil {
		return 0, err
	}
	return r.readIntValue(addr)
}

func (r *Reader) readIntValue(addr domain.Addr) (int64, error) {
	b, err := r.bytes(r.at(addr, r.layout.ValueOffset), r.layout.IntWidth)
	if err != nil {
		return 0, err
	}
	if r.layout.IntWidth == 4 {
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// ReadBool reads a bool object.
func (r *Reader) ReadBool(addr domain.Addr) (bool, error) {
	if _, err := r.expect(addr, "bool"); err != nil {
		return false, err
	}
	v, err := r.readIntValue(addr)
	return v != 0, err
}

// ReadFloat reads a float object.
func (r *Reader) ReadFloat(addr domain.Addr) (float64, error) {
	if _, err := r.expect(addr, "float"); err != nil {
		return 0, err
	}
	v, err := r.word(r.at(addr, r.layout.ValueOffset))
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadLong reads a long object whose value fits in an int64.
func (r *Reader) ReadLong(addr domain.Addr) (int64, error) {
	if _, err := r.expect(addr, "long"); err != nil {
		return 0, err
	}
	h, err := r.Header(addr)
	if err != nil {
		return 0, err
	}

	signed := h.Size
	neg := signed < 0
	count := signed
	if neg {
		count = -count
	}
	bits := r.layout.LongDigitBits
	if count < 0 || count > 8 || uint64(count)*bits > 63+bits {
		return 0, domain.ErrCorruptStructure.WithDetails(fmt.Sprintf("%s: long of %d digits", addr, signed))
	}

	digitSize := uint64(4)
	if bits == 15 {
		digitSize = 2
	}
	b, err := r.bytes(r.at(addr, r.layout.LongDigitsOffset), uint64(count)*digitSize)
	if err != nil {
		return 0, err
	}

	var mag uint64
	for i := count - 1; i >= 0; i-- {
		var d uint64
		if digitSize == 4 {
			d = uint64(binary.LittleEndian.Uint32(b[i*4:]))
		} else {
			d = uint64(binary.LittleEndian.Uint16(b[i*2:]))
		}
		if d >= 1<<bits || mag > (math.MaxInt64-d)>>bits {
			return 0, domain.ErrCorruptStructure.WithDetails(addr.String() + ": long out of range")
		}
		mag = mag<<bits | d
	}
	if neg {
		return -int64(mag), nil
	}
	return int64(mag), nil
}

// ReadSequence returns the items of a list or tuple.
func (r *Reader) ReadSequence(addr domain.Addr) ([]domain.Addr, error) {
	kind, err := r.expect(addr, "list", "tuple")
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind, _ = r.ResolveTypeName(addr)
	}

	n, err := r.length(addr, MaxSequenceLen)
	if err != nil {
		return nil, err
	}

	var items domain.Addr
	switch kind {
	case "list":
		if items, err = r.pointer(r.at(addr, r.layout.ListItemsOffset)); err != nil {
			return nil, err
		}
	case "tuple":
		items = r.at(addr, r.layout.TupleItemsOffset)
	default:
		return nil, domain.ErrUnexpectedType.WithDetails(addr.String() + ": not a sequence")
	}
	if n == 0 {
		return nil, nil
	}

	b, err := r.bytes(items, n*r.layout.WordSize)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Addr, n)
	for i := range out {
		out[i] = domain.Addr(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out, nil
}

// ReadInstanceDict returns the __dict__ of a class instance. It fails with
// ErrUnexpectedType when the pointer does not lead to a dict.
func (r *Reader) ReadInstanceDict(addr domain.Addr) (domain.Addr, error) {
	dict, err := r.pointer(r.at(addr, r.layout.InstanceDictOffset))
	if err != nil {
		return 0, err
	}
	if dict.IsNull() {
		return 0, domain.ErrUnexpectedType.WithDetails(addr.String() + ": no instance dict")
	}
	if _, err := r.expect(dict, "dict"); err != nil {
		return 0, err
	}
	return dict, nil
}
