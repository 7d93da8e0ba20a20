package domain

// ObjectHeader is the common prefix of every foreign object.
type ObjectHeader struct {
	Addr     Addr   `json:"addr"`
	RefCount uint64 `json:"ref_count"`
	Type     Addr   `json:"type"`
	// Size is ob_size. It is only meaningful for variable-size objects.
	Size int64 `json:"size"`
}

// DictHeader holds the fields of a dict object needed to walk its table.
type DictHeader struct {
	Addr  Addr   `json:"addr"`
	Used  uint64 `json:"used"`
	Mask  uint64 `json:"mask"`
	Table Addr   `json:"table"`
}

// SlotCount returns mask+1 and whether it is a usable, positive count no
// larger than max.
func (h DictHeader) SlotCount(max uint64) (uint64, bool) {
	n := h.Mask + 1
	if int64(n) <= 0 || n > max {
		return 0, false
	}
	return n, true
}

// DictEntry is one occupied slot. Key and Value are not dereferenced.
type DictEntry struct {
	Key   Addr `json:"key"`
	Value Addr `json:"value"`
}

// TypeName pairs a type object with its name.
type TypeName struct {
	Addr Addr   `json:"addr"`
	Name string `json:"name"`
}
