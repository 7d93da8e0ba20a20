package uitree

import (
	"errors"
	"testing"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/infra/workpool"
	"github.com/yndnr/heapsight-go/internal/memory/regions"
	"github.com/yndnr/heapsight-go/internal/pyruntime"
	"github.com/yndnr/heapsight-go/internal/testutil/synthetic"
)

type kv struct {
	key   string
	value domain.Addr
}

type builder struct {
	im   *synthetic.Image
	rt   *synthetic.Runtime
	heap *synthetic.Heap
}

func newBuilder() *builder {
	im := synthetic.NewImage()
	return &builder{
		im:   im,
		rt:   synthetic.NewRuntime(im.AddRegion(0x7F0000100000, 0x4000)),
		heap: synthetic.NewHeap(im.AddRegion(0x12340000000, 0x20000)),
	}
}

func (b *builder) typ(name string) domain.Addr {
	return b.rt.Types[name]
}

func (b *builder) instance(typ domain.Addr, fields ...kv) domain.Addr {
	entries := make([]synthetic.Entry, len(fields))
	for i, f := range fields {
		entries[i] = synthetic.Entry{Key: b.rt.S(b.heap, f.key), Value: f.value}
	}
	return b.heap.Instance(typ, b.heap.Dict(b.typ("dict"), 32, entries...))
}

func (b *builder) children(kids ...domain.Addr) domain.Addr {
	container := b.rt.UserType(b.heap, "PyChildrenList")
	return b.instance(container, kv{ChildrenListKey, b.heap.List(b.typ("list"), kids...)})
}

func (b *builder) reader(t *testing.T, opts ...Option) *Reader {
	t.Helper()
	snap, err := regions.New(b.im, workpool.New(2)).Capture()
	if err != nil {
		t.Fatal(err)
	}
	objects := pyruntime.NewReader(snap, pyruntime.NewBuiltins(b.rt.Types), pyruntime.NewTypeCache())
	return New(objects, opts...)
}

// tree builds root -> {label, container -> {leaf}}.
type tree struct {
	root, label, container, leaf domain.Addr
}

func (b *builder) tree() tree {
	h := b.heap
	uiRoot := b.rt.UserType(h, "UIRoot")
	label := b.rt.UserType(h, "EveLabelMedium")
	cont := b.rt.UserType(h, "Container")
	color := b.rt.UserType(h, "Color")

	var tr tree
	tr.leaf = b.instance(label,
		kv{"_text", h.Unicode(b.typ("unicode"), "Jita")},
		kv{"_opacity", h.Float(b.typ("float"), 0.5)},
	)
	tr.container = b.instance(cont,
		kv{"_name", b.rt.S(h, "overview")},
		kv{"isExpanded", h.Bool(b.typ("bool"), true)},
		kv{"children", b.children(tr.leaf)},
	)
	tr.label = b.instance(label,
		kv{"_setText", b.rt.S(h, "Undock")},
		kv{"_color", b.instance(color, kv{"_opacity", h.Float(b.typ("float"), 1)})},
		kv{"_hint", h.Object(b.typ("NoneType"), 16)},
	)
	tr.root = b.instance(uiRoot,
		kv{"_name", b.rt.S(h, "root")},
		kv{"_top", h.Int(b.typ("int"), 10)},
		kv{"_lastValue", h.Long(b.typ("long"), 1<<40)},
		kv{"_secret", b.rt.S(h, "hidden")},
		kv{"_sr", h.Dict(b.typ("dict"), 8, synthetic.Entry{Key: b.rt.S(h, "htmlstr"), Value: b.rt.S(h, "<b>hi</b>")})},
		kv{"_display", h.List(b.typ("list"), h.Int(b.typ("int"), 1), h.Bool(b.typ("bool"), false))},
		kv{"children", b.children(tr.label, tr.container)},
	)
	return tr
}

func TestRead_Tree(t *testing.T) {
	b := newBuilder()
	tr := b.tree()
	r := b.reader(t)

	root, err := r.Read(tr.root)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if root.Type != "UIRoot" || root.Addr != tr.root {
		t.Errorf("root = %s %s", root.Type, root.Addr)
	}
	if root.Truncated {
		t.Error("root should not be truncated")
	}

	fields := []struct {
		key  string
		want any
	}{
		{"_name", "root"},
		{"_top", int64(10)},
		{"_lastValue", int64(1 << 40)},
	}
	for _, f := range fields {
		if got := root.Fields[f.key]; got != f.want {
			t.Errorf("Fields[%q] = %#v, want %#v", f.key, got, f.want)
		}
	}
	if _, ok := root.Fields["_secret"]; ok {
		t.Error("keys outside the set of interest must be dropped")
	}
	if _, ok := root.Fields["children"]; ok {
		t.Error("children must not appear as a field")
	}

	sr, ok := root.Fields["_sr"].(map[string]any)
	if !ok || sr["htmlstr"] != "<b>hi</b>" {
		t.Errorf("_sr = %#v", root.Fields["_sr"])
	}
	display, ok := root.Fields["_display"].([]any)
	if !ok || len(display) != 2 || display[0] != int64(1) || display[1] != false {
		t.Errorf("_display = %#v", root.Fields["_display"])
	}

	if len(root.Children) != 2 {
		t.Fatalf("root has %d children, want 2", len(root.Children))
	}
	label, cont := root.Children[0], root.Children[1]
	if label.Addr != tr.label || cont.Addr != tr.container {
		t.Errorf("children out of order: %s, %s", label.Addr, cont.Addr)
	}
	if label.Fields["_setText"] != "Undock" {
		t.Errorf("label text = %#v", label.Fields["_setText"])
	}
	if v, ok := label.Fields["_hint"]; !ok || v != nil {
		t.Errorf("None field = %#v, %v", v, ok)
	}
	color, ok := label.Fields["_color"].(*Node)
	if !ok || color.Type != "Color" || color.Fields["_opacity"] != 1.0 {
		t.Errorf("_color = %#v", label.Fields["_color"])
	}
	if cont.Fields["isExpanded"] != true {
		t.Errorf("isExpanded = %#v", cont.Fields["isExpanded"])
	}

	leaf := root.Find(func(n *Node) bool { return n.Addr == tr.leaf })
	if leaf == nil || leaf.Fields["_text"] != "Jita" || leaf.Fields["_opacity"] != 0.5 {
		t.Errorf("leaf = %#v", leaf)
	}
	if got := root.Count(); got != 4 {
		t.Errorf("Count() = %d, want 4", got)
	}
}

func TestRead_Cycle(t *testing.T) {
	b := newBuilder()
	h := b.heap
	typ := b.rt.UserType(h, "Container")

	// a -> b -> a, wired after both exist.
	aList := h.List(b.typ("list"), 0)
	bList := h.List(b.typ("list"), 0)
	container := b.rt.UserType(h, "PyChildrenList")
	a := b.instance(typ, kv{"children", b.instance(container, kv{ChildrenListKey, aList})})
	bb := b.instance(typ, kv{"children", b.instance(container, kv{ChildrenListKey, bList})})
	setFirstItem(h, aList, bb)
	setFirstItem(h, bList, a)

	root, err := b.reader(t).Read(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(root.Children) != 1 || len(root.Children[0].Children) != 1 {
		t.Fatalf("unexpected shape: %#v", root)
	}
	back := root.Children[0].Children[0]
	if back.Addr != a || !back.Truncated {
		t.Errorf("cycle should end in a truncated node for %s, got %#v", a, back)
	}
}

func TestRead_SelfReferencingContainers(t *testing.T) {
	b := newBuilder()
	h := b.heap

	// list = [list, list]
	list := h.List(b.typ("list"), 0, 0)
	setItems(h, list, list, list)

	// dict = {"a": dict, "b": dict}
	dict := h.Dict(b.typ("dict"), 8,
		synthetic.Entry{Key: b.rt.S(h, "a")},
		synthetic.Entry{Key: b.rt.S(h, "b")},
	)
	setDictValues(h, dict, dict, dict)

	root := b.instance(b.rt.UserType(h, "Container"),
		kv{"_color", list},
		kv{"_sr", dict},
	)

	n, err := b.reader(t).Read(root)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	items, ok := n.Fields["_color"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("_color = %#v", n.Fields["_color"])
	}
	for i, it := range items {
		if it != (Ref{Addr: list, Type: "list"}) {
			t.Errorf("_color[%d] = %#v, want a ref back to the list", i, it)
		}
	}

	entries, ok := n.Fields["_sr"].(map[string]any)
	if !ok || len(entries) != 2 {
		t.Fatalf("_sr = %#v", n.Fields["_sr"])
	}
	for k, v := range entries {
		if v != (Ref{Addr: dict, Type: "dict"}) {
			t.Errorf("_sr[%q] = %#v, want a ref back to the dict", k, v)
		}
	}
}

func TestRead_ContainersCountAgainstNodeBound(t *testing.T) {
	b := newBuilder()
	h := b.heap

	// A chain of distinct lists, each holding the next one twice.
	next := h.List(b.typ("list"))
	for i := 0; i < 10; i++ {
		next = h.List(b.typ("list"), next, next)
	}
	root := b.instance(b.rt.UserType(h, "Container"), kv{"_color", next})

	r := b.reader(t, WithMaxNodes(4))
	n, err := r.Read(root)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	depth := 0
	for v := n.Fields["_color"]; ; depth++ {
		items, ok := v.([]any)
		if !ok {
			if _, isRef := v.(Ref); !isRef {
				t.Fatalf("chain ends in %#v, want a Ref", v)
			}
			break
		}
		v = items[0]
	}
	if depth != 3 {
		t.Errorf("decoded %d nested lists, want 3 (root node plus 3 containers)", depth)
	}
}

func setItems(h *synthetic.Heap, list domain.Addr, items ...domain.Addr) {
	arr, _ := regions.ReadAddr(regionMemory{h.Region}, list+domain.Addr(h.Layout.ListItemsOffset))
	for i, it := range items {
		h.PutAddr(arr+domain.Addr(i*8), it)
	}
}

func setDictValues(h *synthetic.Heap, dict domain.Addr, values ...domain.Addr) {
	table, _ := regions.ReadAddr(regionMemory{h.Region}, dict+domain.Addr(h.Layout.DictTableOffset))
	for i, v := range values {
		slot := table + domain.Addr(uint64(i)*h.Layout.DictSlotSize)
		h.PutAddr(slot+16, v)
	}
}

func setFirstItem(h *synthetic.Heap, list, item domain.Addr) {
	items, _ := regions.ReadAddr(regionMemory{h.Region}, list+domain.Addr(h.Layout.ListItemsOffset))
	h.PutAddr(items, item)
}

// regionMemory reads directly from a synthetic region.
type regionMemory struct {
	r *synthetic.Region
}

func (m regionMemory) Lookup(addr domain.Addr, n uint64) ([]byte, bool) {
	return domain.MemoryRegion{Base: m.r.Base, Content: m.r.Content}.Slice(addr, n)
}

func (m regionMemory) ReadCString(domain.Addr, uint64) (string, bool) {
	return "", false
}

func TestRead_Bounds(t *testing.T) {
	t.Run("depth", func(t *testing.T) {
		b := newBuilder()
		tr := b.tree()

		root, err := b.reader(t, WithMaxDepth(1)).Read(tr.root)
		if err != nil {
			t.Fatal(err)
		}
		cont := root.Children[1]
		if cont.Truncated || len(cont.Children) != 1 || !cont.Children[0].Truncated {
			t.Errorf("depth bound not applied: %#v", cont)
		}
	})

	t.Run("nodes", func(t *testing.T) {
		b := newBuilder()
		tr := b.tree()

		root, err := b.reader(t, WithMaxNodes(2)).Read(tr.root)
		if err != nil {
			t.Fatal(err)
		}
		truncated := 0
		var walk func(n *Node)
		walk = func(n *Node) {
			if n.Truncated {
				truncated++
			}
			for _, c := range n.Children {
				walk(c)
			}
		}
		walk(root)
		if truncated == 0 {
			t.Error("node bound should truncate part of the tree")
		}
	})
}

func TestRead_MemoizesCompleteSubtrees(t *testing.T) {
	b := newBuilder()
	tr := b.tree()
	r := b.reader(t)

	first, err := r.Read(tr.root)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Read(tr.container)
	if err != nil {
		t.Fatal(err)
	}
	if second != first.Children[1] {
		t.Error("complete subtree should be served from the memo")
	}
}

func TestRead_Errors(t *testing.T) {
	b := newBuilder()
	r := b.reader(t)

	if _, err := r.Read(0x10); !errors.Is(err, domain.ErrUnexpectedType) {
		t.Errorf("Read(unmapped) error = %v", err)
	}

	plain := b.heap.Object(b.rt.UserType(b.heap, "Slotted"), 16)
	r = b.reader(t)
	n, err := r.Read(plain)
	if err != nil || n.Type != "Slotted" || len(n.Fields) != 0 {
		t.Errorf("Read(no dict) = %#v, %v", n, err)
	}
}

func TestReadAll(t *testing.T) {
	b := newBuilder()
	tr := b.tree()
	r := b.reader(t, WithPool(workpool.New(4)))

	nodes, err := r.ReadAll([]domain.Addr{tr.root, tr.label, 0x10})
	if err == nil {
		t.Error("ReadAll() should report the unreadable root")
	}
	if len(nodes) != 2 {
		t.Fatalf("ReadAll() returned %d trees, want 2", len(nodes))
	}
}
