package uitree

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/infra/workpool"
	"github.com/yndnr/heapsight-go/internal/pyruntime"
	"github.com/yndnr/heapsight-go/internal/telemetry/metric"
	"github.com/yndnr/heapsight-go/pkg/cmap"
)

// Default walk bounds.
const (
	DefaultMaxDepth = 32
	DefaultMaxNodes = 100000
)

// Reader walks UI trees over one snapshot. Complete subtrees are memoized
// per address and shared between walks, so a Reader must not outlive the
// snapshot its object reader decodes.
type Reader struct {
	objects  *pyruntime.Reader
	keys     map[string]struct{}
	maxDepth int
	maxNodes int
	pool     *workpool.Pool
	metrics  *metric.Registry
	logger   *slog.Logger

	memo *cmap.Map[domain.Addr, *Node]
}

// Option configures a Reader.
type Option func(*Reader)

// WithKeys replaces the keys of interest.
func WithKeys(keys []string) Option {
	return func(r *Reader) {
		if len(keys) > 0 {
			r.keys = keySet(keys)
		}
	}
}

// WithMaxDepth bounds the walk depth.
func WithMaxDepth(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithMaxNodes bounds the number of nodes per walk.
func WithMaxNodes(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxNodes = n
		}
	}
}

// WithPool sets the pool ReadAll runs on.
func WithPool(p *workpool.Pool) Option {
	return func(r *Reader) {
		r.pool = p
	}
}

// WithMetrics records visited node counts.
func WithMetrics(m *metric.Registry) Option {
	return func(r *Reader) {
		r.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

func keySet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// New creates a tree reader decoding through objects.
func New(objects *pyruntime.Reader, opts ...Option) *Reader {
	r := &Reader{
		objects:  objects,
		keys:     keySet(DefaultKeys),
		maxDepth: DefaultMaxDepth,
		maxNodes: DefaultMaxNodes,
		logger:   slog.Default(),
		memo:     cmap.New[domain.Addr, *Node](cmap.Uint64Hasher[domain.Addr]()),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = workpool.New(workpool.DefaultWorkers)
	}
	return r
}

// Read walks the tree rooted at root.
func (r *Reader) Read(root domain.Addr) (*Node, error) {
	if _, ok := r.objects.ResolveTypeName(root); !ok {
		return nil, domain.ErrUnexpectedType.WithDetails(root.String() + ": root type unresolved")
	}

	w := &walk{
		r:          r,
		visited:    make(map[domain.Addr]struct{}),
		containers: make(map[domain.Addr]struct{}),
	}
	n, _ := w.node(root, 0)

	r.metrics.AddTreeNodes(w.nodes)
	r.logger.Debug("tree read",
		"root", root,
		"visited", w.nodes,
		"nodes", n.Count(),
		"truncated", w.truncated)
	return n, nil
}

// ReadAll walks several roots concurrently. Roots that cannot be read are
// left out; the first error is returned alongside the trees that were read.
func (r *Reader) ReadAll(roots []domain.Addr) ([]*Node, error) {
	slots := make([]*Node, len(roots))
	err := r.pool.Run(len(roots), func(i int) error {
		n, err := r.Read(roots[i])
		if err != nil {
			return fmt.Errorf("read tree at %s: %w", roots[i], err)
		}
		slots[i] = n
		return nil
	})

	out := make([]*Node, 0, len(slots))
	for _, n := range slots {
		if n != nil {
			out = append(out, n)
		}
	}
	return out, err
}

// walk is the state of one Read.
type walk struct {
	r          *Reader
	visited    map[domain.Addr]struct{}
	containers map[domain.Addr]struct{}
	nodes      int
	truncated  bool
}

// node decodes the instance at addr. The boolean reports whether the
// subtree is complete; only complete subtrees are memoized.
func (w *walk) node(addr domain.Addr, depth int) (*Node, bool) {
	if n, ok := w.r.memo.Get(addr); ok {
		return n, true
	}

	typ, _ := w.r.objects.ResolveTypeName(addr)
	n := &Node{Addr: addr, Type: typ}

	if _, seen := w.visited[addr]; seen || depth > w.r.maxDepth || w.nodes >= w.r.maxNodes {
		n.Truncated = true
		w.truncated = true
		return n, false
	}
	w.visited[addr] = struct{}{}
	w.nodes++

	dict, err := w.r.objects.ReadInstanceDict(addr)
	if err != nil {
		return w.store(n), true
	}
	entries, err := w.r.objects.DecodeStrDict(dict)
	if err != nil {
		w.r.logger.Debug("instance dict unreadable", "addr", addr, "error", err)
		return w.store(n), true
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		if _, ok := w.r.keys[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	complete := true
	for _, k := range keys {
		v := entries[k]
		if k == ChildrenKey {
			kids, ok := w.children(v, depth)
			n.Children = kids
			complete = complete && ok
			continue
		}
		val, ok := w.value(v, depth)
		if n.Fields == nil {
			n.Fields = make(map[string]any, len(keys))
		}
		n.Fields[k] = val
		complete = complete && ok
	}

	if !complete {
		return n, false
	}
	return w.store(n), true
}

func (w *walk) store(n *Node) *Node {
	stored, _ := w.r.memo.GetOrSet(n.Addr, n)
	return stored
}

// children follows a children container to its child list. A bare list or
// tuple is accepted too.
func (w *walk) children(addr domain.Addr, depth int) ([]*Node, bool) {
	if addr.IsNull() {
		return nil, true
	}

	list := addr
	switch name, _ := w.r.objects.ResolveTypeName(addr); name {
	case "list", "tuple":
	case "NoneType":
		return nil, true
	default:
		dict, err := w.r.objects.ReadInstanceDict(addr)
		if err != nil {
			return nil, true
		}
		entries, err := w.r.objects.DecodeStrDict(dict)
		if err != nil {
			return nil, true
		}
		inner, ok := entries[ChildrenListKey]
		if !ok {
			return nil, true
		}
		list = inner
	}

	items, err := w.r.objects.ReadSequence(list)
	if err != nil {
		return nil, true
	}

	complete := true
	kids := make([]*Node, 0, len(items))
	for _, item := range items {
		if item.IsNull() {
			continue
		}
		kid, ok := w.node(item, depth+1)
		kids = append(kids, kid)
		complete = complete && ok
	}
	return kids, complete
}

// value decodes a field value by its type name.
func (w *walk) value(addr domain.Addr, depth int) (any, bool) {
	if addr.IsNull() {
		return nil, true
	}
	name, ok := w.r.objects.ResolveTypeName(addr)
	if !ok {
		return Ref{Addr: addr}, true
	}

	var (
		v   any
		err error
	)
	switch name {
	case "NoneType":
		return nil, true
	case "str", "unicode":
		v, err = w.r.objects.ReadText(addr)
	case "int":
		v, err = w.r.objects.ReadInt(addr)
	case "bool":
		v, err = w.r.objects.ReadBool(addr)
	case "float":
		v, err = w.r.objects.ReadFloat(addr)
	case "long":
		v, err = w.r.objects.ReadLong(addr)
	case "list", "tuple":
		return w.sequence(addr, name, depth)
	case "dict":
		return w.dict(addr, depth)
	default:
		return w.node(addr, depth+1)
	}
	if err != nil {
		return Ref{Addr: addr, Type: name}, true
	}
	return v, true
}

// enter marks a list, tuple or dict as decoded by this walk. A container is
// decoded at most once per walk and counts against the node bound.
func (w *walk) enter(addr domain.Addr, depth int) bool {
	if _, seen := w.containers[addr]; seen || depth+1 > w.r.maxDepth || w.nodes >= w.r.maxNodes {
		w.truncated = true
		return false
	}
	w.containers[addr] = struct{}{}
	w.nodes++
	return true
}

func (w *walk) sequence(addr domain.Addr, name string, depth int) (any, bool) {
	if !w.enter(addr, depth) {
		return Ref{Addr: addr, Type: name}, false
	}
	items, err := w.r.objects.ReadSequence(addr)
	if err != nil {
		return Ref{Addr: addr, Type: name}, true
	}

	complete := true
	out := make([]any, len(items))
	for i, item := range items {
		v, ok := w.value(item, depth+1)
		out[i] = v
		complete = complete && ok
	}
	return out, complete
}

func (w *walk) dict(addr domain.Addr, depth int) (any, bool) {
	if !w.enter(addr, depth) {
		return Ref{Addr: addr, Type: "dict"}, false
	}
	entries, err := w.r.objects.DecodeStrDict(addr)
	if err != nil {
		return Ref{Addr: addr, Type: "dict"}, true
	}

	complete := true
	out := make(map[string]any, len(entries))
	for k, v := range entries {
		val, ok := w.value(v, depth+1)
		out[k] = val
		complete = complete && ok
	}
	return out, complete
}
