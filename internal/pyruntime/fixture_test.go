package pyruntime

import (
	"sync"
	"testing"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/infra/workpool"
	"github.com/yndnr/heapsight-go/internal/memory/regions"
	"github.com/yndnr/heapsight-go/internal/testutil/synthetic"
)

const (
	runtimeBase = domain.Addr(0x7F0000100000)
	heapBase    = domain.Addr(0x7F0000200000)
	farBase     = domain.Addr(0x7F0010000000)
)

type world struct {
	im   *synthetic.Image
	rt   *synthetic.Runtime
	heap *synthetic.Heap
}

func newWorld() *world {
	im := synthetic.NewImage()
	return &world{
		im:   im,
		rt:   synthetic.NewRuntime(im.AddRegion(runtimeBase, 0x4000)),
		heap: synthetic.NewHeap(im.AddRegion(heapBase, 0x10000)),
	}
}

func (w *world) capture(t *testing.T) *regions.Snapshot {
	t.Helper()
	snap, err := regions.New(w.im, workpool.New(2)).Capture()
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	return snap
}

func (w *world) reader(t *testing.T, mem regions.Memory) *Reader {
	t.Helper()
	if mem == nil {
		mem = w.capture(t)
	}
	return NewReader(mem, NewBuiltins(w.rt.Types), NewTypeCache(), WithPool(workpool.New(4)))
}

func (w *world) typ(name string) domain.Addr {
	return w.rt.Types[name]
}

// recordingMemory records every range read through it.
type recordingMemory struct {
	regions.Memory

	mu    sync.Mutex
	reads []domain.AddressWindow
}

func (m *recordingMemory) Lookup(addr domain.Addr, length uint64) ([]byte, bool) {
	m.mu.Lock()
	m.reads = append(m.reads, domain.AddressWindow{Min: addr, Max: addr + domain.Addr(length)})
	m.mu.Unlock()
	return m.Memory.Lookup(addr, length)
}

func (m *recordingMemory) touched(a domain.Addr) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reads {
		if r.Contains(a) {
			return true
		}
	}
	return false
}
