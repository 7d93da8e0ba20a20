package cmap

import (
	"sync"
	"testing"
)

func TestRange(t *testing.T) {
	m := newAddrMap[string]()
	want := map[addr]string{0x10: "a", 0x20: "b", 0x30: "c"}
	for k, v := range want {
		m.GetOrSet(k, v)
	}

	collected := make(map[addr]string)
	m.Range(func(key addr, value string) bool {
		collected[key] = value
		return true
	})

	if len(collected) != len(want) {
		t.Errorf("Range collected %d items, want %d", len(collected), len(want))
	}
	for k, v := range want {
		if collected[k] != v {
			t.Errorf("collected[%#x] = %q, want %q", uint64(k), collected[k], v)
		}
	}
}

func TestRangeEarlyStop(t *testing.T) {
	m := newAddrMap[int]()
	for i := 0; i < 100; i++ {
		m.GetOrSet(addr(i), i)
	}

	count := 0
	m.Range(func(addr, int) bool {
		count++
		return count < 10
	})

	if count != 10 {
		t.Errorf("Range stopped at %d, want 10", count)
	}
}

func TestSnapshot(t *testing.T) {
	m := newAddrMap[int]()
	m.GetOrSet(1, 1)
	m.GetOrSet(2, 2)

	snap := m.Snapshot()
	m.GetOrSet(3, 3)

	if len(snap) != 2 || snap[1] != 1 || snap[2] != 2 {
		t.Errorf("Snapshot() = %v", snap)
	}
}

func TestConcurrentRange(t *testing.T) {
	m := newAddrMap[int]()
	for i := 0; i < 1000; i++ {
		m.GetOrSet(addr(i), i)
	}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			n := 0
			m.Range(func(addr, int) bool {
				n++
				return true
			})
			if n < 1000 {
				t.Errorf("Range saw %d items, want at least 1000", n)
			}
		}()
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.GetOrSet(addr(1000+g*100+i), i)
			}
		}(g)
	}
	wg.Wait()
}
