// Package guest is the module side of the boundary when compiled for wasip1.
// It exposes the module's own linear memory, a pinned heap the host can
// allocate from, and the host's alert import.
package guest

import (
	"context"
	"fmt"
	"sync"
)

// MaxHeapBytes caps the bytes that may be outstanding across the boundary.
// It is a guest-side ceiling only: the host's memory limit (wasm.memory_pages,
// 16MB by default) usually stops memory.grow first, which traps the call.
const MaxHeapBytes = 64 * 1024 * 1024

// CollectEveryBytes is how many released bytes trigger a collection.
// The Go GC does not get to finish a cycle between exported calls of a
// reactor, so garbage from boundary copies is reclaimed explicitly.
const CollectEveryBytes = 1 << 20

// heap pins buffers so the Go GC keeps them alive while they are outside
// Go's view: host-written inputs and results the host has not released yet.
// Each entry is owned by the host, which frees it through deallocate.
type heap struct {
	sync.Mutex
	pinned map[uint32][]byte
	total  int

	limit        int
	collectEvery int
	released     int // bytes released since the last collection

	addr    func([]byte) uint32
	collect func()
}

// newHeap returns a heap allowing limit outstanding bytes. addr maps a
// buffer to its linear memory address; collect runs after every
// collectEvery released bytes.
func newHeap(limit, collectEvery int, addr func([]byte) uint32, collect func()) *heap {
	return &heap{
		pinned:       make(map[uint32][]byte),
		limit:        limit,
		collectEvery: collectEvery,
		addr:         addr,
		collect:      collect,
	}
}

func (h *heap) Allocate(_ context.Context, size uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}

	h.Lock()
	defer h.Unlock()

	if h.total+int(size) > h.limit {
		return 0, fmt.Errorf("heap limit exceeded (requested %d, outstanding %d, limit %d)",
			size, h.total, h.limit)
	}

	buf := make([]byte, size)
	ptr := h.addr(buf)
	h.pinned[ptr] = buf
	h.total += int(size)
	return ptr, nil
}

// Deallocate releases ptr. Unknown pointers are ignored so a double free
// cannot corrupt the accounting.
func (h *heap) Deallocate(_ context.Context, ptr, _ uint32) error {
	if h.release(ptr) {
		h.collect()
	}
	return nil
}

// release unpins ptr and reports whether a collection is due.
func (h *heap) release(ptr uint32) bool {
	h.Lock()
	defer h.Unlock()

	buf, ok := h.pinned[ptr]
	if !ok {
		return false
	}
	delete(h.pinned, ptr)
	h.total -= len(buf)

	h.released += len(buf)
	if h.collectEvery <= 0 || h.released < h.collectEvery {
		return false
	}
	h.released = 0
	return true
}

// Outstanding reports the number of pinned buffers and their total size.
func (h *heap) Outstanding() (count, bytes int) {
	h.Lock()
	defer h.Unlock()
	return len(h.pinned), h.total
}
