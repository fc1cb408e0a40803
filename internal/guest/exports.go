//go:build wasip1

package guest

import (
	"context"
	"runtime"
	"unsafe"
)

// Heap hands out buffers that cross the boundary.
var Heap = newHeap(MaxHeapBytes, CollectEveryBytes, bufferAddr, runtime.GC)

// bufferAddr is the linear memory address of buf's first byte.
func bufferAddr(buf []byte) uint32 {
	//nolint:gosec // G103: addresses fit in 32 bits on wasm32
	return uint32(uintptr(unsafe.Pointer(&buf[0])))
}

//go:wasmexport allocate
func allocate(size uint32) uint32 {
	ptr, err := Heap.Allocate(context.Background(), size)
	if err != nil {
		// Zero is never a valid buffer; the host reports an allocation error.
		return 0
	}
	return ptr
}

//go:wasmexport deallocate
func deallocate(ptr, size uint32) {
	_ = Heap.Deallocate(context.Background(), ptr, size)
}
