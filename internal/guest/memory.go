//go:build wasip1

package guest

import (
	"unsafe"

	"github.com/lipawealth/lipa-engine/internal/boundary"
)

// Memory is the module's linear memory.
var Memory boundary.LinearMemory = linearMemory{}

type linearMemory struct{}

// Read returns a view of length bytes at offset.
func (linearMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if offset == 0 {
		return nil, false
	}
	//nolint:gosec // G103: linear memory offsets are addresses on wasm32
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(offset))), byteCount), true
}

// Write copies v to offset.
func (linearMemory) Write(offset uint32, v []byte) bool {
	if offset == 0 {
		return false
	}
	//nolint:gosec // G103: linear memory offsets are addresses on wasm32
	dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(offset))), len(v))
	copy(dst, v)
	return true
}
