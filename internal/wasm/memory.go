package wasm

import (
	"context"
	"fmt"

	abi "github.com/lipawealth/lipa-engine/api/wasm"
	"github.com/lipawealth/lipa-engine/internal/boundary"
	"github.com/tetratelabs/wazero/api"
)

// Memory provides safe memory operations for Wasm module interaction.
//
// Wasm modules have their own isolated memory space that is separate from Go's memory.
// Text crosses it through buffers the module allocates with its allocate export;
// whoever receives a buffer releases it with deallocate. Memory implements
// boundary.Allocator on top of those exports so the boundary rules apply on
// the host side as well.
type Memory struct {
	moduleName string
	mem        api.Memory
	allocFn    api.Function
	deallocFn  api.Function
}

// NewMemory creates a memory helper.
func NewMemory(module api.Module) *Memory {
	return &Memory{
		moduleName: module.Name(),
		mem:        module.Memory(),
		allocFn:    module.ExportedFunction(abi.ExportAllocate),
		deallocFn:  module.ExportedFunction(abi.ExportDeallocate),
	}
}

// ReadString reads UTF-8 text from Wasm memory. The result is a copy.
func (m *Memory) ReadString(ptr uint32, length uint32) (string, error) {
	if m.mem == nil {
		return "", &MemoryAccessError{Operation: "read", Address: ptr, Length: length, Err: fmt.Errorf("module has no memory")}
	}
	return boundary.ReadText(m.mem, ptr, length)
}

// ReadBytes copies raw bytes out of Wasm memory.
func (m *Memory) ReadBytes(ptr uint32, length uint32) ([]byte, bool) {
	if m.mem == nil {
		return nil, false
	}
	view, ok := m.mem.Read(ptr, length)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, true
}

// WriteString allocates a buffer inside the module and writes s into it.
// Returns pointer and length; the caller owns the buffer.
func (m *Memory) WriteString(ctx context.Context, s string) (uint32, uint32, error) {
	if m.mem == nil {
		return 0, 0, &MemoryAccessError{Operation: "write", Length: uint32(len(s)), Err: fmt.Errorf("module has no memory")}
	}
	return boundary.WriteText(ctx, m.mem, m, s)
}

// WriteBytes allocates a buffer inside the module and writes data into it
// without validating it as text.
func (m *Memory) WriteBytes(ctx context.Context, data []byte) (uint32, uint32, error) {
	if len(data) == 0 {
		return 0, 0, nil
	}
	if m.mem == nil {
		return 0, 0, &MemoryAccessError{Operation: "write", Length: uint32(len(data)), Err: fmt.Errorf("module has no memory")}
	}

	length := uint32(len(data))
	ptr, err := m.Allocate(ctx, length)
	if err != nil {
		return 0, 0, err
	}
	if !m.mem.Write(ptr, data) {
		_ = m.Deallocate(ctx, ptr, length)
		return 0, 0, &MemoryAccessError{Operation: "write", Address: ptr, Length: length, Err: fmt.Errorf("out of range")}
	}
	return ptr, length, nil
}

// Allocate calls the module's allocate export.
func (m *Memory) Allocate(ctx context.Context, size uint32) (uint32, error) {
	if m.allocFn == nil {
		return 0, &FunctionNotFoundError{ModuleName: m.moduleName, FunctionName: abi.ExportAllocate}
	}
	results, err := m.allocFn.Call(ctx, uint64(size))
	if err != nil {
		return 0, &ExecutionError{FunctionName: abi.ExportAllocate, Err: err}
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("allocate returned no results")
	}
	ptr := api.DecodeU32(results[0])
	if ptr == 0 {
		return 0, &boundary.AllocationError{Size: size}
	}
	return ptr, nil
}

// Deallocate calls the module's deallocate export. Zero-length buffers
// were never allocated and are ignored.
func (m *Memory) Deallocate(ctx context.Context, ptr, size uint32) error {
	if ptr == 0 || size == 0 {
		return nil
	}
	if m.deallocFn == nil {
		return &FunctionNotFoundError{ModuleName: m.moduleName, FunctionName: abi.ExportDeallocate}
	}
	if _, err := m.deallocFn.Call(ctx, uint64(ptr), uint64(size)); err != nil {
		return &ExecutionError{FunctionName: abi.ExportDeallocate, Err: err}
	}
	return nil
}
