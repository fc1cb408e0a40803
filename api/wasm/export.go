//go:build wasm

package wasm

// This file documents the Wasm export interface of the engine module.
// The engine implements these functions using //go:wasmexport.
//
// NOTE: uint32 is used for pointers and lengths because WebAssembly uses a 32-bit
// linear memory model. Text results are packed into a uint64 with the pointer in
// the high 32 bits and the length in the low 32 bits.
// See: https://github.com/golang/go/issues/65199

// Exported functions:
//
// //go:wasmexport greet
// func greet(ptr, length uint32) uint64
//
// //go:wasmexport compute_physics_step
// func computePhysicsStep(dt float32) float32
//
// //go:wasmexport announce
// func announce(ptr, length uint32) uint32
//
// //go:wasmexport allocate
// func allocate(size uint32) uint32
//
// //go:wasmexport deallocate
// func deallocate(ptr, size uint32)
//
// Imported functions:
//
// //go:wasmimport env alert
// func alert(ptr, length uint32)
