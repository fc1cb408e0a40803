//go:build wasip1

// Command engine is the lipa-engine WebAssembly module.
//
// Build it as a reactor so the host can call exports after _initialize:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o build/engine.wasm ./cmd/engine
package main

import (
	"context"

	"github.com/lipawealth/lipa-engine/internal/boundary"
	"github.com/lipawealth/lipa-engine/internal/guest"
	"github.com/lipawealth/lipa-engine/internal/ops"
)

func main() {}

//go:wasmexport greet
func greet(ptr, length uint32) uint64 {
	return boundary.ExportText(context.Background(), guest.Memory, guest.Heap, ops.Greet, ptr, length)
}

//go:wasmexport compute_physics_step
func computePhysicsStep(dt float32) float32 {
	return ops.ComputePhysicsStep(dt)
}

//go:wasmexport announce
func announce(ptr, length uint32) uint32 {
	return boundary.ExportTextCall(context.Background(), guest.Memory, func(ctx context.Context, name string) error {
		return ops.Announce(ctx, guest.HostAlert{}, name)
	}, ptr, length)
}
