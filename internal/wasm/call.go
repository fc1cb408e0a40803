package wasm

import (
	"context"
	"errors"
	"fmt"

	abi "github.com/lipawealth/lipa-engine/api/wasm"
	"github.com/lipawealth/lipa-engine/internal/boundary"
	"go.uber.org/zap"
)

// Greet calls the module's greet export.
//
// The name is written into a module buffer the host owns for the call; the
// returned greeting is copied out and its buffer released. Text that is not
// valid UTF-8 fails with *boundary.EncodingError.
func (i *Instance) Greet(ctx context.Context, name string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	ptr, length, err := i.memory.WriteString(ctx, name)
	if err != nil {
		return "", err
	}
	defer i.release(ctx, ptr, length)

	results, err := i.call(ctx, abi.ExportGreet, uint64(ptr), uint64(length))
	if err != nil {
		return "", err
	}

	outPtr, outLen, err := boundary.DecodeResult(results[0])
	if err != nil {
		return "", err
	}
	// The result buffer is ours now.
	defer i.release(ctx, outPtr, outLen)

	return i.memory.ReadString(outPtr, outLen)
}

// ComputePhysicsStep calls the module's compute_physics_step export.
func (i *Instance) ComputePhysicsStep(ctx context.Context, dt float32) (float32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	results, err := i.call(ctx, abi.ExportComputePhysicsStep, boundary.EncodeF32(dt))
	if err != nil {
		return 0, err
	}
	return boundary.DecodeF32(results[0]), nil
}

// Announce calls the module's announce export, which alerts the host with
// the greeting for name.
func (i *Instance) Announce(ctx context.Context, name string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	ptr, length, err := i.memory.WriteString(ctx, name)
	if err != nil {
		return err
	}
	defer i.release(ctx, ptr, length)

	results, err := i.call(ctx, abi.ExportAnnounce, uint64(ptr), uint64(length))
	if err != nil {
		return err
	}
	return boundary.ErrorFromCode(boundary.ErrorCode(uint32(results[0])))
}

// call invokes an export and frees buffers the module handed to host
// imports during the call.
func (i *Instance) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, ok := i.exports[name]
	if !ok {
		return nil, &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
	}

	callCtx, pending := withPendingReleases(ctx)
	results, err := fn.Call(callCtx, params...)

	for _, buf := range pending.drain() {
		i.release(ctx, buf[0], buf[1])
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Duration: i.timeout}
		}
		return nil, &ExecutionError{FunctionName: name, Err: err}
	}
	if len(results) == 0 {
		return nil, &ExecutionError{FunctionName: name, Err: fmt.Errorf("no results")}
	}
	return results, nil
}

func (i *Instance) release(ctx context.Context, ptr, length uint32) {
	if err := i.memory.Deallocate(ctx, ptr, length); err != nil {
		i.logger.Warn("Failed to release module buffer",
			zap.Uint32("ptr", ptr),
			zap.Uint32("length", length),
			zap.Error(err),
		)
	}
}

func (i *Instance) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, i.timeout)
}
