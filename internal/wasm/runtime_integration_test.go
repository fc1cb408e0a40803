package wasm

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	abi "github.com/lipawealth/lipa-engine/api/wasm"
	"github.com/lipawealth/lipa-engine/internal/boundary"
	"github.com/lipawealth/lipa-engine/internal/ops"
	"github.com/lipawealth/lipa-engine/internal/wasmtest"
	"github.com/lipawealth/lipa-engine/pkg/protocol"
	"go.uber.org/zap/zaptest"
)

// recordingAlerter collects alert messages.
type recordingAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingAlerter) Alert(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// newFixtureInstance loads the fixture module under name and instantiates it.
func newFixtureInstance(t *testing.T, opts wasmtest.Options, alerter abi.Alerter) (*Runtime, *Instance) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { runtime.Close(ctx) })

	loader := NewModuleLoader(runtime, logger)
	if _, err := loader.LoadModuleFromMemory(ctx, "fixture", wasmtest.Module(opts)); err != nil {
		t.Fatalf("Failed to load fixture: %v", err)
	}

	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger, alerter), logger)
	instance, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "fixture"})
	if err != nil {
		t.Fatalf("Failed to instantiate: %v", err)
	}
	return runtime, instance
}

func freedCount(t *testing.T, instance *Instance) uint64 {
	t.Helper()
	g := instance.module.ExportedGlobal(wasmtest.FreedGlobal)
	if g == nil {
		t.Fatal("fixture does not export the freed counter")
	}
	return g.Get()
}

// TestLoadModuleFromMemory tests loading a minimal Wasm module from memory.
func TestLoadModuleFromMemory(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	module, err := loader.LoadModuleFromMemory(ctx, "test-module", wasmtest.Empty())
	if err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	if module == nil {
		t.Fatal("Module is nil")
	}

	if module.Name != "test-module" {
		t.Errorf("Module name = %s, want 'test-module'", module.Name)
	}

	if len(module.Digest) != 64 {
		t.Errorf("Digest length = %d, want 64", len(module.Digest))
	}

	// Test caching - load again should hit cache.
	module2, err := loader.LoadModuleFromMemory(ctx, "test-module", wasmtest.Empty())
	if err != nil {
		t.Fatalf("Failed to load module from cache: %v", err)
	}

	if module2 != module {
		t.Error("Cache should return the same module instance")
	}
}

// TestModuleLoaderFileSource tests the FileModuleSource.
func TestModuleLoaderFileSource(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	wasmFile := filepath.Join(t.TempDir(), "engine.wasm")
	if err := os.WriteFile(wasmFile, wasmtest.Module(wasmtest.Options{}), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	module, err := loader.LoadModuleFromFile(ctx, "engine", wasmFile)
	if err != nil {
		t.Fatalf("Failed to load module from file: %v", err)
	}

	if module.Name != "engine" {
		t.Errorf("Module name = %s, want engine", module.Name)
	}
	if module.Source != wasmFile {
		t.Errorf("Module source = %s, want %s", module.Source, wasmFile)
	}
}

func TestLoadModuleRejectsGarbage(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	_, err = loader.LoadModuleFromMemory(ctx, "garbage", []byte("not wasm"))
	var compErr *CompilationError
	if !errors.As(err, &compErr) {
		t.Fatalf("expected CompilationError, got %T (%v)", err, err)
	}

	if _, ok := runtime.GetCompiledModule("garbage"); ok {
		t.Error("Failed module should not be cached")
	}
}

func TestCheckExports(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	full, err := loader.LoadModuleFromMemory(ctx, "full", wasmtest.Module(wasmtest.Options{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := full.CheckExports(ops.Operations()); err != nil {
		t.Errorf("CheckExports() on complete module failed: %v", err)
	}

	partial, err := loader.LoadModuleFromMemory(ctx, "partial", wasmtest.Module(wasmtest.Options{OmitGreet: true}))
	if err != nil {
		t.Fatal(err)
	}
	err = partial.CheckExports(ops.Operations())
	var mismatch *ExportMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ExportMismatchError, got %T (%v)", err, err)
	}
	if len(mismatch.Problems) != 1 || mismatch.Problems[0] != "missing function greet" {
		t.Errorf("Problems = %v, want [missing function greet]", mismatch.Problems)
	}

	empty, err := loader.LoadModuleFromMemory(ctx, "empty", wasmtest.Empty())
	if err != nil {
		t.Fatal(err)
	}
	err = empty.CheckExports(ops.Operations())
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ExportMismatchError, got %T (%v)", err, err)
	}
	// Three operations, memory, allocate and deallocate.
	if len(mismatch.Problems) != 6 {
		t.Errorf("Problems = %v, want 6 entries", mismatch.Problems)
	}

	// A pure scalar module needs no memory exports.
	step, _ := ops.Lookup(abi.ExportComputePhysicsStep)
	if err := full.CheckExports(nil); err != nil {
		t.Errorf("CheckExports(nil) failed: %v", err)
	}
	if err := full.CheckExports([]protocol.Signature{step}); err != nil {
		t.Errorf("CheckExports(step) failed: %v", err)
	}
}

func TestCheckExportsWrongTypes(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)
	module, err := loader.LoadModuleFromMemory(ctx, "fixture", wasmtest.Module(wasmtest.Options{}))
	if err != nil {
		t.Fatal(err)
	}

	// The fixture's allocate takes an i32, not text.
	greet, _ := ops.Lookup(abi.ExportGreet)
	greet.Name = abi.ExportAllocate

	var mismatch *ExportMismatchError
	if err := module.CheckExports([]protocol.Signature{greet}); !errors.As(err, &mismatch) {
		t.Fatalf("expected ExportMismatchError, got %T (%v)", err, err)
	}
	if len(mismatch.Problems) != 2 {
		t.Errorf("Problems = %v, want params and results mismatch", mismatch.Problems)
	}
}

// TestHostFunctions tests host function creation.
func TestHostFunctions(t *testing.T) {
	logger := zaptest.NewLogger(t)

	hostFuncs := NewHostFunctions(logger, nil)
	if hostFuncs == nil {
		t.Fatal("HostFunctionsImpl is nil")
	}

	if hostFuncs.logger == nil {
		t.Error("Logger not initialized")
	}
}

// TestMemoryHelpers tests memory helpers against a live instance.
func TestMemoryHelpers(t *testing.T) {
	_, instance := newFixtureInstance(t, wasmtest.Options{}, nil)
	ctx := context.Background()
	mem := instance.Memory()

	ptr, length, err := mem.WriteString(ctx, "Zoë 🦀")
	if err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}
	if ptr != wasmtest.HeapBase {
		t.Errorf("ptr = %d, want %d", ptr, wasmtest.HeapBase)
	}
	if length != uint32(len("Zoë 🦀")) {
		t.Errorf("length = %d, want %d", length, len("Zoë 🦀"))
	}

	got, err := mem.ReadString(ptr, length)
	if err != nil {
		t.Fatalf("ReadString failed: %v", err)
	}
	if got != "Zoë 🦀" {
		t.Errorf("ReadString = %q, want %q", got, "Zoë 🦀")
	}

	raw, ok := mem.ReadBytes(ptr, 3)
	if !ok || string(raw) != "Zo\xc3" {
		t.Errorf("ReadBytes = %q, %v", raw, ok)
	}

	// Raw bytes may be anything; reading them as text must fail.
	badPtr, badLen, err := mem.WriteBytes(ctx, []byte{0xfe, 0xff})
	if err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}
	_, err = mem.ReadString(badPtr, badLen)
	var encErr *boundary.EncodingError
	if !errors.As(err, &encErr) {
		t.Errorf("expected EncodingError, got %T (%v)", err, err)
	}

	if _, ok := mem.ReadBytes(math.MaxUint32-1, 8); ok {
		t.Error("ReadBytes past the end should fail")
	}

	if err := mem.Deallocate(ctx, ptr, length); err != nil {
		t.Errorf("Deallocate failed: %v", err)
	}
	if freedCount(t, instance) != 1 {
		t.Errorf("freed = %d, want 1", freedCount(t, instance))
	}

	// Empty buffers are never allocated, so releasing them is a no-op.
	if err := mem.Deallocate(ctx, 0, 0); err != nil {
		t.Errorf("Deallocate(0, 0) failed: %v", err)
	}
	if freedCount(t, instance) != 1 {
		t.Errorf("freed = %d, want 1", freedCount(t, instance))
	}
}

func TestInstanceComputePhysicsStep(t *testing.T) {
	_, instance := newFixtureInstance(t, wasmtest.Options{}, nil)
	ctx := context.Background()

	for _, dt := range []float32{0, 1, 0.016, -2.5, 1e-20} {
		got, err := instance.ComputePhysicsStep(ctx, dt)
		if err != nil {
			t.Fatalf("ComputePhysicsStep(%v) failed: %v", dt, err)
		}
		want := ops.ComputePhysicsStep(dt)
		if math.Float32bits(got) != math.Float32bits(want) {
			t.Errorf("ComputePhysicsStep(%v) = %v (%#x), want %v (%#x)",
				dt, got, math.Float32bits(got), want, math.Float32bits(want))
		}
	}

	one, err := instance.ComputePhysicsStep(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if one != float32(9.81) {
		t.Errorf("ComputePhysicsStep(1) = %v, want 9.81", one)
	}
}

func TestInstanceGreetReleasesBuffers(t *testing.T) {
	// The fixture's greet echoes its input as the result.
	_, instance := newFixtureInstance(t, wasmtest.Options{}, nil)

	got, err := instance.Greet(context.Background(), "日本語 🦀")
	if err != nil {
		t.Fatalf("Greet failed: %v", err)
	}
	if got != "日本語 🦀" {
		t.Errorf("Greet = %q, want echo", got)
	}

	// Input and result are both released by the host.
	if n := freedCount(t, instance); n != 2 {
		t.Errorf("freed = %d, want 2", n)
	}
}

func TestInstanceGreetEncodingFailure(t *testing.T) {
	_, instance := newFixtureInstance(t, wasmtest.Options{RejectText: true}, nil)

	_, err := instance.Greet(context.Background(), "Ada")
	var encErr *boundary.EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodingError, got %T (%v)", err, err)
	}

	// Only the input buffer existed.
	if n := freedCount(t, instance); n != 1 {
		t.Errorf("freed = %d, want 1", n)
	}
}

func TestInstanceGreetInvalidUTF8(t *testing.T) {
	_, instance := newFixtureInstance(t, wasmtest.Options{}, nil)

	_, err := instance.Greet(context.Background(), "bad \xff")
	var encErr *boundary.EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodingError, got %T (%v)", err, err)
	}
	if encErr.Offset != 4 {
		t.Errorf("Offset = %d, want 4", encErr.Offset)
	}
}

func TestInstanceGreetMissingExport(t *testing.T) {
	_, instance := newFixtureInstance(t, wasmtest.Options{OmitGreet: true}, nil)

	_, err := instance.Greet(context.Background(), "Ada")
	var notFound *FunctionNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected FunctionNotFoundError, got %T (%v)", err, err)
	}
	if notFound.FunctionName != "greet" {
		t.Errorf("FunctionName = %s, want greet", notFound.FunctionName)
	}
}

func TestInstanceAnnounce(t *testing.T) {
	alerter := &recordingAlerter{}
	_, instance := newFixtureInstance(t, wasmtest.Options{}, alerter)

	// The fixture forwards its input to env.alert.
	if err := instance.Announce(context.Background(), "Zoë"); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}

	if len(alerter.messages) != 1 || alerter.messages[0] != "Zoë" {
		t.Errorf("alerts = %q, want [Zoë]", alerter.messages)
	}

	// The alert argument and the input are both released after the call.
	if n := freedCount(t, instance); n != 2 {
		t.Errorf("freed = %d, want 2", n)
	}
}

func TestInstanceLimit(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	config := DefaultRuntimeConfig()
	config.MaxInstances = 1
	runtime, err := NewRuntime(ctx, logger, config)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)
	if _, err := loader.LoadModuleFromMemory(ctx, "fixture", wasmtest.Module(wasmtest.Options{})); err != nil {
		t.Fatal(err)
	}

	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger, nil), logger)
	first, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "fixture"})
	if err != nil {
		t.Fatalf("Failed to instantiate: %v", err)
	}

	_, err = instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "fixture"})
	var limitErr *InstanceLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected InstanceLimitError, got %T (%v)", err, err)
	}

	// Closing frees the slot; the env host module is reused.
	if err := first.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if runtime.InstanceCount() != 0 {
		t.Errorf("Instance count = %d, want 0", runtime.InstanceCount())
	}

	second, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "fixture", InstanceID: "second"})
	if err != nil {
		t.Fatalf("Failed to instantiate after close: %v", err)
	}
	if second.ID != "second" {
		t.Errorf("Instance ID = %s, want second", second.ID)
	}
}

func TestInstantiateUnknownModule(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger, nil), logger)
	_, err = instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "missing"})

	var notFound *ModuleNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ModuleNotFoundError, got %T (%v)", err, err)
	}
}

func TestInstanceLimitConcurrent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	config := DefaultRuntimeConfig()
	config.MaxInstances = 2
	runtime, err := NewRuntime(ctx, logger, config)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)
	if _, err := loader.LoadModuleFromMemory(ctx, "fixture", wasmtest.Module(wasmtest.Options{})); err != nil {
		t.Fatal(err)
	}
	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger, nil), logger)

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		limited int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "fixture"})

			mu.Lock()
			defer mu.Unlock()
			var limitErr *InstanceLimitError
			switch {
			case err == nil:
				created++
			case errors.As(err, &limitErr):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if created != 2 || limited != callers-2 {
		t.Errorf("created = %d, limited = %d; want 2 and %d", created, limited, callers-2)
	}
	if runtime.InstanceCount() != 2 {
		t.Errorf("Instance count = %d, want 2", runtime.InstanceCount())
	}
}

func TestInstantiateFailureReleasesSlot(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	config := DefaultRuntimeConfig()
	config.MaxInstances = 2
	runtime, err := NewRuntime(ctx, logger, config)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)
	if _, err := loader.LoadModuleFromMemory(ctx, "fixture", wasmtest.Module(wasmtest.Options{})); err != nil {
		t.Fatal(err)
	}
	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger, nil), logger)

	if _, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "fixture", InstanceID: "dup"}); err != nil {
		t.Fatal(err)
	}

	// wazero refuses a second module with the same name.
	for i := 0; i < 3; i++ {
		_, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "fixture", InstanceID: "dup"})
		var instErr *InstantiationError
		if !errors.As(err, &instErr) {
			t.Fatalf("expected InstantiationError, got %T (%v)", err, err)
		}
	}

	if runtime.InstanceCount() != 1 {
		t.Errorf("Instance count = %d, want 1", runtime.InstanceCount())
	}
	if _, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "fixture"}); err != nil {
		t.Errorf("Failed slots were not returned: %v", err)
	}
}
