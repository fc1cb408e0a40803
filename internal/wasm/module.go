package wasm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	abi "github.com/lipawealth/lipa-engine/api/wasm"
	"github.com/lipawealth/lipa-engine/pkg/protocol"
	"go.uber.org/zap"
)

// ModuleLoader handles loading and compiling Wasm modules.
type ModuleLoader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewModuleLoader creates a new module loader.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// ModuleSource represents a source for Wasm bytecode.
type ModuleSource interface {
	// Bytes returns the Wasm bytecode.
	Bytes() ([]byte, error)

	// Name returns a name/identifier for this module.
	Name() string
}

// FileModuleSource loads Wasm from a file.
type FileModuleSource struct {
	// Name under which the module is cached. Defaults to Path.
	ModuleName string
	Path       string
}

// Bytes reads the Wasm file.
func (f *FileModuleSource) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Name returns the module name, or the file path if none was given.
func (f *FileModuleSource) Name() string {
	if f.ModuleName != "" {
		return f.ModuleName
	}
	return f.Path
}

// MemoryModuleSource loads Wasm from memory.
type MemoryModuleSource struct {
	ModuleName string
	Data       []byte
}

// Bytes returns the Wasm bytecode.
func (m *MemoryModuleSource) Bytes() ([]byte, error) {
	return m.Data, nil
}

// Name returns the module name.
func (m *MemoryModuleSource) Name() string {
	return m.ModuleName
}

// LoadModule loads a Wasm module from a source.
// Compiles it if not already cached.
func (l *ModuleLoader) LoadModule(ctx context.Context, source ModuleSource) (*CompiledModule, error) {
	// Check cache first
	if cached, ok := l.runtime.GetCompiledModule(source.Name()); ok {
		l.logger.Debug("Module cache hit",
			zap.String("module", source.Name()),
		)
		return cached, nil
	}

	// Load Wasm bytes
	wasmBytes, err := source.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", source.Name(), err)
	}
	if !bytes.HasPrefix(wasmBytes, []byte("\x00asm")) {
		return nil, &CompilationError{
			ModuleName: source.Name(),
			Err:        fmt.Errorf("missing Wasm magic number"),
		}
	}

	sum := sha256.Sum256(wasmBytes)
	digest := hex.EncodeToString(sum[:])

	l.logger.Info("Compiling Wasm module",
		zap.String("module", source.Name()),
		zap.Int("size_bytes", len(wasmBytes)),
		zap.String("sha256", digest),
	)

	startTime := time.Now()

	// wazero.CompileModule decodes and validates the Wasm binary
	// This is CPU-intensive but only done once per module
	compiled, err := l.runtime.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &CompilationError{
			ModuleName: source.Name(),
			Err:        err,
		}
	}

	// Wrap with metadata
	compiledModule := &CompiledModule{
		Module:     compiled,
		Name:       source.Name(),
		Source:     source.Name(),
		SizeBytes:  int64(len(wasmBytes)),
		Digest:     digest,
		CompiledAt: time.Now().Unix(),
	}
	if fs, ok := source.(*FileModuleSource); ok {
		compiledModule.Source = fs.Path
	}

	// Cache the compiled module
	l.runtime.StoreCompiledModule(compiledModule)

	l.logger.Info("Module compiled successfully",
		zap.String("module", source.Name()),
		zap.Duration("duration", time.Since(startTime)),
	)

	return compiledModule, nil
}

// LoadModuleFromFile is a convenience function for loading from a file path.
func (l *ModuleLoader) LoadModuleFromFile(ctx context.Context, name, path string) (*CompiledModule, error) {
	source := &FileModuleSource{ModuleName: name, Path: path}
	return l.LoadModule(ctx, source)
}

// LoadModuleFromMemory loads from a byte slice.
func (l *ModuleLoader) LoadModuleFromMemory(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	source := &MemoryModuleSource{ModuleName: name, Data: data}
	return l.LoadModule(ctx, source)
}

// CheckExports verifies that the module exports every function in sigs with
// matching wasm types, plus the memory and allocator exports text needs.
func (c *CompiledModule) CheckExports(sigs []protocol.Signature) error {
	exported := c.Module.ExportedFunctions()
	var problems []string

	needsMemory := false
	for _, sig := range sigs {
		for _, p := range sig.Params {
			if p == protocol.ValueKindText {
				needsMemory = true
			}
		}
		for _, r := range sig.Results {
			if r == protocol.ValueKindText {
				needsMemory = true
			}
		}

		def, ok := exported[sig.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing function %s", sig.Name))
			continue
		}
		if !bytes.Equal(def.ParamTypes(), sig.WasmParams()) {
			problems = append(problems, fmt.Sprintf("%s params are %v, want %v",
				sig.Name, def.ParamTypes(), sig.WasmParams()))
		}
		if !bytes.Equal(def.ResultTypes(), sig.WasmResults()) {
			problems = append(problems, fmt.Sprintf("%s results are %v, want %v",
				sig.Name, def.ResultTypes(), sig.WasmResults()))
		}
	}

	if needsMemory {
		if _, ok := c.Module.ExportedMemories()[abi.ExportMemory]; !ok {
			problems = append(problems, "missing exported memory")
		}
		for _, name := range abi.MemoryExports {
			if _, ok := exported[name]; !ok {
				problems = append(problems, fmt.Sprintf("missing function %s", name))
			}
		}
	}

	if len(problems) > 0 {
		return &ExportMismatchError{ModuleName: c.Name, Problems: problems}
	}
	return nil
}
