package wasm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	abi "github.com/lipawealth/lipa-engine/api/wasm"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime   *Runtime
	logger    *zap.Logger
	hostFuncs *HostFunctionsImpl
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, hostFuncs *HostFunctionsImpl, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, one is generated).
	InstanceID string
}

// Instance represents an instantiated Wasm module.
// A wasm instance runs one call at a time; Instance serializes its callers.
type Instance struct {
	// wazero module instance.
	module api.Module

	// Instance metadata.
	ID        string
	Name      string
	CreatedAt int64

	// Exported functions (cached for performance).
	exports map[string]api.Function

	memory  *Memory
	timeout time.Duration
	runtime *Runtime
	logger  *zap.Logger

	mu        sync.Mutex
	closeOnce sync.Once
}

// Instantiate creates a new instance from a compiled module.
// Host functions are exported to the Wasm module.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	// Get compiled module from cache.
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	limit := m.runtime.config.MaxInstances
	if !m.runtime.reserveInstance(limit) {
		return nil, &InstanceLimitError{Limit: limit}
	}
	tracked := false
	defer func() {
		if !tracked {
			m.runtime.releaseReservation()
		}
	}()

	// Generate instance ID if not provided.
	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = generateInstanceID()
	}

	m.logger.Info("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	if err := m.ensureHostModule(ctx); err != nil {
		return nil, err
	}

	// Instantiate the guest module with host functions.
	// wasip1 reactors must run _initialize before any other export.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions(abi.InitializeFunction)
	if m.runtime.config.DebugEnabled {
		moduleConfig = moduleConfig.WithStdout(zap.NewStdLog(m.logger).Writer()).
			WithStderr(zap.NewStdLog(m.logger).Writer())
	}

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	// Cache exported functions.
	exports := m.cacheExportedFunctions(module)

	// Create instance wrapper.
	instance := &Instance{
		module:    module,
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now().Unix(),
		exports:   exports,
		memory:    NewMemory(module),
		timeout:   m.runtime.config.ExecutionTimeout,
		runtime:   m.runtime,
		logger:    m.logger.With(zap.String("instance_id", instanceID)),
	}

	// Track active instance in the reserved slot.
	m.runtime.trackReserved(instance)
	tracked = true

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(exports)),
	)

	return instance, nil
}

// Close closes the instance and releases resources.
func (i *Instance) Close(ctx context.Context) error {
	var err error
	i.closeOnce.Do(func() {
		i.runtime.DeleteInstance(i.ID)
		err = i.module.Close(ctx)
	})
	return err
}

// Memory returns the memory helper of the instance.
func (i *Instance) Memory() *Memory {
	return i.memory
}

// cacheExportedFunctions caches references to exported functions.
// This improves performance by avoiding repeated lookups.
func (m *InstanceManager) cacheExportedFunctions(module api.Module) map[string]api.Function {
	exports := make(map[string]api.Function)

	for _, name := range []string{
		abi.ExportGreet,
		abi.ExportComputePhysicsStep,
		abi.ExportAnnounce,
		abi.ExportAllocate,
		abi.ExportDeallocate,
	} {
		if fn := module.ExportedFunction(name); fn != nil {
			exports[name] = fn
		}
	}

	return exports
}

// ensureHostModule instantiates the env host module on first use.
// Every instance in the runtime shares it, so the host functions of the
// first manager to instantiate serve all of them.
func (m *InstanceManager) ensureHostModule(ctx context.Context) error {
	r := m.runtime
	r.hostMu.Lock()
	defer r.hostMu.Unlock()

	if r.hostLoaded {
		return nil
	}

	builder := r.runtime.NewHostModuleBuilder(abi.HostModuleName)
	m.exportHostFunctions(builder)

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("failed to instantiate host module: %w", err)
	}
	r.hostLoaded = true
	return nil
}

// exportHostFunctions registers Go functions for import by Wasm modules.
func (m *InstanceManager) exportHostFunctions(builder wazero.HostModuleBuilder) {
	impl := m.hostFuncs

	// Export alert function.
	// Modules call this to notify the host with one text argument.
	builder.NewFunctionBuilder().
		WithFunc(impl.alert).
		WithParameterNames("ptr", "length").
		Export(abi.ImportAlert)
}

var instanceSeq atomic.Uint64

// generateInstanceID generates a unique instance ID.
func generateInstanceID() string {
	return fmt.Sprintf("inst-%d-%d", time.Now().UnixNano(), instanceSeq.Add(1))
}
