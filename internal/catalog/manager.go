package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lipawealth/lipa-engine/internal/config"
	"github.com/lipawealth/lipa-engine/internal/wasm"
	"go.uber.org/zap"
)

// Manager manages the module lifecycle.
type Manager struct {
	cfg         *config.HostConfig
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	logger      *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a new module manager.
func NewManager(
	cfg *config.HostConfig,
	runtime *wasm.Runtime,
	hostFuncs *wasm.HostFunctionsImpl,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		cfg:         cfg,
		runtime:     runtime,
		loader:      NewLoader(runtime, logger),
		registry:    NewRegistry(logger),
		instanceMgr: wasm.NewInstanceManager(runtime, hostFuncs, logger),
		logger:      logger.With(zap.String("component", "catalog-manager")),
	}
}

// LoadAll discovers and loads all modules from configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("modules already loaded")
	}

	m.logger.Info("Loading modules",
		zap.Strings("paths", m.cfg.ModulePaths),
	)

	modules, err := m.loader.DiscoverModules(ctx, m.cfg.ModulePaths)
	if err != nil {
		// An empty catalog is not fatal.
		var none *NoModulesFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No modules found in configured paths",
				zap.Strings("paths", m.cfg.ModulePaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	for _, module := range modules {
		if err := m.registry.Register(module); err != nil {
			m.logger.Error("Failed to register module",
				zap.String("name", module.Manifest.Name),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Modules loaded successfully",
		zap.Int("count", m.registry.Count()),
	)

	return nil
}

// GetModule retrieves a module by name.
func (m *Manager) GetModule(name string) (*Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	module, ok := m.registry.Get(name)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: name}
	}

	return module, nil
}

// FindModuleForOperation finds the first registered module exporting operation.
func (m *Manager) FindModuleForOperation(operation string) (*Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	modules := m.registry.LookupByOperation(operation)
	if len(modules) == 0 {
		return nil, &OperationNotFoundError{Operation: operation}
	}

	return modules[0], nil
}

// Instantiate creates a new instance of a module.
func (m *Manager) Instantiate(ctx context.Context, moduleName string) (*wasm.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	module, ok := m.registry.Get(moduleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: moduleName}
	}

	// InstanceID is generated.
	return m.instanceMgr.Instantiate(ctx, &wasm.InstanceConfig{
		ModuleName: module.Manifest.Name,
	})
}

// Shutdown closes every instance and the runtime.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down module manager")

	// Runtime close handles instance cleanup
	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}

	m.logger.Info("Module manager shutdown complete")
	return nil
}

// Registry returns the module registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether modules have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
