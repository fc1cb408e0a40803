package catalog

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry manages loaded modules.
type Registry struct {
	sync.RWMutex
	modules     map[string]*Module   // name -> module
	byOperation map[string][]*Module // operation -> modules, in registration order
	logger      *zap.Logger
}

// NewRegistry creates a new module registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		modules:     make(map[string]*Module),
		byOperation: make(map[string][]*Module),
		logger:      logger.With(zap.String("component", "catalog-registry")),
	}
}

// Register adds a module to the registry.
func (r *Registry) Register(module *Module) error {
	r.Lock()
	defer r.Unlock()

	name := module.Manifest.Name

	if _, exists := r.modules[name]; exists {
		return &ModuleAlreadyRegisteredError{ModuleName: name}
	}

	r.modules[name] = module

	for _, sig := range module.Manifest.Exports {
		r.byOperation[sig.Name] = append(r.byOperation[sig.Name], module)
	}

	r.logger.Info("Module registered",
		zap.String("name", name),
		zap.Int("exports", len(module.Manifest.Exports)),
	)

	return nil
}

// Get retrieves a module by name.
func (r *Registry) Get(name string) (*Module, bool) {
	r.RLock()
	defer r.RUnlock()

	module, ok := r.modules[name]
	return module, ok
}

// LookupByOperation finds modules exporting an operation.
func (r *Registry) LookupByOperation(operation string) []*Module {
	r.RLock()
	defer r.RUnlock()

	modules := r.byOperation[operation]
	result := make([]*Module, len(modules))
	copy(result, modules)
	return result
}

// List returns all registered modules sorted by name.
func (r *Registry) List() []*Module {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Module, 0, len(r.modules))
	for _, module := range r.modules {
		result = append(result, module)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Manifest.Name < result[j].Manifest.Name
	})
	return result
}

// Unregister removes a module from the registry.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	module, ok := r.modules[name]
	if !ok {
		return
	}

	for _, sig := range module.Manifest.Exports {
		modules := r.byOperation[sig.Name]
		for i, m := range modules {
			if m.Manifest.Name == name {
				modules = append(modules[:i:i], modules[i+1:]...)
				break
			}
		}
		if len(modules) == 0 {
			delete(r.byOperation, sig.Name)
		} else {
			r.byOperation[sig.Name] = modules
		}
	}

	delete(r.modules, name)

	r.logger.Info("Module unregistered", zap.String("name", name))
}

// Count returns the number of registered modules.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.modules)
}
