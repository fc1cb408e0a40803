package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lipawealth/lipa-engine/internal/wasm"
	"go.uber.org/zap"
)

// Loader handles loading modules from disk.
type Loader struct {
	runtime      *wasm.Runtime
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a new module loader.
func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		runtime:      runtime,
		moduleLoader: wasm.NewModuleLoader(runtime, logger),
		logger:       logger.With(zap.String("component", "catalog-loader")),
	}
}

// LoadModule loads a single module from a directory, compiling its Wasm and
// checking that it exports what the manifest declares.
func (l *Loader) LoadModule(ctx context.Context, dir string) (*Module, error) {
	l.logger.Debug("Loading module", zap.String("dir", dir))

	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loading module",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.Int("exports", len(manifest.Exports)),
	)

	// Compile Wasm module (uses internal caching)
	compiled, err := l.moduleLoader.LoadModuleFromFile(ctx, manifest.Name, manifest.WasmPath())
	if err != nil {
		return nil, &ModuleLoadError{
			ModuleName: manifest.Name,
			Err:        err,
		}
	}

	if err := compiled.CheckExports(manifest.Exports); err != nil {
		return nil, &ModuleLoadError{
			ModuleName: manifest.Name,
			Err:        err,
		}
	}

	module := &Module{
		Manifest: manifest,
		Compiled: compiled,
		LoadedAt: time.Now(),
	}

	l.logger.Info("Module loaded successfully",
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", compiled.SizeBytes),
		zap.String("digest", compiled.Digest),
	)

	return module, nil
}

// DiscoverModules scans directories for modules. Each subdirectory holding
// a manifest is one module; failures are logged and skipped.
func (l *Loader) DiscoverModules(ctx context.Context, paths []string) ([]*Module, error) {
	var modules []*Module
	var errs []error

	for _, basePath := range paths {
		l.logger.Debug("Scanning module directory", zap.String("path", basePath))

		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Module path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			moduleDir := filepath.Join(basePath, entry.Name())

			module, err := l.LoadModule(ctx, moduleDir)
			if err != nil {
				l.logger.Error("Failed to load module",
					zap.String("dir", moduleDir),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}

			modules = append(modules, module)
		}
	}

	if len(modules) > 0 && len(errs) > 0 {
		l.logger.Warn("Some modules failed to load",
			zap.Int("loaded", len(modules)),
			zap.Int("failed", len(errs)),
		)
	}

	if len(modules) == 0 {
		return nil, &NoModulesFoundError{Paths: paths}
	}

	return modules, nil
}
