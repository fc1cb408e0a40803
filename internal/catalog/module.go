package catalog

import (
	"time"

	"github.com/lipawealth/lipa-engine/internal/wasm"
	"github.com/lipawealth/lipa-engine/pkg/protocol"
)

// Module is a catalogued engine module: its manifest plus the compiled Wasm.
type Module struct {
	// Manifest is the parsed module metadata
	Manifest *Manifest

	// Compiled is the compiled Wasm module
	Compiled *wasm.CompiledModule

	// LoadedAt is the timestamp when the module was loaded
	LoadedAt time.Time
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.Manifest.Name
}

// Version returns the module version.
func (m *Module) Version() string {
	return m.Manifest.Version
}

// Exports returns the operations the module declares.
func (m *Module) Exports() []protocol.Signature {
	return m.Manifest.Exports
}

// Provides reports whether the module exports the named operation.
func (m *Module) Provides(operation string) bool {
	for _, sig := range m.Manifest.Exports {
		if sig.Name == operation {
			return true
		}
	}
	return false
}
