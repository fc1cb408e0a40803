package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lipawealth/lipa-engine/internal/wasmtest"
	"github.com/stretchr/testify/require"
)

const engineManifest = `name: engine
version: 0.1.0
description: Greeting and physics step
wasm:
  file: engine.wasm
exports:
  - name: greet
    params: [text]
    results: [text]
  - name: compute_physics_step
    params: [f32]
    results: [f32]
  - name: announce
    params: [text]
author: Lipa
license: MIT
`

// writeModuleDir creates base/name with a manifest and, when wasm is
// non-nil, the module binary.
func writeModuleDir(t *testing.T, base, name, manifest string, wasm []byte) string {
	t.Helper()
	dir := filepath.Join(base, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0644))
	if wasm != nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.wasm"), wasm, 0644))
	}
	return dir
}

func validModuleDir(t *testing.T, base string) string {
	t.Helper()
	return writeModuleDir(t, base, "engine", engineManifest, wasmtest.Module(wasmtest.Options{}))
}
