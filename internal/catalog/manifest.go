package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lipawealth/lipa-engine/internal/ops"
	"github.com/lipawealth/lipa-engine/pkg/protocol"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest file name inside a module directory.
const ManifestFile = "manifest.yaml"

// validate is shared; validator caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their manifest spelling.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Manifest represents the module manifest.yaml structure.
type Manifest struct {
	Name        string               `yaml:"name" validate:"required,max=64"`
	Version     string               `yaml:"version" validate:"required,semver"`
	Description string               `yaml:"description"`
	Wasm        WasmConfig           `yaml:"wasm"`
	Exports     []protocol.Signature `yaml:"exports" validate:"required,min=1,dive"`
	Author      string               `yaml:"author"`
	License     string               `yaml:"license"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file" validate:"required"`
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	// Validate manifest
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return &ManifestValidationError{Path: m.Path(), Message: err.Error()}
		}
		fe := fieldErrs[0]
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   fieldPath(fe.Namespace()),
			Message: fieldMessage(fe),
		}
	}

	seen := make(map[string]bool, len(m.Exports))
	for i, sig := range m.Exports {
		field := fmt.Sprintf("exports[%d]", i)
		if seen[sig.Name] {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   field,
				Message: fmt.Sprintf("duplicate export: %s", sig.Name),
			}
		}
		seen[sig.Name] = true

		// Engine operations have a fixed signature.
		if known, ok := ops.Lookup(sig.Name); ok && known.String() != sig.String() {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   field,
				Message: fmt.Sprintf("export %s does not match operation %s", sig, known),
			}
		}
	}

	// Validate Wasm file exists
	wasmPath := m.WasmPath()
	if _, err := os.Stat(wasmPath); os.IsNotExist(err) {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     m.Wasm.File,
		}
	}

	return nil
}

// fieldPath strips the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s exceeds %s", field, fe.Param())
	case "semver":
		return fmt.Sprintf("%s must be a semantic version, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
