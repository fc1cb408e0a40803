package protocol

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// Boundary types shared by the engine module, the host runtime and module manifests.

// ValueKind is the kind of a value crossing the module boundary.
type ValueKind int

const (
	ValueKindText ValueKind = iota + 1
	ValueKindF32
)

// String returns the manifest spelling of the kind.
func (k ValueKind) String() string {
	switch k {
	case ValueKindText:
		return "text"
	case ValueKindF32:
		return "f32"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// ParseValueKind parses the manifest spelling of a kind.
func ParseValueKind(s string) (ValueKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string":
		return ValueKindText, nil
	case "f32", "float32":
		return ValueKindF32, nil
	default:
		return 0, fmt.Errorf("unknown value kind %q (must be one of: text, f32)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ValueKind) MarshalText() ([]byte, error) {
	if k != ValueKindText && k != ValueKindF32 {
		return nil, fmt.Errorf("cannot marshal %s", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ValueKind) UnmarshalText(b []byte) error {
	parsed, err := ParseValueKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// wasmParams returns the wasm types carrying one parameter of this kind.
// Text travels as a (ptr, len) pair into module memory.
func (k ValueKind) wasmParams() []api.ValueType {
	switch k {
	case ValueKindText:
		return []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	case ValueKindF32:
		return []api.ValueType{api.ValueTypeF32}
	default:
		return nil
	}
}

// wasmResult returns the wasm type carrying one result of this kind.
// Text results are a packed ptr<<32|len.
func (k ValueKind) wasmResult() api.ValueType {
	if k == ValueKindF32 {
		return api.ValueTypeF32
	}
	return api.ValueTypeI64
}

// Signature describes one exported operation.
type Signature struct {
	Name    string      `yaml:"name" json:"name" validate:"required"`
	Params  []ValueKind `yaml:"params" json:"params" validate:"dive,oneof=1 2"`
	Results []ValueKind `yaml:"results" json:"results" validate:"max=1,dive,oneof=1 2"`
}

// WasmParams returns the flattened wasm parameter types of the export.
func (s Signature) WasmParams() []api.ValueType {
	types := make([]api.ValueType, 0, len(s.Params)*2)
	for _, p := range s.Params {
		types = append(types, p.wasmParams()...)
	}
	return types
}

// WasmResults returns the wasm result types of the export.
// Operations without a result report an i32 status code instead.
func (s Signature) WasmResults() []api.ValueType {
	if len(s.Results) == 0 {
		return []api.ValueType{api.ValueTypeI32}
	}
	return []api.ValueType{s.Results[0].wasmResult()}
}

// String renders the signature as name(params) -> result.
func (s Signature) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.String()
	}
	out := fmt.Sprintf("%s(%s)", s.Name, strings.Join(params, ", "))
	if len(s.Results) > 0 {
		out += " -> " + s.Results[0].String()
	}
	return out
}
