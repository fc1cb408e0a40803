package ops

import (
	abi "github.com/lipawealth/lipa-engine/api/wasm"
	"github.com/lipawealth/lipa-engine/pkg/protocol"
)

// Operations returns the signature of every exported operation.
func Operations() []protocol.Signature {
	return []protocol.Signature{
		{
			Name:    abi.ExportGreet,
			Params:  []protocol.ValueKind{protocol.ValueKindText},
			Results: []protocol.ValueKind{protocol.ValueKindText},
		},
		{
			Name:    abi.ExportComputePhysicsStep,
			Params:  []protocol.ValueKind{protocol.ValueKindF32},
			Results: []protocol.ValueKind{protocol.ValueKindF32},
		},
		{
			Name:   abi.ExportAnnounce,
			Params: []protocol.ValueKind{protocol.ValueKindText},
		},
	}
}

// Lookup returns the signature of the named operation.
func Lookup(name string) (protocol.Signature, bool) {
	for _, sig := range Operations() {
		if sig.Name == name {
			return sig, true
		}
	}
	return protocol.Signature{}, false
}
