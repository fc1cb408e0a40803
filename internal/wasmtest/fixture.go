// Package wasmtest builds small hand-encoded wasm modules that follow the
// engine ABI, so host-side code can be tested without a wasip1 toolchain.
package wasmtest

import (
	"encoding/binary"
	"math"
)

// FreedGlobal is the exported global counting deallocate calls.
const FreedGlobal = "freed"

// HeapBase is the first address handed out by the fixture's allocate.
const HeapBase = 1024

// Options changes the fixture's behavior.
type Options struct {
	// RejectText makes greet report an encoding failure instead of echoing.
	RejectText bool
	// OmitGreet leaves greet out of the exports.
	OmitGreet bool
}

const (
	i32 = 0x7f
	i64 = 0x7e
	f32 = 0x7d

	opCall       = 0x10
	opLocalGet   = 0x20
	opGlobalGet  = 0x23
	opGlobalSet  = 0x24
	opI32Const   = 0x41
	opI64Const   = 0x42
	opF32Const   = 0x43
	opI32Add     = 0x6a
	opI64Or      = 0x84
	opI64Shl     = 0x86
	opF32Mul     = 0x94
	opI64ExtendU = 0xad
	opEnd        = 0x0b

	kindFunc   = 0x00
	kindMemory = 0x02
	kindGlobal = 0x03
)

// Module returns the fixture binary.
//
// Imports env.alert(ptr, len). Exports memory, a bump allocate, a deallocate
// that only counts calls, compute_physics_step (dt*9.81), greet (echoes its
// input as the result, or fails with the encoding code), announce (passes
// its input to env.alert and returns 0) and the freed counter.
func Module(opts Options) []byte {
	types := vec(
		funcType([]byte{i32, i32}, nil),         // 0: alert, deallocate
		funcType([]byte{i32}, []byte{i32}),      // 1: allocate
		funcType([]byte{f32}, []byte{f32}),      // 2: compute_physics_step
		funcType([]byte{i32, i32}, []byte{i64}), // 3: greet
		funcType([]byte{i32, i32}, []byte{i32}), // 4: announce
	)

	imports := vec(cat(name("env"), name("alert"), []byte{kindFunc, 0}))

	// Function indices: 0 alert (import), 1 allocate, 2 deallocate,
	// 3 compute_physics_step, 4 greet, 5 announce.
	functions := vec([]byte{1}, []byte{0}, []byte{2}, []byte{3}, []byte{4})

	memory := vec([]byte{0x00, 0x01}) // min 1 page, no max

	globals := vec(
		cat([]byte{i32, 0x01, opI32Const}, sleb(HeapBase), []byte{opEnd}), // 0: next
		cat([]byte{i32, 0x01, opI32Const}, sleb(0), []byte{opEnd}),        // 1: freed
	)

	exportList := [][]byte{
		export("memory", kindMemory, 0),
		export("allocate", kindFunc, 1),
		export("deallocate", kindFunc, 2),
		export("compute_physics_step", kindFunc, 3),
		export("announce", kindFunc, 5),
		export(FreedGlobal, kindGlobal, 1),
	}
	if !opts.OmitGreet {
		exportList = append(exportList, export("greet", kindFunc, 4))
	}

	allocate := []byte{
		opGlobalGet, 0,
		opGlobalGet, 0,
		opLocalGet, 0,
		opI32Add,
		opGlobalSet, 0,
	}
	deallocate := []byte{
		opGlobalGet, 1,
		opI32Const, 1,
		opI32Add,
		opGlobalSet, 1,
	}
	step := cat([]byte{opLocalGet, 0, opF32Const}, binary.LittleEndian.AppendUint32(nil, math.Float32bits(9.81)), []byte{opF32Mul})

	greet := []byte{
		opLocalGet, 0, opI64ExtendU,
		opI64Const, 32, opI64Shl,
		opLocalGet, 1, opI64ExtendU,
		opI64Or,
	}
	if opts.RejectText {
		greet = cat([]byte{opI64Const}, sleb(1)) // ptr 0, len = encoding code
	}

	announce := []byte{
		opLocalGet, 0,
		opLocalGet, 1,
		opCall, 0,
		opI32Const, 0,
	}

	code := vec(body(allocate), body(deallocate), body(step), body(greet), body(announce))

	return cat(
		[]byte{0x00, 0x61, 0x73, 0x6d}, // Magic number: \0asm
		[]byte{0x01, 0x00, 0x00, 0x00}, // Version: 1
		section(1, types),
		section(2, imports),
		section(3, functions),
		section(5, memory),
		section(6, globals),
		section(7, vec(exportList...)),
		section(10, code),
	)
}

// Empty returns the smallest valid module.
func Empty() []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6d,
		0x01, 0x00, 0x00, 0x00,
	}
}

func funcType(params, results []byte) []byte {
	return cat([]byte{0x60}, uleb(uint32(len(params))), params, uleb(uint32(len(results))), results)
}

func export(n string, kind byte, index uint32) []byte {
	return cat(name(n), []byte{kind}, uleb(index))
}

func body(instrs []byte) []byte {
	b := cat([]byte{0x00}, instrs, []byte{opEnd}) // no locals
	return cat(uleb(uint32(len(b))), b)
}

func section(id byte, content []byte) []byte {
	return cat([]byte{id}, uleb(uint32(len(content))), content)
}

func vec(items ...[]byte) []byte {
	return cat(append([][]byte{uleb(uint32(len(items)))}, items...)...)
}

func name(s string) []byte {
	return cat(uleb(uint32(len(s))), []byte(s))
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
